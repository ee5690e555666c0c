package types

import (
	"github.com/google/uuid"
)

// RuleID represents a UUIDv7 router rule identifier.
// String alias enables type safety while maintaining JSON string serialization.
type RuleID string

// RequestID represents a UUIDv7 approval request identifier.
// UUIDv7 time-ordering ensures sequential IDs cluster in B-tree indexes.
type RequestID string

// NewRuleID generates a UUIDv7 rule identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRuleID() RuleID {
	return RuleID(uuid.Must(uuid.NewV7()).String())
}

// NewRequestID generates a UUIDv7 approval request identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRequestID() RequestID {
	return RequestID(uuid.Must(uuid.NewV7()).String())
}

// ParseRuleID validates and converts a string to RuleID.
// Rejects malformed UUIDs to prevent invalid IDs from entering the system.
func ParseRuleID(s string) (RuleID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return RuleID(s), nil
}

// ParseRequestID validates and converts a string to RequestID.
// Rejects malformed UUIDs to prevent invalid IDs from entering the system.
func ParseRequestID(s string) (RequestID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return RequestID(s), nil
}
