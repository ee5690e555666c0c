// Package types provides domain models shared across Gatekeeper components.
//
// Hand-written types only: the rule engine, router, and approval state
// machine all operate on these structs. Wire/DTO conversion happens at the
// API boundary, persistence mapping happens in internal/store.
package types

import "time"

// ContentType classifies a routable item.
type ContentType string

const (
	ContentTypeMovie ContentType = "movie"
	ContentTypeShow  ContentType = "show"
)

// Valid reports whether the content type is one of the known values.
func (c ContentType) Valid() bool {
	return c == ContentTypeMovie || c == ContentTypeShow
}

// ContentItem is an immutable snapshot of the item being routed.
// Evaluator plugins read attributes from here; they never mutate it.
type ContentItem struct {
	GUIDs    []string    `json:"guids"`
	Title    string      `json:"title"`
	Type     ContentType `json:"type"`
	Genres   []string    `json:"genres,omitempty"`
	Year     int         `json:"year,omitempty"`
	Language string      `json:"language,omitempty"` // original language code, e.g. "en"
	Seasons  []int       `json:"seasons,omitempty"`  // show season numbers, empty for movies
}

// Ref returns the content identifiers carried into approval requests
// and execution hand-offs.
func (i ContentItem) Ref() ContentRef {
	return ContentRef{GUIDs: i.GUIDs, Title: i.Title, Type: i.Type}
}

// ContentRef identifies content without the full attribute bag.
type ContentRef struct {
	GUIDs []string    `json:"guids"`
	Title string      `json:"title"`
	Type  ContentType `json:"type"`
}

// RoutingContext carries ambient facts not on the item itself.
// Passed alongside ContentItem to every evaluator call.
type RoutingContext struct {
	Type     ContentType `json:"type"`
	UserID   string      `json:"user_id"`
	UserName string      `json:"user_name,omitempty"`

	// RequiresApproval is the per-request manual override flag: when set,
	// the approval gate defers execution regardless of rule outcomes.
	RequiresApproval bool `json:"requires_approval,omitempty"`
}

// RoutingDecision is the orchestrator's output for one target instance.
type RoutingDecision struct {
	InstanceID          int64       `json:"instance_id"`
	InstanceType        ContentType `json:"instance_type"`
	QualityProfile      string      `json:"quality_profile,omitempty"`
	RootFolder          string      `json:"root_folder,omitempty"`
	Tags                []string    `json:"tags,omitempty"`
	SearchOnAdd         bool        `json:"search_on_add"`
	SeasonMonitoring    string      `json:"season_monitoring,omitempty"`    // shows only
	MinimumAvailability string      `json:"minimum_availability,omitempty"` // movies only

	// Priority is the evaluator-level priority, the primary conflict key.
	Priority int `json:"priority"`

	// RuleID records which rule produced the decision. RulePriority is the
	// rule's own priority number; among candidates at equal evaluator
	// priority the higher rule priority wins.
	RuleID       RuleID `json:"rule_id,omitempty"`
	RulePriority int    `json:"rule_priority,omitempty"`

	// RequiresApproval carries the originating rule's approval marker to
	// the gate.
	RequiresApproval bool `json:"requires_approval,omitempty"`
}

// Trigger records why an approval was required.
type Trigger string

const (
	TriggerQuotaExceeded   Trigger = "quota_exceeded"
	TriggerRouterRule      Trigger = "router_rule"
	TriggerManualFlag      Trigger = "manual_flag"
	TriggerContentCriteria Trigger = "content_criteria"
)

// Triggers lists all trigger kinds, in assessment order.
var Triggers = []Trigger{TriggerQuotaExceeded, TriggerRouterRule, TriggerManualFlag, TriggerContentCriteria}

// Status is the approval request lifecycle state.
type Status string

const (
	StatusPending      Status = "pending"
	StatusApproved     Status = "approved"
	StatusRejected     Status = "rejected"
	StatusExpired      Status = "expired"
	StatusAutoApproved Status = "auto_approved"
)

// Terminal reports whether the status permits no further transitions.
// Rejected is not terminal: it may still be reversed to approved.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusAutoApproved || s == StatusExpired
}

// ExpirationAction selects what the sweep does to an expired request.
type ExpirationAction string

const (
	ExpirationActionExpire      ExpirationAction = "expire"
	ExpirationActionAutoApprove ExpirationAction = "auto_approve"
)

// ApprovalRequest is the gated unit of work awaiting resolution.
//
// Invariant: ApprovedBy and ApprovalNotes are nil while Status is pending.
// Mutation happens only through the state machine's status-guarded writes;
// deletion removes the record entirely and is legal from any status.
type ApprovalRequest struct {
	ID       RequestID   `json:"id"`
	UserID   string      `json:"user_id"`
	UserName string      `json:"user_name,omitempty"`
	Title    string      `json:"title"`
	Type     ContentType `json:"type"`
	GUIDs    []string    `json:"guids"`
	Trigger  Trigger     `json:"trigger"`
	Reason   string      `json:"reason,omitempty"`
	Status   Status      `json:"status"`

	// Proposed is the routing decision under review. Admins may edit it
	// while the request is pending; approval dispatches whatever is
	// stored at that moment.
	Proposed RoutingDecision `json:"proposed_routing"`

	ApprovedBy    *string    `json:"approved_by,omitempty"`
	ApprovalNotes *string    `json:"approval_notes,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"` // nil = never expires
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Ref returns the content identifiers for execution hand-off.
func (r *ApprovalRequest) Ref() ContentRef {
	return ContentRef{GUIDs: r.GUIDs, Title: r.Title, Type: r.Type}
}

// Resource limits enforced at rule-authoring time.
const (
	// MaxConditionDepth bounds condition tree nesting to keep recursive
	// evaluation stack-safe.
	MaxConditionDepth = 16

	// MaxGroupConditions bounds the width of a single AND/OR group.
	MaxGroupConditions = 64

	// MaxInOperatorValues limits in/notIn list size to keep membership
	// checks linear in a small constant.
	MaxInOperatorValues = 64

	// MaxTagCount bounds the tag set a rule may attach to a decision.
	MaxTagCount = 32
)
