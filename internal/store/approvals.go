package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wardstone/gatekeeper/internal/core/db"
	"github.com/wardstone/gatekeeper/internal/types"
)

// Approvals is the ApprovalRequest repository. Status changes go through
// Transition, a compare-and-set on the current status: callers pass the set
// of statuses the change is legal from and inspect the affected-row count
// to distinguish success from a lost race.
type Approvals struct {
	q      *db.Queries
	logger *zap.Logger
}

// NewApprovals creates the approval request repository.
func NewApprovals(queries *db.Queries, logger *zap.Logger) *Approvals {
	return &Approvals{q: queries, logger: logger}
}

type approvalRow struct {
	ID               string         `db:"id"`
	UserID           string         `db:"user_id"`
	UserName         string         `db:"user_name"`
	Title            string         `db:"title"`
	ContentType      string         `db:"content_type"`
	GUIDs            []byte         `db:"guids"`
	TriggerKind      string         `db:"trigger_kind"`
	Reason           string         `db:"reason"`
	Status           string         `db:"status"`
	ProposedDecision []byte         `db:"proposed_decision"`
	ApprovedBy       sql.NullString `db:"approved_by"`
	ApprovalNotes    sql.NullString `db:"approval_notes"`
	ExpiresAt        sql.NullTime   `db:"expires_at"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r approvalRow) toDomain() (types.ApprovalRequest, error) {
	req := types.ApprovalRequest{
		ID:        types.RequestID(r.ID),
		UserID:    r.UserID,
		UserName:  r.UserName,
		Title:     r.Title,
		Type:      types.ContentType(r.ContentType),
		Trigger:   types.Trigger(r.TriggerKind),
		Reason:    r.Reason,
		Status:    types.Status(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if len(r.GUIDs) > 0 {
		if err := json.Unmarshal(r.GUIDs, &req.GUIDs); err != nil {
			return req, fmt.Errorf("decode request %s guids: %w", r.ID, err)
		}
	}
	if err := json.Unmarshal(r.ProposedDecision, &req.Proposed); err != nil {
		return req, fmt.Errorf("decode request %s proposed decision: %w", r.ID, err)
	}
	if r.ApprovedBy.Valid {
		v := r.ApprovedBy.String
		req.ApprovedBy = &v
	}
	if r.ApprovalNotes.Valid {
		v := r.ApprovalNotes.String
		req.ApprovalNotes = &v
	}
	if r.ExpiresAt.Valid {
		t := r.ExpiresAt.Time
		req.ExpiresAt = &t
	}
	return req, nil
}

// Create persists a new pending request.
func (a *Approvals) Create(ctx context.Context, req *types.ApprovalRequest) error {
	guids := req.GUIDs
	if guids == nil {
		guids = []string{}
	}
	guidsJSON, err := json.Marshal(guids)
	if err != nil {
		return fmt.Errorf("encode request guids: %w", err)
	}
	decisionJSON, err := json.Marshal(req.Proposed)
	if err != nil {
		return fmt.Errorf("encode proposed decision: %w", err)
	}

	var expiresAt any
	if req.ExpiresAt != nil {
		expiresAt = *req.ExpiresAt
	}

	_, err = a.q.Exec(ctx, "create-approval",
		string(req.ID), req.UserID, req.UserName, req.Title, string(req.Type),
		string(guidsJSON), string(req.Trigger), req.Reason, string(req.Status),
		string(decisionJSON), expiresAt, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		a.logger.Error("failed to create approval request", zap.String("request_id", string(req.ID)), zap.Error(err))
		return fmt.Errorf("create approval request: %w", err)
	}

	a.logger.Info("created approval request",
		zap.String("request_id", string(req.ID)),
		zap.String("trigger", string(req.Trigger)),
		zap.String("user_id", req.UserID))
	return nil
}

// Get retrieves a request by id. Returns ErrNotFound for unknown ids.
func (a *Approvals) Get(ctx context.Context, id types.RequestID) (*types.ApprovalRequest, error) {
	var row approvalRow
	if err := a.q.Get(ctx, "get-approval", &row, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("approval request %s: %w", id, types.ErrNotFound)
		}
		return nil, fmt.Errorf("get approval request: %w", err)
	}
	req, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// RequestFilter narrows List results. Status and UserID are mutually
// exclusive; status wins when both are set.
type RequestFilter struct {
	Status *types.Status
	UserID *string
}

// List retrieves requests newest-first.
func (a *Approvals) List(ctx context.Context, filter RequestFilter) ([]types.ApprovalRequest, error) {
	var rows []approvalRow
	var err error
	switch {
	case filter.Status != nil:
		err = a.q.Select(ctx, "list-approvals-by-status", &rows, string(*filter.Status))
	case filter.UserID != nil:
		err = a.q.Select(ctx, "list-approvals-by-user", &rows, *filter.UserID)
	default:
		err = a.q.Select(ctx, "list-approvals", &rows)
	}
	if err != nil {
		return nil, fmt.Errorf("list approval requests: %w", err)
	}

	out := make([]types.ApprovalRequest, 0, len(rows))
	for _, row := range rows {
		req, err := row.toDomain()
		if err != nil {
			a.logger.Warn("skipping undecodable approval request", zap.String("request_id", row.ID), zap.Error(err))
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

// Transition applies a status-guarded update. The write succeeds only when
// the current status is one of from; the returned count is 1 on success and
// 0 when the guard did not match (caller classifies NotFound vs conflict).
func (a *Approvals) Transition(ctx context.Context, id types.RequestID, to types.Status, from []types.Status, approvedBy, notes *string, now time.Time) (int64, error) {
	if len(from) == 0 || len(from) > 2 {
		return 0, fmt.Errorf("transition guard requires one or two source statuses")
	}
	from1 := string(from[0])
	from2 := from1
	if len(from) == 2 {
		from2 = string(from[1])
	}

	var by, no any
	if approvedBy != nil {
		by = *approvedBy
	}
	if notes != nil {
		no = *notes
	}

	res, err := a.q.Exec(ctx, "transition-approval", string(to), by, no, now, string(id), from1, from2)
	if err != nil {
		return 0, fmt.Errorf("transition approval request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("transition approval request: %w", err)
	}
	return affected, nil
}

// UpdateProposed replaces the proposed routing decision while the request
// is still pending. Returns the affected-row count.
func (a *Approvals) UpdateProposed(ctx context.Context, id types.RequestID, decision types.RoutingDecision, now time.Time) (int64, error) {
	decisionJSON, err := json.Marshal(decision)
	if err != nil {
		return 0, fmt.Errorf("encode proposed decision: %w", err)
	}
	res, err := a.q.Exec(ctx, "update-approval-routing", string(decisionJSON), now, string(id))
	if err != nil {
		return 0, fmt.Errorf("update proposed routing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update proposed routing: %w", err)
	}
	return affected, nil
}

// ListExpiredPending returns pending requests whose deadline has passed.
// Requests with a NULL deadline never expire and are excluded by the query.
func (a *Approvals) ListExpiredPending(ctx context.Context, now time.Time) ([]types.ApprovalRequest, error) {
	var rows []approvalRow
	if err := a.q.Select(ctx, "list-expired-pending", &rows, now); err != nil {
		return nil, fmt.Errorf("list expired pending requests: %w", err)
	}
	out := make([]types.ApprovalRequest, 0, len(rows))
	for _, row := range rows {
		req, err := row.toDomain()
		if err != nil {
			a.logger.Warn("skipping undecodable approval request", zap.String("request_id", row.ID), zap.Error(err))
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

// Delete permanently removes a request from any status.
// Returns ErrNotFound for unknown ids.
func (a *Approvals) Delete(ctx context.Context, id types.RequestID) error {
	res, err := a.q.Exec(ctx, "delete-approval", string(id))
	if err != nil {
		return fmt.Errorf("delete approval request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete approval request: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("approval request %s: %w", id, types.ErrNotFound)
	}
	a.logger.Info("deleted approval request", zap.String("request_id", string(id)))
	return nil
}

// DeleteTerminalBefore removes expired/rejected requests last touched at or
// before the cutoff. Returns the number of deleted rows.
func (a *Approvals) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := a.q.Exec(ctx, "delete-terminal-before", cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete terminal requests: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete terminal requests: %w", err)
	}
	return affected, nil
}

// CountByStatus returns request counts grouped by status.
func (a *Approvals) CountByStatus(ctx context.Context) (map[types.Status]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := a.q.Select(ctx, "count-approvals-by-status", &rows); err != nil {
		return nil, fmt.Errorf("count approval requests: %w", err)
	}
	counts := make(map[types.Status]int, len(rows))
	for _, r := range rows {
		counts[types.Status(r.Status)] = r.Count
	}
	return counts, nil
}
