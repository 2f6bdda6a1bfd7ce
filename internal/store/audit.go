// Copyright Project Flowplane Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/flowplane/flowplane/internal/model"
)

type auditRow struct {
	ID           string         `db:"id"`
	OccurredAt   time.Time      `db:"occurred_at"`
	Actor        string         `db:"actor"`
	Action       string         `db:"action"`
	ResourceType string         `db:"resource_type"`
	ResourceID   string         `db:"resource_id"`
	OldValue     sql.NullString `db:"old_value"`
	NewValue     sql.NullString `db:"new_value"`
	ClientIP     string         `db:"client_ip"`
	UserAgent    string         `db:"user_agent"`
}

func (r auditRow) toModel() *model.AuditEvent {
	e := &model.AuditEvent{
		ID:           model.AuditID(r.ID),
		OccurredAt:   r.OccurredAt.UTC(),
		Actor:        r.Actor,
		Action:       r.Action,
		ResourceType: r.ResourceType,
		ResourceID:   r.ResourceID,
		ClientIP:     r.ClientIP,
		UserAgent:    r.UserAgent,
	}
	if r.OldValue.Valid {
		e.Old = json.RawMessage(r.OldValue.String)
	}
	if r.NewValue.Valid {
		e.New = json.RawMessage(r.NewValue.String)
	}
	return e
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

// AppendAudit writes one audit row. There is no update or delete path; the
// log is append-only by construction.
func (r *queries) AppendAudit(ctx context.Context, e *model.AuditEvent) error {
	if e.ID == "" {
		e.ID = model.AuditID(model.NewUID())
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now()
	}

	const insert = `
		INSERT INTO audit_log
			(id, occurred_at, actor, action, resource_type, resource_id, old_value, new_value, client_ip, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, r.q.Rebind(insert),
		string(e.ID), e.OccurredAt, e.Actor, e.Action, e.ResourceType, e.ResourceID,
		nullJSON(e.Old), nullJSON(e.New), e.ClientIP, e.UserAgent)
	return translate(err)
}

func auditPredicate(f model.AuditFilter) (string, []any) {
	var conds []string
	var args []any
	if f.ResourceType != "" {
		conds = append(conds, "resource_type = ?")
		args = append(args, f.ResourceType)
	}
	if f.ResourceID != "" {
		conds = append(conds, "resource_id = ?")
		args = append(args, f.ResourceID)
	}
	if f.Actor != "" {
		conds = append(conds, "actor = ?")
		args = append(args, f.Actor)
	}
	if f.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, f.Action)
	}
	if f.Since != nil {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, f.Since.UTC())
	}
	if f.Until != nil {
		conds = append(conds, "occurred_at < ?")
		args = append(args, f.Until.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListAudit returns audit rows matching the filter, newest first.
func (r *queries) ListAudit(ctx context.Context, f model.AuditFilter, page model.ListPage) ([]*model.AuditEvent, error) {
	page = page.Clamp()

	where, args := auditPredicate(f)
	query := `SELECT * FROM audit_log` + where + ` ORDER BY occurred_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, page.Limit, page.Offset)

	var rows []auditRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return nil, translate(err)
	}
	out := make([]*model.AuditEvent, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

// CountAudit reports how many audit rows match the filter.
func (r *queries) CountAudit(ctx context.Context, f model.AuditFilter) (int64, error) {
	where, args := auditPredicate(f)
	query := `SELECT COUNT(1) FROM audit_log` + where

	var n int64
	if err := sqlx.GetContext(ctx, r.q, &n, r.q.Rebind(query), args...); err != nil {
		return 0, translate(err)
	}
	return n, nil
}
