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
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/flowplane/flowplane/internal/errs"
	"github.com/flowplane/flowplane/internal/model"
)

type filterRow struct {
	ID         string    `db:"id"`
	Team       string    `db:"team"`
	Name       string    `db:"name"`
	FilterType string    `db:"filter_type"`
	Spec       string    `db:"spec"`
	Version    int64     `db:"version"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r filterRow) toModel() (*model.Filter, error) {
	f := &model.Filter{
		ID:        model.FilterID(r.ID),
		Team:      r.Team,
		Name:      r.Name,
		Type:      model.FilterType(r.FilterType),
		Version:   r.Version,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(r.Spec), &f.Spec); err != nil {
		return nil, errs.Internal(err, "decoding filter %q spec", r.Name)
	}
	return f, nil
}

type attachmentRow struct {
	ID          string    `db:"id"`
	FilterID    string    `db:"filter_id"`
	Scope       string    `db:"scope"`
	TargetID    string    `db:"target_id"`
	AttachOrder int64     `db:"attach_order"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r attachmentRow) toModel() *model.FilterAttachment {
	return &model.FilterAttachment{
		ID:        model.AttachmentID(r.ID),
		FilterID:  model.FilterID(r.FilterID),
		Scope:     model.AttachmentScope(r.Scope),
		TargetID:  r.TargetID,
		Order:     r.AttachOrder,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// CreateFilter inserts a new filter definition.
func (r *queries) CreateFilter(ctx context.Context, f *model.Filter) error {
	if f.ID == "" {
		f.ID = model.FilterID(model.NewUID())
	}
	ts := now()
	f.Version, f.CreatedAt, f.UpdatedAt = 1, ts, ts

	const insert = `
		INSERT INTO filters (id, team, name, filter_type, spec, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, r.q.Rebind(insert),
		string(f.ID), f.Team, f.Name, string(f.Type), string(model.MustEncode(f.Spec)),
		f.Version, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		if isConflict(err) {
			return errs.Conflict("filter %q already exists in team %q", f.Name, f.Team)
		}
		return translate(err)
	}
	return nil
}

// GetFilterByID loads one filter by id.
func (r *queries) GetFilterByID(ctx context.Context, id model.FilterID) (*model.Filter, error) {
	var row filterRow
	const query = `SELECT * FROM filters WHERE id = ?`
	if err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(query), string(id)); err != nil {
		return nil, notFound(err, "filter", string(id))
	}
	return row.toModel()
}

// GetFilterByName loads one filter by (team, name).
func (r *queries) GetFilterByName(ctx context.Context, team, name string) (*model.Filter, error) {
	var row filterRow
	const query = `SELECT * FROM filters WHERE team = ? AND name = ?`
	if err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(query), team, name); err != nil {
		return nil, notFound(err, "filter", fmt.Sprintf("%s/%s", team, name))
	}
	return row.toModel()
}

// ListFilters returns filters ordered by (created_at, id). An empty team
// lists across teams.
func (r *queries) ListFilters(ctx context.Context, team string, page model.ListPage) ([]*model.Filter, error) {
	page = page.Clamp()

	query := `SELECT * FROM filters ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
	args := []any{page.Limit, page.Offset}
	if team != "" {
		query = `SELECT * FROM filters WHERE team = ? ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
		args = []any{team, page.Limit, page.Offset}
	}

	var rows []filterRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return nil, translate(err)
	}
	out := make([]*model.Filter, 0, len(rows))
	for _, row := range rows {
		f, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// UpdateFilter writes the spec document if the caller's version is
// current. The filter type is immutable, since attachments and per-route
// overrides depend on it.
func (r *queries) UpdateFilter(ctx context.Context, f *model.Filter) error {
	current, err := r.GetFilterByID(ctx, f.ID)
	if err != nil {
		return err
	}
	if current.Type != f.Type {
		return errs.Validation("filter %q type cannot change from %q to %q",
			current.Name, current.Type, f.Type)
	}

	ts := now()
	const update = `
		UPDATE filters
		SET spec = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`
	res, err := r.q.ExecContext(ctx, r.q.Rebind(update),
		string(model.MustEncode(f.Spec)), ts, string(f.ID), f.Version)
	if err != nil {
		return translate(err)
	}
	if err := r.checkVersionedUpdate(ctx, res, "filters", string(f.ID), f.Version); err != nil {
		return err
	}
	f.Version++
	f.UpdatedAt = ts
	return nil
}

// DeleteFilter removes a filter unless attachments still bind it.
func (r *queries) DeleteFilter(ctx context.Context, team, name string) (*model.Filter, error) {
	f, err := r.GetFilterByName(ctx, team, name)
	if err != nil {
		return nil, err
	}

	const refQuery = `
		SELECT scope || '/' || target_id FROM filter_attachments
		WHERE filter_id = ? ORDER BY scope, target_id`
	var referents []string
	if err := sqlx.SelectContext(ctx, r.q, &referents, r.q.Rebind(refQuery), string(f.ID)); err != nil {
		return nil, translate(err)
	}
	if len(referents) > 0 {
		return nil, errs.InUse(fmt.Sprintf("filter %q is attached at %d point(s)", name, len(referents)), referents)
	}

	const del = `DELETE FROM filters WHERE id = ?`
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(del), string(f.ID)); err != nil {
		return nil, translate(err)
	}
	return f, nil
}

// AttachFilter binds a filter to a target. Re-attaching the same filter to
// the same target is a conflict.
func (r *queries) AttachFilter(ctx context.Context, a *model.FilterAttachment) error {
	if a.ID == "" {
		a.ID = model.AttachmentID(model.NewUID())
	}
	a.CreatedAt = now()

	const insert = `
		INSERT INTO filter_attachments (id, filter_id, scope, target_id, attach_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, r.q.Rebind(insert),
		string(a.ID), string(a.FilterID), string(a.Scope), a.TargetID, a.Order, a.CreatedAt)
	if err != nil {
		if isConflict(err) {
			return errs.Conflict("filter is already attached to %s %s", a.Scope, a.TargetID)
		}
		return translate(err)
	}
	return nil
}

// DetachFilter removes one attachment by id.
func (r *queries) DetachFilter(ctx context.Context, id model.AttachmentID) error {
	const del = `DELETE FROM filter_attachments WHERE id = ?`
	res, err := r.q.ExecContext(ctx, r.q.Rebind(del), string(id))
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translate(err)
	}
	if n == 0 {
		return errs.NotFound("filter attachment", string(id))
	}
	return nil
}

// ListAttachments returns attachments for one target ordered by
// (attach_order, created_at). An empty target lists every attachment, which
// the snapshot loader uses.
func (r *queries) ListAttachments(ctx context.Context, scope model.AttachmentScope, targetID string) ([]*model.FilterAttachment, error) {
	query := `SELECT * FROM filter_attachments ORDER BY attach_order ASC, created_at ASC, id ASC`
	var args []any
	if targetID != "" {
		query = `
			SELECT * FROM filter_attachments WHERE scope = ? AND target_id = ?
			ORDER BY attach_order ASC, created_at ASC, id ASC`
		args = []any{string(scope), targetID}
	}

	var rows []attachmentRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return nil, translate(err)
	}
	out := make([]*model.FilterAttachment, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}
