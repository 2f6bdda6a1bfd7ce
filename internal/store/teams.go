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
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/flowplane/flowplane/internal/errs"
	"github.com/flowplane/flowplane/internal/model"
)

type teamRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	DisplayName string    `db:"display_name"`
	Status      string    `db:"status"`
	Owner       string    `db:"owner"`
	Version     int64     `db:"version"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r teamRow) toModel() *model.Team {
	return &model.Team{
		ID:          model.TeamID(r.ID),
		Name:        r.Name,
		DisplayName: r.DisplayName,
		Status:      model.TeamStatus(r.Status),
		Owner:       r.Owner,
		Version:     r.Version,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

// CreateTeam inserts a new team. Team names are unique across the whole
// control plane.
func (r *queries) CreateTeam(ctx context.Context, t *model.Team) error {
	if t.ID == "" {
		t.ID = model.TeamID(model.NewUID())
	}
	if t.Status == "" {
		t.Status = model.TeamActive
	}
	ts := now()
	t.Version, t.CreatedAt, t.UpdatedAt = 1, ts, ts

	const insert = `
		INSERT INTO teams (id, name, display_name, status, owner, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, r.q.Rebind(insert),
		string(t.ID), t.Name, t.DisplayName, string(t.Status), t.Owner,
		t.Version, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isConflict(err) {
			return errs.Conflict("team %q already exists", t.Name)
		}
		return translate(err)
	}
	return nil
}

// GetTeamByName loads one team.
func (r *queries) GetTeamByName(ctx context.Context, name string) (*model.Team, error) {
	var row teamRow
	const query = `SELECT * FROM teams WHERE name = ?`
	if err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(query), name); err != nil {
		return nil, notFound(err, "team", name)
	}
	return row.toModel(), nil
}

// ListTeams returns teams ordered by (created_at, id).
func (r *queries) ListTeams(ctx context.Context, page model.ListPage) ([]*model.Team, error) {
	page = page.Clamp()

	const query = `SELECT * FROM teams ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
	var rows []teamRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), page.Limit, page.Offset); err != nil {
		return nil, translate(err)
	}
	out := make([]*model.Team, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

// UpdateTeam writes display name, owner and status under optimistic
// concurrency. The team name is immutable.
func (r *queries) UpdateTeam(ctx context.Context, t *model.Team) error {
	ts := now()
	const update = `
		UPDATE teams
		SET display_name = ?, status = ?, owner = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`
	res, err := r.q.ExecContext(ctx, r.q.Rebind(update),
		t.DisplayName, string(t.Status), t.Owner, ts, string(t.ID), t.Version)
	if err != nil {
		return translate(err)
	}
	if err := r.checkVersionedUpdate(ctx, res, "teams", string(t.ID), t.Version); err != nil {
		return err
	}
	t.Version++
	t.UpdatedAt = ts
	return nil
}

// RequireWritableTeam loads a team and rejects resource writes into teams
// that are not active.
func (r *queries) RequireWritableTeam(ctx context.Context, name string) (*model.Team, error) {
	t, err := r.GetTeamByName(ctx, name)
	if err != nil {
		return nil, err
	}
	switch t.Status {
	case model.TeamActive:
		return t, nil
	case model.TeamSuspended:
		return nil, errs.Validation("team %q is suspended and cannot accept writes", name)
	default:
		return nil, errs.Validation("team %q is archived and cannot accept new resources", name)
	}
}
