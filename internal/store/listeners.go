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

type listenerRow struct {
	ID          string    `db:"id"`
	Team        string    `db:"team"`
	Name        string    `db:"name"`
	BindAddress string    `db:"bind_address"`
	Port        uint32    `db:"port"`
	Protocol    string    `db:"protocol"`
	Spec        string    `db:"spec"`
	IsDefault   bool      `db:"is_default"`
	Version     int64     `db:"version"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r listenerRow) toModel() (*model.Listener, error) {
	l := &model.Listener{
		ID:          model.ListenerID(r.ID),
		Team:        r.Team,
		Name:        r.Name,
		BindAddress: r.BindAddress,
		Port:        r.Port,
		Protocol:    model.ListenerProtocol(r.Protocol),
		IsDefault:   r.IsDefault,
		Version:     r.Version,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(r.Spec), &l.Spec); err != nil {
		return nil, errs.Internal(err, "decoding listener %q spec", r.Name)
	}
	return l, nil
}

// portInUse reports whether another listener already binds the address and
// port.
func (r *queries) portInUse(ctx context.Context, bindAddress string, port uint32, excludeID string) (bool, error) {
	const query = `SELECT COUNT(1) FROM listeners WHERE bind_address = ? AND port = ? AND id != ?`
	var n int
	if err := sqlx.GetContext(ctx, r.q, &n, r.q.Rebind(query), bindAddress, port, excludeID); err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

// CreateListener inserts a new listener. Port collisions across all teams
// are conflicts.
func (r *queries) CreateListener(ctx context.Context, l *model.Listener) error {
	taken, err := r.portInUse(ctx, l.BindAddress, l.Port, "")
	if err != nil {
		return err
	}
	if taken {
		return errs.Conflict("address %s:%d is already bound by another listener", l.BindAddress, l.Port).
			WithDetail("bindAddress", l.BindAddress).
			WithDetail("port", l.Port)
	}

	if l.ID == "" {
		l.ID = model.ListenerID(model.NewUID())
	}
	ts := now()
	l.Version, l.CreatedAt, l.UpdatedAt = 1, ts, ts

	const insert = `
		INSERT INTO listeners (id, team, name, bind_address, port, protocol, spec, is_default, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.q.ExecContext(ctx, r.q.Rebind(insert),
		string(l.ID), l.Team, l.Name, l.BindAddress, l.Port, string(l.Protocol),
		string(model.MustEncode(l.Spec)), l.IsDefault, l.Version, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		if isConflict(err) {
			return errs.Conflict("listener %q already exists in team %q", l.Name, l.Team)
		}
		return translate(err)
	}
	return nil
}

// GetListenerByID loads one listener by id.
func (r *queries) GetListenerByID(ctx context.Context, id model.ListenerID) (*model.Listener, error) {
	var row listenerRow
	const query = `SELECT * FROM listeners WHERE id = ?`
	if err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(query), string(id)); err != nil {
		return nil, notFound(err, "listener", string(id))
	}
	return row.toModel()
}

// GetListenerByName loads one listener by (team, name).
func (r *queries) GetListenerByName(ctx context.Context, team, name string) (*model.Listener, error) {
	var row listenerRow
	const query = `SELECT * FROM listeners WHERE team = ? AND name = ?`
	if err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(query), team, name); err != nil {
		return nil, notFound(err, "listener", fmt.Sprintf("%s/%s", team, name))
	}
	return row.toModel()
}

// ListListeners returns listeners ordered by (created_at, id). An empty
// team lists across teams.
func (r *queries) ListListeners(ctx context.Context, team string, page model.ListPage) ([]*model.Listener, error) {
	page = page.Clamp()

	query := `SELECT * FROM listeners ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
	args := []any{page.Limit, page.Offset}
	if team != "" {
		query = `SELECT * FROM listeners WHERE team = ? ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
		args = []any{team, page.Limit, page.Offset}
	}

	var rows []listenerRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return nil, translate(err)
	}
	out := make([]*model.Listener, 0, len(rows))
	for _, row := range rows {
		l, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// UpdateListener writes the document if the caller's version is current.
// Rebinding to a taken address is a conflict; protected defaults refuse
// updates.
func (r *queries) UpdateListener(ctx context.Context, l *model.Listener) error {
	current, err := r.GetListenerByID(ctx, l.ID)
	if err != nil {
		return err
	}
	if current.IsDefault {
		return errs.Validation("listener %q is a protected default gateway resource", current.Name)
	}
	if current.BindAddress != l.BindAddress || current.Port != l.Port {
		taken, err := r.portInUse(ctx, l.BindAddress, l.Port, string(l.ID))
		if err != nil {
			return err
		}
		if taken {
			return errs.Conflict("address %s:%d is already bound by another listener", l.BindAddress, l.Port)
		}
	}

	ts := now()
	const update = `
		UPDATE listeners
		SET bind_address = ?, port = ?, protocol = ?, spec = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`
	res, err := r.q.ExecContext(ctx, r.q.Rebind(update),
		l.BindAddress, l.Port, string(l.Protocol), string(model.MustEncode(l.Spec)),
		ts, string(l.ID), l.Version)
	if err != nil {
		return translate(err)
	}
	if err := r.checkVersionedUpdate(ctx, res, "listeners", string(l.ID), l.Version); err != nil {
		return err
	}
	l.Version++
	l.UpdatedAt = ts
	return nil
}

// DeleteListener removes a listener unless an API definition still owns it
// or it is protected.
func (r *queries) DeleteListener(ctx context.Context, team, name string) (*model.Listener, error) {
	l, err := r.GetListenerByName(ctx, team, name)
	if err != nil {
		return nil, err
	}
	if l.IsDefault {
		return nil, errs.Validation("listener %q is a protected default gateway resource", name)
	}

	const refQuery = `SELECT domain FROM api_definitions WHERE listener_id = ? ORDER BY domain`
	var referents []string
	if err := sqlx.SelectContext(ctx, r.q, &referents, r.q.Rebind(refQuery), string(l.ID)); err != nil {
		return nil, translate(err)
	}
	if len(referents) > 0 {
		return nil, errs.InUse(fmt.Sprintf("listener %q is owned by %d api definition(s)", name, len(referents)), referents)
	}

	const del = `DELETE FROM listeners WHERE id = ?`
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(del), string(l.ID)); err != nil {
		return nil, translate(err)
	}
	return l, nil
}
