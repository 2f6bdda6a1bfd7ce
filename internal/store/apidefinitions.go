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
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/flowplane/flowplane/internal/errs"
	"github.com/flowplane/flowplane/internal/model"
)

type apiDefinitionRow struct {
	ID                string         `db:"id"`
	Team              string         `db:"team"`
	Domain            string         `db:"domain"`
	ListenerIsolation bool           `db:"listener_isolation"`
	TLS               sql.NullString `db:"tls"`
	Isolation         sql.NullString `db:"isolation"`
	Routes            string         `db:"routes"`
	ListenerID        sql.NullString `db:"listener_id"`
	RouteConfigID     sql.NullString `db:"route_config_id"`
	BootstrapURI      string         `db:"bootstrap_uri"`
	Version           int64          `db:"version"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func (r apiDefinitionRow) toModel() (*model.APIDefinition, error) {
	d := &model.APIDefinition{
		ID:                model.APIDefinitionID(r.ID),
		Team:              r.Team,
		Domain:            r.Domain,
		ListenerIsolation: r.ListenerIsolation,
		ListenerID:        model.ListenerID(r.ListenerID.String),
		RouteConfigID:     model.RouteConfigID(r.RouteConfigID.String),
		BootstrapURI:      r.BootstrapURI,
		Version:           r.Version,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(r.Routes), &d.Routes); err != nil {
		return nil, errs.Internal(err, "decoding api definition %q routes", r.Domain)
	}
	if r.TLS.Valid && r.TLS.String != "" {
		d.TLS = &model.ListenerTLS{}
		if err := json.Unmarshal([]byte(r.TLS.String), d.TLS); err != nil {
			return nil, errs.Internal(err, "decoding api definition %q tls", r.Domain)
		}
	}
	if r.Isolation.Valid && r.Isolation.String != "" {
		d.Isolation = &model.IsolationSpec{}
		if err := json.Unmarshal([]byte(r.Isolation.String), d.Isolation); err != nil {
			return nil, errs.Internal(err, "decoding api definition %q isolation", r.Domain)
		}
	}
	return d, nil
}

func nullDoc(v any) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(model.MustEncode(v)), Valid: true}
}

func nullID(id string) sql.NullString {
	if id == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: id, Valid: true}
}

// EnsureDomainAvailable fails with Conflict when the domain is already
// claimed. Non-isolated definitions share the default gateway listener, so
// their domains must be unique across every team; isolated definitions
// only collide within their own team.
func (r *queries) EnsureDomainAvailable(ctx context.Context, team, domain string, isolated bool) error {
	query := `SELECT team FROM api_definitions WHERE domain = ? AND listener_isolation = FALSE`
	args := []any{domain}
	if isolated {
		query = `SELECT team FROM api_definitions WHERE domain = ? AND team = ?`
		args = []any{domain, team}
	}

	var owners []string
	if err := sqlx.SelectContext(ctx, r.q, &owners, r.q.Rebind(query), args...); err != nil {
		return translate(err)
	}
	if len(owners) > 0 {
		return errs.Conflict("domain %q is already claimed by team %q", domain, owners[0]).
			WithDetail("domain", domain)
	}
	return nil
}

// EnsureRouteAvailable fails with Conflict when the virtual host already
// carries a route with the same (match type, match value, method set).
func (r *queries) EnsureRouteAvailable(ctx context.Context, vhID model.VirtualHostID, pathType model.PathMatchType, path string, methods []string) error {
	const query = `SELECT * FROM routes WHERE virtual_host_id = ?`
	var rows []routeRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), string(vhID)); err != nil {
		return translate(err)
	}

	want := (&model.APIRoute{PathType: pathType, Path: path, Methods: methods}).RouteKey()
	for _, row := range rows {
		rt, err := row.toModel()
		if err != nil {
			return err
		}
		have := (&model.APIRoute{
			PathType: rt.Match.PathType,
			Path:     rt.Match.Path,
			Methods:  rt.Match.Methods,
		}).RouteKey()
		if have == want {
			return errs.Conflict("route %s %s already exists in this virtual host", pathType, path).
				WithDetail("path", path).
				WithDetail("pathType", string(pathType))
		}
	}
	return nil
}

// CreateAPIDefinition inserts a definition row. Collision predicates run
// before this within the same transaction; the partial unique index backs
// them up.
func (r *queries) CreateAPIDefinition(ctx context.Context, d *model.APIDefinition) error {
	if d.ID == "" {
		d.ID = model.APIDefinitionID(model.NewUID())
	}
	ts := now()
	d.Version, d.CreatedAt, d.UpdatedAt = 1, ts, ts

	const insert = `
		INSERT INTO api_definitions
			(id, team, domain, listener_isolation, tls, isolation, routes, listener_id, route_config_id, bootstrap_uri, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, r.q.Rebind(insert),
		string(d.ID), d.Team, d.Domain, d.ListenerIsolation,
		nullDoc(d.TLS), nullDoc(d.Isolation), string(model.MustEncode(d.Routes)),
		nullID(string(d.ListenerID)), nullID(string(d.RouteConfigID)), d.BootstrapURI,
		d.Version, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if isConflict(err) {
			return errs.Conflict("api definition for domain %q already exists", d.Domain)
		}
		return translate(err)
	}
	return nil
}

// GetAPIDefinitionByID loads one definition by id.
func (r *queries) GetAPIDefinitionByID(ctx context.Context, id model.APIDefinitionID) (*model.APIDefinition, error) {
	var row apiDefinitionRow
	const query = `SELECT * FROM api_definitions WHERE id = ?`
	if err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(query), string(id)); err != nil {
		return nil, notFound(err, "api definition", string(id))
	}
	return row.toModel()
}

// GetAPIDefinitionByDomain loads one definition by (team, domain).
func (r *queries) GetAPIDefinitionByDomain(ctx context.Context, team, domain string) (*model.APIDefinition, error) {
	var row apiDefinitionRow
	const query = `SELECT * FROM api_definitions WHERE team = ? AND domain = ?`
	if err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(query), team, domain); err != nil {
		return nil, notFound(err, "api definition", team+"/"+domain)
	}
	return row.toModel()
}

// ListAPIDefinitions returns definitions ordered by (created_at, id). An
// empty team lists across teams.
func (r *queries) ListAPIDefinitions(ctx context.Context, team string, page model.ListPage) ([]*model.APIDefinition, error) {
	page = page.Clamp()

	query := `SELECT * FROM api_definitions ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
	args := []any{page.Limit, page.Offset}
	if team != "" {
		query = `SELECT * FROM api_definitions WHERE team = ? ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
		args = []any{team, page.Limit, page.Offset}
	}

	var rows []apiDefinitionRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return nil, translate(err)
	}
	out := make([]*model.APIDefinition, 0, len(rows))
	for _, row := range rows {
		d, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// UpdateAPIDefinition writes the declarative document and materialized
// resource identifiers under optimistic concurrency.
func (r *queries) UpdateAPIDefinition(ctx context.Context, d *model.APIDefinition) error {
	ts := now()
	const update = `
		UPDATE api_definitions
		SET tls = ?, isolation = ?, routes = ?, listener_id = ?, route_config_id = ?, bootstrap_uri = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`
	res, err := r.q.ExecContext(ctx, r.q.Rebind(update),
		nullDoc(d.TLS), nullDoc(d.Isolation), string(model.MustEncode(d.Routes)),
		nullID(string(d.ListenerID)), nullID(string(d.RouteConfigID)), d.BootstrapURI,
		ts, string(d.ID), d.Version)
	if err != nil {
		return translate(err)
	}
	if err := r.checkVersionedUpdate(ctx, res, "api_definitions", string(d.ID), d.Version); err != nil {
		return err
	}
	d.Version++
	d.UpdatedAt = ts
	return nil
}

// DeleteAPIDefinition removes the definition row. The materializer is
// responsible for tearing down the resources it produced.
func (r *queries) DeleteAPIDefinition(ctx context.Context, id model.APIDefinitionID) (*model.APIDefinition, error) {
	d, err := r.GetAPIDefinitionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	const del = `DELETE FROM api_definitions WHERE id = ?`
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(del), string(id)); err != nil {
		return nil, translate(err)
	}
	return d, nil
}
