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
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/flowplane/flowplane/internal/errs"
	"github.com/flowplane/flowplane/internal/model"
)

type routeConfigRow struct {
	ID        string    `db:"id"`
	Team      string    `db:"team"`
	Name      string    `db:"name"`
	IsDefault bool      `db:"is_default"`
	Version   int64     `db:"version"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type virtualHostRow struct {
	ID            string    `db:"id"`
	RouteConfigID string    `db:"route_config_id"`
	Name          string    `db:"name"`
	Domains       string    `db:"domains"`
	RuleOrder     int64     `db:"rule_order"`
	CreatedAt     time.Time `db:"created_at"`
}

type routeRow struct {
	ID             string         `db:"id"`
	VirtualHostID  string         `db:"virtual_host_id"`
	Name           string         `db:"name"`
	PathType       string         `db:"path_type"`
	Path           string         `db:"path"`
	Headers        string         `db:"headers"`
	Methods        string         `db:"methods"`
	ClusterID      string         `db:"cluster_id"`
	ClusterName    string         `db:"cluster_name"`
	RuleOrder      int64          `db:"rule_order"`
	TimeoutSeconds uint32         `db:"timeout_seconds"`
	PrefixRewrite  string         `db:"prefix_rewrite"`
	HostRewrite    string         `db:"host_rewrite"`
	Overrides      sql.NullString `db:"overrides"`
	Version        int64          `db:"version"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (r routeConfigRow) toModel() *model.RouteConfig {
	return &model.RouteConfig{
		ID:        model.RouteConfigID(r.ID),
		Team:      r.Team,
		Name:      r.Name,
		IsDefault: r.IsDefault,
		Version:   r.Version,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (r virtualHostRow) toModel() (*model.VirtualHost, error) {
	vh := &model.VirtualHost{
		ID:            model.VirtualHostID(r.ID),
		RouteConfigID: model.RouteConfigID(r.RouteConfigID),
		Name:          r.Name,
		RuleOrder:     r.RuleOrder,
		CreatedAt:     r.CreatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(r.Domains), &vh.Domains); err != nil {
		return nil, errs.Internal(err, "decoding virtual host %q domains", r.Name)
	}
	return vh, nil
}

func (r routeRow) toModel() (*model.Route, error) {
	rt := &model.Route{
		ID:             model.RouteID(r.ID),
		VirtualHostID:  model.VirtualHostID(r.VirtualHostID),
		Name:           r.Name,
		ClusterID:      model.ClusterID(r.ClusterID),
		ClusterName:    r.ClusterName,
		RuleOrder:      r.RuleOrder,
		TimeoutSeconds: r.TimeoutSeconds,
		PrefixRewrite:  r.PrefixRewrite,
		HostRewrite:    r.HostRewrite,
		Version:        r.Version,
		CreatedAt:      r.CreatedAt.UTC(),
	}
	rt.Match.PathType = model.PathMatchType(r.PathType)
	rt.Match.Path = r.Path
	if err := json.Unmarshal([]byte(r.Headers), &rt.Match.Headers); err != nil {
		return nil, errs.Internal(err, "decoding route %s header matchers", r.ID)
	}
	if err := json.Unmarshal([]byte(r.Methods), &rt.Match.Methods); err != nil {
		return nil, errs.Internal(err, "decoding route %s methods", r.ID)
	}
	if r.Overrides.Valid && r.Overrides.String != "" {
		rt.Overrides = &model.FilterOverrides{}
		if err := json.Unmarshal([]byte(r.Overrides.String), rt.Overrides); err != nil {
			return nil, errs.Internal(err, "decoding route %s overrides", r.ID)
		}
	}
	return rt, nil
}

// CreateRouteConfig inserts a route configuration with its nested virtual
// hosts and routes, resolving route cluster references as it goes.
func (r *queries) CreateRouteConfig(ctx context.Context, rc *model.RouteConfig) error {
	if rc.ID == "" {
		rc.ID = model.RouteConfigID(model.NewUID())
	}
	ts := now()
	rc.Version, rc.CreatedAt, rc.UpdatedAt = 1, ts, ts

	const insert = `
		INSERT INTO route_configs (id, team, name, is_default, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, r.q.Rebind(insert),
		string(rc.ID), rc.Team, rc.Name, rc.IsDefault, rc.Version, rc.CreatedAt, rc.UpdatedAt)
	if err != nil {
		if isConflict(err) {
			return errs.Conflict("route configuration %q already exists in team %q", rc.Name, rc.Team)
		}
		return translate(err)
	}

	for i := range rc.VirtualHosts {
		if err := r.insertVirtualHost(ctx, rc.Team, rc.ID, &rc.VirtualHosts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *queries) insertVirtualHost(ctx context.Context, team string, rcID model.RouteConfigID, vh *model.VirtualHost) error {
	if vh.ID == "" {
		vh.ID = model.VirtualHostID(model.NewUID())
	}
	vh.RouteConfigID = rcID
	vh.CreatedAt = now()

	const insert = `
		INSERT INTO virtual_hosts (id, route_config_id, name, domains, rule_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, r.q.Rebind(insert),
		string(vh.ID), string(rcID), vh.Name, string(model.MustEncode(vh.Domains)),
		vh.RuleOrder, vh.CreatedAt)
	if err != nil {
		if isConflict(err) {
			return errs.Conflict("virtual host %q already exists in this route configuration", vh.Name)
		}
		return translate(err)
	}

	for i := range vh.Routes {
		if err := r.insertRoute(ctx, team, vh.ID, &vh.Routes[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *queries) insertRoute(ctx context.Context, team string, vhID model.VirtualHostID, rt *model.Route) error {
	cluster, err := r.ResolveCluster(ctx, team, rt.ClusterName)
	if err != nil {
		return err
	}
	rt.ClusterID = cluster.ID

	if rt.ID == "" {
		rt.ID = model.RouteID(model.NewUID())
	}
	rt.VirtualHostID = vhID
	rt.Version = 1
	rt.CreatedAt = now()

	var overrides sql.NullString
	if !rt.Overrides.Empty() {
		overrides = sql.NullString{String: string(model.MustEncode(rt.Overrides)), Valid: true}
	}

	headers := rt.Match.Headers
	if headers == nil {
		headers = []model.HeaderMatch{}
	}
	methods := rt.Match.Methods
	if methods == nil {
		methods = []string{}
	}

	const insert = `
		INSERT INTO routes (id, virtual_host_id, name, path_type, path, headers, methods,
			cluster_id, cluster_name, rule_order, timeout_seconds, prefix_rewrite, host_rewrite,
			overrides, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.q.ExecContext(ctx, r.q.Rebind(insert),
		string(rt.ID), string(vhID), rt.Name, string(rt.Match.PathType), rt.Match.Path,
		string(model.MustEncode(headers)), string(model.MustEncode(methods)),
		string(rt.ClusterID), rt.ClusterName, rt.RuleOrder, rt.TimeoutSeconds,
		rt.PrefixRewrite, rt.HostRewrite, overrides, rt.Version, rt.CreatedAt)
	return translate(err)
}

// assembleRouteConfigs loads the virtual hosts and routes of the given
// route configurations in two queries.
func (r *queries) assembleRouteConfigs(ctx context.Context, rcs []*model.RouteConfig) error {
	if len(rcs) == 0 {
		return nil
	}

	rcIDs := make([]string, len(rcs))
	byID := make(map[string]*model.RouteConfig, len(rcs))
	for i, rc := range rcs {
		rcIDs[i] = string(rc.ID)
		byID[string(rc.ID)] = rc
		rc.VirtualHosts = nil
	}

	query, args, err := sqlx.In(`
		SELECT * FROM virtual_hosts WHERE route_config_id IN (?)
		ORDER BY rule_order ASC, name ASC`, rcIDs)
	if err != nil {
		return translate(err)
	}
	var vhRows []virtualHostRow
	if err := sqlx.SelectContext(ctx, r.q, &vhRows, r.q.Rebind(query), args...); err != nil {
		return translate(err)
	}
	if len(vhRows) == 0 {
		return nil
	}

	vhIDs := make([]string, len(vhRows))
	for i, row := range vhRows {
		vhIDs[i] = row.ID
	}
	query, args, err = sqlx.In(`
		SELECT * FROM routes WHERE virtual_host_id IN (?)
		ORDER BY rule_order ASC, created_at ASC, id ASC`, vhIDs)
	if err != nil {
		return translate(err)
	}
	var rtRows []routeRow
	if err := sqlx.SelectContext(ctx, r.q, &rtRows, r.q.Rebind(query), args...); err != nil {
		return translate(err)
	}

	routesByVH := make(map[string][]model.Route)
	for _, row := range rtRows {
		rt, err := row.toModel()
		if err != nil {
			return err
		}
		routesByVH[row.VirtualHostID] = append(routesByVH[row.VirtualHostID], *rt)
	}

	for _, row := range vhRows {
		vh, err := row.toModel()
		if err != nil {
			return err
		}
		vh.Routes = routesByVH[row.ID]
		rc := byID[row.RouteConfigID]
		rc.VirtualHosts = append(rc.VirtualHosts, *vh)
	}
	return nil
}

// GetRouteConfigByID loads one route configuration with its nested rows.
func (r *queries) GetRouteConfigByID(ctx context.Context, id model.RouteConfigID) (*model.RouteConfig, error) {
	var row routeConfigRow
	const query = `SELECT * FROM route_configs WHERE id = ?`
	if err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(query), string(id)); err != nil {
		return nil, notFound(err, "route configuration", string(id))
	}
	rc := row.toModel()
	if err := r.assembleRouteConfigs(ctx, []*model.RouteConfig{rc}); err != nil {
		return nil, err
	}
	return rc, nil
}

// GetRouteConfigByName loads one route configuration by (team, name).
func (r *queries) GetRouteConfigByName(ctx context.Context, team, name string) (*model.RouteConfig, error) {
	var row routeConfigRow
	const query = `SELECT * FROM route_configs WHERE team = ? AND name = ?`
	if err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(query), team, name); err != nil {
		return nil, notFound(err, "route configuration", fmt.Sprintf("%s/%s", team, name))
	}
	rc := row.toModel()
	if err := r.assembleRouteConfigs(ctx, []*model.RouteConfig{rc}); err != nil {
		return nil, err
	}
	return rc, nil
}

// ListRouteConfigs returns assembled route configurations ordered by
// (created_at, id).
func (r *queries) ListRouteConfigs(ctx context.Context, team string, page model.ListPage) ([]*model.RouteConfig, error) {
	page = page.Clamp()

	query := `SELECT * FROM route_configs ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
	args := []any{page.Limit, page.Offset}
	if team != "" {
		query = `SELECT * FROM route_configs WHERE team = ? ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
		args = []any{team, page.Limit, page.Offset}
	}

	var rows []routeConfigRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return nil, translate(err)
	}
	out := make([]*model.RouteConfig, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	if err := r.assembleRouteConfigs(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateRouteConfig replaces the route table under optimistic concurrency.
// Existing virtual hosts and routes are dropped and re-created, so per-route
// and per-virtual-host filter attachments of the old rows are purged with
// them.
func (r *queries) UpdateRouteConfig(ctx context.Context, rc *model.RouteConfig) error {
	current, err := r.GetRouteConfigByID(ctx, rc.ID)
	if err != nil {
		return err
	}
	if current.IsDefault {
		return errs.Validation("route configuration %q is a protected default gateway resource", current.Name)
	}

	ts := now()
	const update = `
		UPDATE route_configs SET version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`
	res, err := r.q.ExecContext(ctx, r.q.Rebind(update), ts, string(rc.ID), rc.Version)
	if err != nil {
		return translate(err)
	}
	if err := r.checkVersionedUpdate(ctx, res, "route_configs", string(rc.ID), rc.Version); err != nil {
		return err
	}

	if err := r.dropRouteConfigChildren(ctx, current); err != nil {
		return err
	}
	for i := range rc.VirtualHosts {
		if err := r.insertVirtualHost(ctx, current.Team, rc.ID, &rc.VirtualHosts[i]); err != nil {
			return err
		}
	}
	rc.Version++
	rc.UpdatedAt = ts
	return nil
}

// dropRouteConfigChildren deletes the nested rows of a route configuration
// along with filter attachments that pointed at them.
func (r *queries) dropRouteConfigChildren(ctx context.Context, rc *model.RouteConfig) error {
	var targets []string
	for i := range rc.VirtualHosts {
		vh := &rc.VirtualHosts[i]
		targets = append(targets, string(vh.ID))
		for j := range vh.Routes {
			targets = append(targets, string(vh.Routes[j].ID))
		}
	}
	if err := r.purgeAttachments(ctx, targets); err != nil {
		return err
	}

	const del = `DELETE FROM virtual_hosts WHERE route_config_id = ?`
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(del), string(rc.ID)); err != nil {
		return translate(err)
	}
	return nil
}

func (r *queries) purgeAttachments(ctx context.Context, targetIDs []string) error {
	if len(targetIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM filter_attachments WHERE target_id IN (?)`, targetIDs)
	if err != nil {
		return translate(err)
	}
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(query), args...); err != nil {
		return translate(err)
	}
	return nil
}

// DeleteRouteConfig removes a route configuration and, by cascade, its
// virtual hosts and routes. Listeners and API definitions that still
// reference it block the delete.
func (r *queries) DeleteRouteConfig(ctx context.Context, team, name string) (*model.RouteConfig, error) {
	rc, err := r.GetRouteConfigByName(ctx, team, name)
	if err != nil {
		return nil, err
	}
	if rc.IsDefault {
		return nil, errs.Validation("route configuration %q is a protected default gateway resource", name)
	}

	referents, err := r.routeConfigReferents(ctx, rc)
	if err != nil {
		return nil, err
	}
	if len(referents) > 0 {
		return nil, errs.InUse(fmt.Sprintf("route configuration %q is still referenced", name), referents)
	}

	if err := r.dropRouteConfigChildren(ctx, rc); err != nil {
		return nil, err
	}
	if err := r.purgeAttachments(ctx, []string{string(rc.ID)}); err != nil {
		return nil, err
	}
	const del = `DELETE FROM route_configs WHERE id = ?`
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(del), string(rc.ID)); err != nil {
		return nil, translate(err)
	}
	return rc, nil
}

// routeConfigReferents lists listeners whose spec serves this route
// configuration and API definitions materialized onto it.
func (r *queries) routeConfigReferents(ctx context.Context, rc *model.RouteConfig) ([]string, error) {
	listeners, err := r.ListListeners(ctx, "", model.ListPage{Limit: model.MaxListLimit})
	if err != nil {
		return nil, err
	}
	var referents []string
	for _, l := range listeners {
		if l.Spec.RouteConfigName == rc.Name {
			referents = append(referents, "listener/"+l.Team+"/"+l.Name)
		}
	}

	const query = `SELECT domain FROM api_definitions WHERE route_config_id = ? ORDER BY domain`
	var domains []string
	if err := sqlx.SelectContext(ctx, r.q, &domains, r.q.Rebind(query), string(rc.ID)); err != nil {
		return nil, translate(err)
	}
	for _, d := range domains {
		referents = append(referents, "api-definition/"+d)
	}
	return referents, nil
}

// AddVirtualHost appends a virtual host to an existing route configuration
// and bumps its version. The platform materializer uses it to graft API
// domains onto shared route tables, including the protected default.
func (r *queries) AddVirtualHost(ctx context.Context, rc *model.RouteConfig, vh *model.VirtualHost) error {
	if err := r.insertVirtualHost(ctx, rc.Team, rc.ID, vh); err != nil {
		return err
	}
	return r.touchRouteConfig(ctx, rc.ID)
}

// AppendRoute adds one route to an existing virtual host and bumps the
// owning route configuration's version.
func (r *queries) AppendRoute(ctx context.Context, team string, vh *model.VirtualHost, rt *model.Route) error {
	if err := r.insertRoute(ctx, team, vh.ID, rt); err != nil {
		return err
	}
	return r.touchRouteConfig(ctx, vh.RouteConfigID)
}

// RemoveVirtualHost drops one virtual host, its routes and their
// attachments, bumping the owning route configuration's version.
func (r *queries) RemoveVirtualHost(ctx context.Context, vh *model.VirtualHost) error {
	targets := []string{string(vh.ID)}
	for i := range vh.Routes {
		targets = append(targets, string(vh.Routes[i].ID))
	}
	if err := r.purgeAttachments(ctx, targets); err != nil {
		return err
	}
	const del = `DELETE FROM virtual_hosts WHERE id = ?`
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(del), string(vh.ID)); err != nil {
		return translate(err)
	}
	return r.touchRouteConfig(ctx, vh.RouteConfigID)
}

func (r *queries) touchRouteConfig(ctx context.Context, id model.RouteConfigID) error {
	const update = `UPDATE route_configs SET version = version + 1, updated_at = ? WHERE id = ?`
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(update), now(), string(id)); err != nil {
		return translate(err)
	}
	return nil
}
