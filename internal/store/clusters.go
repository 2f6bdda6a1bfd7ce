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

type clusterRow struct {
	ID          string    `db:"id"`
	Team        string    `db:"team"`
	Name        string    `db:"name"`
	ServiceName string    `db:"service_name"`
	Spec        string    `db:"spec"`
	IsDefault   bool      `db:"is_default"`
	Version     int64     `db:"version"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r clusterRow) toModel() (*model.Cluster, error) {
	c := &model.Cluster{
		ID:          model.ClusterID(r.ID),
		Team:        r.Team,
		Name:        r.Name,
		ServiceName: r.ServiceName,
		IsDefault:   r.IsDefault,
		Version:     r.Version,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(r.Spec), &c.Spec); err != nil {
		return nil, errs.Internal(err, "decoding cluster %q spec", r.Name)
	}
	return c, nil
}

// CreateCluster inserts a new cluster. The caller's document gains its id,
// version and timestamps.
func (r *queries) CreateCluster(ctx context.Context, c *model.Cluster) error {
	if c.ID == "" {
		c.ID = model.ClusterID(model.NewUID())
	}
	ts := now()
	c.Version, c.CreatedAt, c.UpdatedAt = 1, ts, ts

	const insert = `
		INSERT INTO clusters (id, team, name, service_name, spec, is_default, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, r.q.Rebind(insert),
		string(c.ID), c.Team, c.Name, c.ServiceName, string(model.MustEncode(c.Spec)),
		c.IsDefault, c.Version, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isConflict(err) {
			return errs.Conflict("cluster %q already exists in team %q", c.Name, c.Team)
		}
		return translate(err)
	}
	return nil
}

// GetClusterByID loads one cluster by id.
func (r *queries) GetClusterByID(ctx context.Context, id model.ClusterID) (*model.Cluster, error) {
	var row clusterRow
	const query = `SELECT * FROM clusters WHERE id = ?`
	if err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(query), string(id)); err != nil {
		return nil, notFound(err, "cluster", string(id))
	}
	return row.toModel()
}

// GetClusterByName loads one cluster by (team, name).
func (r *queries) GetClusterByName(ctx context.Context, team, name string) (*model.Cluster, error) {
	var row clusterRow
	const query = `SELECT * FROM clusters WHERE team = ? AND name = ?`
	if err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(query), team, name); err != nil {
		return nil, notFound(err, "cluster", fmt.Sprintf("%s/%s", team, name))
	}
	return row.toModel()
}

// ResolveCluster looks a cluster name up in the given team first and falls
// back to the shared default team. Cross-team references outside these two
// namespaces are not permitted.
func (r *queries) ResolveCluster(ctx context.Context, team, name string) (*model.Cluster, error) {
	c, err := r.GetClusterByName(ctx, team, name)
	if err == nil || !errs.IsKind(err, errs.KindNotFound) {
		return c, err
	}
	if team == model.DefaultTeam {
		return nil, err
	}
	c, derr := r.GetClusterByName(ctx, model.DefaultTeam, name)
	if derr != nil {
		// Report against the original namespace.
		return nil, err
	}
	return c, nil
}

// ListClusters returns clusters ordered by (created_at, id). An empty team
// lists across teams.
func (r *queries) ListClusters(ctx context.Context, team string, page model.ListPage) ([]*model.Cluster, error) {
	page = page.Clamp()

	query := `SELECT * FROM clusters ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
	args := []any{page.Limit, page.Offset}
	if team != "" {
		query = `SELECT * FROM clusters WHERE team = ? ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
		args = []any{team, page.Limit, page.Offset}
	}

	var rows []clusterRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return nil, translate(err)
	}
	out := make([]*model.Cluster, 0, len(rows))
	for _, row := range rows {
		c, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// UpdateCluster writes the document if the caller's version is current,
// bumping it. Protected default resources refuse updates.
func (r *queries) UpdateCluster(ctx context.Context, c *model.Cluster) error {
	current, err := r.GetClusterByID(ctx, c.ID)
	if err != nil {
		return err
	}
	if current.IsDefault {
		return errs.Validation("cluster %q is a protected default gateway resource", current.Name)
	}

	ts := now()
	const update = `
		UPDATE clusters
		SET service_name = ?, spec = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`
	res, err := r.q.ExecContext(ctx, r.q.Rebind(update),
		c.ServiceName, string(model.MustEncode(c.Spec)), ts, string(c.ID), c.Version)
	if err != nil {
		return translate(err)
	}
	if err := r.checkVersionedUpdate(ctx, res, "clusters", string(c.ID), c.Version); err != nil {
		return err
	}
	c.Version++
	c.UpdatedAt = ts
	return nil
}

// DeleteCluster removes a cluster unless routes still reference it or it is
// protected.
func (r *queries) DeleteCluster(ctx context.Context, team, name string) (*model.Cluster, error) {
	c, err := r.GetClusterByName(ctx, team, name)
	if err != nil {
		return nil, err
	}
	if c.IsDefault {
		return nil, errs.Validation("cluster %q is a protected default gateway resource", name)
	}

	referents, err := r.clusterReferents(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if len(referents) > 0 {
		return nil, errs.InUse(fmt.Sprintf("cluster %q is referenced by %d route(s)", name, len(referents)), referents)
	}

	const del = `DELETE FROM clusters WHERE id = ?`
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(del), string(c.ID)); err != nil {
		return nil, translate(err)
	}
	return c, nil
}

// clusterReferents names the routes that target the cluster, qualified by
// their route configuration and virtual host.
func (r *queries) clusterReferents(ctx context.Context, id model.ClusterID) ([]string, error) {
	const query = `
		SELECT rc.name || '/' || vh.name || '/' || rt.id
		FROM routes rt
		JOIN virtual_hosts vh ON vh.id = rt.virtual_host_id
		JOIN route_configs rc ON rc.id = vh.route_config_id
		WHERE rt.cluster_id = ?
		ORDER BY rc.name, vh.name, rt.id`
	var referents []string
	if err := sqlx.SelectContext(ctx, r.q, &referents, r.q.Rebind(query), string(id)); err != nil {
		return nil, translate(err)
	}
	return referents, nil
}
