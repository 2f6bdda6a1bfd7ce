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

package service

import (
	"context"

	"github.com/flowplane/flowplane/internal/auth"
	"github.com/flowplane/flowplane/internal/errs"
	"github.com/flowplane/flowplane/internal/model"
	"github.com/flowplane/flowplane/internal/store"
)

// resolveRouteClusters checks that every route targets an existing cluster,
// resolving through the team with fallback to the shared default team, and
// records the resolved cluster id on the route.
func resolveRouteClusters(ctx context.Context, tx *store.Tx, team string, rc *model.RouteConfig) error {
	for vi := range rc.VirtualHosts {
		for ri := range rc.VirtualHosts[vi].Routes {
			rt := &rc.VirtualHosts[vi].Routes[ri]
			c, err := tx.ResolveCluster(ctx, team, rt.ClusterName)
			if err != nil {
				if errs.IsKind(err, errs.KindNotFound) {
					return errs.Validation("route targets unknown cluster %q", rt.ClusterName)
				}
				return err
			}
			rt.ClusterID = c.ID
		}
	}
	return nil
}

// CreateRouteConfig stores a routing table with its virtual hosts and
// routes.
func (s *Registry) CreateRouteConfig(ctx context.Context, actor *auth.Context, rc *model.RouteConfig) (*model.RouteConfig, error) {
	if err := auth.Authorize(actor, "routes:write", rc.Team); err != nil {
		return nil, err
	}
	if err := rc.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.RequireWritableTeam(ctx, rc.Team); err != nil {
			return err
		}
		if err := resolveRouteClusters(ctx, tx, rc.Team, rc); err != nil {
			return err
		}
		if err := tx.CreateRouteConfig(ctx, rc); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, newAudit(actor, "route_config.created", "route_config", string(rc.ID), nil, rc))
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx)
	return rc, nil
}

// GetRouteConfig loads one routing table, fully assembled.
func (s *Registry) GetRouteConfig(ctx context.Context, actor *auth.Context, team, name string) (*model.RouteConfig, error) {
	if err := auth.Authorize(actor, "routes:read", team); err != nil {
		return nil, err
	}
	return s.store.GetRouteConfigByName(ctx, team, name)
}

// ListRouteConfigs pages through a team's routing tables, or all when team
// is empty.
func (s *Registry) ListRouteConfigs(ctx context.Context, actor *auth.Context, team string, page model.ListPage) ([]*model.RouteConfig, error) {
	if err := auth.Authorize(actor, "routes:read", team); err != nil {
		return nil, err
	}
	return s.store.ListRouteConfigs(ctx, team, page)
}

// UpdateRouteConfig replaces the whole routing table document, virtual
// hosts and routes included.
func (s *Registry) UpdateRouteConfig(ctx context.Context, actor *auth.Context, rc *model.RouteConfig) (*model.RouteConfig, error) {
	if err := auth.Authorize(actor, "routes:write", rc.Team); err != nil {
		return nil, err
	}
	if err := rc.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.RequireWritableTeam(ctx, rc.Team); err != nil {
			return err
		}
		old, err := tx.GetRouteConfigByName(ctx, rc.Team, rc.Name)
		if err != nil {
			return err
		}
		rc.ID = old.ID
		if err := resolveRouteClusters(ctx, tx, rc.Team, rc); err != nil {
			return err
		}
		if err := tx.UpdateRouteConfig(ctx, rc); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, newAudit(actor, "route_config.updated", "route_config", string(rc.ID), old, rc))
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx)
	return rc, nil
}

// DeleteRouteConfig removes a routing table and cascades to its virtual
// hosts, routes and route-scope filter attachments.
func (s *Registry) DeleteRouteConfig(ctx context.Context, actor *auth.Context, team, name string) error {
	if err := auth.Authorize(actor, "routes:write", team); err != nil {
		return err
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		deleted, err := tx.DeleteRouteConfig(ctx, team, name)
		if err != nil {
			return err
		}
		return tx.AppendAudit(ctx, newAudit(actor, "route_config.deleted", "route_config", string(deleted.ID), deleted, nil))
	})
	if err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}
