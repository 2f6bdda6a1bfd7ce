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
	"github.com/flowplane/flowplane/internal/model"
	"github.com/flowplane/flowplane/internal/store"
)

// CreateCluster stores a new upstream cluster.
func (s *Registry) CreateCluster(ctx context.Context, actor *auth.Context, c *model.Cluster) (*model.Cluster, error) {
	if err := auth.Authorize(actor, "clusters:write", c.Team); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.RequireWritableTeam(ctx, c.Team); err != nil {
			return err
		}
		if err := tx.CreateCluster(ctx, c); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, newAudit(actor, "cluster.created", "cluster", string(c.ID), nil, c))
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx)
	return c, nil
}

// GetCluster loads one cluster by team and name.
func (s *Registry) GetCluster(ctx context.Context, actor *auth.Context, team, name string) (*model.Cluster, error) {
	if err := auth.Authorize(actor, "clusters:read", team); err != nil {
		return nil, err
	}
	return s.store.GetClusterByName(ctx, team, name)
}

// ListClusters pages through a team's clusters, or all clusters when team
// is empty.
func (s *Registry) ListClusters(ctx context.Context, actor *auth.Context, team string, page model.ListPage) ([]*model.Cluster, error) {
	if err := auth.Authorize(actor, "clusters:read", team); err != nil {
		return nil, err
	}
	return s.store.ListClusters(ctx, team, page)
}

// UpdateCluster replaces the cluster document under optimistic concurrency.
func (s *Registry) UpdateCluster(ctx context.Context, actor *auth.Context, c *model.Cluster) (*model.Cluster, error) {
	if err := auth.Authorize(actor, "clusters:write", c.Team); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.RequireWritableTeam(ctx, c.Team); err != nil {
			return err
		}
		old, err := tx.GetClusterByName(ctx, c.Team, c.Name)
		if err != nil {
			return err
		}
		c.ID = old.ID
		if err := tx.UpdateCluster(ctx, c); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, newAudit(actor, "cluster.updated", "cluster", string(c.ID), old, c))
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx)
	return c, nil
}

// DeleteCluster removes a cluster. Deletion is refused with InUse while any
// route still targets it.
func (s *Registry) DeleteCluster(ctx context.Context, actor *auth.Context, team, name string) error {
	if err := auth.Authorize(actor, "clusters:write", team); err != nil {
		return err
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		deleted, err := tx.DeleteCluster(ctx, team, name)
		if err != nil {
			return err
		}
		return tx.AppendAudit(ctx, newAudit(actor, "cluster.deleted", "cluster", string(deleted.ID), deleted, nil))
	})
	if err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}
