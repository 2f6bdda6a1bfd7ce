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

// CreateListener stores a new listener. Port collisions across all teams
// surface as Conflict.
func (s *Registry) CreateListener(ctx context.Context, actor *auth.Context, l *model.Listener) (*model.Listener, error) {
	if err := auth.Authorize(actor, "listeners:write", l.Team); err != nil {
		return nil, err
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.RequireWritableTeam(ctx, l.Team); err != nil {
			return err
		}
		if err := tx.CreateListener(ctx, l); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, newAudit(actor, "listener.created", "listener", string(l.ID), nil, l))
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx)
	return l, nil
}

// GetListener loads one listener by team and name.
func (s *Registry) GetListener(ctx context.Context, actor *auth.Context, team, name string) (*model.Listener, error) {
	if err := auth.Authorize(actor, "listeners:read", team); err != nil {
		return nil, err
	}
	return s.store.GetListenerByName(ctx, team, name)
}

// ListListeners pages through a team's listeners, or all listeners when
// team is empty.
func (s *Registry) ListListeners(ctx context.Context, actor *auth.Context, team string, page model.ListPage) ([]*model.Listener, error) {
	if err := auth.Authorize(actor, "listeners:read", team); err != nil {
		return nil, err
	}
	return s.store.ListListeners(ctx, team, page)
}

// UpdateListener replaces the listener document under optimistic
// concurrency.
func (s *Registry) UpdateListener(ctx context.Context, actor *auth.Context, l *model.Listener) (*model.Listener, error) {
	if err := auth.Authorize(actor, "listeners:write", l.Team); err != nil {
		return nil, err
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.RequireWritableTeam(ctx, l.Team); err != nil {
			return err
		}
		old, err := tx.GetListenerByName(ctx, l.Team, l.Name)
		if err != nil {
			return err
		}
		l.ID = old.ID
		if err := tx.UpdateListener(ctx, l); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, newAudit(actor, "listener.updated", "listener", string(l.ID), old, l))
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx)
	return l, nil
}

// DeleteListener removes a listener.
func (s *Registry) DeleteListener(ctx context.Context, actor *auth.Context, team, name string) error {
	if err := auth.Authorize(actor, "listeners:write", team); err != nil {
		return err
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		deleted, err := tx.DeleteListener(ctx, team, name)
		if err != nil {
			return err
		}
		return tx.AppendAudit(ctx, newAudit(actor, "listener.deleted", "listener", string(deleted.ID), deleted, nil))
	})
	if err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}
