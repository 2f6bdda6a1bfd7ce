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

// CreateTeam provisions a new tenancy boundary. Teams are global resources;
// team-scoped tokens cannot create them.
func (s *Registry) CreateTeam(ctx context.Context, actor *auth.Context, t *model.Team) (*model.Team, error) {
	if err := auth.Authorize(actor, "teams:write", ""); err != nil {
		return nil, err
	}
	if t.Status == "" {
		t.Status = model.TeamActive
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateTeam(ctx, t); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, newAudit(actor, "team.created", "team", string(t.ID), nil, t))
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx)
	return t, nil
}

// GetTeam loads one team by name.
func (s *Registry) GetTeam(ctx context.Context, actor *auth.Context, name string) (*model.Team, error) {
	if err := auth.Authorize(actor, "teams:read", name); err != nil {
		return nil, err
	}
	return s.store.GetTeamByName(ctx, name)
}

// ListTeams pages through all teams.
func (s *Registry) ListTeams(ctx context.Context, actor *auth.Context, page model.ListPage) ([]*model.Team, error) {
	if err := auth.Authorize(actor, "teams:read", ""); err != nil {
		return nil, err
	}
	return s.store.ListTeams(ctx, page)
}

// UpdateTeam patches display name, owner and status. Status transitions
// follow the lifecycle: active and suspended flip freely, archived is
// terminal.
func (s *Registry) UpdateTeam(ctx context.Context, actor *auth.Context, t *model.Team) (*model.Team, error) {
	if err := auth.Authorize(actor, "teams:write", ""); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Name == model.DefaultTeam && t.Status != model.TeamActive {
		return nil, errs.Validation("the default team cannot be suspended or archived")
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		old, err := tx.GetTeamByName(ctx, t.Name)
		if err != nil {
			return err
		}
		if old.Status != t.Status && !old.Status.CanTransitionTo(t.Status) {
			return errs.Validation("team status cannot move from %q to %q", old.Status, t.Status)
		}
		t.ID = old.ID
		if err := tx.UpdateTeam(ctx, t); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, newAudit(actor, "team.updated", "team", string(t.ID), old, t))
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx)
	return t, nil
}
