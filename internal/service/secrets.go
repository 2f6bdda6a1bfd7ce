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

// CreateSecret stores a secret. Inline material is encrypted at rest by the
// store; audit rows only ever carry the redacted form.
func (s *Registry) CreateSecret(ctx context.Context, actor *auth.Context, sec *model.Secret) (*model.Secret, error) {
	if err := auth.Authorize(actor, "secrets:write", sec.Team); err != nil {
		return nil, err
	}
	if err := sec.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.RequireWritableTeam(ctx, sec.Team); err != nil {
			return err
		}
		if err := tx.CreateSecret(ctx, sec); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, newAudit(actor, "secret.created", "secret", string(sec.ID), nil, sec.Redacted()))
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx)
	return sec, nil
}

// GetSecret loads one secret by team and name, redacted. The compiler is
// the only consumer of cleartext material and reads through the snapshot
// instead.
func (s *Registry) GetSecret(ctx context.Context, actor *auth.Context, team, name string) (*model.Secret, error) {
	if err := auth.Authorize(actor, "secrets:read", team); err != nil {
		return nil, err
	}
	sec, err := s.store.GetSecretByName(ctx, team, name)
	if err != nil {
		return nil, err
	}
	return sec.Redacted(), nil
}

// ListSecrets pages through a team's secrets, redacted.
func (s *Registry) ListSecrets(ctx context.Context, actor *auth.Context, team string, page model.ListPage) ([]*model.Secret, error) {
	if err := auth.Authorize(actor, "secrets:read", team); err != nil {
		return nil, err
	}
	secs, err := s.store.ListSecrets(ctx, team, page)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Secret, len(secs))
	for i, sec := range secs {
		out[i] = sec.Redacted()
	}
	return out, nil
}

// UpdateSecret replaces the secret document under optimistic concurrency.
func (s *Registry) UpdateSecret(ctx context.Context, actor *auth.Context, sec *model.Secret) (*model.Secret, error) {
	if err := auth.Authorize(actor, "secrets:write", sec.Team); err != nil {
		return nil, err
	}
	if err := sec.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.RequireWritableTeam(ctx, sec.Team); err != nil {
			return err
		}
		old, err := tx.GetSecretByName(ctx, sec.Team, sec.Name)
		if err != nil {
			return err
		}
		sec.ID = old.ID
		if err := tx.UpdateSecret(ctx, sec); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, newAudit(actor, "secret.updated", "secret", string(sec.ID), old.Redacted(), sec.Redacted()))
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx)
	return sec, nil
}

// DeleteSecret removes a secret. Deletion is refused with InUse while a
// listener or cluster references it.
func (s *Registry) DeleteSecret(ctx context.Context, actor *auth.Context, team, name string) error {
	if err := auth.Authorize(actor, "secrets:write", team); err != nil {
		return err
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		deleted, err := tx.DeleteSecret(ctx, team, name)
		if err != nil {
			return err
		}
		return tx.AppendAudit(ctx, newAudit(actor, "secret.deleted", "secret", string(deleted.ID), deleted.Redacted(), nil))
	})
	if err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}
