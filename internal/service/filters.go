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

// CreateFilter stores a reusable HTTP filter definition.
func (s *Registry) CreateFilter(ctx context.Context, actor *auth.Context, f *model.Filter) (*model.Filter, error) {
	if err := auth.Authorize(actor, "filters:write", f.Team); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.RequireWritableTeam(ctx, f.Team); err != nil {
			return err
		}
		if err := tx.CreateFilter(ctx, f); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, newAudit(actor, "filter.created", "filter", string(f.ID), nil, f))
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx)
	return f, nil
}

// GetFilter loads one filter by team and name.
func (s *Registry) GetFilter(ctx context.Context, actor *auth.Context, team, name string) (*model.Filter, error) {
	if err := auth.Authorize(actor, "filters:read", team); err != nil {
		return nil, err
	}
	return s.store.GetFilterByName(ctx, team, name)
}

// ListFilters pages through a team's filters, or all filters when team is
// empty.
func (s *Registry) ListFilters(ctx context.Context, actor *auth.Context, team string, page model.ListPage) ([]*model.Filter, error) {
	if err := auth.Authorize(actor, "filters:read", team); err != nil {
		return nil, err
	}
	return s.store.ListFilters(ctx, team, page)
}

// UpdateFilter replaces the filter configuration. The filter type is
// immutable once created.
func (s *Registry) UpdateFilter(ctx context.Context, actor *auth.Context, f *model.Filter) (*model.Filter, error) {
	if err := auth.Authorize(actor, "filters:write", f.Team); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.RequireWritableTeam(ctx, f.Team); err != nil {
			return err
		}
		old, err := tx.GetFilterByName(ctx, f.Team, f.Name)
		if err != nil {
			return err
		}
		f.ID = old.ID
		if err := tx.UpdateFilter(ctx, f); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, newAudit(actor, "filter.updated", "filter", string(f.ID), old, f))
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx)
	return f, nil
}

// DeleteFilter removes a filter. Deletion is refused with InUse while
// attachments reference it.
func (s *Registry) DeleteFilter(ctx context.Context, actor *auth.Context, team, name string) error {
	if err := auth.Authorize(actor, "filters:write", team); err != nil {
		return err
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		deleted, err := tx.DeleteFilter(ctx, team, name)
		if err != nil {
			return err
		}
		return tx.AppendAudit(ctx, newAudit(actor, "filter.deleted", "filter", string(deleted.ID), deleted, nil))
	})
	if err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}

// AttachFilter binds a filter to a listener, route configuration, virtual
// host or route.
func (s *Registry) AttachFilter(ctx context.Context, actor *auth.Context, team string, a *model.FilterAttachment) (*model.FilterAttachment, error) {
	if err := auth.Authorize(actor, "filters:write", team); err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.RequireWritableTeam(ctx, team); err != nil {
			return err
		}
		if err := tx.AttachFilter(ctx, a); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, newAudit(actor, "filter.attached", "filter_attachment", string(a.ID), nil, a))
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx)
	return a, nil
}

// DetachFilter removes one attachment.
func (s *Registry) DetachFilter(ctx context.Context, actor *auth.Context, team string, id model.AttachmentID) error {
	if err := auth.Authorize(actor, "filters:write", team); err != nil {
		return err
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.DetachFilter(ctx, id); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, newAudit(actor, "filter.detached", "filter_attachment", string(id), nil, nil))
	})
	if err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}

// ListAttachments returns the attachments on one target, in order.
func (s *Registry) ListAttachments(ctx context.Context, actor *auth.Context, team string, scope model.AttachmentScope, targetID string) ([]*model.FilterAttachment, error) {
	if err := auth.Authorize(actor, "filters:read", team); err != nil {
		return nil, err
	}
	return s.store.ListAttachments(ctx, scope, targetID)
}
