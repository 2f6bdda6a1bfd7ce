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
)

// requireAdmin gates the audit log: it records every tenant's activity, so
// team and resource scopes never grant access.
func requireAdmin(actor *auth.Context) error {
	if actor == nil {
		return errs.Unauthenticated("no authenticated identity")
	}
	if !actor.IsAdmin() {
		return errs.Forbidden("audit logs require the %q scope", auth.ScopeAdminAll)
	}
	return nil
}

// ListAuditLogs returns audit rows matching the filter, newest first.
func (s *Registry) ListAuditLogs(ctx context.Context, actor *auth.Context, f model.AuditFilter, page model.ListPage) ([]*model.AuditEvent, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.store.ListAudit(ctx, f, page)
}

// CountAuditLogs reports how many audit rows match the filter.
func (s *Registry) CountAuditLogs(ctx context.Context, actor *auth.Context, f model.AuditFilter) (int64, error) {
	if err := requireAdmin(actor); err != nil {
		return 0, err
	}
	return s.store.CountAudit(ctx, f)
}
