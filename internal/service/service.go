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

// Package service is the write path for configuration resources. Every
// operation authorizes the caller, validates the document, runs the write
// and its audit row in one transaction, and publishes the new global
// version on success.
package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/flowplane/flowplane/internal/auth"
	"github.com/flowplane/flowplane/internal/hub"
	"github.com/flowplane/flowplane/internal/model"
	"github.com/flowplane/flowplane/internal/store"
)

// Registry exposes the resource services. A single instance serves all
// resource types; handlers share the store, the hub and the logger.
type Registry struct {
	store *store.Store
	hub   *hub.Hub

	logrus.FieldLogger
}

// NewRegistry wires the resource services.
func NewRegistry(log logrus.FieldLogger, st *store.Store, h *hub.Hub) *Registry {
	return &Registry{
		store:       st,
		hub:         h,
		FieldLogger: log.WithField("context", "service"),
	}
}

// publish bumps the global version after a committed write. Failures to
// refresh downstream caches are logged, not surfaced: the write itself has
// already succeeded and the next publish heals the caches.
func (s *Registry) publish(ctx context.Context) {
	if _, err := s.hub.Publish(ctx); err != nil {
		s.WithError(err).Error("publishing configuration change")
	}
}

// newAudit builds the audit row written in the same transaction as the
// change it describes.
func newAudit(actor *auth.Context, action, resourceType, resourceID string, old, updated any) *model.AuditEvent {
	e := &model.AuditEvent{
		Actor:        "system",
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
	if actor != nil {
		e.Actor = actor.TokenName
		e.ClientIP = actor.ClientIP
		e.UserAgent = actor.UserAgent
	}
	if old != nil {
		e.Old = model.MustEncode(old)
	}
	if updated != nil {
		e.New = model.MustEncode(updated)
	}
	return e
}
