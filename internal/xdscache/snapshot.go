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

// Package xdscache connects the hub to the caches: every published version
// loads a fresh snapshot from the repository, compiles it and swaps the
// per-type caches.
package xdscache

import (
	"context"

	"github.com/sirupsen/logrus"

	envoy_v3 "github.com/flowplane/flowplane/internal/envoy/v3"
	"github.com/flowplane/flowplane/internal/store"
	xdscache_v3 "github.com/flowplane/flowplane/internal/xdscache/v3"
)

// SnapshotHandler is the hub observer refreshing the resource caches.
type SnapshotHandler struct {
	store  *store.Store
	caches *xdscache_v3.Caches

	logrus.FieldLogger
}

// NewSnapshotHandler returns a handler updating the given caches.
func NewSnapshotHandler(log logrus.FieldLogger, st *store.Store, caches *xdscache_v3.Caches) *SnapshotHandler {
	return &SnapshotHandler{
		store:       st,
		caches:      caches,
		FieldLogger: log.WithField("context", "snapshotHandler"),
	}
}

// Refresh implements hub.Observer. It runs inside the hub's publish
// section, so cache contents are monotone in version.
func (s *SnapshotHandler) Refresh(ctx context.Context, version uint64) error {
	snap, err := s.store.LoadSnapshot(ctx, version)
	if err != nil {
		return err
	}

	resources, err := envoy_v3.Compile(snap)
	if err != nil {
		return err
	}

	s.caches.Update(resources)
	s.WithField("version", version).
		WithField("clusters", len(resources.Clusters)).
		WithField("listeners", len(resources.Listeners)).
		WithField("routes", len(resources.Routes)).
		WithField("secrets", len(resources.Secrets)).
		Debug("refreshed resource caches")
	return nil
}
