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

	"github.com/flowplane/flowplane/internal/model"
)

// listAll pages one entity listing to exhaustion so a snapshot is never
// truncated at the repository page cap.
func listAll[T any](list func(model.ListPage) ([]T, error)) ([]T, error) {
	var out []T
	page := model.ListPage{Limit: model.MaxListLimit}
	for {
		batch, err := list(page)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) < page.Limit {
			return out, nil
		}
		page.Offset += page.Limit
	}
}

// LoadSnapshot reads everything the resource compiler needs in one pass.
// It runs inside a transaction so the compiler sees a consistent view even
// while admin writes land concurrently.
func (s *Store) LoadSnapshot(ctx context.Context, version uint64) (*model.Snapshot, error) {
	snap := &model.Snapshot{Version: version}
	err := s.WithTx(ctx, func(tx *Tx) error {
		var err error
		if snap.Clusters, err = listAll(func(p model.ListPage) ([]*model.Cluster, error) {
			return tx.ListClusters(ctx, "", p)
		}); err != nil {
			return err
		}
		if snap.Listeners, err = listAll(func(p model.ListPage) ([]*model.Listener, error) {
			return tx.ListListeners(ctx, "", p)
		}); err != nil {
			return err
		}
		if snap.RouteConfigs, err = listAll(func(p model.ListPage) ([]*model.RouteConfig, error) {
			return tx.ListRouteConfigs(ctx, "", p)
		}); err != nil {
			return err
		}
		if snap.Filters, err = listAll(func(p model.ListPage) ([]*model.Filter, error) {
			return tx.ListFilters(ctx, "", p)
		}); err != nil {
			return err
		}
		if snap.Attachments, err = tx.ListAttachments(ctx, "", ""); err != nil {
			return err
		}
		if snap.Secrets, err = listAll(func(p model.ListPage) ([]*model.Secret, error) {
			return tx.ListSecrets(ctx, "", p)
		}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}
