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

	"github.com/flowplane/flowplane/internal/errs"
	"github.com/flowplane/flowplane/internal/model"
)

// EnsureDefaults seeds the shared gateway resources: the default team, the
// protected default cluster, the shared route table and the listener that
// serves it. It is idempotent; rerunning against a seeded database changes
// nothing.
func (s *Store) EnsureDefaults(ctx context.Context) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.GetTeamByName(ctx, model.DefaultTeam); errs.IsKind(err, errs.KindNotFound) {
			team := &model.Team{
				Name:        model.DefaultTeam,
				DisplayName: "Default",
				Status:      model.TeamActive,
			}
			if err := tx.CreateTeam(ctx, team); err != nil {
				return err
			}
			s.WithField("team", team.Name).Info("seeded default team")
		} else if err != nil {
			return err
		}

		if _, err := tx.GetClusterByName(ctx, model.DefaultTeam, model.DefaultClusterName); errs.IsKind(err, errs.KindNotFound) {
			cluster := &model.Cluster{
				Team:        model.DefaultTeam,
				Name:        model.DefaultClusterName,
				ServiceName: "default-gateway",
				IsDefault:   true,
				Spec: model.ClusterSpec{
					Endpoints:             []model.Endpoint{{Host: "127.0.0.1", Port: 8080}},
					ConnectTimeoutSeconds: 5,
				},
			}
			if err := tx.CreateCluster(ctx, cluster); err != nil {
				return err
			}
			s.WithField("cluster", cluster.Name).Info("seeded default gateway cluster")
		} else if err != nil {
			return err
		}

		if _, err := tx.GetRouteConfigByName(ctx, model.DefaultTeam, model.DefaultRouteConfigName); errs.IsKind(err, errs.KindNotFound) {
			rc := &model.RouteConfig{
				Team:      model.DefaultTeam,
				Name:      model.DefaultRouteConfigName,
				IsDefault: true,
			}
			if err := tx.CreateRouteConfig(ctx, rc); err != nil {
				return err
			}
			s.WithField("routeConfig", rc.Name).Info("seeded default gateway route configuration")
		} else if err != nil {
			return err
		}

		if _, err := tx.GetListenerByName(ctx, model.DefaultTeam, model.DefaultListenerName); errs.IsKind(err, errs.KindNotFound) {
			listener := &model.Listener{
				Team:        model.DefaultTeam,
				Name:        model.DefaultListenerName,
				BindAddress: "0.0.0.0",
				Port:        model.DefaultListenerPort,
				Protocol:    model.ProtocolHTTP,
				IsDefault:   true,
				Spec: model.ListenerSpec{
					RouteConfigName: model.DefaultRouteConfigName,
				},
			}
			if err := tx.CreateListener(ctx, listener); err != nil {
				return err
			}
			s.WithField("listener", listener.Name).Info("seeded default gateway listener")
		} else if err != nil {
			return err
		}
		return nil
	})
}
