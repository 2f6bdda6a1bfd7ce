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

// Package v3 compiles the stored configuration model into Envoy v3
// resources. Compilation is pure: the same snapshot always yields the same
// protos, so resource versions can be content addressed.
package v3

import (
	"google.golang.org/protobuf/proto"

	"github.com/flowplane/flowplane/internal/model"
	"github.com/flowplane/flowplane/internal/sorter"
)

// Resources is the compiled output of one snapshot, one slice per xDS type
// URL, each sorted by resource name.
type Resources struct {
	Version   uint64
	Clusters  []proto.Message
	Endpoints []proto.Message
	Listeners []proto.Message
	Routes    []proto.Message
	Secrets   []proto.Message
}

// Compile translates a full snapshot. A ClusterLoadAssignment is emitted
// alongside every cluster so EDS subscriptions can be answered without a
// CDS round trip.
func Compile(snap *model.Snapshot) (*Resources, error) {
	out := &Resources{Version: snap.Version}

	for _, c := range snap.Clusters {
		out.Clusters = append(out.Clusters, Cluster(c, snap))
		out.Endpoints = append(out.Endpoints, ClusterLoadAssignment(c))
	}

	for _, l := range snap.Listeners {
		compiled, err := Listener(l, snap)
		if err != nil {
			return nil, err
		}
		out.Listeners = append(out.Listeners, compiled)
	}

	for _, rc := range snap.RouteConfigs {
		out.Routes = append(out.Routes, RouteConfiguration(rc, snap))
	}

	for _, s := range snap.Secrets {
		if s.Inline == nil {
			// External references resolve through their manager, not
			// through SDS.
			continue
		}
		out.Secrets = append(out.Secrets, Secret(s))
	}

	for _, messages := range [][]proto.Message{out.Clusters, out.Endpoints, out.Listeners, out.Routes, out.Secrets} {
		sorter.ByName(messages)
	}
	return out, nil
}
