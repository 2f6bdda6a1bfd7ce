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

// Package sorter keeps compiled xDS resources in a stable order so that
// recompiling an unchanged snapshot produces byte-identical output.
package sorter

import (
	"sort"

	envoy_config_cluster_v3 "github.com/envoyproxy/go-control-plane/envoy/config/cluster/v3"
	envoy_config_endpoint_v3 "github.com/envoyproxy/go-control-plane/envoy/config/endpoint/v3"
	envoy_config_listener_v3 "github.com/envoyproxy/go-control-plane/envoy/config/listener/v3"
	envoy_config_route_v3 "github.com/envoyproxy/go-control-plane/envoy/config/route/v3"
	envoy_transport_socket_tls_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/transport_sockets/tls/v3"
	"google.golang.org/protobuf/proto"
)

// ResourceName extracts the xDS resource name of a compiled message.
// Unknown message types sort under the empty name.
func ResourceName(msg proto.Message) string {
	switch m := msg.(type) {
	case *envoy_config_cluster_v3.Cluster:
		return m.Name
	case *envoy_config_endpoint_v3.ClusterLoadAssignment:
		return m.ClusterName
	case *envoy_config_listener_v3.Listener:
		return m.Name
	case *envoy_config_route_v3.RouteConfiguration:
		return m.Name
	case *envoy_transport_socket_tls_v3.Secret:
		return m.Name
	default:
		return ""
	}
}

// ByName sorts compiled resources in place by their resource name.
func ByName(messages []proto.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return ResourceName(messages[i]) < ResourceName(messages[j])
	})
}
