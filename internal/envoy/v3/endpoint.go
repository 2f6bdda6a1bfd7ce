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

package v3

import (
	envoy_config_core_v3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	envoy_config_endpoint_v3 "github.com/envoyproxy/go-control-plane/envoy/config/endpoint/v3"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/flowplane/flowplane/internal/envoy"
	"github.com/flowplane/flowplane/internal/model"
)

// SocketAddress creates a TCP envoy_config_core_v3.Address.
func SocketAddress(address string, port int) *envoy_config_core_v3.Address {
	return &envoy_config_core_v3.Address{
		Address: &envoy_config_core_v3.Address_SocketAddress{
			SocketAddress: &envoy_config_core_v3.SocketAddress{
				Protocol: envoy_config_core_v3.SocketAddress_TCP,
				Address:  address,
				PortSpecifier: &envoy_config_core_v3.SocketAddress_PortValue{
					PortValue: uint32(port),
				},
			},
		},
	}
}

// LBEndpoint creates a load balancer endpoint for one upstream address.
// A zero weight is left unset so Envoy applies its default.
func LBEndpoint(ep model.Endpoint) *envoy_config_endpoint_v3.LbEndpoint {
	lb := &envoy_config_endpoint_v3.LbEndpoint{
		HostIdentifier: &envoy_config_endpoint_v3.LbEndpoint_Endpoint{
			Endpoint: &envoy_config_endpoint_v3.Endpoint{
				Address: SocketAddress(ep.Host, int(ep.Port)),
			},
		},
	}
	if ep.Weight > 0 {
		lb.LoadBalancingWeight = wrapperspb.UInt32(ep.Weight)
	}
	return lb
}

// ClusterLoadAssignment compiles the cluster's endpoints into a single
// locality. The assignment is also published under the EDS type URL so
// endpoint subscriptions can be answered independently of CDS.
func ClusterLoadAssignment(c *model.Cluster) *envoy_config_endpoint_v3.ClusterLoadAssignment {
	endpoints := make([]*envoy_config_endpoint_v3.LbEndpoint, 0, len(c.Spec.Endpoints))
	for _, ep := range c.Spec.Endpoints {
		endpoints = append(endpoints, LBEndpoint(ep))
	}

	return &envoy_config_endpoint_v3.ClusterLoadAssignment{
		ClusterName: envoy.ClusterName(c),
		Endpoints: []*envoy_config_endpoint_v3.LocalityLbEndpoints{{
			LbEndpoints: endpoints,
		}},
	}
}
