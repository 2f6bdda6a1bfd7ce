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
	"testing"
	"time"

	envoy_config_cluster_v3 "github.com/envoyproxy/go-control-plane/envoy/config/cluster/v3"
	envoy_config_core_v3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	envoy_config_endpoint_v3 "github.com/envoyproxy/go-control-plane/envoy/config/endpoint/v3"
	envoy_upstream_http_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/upstreams/http/v3"
	envoy_type_v3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/flowplane/flowplane/internal/model"
	"github.com/flowplane/flowplane/internal/protobuf"
)

func staticCluster(name string, endpoints ...model.Endpoint) *model.Cluster {
	return &model.Cluster{
		ID:   model.ClusterID("cluster-" + name),
		Team: "payments",
		Name: name,
		Spec: model.ClusterSpec{Endpoints: endpoints},
	}
}

func TestCluster(t *testing.T) {
	tests := map[string]struct {
		cluster *model.Cluster
		want    *envoy_config_cluster_v3.Cluster
	}{
		"static cluster from address literals": {
			cluster: staticCluster("checkout",
				model.Endpoint{Host: "10.0.0.1", Port: 8080},
				model.Endpoint{Host: "10.0.0.2", Port: 8080},
			),
			want: &envoy_config_cluster_v3.Cluster{
				Name:           "payments/checkout",
				AltStatName:    "payments_checkout",
				ConnectTimeout: durationpb.New(defaultConnectTimeout),
				ClusterDiscoveryType: &envoy_config_cluster_v3.Cluster_Type{
					Type: envoy_config_cluster_v3.Cluster_STATIC,
				},
				LoadAssignment: &envoy_config_endpoint_v3.ClusterLoadAssignment{
					ClusterName: "payments/checkout",
					Endpoints: []*envoy_config_endpoint_v3.LocalityLbEndpoints{{
						LbEndpoints: []*envoy_config_endpoint_v3.LbEndpoint{
							lbEndpoint("10.0.0.1", 8080),
							lbEndpoint("10.0.0.2", 8080),
						},
					}},
				},
			},
		},
		"single dns name resolves logically": {
			cluster: staticCluster("billing",
				model.Endpoint{Host: "billing.internal", Port: 443},
			),
			want: &envoy_config_cluster_v3.Cluster{
				Name:           "payments/billing",
				AltStatName:    "payments_billing",
				ConnectTimeout: durationpb.New(defaultConnectTimeout),
				ClusterDiscoveryType: &envoy_config_cluster_v3.Cluster_Type{
					Type: envoy_config_cluster_v3.Cluster_LOGICAL_DNS,
				},
				LoadAssignment: &envoy_config_endpoint_v3.ClusterLoadAssignment{
					ClusterName: "payments/billing",
					Endpoints: []*envoy_config_endpoint_v3.LocalityLbEndpoints{{
						LbEndpoints: []*envoy_config_endpoint_v3.LbEndpoint{
							lbEndpoint("billing.internal", 443),
						},
					}},
				},
			},
		},
		"several dns names require strict resolution": {
			cluster: staticCluster("ledger",
				model.Endpoint{Host: "a.ledger.internal", Port: 443},
				model.Endpoint{Host: "b.ledger.internal", Port: 443},
			),
			want: &envoy_config_cluster_v3.Cluster{
				Name:           "payments/ledger",
				AltStatName:    "payments_ledger",
				ConnectTimeout: durationpb.New(defaultConnectTimeout),
				ClusterDiscoveryType: &envoy_config_cluster_v3.Cluster_Type{
					Type: envoy_config_cluster_v3.Cluster_STRICT_DNS,
				},
				LoadAssignment: &envoy_config_endpoint_v3.ClusterLoadAssignment{
					ClusterName: "payments/ledger",
					Endpoints: []*envoy_config_endpoint_v3.LocalityLbEndpoints{{
						LbEndpoints: []*envoy_config_endpoint_v3.LbEndpoint{
							lbEndpoint("a.ledger.internal", 443),
							lbEndpoint("b.ledger.internal", 443),
						},
					}},
				},
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got := Cluster(tc.cluster, &model.Snapshot{})
			protobuf.ExpectEqual(t, tc.want, got)
		})
	}
}

func TestClusterLBPolicy(t *testing.T) {
	tests := map[string]struct {
		policy model.LBPolicy
		want   envoy_config_cluster_v3.Cluster_LbPolicy
	}{
		"default":       {policy: "", want: envoy_config_cluster_v3.Cluster_ROUND_ROBIN},
		"round robin":   {policy: model.LBRoundRobin, want: envoy_config_cluster_v3.Cluster_ROUND_ROBIN},
		"least request": {policy: model.LBLeastRequest, want: envoy_config_cluster_v3.Cluster_LEAST_REQUEST},
		"random":        {policy: model.LBRandom, want: envoy_config_cluster_v3.Cluster_RANDOM},
		"ring hash":     {policy: model.LBRingHash, want: envoy_config_cluster_v3.Cluster_RING_HASH},
		"maglev":        {policy: model.LBMaglev, want: envoy_config_cluster_v3.Cluster_MAGLEV},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := staticCluster("checkout", model.Endpoint{Host: "10.0.0.1", Port: 8080})
			c.Spec.LBPolicy = tc.policy
			got := Cluster(c, &model.Snapshot{})
			protobuf.ExpectEqual(t, tc.want, got.LbPolicy)
		})
	}
}

func TestClusterCircuitBreakersAndOutlierDetection(t *testing.T) {
	c := staticCluster("checkout", model.Endpoint{Host: "10.0.0.1", Port: 8080})
	c.Spec.CircuitBreakers = &model.CircuitBreakers{
		MaxConnections: 1024,
		MaxRequests:    512,
	}
	c.Spec.OutlierDetection = &model.OutlierDetection{
		Consecutive5xx:          5,
		IntervalSeconds:         30,
		BaseEjectionTimeSeconds: 60,
		MaxEjectionPercent:      50,
	}

	got := Cluster(c, &model.Snapshot{})

	protobuf.ExpectEqual(t, &envoy_config_cluster_v3.CircuitBreakers{
		Thresholds: []*envoy_config_cluster_v3.CircuitBreakers_Thresholds{{
			MaxConnections: wrapperspb.UInt32(1024),
			MaxRequests:    wrapperspb.UInt32(512),
		}},
	}, got.CircuitBreakers)

	protobuf.ExpectEqual(t, &envoy_config_cluster_v3.OutlierDetection{
		Consecutive_5Xx:          wrapperspb.UInt32(5),
		Interval:                 durationpb.New(30 * time.Second),
		BaseEjectionTime:         durationpb.New(60 * time.Second),
		MaxEjectionPercent:       wrapperspb.UInt32(50),
		EnforcingConsecutive_5Xx: wrapperspb.UInt32(100),
		EnforcingSuccessRate:     wrapperspb.UInt32(0),
	}, got.OutlierDetection)
}

func TestClusterHealthCheck(t *testing.T) {
	c := staticCluster("checkout", model.Endpoint{Host: "10.0.0.1", Port: 8080})
	c.Spec.HealthCheck = &model.HealthCheck{
		Path:                  "/healthz",
		ExpectedStatusesLower: 200,
		ExpectedStatusesUpper: 300,
		AllowUnhealthyTraffic: true,
	}

	got := Cluster(c, &model.Snapshot{})

	protobuf.ExpectEqual(t, []*envoy_config_core_v3.HealthCheck{{
		Interval:           durationpb.New(10 * time.Second),
		Timeout:            durationpb.New(2 * time.Second),
		HealthyThreshold:   wrapperspb.UInt32(2),
		UnhealthyThreshold: wrapperspb.UInt32(3),
		HealthChecker: &envoy_config_core_v3.HealthCheck_HttpHealthCheck_{
			HttpHealthCheck: &envoy_config_core_v3.HealthCheck_HttpHealthCheck{
				Path: "/healthz",
				ExpectedStatuses: []*envoy_type_v3.Int64Range{{
					Start: 200,
					End:   300,
				}},
			},
		},
	}}, got.HealthChecks)
	protobuf.ExpectEqual(t, &envoy_config_cluster_v3.Cluster_CommonLbConfig{
		HealthyPanicThreshold: &envoy_type_v3.Percent{Value: 100},
	}, got.CommonLbConfig)
	protobuf.ExpectEqual(t, true, got.IgnoreHealthOnHostRemoval)
}

func TestClusterProtocolOptions(t *testing.T) {
	c := staticCluster("grpc-backend", model.Endpoint{Host: "10.0.0.1", Port: 8443})
	c.Spec.HTTP2 = true
	c.Spec.MaxRequestsPerConnection = 100

	got := Cluster(c, &model.Snapshot{})
	any, ok := got.TypedExtensionProtocolOptions["envoy.extensions.upstreams.http.v3.HttpProtocolOptions"]
	if !ok {
		t.Fatal("missing typed protocol options")
	}

	protobuf.ExpectEqual(t, protobuf.MustMarshalAny(&envoy_upstream_http_v3.HttpProtocolOptions{
		CommonHttpProtocolOptions: &envoy_config_core_v3.HttpProtocolOptions{
			MaxRequestsPerConnection: wrapperspb.UInt32(100),
		},
		UpstreamProtocolOptions: &envoy_upstream_http_v3.HttpProtocolOptions_ExplicitHttpConfig_{
			ExplicitHttpConfig: &envoy_upstream_http_v3.HttpProtocolOptions_ExplicitHttpConfig{
				ProtocolConfig: &envoy_upstream_http_v3.HttpProtocolOptions_ExplicitHttpConfig_Http2ProtocolOptions{
					Http2ProtocolOptions: &envoy_config_core_v3.Http2ProtocolOptions{},
				},
			},
		},
	}), any)
}

func lbEndpoint(host string, port int) *envoy_config_endpoint_v3.LbEndpoint {
	return &envoy_config_endpoint_v3.LbEndpoint{
		HostIdentifier: &envoy_config_endpoint_v3.LbEndpoint_Endpoint{
			Endpoint: &envoy_config_endpoint_v3.Endpoint{
				Address: SocketAddress(host, port),
			},
		},
	}
}

func TestLBEndpointWeight(t *testing.T) {
	got := LBEndpoint(model.Endpoint{Host: "10.0.0.1", Port: 8080, Weight: 3})
	want := lbEndpoint("10.0.0.1", 8080)
	want.LoadBalancingWeight = wrapperspb.UInt32(3)
	protobuf.ExpectEqual(t, want, got)
}
