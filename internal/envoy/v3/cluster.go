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
	"time"

	envoy_config_cluster_v3 "github.com/envoyproxy/go-control-plane/envoy/config/cluster/v3"
	envoy_config_core_v3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	envoy_upstream_http_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/upstreams/http/v3"
	envoy_type_v3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/flowplane/flowplane/internal/envoy"
	"github.com/flowplane/flowplane/internal/model"
	"github.com/flowplane/flowplane/internal/protobuf"
)

const defaultConnectTimeout = 5 * time.Second

// Cluster compiles one upstream. The load assignment is inlined; a copy is
// additionally published over EDS by the caches.
func Cluster(c *model.Cluster, snap *model.Snapshot) *envoy_config_cluster_v3.Cluster {
	spec := &c.Spec

	cluster := &envoy_config_cluster_v3.Cluster{
		Name:           envoy.ClusterName(c),
		AltStatName:    envoy.AltStatName(envoy.ClusterName(c)),
		ConnectTimeout: connectTimeout(spec.ConnectTimeoutSeconds),
		LbPolicy:       lbPolicy(spec.LBPolicy),
		ClusterDiscoveryType: &envoy_config_cluster_v3.Cluster_Type{
			Type: discoveryType(spec),
		},
		LoadAssignment: ClusterLoadAssignment(c),
	}

	if spec.HasDNSEndpoints() && spec.DNSLookupFamilyV4Only {
		cluster.DnsLookupFamily = envoy_config_cluster_v3.Cluster_V4_ONLY
	}

	if cb := spec.CircuitBreakers; cb != nil {
		cluster.CircuitBreakers = &envoy_config_cluster_v3.CircuitBreakers{
			Thresholds: []*envoy_config_cluster_v3.CircuitBreakers_Thresholds{{
				MaxConnections:     protobuf.UInt32OrNil(cb.MaxConnections),
				MaxPendingRequests: protobuf.UInt32OrNil(cb.MaxPendingRequests),
				MaxRequests:        protobuf.UInt32OrNil(cb.MaxRequests),
				MaxRetries:         protobuf.UInt32OrNil(cb.MaxRetries),
			}},
		}
	}

	if od := spec.OutlierDetection; od != nil {
		cluster.OutlierDetection = outlierDetection(od)
	}

	if hc := spec.HealthCheck; hc != nil {
		cluster.HealthChecks = []*envoy_config_core_v3.HealthCheck{httpHealthCheck(hc)}
		cluster.IgnoreHealthOnHostRemoval = true
		if hc.AllowUnhealthyTraffic {
			cluster.CommonLbConfig = &envoy_config_cluster_v3.Cluster_CommonLbConfig{
				HealthyPanicThreshold: &envoy_type_v3.Percent{Value: 100},
			}
		}
	}

	if spec.TLS != nil {
		var alpn []string
		if spec.HTTP2 {
			alpn = []string{"h2"}
		}
		cluster.TransportSocket = UpstreamTLSTransportSocket(UpstreamTLSContext(spec.TLS, snap, alpn...))
	}

	if spec.HTTP2 || spec.MaxRequestsPerConnection > 0 {
		cluster.TypedExtensionProtocolOptions = protocolOptions(spec)
	}

	return cluster
}

func connectTimeout(seconds uint32) *durationpb.Duration {
	if seconds == 0 {
		return durationpb.New(defaultConnectTimeout)
	}
	return durationpb.New(time.Duration(seconds) * time.Second)
}

// discoveryType derives the cluster type from the endpoint mix: address
// literals are static, a single DNS name resolves logically, several DNS
// names require strict resolution so each host balances individually.
func discoveryType(spec *model.ClusterSpec) envoy_config_cluster_v3.Cluster_DiscoveryType {
	if !spec.HasDNSEndpoints() {
		return envoy_config_cluster_v3.Cluster_STATIC
	}
	if len(spec.Endpoints) == 1 {
		return envoy_config_cluster_v3.Cluster_LOGICAL_DNS
	}
	return envoy_config_cluster_v3.Cluster_STRICT_DNS
}

func lbPolicy(policy model.LBPolicy) envoy_config_cluster_v3.Cluster_LbPolicy {
	switch policy {
	case model.LBLeastRequest:
		return envoy_config_cluster_v3.Cluster_LEAST_REQUEST
	case model.LBRandom:
		return envoy_config_cluster_v3.Cluster_RANDOM
	case model.LBRingHash:
		return envoy_config_cluster_v3.Cluster_RING_HASH
	case model.LBMaglev:
		return envoy_config_cluster_v3.Cluster_MAGLEV
	default:
		return envoy_config_cluster_v3.Cluster_ROUND_ROBIN
	}
}

func outlierDetection(od *model.OutlierDetection) *envoy_config_cluster_v3.OutlierDetection {
	out := &envoy_config_cluster_v3.OutlierDetection{
		Consecutive_5Xx:                protobuf.UInt32OrNil(od.Consecutive5xx),
		MaxEjectionPercent:             protobuf.UInt32OrNil(od.MaxEjectionPercent),
		SplitExternalLocalOriginErrors: od.SplitExternalLocalOrigin,
		EnforcingConsecutive_5Xx:       wrapperspb.UInt32(100),
		EnforcingSuccessRate:           wrapperspb.UInt32(0),
	}
	if od.IntervalSeconds > 0 {
		out.Interval = durationpb.New(time.Duration(od.IntervalSeconds) * time.Second)
	}
	if od.BaseEjectionTimeSeconds > 0 {
		out.BaseEjectionTime = durationpb.New(time.Duration(od.BaseEjectionTimeSeconds) * time.Second)
	}
	return out
}

func httpHealthCheck(hc *model.HealthCheck) *envoy_config_core_v3.HealthCheck {
	httpCheck := &envoy_config_core_v3.HealthCheck_HttpHealthCheck{
		Path: hc.Path,
		Host: hc.Host,
	}
	if hc.ExpectedStatusesLower != 0 && hc.ExpectedStatusesUpper != 0 {
		httpCheck.ExpectedStatuses = []*envoy_type_v3.Int64Range{{
			Start: int64(hc.ExpectedStatusesLower),
			End:   int64(hc.ExpectedStatusesUpper),
		}}
	}

	return &envoy_config_core_v3.HealthCheck{
		Interval:           durationpb.New(time.Duration(orDefault(hc.IntervalSeconds, 10)) * time.Second),
		Timeout:            durationpb.New(time.Duration(orDefault(hc.TimeoutSeconds, 2)) * time.Second),
		HealthyThreshold:   protobuf.UInt32OrDefault(hc.HealthyThreshold, 2),
		UnhealthyThreshold: protobuf.UInt32OrDefault(hc.UnhealthyThreshold, 3),
		HealthChecker: &envoy_config_core_v3.HealthCheck_HttpHealthCheck_{
			HttpHealthCheck: httpCheck,
		},
	}
}

func orDefault(val, def uint32) uint32 {
	if val == 0 {
		return def
	}
	return val
}

func protocolOptions(spec *model.ClusterSpec) map[string]*anypb.Any {
	options := &envoy_upstream_http_v3.HttpProtocolOptions{}
	if spec.MaxRequestsPerConnection > 0 {
		options.CommonHttpProtocolOptions = &envoy_config_core_v3.HttpProtocolOptions{
			MaxRequestsPerConnection: wrapperspb.UInt32(spec.MaxRequestsPerConnection),
		}
	}
	explicit := &envoy_upstream_http_v3.HttpProtocolOptions_ExplicitHttpConfig{}
	if spec.HTTP2 {
		explicit.ProtocolConfig = &envoy_upstream_http_v3.HttpProtocolOptions_ExplicitHttpConfig_Http2ProtocolOptions{
			Http2ProtocolOptions: &envoy_config_core_v3.Http2ProtocolOptions{},
		}
	} else {
		explicit.ProtocolConfig = &envoy_upstream_http_v3.HttpProtocolOptions_ExplicitHttpConfig_HttpProtocolOptions{
			HttpProtocolOptions: &envoy_config_core_v3.Http1ProtocolOptions{},
		}
	}
	options.UpstreamProtocolOptions = &envoy_upstream_http_v3.HttpProtocolOptions_ExplicitHttpConfig_{
		ExplicitHttpConfig: explicit,
	}

	return map[string]*anypb.Any{
		"envoy.extensions.upstreams.http.v3.HttpProtocolOptions": protobuf.MustMarshalAny(options),
	}
}
