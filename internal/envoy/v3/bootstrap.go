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

	envoy_config_bootstrap_v3 "github.com/envoyproxy/go-control-plane/envoy/config/bootstrap/v3"
	envoy_config_cluster_v3 "github.com/envoyproxy/go-control-plane/envoy/config/cluster/v3"
	envoy_config_core_v3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	envoy_config_endpoint_v3 "github.com/envoyproxy/go-control-plane/envoy/config/endpoint/v3"
	envoy_transport_socket_tls_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/transport_sockets/tls/v3"
	envoy_upstream_http_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/upstreams/http/v3"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/flowplane/flowplane/internal/envoy"
	"github.com/flowplane/flowplane/internal/protobuf"
)

// Bootstrap generates the static configuration an Envoy node needs to dial
// this control plane over ADS. The node identity carries the team the
// delivery engine scopes visibility on.
func Bootstrap(c *envoy.BootstrapConfig) *envoy_config_bootstrap_v3.Bootstrap {
	b := &envoy_config_bootstrap_v3.Bootstrap{
		Node: &envoy_config_core_v3.Node{
			Id:      c.NodeIdentity(),
			Cluster: c.Team,
			Metadata: &structpb.Struct{Fields: map[string]*structpb.Value{
				"team":            structpb.NewStringValue(c.Team),
				"include_default": structpb.NewBoolValue(c.IncludeDefault),
			}},
		},
		StaticResources: &envoy_config_bootstrap_v3.Bootstrap_StaticResources{
			Clusters: []*envoy_config_cluster_v3.Cluster{xdsCluster(c)},
		},
		DynamicResources: &envoy_config_bootstrap_v3.Bootstrap_DynamicResources{
			AdsConfig: &envoy_config_core_v3.ApiConfigSource{
				ApiType:             envoy_config_core_v3.ApiConfigSource_GRPC,
				TransportApiVersion: envoy_config_core_v3.ApiVersion_V3,
				GrpcServices: []*envoy_config_core_v3.GrpcService{{
					TargetSpecifier: &envoy_config_core_v3.GrpcService_EnvoyGrpc_{
						EnvoyGrpc: &envoy_config_core_v3.GrpcService_EnvoyGrpc{
							ClusterName: envoy.XDSClusterName,
						},
					},
				}},
			},
			CdsConfig: ConfigSource(),
			LdsConfig: ConfigSource(),
		},
	}

	if c.AdminPort > 0 {
		b.Admin = &envoy_config_bootstrap_v3.Admin{
			Address: SocketAddress(c.AdminAddress, c.AdminPort),
		}
	}
	return b
}

// xdsCluster is the static cluster the proxy dials for ADS. HTTP/2 is
// required by the gRPC transport.
func xdsCluster(c *envoy.BootstrapConfig) *envoy_config_cluster_v3.Cluster {
	cluster := &envoy_config_cluster_v3.Cluster{
		Name:           envoy.XDSClusterName,
		ConnectTimeout: durationpb.New(5 * time.Second),
		ClusterDiscoveryType: &envoy_config_cluster_v3.Cluster_Type{
			Type: envoy_config_cluster_v3.Cluster_LOGICAL_DNS,
		},
		LoadAssignment: &envoy_config_endpoint_v3.ClusterLoadAssignment{
			ClusterName: envoy.XDSClusterName,
			Endpoints: []*envoy_config_endpoint_v3.LocalityLbEndpoints{{
				LbEndpoints: []*envoy_config_endpoint_v3.LbEndpoint{{
					HostIdentifier: &envoy_config_endpoint_v3.LbEndpoint_Endpoint{
						Endpoint: &envoy_config_endpoint_v3.Endpoint{
							Address: SocketAddress(c.XDSAddress, c.XDSPort),
						},
					},
				}},
			}},
		},
		TypedExtensionProtocolOptions: map[string]*anypb.Any{
			"envoy.extensions.upstreams.http.v3.HttpProtocolOptions": protobuf.MustMarshalAny(
				&envoy_upstream_http_v3.HttpProtocolOptions{
					UpstreamProtocolOptions: &envoy_upstream_http_v3.HttpProtocolOptions_ExplicitHttpConfig_{
						ExplicitHttpConfig: &envoy_upstream_http_v3.HttpProtocolOptions_ExplicitHttpConfig{
							ProtocolConfig: &envoy_upstream_http_v3.HttpProtocolOptions_ExplicitHttpConfig_Http2ProtocolOptions{
								Http2ProtocolOptions: &envoy_config_core_v3.Http2ProtocolOptions{},
							},
						},
					},
				}),
		},
	}

	if c.UsesTLS() {
		context := &envoy_transport_socket_tls_v3.UpstreamTlsContext{
			CommonTlsContext: &envoy_transport_socket_tls_v3.CommonTlsContext{
				TlsParams: &envoy_transport_socket_tls_v3.TlsParameters{
					TlsMinimumProtocolVersion: envoy_transport_socket_tls_v3.TlsParameters_TLSv1_2,
				},
				TlsCertificates: []*envoy_transport_socket_tls_v3.TlsCertificate{{
					CertificateChain: fileDataSource(c.ClientCertPath),
					PrivateKey:       fileDataSource(c.ClientKeyPath),
				}},
				ValidationContextType: &envoy_transport_socket_tls_v3.CommonTlsContext_ValidationContext{
					ValidationContext: &envoy_transport_socket_tls_v3.CertificateValidationContext{
						TrustedCa: fileDataSource(c.CACertificatePath),
					},
				},
			},
		}
		cluster.TransportSocket = UpstreamTLSTransportSocket(context)
	}

	return cluster
}

func fileDataSource(path string) *envoy_config_core_v3.DataSource {
	return &envoy_config_core_v3.DataSource{
		Specifier: &envoy_config_core_v3.DataSource_Filename{
			Filename: path,
		},
	}
}
