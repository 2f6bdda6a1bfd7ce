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
	envoy_transport_socket_tls_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/transport_sockets/tls/v3"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/flowplane/flowplane/internal/envoy"
	"github.com/flowplane/flowplane/internal/model"
	"github.com/flowplane/flowplane/internal/protobuf"
)

// ConfigSource returns the ADS config source. All dynamic resource
// references resolve over the aggregated stream.
func ConfigSource() *envoy_config_core_v3.ConfigSource {
	return &envoy_config_core_v3.ConfigSource{
		ResourceApiVersion: envoy_config_core_v3.ApiVersion_V3,
		ConfigSourceSpecifier: &envoy_config_core_v3.ConfigSource_Ads{
			Ads: &envoy_config_core_v3.AggregatedConfigSource{},
		},
	}
}

// UpstreamTLSContext builds the client TLS context for an originating
// cluster. The client certificate, when named, is delivered over SDS.
func UpstreamTLSContext(tls *model.UpstreamTLS, snap *model.Snapshot, alpnProtocols ...string) *envoy_transport_socket_tls_v3.UpstreamTlsContext {
	context := &envoy_transport_socket_tls_v3.UpstreamTlsContext{
		CommonTlsContext: &envoy_transport_socket_tls_v3.CommonTlsContext{
			AlpnProtocols: alpnProtocols,
		},
		Sni: tls.ServerName,
	}

	if tls.SecretName != "" {
		if sec := snap.SecretByName(tls.SecretName); sec != nil {
			context.CommonTlsContext.TlsCertificateSdsSecretConfigs = []*envoy_transport_socket_tls_v3.SdsSecretConfig{{
				Name:      envoy.SecretName(sec),
				SdsConfig: ConfigSource(),
			}}
		}
	}

	if tls.InsecureSkipVerify {
		context.CommonTlsContext.ValidationContextType = &envoy_transport_socket_tls_v3.CommonTlsContext_ValidationContext{
			ValidationContext: &envoy_transport_socket_tls_v3.CertificateValidationContext{
				TrustChainVerification: envoy_transport_socket_tls_v3.CertificateValidationContext_ACCEPT_UNTRUSTED,
			},
		}
	}

	return context
}

// DownstreamTLSContext builds the server TLS context for a terminating
// listener. Certificates are SDS references into the compiled secrets.
func DownstreamTLSContext(tls *model.ListenerTLS, snap *model.Snapshot) *envoy_transport_socket_tls_v3.DownstreamTlsContext {
	common := &envoy_transport_socket_tls_v3.CommonTlsContext{
		TlsParams: &envoy_transport_socket_tls_v3.TlsParameters{
			TlsMinimumProtocolVersion: parseTLSVersion(tls.MinProtocolVersion),
		},
		AlpnProtocols: tls.ALPNProtocols,
	}
	if sec := snap.SecretByName(tls.SecretName); sec != nil {
		common.TlsCertificateSdsSecretConfigs = []*envoy_transport_socket_tls_v3.SdsSecretConfig{{
			Name:      envoy.SecretName(sec),
			SdsConfig: ConfigSource(),
		}}
	}

	context := &envoy_transport_socket_tls_v3.DownstreamTlsContext{
		CommonTlsContext: common,
	}

	if tls.ClientCASecretName != "" {
		if ca := snap.SecretByName(tls.ClientCASecretName); ca != nil && ca.Inline != nil {
			common.ValidationContextType = &envoy_transport_socket_tls_v3.CommonTlsContext_ValidationContext{
				ValidationContext: &envoy_transport_socket_tls_v3.CertificateValidationContext{
					TrustedCa: &envoy_config_core_v3.DataSource{
						Specifier: &envoy_config_core_v3.DataSource_InlineBytes{
							InlineBytes: ca.Inline.CABundle,
						},
					},
				},
			}
			context.RequireClientCertificate = wrapperspb.Bool(tls.RequireClientCert)
		}
	}

	return context
}

// DownstreamTLSTransportSocket wraps a downstream TLS context in a
// transport socket.
func DownstreamTLSTransportSocket(context *envoy_transport_socket_tls_v3.DownstreamTlsContext) *envoy_config_core_v3.TransportSocket {
	return &envoy_config_core_v3.TransportSocket{
		Name: "envoy.transport_sockets.tls",
		ConfigType: &envoy_config_core_v3.TransportSocket_TypedConfig{
			TypedConfig: protobuf.MustMarshalAny(context),
		},
	}
}

// UpstreamTLSTransportSocket wraps an upstream TLS context in a transport
// socket.
func UpstreamTLSTransportSocket(context *envoy_transport_socket_tls_v3.UpstreamTlsContext) *envoy_config_core_v3.TransportSocket {
	return &envoy_config_core_v3.TransportSocket{
		Name: "envoy.transport_sockets.tls",
		ConfigType: &envoy_config_core_v3.TransportSocket_TypedConfig{
			TypedConfig: protobuf.MustMarshalAny(context),
		},
	}
}

func parseTLSVersion(version string) envoy_transport_socket_tls_v3.TlsParameters_TlsProtocol {
	switch version {
	case "1.3":
		return envoy_transport_socket_tls_v3.TlsParameters_TLSv1_3
	default:
		return envoy_transport_socket_tls_v3.TlsParameters_TLSv1_2
	}
}
