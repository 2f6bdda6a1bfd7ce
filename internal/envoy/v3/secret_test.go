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

	envoy_config_core_v3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	envoy_transport_socket_tls_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/transport_sockets/tls/v3"

	"github.com/flowplane/flowplane/internal/model"
	"github.com/flowplane/flowplane/internal/protobuf"
)

func TestSecret(t *testing.T) {
	tests := map[string]struct {
		secret *model.Secret
		want   *envoy_transport_socket_tls_v3.Secret
	}{
		"tls certificate": {
			secret: &model.Secret{
				Team: "payments", Name: "edge-cert",
				Type:   model.SecretTLSCertificate,
				Inline: &model.InlineSecret{CertChain: []byte("cert"), PrivateKey: []byte("key")},
			},
			want: &envoy_transport_socket_tls_v3.Secret{
				Name: "payments/edge-cert",
				Type: &envoy_transport_socket_tls_v3.Secret_TlsCertificate{
					TlsCertificate: &envoy_transport_socket_tls_v3.TlsCertificate{
						CertificateChain: inlineBytes([]byte("cert")),
						PrivateKey:       inlineBytes([]byte("key")),
					},
				},
			},
		},
		"validation context": {
			secret: &model.Secret{
				Team: "payments", Name: "client-ca",
				Type:   model.SecretValidationContext,
				Inline: &model.InlineSecret{CABundle: []byte("ca")},
			},
			want: &envoy_transport_socket_tls_v3.Secret{
				Name: "payments/client-ca",
				Type: &envoy_transport_socket_tls_v3.Secret_ValidationContext{
					ValidationContext: &envoy_transport_socket_tls_v3.CertificateValidationContext{
						TrustedCa: inlineBytes([]byte("ca")),
					},
				},
			},
		},
		"generic": {
			secret: &model.Secret{
				Team: "payments", Name: "api-key",
				Type:   model.SecretGeneric,
				Inline: &model.InlineSecret{Payload: []byte("hunter2")},
			},
			want: &envoy_transport_socket_tls_v3.Secret{
				Name: "payments/api-key",
				Type: &envoy_transport_socket_tls_v3.Secret_GenericSecret{
					GenericSecret: &envoy_transport_socket_tls_v3.GenericSecret{
						Secret: inlineBytes([]byte("hunter2")),
					},
				},
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			protobuf.ExpectEqual(t, tc.want, Secret(tc.secret))
		})
	}
}

func TestDownstreamTLSContext(t *testing.T) {
	snap := &model.Snapshot{
		Secrets: []*model.Secret{
			{
				ID: "s-1", Team: "payments", Name: "edge-cert",
				Type:   model.SecretTLSCertificate,
				Inline: &model.InlineSecret{CertChain: []byte("cert"), PrivateKey: []byte("key")},
			},
			{
				ID: "s-2", Team: "payments", Name: "client-ca",
				Type:   model.SecretValidationContext,
				Inline: &model.InlineSecret{CABundle: []byte("ca")},
			},
		},
	}

	got := DownstreamTLSContext(&model.ListenerTLS{
		SecretName:         "edge-cert",
		ClientCASecretName: "client-ca",
		RequireClientCert:  true,
		MinProtocolVersion: "1.3",
		ALPNProtocols:      []string{"h2", "http/1.1"},
	}, snap)

	protobuf.ExpectEqual(t, &envoy_transport_socket_tls_v3.TlsParameters{
		TlsMinimumProtocolVersion: envoy_transport_socket_tls_v3.TlsParameters_TLSv1_3,
	}, got.CommonTlsContext.TlsParams)
	protobuf.ExpectEqual(t, []*envoy_transport_socket_tls_v3.SdsSecretConfig{{
		Name:      "payments/edge-cert",
		SdsConfig: ConfigSource(),
	}}, got.CommonTlsContext.TlsCertificateSdsSecretConfigs)
	protobuf.ExpectEqual(t, true, got.RequireClientCertificate.GetValue())
	protobuf.ExpectEqual(t, []byte("ca"),
		got.CommonTlsContext.GetValidationContext().GetTrustedCa().GetInlineBytes())
}

func TestUpstreamTLSContext(t *testing.T) {
	snap := &model.Snapshot{
		Secrets: []*model.Secret{{
			ID: "s-1", Team: "payments", Name: "client-cert",
			Type:   model.SecretTLSCertificate,
			Inline: &model.InlineSecret{CertChain: []byte("cert"), PrivateKey: []byte("key")},
		}},
	}

	got := UpstreamTLSContext(&model.UpstreamTLS{
		ServerName: "backend.internal",
		SecretName: "client-cert",
	}, snap, "h2")

	protobuf.ExpectEqual(t, &envoy_transport_socket_tls_v3.UpstreamTlsContext{
		Sni: "backend.internal",
		CommonTlsContext: &envoy_transport_socket_tls_v3.CommonTlsContext{
			AlpnProtocols: []string{"h2"},
			TlsCertificateSdsSecretConfigs: []*envoy_transport_socket_tls_v3.SdsSecretConfig{{
				Name:      "payments/client-cert",
				SdsConfig: ConfigSource(),
			}},
		},
	}, got)
}

func TestUpstreamTLSContextInsecureSkipVerify(t *testing.T) {
	got := UpstreamTLSContext(&model.UpstreamTLS{InsecureSkipVerify: true}, &model.Snapshot{})
	protobuf.ExpectEqual(t,
		envoy_transport_socket_tls_v3.CertificateValidationContext_ACCEPT_UNTRUSTED,
		got.CommonTlsContext.GetValidationContext().TrustChainVerification)
}

func TestConfigSource(t *testing.T) {
	protobuf.ExpectEqual(t, &envoy_config_core_v3.ConfigSource{
		ResourceApiVersion: envoy_config_core_v3.ApiVersion_V3,
		ConfigSourceSpecifier: &envoy_config_core_v3.ConfigSource_Ads{
			Ads: &envoy_config_core_v3.AggregatedConfigSource{},
		},
	}, ConfigSource())
}
