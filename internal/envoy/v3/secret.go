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

	"github.com/flowplane/flowplane/internal/envoy"
	"github.com/flowplane/flowplane/internal/model"
)

// Secret compiles inline secret material for SDS. Reference secrets point
// at external managers and are not served; callers skip them.
func Secret(s *model.Secret) *envoy_transport_socket_tls_v3.Secret {
	out := &envoy_transport_socket_tls_v3.Secret{
		Name: envoy.SecretName(s),
	}

	switch s.Type {
	case model.SecretValidationContext:
		out.Type = &envoy_transport_socket_tls_v3.Secret_ValidationContext{
			ValidationContext: &envoy_transport_socket_tls_v3.CertificateValidationContext{
				TrustedCa: inlineBytes(s.Inline.CABundle),
			},
		}
	case model.SecretGeneric:
		out.Type = &envoy_transport_socket_tls_v3.Secret_GenericSecret{
			GenericSecret: &envoy_transport_socket_tls_v3.GenericSecret{
				Secret: inlineBytes(s.Inline.Payload),
			},
		}
	default:
		out.Type = &envoy_transport_socket_tls_v3.Secret_TlsCertificate{
			TlsCertificate: &envoy_transport_socket_tls_v3.TlsCertificate{
				CertificateChain: inlineBytes(s.Inline.CertChain),
				PrivateKey:       inlineBytes(s.Inline.PrivateKey),
			},
		}
	}
	return out
}

func inlineBytes(b []byte) *envoy_config_core_v3.DataSource {
	return &envoy_config_core_v3.DataSource{
		Specifier: &envoy_config_core_v3.DataSource_InlineBytes{
			InlineBytes: b,
		},
	}
}
