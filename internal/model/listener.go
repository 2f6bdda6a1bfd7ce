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

package model

import (
	"net"
	"time"

	"github.com/flowplane/flowplane/internal/errs"
)

// Names of the seeded shared gateway resources. They are protected from
// mutation and deletion.
const (
	DefaultListenerName    = "default-gateway-listener"
	DefaultRouteConfigName = "default-gateway-routes"

	// DefaultListenerPort is where the shared gateway listener binds.
	DefaultListenerPort = 10000
)

// ListenerProtocol selects the filter chain family of a listener.
type ListenerProtocol string

const (
	ProtocolHTTP  ListenerProtocol = "HTTP"
	ProtocolHTTPS ListenerProtocol = "HTTPS"
	ProtocolTCP   ListenerProtocol = "TCP"
)

func (p ListenerProtocol) Validate() error {
	switch p {
	case ProtocolHTTP, ProtocolHTTPS, ProtocolTCP:
		return nil
	default:
		return errs.Validation("unknown listener protocol %q", string(p))
	}
}

// ListenerTLS configures server TLS termination. SecretName names a
// tls_certificate secret; ClientCASecretName, when set, enables client
// certificate validation against that CA bundle.
type ListenerTLS struct {
	SecretName         string   `json:"secretName"`
	ClientCASecretName string   `json:"clientCaSecretName,omitempty"`
	RequireClientCert  bool     `json:"requireClientCert,omitempty"`
	MinProtocolVersion string   `json:"minProtocolVersion,omitempty"`
	ALPNProtocols      []string `json:"alpnProtocols,omitempty"`
}

func (t *ListenerTLS) Validate() error {
	if t.SecretName == "" {
		return errs.Validation("listener TLS requires a certificate secret name")
	}
	switch t.MinProtocolVersion {
	case "", "1.2", "1.3":
	default:
		return errs.Validation("unsupported TLS minimum version %q", t.MinProtocolVersion)
	}
	if t.RequireClientCert && t.ClientCASecretName == "" {
		return errs.Validation("requiring client certificates needs a client CA secret")
	}
	return nil
}

// AccessLog configures file access logging on the listener's connection
// manager.
type AccessLog struct {
	Path string `json:"path"`
	JSON bool   `json:"json,omitempty"`
}

// TCPProxy is the terminal config of a TCP listener.
type TCPProxy struct {
	ClusterName string `json:"clusterName"`
}

// ListenerSpec is the typed configuration document of a listener.
// HTTP and HTTPS listeners name the route configuration served over RDS;
// TCP listeners name the upstream cluster directly.
type ListenerSpec struct {
	RouteConfigName       string       `json:"routeConfigName,omitempty"`
	TLS                   *ListenerTLS `json:"tls,omitempty"`
	AccessLog             *AccessLog   `json:"accessLog,omitempty"`
	TCPProxy              *TCPProxy    `json:"tcpProxy,omitempty"`
	IdleTimeoutSeconds    uint32       `json:"idleTimeoutSeconds,omitempty"`
	RequestTimeoutSeconds uint32       `json:"requestTimeoutSeconds,omitempty"`
	MaxConnections        uint32       `json:"maxConnections,omitempty"`
	UseRemoteAddress      *bool        `json:"useRemoteAddress,omitempty"`
	MergeSlashes          bool         `json:"mergeSlashes,omitempty"`
}

// Listener is a bound proxy port.
type Listener struct {
	ID          ListenerID       `json:"id"`
	Team        string           `json:"team"`
	Name        string           `json:"name"`
	BindAddress string           `json:"bindAddress"`
	Port        uint32           `json:"port"`
	Protocol    ListenerProtocol `json:"protocol"`
	Spec        ListenerSpec     `json:"spec"`
	IsDefault   bool             `json:"isDefault,omitempty"`
	Version     int64            `json:"version"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Validate checks the listener document, including protocol-specific
// requirements.
func (l *Listener) Validate() error {
	if err := ValidateName("listener", l.Name); err != nil {
		return err
	}
	if err := ValidateName("team", l.Team); err != nil {
		return err
	}
	if net.ParseIP(l.BindAddress) == nil {
		return errs.Validation("listener bind address %q is not an IP address", l.BindAddress)
	}
	if l.Port == 0 || l.Port > 65535 {
		return errs.Validation("listener port %d out of range", l.Port)
	}
	if err := l.Protocol.Validate(); err != nil {
		return err
	}

	switch l.Protocol {
	case ProtocolHTTP, ProtocolHTTPS:
		if l.Spec.RouteConfigName == "" {
			return errs.Validation("%s listener requires a route configuration name", l.Protocol)
		}
		if l.Spec.TCPProxy != nil {
			return errs.Validation("%s listener must not carry a TCP proxy", l.Protocol)
		}
		if l.Protocol == ProtocolHTTPS {
			if l.Spec.TLS == nil {
				return errs.Validation("HTTPS listener requires TLS configuration")
			}
			if err := l.Spec.TLS.Validate(); err != nil {
				return err
			}
		}
	case ProtocolTCP:
		if l.Spec.TCPProxy == nil || l.Spec.TCPProxy.ClusterName == "" {
			return errs.Validation("TCP listener requires a target cluster")
		}
		if l.Spec.RouteConfigName != "" {
			return errs.Validation("TCP listener must not name a route configuration")
		}
	}
	return nil
}
