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

// DefaultClusterName is the protected cluster seeded for the shared gateway.
const DefaultClusterName = "default-gateway-cluster"

// LBPolicy selects the upstream load balancing algorithm.
type LBPolicy string

const (
	LBRoundRobin   LBPolicy = "ROUND_ROBIN"
	LBLeastRequest LBPolicy = "LEAST_REQUEST"
	LBRandom       LBPolicy = "RANDOM"
	LBRingHash     LBPolicy = "RING_HASH"
	LBMaglev       LBPolicy = "MAGLEV"
)

func (p LBPolicy) Validate() error {
	switch p {
	case "", LBRoundRobin, LBLeastRequest, LBRandom, LBRingHash, LBMaglev:
		return nil
	default:
		return errs.Validation("unknown load balancing policy %q", string(p))
	}
}

// Endpoint is one upstream address. Host may be an IP literal or a DNS
// name; the compiler derives the cluster discovery type from the mix.
type Endpoint struct {
	Host   string `json:"host"`
	Port   uint32 `json:"port"`
	Weight uint32 `json:"weight,omitempty"`
}

func (e Endpoint) Validate() error {
	if e.Host == "" {
		return errs.Validation("endpoint host must not be empty")
	}
	if e.Port == 0 || e.Port > 65535 {
		return errs.Validation("endpoint port %d out of range", e.Port)
	}
	return nil
}

// IsIP reports whether the endpoint host is an address literal.
func (e Endpoint) IsIP() bool {
	return net.ParseIP(e.Host) != nil
}

// CircuitBreakers caps concurrent upstream usage. Zero members fall back to
// Envoy defaults.
type CircuitBreakers struct {
	MaxConnections     uint32 `json:"maxConnections,omitempty"`
	MaxPendingRequests uint32 `json:"maxPendingRequests,omitempty"`
	MaxRequests        uint32 `json:"maxRequests,omitempty"`
	MaxRetries         uint32 `json:"maxRetries,omitempty"`
}

// OutlierDetection ejects persistently failing hosts from the pool.
type OutlierDetection struct {
	Consecutive5xx           uint32 `json:"consecutive5xx,omitempty"`
	IntervalSeconds          uint32 `json:"intervalSeconds,omitempty"`
	BaseEjectionTimeSeconds  uint32 `json:"baseEjectionTimeSeconds,omitempty"`
	MaxEjectionPercent       uint32 `json:"maxEjectionPercent,omitempty"`
	SplitExternalLocalOrigin bool   `json:"splitExternalLocalOrigin,omitempty"`
}

// HealthCheck is an active HTTP health check against the upstream.
type HealthCheck struct {
	Path                  string `json:"path"`
	IntervalSeconds       uint32 `json:"intervalSeconds,omitempty"`
	TimeoutSeconds        uint32 `json:"timeoutSeconds,omitempty"`
	HealthyThreshold      uint32 `json:"healthyThreshold,omitempty"`
	UnhealthyThreshold    uint32 `json:"unhealthyThreshold,omitempty"`
	ExpectedStatusesLower uint32 `json:"expectedStatusesLower,omitempty"`
	ExpectedStatusesUpper uint32 `json:"expectedStatusesUpper,omitempty"`
	Host                  string `json:"host,omitempty"`
	AllowUnhealthyTraffic bool   `json:"allowUnhealthyTraffic,omitempty"`
}

func (h *HealthCheck) Validate() error {
	if h.Path == "" {
		return errs.Validation("health check path must not be empty")
	}
	if h.ExpectedStatusesLower != 0 && h.ExpectedStatusesUpper != 0 &&
		h.ExpectedStatusesLower >= h.ExpectedStatusesUpper {
		return errs.Validation("health check expected status range [%d, %d) is empty",
			h.ExpectedStatusesLower, h.ExpectedStatusesUpper)
	}
	return nil
}

// UpstreamTLS configures TLS origination towards the upstream. SecretName,
// when set, names a tls_certificate secret used as the client certificate.
type UpstreamTLS struct {
	ServerName         string `json:"serverName,omitempty"`
	SecretName         string `json:"secretName,omitempty"`
	InsecureSkipVerify bool   `json:"insecureSkipVerify,omitempty"`
}

// ClusterSpec is the typed configuration document of a cluster. It is
// stored as an opaque JSON blob and decoded strictly at the service
// boundary.
type ClusterSpec struct {
	Endpoints                []Endpoint        `json:"endpoints"`
	ConnectTimeoutSeconds    uint32            `json:"connectTimeoutSeconds,omitempty"`
	LBPolicy                 LBPolicy          `json:"lbPolicy,omitempty"`
	DNSLookupFamilyV4Only    bool              `json:"dnsLookupFamilyV4Only,omitempty"`
	CircuitBreakers          *CircuitBreakers  `json:"circuitBreakers,omitempty"`
	OutlierDetection         *OutlierDetection `json:"outlierDetection,omitempty"`
	HealthCheck              *HealthCheck      `json:"healthCheck,omitempty"`
	TLS                      *UpstreamTLS      `json:"tls,omitempty"`
	HTTP2                    bool              `json:"http2,omitempty"`
	MaxRequestsPerConnection uint32            `json:"maxRequestsPerConnection,omitempty"`
}

// Validate checks the spec document in isolation.
func (s *ClusterSpec) Validate() error {
	if len(s.Endpoints) == 0 {
		return errs.Validation("cluster requires at least one endpoint")
	}
	for _, ep := range s.Endpoints {
		if err := ep.Validate(); err != nil {
			return err
		}
	}
	if err := s.LBPolicy.Validate(); err != nil {
		return err
	}
	if s.HealthCheck != nil {
		if err := s.HealthCheck.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// HasDNSEndpoints reports whether any endpoint host needs DNS resolution.
func (s *ClusterSpec) HasDNSEndpoints() bool {
	for _, ep := range s.Endpoints {
		if !ep.IsIP() {
			return true
		}
	}
	return false
}

// Cluster is a named upstream.
type Cluster struct {
	ID          ClusterID   `json:"id"`
	Team        string      `json:"team"`
	Name        string      `json:"name"`
	ServiceName string      `json:"serviceName,omitempty"`
	Spec        ClusterSpec `json:"spec"`
	IsDefault   bool        `json:"isDefault,omitempty"`
	Version     int64       `json:"version"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Validate checks name, team and spec.
func (c *Cluster) Validate() error {
	if err := ValidateName("cluster", c.Name); err != nil {
		return err
	}
	if err := ValidateName("team", c.Team); err != nil {
		return err
	}
	return c.Spec.Validate()
}
