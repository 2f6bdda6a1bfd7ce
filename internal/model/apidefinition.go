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
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/flowplane/flowplane/internal/errs"
)

// UpstreamTarget is the destination of a platform API route. The
// materializer turns it into a dedicated cluster unless ClusterName reuses
// an existing one.
type UpstreamTarget struct {
	ClusterName string `json:"clusterName,omitempty"`
	Host        string `json:"host,omitempty"`
	Port        uint32 `json:"port,omitempty"`
	UseTLS      bool   `json:"useTls,omitempty"`
}

func (u *UpstreamTarget) Validate() error {
	if u.ClusterName != "" {
		if u.Host != "" || u.Port != 0 {
			return errs.Validation("upstream target must not mix clusterName with host/port")
		}
		return nil
	}
	if u.Host == "" {
		return errs.Validation("upstream target requires a host or a cluster name")
	}
	if u.Port == 0 || u.Port > 65535 {
		return errs.Validation("upstream target port %d out of range", u.Port)
	}
	return nil
}

// APIRoute is one declarative route of an API definition. The materializer
// expands it into a native route row plus supporting resources.
type APIRoute struct {
	ID             RouteID          `json:"id,omitempty"`
	PathType       PathMatchType    `json:"pathType"`
	Path           string           `json:"path"`
	Methods        []string         `json:"methods,omitempty"`
	Headers        []HeaderMatch    `json:"headers,omitempty"`
	Upstream       UpstreamTarget   `json:"upstream"`
	TimeoutSeconds uint32           `json:"timeoutSeconds,omitempty"`
	PrefixRewrite  string           `json:"prefixRewrite,omitempty"`
	Overrides      *FilterOverrides `json:"overrides,omitempty"`
	RuleOrder      int64            `json:"ruleOrder,omitempty"`
}

func (r *APIRoute) Validate() error {
	match := RouteMatch{PathType: r.PathType, Path: r.Path, Headers: r.Headers, Methods: r.Methods}
	if err := match.Validate(); err != nil {
		return err
	}
	if err := r.Upstream.Validate(); err != nil {
		return err
	}
	if r.Overrides != nil {
		if err := r.Overrides.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// APIDefinition is the Platform-API abstraction: one domain, a set of
// declarative routes, and optional dedicated-listener isolation. The
// materializer projects it onto native resources and records their
// identifiers back here.
type APIDefinition struct {
	ID                APIDefinitionID `json:"id"`
	Team              string          `json:"team"`
	Domain            string          `json:"domain"`
	ListenerIsolation bool            `json:"listenerIsolation,omitempty"`
	TLS               *ListenerTLS    `json:"tls,omitempty"`
	Isolation         *IsolationSpec  `json:"isolation,omitempty"`
	Routes            []APIRoute      `json:"routes"`

	// Materialized resource identifiers, empty until created.
	ListenerID    ListenerID    `json:"listenerId,omitempty"`
	RouteConfigID RouteConfigID `json:"routeConfigId,omitempty"`
	BootstrapURI  string        `json:"bootstrapUri,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsolationSpec configures the dedicated listener of an isolated API.
type IsolationSpec struct {
	BindAddress string `json:"bindAddress,omitempty"`
	Port        uint32 `json:"port"`
}

func (i *IsolationSpec) Validate() error {
	if i.Port == 0 || i.Port > 65535 {
		return errs.Validation("isolation listener port %d out of range", i.Port)
	}
	return nil
}

// Validate checks cross-field consistency of the definition.
func (d *APIDefinition) Validate() error {
	if err := ValidateName("team", d.Team); err != nil {
		return err
	}
	if err := ValidateDomain(d.Domain); err != nil {
		return err
	}
	if d.Domain == "*" {
		return errs.Validation("api definition domain must not be the global wildcard")
	}
	if len(d.Routes) == 0 {
		return errs.Validation("api definition requires at least one route")
	}
	if d.ListenerIsolation {
		if d.Isolation == nil {
			return errs.Validation("listener isolation requires an isolation spec")
		}
		if err := d.Isolation.Validate(); err != nil {
			return err
		}
	} else if d.Isolation != nil {
		return errs.Validation("isolation spec requires listenerIsolation")
	}
	if d.TLS != nil {
		if !d.ListenerIsolation {
			return errs.Validation("api-level TLS requires listener isolation")
		}
		if err := d.TLS.Validate(); err != nil {
			return err
		}
	}
	seen := map[string]struct{}{}
	for i := range d.Routes {
		r := &d.Routes[i]
		if err := r.Validate(); err != nil {
			return fmt.Errorf("route %d: %w", i, err)
		}
		key := routeKey(r.PathType, r.Path, r.Methods)
		if _, dup := seen[key]; dup {
			return errs.Validation("duplicate route %s %s within api definition", r.PathType, r.Path)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// RouteKey identifies a route rule for collision checks: match type, path
// pattern and the sorted method set.
func (r *APIRoute) RouteKey() string {
	return routeKey(r.PathType, r.Path, r.Methods)
}

func routeKey(t PathMatchType, path string, methods []string) string {
	return fmt.Sprintf("%s|%s|%s", t, path, sortedJoin(methods))
}

func sortedJoin(ss []string) string {
	if len(ss) == 0 {
		return "*"
	}
	sorted := make([]string, len(ss))
	copy(sorted, ss)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
