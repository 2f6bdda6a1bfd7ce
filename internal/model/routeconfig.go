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
	"regexp"
	"strings"
	"time"

	"github.com/flowplane/flowplane/internal/errs"
)

// PathMatchType selects how a route's path pattern is interpreted.
type PathMatchType string

const (
	// MatchExact matches the path byte for byte.
	MatchExact PathMatchType = "exact"
	// MatchPrefix matches on a path prefix.
	MatchPrefix PathMatchType = "prefix"
	// MatchRegex matches the whole path against an RE2 expression.
	MatchRegex PathMatchType = "regex"
	// MatchTemplate matches URI templates such as /users/{id}/orders/{*}.
	MatchTemplate PathMatchType = "template"
)

func (t PathMatchType) Validate() error {
	switch t {
	case MatchExact, MatchPrefix, MatchRegex, MatchTemplate:
		return nil
	default:
		return errs.Validation("unknown path match type %q", string(t))
	}
}

// HeaderMatch constrains a route to requests carrying a matching header.
// Exactly one of Exact, Regex or Present applies; Present alone matches any
// value.
type HeaderMatch struct {
	Name    string `json:"name"`
	Exact   string `json:"exact,omitempty"`
	Regex   string `json:"regex,omitempty"`
	Present bool   `json:"present,omitempty"`
	Invert  bool   `json:"invert,omitempty"`
}

func (h HeaderMatch) Validate() error {
	if h.Name == "" {
		return errs.Validation("header match requires a header name")
	}
	set := 0
	if h.Exact != "" {
		set++
	}
	if h.Regex != "" {
		set++
	}
	if h.Present {
		set++
	}
	if set > 1 {
		return errs.Validation("header match %q must use only one of exact, regex or present", h.Name)
	}
	if h.Regex != "" {
		if _, err := regexp.Compile(h.Regex); err != nil {
			return errs.Validation("header match %q regex: %v", h.Name, err)
		}
	}
	return nil
}

// RouteMatch is the request predicate of a route. Methods is shorthand for
// a ":method" header matcher.
type RouteMatch struct {
	PathType PathMatchType `json:"pathType"`
	Path     string        `json:"path"`
	Headers  []HeaderMatch `json:"headers,omitempty"`
	Methods  []string      `json:"methods,omitempty"`
}

var validMethods = map[string]struct{}{
	"GET": {}, "HEAD": {}, "POST": {}, "PUT": {}, "PATCH": {},
	"DELETE": {}, "OPTIONS": {}, "TRACE": {}, "CONNECT": {},
}

func (m *RouteMatch) Validate() error {
	if err := m.PathType.Validate(); err != nil {
		return err
	}
	if m.Path == "" {
		return errs.Validation("route match requires a path pattern")
	}
	if !strings.HasPrefix(m.Path, "/") {
		return errs.Validation("route path %q must start with /", m.Path)
	}
	if m.PathType == MatchRegex {
		if _, err := regexp.Compile(m.Path); err != nil {
			return errs.Validation("route path regex: %v", err)
		}
	}
	for _, h := range m.Headers {
		if err := h.Validate(); err != nil {
			return err
		}
	}
	for _, method := range m.Methods {
		if _, ok := validMethods[method]; !ok {
			return errs.Validation("unknown HTTP method %q", method)
		}
	}
	return nil
}

// Route forwards matching requests to a cluster. RuleOrder decides match
// precedence within the virtual host; ties break on creation time.
type Route struct {
	ID             RouteID          `json:"id"`
	VirtualHostID  VirtualHostID    `json:"virtualHostId,omitempty"`
	Name           string           `json:"name,omitempty"`
	Match          RouteMatch       `json:"match"`
	ClusterName    string           `json:"clusterName"`
	ClusterID      ClusterID        `json:"clusterId,omitempty"`
	RuleOrder      int64            `json:"ruleOrder"`
	TimeoutSeconds uint32           `json:"timeoutSeconds,omitempty"`
	PrefixRewrite  string           `json:"prefixRewrite,omitempty"`
	HostRewrite    string           `json:"hostRewrite,omitempty"`
	Overrides      *FilterOverrides `json:"overrides,omitempty"`
	Version        int64            `json:"version"`
	CreatedAt      time.Time        `json:"createdAt"`
}

func (r *Route) Validate() error {
	if err := r.Match.Validate(); err != nil {
		return err
	}
	if r.ClusterName == "" {
		return errs.Validation("route requires a target cluster")
	}
	if r.PrefixRewrite != "" && !strings.HasPrefix(r.PrefixRewrite, "/") {
		return errs.Validation("prefix rewrite %q must start with /", r.PrefixRewrite)
	}
	if r.Overrides != nil {
		if err := r.Overrides.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// VirtualHost groups routes under a set of domains within a route
// configuration.
type VirtualHost struct {
	ID            VirtualHostID `json:"id"`
	RouteConfigID RouteConfigID `json:"routeConfigId,omitempty"`
	Name          string        `json:"name"`
	Domains       []string      `json:"domains"`
	RuleOrder     int64         `json:"ruleOrder,omitempty"`
	Routes        []Route       `json:"routes"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// ValidateDomain rejects values that Envoy's virtual host matching cannot
// host. A single leading wildcard label is permitted.
func ValidateDomain(domain string) error {
	if domain == "" {
		return errs.Validation("domain must not be empty")
	}
	if domain == "*" {
		return nil
	}
	rest := domain
	if strings.HasPrefix(domain, "*.") {
		rest = domain[2:]
	}
	if strings.ContainsAny(rest, "*/ ") {
		return errs.Validation("domain %q is not a valid host pattern", domain)
	}
	return nil
}

func (v *VirtualHost) Validate() error {
	if err := ValidateName("virtual host", v.Name); err != nil {
		return err
	}
	if len(v.Domains) == 0 {
		return errs.Validation("virtual host %q requires at least one domain", v.Name)
	}
	for _, d := range v.Domains {
		if err := ValidateDomain(d); err != nil {
			return err
		}
	}
	for i := range v.Routes {
		if err := v.Routes[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// RouteConfig is a named routing table delivered over RDS.
type RouteConfig struct {
	ID           RouteConfigID `json:"id"`
	Team         string        `json:"team"`
	Name         string        `json:"name"`
	VirtualHosts []VirtualHost `json:"virtualHosts"`
	IsDefault    bool          `json:"isDefault,omitempty"`
	Version      int64         `json:"version"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

func (rc *RouteConfig) Validate() error {
	if err := ValidateName("route configuration", rc.Name); err != nil {
		return err
	}
	if err := ValidateName("team", rc.Team); err != nil {
		return err
	}
	seen := map[string]struct{}{}
	for i := range rc.VirtualHosts {
		vh := &rc.VirtualHosts[i]
		if err := vh.Validate(); err != nil {
			return err
		}
		if _, dup := seen[vh.Name]; dup {
			return errs.Validation("duplicate virtual host %q", vh.Name)
		}
		seen[vh.Name] = struct{}{}
	}
	return nil
}
