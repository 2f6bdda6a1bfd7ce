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

package auth

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/flowplane/flowplane/internal/errs"
)

// ScopeAdminAll grants everything, everywhere.
const ScopeAdminAll = "admin:all"

// Resource classes a scope may name.
var scopeResources = map[string]bool{
	"teams":           true,
	"clusters":        true,
	"listeners":       true,
	"routes":          true,
	"filters":         true,
	"secrets":         true,
	"api-definitions": true,
	"tokens":          true,
	"audit-logs":      true,
}

var scopeActions = map[string]bool{
	"read":  true,
	"write": true,
}

var teamSegmentRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// Scope is a parsed capability string. Team is empty for global scopes.
type Scope struct {
	Team     string
	Resource string
	Action   string
}

func (s Scope) String() string {
	if s.Team != "" {
		return fmt.Sprintf("team:%s:%s:%s", s.Team, s.Resource, s.Action)
	}
	return fmt.Sprintf("%s:%s", s.Resource, s.Action)
}

// ParseScope validates one capability string against the grammar:
// "resource:action", "admin:all", or "team:<team>:resource:action".
func ParseScope(raw string) (Scope, error) {
	if raw == ScopeAdminAll {
		return Scope{Resource: "admin", Action: "all"}, nil
	}

	parts := strings.Split(raw, ":")
	switch len(parts) {
	case 2:
		resource, action := parts[0], parts[1]
		if !scopeResources[resource] {
			return Scope{}, errs.Validation("scope %q names unknown resource %q", raw, resource)
		}
		if !scopeActions[action] {
			return Scope{}, errs.Validation("scope %q names unknown action %q", raw, action)
		}
		return Scope{Resource: resource, Action: action}, nil
	case 4:
		if parts[0] != "team" {
			return Scope{}, errs.Validation("scope %q is malformed", raw)
		}
		team, resource, action := parts[1], parts[2], parts[3]
		if !teamSegmentRe.MatchString(team) {
			return Scope{}, errs.Validation("scope %q names invalid team %q", raw, team)
		}
		if !scopeResources[resource] {
			return Scope{}, errs.Validation("scope %q names unknown resource %q", raw, resource)
		}
		if !scopeActions[action] {
			return Scope{}, errs.Validation("scope %q names unknown action %q", raw, action)
		}
		return Scope{Team: team, Resource: resource, Action: action}, nil
	default:
		return Scope{}, errs.Validation("scope %q is malformed", raw)
	}
}

// ValidateScopes parses every scope string, rejecting the whole set on the
// first malformed entry.
func ValidateScopes(raw []string) error {
	for _, s := range raw {
		if _, err := ParseScope(s); err != nil {
			return err
		}
	}
	return nil
}

// Context is the authenticated identity attached to every admin request.
type Context struct {
	TokenID   string
	TokenName string
	Scopes    []string
	UserID    string
	UserEmail string
	ClientIP  string
	UserAgent string
}

// HasScope reports a literal scope match.
func (c *Context) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the context carries the admin wildcard.
func (c *Context) IsAdmin() bool { return c.HasScope(ScopeAdminAll) }

// Authorize grants when the context carries admin:all, the required scope
// itself, or the equivalent scope bound to the resource's team. It returns
// Forbidden otherwise.
func Authorize(c *Context, required string, team string) error {
	if c == nil {
		return errs.Unauthenticated("no authenticated identity")
	}
	if c.IsAdmin() || c.HasScope(required) {
		return nil
	}
	if team != "" && c.HasScope(fmt.Sprintf("team:%s:%s", team, required)) {
		return nil
	}
	return errs.Forbidden("scope %q is required", required).
		WithDetail("requiredScope", required)
}

// UIScopes is the scope list shown to unauthenticated UI users: global
// read/write pairs per resource class.
func UIScopes() []string {
	out := make([]string, 0, len(scopeResources)*2)
	for _, resource := range orderedResources() {
		out = append(out, resource+":read", resource+":write")
	}
	return out
}

// AllScopes is the full registry, admin wildcard included, served to
// administrators.
func AllScopes() []string {
	return append([]string{ScopeAdminAll}, UIScopes()...)
}

func orderedResources() []string {
	return []string{
		"teams", "clusters", "listeners", "routes", "filters",
		"secrets", "api-definitions", "tokens", "audit-logs",
	}
}
