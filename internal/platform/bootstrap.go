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

package platform

import (
	"context"

	"google.golang.org/protobuf/encoding/protojson"
	"sigs.k8s.io/yaml"

	"github.com/flowplane/flowplane/internal/auth"
	"github.com/flowplane/flowplane/internal/envoy"
	envoy_v3 "github.com/flowplane/flowplane/internal/envoy/v3"
	"github.com/flowplane/flowplane/internal/errs"
	"github.com/flowplane/flowplane/internal/model"
)

// Bootstrap document encodings.
const (
	BootstrapFormatYAML = "yaml"
	BootstrapFormatJSON = "json"
)

// Bootstrap scopes. A team scope directs the node at everything the team
// owns, an api scope at the resources one definition materialized.
const (
	BootstrapScopeTeam = "team"
	BootstrapScopeAPI  = "api"
)

// BootstrapRequest carries the caller's choices for a rendered bootstrap
// document. Zero values pick the defaults.
type BootstrapRequest struct {
	Format string
	Scope  string

	// IncludeDefault overrides whether the node also receives the shared
	// gateway resources. Nil derives it from the scope.
	IncludeDefault *bool
}

func (r *BootstrapRequest) normalize() error {
	switch r.Format {
	case "":
		r.Format = BootstrapFormatYAML
	case BootstrapFormatYAML, BootstrapFormatJSON:
	default:
		return errs.Validation("unknown bootstrap format %q", r.Format)
	}
	switch r.Scope {
	case "":
		r.Scope = BootstrapScopeTeam
	case BootstrapScopeTeam, BootstrapScopeAPI:
	default:
		return errs.Validation("unknown bootstrap scope %q", r.Scope)
	}
	return nil
}

// RenderBootstrap builds the Envoy bootstrap document for the given
// configuration and encodes it. YAML output goes through the canonical
// protojson form so field names match the Envoy wire names.
func RenderBootstrap(c *envoy.BootstrapConfig, format string) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	doc := envoy_v3.Bootstrap(c)
	data, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(doc)
	if err != nil {
		return nil, errs.Internal(err, "encoding bootstrap document")
	}

	switch format {
	case BootstrapFormatJSON:
		return data, nil
	case "", BootstrapFormatYAML:
		out, err := yaml.JSONToYAML(data)
		if err != nil {
			return nil, errs.Internal(err, "encoding bootstrap document")
		}
		return out, nil
	default:
		return nil, errs.Validation("unknown bootstrap format %q", format)
	}
}

// Bootstrap renders the bootstrap document for the proxy fronting one API
// definition. The base config carries the control plane's advertised xDS
// endpoint; team and node identity are filled in here.
func (m *Materializer) Bootstrap(ctx context.Context, actor *auth.Context, id model.APIDefinitionID, base envoy.BootstrapConfig, req BootstrapRequest) ([]byte, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	d, err := m.store.GetAPIDefinitionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(actor, "api-definitions:read", d.Team); err != nil {
		return nil, err
	}

	base.Team = d.Team
	switch {
	case req.IncludeDefault != nil:
		base.IncludeDefault = *req.IncludeDefault
	case req.Scope == BootstrapScopeAPI:
		// An isolated definition carries its own listener; only shared
		// ones need the default gateway.
		base.IncludeDefault = !d.ListenerIsolation
	default:
		base.IncludeDefault = true
	}
	return RenderBootstrap(&base, req.Format)
}

// TeamBootstrap renders the bootstrap document for a node serving a whole
// team.
func (m *Materializer) TeamBootstrap(ctx context.Context, actor *auth.Context, team string, base envoy.BootstrapConfig, req BootstrapRequest) ([]byte, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	if _, err := m.store.GetTeamByName(ctx, team); err != nil {
		return nil, err
	}
	if err := auth.Authorize(actor, "api-definitions:read", team); err != nil {
		return nil, err
	}

	base.Team = team
	if req.IncludeDefault != nil {
		base.IncludeDefault = *req.IncludeDefault
	} else {
		base.IncludeDefault = true
	}
	return RenderBootstrap(&base, req.Format)
}
