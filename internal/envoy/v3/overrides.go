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
	envoy_filter_http_compressor_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/compressor/v3"
	envoy_filter_http_ext_authz_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/ext_authz/v3"
	envoy_filter_http_ext_proc_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/ext_proc/v3"
	envoy_filter_http_jwt_authn_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/jwt_authn/v3"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/flowplane/flowplane/internal/model"
	"github.com/flowplane/flowplane/internal/protobuf"
)

// overrideConfigs compiles a per-route override document into the
// typed_per_filter_config map. Keys are the canonical filter names used in
// the connection manager chain.
func overrideConfigs(o *model.FilterOverrides) map[string]*anypb.Any {
	if o.Empty() {
		return nil
	}
	configs := map[string]*anypb.Any{}

	if o.CORS != nil {
		configs[filterNameCORS] = protobuf.MustMarshalAny(corsPolicy(o.CORS))
	}

	if o.RateLimit != nil {
		// The per-route rate limit replaces the chain-level bucket in
		// full.
		configs[filterNameLocalRateLimit] = protobuf.MustMarshalAny(localRateLimit(o.RateLimit, "route"))
	}

	if o.JWTAuthn != nil {
		configs[filterNameJWTAuthn] = protobuf.MustMarshalAny(jwtPerRoute(o.JWTAuthn))
	}

	if o.ExtAuthz != nil {
		configs[filterNameExtAuthz] = protobuf.MustMarshalAny(extAuthzPerRoute(o.ExtAuthz))
	}

	if o.HeaderMutation != nil {
		configs[filterNameHeaderMutation] = protobuf.MustMarshalAny(headerMutation(o.HeaderMutation))
	}

	if o.ExtProc != nil && o.ExtProc.Disabled {
		configs[filterNameExtProc] = protobuf.MustMarshalAny(&envoy_filter_http_ext_proc_v3.ExtProcPerRoute{
			Override: &envoy_filter_http_ext_proc_v3.ExtProcPerRoute_Disabled{Disabled: true},
		})
	}

	if o.Compressor != nil && o.Compressor.Disabled {
		configs[filterNameCompressor] = protobuf.MustMarshalAny(&envoy_filter_http_compressor_v3.CompressorPerRoute{
			Override: &envoy_filter_http_compressor_v3.CompressorPerRoute_Disabled{Disabled: true},
		})
	}

	if len(configs) == 0 {
		return nil
	}
	return configs
}

// jwtPerRoute resolves a route override against the filter's requirement
// map: provider entries exist per name, multi-provider requirements go
// through the catch-all entry.
func jwtPerRoute(o *model.JWTRouteOverride) *envoy_filter_http_jwt_authn_v3.PerRouteConfig {
	if o.Disabled {
		return &envoy_filter_http_jwt_authn_v3.PerRouteConfig{
			RequirementSpecifier: &envoy_filter_http_jwt_authn_v3.PerRouteConfig_Disabled{Disabled: true},
		}
	}

	name := jwtRequirementAny
	if len(o.Requirement) == 1 {
		name = o.Requirement[0]
	}
	return &envoy_filter_http_jwt_authn_v3.PerRouteConfig{
		RequirementSpecifier: &envoy_filter_http_jwt_authn_v3.PerRouteConfig_RequirementName{
			RequirementName: name,
		},
	}
}

func extAuthzPerRoute(o *model.ExtAuthzRouteOverride) *envoy_filter_http_ext_authz_v3.ExtAuthzPerRoute {
	if o.Disabled {
		return &envoy_filter_http_ext_authz_v3.ExtAuthzPerRoute{
			Override: &envoy_filter_http_ext_authz_v3.ExtAuthzPerRoute_Disabled{Disabled: true},
		}
	}
	return &envoy_filter_http_ext_authz_v3.ExtAuthzPerRoute{
		Override: &envoy_filter_http_ext_authz_v3.ExtAuthzPerRoute_CheckSettings{
			CheckSettings: &envoy_filter_http_ext_authz_v3.CheckSettings{
				ContextExtensions: o.ContextExtensions,
			},
		},
	}
}
