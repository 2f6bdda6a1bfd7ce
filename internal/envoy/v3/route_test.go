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
	"time"

	envoy_config_route_v3 "github.com/envoyproxy/go-control-plane/envoy/config/route/v3"
	envoy_filter_http_jwt_authn_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/jwt_authn/v3"
	envoy_uri_template_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/path/match/uri_template/v3"
	envoy_matcher_v3 "github.com/envoyproxy/go-control-plane/envoy/type/matcher/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/flowplane/flowplane/internal/model"
	"github.com/flowplane/flowplane/internal/protobuf"
)

func TestRouteConfigurationOrdering(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	rc := &model.RouteConfig{
		ID:   "rc-1",
		Team: "payments",
		Name: "edge",
		VirtualHosts: []model.VirtualHost{
			{
				ID: "vh-2", Name: "fallback", Domains: []string{"*"}, RuleOrder: 100,
				Routes: []model.Route{{
					ID: "r-3", ClusterName: "payments/default",
					Match: model.RouteMatch{PathType: model.MatchPrefix, Path: "/"},
				}},
			},
			{
				ID: "vh-1", Name: "api", Domains: []string{"api.example.com"}, RuleOrder: 10,
				Routes: []model.Route{
					{
						ID: "r-2", Name: "catchall", ClusterName: "payments/app", RuleOrder: 50,
						Match:     model.RouteMatch{PathType: model.MatchPrefix, Path: "/"},
						CreatedAt: now,
					},
					{
						ID: "r-1", Name: "checkout", ClusterName: "payments/checkout", RuleOrder: 10,
						Match:     model.RouteMatch{PathType: model.MatchExact, Path: "/checkout"},
						CreatedAt: now.Add(time.Hour),
					},
				},
			},
		},
	}

	got := RouteConfiguration(rc, &model.Snapshot{})

	assert.Equal(t, "payments/edge", got.Name)
	require.Len(t, got.VirtualHosts, 2)
	// Virtual hosts order by rule order, routes by rule order then age.
	assert.Equal(t, "api", got.VirtualHosts[0].Name)
	assert.Equal(t, "fallback", got.VirtualHosts[1].Name)
	require.Len(t, got.VirtualHosts[0].Routes, 2)
	assert.Equal(t, "checkout", got.VirtualHosts[0].Routes[0].Name)
	assert.Equal(t, "catchall", got.VirtualHosts[0].Routes[1].Name)
}

func TestRouteAction(t *testing.T) {
	snap := &model.Snapshot{
		Clusters: []*model.Cluster{{ID: "c-1", Team: "payments", Name: "checkout"}},
	}

	r := &model.Route{
		ID:             "r-1",
		ClusterName:    "checkout",
		ClusterID:      "c-1",
		TimeoutSeconds: 15,
		PrefixRewrite:  "/internal",
		HostRewrite:    "checkout.internal",
		Match:          model.RouteMatch{PathType: model.MatchPrefix, Path: "/checkout"},
	}

	got := route(r, snap)
	action := got.GetRoute()
	require.NotNil(t, action)
	assert.Equal(t, "payments/checkout", action.GetCluster())
	protobuf.ExpectEqual(t, durationpb.New(15*time.Second), action.Timeout)
	assert.Equal(t, "/internal", action.PrefixRewrite)
	assert.Equal(t, "checkout.internal", action.GetHostRewriteLiteral())
}

func TestRouteClusterNameFallsBackToRawName(t *testing.T) {
	r := &model.Route{ClusterName: "external-cluster"}
	assert.Equal(t, "external-cluster", routeClusterName(r, &model.Snapshot{}))
}

func TestRouteMatch(t *testing.T) {
	tests := map[string]struct {
		match model.RouteMatch
		want  *envoy_config_route_v3.RouteMatch
	}{
		"prefix": {
			match: model.RouteMatch{PathType: model.MatchPrefix, Path: "/api"},
			want: &envoy_config_route_v3.RouteMatch{
				PathSpecifier: &envoy_config_route_v3.RouteMatch_Prefix{Prefix: "/api"},
			},
		},
		"exact": {
			match: model.RouteMatch{PathType: model.MatchExact, Path: "/healthz"},
			want: &envoy_config_route_v3.RouteMatch{
				PathSpecifier: &envoy_config_route_v3.RouteMatch_Path{Path: "/healthz"},
			},
		},
		"regex": {
			match: model.RouteMatch{PathType: model.MatchRegex, Path: "/users/[0-9]+"},
			want: &envoy_config_route_v3.RouteMatch{
				PathSpecifier: &envoy_config_route_v3.RouteMatch_SafeRegex{
					SafeRegex: &envoy_matcher_v3.RegexMatcher{Regex: "/users/[0-9]+"},
				},
			},
		},
		"single method": {
			match: model.RouteMatch{PathType: model.MatchPrefix, Path: "/", Methods: []string{"get"}},
			want: &envoy_config_route_v3.RouteMatch{
				PathSpecifier: &envoy_config_route_v3.RouteMatch_Prefix{Prefix: "/"},
				Headers: []*envoy_config_route_v3.HeaderMatcher{{
					Name: ":method",
					HeaderMatchSpecifier: &envoy_config_route_v3.HeaderMatcher_StringMatch{
						StringMatch: &envoy_matcher_v3.StringMatcher{
							MatchPattern: &envoy_matcher_v3.StringMatcher_Exact{Exact: "GET"},
						},
					},
				}},
			},
		},
		"several methods collapse into an alternation": {
			match: model.RouteMatch{PathType: model.MatchPrefix, Path: "/", Methods: []string{"POST", "get"}},
			want: &envoy_config_route_v3.RouteMatch{
				PathSpecifier: &envoy_config_route_v3.RouteMatch_Prefix{Prefix: "/"},
				Headers: []*envoy_config_route_v3.HeaderMatcher{{
					Name: ":method",
					HeaderMatchSpecifier: &envoy_config_route_v3.HeaderMatcher_StringMatch{
						StringMatch: &envoy_matcher_v3.StringMatcher{
							MatchPattern: &envoy_matcher_v3.StringMatcher_SafeRegex{
								SafeRegex: &envoy_matcher_v3.RegexMatcher{Regex: "^(GET|POST)$"},
							},
						},
					},
				}},
			},
		},
		"header presence": {
			match: model.RouteMatch{
				PathType: model.MatchPrefix, Path: "/",
				Headers: []model.HeaderMatch{{Name: "x-debug", Present: true}},
			},
			want: &envoy_config_route_v3.RouteMatch{
				PathSpecifier: &envoy_config_route_v3.RouteMatch_Prefix{Prefix: "/"},
				Headers: []*envoy_config_route_v3.HeaderMatcher{{
					Name: "x-debug",
					HeaderMatchSpecifier: &envoy_config_route_v3.HeaderMatcher_PresentMatch{
						PresentMatch: true,
					},
				}},
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got := routeMatch(&tc.match)
			protobuf.ExpectEqual(t, tc.want, got)
		})
	}
}

func TestRouteMatchTemplate(t *testing.T) {
	got := routeMatch(&model.RouteMatch{
		PathType: model.MatchTemplate,
		Path:     "/users/{id}/orders/*",
	})

	// The template matcher rides the path_specifier oneof.
	policy := got.GetPathMatchPolicy()
	require.NotNil(t, policy)
	assert.Equal(t, "envoy.path.match.uri_template.uri_template_matcher", policy.Name)

	var conf envoy_uri_template_v3.UriTemplateMatchConfig
	require.NoError(t, policy.TypedConfig.UnmarshalTo(&conf))
	assert.Equal(t, "/users/{id}/orders/*", conf.PathTemplate)
}

func TestRouteOverridesWinOverScopedAttachments(t *testing.T) {
	limit := &model.Filter{
		ID: "f-limit", Team: "payments", Name: "limit", Type: model.FilterLocalRateLimit,
		Spec: model.FilterSpec{LocalRateLimit: &model.LocalRateLimitConfig{
			MaxTokens: 10, FillIntervalMillis: 1000,
		}},
	}
	snap := &model.Snapshot{
		Filters: []*model.Filter{limit},
		Attachments: []*model.FilterAttachment{{
			ID: "a-1", FilterID: "f-limit", Scope: model.ScopeRoute, TargetID: "r-1",
		}},
	}

	r := &model.Route{
		ID:          "r-1",
		ClusterName: "payments/app",
		Match:       model.RouteMatch{PathType: model.MatchPrefix, Path: "/"},
		Overrides: &model.FilterOverrides{
			RateLimit: &model.LocalRateLimitConfig{MaxTokens: 99, FillIntervalMillis: 1000},
			JWTAuthn:  &model.JWTRouteOverride{Disabled: true},
		},
	}

	got := route(r, snap)
	require.NotNil(t, got.TypedPerFilterConfig)

	// The route's own override replaces the attachment-derived config.
	rateAny := got.TypedPerFilterConfig[filterNameLocalRateLimit]
	require.NotNil(t, rateAny)
	protobuf.ExpectEqual(t,
		protobuf.MustMarshalAny(localRateLimit(r.Overrides.RateLimit, "route")), rateAny)

	jwtAny := got.TypedPerFilterConfig[filterNameJWTAuthn]
	require.NotNil(t, jwtAny)
	protobuf.ExpectEqual(t, protobuf.MustMarshalAny(&envoy_filter_http_jwt_authn_v3.PerRouteConfig{
		RequirementSpecifier: &envoy_filter_http_jwt_authn_v3.PerRouteConfig_Disabled{Disabled: true},
	}), jwtAny)
}

func TestJWTPerRouteRequirement(t *testing.T) {
	tests := map[string]struct {
		override model.JWTRouteOverride
		want     string
	}{
		"single provider":     {override: model.JWTRouteOverride{Requirement: []string{"idp"}}, want: "idp"},
		"several go through the catch-all": {override: model.JWTRouteOverride{Requirement: []string{"idp", "legacy"}}, want: jwtRequirementAny},
		"none defaults to the catch-all":   {override: model.JWTRouteOverride{}, want: jwtRequirementAny},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got := jwtPerRoute(&tc.override)
			assert.Equal(t, tc.want, got.GetRequirementName())
		})
	}
}
