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
	"sort"
	"strings"
	"time"

	envoy_config_core_v3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	envoy_config_route_v3 "github.com/envoyproxy/go-control-plane/envoy/config/route/v3"
	envoy_uri_template_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/path/match/uri_template/v3"
	envoy_matcher_v3 "github.com/envoyproxy/go-control-plane/envoy/type/matcher/v3"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/flowplane/flowplane/internal/envoy"
	"github.com/flowplane/flowplane/internal/model"
	"github.com/flowplane/flowplane/internal/protobuf"
)

// RouteConfiguration compiles one routing table. Virtual hosts order by
// rule order then name; routes within a host order by rule order with ties
// broken on creation time, so rule precedence is stable across recompiles.
func RouteConfiguration(rc *model.RouteConfig, snap *model.Snapshot) *envoy_config_route_v3.RouteConfiguration {
	hosts := make([]model.VirtualHost, len(rc.VirtualHosts))
	copy(hosts, rc.VirtualHosts)
	sort.SliceStable(hosts, func(i, j int) bool {
		if hosts[i].RuleOrder != hosts[j].RuleOrder {
			return hosts[i].RuleOrder < hosts[j].RuleOrder
		}
		return hosts[i].Name < hosts[j].Name
	})

	out := &envoy_config_route_v3.RouteConfiguration{
		Name: envoy.RouteConfigName(rc),
	}
	for i := range hosts {
		out.VirtualHosts = append(out.VirtualHosts, virtualHost(&hosts[i], snap))
	}
	return out
}

func virtualHost(vh *model.VirtualHost, snap *model.Snapshot) *envoy_config_route_v3.VirtualHost {
	routes := make([]model.Route, len(vh.Routes))
	copy(routes, vh.Routes)
	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].RuleOrder != routes[j].RuleOrder {
			return routes[i].RuleOrder < routes[j].RuleOrder
		}
		return routes[i].CreatedAt.Before(routes[j].CreatedAt)
	})

	out := &envoy_config_route_v3.VirtualHost{
		Name:                 vh.Name,
		Domains:              vh.Domains,
		TypedPerFilterConfig: scopedAttachmentConfigs(snap, model.ScopeVirtualHost, string(vh.ID)),
	}
	for i := range routes {
		out.Routes = append(out.Routes, route(&routes[i], snap))
	}
	return out
}

func route(r *model.Route, snap *model.Snapshot) *envoy_config_route_v3.Route {
	action := &envoy_config_route_v3.RouteAction{
		ClusterSpecifier: &envoy_config_route_v3.RouteAction_Cluster{
			Cluster: routeClusterName(r, snap),
		},
	}
	if r.TimeoutSeconds > 0 {
		action.Timeout = durationpb.New(time.Duration(r.TimeoutSeconds) * time.Second)
	}
	if r.PrefixRewrite != "" {
		action.PrefixRewrite = r.PrefixRewrite
	}
	if r.HostRewrite != "" {
		action.HostRewriteSpecifier = &envoy_config_route_v3.RouteAction_HostRewriteLiteral{
			HostRewriteLiteral: r.HostRewrite,
		}
	}

	configs := scopedAttachmentConfigs(snap, model.ScopeRoute, string(r.ID))
	if r.Overrides != nil {
		// The route's own override document wins over route-scope
		// attachments.
		if configs == nil {
			configs = map[string]*anypb.Any{}
		}
		for name, conf := range overrideConfigs(r.Overrides) {
			configs[name] = conf
		}
	}

	return &envoy_config_route_v3.Route{
		Name:                 r.Name,
		Match:                routeMatch(&r.Match),
		Action:               &envoy_config_route_v3.Route_Route{Route: action},
		TypedPerFilterConfig: configs,
	}
}

// routeClusterName resolves the compiled name of the route's target
// cluster. The id pin wins; the name falls back to snapshot-wide lookup.
func routeClusterName(r *model.Route, snap *model.Snapshot) string {
	if r.ClusterID != "" {
		for _, c := range snap.Clusters {
			if c.ID == r.ClusterID {
				return envoy.ClusterName(c)
			}
		}
	}
	if c := snap.ClusterByName(r.ClusterName); c != nil {
		return envoy.ClusterName(c)
	}
	return r.ClusterName
}

func routeMatch(m *model.RouteMatch) *envoy_config_route_v3.RouteMatch {
	out := &envoy_config_route_v3.RouteMatch{}

	switch m.PathType {
	case model.MatchExact:
		out.PathSpecifier = &envoy_config_route_v3.RouteMatch_Path{Path: m.Path}
	case model.MatchRegex:
		out.PathSpecifier = &envoy_config_route_v3.RouteMatch_SafeRegex{
			SafeRegex: &envoy_matcher_v3.RegexMatcher{Regex: m.Path},
		}
	case model.MatchTemplate:
		out.PathSpecifier = &envoy_config_route_v3.RouteMatch_PathMatchPolicy{
			PathMatchPolicy: &envoy_config_core_v3.TypedExtensionConfig{
				Name: "envoy.path.match.uri_template.uri_template_matcher",
				TypedConfig: protobuf.MustMarshalAny(&envoy_uri_template_v3.UriTemplateMatchConfig{
					PathTemplate: m.Path,
				}),
			},
		}
	default:
		out.PathSpecifier = &envoy_config_route_v3.RouteMatch_Prefix{Prefix: m.Path}
	}

	if len(m.Methods) > 0 {
		out.Headers = append(out.Headers, methodMatcher(m.Methods))
	}
	for _, h := range m.Headers {
		out.Headers = append(out.Headers, headerMatcher(h))
	}
	return out
}

// methodMatcher constrains the :method pseudo-header. Multiple methods
// collapse into one anchored alternation.
func methodMatcher(methods []string) *envoy_config_route_v3.HeaderMatcher {
	upper := make([]string, len(methods))
	for i, m := range methods {
		upper[i] = strings.ToUpper(m)
	}
	sort.Strings(upper)

	matcher := &envoy_matcher_v3.StringMatcher{}
	if len(upper) == 1 {
		matcher.MatchPattern = &envoy_matcher_v3.StringMatcher_Exact{Exact: upper[0]}
	} else {
		matcher.MatchPattern = &envoy_matcher_v3.StringMatcher_SafeRegex{
			SafeRegex: &envoy_matcher_v3.RegexMatcher{
				Regex: "^(" + strings.Join(upper, "|") + ")$",
			},
		}
	}

	return &envoy_config_route_v3.HeaderMatcher{
		Name: ":method",
		HeaderMatchSpecifier: &envoy_config_route_v3.HeaderMatcher_StringMatch{
			StringMatch: matcher,
		},
	}
}

func headerMatcher(h model.HeaderMatch) *envoy_config_route_v3.HeaderMatcher {
	out := &envoy_config_route_v3.HeaderMatcher{
		Name:        h.Name,
		InvertMatch: h.Invert,
	}
	switch {
	case h.Exact != "":
		out.HeaderMatchSpecifier = &envoy_config_route_v3.HeaderMatcher_StringMatch{
			StringMatch: &envoy_matcher_v3.StringMatcher{
				MatchPattern: &envoy_matcher_v3.StringMatcher_Exact{Exact: h.Exact},
			},
		}
	case h.Regex != "":
		out.HeaderMatchSpecifier = &envoy_config_route_v3.HeaderMatcher_StringMatch{
			StringMatch: &envoy_matcher_v3.StringMatcher{
				MatchPattern: &envoy_matcher_v3.StringMatcher_SafeRegex{
					SafeRegex: &envoy_matcher_v3.RegexMatcher{Regex: h.Regex},
				},
			},
		}
	default:
		out.HeaderMatchSpecifier = &envoy_config_route_v3.HeaderMatcher_PresentMatch{
			PresentMatch: true,
		}
	}
	return out
}

// scopedAttachmentConfigs narrows filters attached below the listener.
// Only filter families Envoy accepts as a full per-route replacement
// translate here; the rest act chain-wide.
func scopedAttachmentConfigs(snap *model.Snapshot, scope model.AttachmentScope, targetID string) map[string]*anypb.Any {
	attachments := snap.AttachmentsFor(scope, targetID)
	if len(attachments) == 0 {
		return nil
	}

	configs := map[string]*anypb.Any{}
	for _, a := range attachments {
		f := snap.FilterByID(a.FilterID)
		if f == nil {
			continue
		}
		switch f.Type {
		case model.FilterCORS:
			configs[filterNameCORS] = protobuf.MustMarshalAny(corsPolicy(f.Spec.CORS))
		case model.FilterLocalRateLimit:
			configs[filterNameLocalRateLimit] = protobuf.MustMarshalAny(localRateLimit(f.Spec.LocalRateLimit, f.Name))
		case model.FilterHeaderMutation:
			configs[filterNameHeaderMutation] = protobuf.MustMarshalAny(headerMutation(f.Spec.HeaderMutation))
		}
	}
	if len(configs) == 0 {
		return nil
	}
	return configs
}
