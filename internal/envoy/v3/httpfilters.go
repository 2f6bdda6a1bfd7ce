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
	"strconv"
	"strings"
	"time"

	envoy_mutation_rules_v3 "github.com/envoyproxy/go-control-plane/envoy/config/common/mutation_rules/v3"
	envoy_config_core_v3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	envoy_config_route_v3 "github.com/envoyproxy/go-control-plane/envoy/config/route/v3"
	envoy_compression_brotli_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/compression/brotli/compressor/v3"
	envoy_compression_gzip_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/compression/gzip/compressor/v3"
	envoy_compression_zstd_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/compression/zstd/compressor/v3"
	envoy_filter_http_compressor_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/compressor/v3"
	envoy_filter_http_cors_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/cors/v3"
	envoy_filter_http_ext_authz_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/ext_authz/v3"
	envoy_filter_http_ext_proc_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/ext_proc/v3"
	envoy_filter_http_header_mutation_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/header_mutation/v3"
	envoy_filter_http_jwt_authn_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/jwt_authn/v3"
	envoy_filter_http_local_ratelimit_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/local_ratelimit/v3"
	envoy_filter_http_router_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/router/v3"
	envoy_filter_http_wasm_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/wasm/v3"
	envoy_filter_network_hcm_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/network/http_connection_manager/v3"
	envoy_wasm_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/wasm/v3"
	envoy_matcher_v3 "github.com/envoyproxy/go-control-plane/envoy/type/matcher/v3"
	envoy_type_v3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/flowplane/flowplane/internal/errs"
	"github.com/flowplane/flowplane/internal/model"
	"github.com/flowplane/flowplane/internal/protobuf"
)

// Canonical Envoy filter names. Per-route override configs key on these,
// so the chain builder and the route builder must agree.
const (
	filterNameCORS           = "envoy.filters.http.cors"
	filterNameJWTAuthn       = "envoy.filters.http.jwt_authn"
	filterNameHeaderMutation = "envoy.filters.http.header_mutation"
	filterNameLocalRateLimit = "envoy.filters.http.local_ratelimit"
	filterNameExtAuthz       = "envoy.filters.http.ext_authz"
	filterNameExtProc        = "envoy.filters.http.ext_proc"
	filterNameCompressor     = "envoy.filters.http.compressor"
	filterNameWASM           = "envoy.filters.http.wasm"
	filterNameRouter         = "envoy.filters.http.router"
)

func filterName(t model.FilterType) string {
	switch t {
	case model.FilterCORS:
		return filterNameCORS
	case model.FilterJWTAuthn:
		return filterNameJWTAuthn
	case model.FilterHeaderMutation:
		return filterNameHeaderMutation
	case model.FilterLocalRateLimit:
		return filterNameLocalRateLimit
	case model.FilterExtAuthz:
		return filterNameExtAuthz
	case model.FilterExtProc:
		return filterNameExtProc
	case model.FilterCompressor:
		return filterNameCompressor
	case model.FilterWASM:
		return filterNameWASM
	default:
		return string(t)
	}
}

// httpFilterChain assembles the connection manager chain for the given
// attachments. Attachments are ordered by their order field, ties broken on
// filter name, duplicates collapsed on filter id. The router filter
// terminates the chain.
func httpFilterChain(attachments []*model.FilterAttachment, snap *model.Snapshot) ([]*envoy_filter_network_hcm_v3.HttpFilter, error) {
	ordered := make([]*model.FilterAttachment, len(attachments))
	copy(ordered, attachments)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Order != ordered[j].Order {
			return ordered[i].Order < ordered[j].Order
		}
		return ordered[i].FilterName < ordered[j].FilterName
	})

	var chain []*envoy_filter_network_hcm_v3.HttpFilter
	seen := map[model.FilterID]bool{}
	for _, a := range ordered {
		if seen[a.FilterID] {
			continue
		}
		seen[a.FilterID] = true

		f := snap.FilterByID(a.FilterID)
		if f == nil {
			return nil, errs.Internal(nil, "attachment %s references unknown filter %s", a.ID, a.FilterID)
		}
		hf, err := httpFilter(f)
		if err != nil {
			return nil, err
		}
		chain = append(chain, hf)
	}

	chain = append(chain, &envoy_filter_network_hcm_v3.HttpFilter{
		Name: filterNameRouter,
		ConfigType: &envoy_filter_network_hcm_v3.HttpFilter_TypedConfig{
			TypedConfig: protobuf.MustMarshalAny(&envoy_filter_http_router_v3.Router{}),
		},
	})
	return chain, nil
}

// httpFilter compiles one filter definition into its Envoy extension.
func httpFilter(f *model.Filter) (*envoy_filter_network_hcm_v3.HttpFilter, error) {
	var (
		config proto.Message
		err    error
	)

	switch f.Type {
	case model.FilterCORS:
		config = &envoy_filter_http_cors_v3.Cors{}
	case model.FilterJWTAuthn:
		config = jwtAuthentication(f.Spec.JWTAuthn)
	case model.FilterHeaderMutation:
		config = headerMutation(f.Spec.HeaderMutation)
	case model.FilterLocalRateLimit:
		config = localRateLimit(f.Spec.LocalRateLimit, f.Name)
	case model.FilterExtAuthz:
		config = extAuthz(f.Spec.ExtAuthz)
	case model.FilterExtProc:
		config = extProc(f.Spec.ExtProc)
	case model.FilterCompressor:
		config = compressor(f.Spec.Compressor)
	case model.FilterWASM:
		config, err = wasm(f.Spec.WASM)
	default:
		return nil, errs.Internal(nil, "filter %s has unknown type %q", f.Name, f.Type)
	}
	if err != nil {
		return nil, err
	}

	return &envoy_filter_network_hcm_v3.HttpFilter{
		Name: filterName(f.Type),
		ConfigType: &envoy_filter_network_hcm_v3.HttpFilter_TypedConfig{
			TypedConfig: protobuf.MustMarshalAny(config),
		},
	}, nil
}

// The catch-all entry in the jwt requirement map. Route overrides naming
// more than one provider resolve through it.
const jwtRequirementAny = "any"

func jwtAuthentication(c *model.JWTAuthnConfig) *envoy_filter_http_jwt_authn_v3.JwtAuthentication {
	providers := map[string]*envoy_filter_http_jwt_authn_v3.JwtProvider{}
	requirementMap := map[string]*envoy_filter_http_jwt_authn_v3.JwtRequirement{}

	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := c.Providers[name]
		providers[name] = jwtProvider(&p)
		requirementMap[name] = &envoy_filter_http_jwt_authn_v3.JwtRequirement{
			RequiresType: &envoy_filter_http_jwt_authn_v3.JwtRequirement_ProviderName{
				ProviderName: name,
			},
		}
	}
	requirementMap[jwtRequirementAny] = requiresAny(names)

	required := c.Requirement
	if len(required) == 0 {
		required = names
	}

	return &envoy_filter_http_jwt_authn_v3.JwtAuthentication{
		Providers:      providers,
		RequirementMap: requirementMap,
		Rules: []*envoy_filter_http_jwt_authn_v3.RequirementRule{{
			Match: &envoy_config_route_v3.RouteMatch{
				PathSpecifier: &envoy_config_route_v3.RouteMatch_Prefix{Prefix: "/"},
			},
			RequirementType: &envoy_filter_http_jwt_authn_v3.RequirementRule_Requires{
				Requires: requiresAny(required),
			},
		}},
	}
}

func requiresAny(names []string) *envoy_filter_http_jwt_authn_v3.JwtRequirement {
	if len(names) == 1 {
		return &envoy_filter_http_jwt_authn_v3.JwtRequirement{
			RequiresType: &envoy_filter_http_jwt_authn_v3.JwtRequirement_ProviderName{
				ProviderName: names[0],
			},
		}
	}
	requirements := make([]*envoy_filter_http_jwt_authn_v3.JwtRequirement, 0, len(names))
	for _, name := range names {
		requirements = append(requirements, &envoy_filter_http_jwt_authn_v3.JwtRequirement{
			RequiresType: &envoy_filter_http_jwt_authn_v3.JwtRequirement_ProviderName{
				ProviderName: name,
			},
		})
	}
	return &envoy_filter_http_jwt_authn_v3.JwtRequirement{
		RequiresType: &envoy_filter_http_jwt_authn_v3.JwtRequirement_RequiresAny{
			RequiresAny: &envoy_filter_http_jwt_authn_v3.JwtRequirementOrList{
				Requirements: requirements,
			},
		},
	}
}

func jwtProvider(p *model.JWTProvider) *envoy_filter_http_jwt_authn_v3.JwtProvider {
	provider := &envoy_filter_http_jwt_authn_v3.JwtProvider{
		Issuer:               p.Issuer,
		Audiences:            p.Audiences,
		ForwardPayloadHeader: p.ForwardPayloadHeader,
	}

	for _, h := range p.FromHeaders {
		provider.FromHeaders = append(provider.FromHeaders, &envoy_filter_http_jwt_authn_v3.JwtHeader{
			Name:        h,
			ValuePrefix: "Bearer ",
		})
	}

	switch {
	case p.RemoteJWKSURI != "":
		remote := &envoy_filter_http_jwt_authn_v3.RemoteJwks{
			HttpUri: &envoy_config_core_v3.HttpUri{
				Uri: p.RemoteJWKSURI,
				HttpUpstreamType: &envoy_config_core_v3.HttpUri_Cluster{
					Cluster: p.RemoteJWKSClusterName,
				},
				Timeout: durationpb.New(5 * time.Second),
			},
		}
		if p.CacheDurationSeconds > 0 {
			remote.CacheDuration = durationpb.New(time.Duration(p.CacheDurationSeconds) * time.Second)
		}
		provider.JwksSourceSpecifier = &envoy_filter_http_jwt_authn_v3.JwtProvider_RemoteJwks{
			RemoteJwks: remote,
		}
	default:
		provider.JwksSourceSpecifier = &envoy_filter_http_jwt_authn_v3.JwtProvider_LocalJwks{
			LocalJwks: &envoy_config_core_v3.DataSource{
				Specifier: &envoy_config_core_v3.DataSource_InlineString{
					InlineString: p.LocalJWKS,
				},
			},
		}
	}
	return provider
}

func headerMutation(c *model.HeaderMutationConfig) *envoy_filter_http_header_mutation_v3.HeaderMutation {
	return &envoy_filter_http_header_mutation_v3.HeaderMutation{
		Mutations: &envoy_filter_http_header_mutation_v3.Mutations{
			RequestMutations:  headerMutationRules(c.RequestAdd, c.RequestRemove),
			ResponseMutations: headerMutationRules(c.ResponseAdd, c.ResponseRemove),
		},
	}
}

func headerMutationRules(add []model.HeaderOp, remove []string) []*envoy_mutation_rules_v3.HeaderMutation {
	var rules []*envoy_mutation_rules_v3.HeaderMutation
	for _, op := range add {
		action := envoy_config_core_v3.HeaderValueOption_OVERWRITE_IF_EXISTS_OR_ADD
		if op.Append {
			action = envoy_config_core_v3.HeaderValueOption_APPEND_IF_EXISTS_OR_ADD
		}
		rules = append(rules, &envoy_mutation_rules_v3.HeaderMutation{
			Action: &envoy_mutation_rules_v3.HeaderMutation_Append{
				Append: &envoy_config_core_v3.HeaderValueOption{
					Header: &envoy_config_core_v3.HeaderValue{
						Key:   op.Key,
						Value: op.Value,
					},
					AppendAction: action,
				},
			},
		})
	}
	for _, key := range remove {
		rules = append(rules, &envoy_mutation_rules_v3.HeaderMutation{
			Action: &envoy_mutation_rules_v3.HeaderMutation_Remove{
				Remove: key,
			},
		})
	}
	return rules
}

func localRateLimit(c *model.LocalRateLimitConfig, name string) *envoy_filter_http_local_ratelimit_v3.LocalRateLimit {
	statPrefix := c.StatPrefix
	if statPrefix == "" {
		statPrefix = "ratelimit_" + name
	}

	limit := &envoy_filter_http_local_ratelimit_v3.LocalRateLimit{
		StatPrefix: statPrefix,
		TokenBucket: &envoy_type_v3.TokenBucket{
			MaxTokens:     c.MaxTokens,
			TokensPerFill: protobuf.UInt32OrDefault(c.TokensPerFill, 1),
			FillInterval:  durationpb.New(time.Duration(c.FillIntervalMillis) * time.Millisecond),
		},
		FilterEnabled: &envoy_config_core_v3.RuntimeFractionalPercent{
			DefaultValue: &envoy_type_v3.FractionalPercent{
				Numerator:   100,
				Denominator: envoy_type_v3.FractionalPercent_HUNDRED,
			},
		},
		FilterEnforced: &envoy_config_core_v3.RuntimeFractionalPercent{
			DefaultValue: &envoy_type_v3.FractionalPercent{
				Numerator:   100,
				Denominator: envoy_type_v3.FractionalPercent_HUNDRED,
			},
		},
	}
	if c.StatusCode != 0 {
		limit.Status = &envoy_type_v3.HttpStatus{
			Code: envoy_type_v3.StatusCode(c.StatusCode),
		}
	}
	return limit
}

func extAuthz(c *model.ExtAuthzConfig) *envoy_filter_http_ext_authz_v3.ExtAuthz {
	authz := &envoy_filter_http_ext_authz_v3.ExtAuthz{
		TransportApiVersion: envoy_config_core_v3.ApiVersion_V3,
		FailureModeAllow:    c.FailureModeAllow,
		Services: &envoy_filter_http_ext_authz_v3.ExtAuthz_GrpcService{
			GrpcService: grpcService(c.ClusterName, c.TimeoutMillis),
		},
	}
	if c.WithRequestBody != nil {
		authz.WithRequestBody = &envoy_filter_http_ext_authz_v3.BufferSettings{
			MaxRequestBytes:     c.WithRequestBody.MaxBytes,
			AllowPartialMessage: c.WithRequestBody.AllowPartial,
		}
	}
	return authz
}

func extProc(c *model.ExtProcConfig) *envoy_filter_http_ext_proc_v3.ExternalProcessor {
	proc := &envoy_filter_http_ext_proc_v3.ExternalProcessor{
		GrpcService:      grpcService(c.ClusterName, c.TimeoutMillis),
		FailureModeAllow: c.FailureModeAllow,
	}
	if c.ProcessingMode != nil {
		proc.ProcessingMode = &envoy_filter_http_ext_proc_v3.ProcessingMode{
			RequestHeaderMode:  headerSendMode(c.ProcessingMode.RequestHeaderMode),
			ResponseHeaderMode: headerSendMode(c.ProcessingMode.ResponseHeaderMode),
			RequestBodyMode:    bodySendMode(c.ProcessingMode.RequestBodyMode),
			ResponseBodyMode:   bodySendMode(c.ProcessingMode.ResponseBodyMode),
		}
	}
	return proc
}

func headerSendMode(mode string) envoy_filter_http_ext_proc_v3.ProcessingMode_HeaderSendMode {
	switch mode {
	case "SKIP":
		return envoy_filter_http_ext_proc_v3.ProcessingMode_SKIP
	case "SEND":
		return envoy_filter_http_ext_proc_v3.ProcessingMode_SEND
	default:
		return envoy_filter_http_ext_proc_v3.ProcessingMode_DEFAULT
	}
}

func bodySendMode(mode string) envoy_filter_http_ext_proc_v3.ProcessingMode_BodySendMode {
	switch mode {
	case "STREAMED":
		return envoy_filter_http_ext_proc_v3.ProcessingMode_STREAMED
	case "BUFFERED":
		return envoy_filter_http_ext_proc_v3.ProcessingMode_BUFFERED
	default:
		return envoy_filter_http_ext_proc_v3.ProcessingMode_NONE
	}
}

func grpcService(clusterName string, timeoutMillis uint64) *envoy_config_core_v3.GrpcService {
	svc := &envoy_config_core_v3.GrpcService{
		TargetSpecifier: &envoy_config_core_v3.GrpcService_EnvoyGrpc_{
			EnvoyGrpc: &envoy_config_core_v3.GrpcService_EnvoyGrpc{
				ClusterName: clusterName,
			},
		},
	}
	if timeoutMillis > 0 {
		svc.Timeout = durationpb.New(time.Duration(timeoutMillis) * time.Millisecond)
	}
	return svc
}

func compressor(c *model.CompressorConfig) *envoy_filter_http_compressor_v3.Compressor {
	var library *envoy_config_core_v3.TypedExtensionConfig
	switch c.Algorithm {
	case "brotli":
		library = &envoy_config_core_v3.TypedExtensionConfig{
			Name:        "envoy.compression.brotli.compressor",
			TypedConfig: protobuf.MustMarshalAny(&envoy_compression_brotli_v3.Brotli{}),
		}
	case "zstd":
		library = &envoy_config_core_v3.TypedExtensionConfig{
			Name:        "envoy.compression.zstd.compressor",
			TypedConfig: protobuf.MustMarshalAny(&envoy_compression_zstd_v3.Zstd{}),
		}
	default:
		library = &envoy_config_core_v3.TypedExtensionConfig{
			Name:        "envoy.compression.gzip.compressor",
			TypedConfig: protobuf.MustMarshalAny(&envoy_compression_gzip_v3.Gzip{}),
		}
	}

	out := &envoy_filter_http_compressor_v3.Compressor{
		CompressorLibrary: library,
	}
	if c.MinContentLength > 0 || len(c.ContentTypes) > 0 {
		out.ResponseDirectionConfig = &envoy_filter_http_compressor_v3.Compressor_ResponseDirectionConfig{
			CommonConfig: &envoy_filter_http_compressor_v3.Compressor_CommonDirectionConfig{
				MinContentLength: protobuf.UInt32OrNil(c.MinContentLength),
				ContentType:      c.ContentTypes,
			},
		}
	}
	return out
}

func wasm(c *model.WASMConfig) (*envoy_filter_http_wasm_v3.Wasm, error) {
	code := &envoy_config_core_v3.AsyncDataSource{}
	switch {
	case c.LocalPath != "":
		code.Specifier = &envoy_config_core_v3.AsyncDataSource_Local{
			Local: &envoy_config_core_v3.DataSource{
				Specifier: &envoy_config_core_v3.DataSource_Filename{
					Filename: c.LocalPath,
				},
			},
		}
	default:
		code.Specifier = &envoy_config_core_v3.AsyncDataSource_Remote{
			Remote: &envoy_config_core_v3.RemoteDataSource{
				HttpUri: &envoy_config_core_v3.HttpUri{
					Uri: c.RemoteURI,
					HttpUpstreamType: &envoy_config_core_v3.HttpUri_Cluster{
						Cluster: c.RemoteClusterName,
					},
					Timeout: durationpb.New(30 * time.Second),
				},
				Sha256: c.RemoteSHA256,
			},
		}
	}

	plugin := &envoy_wasm_v3.PluginConfig{
		Name:   c.PluginName,
		RootId: c.RootID,
		Vm: &envoy_wasm_v3.PluginConfig_VmConfig{
			VmConfig: &envoy_wasm_v3.VmConfig{
				Runtime: "envoy.wasm.runtime.v8",
				Code:    code,
			},
		},
	}
	if len(c.Configuration) > 0 {
		conf, err := anypb.New(wrapperspb.String(string(c.Configuration)))
		if err != nil {
			return nil, errs.Internal(err, "encoding wasm plugin configuration")
		}
		plugin.Configuration = conf
	}

	return &envoy_filter_http_wasm_v3.Wasm{Config: plugin}, nil
}

// corsPolicy translates the policy document. Origins with a leading
// wildcard label become suffix matches; everything else matches exactly.
func corsPolicy(c *model.CORSConfig) *envoy_filter_http_cors_v3.CorsPolicy {
	policy := &envoy_filter_http_cors_v3.CorsPolicy{
		AllowMethods:  strings.Join(c.AllowMethods, ","),
		AllowHeaders:  strings.Join(c.AllowHeaders, ","),
		ExposeHeaders: strings.Join(c.ExposeHeaders, ","),
	}
	if c.MaxAgeSeconds > 0 {
		policy.MaxAge = strconv.FormatUint(uint64(c.MaxAgeSeconds), 10)
	}
	if c.AllowCredentials {
		policy.AllowCredentials = wrapperspb.Bool(true)
	}
	for _, origin := range c.AllowOrigins {
		policy.AllowOriginStringMatch = append(policy.AllowOriginStringMatch, originMatcher(origin))
	}
	return policy
}

func originMatcher(origin string) *envoy_matcher_v3.StringMatcher {
	if origin == "*" {
		return &envoy_matcher_v3.StringMatcher{
			MatchPattern: &envoy_matcher_v3.StringMatcher_SafeRegex{
				SafeRegex: &envoy_matcher_v3.RegexMatcher{Regex: ".*"},
			},
		}
	}
	if len(origin) > 2 && origin[0] == '*' && origin[1] == '.' {
		return &envoy_matcher_v3.StringMatcher{
			MatchPattern: &envoy_matcher_v3.StringMatcher_Suffix{
				Suffix: origin[1:],
			},
		}
	}
	return &envoy_matcher_v3.StringMatcher{
		MatchPattern: &envoy_matcher_v3.StringMatcher_Exact{
			Exact: origin,
		},
	}
}
