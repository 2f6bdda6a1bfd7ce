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
	"encoding/json"
	"time"

	"github.com/flowplane/flowplane/internal/errs"
)

// FilterType names an HTTP filter family. The compiler maps each type onto
// the corresponding Envoy extension.
type FilterType string

const (
	FilterCORS           FilterType = "cors"
	FilterJWTAuthn       FilterType = "jwt_authn"
	FilterHeaderMutation FilterType = "header_mutation"
	FilterLocalRateLimit FilterType = "local_rate_limit"
	FilterExtAuthz       FilterType = "ext_authz"
	FilterExtProc        FilterType = "ext_proc"
	FilterCompressor     FilterType = "compressor"
	FilterWASM           FilterType = "wasm"
)

func (t FilterType) Validate() error {
	switch t {
	case FilterCORS, FilterJWTAuthn, FilterHeaderMutation, FilterLocalRateLimit,
		FilterExtAuthz, FilterExtProc, FilterCompressor, FilterWASM:
		return nil
	default:
		return errs.Validation("unknown filter type %q", string(t))
	}
}

// CORSConfig is the policy applied by a cors filter. Origins match exactly
// unless they carry a single leading wildcard label.
type CORSConfig struct {
	AllowOrigins     []string `json:"allowOrigins"`
	AllowMethods     []string `json:"allowMethods,omitempty"`
	AllowHeaders     []string `json:"allowHeaders,omitempty"`
	ExposeHeaders    []string `json:"exposeHeaders,omitempty"`
	MaxAgeSeconds    uint32   `json:"maxAgeSeconds,omitempty"`
	AllowCredentials bool     `json:"allowCredentials,omitempty"`
}

func (c *CORSConfig) Validate() error {
	if len(c.AllowOrigins) == 0 {
		return errs.Validation("cors filter requires at least one allowed origin")
	}
	for _, o := range c.AllowOrigins {
		if o == "" {
			return errs.Validation("cors allowed origin must not be empty")
		}
	}
	return nil
}

// JWTProvider validates tokens issued by one identity provider. Exactly one
// of RemoteJWKSURI and LocalJWKS supplies the key set.
type JWTProvider struct {
	Issuer                string   `json:"issuer"`
	Audiences             []string `json:"audiences,omitempty"`
	RemoteJWKSURI         string   `json:"remoteJwksUri,omitempty"`
	RemoteJWKSClusterName string   `json:"remoteJwksClusterName,omitempty"`
	LocalJWKS             string   `json:"localJwks,omitempty"`
	ForwardPayloadHeader  string   `json:"forwardPayloadHeader,omitempty"`
	FromHeaders           []string `json:"fromHeaders,omitempty"`
	CacheDurationSeconds  uint32   `json:"cacheDurationSeconds,omitempty"`
}

func (p *JWTProvider) Validate() error {
	if p.Issuer == "" {
		return errs.Validation("jwt provider requires an issuer")
	}
	if (p.RemoteJWKSURI == "") == (p.LocalJWKS == "") {
		return errs.Validation("jwt provider %q requires exactly one of remoteJwksUri or localJwks", p.Issuer)
	}
	if p.RemoteJWKSURI != "" && p.RemoteJWKSClusterName == "" {
		return errs.Validation("jwt provider %q requires remoteJwksClusterName for JWKS fetching", p.Issuer)
	}
	return nil
}

// JWTAuthnConfig validates bearer tokens. Requirement names the providers
// of which any one must validate; empty means every request requires the
// sole provider.
type JWTAuthnConfig struct {
	Providers   map[string]JWTProvider `json:"providers"`
	Requirement []string               `json:"requirement,omitempty"`
}

func (c *JWTAuthnConfig) Validate() error {
	if len(c.Providers) == 0 {
		return errs.Validation("jwt filter requires at least one provider")
	}
	for name, p := range c.Providers {
		if err := ValidateName("jwt provider", name); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}
	for _, name := range c.Requirement {
		if _, ok := c.Providers[name]; !ok {
			return errs.Validation("jwt requirement names unknown provider %q", name)
		}
	}
	return nil
}

// HeaderOp adds or overwrites one header.
type HeaderOp struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Append bool   `json:"append,omitempty"`
}

// HeaderMutationConfig rewrites request and response headers.
type HeaderMutationConfig struct {
	RequestAdd     []HeaderOp `json:"requestAdd,omitempty"`
	RequestRemove  []string   `json:"requestRemove,omitempty"`
	ResponseAdd    []HeaderOp `json:"responseAdd,omitempty"`
	ResponseRemove []string   `json:"responseRemove,omitempty"`
}

func (c *HeaderMutationConfig) Validate() error {
	if len(c.RequestAdd)+len(c.RequestRemove)+len(c.ResponseAdd)+len(c.ResponseRemove) == 0 {
		return errs.Validation("header mutation filter requires at least one operation")
	}
	for _, op := range append(append([]HeaderOp{}, c.RequestAdd...), c.ResponseAdd...) {
		if op.Key == "" {
			return errs.Validation("header mutation requires a header key")
		}
	}
	return nil
}

// LocalRateLimitConfig throttles per-proxy with a token bucket.
type LocalRateLimitConfig struct {
	StatPrefix         string `json:"statPrefix,omitempty"`
	MaxTokens          uint32 `json:"maxTokens"`
	TokensPerFill      uint32 `json:"tokensPerFill,omitempty"`
	FillIntervalMillis uint64 `json:"fillIntervalMillis"`
	StatusCode         uint32 `json:"statusCode,omitempty"`
}

func (c *LocalRateLimitConfig) Validate() error {
	if c.MaxTokens == 0 {
		return errs.Validation("local rate limit requires maxTokens > 0")
	}
	if c.FillIntervalMillis == 0 {
		return errs.Validation("local rate limit requires a fill interval")
	}
	if c.StatusCode != 0 && (c.StatusCode < 400 || c.StatusCode > 599) {
		return errs.Validation("local rate limit status code %d out of range", c.StatusCode)
	}
	return nil
}

// ExtAuthzConfig consults an external gRPC authorization service reached
// through a named cluster.
type ExtAuthzConfig struct {
	ClusterName      string `json:"clusterName"`
	TimeoutMillis    uint64 `json:"timeoutMillis,omitempty"`
	FailureModeAllow bool   `json:"failureModeAllow,omitempty"`
	WithRequestBody  *struct {
		MaxBytes     uint32 `json:"maxBytes"`
		AllowPartial bool   `json:"allowPartial,omitempty"`
	} `json:"withRequestBody,omitempty"`
}

func (c *ExtAuthzConfig) Validate() error {
	if c.ClusterName == "" {
		return errs.Validation("ext_authz filter requires a cluster name")
	}
	return nil
}

// ExtProcProcessingMode selects which message phases the external processor
// receives.
type ExtProcProcessingMode struct {
	RequestHeaderMode  string `json:"requestHeaderMode,omitempty"`
	ResponseHeaderMode string `json:"responseHeaderMode,omitempty"`
	RequestBodyMode    string `json:"requestBodyMode,omitempty"`
	ResponseBodyMode   string `json:"responseBodyMode,omitempty"`
}

// ExtProcConfig streams request phases to an external processor reached
// through a named cluster.
type ExtProcConfig struct {
	ClusterName      string                 `json:"clusterName"`
	TimeoutMillis    uint64                 `json:"timeoutMillis,omitempty"`
	FailureModeAllow bool                   `json:"failureModeAllow,omitempty"`
	ProcessingMode   *ExtProcProcessingMode `json:"processingMode,omitempty"`
}

func (c *ExtProcConfig) Validate() error {
	if c.ClusterName == "" {
		return errs.Validation("ext_proc filter requires a cluster name")
	}
	return nil
}

// CompressorConfig enables response compression.
type CompressorConfig struct {
	Algorithm        string   `json:"algorithm"`
	MinContentLength uint32   `json:"minContentLength,omitempty"`
	ContentTypes     []string `json:"contentTypes,omitempty"`
}

func (c *CompressorConfig) Validate() error {
	switch c.Algorithm {
	case "gzip", "brotli", "zstd":
		return nil
	default:
		return errs.Validation("unsupported compression algorithm %q", c.Algorithm)
	}
}

// WASMConfig runs a WebAssembly module inline in the filter chain. Exactly
// one of LocalPath and RemoteURI locates the module.
type WASMConfig struct {
	PluginName        string          `json:"pluginName"`
	RootID            string          `json:"rootId,omitempty"`
	LocalPath         string          `json:"localPath,omitempty"`
	RemoteURI         string          `json:"remoteUri,omitempty"`
	RemoteSHA256      string          `json:"remoteSha256,omitempty"`
	RemoteClusterName string          `json:"remoteClusterName,omitempty"`
	Configuration     json.RawMessage `json:"configuration,omitempty"`
}

func (c *WASMConfig) Validate() error {
	if c.PluginName == "" {
		return errs.Validation("wasm filter requires a plugin name")
	}
	if (c.LocalPath == "") == (c.RemoteURI == "") {
		return errs.Validation("wasm filter requires exactly one of localPath or remoteUri")
	}
	if c.RemoteURI != "" && (c.RemoteSHA256 == "" || c.RemoteClusterName == "") {
		return errs.Validation("remote wasm module requires remoteSha256 and remoteClusterName")
	}
	return nil
}

// FilterSpec is the typed configuration of a filter. Exactly one member is
// set, matching the filter's type.
type FilterSpec struct {
	CORS           *CORSConfig           `json:"cors,omitempty"`
	JWTAuthn       *JWTAuthnConfig       `json:"jwtAuthn,omitempty"`
	HeaderMutation *HeaderMutationConfig `json:"headerMutation,omitempty"`
	LocalRateLimit *LocalRateLimitConfig `json:"localRateLimit,omitempty"`
	ExtAuthz       *ExtAuthzConfig       `json:"extAuthz,omitempty"`
	ExtProc        *ExtProcConfig        `json:"extProc,omitempty"`
	Compressor     *CompressorConfig     `json:"compressor,omitempty"`
	WASM           *WASMConfig           `json:"wasm,omitempty"`
}

// ValidateFor checks that the spec document carries exactly the member for
// the declared filter type and that the member itself is valid.
func (s *FilterSpec) ValidateFor(t FilterType) error {
	members := map[FilterType]struct {
		set      bool
		validate func() error
	}{
		FilterCORS:           {s.CORS != nil, func() error { return s.CORS.Validate() }},
		FilterJWTAuthn:       {s.JWTAuthn != nil, func() error { return s.JWTAuthn.Validate() }},
		FilterHeaderMutation: {s.HeaderMutation != nil, func() error { return s.HeaderMutation.Validate() }},
		FilterLocalRateLimit: {s.LocalRateLimit != nil, func() error { return s.LocalRateLimit.Validate() }},
		FilterExtAuthz:       {s.ExtAuthz != nil, func() error { return s.ExtAuthz.Validate() }},
		FilterExtProc:        {s.ExtProc != nil, func() error { return s.ExtProc.Validate() }},
		FilterCompressor:     {s.Compressor != nil, func() error { return s.Compressor.Validate() }},
		FilterWASM:           {s.WASM != nil, func() error { return s.WASM.Validate() }},
	}

	want, ok := members[t]
	if !ok {
		return errs.Validation("unknown filter type %q", string(t))
	}
	if !want.set {
		return errs.Validation("filter spec missing %q configuration", string(t))
	}
	count := 0
	for _, m := range members {
		if m.set {
			count++
		}
	}
	if count != 1 {
		return errs.Validation("filter spec must carry exactly one configuration, got %d", count)
	}
	return want.validate()
}

// Filter is a named, reusable HTTP filter definition.
type Filter struct {
	ID        FilterID   `json:"id"`
	Team      string     `json:"team"`
	Name      string     `json:"name"`
	Type      FilterType `json:"type"`
	Spec      FilterSpec `json:"spec"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (f *Filter) Validate() error {
	if err := ValidateName("filter", f.Name); err != nil {
		return err
	}
	if err := ValidateName("team", f.Team); err != nil {
		return err
	}
	if err := f.Type.Validate(); err != nil {
		return err
	}
	return f.Spec.ValidateFor(f.Type)
}

// AttachmentScope names the level a filter binds to.
type AttachmentScope string

const (
	ScopeListener    AttachmentScope = "listener"
	ScopeRouteConfig AttachmentScope = "route_config"
	ScopeVirtualHost AttachmentScope = "virtual_host"
	ScopeRoute       AttachmentScope = "route"
)

func (s AttachmentScope) Validate() error {
	switch s {
	case ScopeListener, ScopeRouteConfig, ScopeVirtualHost, ScopeRoute:
		return nil
	default:
		return errs.Validation("unknown attachment scope %q", string(s))
	}
}

// FilterAttachment binds a filter to a target. Listener-scope attachments
// place the filter in the connection manager chain ordered by Order; lower
// scopes additionally narrow or override behavior at that level.
type FilterAttachment struct {
	ID         AttachmentID    `json:"id"`
	FilterID   FilterID        `json:"filterId"`
	FilterName string          `json:"filterName,omitempty"`
	Scope      AttachmentScope `json:"scope"`
	TargetID   string          `json:"targetId"`
	Order      int64           `json:"order"`
	CreatedAt  time.Time       `json:"createdAt"`
}

func (a *FilterAttachment) Validate() error {
	if a.FilterID == "" {
		return errs.Validation("attachment requires a filter id")
	}
	if err := a.Scope.Validate(); err != nil {
		return err
	}
	if a.TargetID == "" {
		return errs.Validation("attachment requires a target id")
	}
	return nil
}

// Per-route override payloads. Each embeds either a full replacement policy
// or a disable switch, mirroring what the corresponding Envoy extension
// supports per route.

// JWTRouteOverride disables validation or swaps the requirement for routes
// it attaches to.
type JWTRouteOverride struct {
	Disabled    bool     `json:"disabled,omitempty"`
	Requirement []string `json:"requirement,omitempty"`
}

// ExtAuthzRouteOverride disables the check or adds context for it.
type ExtAuthzRouteOverride struct {
	Disabled          bool              `json:"disabled,omitempty"`
	ContextExtensions map[string]string `json:"contextExtensions,omitempty"`
}

// ToggleOverride disables an inherited filter on one route.
type ToggleOverride struct {
	Disabled bool `json:"disabled,omitempty"`
}

// FilterOverrides is the canonical per-route filter override document.
// Members translate to typed_per_filter_config entries on the compiled
// route.
type FilterOverrides struct {
	CORS           *CORSConfig            `json:"cors,omitempty"`
	RateLimit      *LocalRateLimitConfig  `json:"rateLimit,omitempty"`
	JWTAuthn       *JWTRouteOverride      `json:"jwtAuthn,omitempty"`
	ExtAuthz       *ExtAuthzRouteOverride `json:"extAuthz,omitempty"`
	HeaderMutation *HeaderMutationConfig  `json:"headerMutation,omitempty"`
	ExtProc        *ToggleOverride        `json:"extProc,omitempty"`
	Compressor     *ToggleOverride        `json:"compressor,omitempty"`
}

func (o *FilterOverrides) Validate() error {
	if o.CORS != nil {
		if err := o.CORS.Validate(); err != nil {
			return err
		}
	}
	if o.RateLimit != nil {
		if err := o.RateLimit.Validate(); err != nil {
			return err
		}
	}
	if o.HeaderMutation != nil {
		if err := o.HeaderMutation.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Empty reports whether no override member is set.
func (o *FilterOverrides) Empty() bool {
	return o == nil || (o.CORS == nil && o.RateLimit == nil && o.JWTAuthn == nil &&
		o.ExtAuthz == nil && o.HeaderMutation == nil && o.ExtProc == nil && o.Compressor == nil)
}
