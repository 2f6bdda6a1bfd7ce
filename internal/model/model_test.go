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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowplane/flowplane/internal/errs"
)

func TestValidateName(t *testing.T) {
	tests := map[string]struct {
		name    string
		wantErr bool
	}{
		"simple":                 {name: "api-backend"},
		"single char":            {name: "a"},
		"digits":                 {name: "team1"},
		"empty":                  {name: "", wantErr: true},
		"uppercase":              {name: "Backend", wantErr: true},
		"underscore":             {name: "api_backend", wantErr: true},
		"leading dash":           {name: "-api", wantErr: true},
		"trailing dash":          {name: "api-", wantErr: true},
		"dot":                    {name: "api.backend", wantErr: true},
		"too long":               {name: "a123456789012345678901234567890123456789012345678901234567890123", wantErr: true},
		"max length is accepted": {name: "a12345678901234567890123456789012345678901234567890123456789012"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := ValidateName("cluster", tc.name)
			if tc.wantErr {
				require.Error(t, err)
				assert.Equal(t, errs.KindValidation, errs.KindOf(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestClusterValidate(t *testing.T) {
	valid := func() *Cluster {
		return &Cluster{
			Team: "payments",
			Name: "api-backend",
			Spec: ClusterSpec{
				Endpoints: []Endpoint{{Host: "10.0.0.1", Port: 8080}},
			},
		}
	}

	tests := map[string]struct {
		mutate  func(*Cluster)
		wantErr bool
	}{
		"valid":        {mutate: func(*Cluster) {}},
		"no endpoints": {mutate: func(c *Cluster) { c.Spec.Endpoints = nil }, wantErr: true},
		"bad port":     {mutate: func(c *Cluster) { c.Spec.Endpoints[0].Port = 0 }, wantErr: true},
		"empty host":   {mutate: func(c *Cluster) { c.Spec.Endpoints[0].Host = "" }, wantErr: true},
		"bad lb policy": {
			mutate:  func(c *Cluster) { c.Spec.LBPolicy = "FASTEST" },
			wantErr: true,
		},
		"ring hash accepted": {
			mutate: func(c *Cluster) { c.Spec.LBPolicy = LBRingHash },
		},
		"health check needs path": {
			mutate:  func(c *Cluster) { c.Spec.HealthCheck = &HealthCheck{} },
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			err := c.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestEndpointIsIP(t *testing.T) {
	assert.True(t, Endpoint{Host: "10.1.2.3", Port: 80}.IsIP())
	assert.True(t, Endpoint{Host: "2001:db8::1", Port: 80}.IsIP())
	assert.False(t, Endpoint{Host: "backend.internal", Port: 80}.IsIP())
}

func TestListenerValidate(t *testing.T) {
	tests := map[string]struct {
		listener Listener
		wantErr  string
	}{
		"http": {
			listener: Listener{
				Team: "payments", Name: "edge", BindAddress: "0.0.0.0", Port: 8080,
				Protocol: ProtocolHTTP,
				Spec:     ListenerSpec{RouteConfigName: "edge-routes"},
			},
		},
		"http without route config": {
			listener: Listener{
				Team: "payments", Name: "edge", BindAddress: "0.0.0.0", Port: 8080,
				Protocol: ProtocolHTTP,
			},
			wantErr: "route configuration",
		},
		"https without tls": {
			listener: Listener{
				Team: "payments", Name: "edge", BindAddress: "0.0.0.0", Port: 8443,
				Protocol: ProtocolHTTPS,
				Spec:     ListenerSpec{RouteConfigName: "edge-routes"},
			},
			wantErr: "TLS",
		},
		"https": {
			listener: Listener{
				Team: "payments", Name: "edge", BindAddress: "0.0.0.0", Port: 8443,
				Protocol: ProtocolHTTPS,
				Spec: ListenerSpec{
					RouteConfigName: "edge-routes",
					TLS:             &ListenerTLS{SecretName: "edge-cert"},
				},
			},
		},
		"tcp": {
			listener: Listener{
				Team: "payments", Name: "tcp-edge", BindAddress: "0.0.0.0", Port: 5432,
				Protocol: ProtocolTCP,
				Spec:     ListenerSpec{TCPProxy: &TCPProxy{ClusterName: "postgres"}},
			},
		},
		"tcp with route config": {
			listener: Listener{
				Team: "payments", Name: "tcp-edge", BindAddress: "0.0.0.0", Port: 5432,
				Protocol: ProtocolTCP,
				Spec: ListenerSpec{
					TCPProxy:        &TCPProxy{ClusterName: "postgres"},
					RouteConfigName: "oops",
				},
			},
			wantErr: "must not name a route configuration",
		},
		"hostname bind address": {
			listener: Listener{
				Team: "payments", Name: "edge", BindAddress: "localhost", Port: 8080,
				Protocol: ProtocolHTTP,
				Spec:     ListenerSpec{RouteConfigName: "edge-routes"},
			},
			wantErr: "not an IP address",
		},
		"client cert without ca": {
			listener: Listener{
				Team: "payments", Name: "edge", BindAddress: "0.0.0.0", Port: 8443,
				Protocol: ProtocolHTTPS,
				Spec: ListenerSpec{
					RouteConfigName: "edge-routes",
					TLS:             &ListenerTLS{SecretName: "edge-cert", RequireClientCert: true},
				},
			},
			wantErr: "client CA",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := tc.listener.Validate()
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRouteMatchValidate(t *testing.T) {
	tests := map[string]struct {
		match   RouteMatch
		wantErr bool
	}{
		"prefix":        {match: RouteMatch{PathType: MatchPrefix, Path: "/api"}},
		"template":      {match: RouteMatch{PathType: MatchTemplate, Path: "/users/{id}"}},
		"regex":         {match: RouteMatch{PathType: MatchRegex, Path: "/api/v[0-9]+"}},
		"bad regex":     {match: RouteMatch{PathType: MatchRegex, Path: "/api/v[0-9"}, wantErr: true},
		"no slash":      {match: RouteMatch{PathType: MatchPrefix, Path: "api"}, wantErr: true},
		"empty path":    {match: RouteMatch{PathType: MatchPrefix}, wantErr: true},
		"bad path type": {match: RouteMatch{PathType: "glob", Path: "/x"}, wantErr: true},
		"method": {
			match: RouteMatch{PathType: MatchExact, Path: "/api", Methods: []string{"GET", "POST"}},
		},
		"bad method": {
			match:   RouteMatch{PathType: MatchExact, Path: "/api", Methods: []string{"FETCH"}},
			wantErr: true,
		},
		"header exact and regex": {
			match: RouteMatch{PathType: MatchExact, Path: "/api", Headers: []HeaderMatch{
				{Name: "x-env", Exact: "prod", Regex: "p.*"},
			}},
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := tc.match.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestFilterSpecValidateFor(t *testing.T) {
	cors := &CORSConfig{AllowOrigins: []string{"https://app.example.com"}}
	limit := &LocalRateLimitConfig{MaxTokens: 100, FillIntervalMillis: 1000}

	tests := map[string]struct {
		ftype   FilterType
		spec    FilterSpec
		wantErr bool
	}{
		"cors":            {ftype: FilterCORS, spec: FilterSpec{CORS: cors}},
		"missing member":  {ftype: FilterCORS, spec: FilterSpec{}, wantErr: true},
		"wrong member":    {ftype: FilterCORS, spec: FilterSpec{LocalRateLimit: limit}, wantErr: true},
		"two members":     {ftype: FilterCORS, spec: FilterSpec{CORS: cors, LocalRateLimit: limit}, wantErr: true},
		"unknown type":    {ftype: "retry", spec: FilterSpec{CORS: cors}, wantErr: true},
		"invalid payload": {ftype: FilterCORS, spec: FilterSpec{CORS: &CORSConfig{}}, wantErr: true},
		"rate limit":      {ftype: FilterLocalRateLimit, spec: FilterSpec{LocalRateLimit: limit}},
		"wasm needs one source": {
			ftype:   FilterWASM,
			spec:    FilterSpec{WASM: &WASMConfig{PluginName: "auth"}},
			wantErr: true,
		},
		"jwt provider needs key source": {
			ftype: FilterJWTAuthn,
			spec: FilterSpec{JWTAuthn: &JWTAuthnConfig{
				Providers: map[string]JWTProvider{"main": {Issuer: "https://issuer"}},
			}},
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := tc.spec.ValidateFor(tc.ftype)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSecretValidate(t *testing.T) {
	tests := map[string]struct {
		secret  Secret
		wantErr bool
	}{
		"inline tls": {
			secret: Secret{
				Team: "payments", Name: "edge-cert", Type: SecretTLSCertificate,
				Inline: &InlineSecret{CertChain: []byte("cert"), PrivateKey: []byte("key")},
			},
		},
		"tls missing key": {
			secret: Secret{
				Team: "payments", Name: "edge-cert", Type: SecretTLSCertificate,
				Inline: &InlineSecret{CertChain: []byte("cert")},
			},
			wantErr: true,
		},
		"reference": {
			secret: Secret{
				Team: "payments", Name: "edge-cert", Type: SecretTLSCertificate,
				Reference: "vault:secret/data/edge-cert",
			},
		},
		"unknown scheme": {
			secret: Secret{
				Team: "payments", Name: "edge-cert", Type: SecretTLSCertificate,
				Reference: "http://example.com/cert",
			},
			wantErr: true,
		},
		"both inline and reference": {
			secret: Secret{
				Team: "payments", Name: "edge-cert", Type: SecretTLSCertificate,
				Inline:    &InlineSecret{CertChain: []byte("cert"), PrivateKey: []byte("key")},
				Reference: "vault:secret/data/edge-cert",
			},
			wantErr: true,
		},
		"neither": {
			secret:  Secret{Team: "payments", Name: "edge-cert", Type: SecretTLSCertificate},
			wantErr: true,
		},
		"generic": {
			secret: Secret{
				Team: "payments", Name: "api-key", Type: SecretGeneric,
				Inline: &InlineSecret{Payload: []byte("s3cr3t")},
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := tc.secret.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSecretRedacted(t *testing.T) {
	s := &Secret{
		Name: "edge-cert", Type: SecretTLSCertificate,
		Inline: &InlineSecret{CertChain: []byte("cert"), PrivateKey: []byte("key")},
	}
	red := s.Redacted()
	assert.Empty(t, red.Inline.PrivateKey)
	assert.Empty(t, red.Inline.CertChain)
	// The original is untouched.
	assert.NotEmpty(t, s.Inline.PrivateKey)
}

func TestAPIDefinitionValidate(t *testing.T) {
	valid := func() *APIDefinition {
		return &APIDefinition{
			Team:   "payments",
			Domain: "payments.example.com",
			Routes: []APIRoute{{
				PathType: MatchPrefix,
				Path:     "/api",
				Upstream: UpstreamTarget{Host: "backend.internal", Port: 8443, UseTLS: true},
			}},
		}
	}

	tests := map[string]struct {
		mutate  func(*APIDefinition)
		wantErr string
	}{
		"valid": {mutate: func(*APIDefinition) {}},
		"no routes": {
			mutate:  func(d *APIDefinition) { d.Routes = nil },
			wantErr: "at least one route",
		},
		"wildcard domain": {
			mutate:  func(d *APIDefinition) { d.Domain = "*" },
			wantErr: "wildcard",
		},
		"isolation without spec": {
			mutate:  func(d *APIDefinition) { d.ListenerIsolation = true },
			wantErr: "isolation spec",
		},
		"isolation": {
			mutate: func(d *APIDefinition) {
				d.ListenerIsolation = true
				d.Isolation = &IsolationSpec{Port: 8443}
			},
		},
		"tls without isolation": {
			mutate: func(d *APIDefinition) {
				d.TLS = &ListenerTLS{SecretName: "edge-cert"}
			},
			wantErr: "listener isolation",
		},
		"duplicate route": {
			mutate: func(d *APIDefinition) {
				d.Routes = append(d.Routes, d.Routes[0])
			},
			wantErr: "duplicate route",
		},
		"same path different methods": {
			mutate: func(d *APIDefinition) {
				first := d.Routes[0]
				first.Methods = []string{"GET"}
				second := d.Routes[0]
				second.Methods = []string{"POST"}
				d.Routes = []APIRoute{first, second}
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			d := valid()
			tc.mutate(d)
			err := d.Validate()
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestTokenUsable(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := map[string]struct {
		token PersonalAccessToken
		want  bool
	}{
		"active no expiry":   {token: PersonalAccessToken{Status: TokenActive}, want: true},
		"active not expired": {token: PersonalAccessToken{Status: TokenActive, ExpiresAt: &future}, want: true},
		"active expired":     {token: PersonalAccessToken{Status: TokenActive, ExpiresAt: &past}, want: false},
		"expires exactly now": {
			token: PersonalAccessToken{Status: TokenActive, ExpiresAt: &now},
			want:  false,
		},
		"revoked": {token: PersonalAccessToken{Status: TokenRevoked}, want: false},
		"expired": {token: PersonalAccessToken{Status: TokenExpired}, want: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.token.Usable(now))
		})
	}
}

func TestListPageClamp(t *testing.T) {
	tests := map[string]struct {
		in   ListPage
		want ListPage
	}{
		"zero takes defaults": {in: ListPage{}, want: ListPage{Limit: 50}},
		"negative limit":      {in: ListPage{Limit: -5}, want: ListPage{Limit: 50}},
		"over max":            {in: ListPage{Limit: 5000}, want: ListPage{Limit: 1000}},
		"at max":              {in: ListPage{Limit: 1000}, want: ListPage{Limit: 1000}},
		"negative offset":     {in: ListPage{Limit: 10, Offset: -1}, want: ListPage{Limit: 10}},
		"passthrough":         {in: ListPage{Limit: 10, Offset: 20}, want: ListPage{Limit: 10, Offset: 20}},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.in.Clamp())
		})
	}
}

func TestDecodeStrict(t *testing.T) {
	type doc struct {
		Name string `json:"name"`
	}

	var d doc
	require.NoError(t, DecodeStrict([]byte(`{"name":"x"}`), &d))
	assert.Equal(t, "x", d.Name)

	err := DecodeStrict([]byte(`{"name":"x","nmae":"typo"}`), &d)
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	err = DecodeStrict([]byte(`{"name":"x"} trailing`), &d)
	require.Error(t, err)
}

func TestTeamStatusTransitions(t *testing.T) {
	assert.True(t, TeamActive.CanTransitionTo(TeamSuspended))
	assert.True(t, TeamSuspended.CanTransitionTo(TeamActive))
	assert.True(t, TeamActive.CanTransitionTo(TeamArchived))
	assert.False(t, TeamArchived.CanTransitionTo(TeamActive))
	assert.False(t, TeamArchived.CanTransitionTo(TeamSuspended))
}
