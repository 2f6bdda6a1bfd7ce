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

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	p := Defaults()
	require.NoError(t, p.Validate())
	assert.Equal(t, 18000, p.XDS.Port)
	assert.Equal(t, 8080, p.Admin.Port)
	assert.Equal(t, InfoLog, p.LogLevel)
}

func TestParseOverlaysDefaults(t *testing.T) {
	in := `
database:
  url: postgres://flowplane:secret@db/flowplane
xds:
  port: 19000
logLevel: debug
`
	p, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	require.NoError(t, p.Validate())

	assert.Equal(t, "postgres://flowplane:secret@db/flowplane", p.Database.URL)
	assert.Equal(t, 19000, p.XDS.Port)
	assert.Equal(t, DebugLog, p.LogLevel)
	// Untouched sections keep their defaults.
	assert.Equal(t, 8080, p.Admin.Port)
	assert.Equal(t, "15s", p.Admin.RequestTimeout)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader("databass:\n  url: oops\n"))
	require.Error(t, err)
}

func TestParseEmptyDocumentYieldsDefaults(t *testing.T) {
	p, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Database.URL, p.Database.URL)
}

func TestEnvironmentWinsOverFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite://:memory:")
	t.Setenv("BOOTSTRAP_TOKEN", "setup-secret")
	t.Setenv("FLOWPLANE_API_TLS_ENABLED", "true")
	t.Setenv("FLOWPLANE_API_TLS_CERT_PATH", "/etc/tls/cert.pem")
	t.Setenv("FLOWPLANE_API_TLS_KEY_PATH", "/etc/tls/key.pem")

	p, err := Parse(strings.NewReader("database:\n  url: postgres://file-wins@db/x\n"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite://:memory:", p.Database.URL)
	assert.Equal(t, "setup-secret", p.Auth.BootstrapToken)
	assert.True(t, p.Admin.TLS.Enabled)
	require.NoError(t, p.Validate())
}

func TestValidateFailures(t *testing.T) {
	tests := map[string]func(*Parameters){
		"bad log level":   func(p *Parameters) { p.LogLevel = "loud" },
		"no database url": func(p *Parameters) { p.Database.URL = "" },
		"xds port range":  func(p *Parameters) { p.XDS.Port = 123456 },
		"tls without key": func(p *Parameters) {
			p.Admin.TLS = TLSParameters{Enabled: true, CertPath: "/etc/cert.pem"}
		},
		"require client cert without ca": func(p *Parameters) {
			p.XDS.TLS = XDSTLSParameters{CertPath: "/c", KeyPath: "/k", RequireClientCert: false}
			p.XDS.TLS.RequireClientCert = true
		},
		"bad request timeout": func(p *Parameters) { p.Admin.RequestTimeout = "whenever" },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			p := Defaults()
			mutate(&p)
			require.Error(t, p.Validate())
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	p := Defaults()
	setting, err := p.RequestTimeout()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, setting.Duration())

	p.Admin.RequestTimeout = "infinity"
	setting, err = p.RequestTimeout()
	require.NoError(t, err)
	assert.True(t, setting.IsDisabled())
}
