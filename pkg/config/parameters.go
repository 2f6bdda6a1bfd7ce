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

// Package config loads the control plane configuration: defaults, overlaid
// by an optional YAML file, overlaid by environment variables.
package config

import (
	"fmt"
	"io"
	"os"

	"dario.cat/mergo"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/flowplane/flowplane/internal/timeout"
)

// LogLevel is a logrus level name.
type LogLevel string

const (
	TraceLog LogLevel = "trace"
	DebugLog LogLevel = "debug"
	InfoLog  LogLevel = "info"
	WarnLog  LogLevel = "warn"
	ErrorLog LogLevel = "error"
)

// Validate the log level.
func (l LogLevel) Validate() error {
	switch l {
	case TraceLog, DebugLog, InfoLog, WarnLog, ErrorLog:
		return nil
	default:
		return fmt.Errorf("invalid log level %q", l)
	}
}

// DatabaseParameters locate the backing store.
type DatabaseParameters struct {
	// URL is a sqlite:// or postgres:// DSN.
	URL string `yaml:"url"`
}

func (p DatabaseParameters) Validate() error {
	if p.URL == "" {
		return fmt.Errorf("database URL must be set")
	}
	return nil
}

// TLSParameters configure an HTTPS admin surface.
type TLSParameters struct {
	Enabled   bool   `yaml:"enabled"`
	CertPath  string `yaml:"certPath"`
	KeyPath   string `yaml:"keyPath"`
	ChainPath string `yaml:"chainPath"`
}

func (p TLSParameters) Validate() error {
	if !p.Enabled {
		return nil
	}
	if p.CertPath == "" || p.KeyPath == "" {
		return fmt.Errorf("API TLS requires both a certificate and a key path")
	}
	return nil
}

// XDSTLSParameters configure the ADS listener transport.
type XDSTLSParameters struct {
	CAPath            string `yaml:"caPath"`
	CertPath          string `yaml:"certPath"`
	KeyPath           string `yaml:"keyPath"`
	RequireClientCert bool   `yaml:"requireClientCert"`
}

func (p XDSTLSParameters) Validate() error {
	set := 0
	for _, f := range []string{p.CAPath, p.CertPath, p.KeyPath} {
		if f != "" {
			set++
		}
	}
	if set != 0 && (p.CertPath == "" || p.KeyPath == "") {
		return fmt.Errorf("xDS TLS requires at least a certificate and a key path")
	}
	if p.RequireClientCert && p.CAPath == "" {
		return fmt.Errorf("requiring xDS client certificates needs a CA path to verify against")
	}
	return nil
}

// ServerParameters hold an address and port to bind one service to.
type ServerParameters struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

func (p ServerParameters) Validate() error {
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("port %d out of range", p.Port)
	}
	return nil
}

// XDSParameters configure the ADS server and the endpoint advertised in
// bootstrap documents.
type XDSParameters struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`

	// AdvertisedAddress is what bootstrap documents point proxies at.
	// Defaults to Address.
	AdvertisedAddress string `yaml:"advertisedAddress"`

	TLS XDSTLSParameters `yaml:"tls"`
}

func (p XDSParameters) Validate() error {
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("xDS port %d out of range", p.Port)
	}
	return p.TLS.Validate()
}

// AdminParameters configure the admin REST API.
type AdminParameters struct {
	ServerParameters `yaml:",inline"`

	TLS TLSParameters `yaml:"tls"`

	// RequestTimeout bounds one admin request, timeout grammar.
	RequestTimeout string `yaml:"requestTimeout"`
}

func (p AdminParameters) Validate() error {
	if err := p.ServerParameters.Validate(); err != nil {
		return err
	}
	if err := p.TLS.Validate(); err != nil {
		return err
	}
	if _, err := timeout.Parse(p.RequestTimeout); err != nil {
		return err
	}
	return nil
}

// AuthParameters configure token seeding.
type AuthParameters struct {
	// BootstrapToken is the one-shot setup secret seeded on first start.
	BootstrapToken string `yaml:"bootstrapToken"`
}

// Parameters is the top level of the configuration file.
type Parameters struct {
	Database DatabaseParameters `yaml:"database"`
	XDS      XDSParameters      `yaml:"xds"`
	Admin    AdminParameters    `yaml:"admin"`
	Metrics  ServerParameters   `yaml:"metrics"`
	Debug    ServerParameters   `yaml:"debug"`
	Auth     AuthParameters     `yaml:"auth"`

	LogLevel LogLevel `yaml:"logLevel"`
}

// Defaults returns the parameters the process runs with when nothing is
// configured.
func Defaults() Parameters {
	return Parameters{
		Database: DatabaseParameters{URL: "sqlite://flowplane.db"},
		XDS:      XDSParameters{Address: "0.0.0.0", Port: 18000},
		Admin: AdminParameters{
			ServerParameters: ServerParameters{Address: "0.0.0.0", Port: 8080},
			RequestTimeout:   "15s",
		},
		Metrics:  ServerParameters{Address: "0.0.0.0", Port: 8000},
		Debug:    ServerParameters{Address: "127.0.0.1", Port: 6060},
		LogLevel: InfoLog,
	}
}

// environment is the subset of parameters that may be set through the
// process environment. Environment wins over file values.
type environment struct {
	DatabaseURL    string `envconfig:"DATABASE_URL"`
	BootstrapToken string `envconfig:"BOOTSTRAP_TOKEN"`

	APITLSEnabled   bool   `envconfig:"FLOWPLANE_API_TLS_ENABLED"`
	APITLSCertPath  string `envconfig:"FLOWPLANE_API_TLS_CERT_PATH"`
	APITLSKeyPath   string `envconfig:"FLOWPLANE_API_TLS_KEY_PATH"`
	APITLSChainPath string `envconfig:"FLOWPLANE_API_TLS_CHAIN_PATH"`
}

func (p *Parameters) applyEnv() error {
	var env environment
	if err := envconfig.Process("", &env); err != nil {
		return err
	}
	if env.DatabaseURL != "" {
		p.Database.URL = env.DatabaseURL
	}
	if env.BootstrapToken != "" {
		p.Auth.BootstrapToken = env.BootstrapToken
	}
	if env.APITLSEnabled {
		p.Admin.TLS.Enabled = true
	}
	if env.APITLSCertPath != "" {
		p.Admin.TLS.CertPath = env.APITLSCertPath
	}
	if env.APITLSKeyPath != "" {
		p.Admin.TLS.KeyPath = env.APITLSKeyPath
	}
	if env.APITLSChainPath != "" {
		p.Admin.TLS.ChainPath = env.APITLSChainPath
	}
	return nil
}

// Parse reads parameters from a YAML document, fills the gaps with the
// defaults and overlays the environment. Unknown fields are rejected.
func Parse(in io.Reader) (*Parameters, error) {
	var p Parameters

	dec := yaml.NewDecoder(in)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	defaults := Defaults()
	if err := mergo.Merge(&p, defaults); err != nil {
		return nil, err
	}
	if err := p.applyEnv(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseFile loads parameters from the file at path, or the defaults plus
// environment when path is empty.
func ParseFile(path string) (*Parameters, error) {
	if path == "" {
		p := Defaults()
		if err := p.applyEnv(); err != nil {
			return nil, err
		}
		return &p, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// RequestTimeout resolves the admin request budget.
func (p *Parameters) RequestTimeout() (timeout.Setting, error) {
	return timeout.Parse(p.Admin.RequestTimeout)
}

// Validate verifies the parameters are usable as a whole.
func (p *Parameters) Validate() error {
	if err := p.LogLevel.Validate(); err != nil {
		return err
	}
	if err := p.Database.Validate(); err != nil {
		return err
	}
	if err := p.XDS.Validate(); err != nil {
		return err
	}
	if err := p.Admin.Validate(); err != nil {
		return err
	}
	if err := p.Metrics.Validate(); err != nil {
		return err
	}
	return p.Debug.Validate()
}
