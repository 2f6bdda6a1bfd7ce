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
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"
)

// TLSSettings configures the xDS listener's server TLS. An empty cert path
// disables TLS; a client CA enables mutual authentication.
type TLSSettings struct {
	CertPath          string
	KeyPath           string
	ClientCAPath      string
	RequireClientCert bool
}

// Enabled reports whether the settings carry a server certificate.
func (t *TLSSettings) Enabled() bool {
	return t != nil && t.CertPath != ""
}

// NewGRPCServer assembles the gRPC server carrying the delivery engine:
// keepalive enforcement, prometheus stream metrics and optional mTLS.
func NewGRPCServer(log logrus.FieldLogger, registerMetrics func(*grpc_prometheus.ServerMetrics), tlsSettings *TLSSettings) (*grpc.Server, error) {
	serverMetrics := grpc_prometheus.NewServerMetrics()
	if registerMetrics != nil {
		registerMetrics(serverMetrics)
	}

	opts := []grpc.ServerOption{
		// Envoy aggressively reuses a small number of long-lived streams,
		// so the defaults for concurrency and keepalive do not fit.
		grpc.MaxConcurrentStreams(1 << 20),
		grpc.StreamInterceptor(grpc_middleware.ChainStreamServer(
			serverMetrics.StreamServerInterceptor(),
		)),
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			serverMetrics.UnaryServerInterceptor(),
		)),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    60 * time.Second,
			Timeout: 20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             15 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	if tlsSettings.Enabled() {
		config, err := serverTLSConfig(tlsSettings)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(config)))
		log.WithField("cert", tlsSettings.CertPath).Info("serving xDS over TLS")
	}

	return grpc.NewServer(opts...), nil
}

func serverTLSConfig(settings *TLSSettings) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(settings.CertPath, settings.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading xDS server certificate: %w", err)
	}

	config := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if settings.ClientCAPath != "" {
		ca, err := os.ReadFile(settings.ClientCAPath)
		if err != nil {
			return nil, fmt.Errorf("reading xDS client CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(ca) {
			return nil, fmt.Errorf("xDS client CA %q holds no certificates", settings.ClientCAPath)
		}
		config.ClientCAs = pool
		config.ClientAuth = tls.VerifyClientCertIfGiven
		if settings.RequireClientCert {
			config.ClientAuth = tls.RequireAndVerifyClientCert
		}
	}

	return config, nil
}
