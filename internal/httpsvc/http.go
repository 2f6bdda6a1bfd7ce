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

// Package httpsvc provides a HTTP/1.x Service compatible with the
// workgroup.Group API.
package httpsvc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Service is one HTTP endpoint of the control plane: admin API, metrics or
// debug. The handler is fixed at construction; TLS material is reloaded at
// every handshake so rotated certificates take effect without a restart.
type Service struct {
	Addr string
	Port int

	Handler http.Handler

	// TLS parameters. Cert and Key switch the service to HTTPS; ChainPath
	// appends intermediates to the presented chain; CABundle additionally
	// requires client certificates.
	CABundle  string
	Cert      string
	Key       string
	ChainPath string

	logrus.FieldLogger
}

// Start runs the server until stop is closed, then drains in-flight
// requests for up to five seconds.
func (svc *Service) Start(stop <-chan struct{}) (err error) {
	defer func() {
		if err != nil {
			svc.WithError(err).Error("terminated HTTP server with error")
		} else {
			svc.Info("stopped HTTP server")
		}
	}()

	// If any TLS parameter is set, at least the server certificate and key
	// must be present.
	if (svc.Cert != "" || svc.Key != "" || svc.CABundle != "") &&
		(svc.Cert == "" || svc.Key == "") {
		return fmt.Errorf("TLS configuration requires both a server certificate and a key")
	}

	var tlsConfig *tls.Config
	if svc.Cert != "" && svc.Key != "" {
		tlsConfig, err = svc.tlsConfig()
		if err != nil {
			return err
		}
	}

	s := http.Server{
		Addr:              net.JoinHostPort(svc.Addr, strconv.Itoa(svc.Port)),
		Handler:           svc.Handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute, // allow for long trace requests
		MaxHeaderBytes:    1 << 11,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-stop

		// Shut down with five seconds grace.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	}()

	if s.TLSConfig != nil {
		svc.WithField("address", s.Addr).Info("started HTTPS server")
		err = s.ListenAndServeTLS("", "")
	} else {
		svc.WithField("address", s.Addr).Info("started HTTP server")
		err = s.ListenAndServe()
	}
	if err == http.ErrServerClosed {
		err = nil
	}
	return err
}

func (svc *Service) tlsConfig() (*tls.Config, error) {
	// Lazily load certificates and key at handshake time so rotated
	// material is picked up.
	loadConfig := func() (*tls.Config, error) {
		cert, err := svc.loadCertificate()
		if err != nil {
			return nil, err
		}

		clientAuth := tls.NoClientCert
		var certPool *x509.CertPool
		if svc.CABundle != "" {
			clientAuth = tls.RequireAndVerifyClientCert
			ca, err := os.ReadFile(svc.CABundle)
			if err != nil {
				return nil, err
			}

			certPool = x509.NewCertPool()
			if ok := certPool.AppendCertsFromPEM(ca); !ok {
				return nil, fmt.Errorf("unable to append certificate in %s to CA pool", svc.CABundle)
			}
		}

		return &tls.Config{
			Certificates: []tls.Certificate{cert},
			ClientAuth:   clientAuth,
			ClientCAs:    certPool,
			MinVersion:   tls.VersionTLS13,
		}, nil
	}

	// Load once up front to catch configuration errors early.
	if _, err := loadConfig(); err != nil {
		return nil, err
	}

	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		GetConfigForClient: func(*tls.ClientHelloInfo) (*tls.Config, error) {
			return loadConfig()
		},
	}, nil
}

func (svc *Service) loadCertificate() (tls.Certificate, error) {
	certPEM, err := os.ReadFile(svc.Cert)
	if err != nil {
		return tls.Certificate{}, err
	}
	if svc.ChainPath != "" {
		chain, err := os.ReadFile(svc.ChainPath)
		if err != nil {
			return tls.Certificate{}, err
		}
		certPEM = append(certPEM, '\n')
		certPEM = append(certPEM, chain...)
	}
	keyPEM, err := os.ReadFile(svc.Key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}
