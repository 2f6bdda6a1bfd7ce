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

package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	kingpin "github.com/alecthomas/kingpin/v2"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/flowplane/flowplane/internal/adminapi"
	"github.com/flowplane/flowplane/internal/auth"
	"github.com/flowplane/flowplane/internal/debug"
	"github.com/flowplane/flowplane/internal/envoy"
	"github.com/flowplane/flowplane/internal/httpsvc"
	"github.com/flowplane/flowplane/internal/hub"
	"github.com/flowplane/flowplane/internal/metrics"
	"github.com/flowplane/flowplane/internal/platform"
	"github.com/flowplane/flowplane/internal/service"
	"github.com/flowplane/flowplane/internal/store"
	"github.com/flowplane/flowplane/internal/workgroup"
	xds_v3 "github.com/flowplane/flowplane/internal/xds/v3"
	"github.com/flowplane/flowplane/internal/xdscache"
	xdscache_v3 "github.com/flowplane/flowplane/internal/xdscache/v3"
	"github.com/flowplane/flowplane/pkg/config"
)

type serveContext struct {
	configFile string

	// Flag overrides applied over the file and environment. Zero values
	// mean "not set on the command line".
	logLevel       string
	xdsAddr        string
	xdsPort        int
	adminAddr      string
	adminPort      int
	metricsAddr    string
	metricsPort    int
	debugAddr      string
	debugPort      int
	xdsCert        string
	xdsKey         string
	xdsClientCA    string
	xdsRequireCert bool
}

// registerServe registers the serve subcommand and flags
// with the Application provided.
func registerServe(app *kingpin.Application) (*kingpin.CmdClause, *serveContext) {
	ctx := &serveContext{}

	serve := app.Command("serve", "Serve the admin API and xDS traffic.")
	serve.Flag("config-path", "Path to the configuration file.").Short('c').PlaceHolder("/path/to/flowplane.yaml").StringVar(&ctx.configFile)
	serve.Flag("log-level", "Log level: trace, debug, info, warn, error.").StringVar(&ctx.logLevel)
	serve.Flag("xds-address", "xDS gRPC API address.").StringVar(&ctx.xdsAddr)
	serve.Flag("xds-port", "xDS gRPC API port.").IntVar(&ctx.xdsPort)
	serve.Flag("admin-address", "Admin API address.").StringVar(&ctx.adminAddr)
	serve.Flag("admin-port", "Admin API port.").IntVar(&ctx.adminPort)
	serve.Flag("metrics-address", "Metrics endpoint address.").StringVar(&ctx.metricsAddr)
	serve.Flag("metrics-port", "Metrics endpoint port.").IntVar(&ctx.metricsPort)
	serve.Flag("debug-address", "Debug endpoint address.").StringVar(&ctx.debugAddr)
	serve.Flag("debug-port", "Debug endpoint port.").IntVar(&ctx.debugPort)
	serve.Flag("xds-server-cert", "xDS server certificate.").StringVar(&ctx.xdsCert)
	serve.Flag("xds-server-key", "xDS server key.").StringVar(&ctx.xdsKey)
	serve.Flag("xds-client-ca", "CA bundle verifying xDS client certificates.").StringVar(&ctx.xdsClientCA)
	serve.Flag("xds-require-client-cert", "Reject xDS clients without a verified certificate.").BoolVar(&ctx.xdsRequireCert)
	return serve, ctx
}

// apply overlays the command line flags on the loaded parameters.
func (sctx *serveContext) apply(cfg *config.Parameters) {
	if sctx.logLevel != "" {
		cfg.LogLevel = config.LogLevel(sctx.logLevel)
	}
	if sctx.xdsAddr != "" {
		cfg.XDS.Address = sctx.xdsAddr
	}
	if sctx.xdsPort != 0 {
		cfg.XDS.Port = sctx.xdsPort
	}
	if sctx.adminAddr != "" {
		cfg.Admin.Address = sctx.adminAddr
	}
	if sctx.adminPort != 0 {
		cfg.Admin.Port = sctx.adminPort
	}
	if sctx.metricsAddr != "" {
		cfg.Metrics.Address = sctx.metricsAddr
	}
	if sctx.metricsPort != 0 {
		cfg.Metrics.Port = sctx.metricsPort
	}
	if sctx.debugAddr != "" {
		cfg.Debug.Address = sctx.debugAddr
	}
	if sctx.debugPort != 0 {
		cfg.Debug.Port = sctx.debugPort
	}
	if sctx.xdsCert != "" {
		cfg.XDS.TLS.CertPath = sctx.xdsCert
	}
	if sctx.xdsKey != "" {
		cfg.XDS.TLS.KeyPath = sctx.xdsKey
	}
	if sctx.xdsClientCA != "" {
		cfg.XDS.TLS.CAPath = sctx.xdsClientCA
	}
	if sctx.xdsRequireCert {
		cfg.XDS.TLS.RequireClientCert = true
	}
}

// doServe assembles the process from the configuration and runs it until
// the first worker fails or a termination signal arrives.
func doServe(log *logrus.Logger, sctx *serveContext) error {
	cfg, err := config.ParseFile(sctx.configFile)
	if err != nil {
		return err
	}
	sctx.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logrus.ParseLevel(string(cfg.LogLevel))
	if err != nil {
		return err
	}
	log.SetLevel(level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var storeOpts []store.Option
	if cfg.Auth.BootstrapToken != "" {
		// Inline secret material is sealed at rest when a key source is
		// available.
		storeOpts = append(storeOpts, store.WithSecretCipherKey(cfg.Auth.BootstrapToken))
	}
	st, err := store.Open(ctx, log, cfg.Database.URL, storeOpts...)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.RunMigrations(ctx); err != nil {
		return err
	}
	if err := st.EnsureDefaults(ctx); err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	m := metrics.NewMetrics(promRegistry)

	h := hub.New(log)
	h.Attach(hub.ObserverFunc(func(_ context.Context, version uint64) error {
		m.SetConfigVersion(version)
		return nil
	}))

	caches := xdscache_v3.NewCaches()
	h.Attach(xdscache.NewSnapshotHandler(log, st, caches))

	authSvc := auth.NewService(log, st)
	if cfg.Auth.BootstrapToken != "" {
		tok, created, err := authSvc.EnsureBootstrapToken(ctx, cfg.Auth.BootstrapToken)
		if err != nil {
			return err
		}
		if created {
			log.WithField("token_id", tok.ID).Info("seeded bootstrap admin token")
		}
	}

	registry := service.NewRegistry(log, st, h)
	materializer := platform.NewMaterializer(log, st, h)

	// Load the repository into the caches before anything can connect.
	if _, err := h.Publish(ctx); err != nil {
		return err
	}

	var g workgroup.Group

	sweeper := auth.NewSweeper(log, st, auth.DefaultSweepInterval)
	g.Add(sweeper.Start)

	advertised := cfg.XDS.AdvertisedAddress
	if advertised == "" {
		advertised = cfg.XDS.Address
	}
	baseBootstrap := envoy.BootstrapConfig{
		XDSAddress: advertised,
		XDSPort:    cfg.XDS.Port,
	}

	requestTimeout, err := cfg.RequestTimeout()
	if err != nil {
		return err
	}
	apiServer := adminapi.NewServer(log, registry, authSvc, materializer, baseBootstrap, requestTimeout.Or(adminapi.DefaultRequestTimeout))
	apisvc := httpsvc.Service{
		Addr:        cfg.Admin.Address,
		Port:        cfg.Admin.Port,
		Handler:     apiServer.Router(),
		FieldLogger: log.WithField("context", "apisvc"),
	}
	if cfg.Admin.TLS.Enabled {
		apisvc.Cert = cfg.Admin.TLS.CertPath
		apisvc.Key = cfg.Admin.TLS.KeyPath
		apisvc.ChainPath = cfg.Admin.TLS.ChainPath
	}
	g.Add(apisvc.Start)

	metricsvc := httpsvc.Service{
		Addr:        cfg.Metrics.Address,
		Port:        cfg.Metrics.Port,
		Handler:     m.Handler(),
		FieldLogger: log.WithField("context", "metricsvc"),
	}
	g.Add(metricsvc.Start)

	debugsvc := debug.Service{
		Service: httpsvc.Service{
			Addr:        cfg.Debug.Address,
			Port:        cfg.Debug.Port,
			FieldLogger: log.WithField("context", "debugsvc"),
		},
		Caches: caches,
	}
	g.Add(debugsvc.Start)

	g.Add(func(stop <-chan struct{}) error {
		log := log.WithField("context", "grpc")

		var tlsSettings *xds_v3.TLSSettings
		if cfg.XDS.TLS.CertPath != "" {
			tlsSettings = &xds_v3.TLSSettings{
				CertPath:          cfg.XDS.TLS.CertPath,
				KeyPath:           cfg.XDS.TLS.KeyPath,
				ClientCAPath:      cfg.XDS.TLS.CAPath,
				RequireClientCert: cfg.XDS.TLS.RequireClientCert,
			}
		}

		grpcServer, err := xds_v3.NewGRPCServer(log, func(sm *grpc_prometheus.ServerMetrics) {
			promRegistry.MustRegister(sm)
		}, tlsSettings)
		if err != nil {
			return err
		}
		xds_v3.RegisterServer(xds_v3.NewADSServer(log, h, m, caches.AsResources()...), grpcServer)

		addr := net.JoinHostPort(cfg.XDS.Address, strconv.Itoa(cfg.XDS.Port))
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}

		go func() {
			<-stop
			grpcServer.GracefulStop()
		}()

		log.WithField("address", addr).Info("started xDS server")
		defer log.Info("stopped xDS server")
		return grpcServer.Serve(l)
	})

	return g.Run(ctx)
}
