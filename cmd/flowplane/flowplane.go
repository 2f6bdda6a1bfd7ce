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
	"fmt"
	"os"

	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/sirupsen/logrus"
	_ "go.uber.org/automaxprocs"

	"github.com/flowplane/flowplane/internal/build"
)

func main() {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	app := kingpin.New("flowplane", "Flowplane Envoy control plane.")
	app.HelpFlag.Short('h')

	envdoc := app.Command("environment", "Print the environment variables the process reads.")

	bootstrap, bootstrapCtx := registerBootstrap(app)
	serve, serveCtx := registerServe(app)
	version := app.Command("version", "Build information for flowplane.")

	args := os.Args[1:]
	cmd := kingpin.MustParse(app.Parse(args))

	switch cmd {
	case bootstrap.FullCommand():
		if err := writeBootstrapConfig(bootstrapCtx); err != nil {
			log.WithError(err).Fatal("failed to generate bootstrap configuration")
		}
	case serve.FullCommand():
		if err := doServe(log, serveCtx); err != nil {
			log.WithError(err).Fatal("flowplane serve failed")
		}
		log.Info("terminated")
	case envdoc.FullCommand():
		printEnvironment()
	case version.FullCommand():
		fmt.Print(build.PrintBuildInfo())
	default:
		app.Usage(args)
		os.Exit(2)
	}
}

func printEnvironment() {
	for _, v := range []struct{ name, doc string }{
		{"DATABASE_URL", "sqlite:// or postgres:// DSN of the backing store."},
		{"BOOTSTRAP_TOKEN", "One-shot secret seeding the bootstrap admin token."},
		{"FLOWPLANE_API_TLS_ENABLED", "Serve the admin API over TLS."},
		{"FLOWPLANE_API_TLS_CERT_PATH", "Admin API server certificate."},
		{"FLOWPLANE_API_TLS_KEY_PATH", "Admin API server key."},
		{"FLOWPLANE_API_TLS_CHAIN_PATH", "Intermediates appended to the served chain."},
	} {
		fmt.Printf("%-32s %s\n", v.name, v.doc)
	}
}
