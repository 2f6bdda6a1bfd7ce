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
	"os"

	kingpin "github.com/alecthomas/kingpin/v2"

	"github.com/flowplane/flowplane/internal/envoy"
	"github.com/flowplane/flowplane/internal/platform"
)

type bootstrapContext struct {
	config envoy.BootstrapConfig
	path   string
	format string
}

// registerBootstrap registers the bootstrap subcommand and flags
// with the Application provided.
func registerBootstrap(app *kingpin.Application) (*kingpin.CmdClause, *bootstrapContext) {
	ctx := &bootstrapContext{}

	bootstrap := app.Command("bootstrap", "Generate Envoy bootstrap configuration.")
	bootstrap.Arg("path", "Bootstrap output file ('-' for standard output).").Required().StringVar(&ctx.path)
	bootstrap.Flag("team", "Team the node belongs to.").StringVar(&ctx.config.Team)
	bootstrap.Flag("include-default", "Also subscribe the node to the shared gateway resources.").Default("true").BoolVar(&ctx.config.IncludeDefault)
	bootstrap.Flag("format", "Output format, yaml or json.").Default(platform.BootstrapFormatYAML).EnumVar(&ctx.format, platform.BootstrapFormatYAML, platform.BootstrapFormatJSON)
	bootstrap.Flag("admin-address", "Envoy admin interface address.").Default("127.0.0.1").StringVar(&ctx.config.AdminAddress)
	bootstrap.Flag("admin-port", "Envoy admin interface port.").Default("9001").IntVar(&ctx.config.AdminPort)
	bootstrap.Flag("xds-address", "xDS gRPC API address.").Default("127.0.0.1").StringVar(&ctx.config.XDSAddress)
	bootstrap.Flag("xds-port", "xDS gRPC API port.").Default("18000").IntVar(&ctx.config.XDSPort)
	bootstrap.Flag("envoy-cafile", "CA bundle for the node to verify the control plane with.").Envar("ENVOY_CAFILE").StringVar(&ctx.config.CACertificatePath)
	bootstrap.Flag("envoy-cert-file", "Client certificate for the node to present.").Envar("ENVOY_CERT_FILE").StringVar(&ctx.config.ClientCertPath)
	bootstrap.Flag("envoy-key-file", "Client key for the node to present.").Envar("ENVOY_KEY_FILE").StringVar(&ctx.config.ClientKeyPath)
	bootstrap.Flag("node-id", "Node identity override. Defaults to a generated team-scoped id.").StringVar(&ctx.config.NodeID)
	return bootstrap, ctx
}

func writeBootstrapConfig(ctx *bootstrapContext) error {
	out, err := platform.RenderBootstrap(&ctx.config, ctx.format)
	if err != nil {
		return err
	}

	if ctx.path == "-" {
		_, err = os.Stdout.Write(out)
		return err
	}
	return os.WriteFile(ctx.path, out, 0o644)
}
