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

package envoy

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/flowplane/flowplane/internal/errs"
	"github.com/flowplane/flowplane/internal/model"
)

// XDSClusterName is the static cluster a bootstrapped Envoy dials for ADS.
const XDSClusterName = "flowplane-xds"

// BootstrapConfig holds the parameters of a generated Envoy bootstrap
// document.
type BootstrapConfig struct {
	// Team scopes the node identity. Defaults to the default team.
	Team string

	// IncludeDefault asks the control plane to also serve the shared
	// gateway resources to this node.
	IncludeDefault bool

	// XDSAddress and XDSPort locate the control plane's ADS endpoint.
	XDSAddress string
	XDSPort    int

	// AdminAddress and AdminPort configure the Envoy admin interface.
	AdminAddress string
	AdminPort    int

	// Paths to the TLS bundle the proxy presents to the control plane.
	// All three must be set together; empty means plaintext gRPC.
	CACertificatePath string
	ClientCertPath    string
	ClientKeyPath     string

	// NodeID overrides the generated node identity. Used by tests.
	NodeID string
}

// Validate normalizes and checks the bootstrap parameters.
func (c *BootstrapConfig) Validate() error {
	if c.Team == "" {
		c.Team = model.DefaultTeam
	}
	if err := model.ValidateName("team", c.Team); err != nil {
		return err
	}
	if c.XDSAddress == "" {
		return errs.Validation("bootstrap requires the xDS server address")
	}
	if c.XDSPort <= 0 || c.XDSPort > 65535 {
		return errs.Validation("xDS port %d out of range", c.XDSPort)
	}

	set := 0
	for _, p := range []string{c.CACertificatePath, c.ClientCertPath, c.ClientKeyPath} {
		if p != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		return errs.Validation("xDS TLS requires CA certificate, client certificate and key together")
	}
	return nil
}

// UsesTLS reports whether the generated node dials the control plane over
// mTLS.
func (c *BootstrapConfig) UsesTLS() bool {
	return c.CACertificatePath != ""
}

// NodeIdentity returns the node id carried in the bootstrap document. The
// team prefix is what the delivery engine scopes resource visibility on.
func (c *BootstrapConfig) NodeIdentity() string {
	if c.NodeID != "" {
		return c.NodeID
	}
	return fmt.Sprintf("team=%s/%s", c.Team, uuid.NewString())
}
