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

// Package envoy holds the pieces of the compiler that are not tied to a
// specific Envoy API version: resource naming and the bootstrap
// configuration surface.
package envoy

import (
	"fmt"
	"strings"

	"github.com/flowplane/flowplane/internal/model"
)

// Compiled resource names are namespaced by team so that identically named
// resources from different teams never collide in the xDS caches.

// ClusterName returns the compiled name of a cluster.
func ClusterName(c *model.Cluster) string {
	return c.Team + "/" + c.Name
}

// SecretName returns the compiled name of a secret.
func SecretName(s *model.Secret) string {
	return s.Team + "/" + s.Name
}

// ListenerName returns the compiled name of a listener.
func ListenerName(l *model.Listener) string {
	return l.Team + "/" + l.Name
}

// RouteConfigName returns the compiled name of a route configuration.
func RouteConfigName(rc *model.RouteConfig) string {
	return rc.Team + "/" + rc.Name
}

// AltStatName flattens a compiled name into something Envoy's stats tree
// can carry.
func AltStatName(name string) string {
	return strings.ReplaceAll(name, "/", "_")
}

// StatPrefix joins a prefix and a compiled name into a stats segment.
func StatPrefix(prefix, name string) string {
	return fmt.Sprintf("%s_%s", prefix, AltStatName(name))
}
