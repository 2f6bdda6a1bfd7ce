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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowplane/flowplane/internal/model"
)

func TestCompiledNamesAreTeamScoped(t *testing.T) {
	assert.Equal(t, "payments/app",
		ClusterName(&model.Cluster{Team: "payments", Name: "app"}))
	assert.Equal(t, "payments/edge-cert",
		SecretName(&model.Secret{Team: "payments", Name: "edge-cert"}))
	assert.Equal(t, "payments/ingress",
		ListenerName(&model.Listener{Team: "payments", Name: "ingress"}))
	assert.Equal(t, "payments/edge",
		RouteConfigName(&model.RouteConfig{Team: "payments", Name: "edge"}))
}

func TestAltStatName(t *testing.T) {
	assert.Equal(t, "payments_app", AltStatName("payments/app"))
}
