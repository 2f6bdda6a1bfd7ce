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

package debug

import (
	"net/http"
	"net/http/httptest"
	"testing"

	envoy_config_cluster_v3 "github.com/envoyproxy/go-control-plane/envoy/config/cluster/v3"
	envoy_config_listener_v3 "github.com/envoyproxy/go-control-plane/envoy/config/listener/v3"
	resource "github.com/envoyproxy/go-control-plane/pkg/resource/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"sigs.k8s.io/yaml"

	"github.com/flowplane/flowplane/internal/fixture"
	xdscache_v3 "github.com/flowplane/flowplane/internal/xdscache/v3"
)

func testService(t *testing.T) *Service {
	t.Helper()
	caches := xdscache_v3.NewCaches()
	caches.Clusters.Update([]proto.Message{
		&envoy_config_cluster_v3.Cluster{Name: "payments/app"},
		&envoy_config_cluster_v3.Cluster{Name: "payments/checkout"},
	})
	caches.Listeners.Update([]proto.Message{
		&envoy_config_listener_v3.Listener{Name: "payments/ingress"},
	})

	svc := &Service{Caches: caches}
	svc.FieldLogger = fixture.NewTestLogger(t)
	return svc
}

func TestXDSDump(t *testing.T) {
	svc := testService(t)

	w := httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/xds", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))

	var doc map[string][]map[string]any
	require.NoError(t, yaml.Unmarshal(w.Body.Bytes(), &doc))
	require.Len(t, doc, 5)

	clusters := doc[resource.ClusterType]
	require.Len(t, clusters, 2)
	assert.Equal(t, "payments/app", clusters[0]["name"])
	assert.NotEmpty(t, clusters[0]["version"])

	listeners := doc[resource.ListenerType]
	require.Len(t, listeners, 1)
	assert.Equal(t, "payments/ingress", listeners[0]["name"])
}

func TestXDSDumpTypeFilter(t *testing.T) {
	svc := testService(t)

	w := httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/xds?type="+resource.ClusterType, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var doc map[string][]map[string]any
	require.NoError(t, yaml.Unmarshal(w.Body.Bytes(), &doc))
	require.Len(t, doc, 1)
	assert.Len(t, doc[resource.ClusterType], 2)
}

func TestPprofIndex(t *testing.T) {
	svc := testService(t)

	w := httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
