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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/flowplane/flowplane/internal/model"
	"github.com/flowplane/flowplane/internal/sorter"
)

func TestCompile(t *testing.T) {
	snap := edgeSnapshot()
	snap.Version = 7
	snap.Clusters = []*model.Cluster{
		{
			ID: "c-2", Team: "payments", Name: "checkout",
			Spec: model.ClusterSpec{Endpoints: []model.Endpoint{{Host: "10.0.0.2", Port: 80}}},
		},
		{
			ID: "c-1", Team: "payments", Name: "app",
			Spec: model.ClusterSpec{Endpoints: []model.Endpoint{{Host: "10.0.0.1", Port: 80}}},
		},
	}
	snap.Listeners = []*model.Listener{httpListener()}
	snap.Secrets = []*model.Secret{
		{
			ID: "s-1", Team: "payments", Name: "edge-cert",
			Type:   model.SecretTLSCertificate,
			Inline: &model.InlineSecret{CertChain: []byte("cert"), PrivateKey: []byte("key")},
		},
		// External references are resolved by their manager, not served
		// over SDS.
		{
			ID: "s-2", Team: "payments", Name: "vault-cert",
			Type:      model.SecretTLSCertificate,
			Reference: "vault:secret/data/edge",
		},
	}

	got, err := Compile(snap)
	require.NoError(t, err)

	assert.EqualValues(t, 7, got.Version)
	require.Len(t, got.Clusters, 2)
	require.Len(t, got.Endpoints, 2)
	require.Len(t, got.Listeners, 1)
	require.Len(t, got.Routes, 1)
	require.Len(t, got.Secrets, 1)

	// Output slices are sorted by compiled resource name.
	assert.Equal(t, "payments/app", sorter.ResourceName(got.Clusters[0]))
	assert.Equal(t, "payments/checkout", sorter.ResourceName(got.Clusters[1]))
	assert.Equal(t, "payments/edge-cert", sorter.ResourceName(got.Secrets[0]))
}

func TestCompileIsDeterministic(t *testing.T) {
	snap := edgeSnapshot()
	snap.Clusters = []*model.Cluster{{
		ID: "c-1", Team: "payments", Name: "app",
		Spec: model.ClusterSpec{Endpoints: []model.Endpoint{{Host: "10.0.0.1", Port: 80}}},
	}}
	snap.Listeners = []*model.Listener{httpListener()}

	first, err := Compile(snap)
	require.NoError(t, err)
	second, err := Compile(snap)
	require.NoError(t, err)

	require.Len(t, second.Listeners, len(first.Listeners))
	for i := range first.Listeners {
		assert.True(t, proto.Equal(first.Listeners[i], second.Listeners[i]))
	}
	for i := range first.Clusters {
		assert.True(t, proto.Equal(first.Clusters[i], second.Clusters[i]))
	}
}

func TestCompilePropagatesListenerErrors(t *testing.T) {
	l := httpListener()
	l.Spec.RouteConfigName = "missing"
	snap := &model.Snapshot{Listeners: []*model.Listener{l}}

	_, err := Compile(snap)
	require.Error(t, err)
}
