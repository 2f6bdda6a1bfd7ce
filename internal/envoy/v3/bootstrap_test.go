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

	envoy_config_core_v3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowplane/flowplane/internal/envoy"
	"github.com/flowplane/flowplane/internal/protobuf"
)

func TestBootstrap(t *testing.T) {
	c := &envoy.BootstrapConfig{
		Team:           "payments",
		IncludeDefault: true,
		XDSAddress:     "flowplane.infra.example.com",
		XDSPort:        18000,
		AdminAddress:   "127.0.0.1",
		AdminPort:      9901,
		NodeID:         "payments-node-1",
	}
	require.NoError(t, c.Validate())

	got := Bootstrap(c)

	assert.Equal(t, "payments-node-1", got.Node.Id)
	assert.Equal(t, "payments", got.Node.Cluster)
	assert.Equal(t, "payments", got.Node.Metadata.Fields["team"].GetStringValue())
	assert.True(t, got.Node.Metadata.Fields["include_default"].GetBoolValue())

	require.Len(t, got.StaticResources.Clusters, 1)
	xds := got.StaticResources.Clusters[0]
	assert.Equal(t, envoy.XDSClusterName, xds.Name)
	ep := xds.LoadAssignment.Endpoints[0].LbEndpoints[0].GetEndpoint()
	assert.Equal(t, "flowplane.infra.example.com", ep.Address.GetSocketAddress().GetAddress())
	assert.EqualValues(t, 18000, ep.Address.GetSocketAddress().GetPortValue())
	// gRPC needs HTTP/2 to the management server.
	require.Contains(t, xds.TypedExtensionProtocolOptions,
		"envoy.extensions.upstreams.http.v3.HttpProtocolOptions")
	assert.Nil(t, xds.TransportSocket)

	assert.Equal(t, envoy_config_core_v3.ApiConfigSource_GRPC, got.DynamicResources.AdsConfig.ApiType)
	assert.Equal(t, envoy.XDSClusterName,
		got.DynamicResources.AdsConfig.GrpcServices[0].GetEnvoyGrpc().ClusterName)
	protobuf.ExpectEqual(t, ConfigSource(), got.DynamicResources.CdsConfig)
	protobuf.ExpectEqual(t, ConfigSource(), got.DynamicResources.LdsConfig)

	require.NotNil(t, got.Admin)
	assert.EqualValues(t, 9901, got.Admin.Address.GetSocketAddress().GetPortValue())
}

func TestBootstrapMutualTLS(t *testing.T) {
	c := &envoy.BootstrapConfig{
		Team:              "payments",
		XDSAddress:        "flowplane.infra.example.com",
		XDSPort:           18000,
		CACertificatePath: "/etc/flowplane/ca.pem",
		ClientCertPath:    "/etc/flowplane/cert.pem",
		ClientKeyPath:     "/etc/flowplane/key.pem",
	}
	require.NoError(t, c.Validate())
	require.True(t, c.UsesTLS())

	got := Bootstrap(c)
	xds := got.StaticResources.Clusters[0]
	require.NotNil(t, xds.TransportSocket)
	assert.Equal(t, "envoy.transport_sockets.tls", xds.TransportSocket.Name)
}
