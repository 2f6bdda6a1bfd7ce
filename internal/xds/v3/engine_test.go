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
	"context"
	"io"
	"strconv"
	"testing"
	"time"

	envoy_config_cluster_v3 "github.com/envoyproxy/go-control-plane/envoy/config/cluster/v3"
	envoy_config_listener_v3 "github.com/envoyproxy/go-control-plane/envoy/config/listener/v3"
	envoy_service_discovery_v3 "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	resource "github.com/envoyproxy/go-control-plane/pkg/resource/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/flowplane/flowplane/internal/fixture"
	"github.com/flowplane/flowplane/internal/hub"
	"github.com/flowplane/flowplane/internal/metrics"
	xdscache_v3 "github.com/flowplane/flowplane/internal/xdscache/v3"
)

type fakeStream struct {
	ctx   context.Context
	reqs  chan *envoy_service_discovery_v3.DiscoveryRequest
	resps chan *envoy_service_discovery_v3.DiscoveryResponse
}

func newFakeStream(ctx context.Context) *fakeStream {
	return &fakeStream{
		ctx:   ctx,
		reqs:  make(chan *envoy_service_discovery_v3.DiscoveryRequest),
		resps: make(chan *envoy_service_discovery_v3.DiscoveryResponse, 16),
	}
}

func (f *fakeStream) Context() context.Context { return f.ctx }

func (f *fakeStream) Send(resp *envoy_service_discovery_v3.DiscoveryResponse) error {
	f.resps <- resp
	return nil
}

func (f *fakeStream) Recv() (*envoy_service_discovery_v3.DiscoveryRequest, error) {
	select {
	case req := <-f.reqs:
		return req, nil
	case <-f.ctx.Done():
		return nil, io.EOF
	}
}

func (f *fakeStream) request(t *testing.T, req *envoy_service_discovery_v3.DiscoveryRequest) {
	t.Helper()
	select {
	case f.reqs <- req:
	case <-time.After(time.Second):
		t.Fatal("stream did not accept the request")
	}
}

func (f *fakeStream) expectResponse(t *testing.T) *envoy_service_discovery_v3.DiscoveryResponse {
	t.Helper()
	select {
	case resp := <-f.resps:
		return resp
	case <-time.After(time.Second):
		t.Fatal("expected a discovery response")
		return nil
	}
}

func (f *fakeStream) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case resp := <-f.resps:
		t.Fatalf("unexpected response: version %s type %s", resp.VersionInfo, resp.TypeUrl)
	case <-time.After(100 * time.Millisecond):
	}
}

type engineHarness struct {
	caches *xdscache_v3.Caches
	hub    *hub.Hub
	stream *fakeStream
	errCh  chan error
	cancel context.CancelFunc
}

func startEngine(t *testing.T) *engineHarness {
	t.Helper()
	log := fixture.NewTestLogger(t)

	caches := xdscache_v3.NewCaches()
	h := hub.New(log)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	srv := NewADSServer(log, h, m, caches.AsResources()...).(*adsServer)

	ctx, cancel := context.WithCancel(context.Background())
	fs := newFakeStream(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.stream(fs) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(time.Second):
			t.Error("stream goroutine did not exit")
		}
	})

	return &engineHarness{caches: caches, hub: h, stream: fs, errCh: errCh, cancel: cancel}
}

func cluster(name string) proto.Message {
	return &envoy_config_cluster_v3.Cluster{Name: name}
}

func listener(name string) proto.Message {
	return &envoy_config_listener_v3.Listener{Name: name}
}

func (e *engineHarness) publish(t *testing.T) {
	t.Helper()
	if _, err := e.hub.Publish(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestInitialSyncAndAck(t *testing.T) {
	e := startEngine(t)
	e.caches.Clusters.Update([]proto.Message{cluster("default/app")})

	e.stream.request(t, &envoy_service_discovery_v3.DiscoveryRequest{TypeUrl: resource.ClusterType})
	resp := e.stream.expectResponse(t)
	assert.Equal(t, resource.ClusterType, resp.TypeUrl)
	assert.NotEmpty(t, resp.VersionInfo)
	assert.NotEmpty(t, resp.Nonce)
	require.Len(t, resp.Resources, 1)

	// A plain acknowledgment does not trigger a resend.
	e.stream.request(t, &envoy_service_discovery_v3.DiscoveryRequest{
		TypeUrl:       resource.ClusterType,
		VersionInfo:   resp.VersionInfo,
		ResponseNonce: resp.Nonce,
	})
	e.stream.expectSilence(t)
}

func TestFanOutOnPublish(t *testing.T) {
	e := startEngine(t)
	e.caches.Clusters.Update([]proto.Message{cluster("default/app")})

	e.stream.request(t, &envoy_service_discovery_v3.DiscoveryRequest{TypeUrl: resource.ClusterType})
	first := e.stream.expectResponse(t)

	// A publish with changed content pushes without a new request.
	e.caches.Clusters.Update([]proto.Message{cluster("default/app"), cluster("default/db")})
	e.publish(t)

	second := e.stream.expectResponse(t)
	assert.NotEqual(t, first.VersionInfo, second.VersionInfo)
	assert.Len(t, second.Resources, 2)
}

func TestSameVersionSkipped(t *testing.T) {
	e := startEngine(t)
	e.caches.Clusters.Update([]proto.Message{cluster("default/app")})

	e.stream.request(t, &envoy_service_discovery_v3.DiscoveryRequest{TypeUrl: resource.ClusterType})
	e.stream.expectResponse(t)

	// Publishing an unchanged snapshot is a no-op for the stream.
	e.publish(t)
	e.stream.expectSilence(t)
}

func TestNackToleratedWithoutRetry(t *testing.T) {
	e := startEngine(t)
	e.caches.Clusters.Update([]proto.Message{cluster("default/app")})

	e.stream.request(t, &envoy_service_discovery_v3.DiscoveryRequest{TypeUrl: resource.ClusterType})
	resp := e.stream.expectResponse(t)

	// The client rejects the configuration. The engine logs and waits;
	// there is no automatic retry of the same version.
	e.stream.request(t, &envoy_service_discovery_v3.DiscoveryRequest{
		TypeUrl:       resource.ClusterType,
		VersionInfo:   "",
		ResponseNonce: resp.Nonce,
		ErrorDetail:   &status.Status{Code: 3, Message: "bad config"},
	})
	e.stream.expectSilence(t)

	// The next accepted publish supersedes the rejected version.
	e.caches.Clusters.Update([]proto.Message{cluster("default/fixed")})
	e.publish(t)
	next := e.stream.expectResponse(t)
	assert.NotEqual(t, resp.VersionInfo, next.VersionInfo)
}

func TestSubscriptionChangeForcesResponse(t *testing.T) {
	e := startEngine(t)
	e.caches.Clusters.Update([]proto.Message{cluster("default/a"), cluster("default/b")})

	e.stream.request(t, &envoy_service_discovery_v3.DiscoveryRequest{
		TypeUrl:       resource.ClusterType,
		ResourceNames: []string{"default/a"},
	})
	first := e.stream.expectResponse(t)
	require.Len(t, first.Resources, 1)

	// Widening the subscription responds even though the cache content
	// has not changed.
	e.stream.request(t, &envoy_service_discovery_v3.DiscoveryRequest{
		TypeUrl:       resource.ClusterType,
		VersionInfo:   first.VersionInfo,
		ResponseNonce: first.Nonce,
		ResourceNames: []string{"default/a", "default/b"},
	})
	second := e.stream.expectResponse(t)
	assert.Len(t, second.Resources, 2)
}

func TestPerTypeIndependence(t *testing.T) {
	e := startEngine(t)
	e.caches.Clusters.Update([]proto.Message{cluster("default/app")})
	e.caches.Listeners.Update([]proto.Message{listener("default/http")})

	e.stream.request(t, &envoy_service_discovery_v3.DiscoveryRequest{TypeUrl: resource.ClusterType})
	cds := e.stream.expectResponse(t)
	assert.Equal(t, resource.ClusterType, cds.TypeUrl)

	e.stream.request(t, &envoy_service_discovery_v3.DiscoveryRequest{TypeUrl: resource.ListenerType})
	lds := e.stream.expectResponse(t)
	assert.Equal(t, resource.ListenerType, lds.TypeUrl)

	// Rejecting listeners leaves the cluster state untouched: a cluster
	// change still pushes.
	e.stream.request(t, &envoy_service_discovery_v3.DiscoveryRequest{
		TypeUrl:       resource.ListenerType,
		ResponseNonce: lds.Nonce,
		ErrorDetail:   &status.Status{Code: 3, Message: "nope"},
	})
	e.caches.Clusters.Update([]proto.Message{cluster("default/app"), cluster("default/db")})
	e.publish(t)

	pushed := e.stream.expectResponse(t)
	assert.Equal(t, resource.ClusterType, pushed.TypeUrl)
	assert.Len(t, pushed.Resources, 2)
}

func TestVersionInfoTracksGlobalVersion(t *testing.T) {
	e := startEngine(t)
	contentA := []proto.Message{cluster("default/app")}
	contentB := []proto.Message{cluster("default/app"), cluster("default/db")}
	e.caches.Clusters.Update(contentA)

	ack := func(resp *envoy_service_discovery_v3.DiscoveryResponse) {
		e.stream.request(t, &envoy_service_discovery_v3.DiscoveryRequest{
			TypeUrl:       resource.ClusterType,
			VersionInfo:   resp.VersionInfo,
			ResponseNonce: resp.Nonce,
		})
	}

	e.stream.request(t, &envoy_service_discovery_v3.DiscoveryRequest{TypeUrl: resource.ClusterType})
	first := e.stream.expectResponse(t)
	assert.Equal(t, strconv.FormatUint(e.hub.Version(), 10), first.VersionInfo)
	ack(first)

	e.caches.Clusters.Update(contentB)
	e.publish(t)
	second := e.stream.expectResponse(t)
	ack(second)

	// Returning to earlier content still advances the version label, so
	// the client can tell the new state from the one it held before.
	e.caches.Clusters.Update(contentA)
	e.publish(t)
	third := e.stream.expectResponse(t)
	assert.NotEqual(t, first.VersionInfo, third.VersionInfo)
	assert.NotEqual(t, second.VersionInfo, third.VersionInfo)

	var last uint64
	for _, resp := range []*envoy_service_discovery_v3.DiscoveryResponse{first, second, third} {
		v, err := strconv.ParseUint(resp.VersionInfo, 10, 64)
		require.NoError(t, err)
		require.GreaterOrEqual(t, v, last)
		last = v
	}
}

func TestUnknownTypeTerminatesStream(t *testing.T) {
	log := fixture.NewTestLogger(t)
	caches := xdscache_v3.NewCaches()
	h := hub.New(log)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	srv := NewADSServer(log, h, m, caches.AsResources()...).(*adsServer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fs := newFakeStream(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.stream(fs) }()

	fs.request(t, &envoy_service_discovery_v3.DiscoveryRequest{TypeUrl: "type.googleapis.com/does.not.Exist"})
	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("stream should terminate on unknown type URL")
	}
}
