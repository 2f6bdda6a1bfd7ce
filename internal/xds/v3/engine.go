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

// Package v3 implements the State-of-the-World xDS delivery engine. Every
// stream runs one loop goroutine, so sends are strictly ordered; types on
// an aggregated stream progress independently of each other.
package v3

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	envoy_service_cluster_v3 "github.com/envoyproxy/go-control-plane/envoy/service/cluster/v3"
	envoy_service_discovery_v3 "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	envoy_service_endpoint_v3 "github.com/envoyproxy/go-control-plane/envoy/service/endpoint/v3"
	envoy_service_listener_v3 "github.com/envoyproxy/go-control-plane/envoy/service/listener/v3"
	envoy_service_route_v3 "github.com/envoyproxy/go-control-plane/envoy/service/route/v3"
	envoy_service_secret_v3 "github.com/envoyproxy/go-control-plane/envoy/service/secret/v3"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/flowplane/flowplane/internal/hub"
	"github.com/flowplane/flowplane/internal/metrics"
	"github.com/flowplane/flowplane/internal/xds"
)

type grpcStream interface {
	Context() context.Context
	Send(*envoy_service_discovery_v3.DiscoveryResponse) error
	Recv() (*envoy_service_discovery_v3.DiscoveryRequest, error)
}

// NewADSServer creates a Server streaming the given resource caches. Fan-out
// is driven by hub registration: every published version wakes each stream,
// which re-evaluates its subscriptions against the refreshed caches.
func NewADSServer(log logrus.FieldLogger, h *hub.Hub, m *metrics.Metrics, resources ...xds.Resource) Server {
	s := adsServer{
		FieldLogger: log.WithField("context", "adsServer"),
		hub:         h,
		metrics:     m,
		resources:   map[string]xds.Resource{},
	}
	for i, r := range resources {
		s.resources[r.TypeURL()] = resources[i]
	}
	return &s
}

type adsServer struct {
	// Only the streaming State-of-the-World variant is implemented; the
	// embedded defaults answer the delta and fetch endpoints.
	envoy_service_discovery_v3.UnimplementedAggregatedDiscoveryServiceServer
	envoy_service_secret_v3.UnimplementedSecretDiscoveryServiceServer
	envoy_service_route_v3.UnimplementedRouteDiscoveryServiceServer
	envoy_service_endpoint_v3.UnimplementedEndpointDiscoveryServiceServer
	envoy_service_cluster_v3.UnimplementedClusterDiscoveryServiceServer
	envoy_service_listener_v3.UnimplementedListenerDiscoveryServiceServer

	logrus.FieldLogger
	hub       *hub.Hub
	metrics   *metrics.Metrics
	resources map[string]xds.Resource

	connections xds.Counter
	nonces      xds.Counter
}

// typeState is the delivery state of one (stream, type URL) pair. It lives
// inside the stream loop, so no locking applies; everything is released
// when the stream ends.
type typeState struct {
	resource xds.Resource

	// subscriptions is the last requested resource name set. Empty means
	// wildcard.
	subscriptions []string

	// lastHash is a content hash of the resource set last pushed. Pushes
	// whose content the client already holds are suppressed on it.
	lastHash string

	// pending maps in-flight nonces to the version_info they carried,
	// until the client acknowledges or rejects them.
	pending map[string]string
}

// stream processes a stream of DiscoveryRequests.
func (s *adsServer) stream(st grpcStream) error {
	log := s.WithField("connection", s.connections.Next())

	s.metrics.StreamOpened()
	defer s.metrics.StreamClosed()

	done := func(log logrus.FieldLogger, err error) error {
		if err != nil {
			log.WithError(err).Error("stream terminated")
		} else {
			log.Info("stream terminated")
		}
		return err
	}

	ctx := st.Context()

	// Requests are pumped from a separate goroutine so the loop below can
	// wait on requests and cache updates at once. Sends stay confined to
	// the loop goroutine.
	reqCh := make(chan *envoy_service_discovery_v3.DiscoveryRequest)
	errCh := make(chan error, 1)
	go func() {
		for {
			req, err := st.Recv()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case reqCh <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Updates coalesce in a one-slot channel: a laggard stream sees only
	// the newest version and resyncs from the current caches.
	updates := make(chan uint64, 1)
	s.hub.Register(updates, s.hub.Version())

	states := map[string]*typeState{}

	for {
		select {
		case err := <-errCh:
			return done(log, err)

		case <-ctx.Done():
			return done(log, ctx.Err())

		case req := <-reqCh:
			if err := s.handleRequest(log, st, states, req); err != nil {
				return done(log, err)
			}

		case version := <-updates:
			s.hub.Register(updates, version)
			for _, typeURL := range orderedTypes(states) {
				if err := s.respond(log, st, typeURL, states[typeURL], false); err != nil {
					return done(log, err)
				}
			}
		}
	}
}

func (s *adsServer) handleRequest(log logrus.FieldLogger, st grpcStream, states map[string]*typeState, req *envoy_service_discovery_v3.DiscoveryRequest) error {
	log = log.WithField("version_info", req.GetVersionInfo()).
		WithField("response_nonce", req.GetResponseNonce()).
		WithField("resource_names", req.GetResourceNames()).
		WithField("type_url", req.GetTypeUrl())
	if req.Node != nil {
		log = log.WithField("node_id", req.Node.Id)
	}
	log.Debug("handling v3 xDS resource request")

	typeURL := req.GetTypeUrl()
	state, ok := states[typeURL]
	if !ok {
		r, registered := s.resources[typeURL]
		if !registered {
			return fmt.Errorf("no resource registered for typeURL %q", typeURL)
		}
		state = &typeState{
			resource: r,
			pending:  map[string]string{},
		}
		states[typeURL] = state
	}

	// Resolve the nonce against the pending table. Nonces from earlier
	// incarnations of the stream, or superseded responses, are ignored.
	ack := false
	if nonce := req.GetResponseNonce(); nonce != "" {
		if version, pending := state.pending[nonce]; pending {
			delete(state.pending, nonce)
			switch {
			case req.GetErrorDetail() != nil:
				// The client rejected the configuration. There is no
				// automatic retry: the next accepted publish
				// supersedes the rejected version.
				s.metrics.OnNack(typeURL)
				log.WithField("code", req.GetErrorDetail().GetCode()).
					WithField("message", req.GetErrorDetail().GetMessage()).
					Warn("configuration rejected by client")
			case req.GetVersionInfo() == version:
				s.metrics.OnAck(typeURL)
				ack = true
			}
		}
	}

	// A changed subscription set always warrants a response, even when
	// the content version is unchanged, so the client learns the state of
	// its new subscriptions. The first request always responds.
	changed := !equalNames(state.subscriptions, req.GetResourceNames())
	state.subscriptions = req.GetResourceNames()

	if ack && !changed {
		// Plain acknowledgment, nothing new requested.
		return nil
	}
	return s.respond(log, st, typeURL, state, changed || state.lastHash == "")
}

// respond pushes the current resource set for one type unless the client
// already holds it. version_info carries the global configuration version;
// it is read before the caches so a concurrent publish can only make the
// content newer than the label, never older.
func (s *adsServer) respond(log logrus.FieldLogger, st grpcStream, typeURL string, state *typeState, force bool) error {
	version := strconv.FormatUint(s.hub.Version(), 10)

	var resources []xds.VersionedResource
	if len(state.subscriptions) == 0 {
		resources = state.resource.Contents()
	} else {
		resources = state.resource.Query(state.subscriptions)
	}

	hash := xds.HashSet(resources)
	if !force && hash == state.lastHash {
		return nil
	}

	any := make([]*anypb.Any, 0, len(resources))
	for _, r := range resources {
		a, err := anypb.New(r.Message)
		if err != nil {
			return err
		}
		any = append(any, a)
	}

	nonce := strconv.FormatUint(s.nonces.Next(), 10)
	resp := &envoy_service_discovery_v3.DiscoveryResponse{
		VersionInfo: version,
		Resources:   any,
		TypeUrl:     typeURL,
		Nonce:       nonce,
	}
	if err := st.Send(resp); err != nil {
		return err
	}

	state.lastHash = hash
	state.pending[nonce] = version
	s.metrics.OnPush(typeURL)
	log.WithField("count", len(resources)).
		WithField("version", version).
		WithField("nonce", nonce).
		Debug("pushed resources")
	return nil
}

func orderedTypes(states map[string]*typeState) []string {
	out := make([]string, 0, len(states))
	for typeURL := range states {
		out = append(out, typeURL)
	}
	sort.Strings(out)
	return out
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s *adsServer) StreamAggregatedResources(srv envoy_service_discovery_v3.AggregatedDiscoveryService_StreamAggregatedResourcesServer) error {
	return s.stream(srv)
}

func (s *adsServer) StreamClusters(srv envoy_service_cluster_v3.ClusterDiscoveryService_StreamClustersServer) error {
	return s.stream(srv)
}

func (s *adsServer) StreamEndpoints(srv envoy_service_endpoint_v3.EndpointDiscoveryService_StreamEndpointsServer) error {
	return s.stream(srv)
}

func (s *adsServer) StreamListeners(srv envoy_service_listener_v3.ListenerDiscoveryService_StreamListenersServer) error {
	return s.stream(srv)
}

func (s *adsServer) StreamRoutes(srv envoy_service_route_v3.RouteDiscoveryService_StreamRoutesServer) error {
	return s.stream(srv)
}

func (s *adsServer) StreamSecrets(srv envoy_service_secret_v3.SecretDiscoveryService_StreamSecretsServer) error {
	return s.stream(srv)
}
