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
	"time"

	envoy_config_accesslog_v3 "github.com/envoyproxy/go-control-plane/envoy/config/accesslog/v3"
	envoy_config_core_v3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	envoy_config_listener_v3 "github.com/envoyproxy/go-control-plane/envoy/config/listener/v3"
	envoy_access_logger_file_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/access_loggers/file/v3"
	envoy_filter_network_connection_limit_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/network/connection_limit/v3"
	envoy_filter_network_hcm_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/network/http_connection_manager/v3"
	envoy_filter_network_tcp_proxy_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/network/tcp_proxy/v3"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/flowplane/flowplane/internal/envoy"
	"github.com/flowplane/flowplane/internal/errs"
	"github.com/flowplane/flowplane/internal/model"
	"github.com/flowplane/flowplane/internal/protobuf"
)

// Listener compiles one bound port. HTTP and HTTPS listeners carry a
// connection manager whose chain is assembled from the filter attachments
// reachable through the listener; TCP listeners proxy directly.
func Listener(l *model.Listener, snap *model.Snapshot) (*envoy_config_listener_v3.Listener, error) {
	out := &envoy_config_listener_v3.Listener{
		Name:    envoy.ListenerName(l),
		Address: SocketAddress(l.BindAddress, int(l.Port)),
	}

	chain := &envoy_config_listener_v3.FilterChain{}
	switch l.Protocol {
	case model.ProtocolTCP:
		proxy := &envoy_filter_network_tcp_proxy_v3.TcpProxy{
			StatPrefix: envoy.StatPrefix("tcp", envoy.ListenerName(l)),
			ClusterSpecifier: &envoy_filter_network_tcp_proxy_v3.TcpProxy_Cluster{
				Cluster: tcpClusterName(l, snap),
			},
		}
		chain.Filters = []*envoy_config_listener_v3.Filter{{
			Name: "envoy.filters.network.tcp_proxy",
			ConfigType: &envoy_config_listener_v3.Filter_TypedConfig{
				TypedConfig: protobuf.MustMarshalAny(proxy),
			},
		}}

	default:
		manager, err := httpConnectionManager(l, snap)
		if err != nil {
			return nil, err
		}
		chain.Filters = []*envoy_config_listener_v3.Filter{{
			Name: "envoy.filters.network.http_connection_manager",
			ConfigType: &envoy_config_listener_v3.Filter_TypedConfig{
				TypedConfig: protobuf.MustMarshalAny(manager),
			},
		}}
	}

	if l.Protocol == model.ProtocolHTTPS && l.Spec.TLS != nil {
		chain.TransportSocket = DownstreamTLSTransportSocket(DownstreamTLSContext(l.Spec.TLS, snap))
	}

	if l.Spec.MaxConnections > 0 {
		limit := &envoy_filter_network_connection_limit_v3.ConnectionLimit{
			StatPrefix:     envoy.StatPrefix("connlimit", envoy.ListenerName(l)),
			MaxConnections: wrapperspb.UInt64(uint64(l.Spec.MaxConnections)),
		}
		chain.Filters = append([]*envoy_config_listener_v3.Filter{{
			Name: "envoy.filters.network.connection_limit",
			ConfigType: &envoy_config_listener_v3.Filter_TypedConfig{
				TypedConfig: protobuf.MustMarshalAny(limit),
			},
		}}, chain.Filters...)
	}

	out.FilterChains = []*envoy_config_listener_v3.FilterChain{chain}
	return out, nil
}

func tcpClusterName(l *model.Listener, snap *model.Snapshot) string {
	if c := snap.ClusterByName(l.Spec.TCPProxy.ClusterName); c != nil {
		return envoy.ClusterName(c)
	}
	return l.Spec.TCPProxy.ClusterName
}

func httpConnectionManager(l *model.Listener, snap *model.Snapshot) (*envoy_filter_network_hcm_v3.HttpConnectionManager, error) {
	rc := snap.RouteConfigByName(l.Spec.RouteConfigName)
	if rc == nil {
		return nil, errs.Internal(nil, "listener %s names unknown route configuration %q", l.Name, l.Spec.RouteConfigName)
	}

	filters, err := httpFilterChain(chainAttachments(l, rc, snap), snap)
	if err != nil {
		return nil, err
	}

	manager := &envoy_filter_network_hcm_v3.HttpConnectionManager{
		StatPrefix: envoy.StatPrefix("http", envoy.ListenerName(l)),
		RouteSpecifier: &envoy_filter_network_hcm_v3.HttpConnectionManager_Rds{
			Rds: &envoy_filter_network_hcm_v3.Rds{
				RouteConfigName: envoy.RouteConfigName(rc),
				ConfigSource:    ConfigSource(),
			},
		},
		HttpFilters:      filters,
		UseRemoteAddress: wrapperspb.Bool(useRemoteAddress(&l.Spec)),
		MergeSlashes:     l.Spec.MergeSlashes,
		NormalizePath:    wrapperspb.Bool(true),
	}

	if l.Spec.IdleTimeoutSeconds > 0 {
		manager.CommonHttpProtocolOptions = &envoy_config_core_v3.HttpProtocolOptions{
			IdleTimeout: durationpb.New(time.Duration(l.Spec.IdleTimeoutSeconds) * time.Second),
		}
	}
	if l.Spec.RequestTimeoutSeconds > 0 {
		manager.RequestTimeout = durationpb.New(time.Duration(l.Spec.RequestTimeoutSeconds) * time.Second)
	}
	if l.Spec.AccessLog != nil {
		manager.AccessLog = []*envoy_config_accesslog_v3.AccessLog{fileAccessLog(l.Spec.AccessLog)}
	}

	return manager, nil
}

func useRemoteAddress(spec *model.ListenerSpec) bool {
	if spec.UseRemoteAddress != nil {
		return *spec.UseRemoteAddress
	}
	return true
}

// chainAttachments gathers every attachment whose filter participates in
// this listener's connection manager: the listener's own, the routing
// table's, and the narrowing attachments below it.
func chainAttachments(l *model.Listener, rc *model.RouteConfig, snap *model.Snapshot) []*model.FilterAttachment {
	out := snap.AttachmentsFor(model.ScopeListener, string(l.ID))
	out = append(out, snap.AttachmentsFor(model.ScopeRouteConfig, string(rc.ID))...)
	for i := range rc.VirtualHosts {
		vh := &rc.VirtualHosts[i]
		out = append(out, snap.AttachmentsFor(model.ScopeVirtualHost, string(vh.ID))...)
		for j := range vh.Routes {
			out = append(out, snap.AttachmentsFor(model.ScopeRoute, string(vh.Routes[j].ID))...)
		}
	}
	return out
}

func fileAccessLog(al *model.AccessLog) *envoy_config_accesslog_v3.AccessLog {
	log := &envoy_access_logger_file_v3.FileAccessLog{
		Path: al.Path,
	}
	if al.JSON {
		log.AccessLogFormat = &envoy_access_logger_file_v3.FileAccessLog_LogFormat{
			LogFormat: &envoy_config_core_v3.SubstitutionFormatString{
				Format: &envoy_config_core_v3.SubstitutionFormatString_JsonFormat{
					JsonFormat: jsonAccessLogFields(),
				},
			},
		}
	}
	return &envoy_config_accesslog_v3.AccessLog{
		Name: "envoy.access_loggers.file",
		ConfigType: &envoy_config_accesslog_v3.AccessLog_TypedConfig{
			TypedConfig: protobuf.MustMarshalAny(log),
		},
	}
}

func jsonAccessLogFields() *structpb.Struct {
	fields := map[string]string{
		"timestamp":       "%START_TIME%",
		"method":          "%REQ(:METHOD)%",
		"path":            "%REQ(X-ENVOY-ORIGINAL-PATH?:PATH)%",
		"authority":       "%REQ(:AUTHORITY)%",
		"protocol":        "%PROTOCOL%",
		"responseCode":    "%RESPONSE_CODE%",
		"responseFlags":   "%RESPONSE_FLAGS%",
		"bytesReceived":   "%BYTES_RECEIVED%",
		"bytesSent":       "%BYTES_SENT%",
		"duration":        "%DURATION%",
		"upstreamHost":    "%UPSTREAM_HOST%",
		"upstreamCluster": "%UPSTREAM_CLUSTER%",
		"userAgent":       "%REQ(USER-AGENT)%",
		"requestId":       "%REQ(X-REQUEST-ID)%",
		"clientAddress":   "%DOWNSTREAM_REMOTE_ADDRESS_WITHOUT_PORT%",
	}
	out := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	for k, v := range fields {
		out.Fields[k] = structpb.NewStringValue(v)
	}
	return out
}
