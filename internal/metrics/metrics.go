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

// Package metrics provides Prometheus metrics for the control plane.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the control plane's instrumentation.
type Metrics struct {
	configVersionGauge prometheus.Gauge
	openStreamsGauge   prometheus.Gauge
	pushCounter        *prometheus.CounterVec
	ackCounter         *prometheus.CounterVec
	nackCounter        *prometheus.CounterVec
	authFailureCounter prometheus.Counter
	auditWriteCounter  prometheus.Counter

	registry *prometheus.Registry
}

const (
	ConfigVersionGauge = "flowplane_config_version"
	OpenStreamsGauge   = "flowplane_xds_open_streams"
	PushCounter        = "flowplane_xds_pushes_total"
	AckCounter         = "flowplane_xds_acks_total"
	NackCounter        = "flowplane_xds_nacks_total"
	AuthFailureCounter = "flowplane_auth_failures_total"
	AuditWriteCounter  = "flowplane_audit_writes_total"
)

// NewMetrics creates a new set of metrics and registers them with the
// supplied registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := Metrics{
		registry: registry,
		configVersionGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: ConfigVersionGauge,
			Help: "Current global configuration version.",
		}),
		openStreamsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: OpenStreamsGauge,
			Help: "Number of open xDS streams.",
		}),
		pushCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: PushCounter,
			Help: "Number of xDS responses pushed, by type URL.",
		}, []string{"type_url"}),
		ackCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: AckCounter,
			Help: "Number of xDS responses acknowledged, by type URL.",
		}, []string{"type_url"}),
		nackCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: NackCounter,
			Help: "Number of xDS responses rejected by clients, by type URL.",
		}, []string{"type_url"}),
		authFailureCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: AuthFailureCounter,
			Help: "Number of failed access token authentications.",
		}),
		auditWriteCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: AuditWriteCounter,
			Help: "Number of audit events written.",
		}),
	}
	m.register()
	return &m
}

func (m *Metrics) register() {
	m.registry.MustRegister(
		m.configVersionGauge,
		m.openStreamsGauge,
		m.pushCounter,
		m.ackCounter,
		m.nackCounter,
		m.authFailureCounter,
		m.auditWriteCounter,
	)
}

// SetConfigVersion records the current global configuration version.
func (m *Metrics) SetConfigVersion(version uint64) {
	m.configVersionGauge.Set(float64(version))
}

// StreamOpened bumps the open stream gauge.
func (m *Metrics) StreamOpened() { m.openStreamsGauge.Inc() }

// StreamClosed drops the open stream gauge.
func (m *Metrics) StreamClosed() { m.openStreamsGauge.Dec() }

// OnPush counts one pushed response.
func (m *Metrics) OnPush(typeURL string) { m.pushCounter.WithLabelValues(typeURL).Inc() }

// OnAck counts one acknowledged response.
func (m *Metrics) OnAck(typeURL string) { m.ackCounter.WithLabelValues(typeURL).Inc() }

// OnNack counts one rejected response.
func (m *Metrics) OnNack(typeURL string) { m.nackCounter.WithLabelValues(typeURL).Inc() }

// OnAuthFailure counts one failed authentication.
func (m *Metrics) OnAuthFailure() { m.authFailureCounter.Inc() }

// OnAuditWrite counts one audit event.
func (m *Metrics) OnAuditWrite() { m.auditWriteCounter.Inc() }

// Handler serves the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
