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

// Package hub owns the global configuration version and the rendezvous
// between writers and delivery streams. Every mutation that should reach
// Envoy funnels through Hub.Publish.
package hub

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Observer is recomputed state that must track the version, typically the
// compiled xDS caches. Refresh runs under the publish lock, so observers
// see versions strictly in order.
type Observer interface {
	Refresh(ctx context.Context, version uint64) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, version uint64) error

func (f ObserverFunc) Refresh(ctx context.Context, version uint64) error { return f(ctx, version) }

// Hub is a condition variable over the global configuration version.
//
// Unlike sync.Cond, waiters register a channel and select on it, so a
// delivery stream can wait for a version bump and its own shutdown at the
// same time. Registration is one-shot: a fired waiter re-registers with the
// version it last saw, and a waiter that is already behind fires
// immediately. That is the whole resync contract for lagging streams.
type Hub struct {
	mu      sync.Mutex
	waiters []chan uint64
	version atomic.Uint64

	// publishMu serializes Publish so observer state is monotone in the
	// version it was refreshed at.
	publishMu sync.Mutex
	observers []Observer

	logrus.FieldLogger
}

// New returns an empty hub at version zero.
func New(log logrus.FieldLogger) *Hub {
	return &Hub{FieldLogger: log.WithField("context", "hub")}
}

// Version returns the current global configuration version.
func (h *Hub) Version() uint64 { return h.version.Load() }

// Attach registers an observer refreshed on every publish, before waiters
// are notified. Attach before the first Publish; observers are not
// retroactively refreshed.
func (h *Hub) Attach(o Observer) {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()
	h.observers = append(h.observers, o)
}

// Register enrolls ch for the next version change. last is the version the
// caller most recently observed; when the hub has already moved past it the
// channel fires immediately instead of waiting.
//
// Sends to ch never block, therefore ch must have a capacity of at least 1.
func (h *Hub) Register(ch chan uint64, last uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if v := h.version.Load(); v > last {
		ch <- v
		return
	}
	h.waiters = append(h.waiters, ch)
}

// Publish bumps the global version, refreshes every observer at the new
// version, and wakes all registered waiters. An observer error rolls
// nothing back: the version bump has happened and the next publish will
// refresh again, but the error is returned so the caller can surface it.
func (h *Hub) Publish(ctx context.Context) (uint64, error) {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	version := h.version.Load() + 1
	var firstErr error
	for _, o := range h.observers {
		if err := o.Refresh(ctx, version); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	h.mu.Lock()
	h.version.Store(version)
	for _, ch := range h.waiters {
		ch <- version
	}
	h.waiters = h.waiters[:0]
	h.mu.Unlock()

	h.WithField("version", version).Debug("published configuration version")
	return version, firstErr
}
