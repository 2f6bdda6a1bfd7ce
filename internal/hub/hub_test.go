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

package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowplane/flowplane/internal/fixture"
)

func TestPublishWakesWaiters(t *testing.T) {
	h := New(fixture.NewTestLogger(t))
	assert.Equal(t, uint64(0), h.Version())

	ch := make(chan uint64, 1)
	h.Register(ch, 0)
	select {
	case <-ch:
		t.Fatal("waiter fired before any publish")
	default:
	}

	v, err := h.Publish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	assert.Equal(t, uint64(1), h.Version())

	select {
	case got := <-ch:
		assert.Equal(t, uint64(1), got)
	case <-time.After(time.Second):
		t.Fatal("waiter did not fire")
	}
}

func TestRegisterBehindFiresImmediately(t *testing.T) {
	h := New(fixture.NewTestLogger(t))

	_, err := h.Publish(context.Background())
	require.NoError(t, err)
	_, err = h.Publish(context.Background())
	require.NoError(t, err)

	// A waiter that last saw version 0 is already behind.
	ch := make(chan uint64, 1)
	h.Register(ch, 0)
	select {
	case got := <-ch:
		assert.Equal(t, uint64(2), got)
	default:
		t.Fatal("lagging waiter must fire immediately")
	}

	// A waiter that is current waits for the next publish.
	h.Register(ch, 2)
	select {
	case <-ch:
		t.Fatal("current waiter fired without a publish")
	default:
	}
}

func TestRegistrationIsOneShot(t *testing.T) {
	h := New(fixture.NewTestLogger(t))

	ch := make(chan uint64, 1)
	h.Register(ch, 0)

	_, err := h.Publish(context.Background())
	require.NoError(t, err)
	<-ch

	// The waiter is gone until it re-registers.
	_, err = h.Publish(context.Background())
	require.NoError(t, err)
	select {
	case <-ch:
		t.Fatal("unregistered waiter fired")
	default:
	}
}

func TestObserversRefreshBeforeNotify(t *testing.T) {
	h := New(fixture.NewTestLogger(t))

	var seen []uint64
	h.Attach(ObserverFunc(func(_ context.Context, version uint64) error {
		// The published version is not visible until observers are done.
		assert.Equal(t, version-1, h.Version())
		seen = append(seen, version)
		return nil
	}))

	for range 3 {
		_, err := h.Publish(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, []uint64{1, 2, 3}, seen)
}

func TestObserverErrorStillBumpsVersion(t *testing.T) {
	h := New(fixture.NewTestLogger(t))
	boom := errors.New("cache rebuild failed")
	h.Attach(ObserverFunc(func(context.Context, uint64) error { return boom }))

	ch := make(chan uint64, 1)
	h.Register(ch, 0)

	v, err := h.Publish(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(1), v)
	assert.Equal(t, uint64(1), h.Version())

	// Waiters still learn about the bump so they can resync later.
	select {
	case got := <-ch:
		assert.Equal(t, uint64(1), got)
	default:
		t.Fatal("waiter not notified after observer error")
	}
}
