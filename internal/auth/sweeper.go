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

package auth

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/flowplane/flowplane/internal/model"
	"github.com/flowplane/flowplane/internal/store"
)

// DefaultSweepInterval is how often the sweeper looks for expired tokens.
const DefaultSweepInterval = time.Minute

// Sweeper periodically transitions active tokens past their expiry to
// expired, writing one audit row per transition. Failures are logged and
// retried on the next tick.
type Sweeper struct {
	store    *store.Store
	interval time.Duration

	logrus.FieldLogger
}

// NewSweeper returns a sweeper with the given interval, defaulting to
// DefaultSweepInterval when zero.
func NewSweeper(log logrus.FieldLogger, st *store.Store, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:       st,
		interval:    interval,
		FieldLogger: log.WithField("context", "tokenSweeper"),
	}
}

// Start runs the sweep loop until stop closes. It satisfies the workgroup
// task signature.
func (s *Sweeper) Start(stop <-chan struct{}) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.SweepOnce(context.Background()); err != nil {
				s.WithError(err).Error("token sweep failed")
			}
		case <-stop:
			s.Info("stopped token sweeper")
			return nil
		}
	}
}

// SweepOnce performs a single expiry pass.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	return s.store.WithTx(ctx, func(tx *store.Tx) error {
		expired, err := tx.ExpireTokens(ctx, time.Now())
		if err != nil {
			return err
		}
		for _, tok := range expired {
			if err := tx.AppendAudit(ctx, &model.AuditEvent{
				Actor:        "system",
				Action:       model.AuditTokenExpired,
				ResourceType: "token",
				ResourceID:   string(tok.ID),
				New:          model.MustEncode(tok),
			}); err != nil {
				return err
			}
			s.WithField("token", tok.Name).Info("expired access token")
		}
		return nil
	})
}
