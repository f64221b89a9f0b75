// Copyright 2026 The linux-practice Authors
//
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

package sshexec

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// WaitUntilReady polls the target with short-timeout connectivity probes
// until one succeeds or totalTimeout elapses. This is the canonical
// guest-readiness gate: it is the only operation in this package that
// retries internally.
//
// Each failed attempt is logged with its classified cause so operators can
// tell cloud-init delays (auth) apart from a guest that is still booting
// (network). A missing or invalid key aborts immediately; polling cannot
// fix that.
func (e *Executor) WaitUntilReady(
	ctx context.Context,
	target Target,
	totalTimeout time.Duration,
	pollInterval time.Duration,
) bool {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, totalTimeout)
	defer cancel()

	attempt := 0
	operation := func() error {
		attempt++
		err := e.probe(ctx, target, pollInterval)
		if err == nil {
			slog.Info("guest is ready", "host", target.Host, "attempts", attempt)
			return nil
		}
		if errors.Is(err, ErrKey) {
			return backoff.Permanent(err)
		}
		// Auth rejections are retried here too: during first boot the
		// guest's sshd often answers before cloud-init has installed the
		// authorized key.
		slog.Debug("guest not ready yet",
			"host", target.Host,
			"attempt", attempt,
			"cause", Cause(err),
			"error", err.Error(),
		)
		return err
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(pollInterval), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		slog.Warn("guest did not become ready",
			"host", target.Host,
			"attempts", attempt,
			"cause", Cause(err),
		)
		return false
	}
	return true
}
