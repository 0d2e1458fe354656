// Copyright 2025 Trainkit Authors
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

// Package sentry provides opt-in crash and issue reporting. When no DSN is
// configured every report degrades to plain logging, so call sites never
// need to care whether reporting is enabled.
package sentry

import (
	"os"
	"sync/atomic"
	"time"

	sentrygo "github.com/getsentry/sentry-go"
)

var enabled atomic.Bool

// InitSentry initializes the Sentry SDK if SENTRY_DSN is set in the
// environment. Reporting stays disabled otherwise.
func InitSentry(release string) {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return
	}

	err := sentrygo.Init(sentrygo.ClientOptions{
		Dsn:     dsn,
		Release: release,
	})
	if err != nil {
		// Reporting is best-effort; the shell runs fine without it.
		return
	}

	enabled.Store(true)
}

// Flush drains buffered events before process exit.
func Flush() {
	if !enabled.Load() {
		return
	}

	sentrygo.Flush(2 * time.Second)
}

func capture(err error, level sentrygo.Level) {
	if !enabled.Load() {
		return
	}

	sentrygo.WithScope(func(scope *sentrygo.Scope) {
		scope.SetLevel(level)
		sentrygo.CaptureException(err)
	})
}
