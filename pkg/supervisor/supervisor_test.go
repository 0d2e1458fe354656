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

package supervisor

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/trainkit/shell/pkg/config"
	"github.com/trainkit/shell/pkg/httpclient"
)

// sleeperConfig spawns /bin/sleep in place of a real worker runtime: a
// process that stays alive, ignores graceful signals, and dies only when
// force-killed.
func sleeperConfig() config.WorkerConfig {
	return config.WorkerConfig{
		Port:                   18190,
		Script:                 "60",
		InterpreterSearchPaths: []string{"/bin/sleep"},
	}
}

func okResponse() (*http.Response, []byte, error) {
	return &http.Response{StatusCode: http.StatusOK}, []byte(`{"status":"ok"}`), nil
}

var _ = Describe("Supervisor", func() {
	var (
		mock *httpclient.MockHTTPClient
		ctx  context.Context
	)

	BeforeEach(func() {
		mock = httpclient.NewMockHTTPClient()
		ctx = context.Background()
	})

	Describe("HealthCheck", func() {
		It("treats any HTTP response as healthy", func() {
			mock.GetWithBodyFunc = func(context.Context, string) (*http.Response, []byte, error) {
				return &http.Response{StatusCode: http.StatusNotFound}, nil, nil
			}

			s := New(sleeperConfig(), mock)
			Expect(s.HealthCheck(ctx)).To(BeTrue())
		})

		It("reports unhealthy on transport failure without raising", func() {
			s := New(sleeperConfig(), mock)
			Expect(s.HealthCheck(ctx)).To(BeFalse())
		})
	})

	Describe("WaitUntilHealthy", func() {
		It("succeeds on the first healthy probe and stops probing", func() {
			var calls int
			mock.GetWithBodyFunc = func(context.Context, string) (*http.Response, []byte, error) {
				calls++
				if calls < 7 {
					return nil, nil, context.DeadlineExceeded
				}

				return okResponse()
			}

			s := New(sleeperConfig(), mock)
			Expect(s.WaitUntilHealthy(ctx, 20, time.Millisecond)).To(Succeed())
			Expect(mock.GetCalls()).To(Equal(int64(7)))
			Expect(s.State()).To(Equal(StateHealthy))
		})

		It("fails after exactly the retry budget", func() {
			s := New(sleeperConfig(), mock)

			err := s.WaitUntilHealthy(ctx, 5, time.Millisecond)
			Expect(err).To(MatchError(ErrHealthTimeout))
			Expect(mock.GetCalls()).To(Equal(int64(5)))
		})

		It("stops when the context is cancelled", func() {
			cancelCtx, cancel := context.WithCancel(ctx)
			cancel()

			s := New(sleeperConfig(), mock)
			err := s.WaitUntilHealthy(cancelCtx, 100, time.Second)
			Expect(err).To(MatchError(context.Canceled))
		})
	})

	Describe("Start", func() {
		It("skips spawning when the worker is externally managed", func() {
			cfg := sleeperConfig()
			cfg.ExternallyManaged = true

			s := New(cfg, mock)
			Expect(s.Start(ctx)).To(Succeed())
			Expect(s.State()).To(Equal(StateNotStarted))
		})

		It("spawns the worker and refuses a second start", func() {
			s := New(sleeperConfig(), mock)
			Expect(s.Start(ctx)).To(Succeed())
			defer s.Shutdown(ctx, 100*time.Millisecond) //nolint:errcheck

			Expect(s.State()).To(Equal(StateStarting))
			Expect(s.Start(ctx)).NotTo(Succeed())
		})
	})

	Describe("Shutdown", func() {
		It("force-terminates immediately when the worker is unreachable", func() {
			s := New(sleeperConfig(), mock)
			Expect(s.Start(ctx)).To(Succeed())

			// The mock rejects the graceful signal, so the sequence skips the
			// liveness wait entirely.
			start := time.Now()
			Expect(s.Shutdown(ctx, 10*time.Second)).To(Succeed())
			Expect(time.Since(start)).To(BeNumerically("<", 5*time.Second))
			Expect(s.State()).To(Equal(StateTerminated))
		})

		It("escalates to a forced kill when the worker ignores the signal", func() {
			mock.PostWithBodyFunc = func(context.Context, string, []byte, map[string]string) (*http.Response, []byte, error) {
				return okResponse()
			}

			s := New(sleeperConfig(), mock)
			Expect(s.Start(ctx)).To(Succeed())

			err := s.Shutdown(ctx, 300*time.Millisecond)
			Expect(err).To(MatchError(ErrShutdownTimeout))
			Expect(s.State()).To(Equal(StateTerminated))
		})

		It("runs the sequence once for concurrent callers", func() {
			mock.PostWithBodyFunc = func(context.Context, string, []byte, map[string]string) (*http.Response, []byte, error) {
				return okResponse()
			}

			s := New(sleeperConfig(), mock)
			Expect(s.Start(ctx)).To(Succeed())

			results := make(chan error, 3)
			for i := 0; i < 3; i++ {
				go func() {
					results <- s.Shutdown(ctx, 300*time.Millisecond)
				}()
			}

			for i := 0; i < 3; i++ {
				Expect(<-results).To(MatchError(ErrShutdownTimeout))
			}

			s.mu.Lock()
			runs := s.shutdownRuns
			s.mu.Unlock()
			Expect(runs).To(Equal(1))
		})

		It("is a no-op on an already terminated worker", func() {
			s := New(sleeperConfig(), mock)
			Expect(s.Shutdown(ctx, time.Second)).To(Succeed())
			Expect(s.State()).To(Equal(StateTerminated))
		})

		It("sends the configured token with the graceful signal", func() {
			var gotHeaders map[string]string
			mock.PostWithBodyFunc = func(_ context.Context, _ string, _ []byte, headers map[string]string) (*http.Response, []byte, error) {
				gotHeaders = headers

				return nil, nil, context.DeadlineExceeded
			}

			cfg := sleeperConfig()
			cfg.ShutdownToken = "secret"

			s := New(cfg, mock)
			Expect(s.Start(ctx)).To(Succeed())
			Expect(s.Shutdown(ctx, time.Second)).To(Succeed())
			Expect(gotHeaders).To(HaveKeyWithValue("X-Shutdown-Token", "secret"))
		})
	})

	Describe("Restart", func() {
		It("is refused for an externally managed worker", func() {
			cfg := sleeperConfig()
			cfg.ExternallyManaged = true

			s := New(cfg, mock)
			Expect(s.Restart(ctx)).To(MatchError(ErrExternallyManaged))
		})
	})

	Describe("unexpected exit", func() {
		It("clears the handle and fires the callback without restarting", func() {
			cfg := sleeperConfig()
			cfg.Script = "0.05"

			exited := make(chan error, 1)
			s := New(cfg, mock)
			s.OnUnexpectedExit(func(err error) {
				exited <- err
			})

			Expect(s.Start(ctx)).To(Succeed())

			Eventually(exited, 2*time.Second).Should(Receive())
			Expect(s.State()).To(Equal(StateTerminated))

			// The handle is reusable after the exit.
			Expect(s.Start(ctx)).To(Succeed())
			Expect(s.Shutdown(ctx, 100*time.Millisecond)).To(Succeed())
		})
	})
})
