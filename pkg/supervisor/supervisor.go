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

// Package supervisor owns the worker process's lifecycle: spawn, health
// polling, restart, and the multi-phase graceful-then-forced shutdown. There
// is exactly one supervisor per worker port; any stale listener on that port
// is reclaimed before spawning.
package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/trainkit/shell/pkg/config"
	"github.com/trainkit/shell/pkg/constants"
	"github.com/trainkit/shell/pkg/httpclient"
	"github.com/trainkit/shell/pkg/logger"
	"github.com/trainkit/shell/pkg/metrics"
)

// State is the lifecycle state of the worker process handle.
type State string

const (
	StateNotStarted State = "not_started"
	StateStarting   State = "starting"
	StateHealthy    State = "healthy"
	StateStopping   State = "stopping"
	StateTerminated State = "terminated"
)

// Supervisor manages a single worker process bound to a fixed port.
type Supervisor struct {
	cfg    config.WorkerConfig
	client httpclient.HTTPClient
	logger *zap.SugaredLogger

	// workerLogger passes the worker's own stdout/stderr through.
	workerLogger *zap.SugaredLogger

	mu    sync.Mutex
	cmd   *exec.Cmd
	state State
	// exitCh is closed by the exit watcher when the current process exits.
	exitCh chan struct{}

	// shutdownGroup serializes the shutdown sequence: the first caller runs
	// Phases 1-3, every concurrent caller awaits the same in-flight result,
	// and the cache clears once it resolves.
	shutdownGroup singleflight.Group

	// shutdownRuns counts executed shutdown sequences (not awaiting callers).
	shutdownRuns int

	// onUnexpectedExit, if set, is invoked when the worker exits without a
	// shutdown in progress. The supervisor itself never restarts on crash;
	// the policy decision belongs to the host.
	onUnexpectedExit func(err error)
}

// New creates a Supervisor for the given worker configuration.
func New(cfg config.WorkerConfig, client httpclient.HTTPClient) *Supervisor {
	if client == nil {
		client = httpclient.NewDefaultHTTPClient()
	}

	return &Supervisor{
		cfg:          cfg,
		client:       client,
		logger:       logger.For(logger.ComponentSupervisor),
		workerLogger: logger.For(logger.ComponentWorker),
		state:        StateNotStarted,
	}
}

// OnUnexpectedExit registers a callback for mid-session worker exits.
func (s *Supervisor) OnUnexpectedExit(fn func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUnexpectedExit = fn
}

// State returns the current handle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// baseURL is the worker's API root.
func (s *Supervisor) baseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", s.cfg.Port)
}

// Start reclaims the target port, resolves the interpreter, spawns the
// worker with its output streams passed through, and registers the exit
// watcher. With the externally-managed override set it does nothing: a
// worker is assumed to be running already and is never owned by us.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.cfg.ExternallyManaged {
		s.logger.Info("Worker is externally managed, skipping spawn")

		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil && s.state != StateTerminated {
		return fmt.Errorf("worker already running (state %s)", s.state)
	}

	s.state = StateStarting

	// Any process still bound to our port is a stale leftover from a
	// previous session. Reclaim the port before spawning.
	if err := reclaimPort(ctx, s.cfg.Port, s.logger); err != nil {
		s.logger.Warnf("Failed to reclaim port %d: %v", s.cfg.Port, err)
	}

	interpreter, err := resolveInterpreter(s.cfg)
	if err != nil {
		s.state = StateNotStarted

		return err
	}

	cmd := exec.Command(interpreter, s.cfg.Script)
	cmd.Dir = s.cfg.WorkingDir
	cmd.Env = workerEnv(s.cfg)
	setSysProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.state = StateNotStarted

		return fmt.Errorf("%w: failed to create stdout pipe: %v", ErrSpawnFailure, err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.state = StateNotStarted

		return fmt.Errorf("%w: failed to create stderr pipe: %v", ErrSpawnFailure, err)
	}

	if err := cmd.Start(); err != nil {
		s.state = StateNotStarted

		return fmt.Errorf("%w: %v", ErrSpawnFailure, err)
	}

	s.logger.Infof("Worker spawned (pid %d, interpreter %s)", cmd.Process.Pid, interpreter)

	s.cmd = cmd
	s.exitCh = make(chan struct{})

	go s.streamOutput(stdout, "stdout")
	go s.streamOutput(stderr, "stderr")
	go s.watchExit(cmd, s.exitCh)

	return nil
}

// streamOutput passes worker output through to the shell's log, line by line.
func (s *Supervisor) streamOutput(pipe io.ReadCloser, stream string) {
	defer pipe.Close()

	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.workerLogger.Infof("%s", scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		s.logger.Debugf("Worker %s stream ended: %v", stream, err)
	}
}

// watchExit clears the handle to Terminated when the process exits. An exit
// without a shutdown in progress is unexpected and only reported; no restart
// is attempted.
func (s *Supervisor) watchExit(cmd *exec.Cmd, exitCh chan struct{}) {
	err := cmd.Wait()
	close(exitCh)

	s.mu.Lock()
	unexpected := s.state != StateStopping && s.state != StateTerminated
	s.state = StateTerminated
	s.cmd = nil
	callback := s.onUnexpectedExit
	s.mu.Unlock()

	if unexpected {
		s.logger.Warnf("Worker exited unexpectedly: %v", err)
		if callback != nil {
			callback(err)
		}

		return
	}

	s.logger.Infof("Worker exited (%v)", err)
}

// HealthCheck performs one bounded probe against the worker's health path.
// Any HTTP response at all counts as healthy; transport failures report
// false and never raise.
func (s *Supervisor) HealthCheck(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, constants.HealthProbeTimeout)
	defer cancel()

	resp, _, err := s.client.GetWithBody(probeCtx, s.baseURL()+constants.WorkerHealthPath)
	healthy := err == nil && resp != nil && resp.StatusCode < http.StatusInternalServerError
	metrics.RecordHealthProbe(healthy)

	return healthy
}

// WaitUntilHealthy probes at the given interval until the first healthy
// result or until maxRetries probes have been issued. Probe timeouts are
// independent of the interval; the budget counts attempts, not elapsed time.
func (s *Supervisor) WaitUntilHealthy(ctx context.Context, maxRetries int, interval time.Duration) error {
	for attempt := 1; attempt <= maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		if s.HealthCheck(ctx) {
			s.mu.Lock()
			if s.state == StateStarting || s.state == StateNotStarted {
				s.state = StateHealthy
			}
			s.mu.Unlock()

			s.logger.Infof("Worker healthy after %d probe(s)", attempt)

			return nil
		}
	}

	return fmt.Errorf("%w: %d probes at %s intervals", ErrHealthTimeout, maxRetries, interval)
}

// Restart shuts the worker down, starts it again and waits for health.
// Refused when the worker is externally managed; restarting would take
// ownership of a process that is not ours.
func (s *Supervisor) Restart(ctx context.Context) error {
	if s.cfg.ExternallyManaged {
		return ErrExternallyManaged
	}

	if err := s.Shutdown(ctx, constants.DefaultShutdownTimeout); err != nil {
		// A forced kill still leaves the port free; keep going.
		s.logger.Warnf("Shutdown during restart: %v", err)
	}

	if err := s.Start(ctx); err != nil {
		return err
	}

	return s.WaitUntilHealthy(ctx, constants.DefaultHealthMaxRetries, constants.DefaultHealthRetryInterval)
}

// Shutdown runs the graceful-then-forced termination sequence. It is safe to
// call from any number of lifecycle triggers concurrently: the first call
// runs the sequence, all others await the same in-flight result. Once the
// sequence resolves the cache clears, so a later start/shutdown cycle is
// independent.
func (s *Supervisor) Shutdown(ctx context.Context, timeout time.Duration) error {
	ch := s.shutdownGroup.DoChan("shutdown", func() (interface{}, error) {
		s.mu.Lock()
		s.shutdownRuns++
		s.mu.Unlock()

		return nil, s.shutdownSequence(timeout)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shutdownSequence is the single-flight body: Phase 1 graceful signal,
// Phase 2 liveness polling, Phase 3 forced tree kill.
func (s *Supervisor) shutdownSequence(timeout time.Duration) error {
	s.mu.Lock()
	cmd := s.cmd
	exitCh := s.exitCh
	if cmd == nil || s.state == StateTerminated {
		s.state = StateTerminated
		s.mu.Unlock()

		return nil
	}
	s.state = StateStopping
	s.mu.Unlock()

	pid := cmd.Process.Pid

	// Phase 1: best-effort graceful signal over the control transport. If
	// the worker is already unreachable there is nothing to wait for.
	signalCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownSignalTimeout)
	headers := map[string]string{}
	if s.cfg.ShutdownToken != "" {
		headers[constants.ShutdownTokenHeader] = s.cfg.ShutdownToken
	}
	_, _, signalErr := s.client.PostWithBody(signalCtx, s.baseURL()+constants.WorkerShutdownPath, nil, headers)
	cancel()

	if signalErr != nil {
		s.logger.Warnf("Worker unreachable for graceful shutdown, forcing termination: %v", signalErr)

		return s.forceTerminate(pid, exitCh)
	}

	// Phase 2: poll liveness until exit or the ceiling elapses.
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	poll := time.NewTicker(constants.ShutdownLivenessPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-exitCh:
			s.logger.Info("Worker exited gracefully")

			return nil
		case <-poll.C:
			// Liveness is signalled through exitCh by the exit watcher.
		case <-deadline.C:
			metrics.RecordShutdownEscalation()
			s.logger.Warnf("Worker did not exit within %s, forcing termination", timeout)

			if err := s.forceTerminate(pid, exitCh); err != nil {
				return err
			}

			return ErrShutdownTimeout
		}
	}
}

// forceTerminate kills the whole process tree and marks the handle
// terminated without waiting further.
func (s *Supervisor) forceTerminate(pid int, exitCh chan struct{}) error {
	if err := killProcessTree(pid); err != nil {
		s.logger.Errorf("Failed to kill worker process tree (pid %d): %v", pid, err)
	}

	if exitCh != nil {
		// The exit watcher observes the kill and closes exitCh; bound the
		// wait so a wedged wait() cannot stall shutdown forever.
		select {
		case <-exitCh:
		case <-time.After(constants.ShutdownSignalTimeout):
		}
	}

	s.mu.Lock()
	s.state = StateTerminated
	s.cmd = nil
	s.mu.Unlock()

	return nil
}
