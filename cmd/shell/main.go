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

// The shell supervises a local training worker: it spawns the worker,
// waits for it to become healthy, mirrors its configuration, and streams
// its training, terminal and system topics until the host is told to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/trainkit/shell/pkg/channel"
	"github.com/trainkit/shell/pkg/config"
	"github.com/trainkit/shell/pkg/configsync"
	"github.com/trainkit/shell/pkg/constants"
	"github.com/trainkit/shell/pkg/logger"
	"github.com/trainkit/shell/pkg/metrics"
	"github.com/trainkit/shell/pkg/models"
	"github.com/trainkit/shell/pkg/sentry"
	"github.com/trainkit/shell/pkg/supervisor"
	"github.com/trainkit/shell/pkg/sysmonitor"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to the shell config file")
	flag.Parse()

	logger.Initialize()
	defer func() {
		_ = logger.Sync()
	}()

	log := logger.For(logger.ComponentShell)
	log.Infof("trainkit shell %s starting", version)

	sentry.InitSentry(version)
	defer sentry.Flush()

	cfg, err := config.Load(*configPath)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "failed to load config: %v", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "shell failed: %v", err)
		os.Exit(1)
	}
}

func run(cfg config.ShellConfig, log *zap.SugaredLogger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsPort > 0 {
		metricsSrv := metrics.SetupMetricsEndpoint(fmt.Sprintf(":%d", cfg.MetricsPort))
		defer func() {
			_ = metricsSrv.Shutdown(context.Background())
		}()
	}

	sup := supervisor.New(cfg.Worker, nil)
	sup.OnUnexpectedExit(func(err error) {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "worker exited unexpectedly: %v", err)
	})

	// A panic must not strand the worker; kill the tree before re-raising.
	defer func() {
		if r := recover(); r != nil {
			_ = sup.Shutdown(context.Background(), constants.DefaultShutdownTimeout)
			panic(r)
		}
	}()

	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	if err := sup.WaitUntilHealthy(ctx, constants.DefaultHealthMaxRetries, constants.DefaultHealthRetryInterval); err != nil {
		// An unhealthy worker is not left half-running.
		_ = sup.Shutdown(context.Background(), constants.DefaultShutdownTimeout)

		return fmt.Errorf("worker never became healthy: %w", err)
	}

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Worker.Port)
	wsBase := fmt.Sprintf("ws://127.0.0.1:%d", cfg.Worker.Port)

	engine := configsync.NewEngine(configsync.NewWorkerClient(baseURL, nil))
	defer engine.Close()

	if err := engine.Load(ctx); err != nil {
		log.Warnf("initial config load failed: %v", err)
	}

	topics := wireTopics(wsBase)
	defer topics.teardown()

	for _, m := range topics.managers {
		m.Enable()
	}

	// Block until the host is asked to stop. The shutdown sequence runs on a
	// fresh context so a cancelled ctx cannot cut termination short.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("received %s, shutting down", sig)

	cancel()
	topics.teardown()

	if err := engine.FlushIfDirty(context.Background()); err != nil {
		log.Warnf("final config flush failed: %v", err)
	}

	if err := sup.Shutdown(context.Background(), constants.DefaultShutdownTimeout); err != nil {
		log.Warnf("worker shutdown: %v", err)
	}

	return nil
}

// topicSet bundles the per-topic managers with their rate-control stages so
// teardown happens in one place, in order.
type topicSet struct {
	managers        []*channel.Manager
	coalescer       *channel.Coalescer[models.ProgressEvent]
	sampleCoalescer *channel.Coalescer[models.SampleProgressEvent]
	batcher         *channel.Batcher
	monitor         *sysmonitor.Monitor

	torndown bool
}

// wireTopics connects the three worker topics to their consumers: progress
// coalesced to frame rate, terminal output batched, system metrics passed
// through with a local sampling fallback while the topic is down.
func wireTopics(wsBase string) *topicSet {
	trainingLog := logger.For(logger.ComponentTrainingChannel)
	terminalLog := logger.For(logger.ComponentTerminalChannel)
	systemLog := logger.For(logger.ComponentSystemChannel)

	ts := &topicSet{}

	ts.coalescer = channel.NewCoalescer(constants.CoalesceFrameInterval, func(p models.ProgressEvent) {
		trainingLog.Infof("progress: epoch %d/%d step %d/%d",
			p.Epoch, p.MaxEpoch, p.GlobalStep, p.MaxStep)
	})

	ts.sampleCoalescer = channel.NewCoalescer(constants.CoalesceFrameInterval, func(p models.SampleProgressEvent) {
		trainingLog.Infof("sampling %d/%d", p.Step, p.MaxStep)
	})

	ts.batcher = channel.NewBatcher(constants.BatchFlushInterval, func(chunk string) {
		terminalLog.Info(chunk)
	})

	ts.monitor = sysmonitor.NewMonitor(func(m models.MetricsEvent) {
		systemLog.Debugf("local sample: cpu %.1f%% ram %.1f/%.1f GB",
			m.CPUPercent, m.RAMUsedGB, m.RAMTotalGB)
	})

	training := channel.NewManager("training", wsBase+constants.TopicTrainingPath)
	training.SetOnMessage(func(payload []byte) {
		env, err := models.DecodeEnvelope(payload)
		if err != nil {
			trainingLog.Debugf("undecodable frame: %v", err)

			return
		}

		switch {
		case env.Type == models.EventProgress:
			if p, err := models.DecodeData[models.ProgressEvent](env); err == nil {
				ts.coalescer.Offer(p)
			}
		case env.Type == models.EventSampleProgress:
			if p, err := models.DecodeData[models.SampleProgressEvent](env); err == nil {
				ts.sampleCoalescer.Offer(p)
			}
		case models.IsDiscrete(env.Type):
			// Discrete records apply immediately; collapsing them would lose
			// one-shot transitions.
			handleDiscrete(trainingLog, env)
		}
	})

	terminal := channel.NewManager("terminal", wsBase+constants.TopicTerminalPath)
	terminal.SetOnMessage(func(payload []byte) {
		env, err := models.DecodeEnvelope(payload)
		if err != nil {
			return
		}

		if rec, err := models.DecodeData[models.LogEvent](env); err == nil {
			ts.batcher.Append(rec.Text)
		}
	})

	system := channel.NewManager("system", wsBase+constants.TopicSystemPath)
	system.SetOnMessage(func(payload []byte) {
		env, err := models.DecodeEnvelope(payload)
		if err != nil {
			return
		}

		if m, err := models.DecodeData[models.MetricsEvent](env); err == nil {
			systemLog.Debugf("worker sample: cpu %.1f%% ram %.1f/%.1f GB (%d gpu)",
				m.CPUPercent, m.RAMUsedGB, m.RAMTotalGB, len(m.GPUs))
		}
	})
	// The local sampler fills the gap while the system topic is down, so the
	// resource readout survives worker restarts.
	system.SetOnOpen(func() {
		ts.monitor.Stop()
	})
	system.SetOnClose(func(error) {
		ts.monitor.Start(context.Background())
	})

	ts.managers = []*channel.Manager{training, terminal, system}

	return ts
}

// handleDiscrete applies the one-shot training records.
func handleDiscrete(log *zap.SugaredLogger, env models.Envelope) {
	switch env.Type {
	case models.EventStatus:
		if rec, err := models.DecodeData[models.StatusEvent](env); err == nil {
			log.Infof("status: %s", rec.Text)
		}
	case models.EventSample:
		if rec, err := models.DecodeData[models.SampleEvent](env); err == nil {
			log.Infof("sample at step %d (%s, %d bytes)", rec.Step, rec.FileType, len(rec.Base64))
		}
	case models.EventError:
		if rec, err := models.DecodeData[models.ErrorEvent](env); err == nil {
			log.Errorf("training error: %s", rec.Message)
		}
	}
}

// teardown disables the topics first so no new frames arrive, then closes
// the rate-control stages. Batcher close flushes the tail synchronously.
func (ts *topicSet) teardown() {
	if ts.torndown {
		return
	}
	ts.torndown = true

	for _, m := range ts.managers {
		m.Disable()
	}

	ts.monitor.Stop()
	ts.coalescer.Close()
	ts.sampleCoalescer.Close()
	ts.batcher.Close()
}
