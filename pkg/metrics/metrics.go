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

// Package metrics exposes Prometheus instrumentation for the shell's
// supervision and synchronization internals.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "trainkit"
	subsystem = "shell"
)

var (
	healthProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "health_probes_total",
			Help:      "Total number of worker health probes by outcome",
		},
		[]string{"outcome"},
	)

	shutdownEscalationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "shutdown_escalations_total",
			Help:      "Times a graceful shutdown timed out and escalated to a forced tree kill",
		},
	)

	channelReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "channel_reconnects_total",
			Help:      "Total number of reconnect attempts by topic",
		},
		[]string{"topic"},
	)

	channelMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "channel_messages_total",
			Help:      "Total number of messages received by topic",
		},
		[]string{"topic"},
	)

	configPushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "config_pushes_total",
			Help:      "Total number of config pushes by outcome (applied, stale, failed)",
		},
		[]string{"outcome"},
	)

	configPushDuration = promauto.NewSummary(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "config_push_duration_milliseconds",
			Help:      "Time taken for a config push round trip (in milliseconds)",
			Objectives: map[float64]float64{
				0.5:  0.01,
				0.9:  0.01,
				0.99: 0.01,
			},
		},
	)

	workerUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "worker_up",
			Help:      "Whether the worker currently reports healthy (1) or not (0)",
		},
	)
)

// RecordHealthProbe records one health probe outcome and mirrors it on the
// worker_up gauge.
func RecordHealthProbe(healthy bool) {
	if healthy {
		healthProbesTotal.WithLabelValues("healthy").Inc()
		workerUp.Set(1)

		return
	}

	healthProbesTotal.WithLabelValues("unhealthy").Inc()
	workerUp.Set(0)
}

// RecordShutdownEscalation records a graceful shutdown that escalated to a
// forced tree kill.
func RecordShutdownEscalation() {
	shutdownEscalationsTotal.Inc()
}

// RecordChannelReconnect records a reconnect attempt for a topic.
func RecordChannelReconnect(topic string) {
	channelReconnectsTotal.WithLabelValues(topic).Inc()
}

// RecordChannelMessage records a received message for a topic.
func RecordChannelMessage(topic string) {
	channelMessagesTotal.WithLabelValues(topic).Inc()
}

// RecordConfigPush records a config push outcome: "applied", "stale" or "failed".
func RecordConfigPush(outcome string, duration time.Duration) {
	configPushesTotal.WithLabelValues(outcome).Inc()
	configPushDuration.Observe(float64(duration.Milliseconds()))
}

// SetupMetricsEndpoint starts an HTTP server exposing /metrics on the given
// address and returns it so the caller can shut it down.
func SetupMetricsEndpoint(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		// ErrServerClosed is the normal shutdown path.
		_ = server.ListenAndServe()
	}()

	return server
}
