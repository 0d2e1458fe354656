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

// Package channel provides a reusable reconnecting duplex-connection
// abstraction, instantiated once per logical worker topic. Reconnects use
// capped exponential backoff and continue until the topic is explicitly
// disabled. Rate control (coalescing, batching) layers on top of raw
// message delivery.
package channel

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/trainkit/shell/pkg/constants"
	"github.com/trainkit/shell/pkg/logger"
	"github.com/trainkit/shell/pkg/metrics"
)

// Connection states.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateOpen         = "open"
	StateDisabled     = "disabled"
)

// Connection events.
const (
	eventConnect = "connect"
	eventOpened  = "opened"
	eventClosed  = "closed"
	eventDisable = "disable"
	eventEnable  = "enable"
)

// Manager is the reconnecting connection state machine for one topic.
//
// Handler references live in place-updatable cells: replacing a handler
// never touches the connection. Only Enable/Disable affect its lifecycle.
type Manager struct {
	topic  string
	url    string
	logger *zap.SugaredLogger
	dialer *websocket.Dialer

	mu      sync.Mutex
	machine *fsm.FSM
	conn    *websocket.Conn

	// retry is the backoff schedule: grows on failure, resets on open.
	retry          *backoff.ExponentialBackOff
	lastRetryDelay time.Duration
	reconnectTimer *time.Timer

	onOpen    func()
	onMessage func(payload []byte)
	onClose   func(err error)
}

// newRetrySchedule builds the deterministic reconnect schedule: initial
// delay multiplied by a fixed factor per failure, capped, never elapsing.
func newRetrySchedule() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = constants.ReconnectInitialDelay
	bo.Multiplier = constants.ReconnectGrowthFactor
	bo.MaxInterval = constants.ReconnectMaxDelay
	bo.MaxElapsedTime = 0
	bo.RandomizationFactor = 0
	bo.Reset()

	return bo
}

// NewManager creates a Manager for one topic endpoint. The connection starts
// Disconnected; call Enable or Connect to dial.
func NewManager(topic, url string) *Manager {
	m := &Manager{
		topic:  topic,
		url:    url,
		logger: logger.For(logger.ComponentChannel).Named(topic),
		dialer: &websocket.Dialer{HandshakeTimeout: constants.ChannelWriteTimeout},
		retry:  newRetrySchedule(),
	}

	m.machine = fsm.NewFSM(
		StateDisconnected,
		fsm.Events{
			{Name: eventConnect, Src: []string{StateDisconnected}, Dst: StateConnecting},
			{Name: eventOpened, Src: []string{StateConnecting}, Dst: StateOpen},
			{Name: eventClosed, Src: []string{StateConnecting, StateOpen}, Dst: StateDisconnected},
			{Name: eventDisable, Src: []string{StateDisconnected, StateConnecting, StateOpen}, Dst: StateDisabled},
			{Name: eventEnable, Src: []string{StateDisabled}, Dst: StateDisconnected},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				m.logger.Debugf("state %s -> %s", e.Src, e.Dst)
			},
		},
	)

	return m
}

// SetOnOpen replaces the open handler in place.
func (m *Manager) SetOnOpen(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOpen = fn
}

// SetOnMessage replaces the message handler in place.
func (m *Manager) SetOnMessage(fn func(payload []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMessage = fn
}

// SetOnClose replaces the close handler in place.
func (m *Manager) SetOnClose(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClose = fn
}

// State returns the current connection state.
func (m *Manager) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.machine.Current()
}

// LastRetryDelay returns the delay used for the most recently scheduled
// reconnect, zero before the first failure.
func (m *Manager) LastRetryDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastRetryDelay
}

// Connect dials the topic endpoint. No-op unless currently Disconnected.
func (m *Manager) Connect() {
	m.mu.Lock()
	if err := m.machine.Event(context.Background(), eventConnect); err != nil {
		m.mu.Unlock()

		return
	}
	m.mu.Unlock()

	go m.dial()
}

// dial runs the blocking handshake off the caller's goroutine and settles
// the state machine with the outcome.
func (m *Manager) dial() {
	conn, resp, err := m.dialer.Dial(m.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	m.mu.Lock()

	if m.machine.Current() == StateDisabled {
		// Disabled while the handshake was in flight.
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}

		return
	}

	if err != nil {
		m.logger.Debugf("dial failed: %v", err)
		_ = m.machine.Event(context.Background(), eventClosed)
		onClose := m.onClose
		m.scheduleReconnectLocked()
		m.mu.Unlock()

		if onClose != nil {
			onClose(err)
		}

		return
	}

	m.conn = conn
	_ = m.machine.Event(context.Background(), eventOpened)
	m.retry.Reset()
	onOpen := m.onOpen
	m.mu.Unlock()

	m.logger.Infof("connected to %s", m.url)

	if onOpen != nil {
		onOpen()
	}

	go m.readLoop(conn)
}

// readLoop delivers every frame to the current message handler until the
// connection drops.
func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(err)

			return
		}

		metrics.RecordChannelMessage(m.topic)

		m.mu.Lock()
		handler := m.onMessage
		m.mu.Unlock()

		if handler != nil {
			handler(payload)
		}
	}
}

// handleClose transitions to Disconnected and schedules the next reconnect,
// unless the topic was disabled (in which case the close was deliberate).
func (m *Manager) handleClose(err error) {
	m.mu.Lock()

	if m.machine.Current() == StateDisabled {
		m.mu.Unlock()

		return
	}

	m.conn = nil
	_ = m.machine.Event(context.Background(), eventClosed)
	onClose := m.onClose
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	m.logger.Infof("connection closed: %v", err)

	if onClose != nil {
		onClose(err)
	}
}

// scheduleReconnectLocked arms the reconnect timer with the next backoff
// delay. Caller holds m.mu.
func (m *Manager) scheduleReconnectLocked() {
	delay := m.retry.NextBackOff()
	m.lastRetryDelay = delay
	metrics.RecordChannelReconnect(m.topic)

	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.Connect()
	})
}

// Enable re-enables a disabled topic: the retry delay resets to its initial
// value and a connect is attempted immediately. Calling Enable on a topic
// that was never disabled just connects.
func (m *Manager) Enable() {
	m.mu.Lock()
	_ = m.machine.Event(context.Background(), eventEnable)
	m.retry.Reset()
	m.mu.Unlock()

	m.Connect()
}

// Disable closes any open connection and cancels any pending reconnect
// without scheduling a new one. No callback fires after Disable returns
// except the close handler for the connection being torn down.
func (m *Manager) Disable() {
	m.mu.Lock()

	if m.machine.Current() == StateDisabled {
		m.mu.Unlock()

		return
	}

	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}

	conn := m.conn
	m.conn = nil
	_ = m.machine.Event(context.Background(), eventDisable)
	m.mu.Unlock()

	if conn != nil {
		// The read loop observes the close but finds the state Disabled, so
		// no reconnect is scheduled.
		conn.Close()
	}

	m.logger.Info("disabled")
}

// Send writes a payload to the open connection. Returns false when the
// connection is not open.
func (m *Manager) Send(payload []byte) bool {
	m.mu.Lock()
	conn := m.conn
	open := m.machine.Current() == StateOpen
	m.mu.Unlock()

	if !open || conn == nil {
		return false
	}

	_ = conn.SetWriteDeadline(time.Now().Add(constants.ChannelWriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		m.logger.Debugf("write failed: %v", err)

		return false
	}

	return true
}
