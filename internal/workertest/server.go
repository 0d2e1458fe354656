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

// Package workertest provides an in-process stand-in for the worker API,
// serving the same REST and streaming surface so packages can be tested
// against a real HTTP and websocket transport.
package workertest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/tidwall/sjson"

	"github.com/trainkit/shell/pkg/constants"
)

// Server is a fake worker. Its configuration tree and streaming topics are
// scriptable from tests.
type Server struct {
	httpSrv *httptest.Server

	mu       sync.Mutex
	config   []byte
	defaults []byte
	schema   []byte
	conns    map[string][]*websocket.Conn

	shutdownToken string
	shutdownCalls atomic.Int64

	// UpdateHook, when set, intercepts PUT /api/config and returns the
	// reconciled tree; default behavior echoes the submitted snapshot.
	UpdateHook func(snapshot []byte) []byte
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// New starts a fake worker on an ephemeral port.
func New() *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		config:   []byte(`{"training_method":"LORA","optimizer":{"optimizer":"ADAMW"}}`),
		defaults: []byte(`{"training_method":"FINE_TUNE","optimizer":{"optimizer":"ADAMW"}}`),
		schema:   []byte(`{"training_method":"str","optimizer.optimizer":"str"}`),
		conns:    make(map[string][]*websocket.Conn),
	}

	router := gin.New()
	router.GET(constants.WorkerHealthPath, s.handleHealth)
	router.POST(constants.WorkerShutdownPath, s.handleShutdown)
	router.GET(constants.WorkerConfigPath, s.handleGetConfig)
	router.PUT(constants.WorkerConfigPath, s.handlePutConfig)
	router.GET(constants.WorkerConfigDefaultsPath, s.handleDefaults)
	router.GET(constants.WorkerConfigSchemaPath, s.handleSchema)
	router.POST(constants.WorkerConfigOptimizerPath, s.handleOptimizer)
	router.POST(constants.WorkerConfigExportPath, s.handleGetConfig)

	for _, topic := range []string{
		constants.TopicTrainingPath,
		constants.TopicTerminalPath,
		constants.TopicSystemPath,
	} {
		router.GET(topic, s.handleTopic(topic))
	}

	s.httpSrv = httptest.NewServer(router)

	return s
}

// URL returns the HTTP base URL of the fake worker.
func (s *Server) URL() string { return s.httpSrv.URL }

// WSURL returns the websocket URL for a topic path.
func (s *Server) WSURL(topic string) string {
	return "ws" + strings.TrimPrefix(s.httpSrv.URL, "http") + topic
}

// SetShutdownToken requires the given token on shutdown requests.
func (s *Server) SetShutdownToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownToken = token
}

// ShutdownCalls returns how many accepted shutdown requests arrived.
func (s *Server) ShutdownCalls() int64 { return s.shutdownCalls.Load() }

// SetConfig replaces the served configuration tree.
func (s *Server) SetConfig(config []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = append([]byte(nil), config...)
}

// Config returns the currently stored configuration tree.
func (s *Server) Config() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]byte(nil), s.config...)
}

// Push broadcasts a frame to every connection on a topic.
func (s *Server) Push(topic string, frame []byte) {
	s.mu.Lock()
	conns := append([]*websocket.Conn(nil), s.conns[topic]...)
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.WriteMessage(websocket.TextMessage, frame)
	}
}

// DropConnections force-closes every connection on a topic, simulating a
// worker crash mid-stream.
func (s *Server) DropConnections(topic string) {
	s.mu.Lock()
	conns := s.conns[topic]
	s.conns[topic] = nil
	s.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

// Close shuts the fake worker down.
func (s *Server) Close() {
	s.mu.Lock()
	for topic, conns := range s.conns {
		for _, conn := range conns {
			conn.Close()
		}
		s.conns[topic] = nil
	}
	s.mu.Unlock()

	s.httpSrv.Close()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleShutdown(c *gin.Context) {
	s.mu.Lock()
	token := s.shutdownToken
	s.mu.Unlock()

	if token != "" && c.GetHeader(constants.ShutdownTokenHeader) != token {
		c.JSON(http.StatusForbidden, gin.H{"detail": "invalid shutdown token"})

		return
	}

	s.shutdownCalls.Add(1)
	c.JSON(http.StatusOK, gin.H{"status": "shutting down"})
}

func (s *Server) handleGetConfig(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", s.Config())
}

func (s *Server) handlePutConfig(c *gin.Context) {
	snapshot, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})

		return
	}

	if s.UpdateHook != nil {
		snapshot = s.UpdateHook(snapshot)
	}

	s.SetConfig(snapshot)
	c.Data(http.StatusOK, "application/json", snapshot)
}

func (s *Server) handleDefaults(c *gin.Context) {
	s.mu.Lock()
	body := append([]byte(nil), s.defaults...)
	s.mu.Unlock()

	c.Data(http.StatusOK, "application/json", body)
}

func (s *Server) handleSchema(c *gin.Context) {
	s.mu.Lock()
	body := append([]byte(nil), s.schema...)
	s.mu.Unlock()

	c.Data(http.StatusOK, "application/json", body)
}

func (s *Server) handleOptimizer(c *gin.Context) {
	var req struct {
		Field string `json:"field"`
		Value any    `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})

		return
	}

	updated, err := sjson.SetBytes(s.Config(), req.Field, req.Value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})

		return
	}

	s.SetConfig(updated)
	c.Data(http.StatusOK, "application/json", updated)
}

func (s *Server) handleTopic(topic string) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		s.mu.Lock()
		s.conns[topic] = append(s.conns[topic], conn)
		s.mu.Unlock()

		// Drain inbound frames so client writes do not back up.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					s.removeConn(topic, conn)

					return
				}
			}
		}()
	}
}

func (s *Server) removeConn(topic string, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns := s.conns[topic]
	for i, c := range conns {
		if c == conn {
			s.conns[topic] = append(conns[:i], conns[i+1:]...)

			break
		}
	}
}
