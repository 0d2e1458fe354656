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
	"net"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/trainkit/shell/pkg/config"
	"github.com/trainkit/shell/pkg/logger"
)

var _ = Describe("resolveInterpreter", func() {
	It("prefers an executable from the configured search paths", func() {
		cfg := config.WorkerConfig{
			InterpreterSearchPaths: []string{"/does/not/exist", "/bin/sh"},
		}

		path, err := resolveInterpreter(cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("/bin/sh"))
	})

	It("skips non-executable candidates", func() {
		plain, err := os.CreateTemp(GinkgoT().TempDir(), "data")
		Expect(err).NotTo(HaveOccurred())
		plain.Close()

		cfg := config.WorkerConfig{
			InterpreterSearchPaths: []string{plain.Name(), "/bin/sh"},
		}

		path, err := resolveInterpreter(cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("/bin/sh"))
	})
})

var _ = Describe("workerEnv", func() {
	It("hands the worker its port and shutdown token", func() {
		cfg := config.WorkerConfig{Port: 9999, ShutdownToken: "tok"}

		env := workerEnv(cfg)
		Expect(env).To(ContainElement("OT_PORT=9999"))
		Expect(env).To(ContainElement("OT_SHUTDOWN_TOKEN=tok"))
	})

	It("omits the token variable when none is configured", func() {
		env := workerEnv(config.WorkerConfig{Port: 9999})
		Expect(env).NotTo(ContainElement(HavePrefix("OT_SHUTDOWN_TOKEN=")))
	})
})

var _ = Describe("findListenerPid", func() {
	It("finds the process bound to a listening port", func() {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		defer listener.Close()

		port := listener.Addr().(*net.TCPAddr).Port

		pid, err := findListenerPid(context.Background(), port)
		Expect(err).NotTo(HaveOccurred())
		Expect(pid).To(Equal(int32(os.Getpid())))
	})

	It("returns zero for a free port", func() {
		// Grab a port and release it so nothing is listening.
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		port := listener.Addr().(*net.TCPAddr).Port
		listener.Close()

		pid, err := findListenerPid(context.Background(), port)
		Expect(err).NotTo(HaveOccurred())
		Expect(pid).To(BeZero())
	})
})

var _ = Describe("reclaimPort", func() {
	It("is a no-op when the port is free", func() {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		port := listener.Addr().(*net.TCPAddr).Port
		listener.Close()

		log := logger.For("reclaim-test")
		Expect(reclaimPort(context.Background(), port, log)).To(Succeed())
	})
})
