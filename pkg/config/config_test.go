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

package config

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Load", func() {
	It("falls back to defaults when the file is missing", func() {
		cfg, err := Load(filepath.Join(GinkgoT().TempDir(), "absent.yaml"))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Worker.Port).To(Equal(8190))
		Expect(cfg.Worker.ExternallyManaged).To(BeFalse())
		Expect(cfg.Worker.Script).To(Equal("web/backend/main.py"))
	})

	It("parses the file and keeps defaults for omitted fields", func() {
		path := filepath.Join(GinkgoT().TempDir(), "shell.yaml")
		Expect(os.WriteFile(path, []byte(`
worker:
  externallyManaged: true
  shutdownToken: abc
metricsPort: 9105
`), 0o600)).To(Succeed())

		cfg, err := Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Worker.Port).To(Equal(8190))
		Expect(cfg.Worker.ExternallyManaged).To(BeTrue())
		Expect(cfg.Worker.ShutdownToken).To(Equal("abc"))
		Expect(cfg.MetricsPort).To(Equal(9105))
	})

	It("lets the environment override the file", func() {
		GinkgoT().Setenv("SHELL_WORKER_PORT", "9000")
		GinkgoT().Setenv("OT_SHUTDOWN_TOKEN", "env-token")

		cfg, err := Load(filepath.Join(GinkgoT().TempDir(), "absent.yaml"))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Worker.Port).To(Equal(9000))
		Expect(cfg.Worker.ShutdownToken).To(Equal("env-token"))
	})

	It("rejects an out-of-range port", func() {
		GinkgoT().Setenv("SHELL_WORKER_PORT", "70000")

		_, err := Load(filepath.Join(GinkgoT().TempDir(), "absent.yaml"))
		Expect(err).To(HaveOccurred())
	})

	It("rejects unparseable YAML", func() {
		path := filepath.Join(GinkgoT().TempDir(), "shell.yaml")
		Expect(os.WriteFile(path, []byte("worker: ["), 0o600)).To(Succeed())

		_, err := Load(path)
		Expect(err).To(HaveOccurred())
	})
})
