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

package configsync

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"

	"github.com/trainkit/shell/internal/workertest"
)

var _ = Describe("WorkerClient", func() {
	var (
		worker *workertest.Server
		client *WorkerClient
		ctx    context.Context
	)

	BeforeEach(func() {
		worker = workertest.New()
		DeferCleanup(worker.Close)

		client = NewWorkerClient(worker.URL(), nil)
		ctx = context.Background()
	})

	It("fetches the current configuration tree", func() {
		worker.SetConfig([]byte(`{"training_method":"EMBEDDING"}`))

		body, err := client.FetchConfig(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(gjson.GetBytes(body, "training_method").String()).To(Equal("EMBEDDING"))
	})

	It("round-trips an update through the worker", func() {
		body, err := client.UpdateConfig(ctx, []byte(`{"a":1}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(body).To(MatchJSON(`{"a":1}`))
		Expect(worker.Config()).To(MatchJSON(`{"a":1}`))
	})

	It("fetches defaults and schema", func() {
		defaults, err := client.FetchDefaults(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(gjson.GetBytes(defaults, "training_method").String()).To(Equal("FINE_TUNE"))

		schema, err := client.FetchSchema(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(gjson.ValidBytes(schema)).To(BeTrue())
	})

	It("applies a selection and returns the recomputed tree", func() {
		body, err := client.ApplySelection(ctx, "optimizer.optimizer", "PRODIGY")
		Expect(err).NotTo(HaveOccurred())
		Expect(gjson.GetBytes(body, "optimizer.optimizer").String()).To(Equal("PRODIGY"))
	})

	It("exports the packed snapshot", func() {
		worker.SetConfig([]byte(`{"packed":true}`))

		body, err := client.ExportConfig(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(body).To(MatchJSON(`{"packed":true}`))
	})

	It("surfaces non-2xx responses as errors", func() {
		// The optimizer endpoint rejects an unparseable body path.
		_, err := client.ApplySelection(ctx, "", nil)
		Expect(err).To(HaveOccurred())
	})

	It("wires the end-to-end engine flow against a live worker", func() {
		engine := NewEngine(client)
		DeferCleanup(engine.Close)

		Expect(engine.Load(ctx)).To(Succeed())

		v, ok := engine.GetField("training_method")
		Expect(ok).To(BeTrue())
		Expect(v.String()).To(Equal("LORA"))

		Expect(engine.SetField("training_method", "EMBEDDING")).To(Succeed())
		Expect(engine.FlushIfDirty(ctx)).To(Succeed())

		Expect(gjson.GetBytes(worker.Config(), "training_method").String()).To(Equal("EMBEDDING"))
	})
})
