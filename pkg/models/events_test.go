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

package models

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("DecodeEnvelope", func() {
	It("splits a frame into type and raw payload", func() {
		env, err := DecodeEnvelope([]byte(`{"type":"progress","data":{"epoch":2,"global_step":140,"max_step":3000}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(env.Type).To(Equal(EventProgress))

		p, err := DecodeData[ProgressEvent](env)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Epoch).To(Equal(2))
		Expect(p.GlobalStep).To(Equal(140))
		Expect(p.MaxStep).To(Equal(3000))
	})

	It("rejects a frame without a type discriminator", func() {
		_, err := DecodeEnvelope([]byte(`{"data":{}}`))
		Expect(err).To(HaveOccurred())
	})

	It("rejects malformed JSON", func() {
		_, err := DecodeEnvelope([]byte(`{"type":`))
		Expect(err).To(HaveOccurred())
	})

	It("decodes the system metrics payload", func() {
		env, err := DecodeEnvelope([]byte(`{"type":"metrics","data":{"cpu_percent":12.5,"ram_used_gb":4.2,"ram_total_gb":32,"ram_percent":13.1,"gpus":[{"index":0,"name":"RTX 4090","util_percent":98,"mem_used_gb":20.1,"mem_total_gb":24,"temperature_c":71}]}}`))
		Expect(err).NotTo(HaveOccurred())

		m, err := DecodeData[MetricsEvent](env)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.CPUPercent).To(Equal(12.5))
		Expect(m.GPUs).To(HaveLen(1))
		Expect(m.GPUs[0].Name).To(Equal("RTX 4090"))
	})
})

var _ = Describe("IsDiscrete", func() {
	It("marks one-shot transitions as discrete", func() {
		Expect(IsDiscrete(EventStatus)).To(BeTrue())
		Expect(IsDiscrete(EventSample)).To(BeTrue())
		Expect(IsDiscrete(EventError)).To(BeTrue())
	})

	It("leaves continuous streams eligible for coalescing", func() {
		Expect(IsDiscrete(EventProgress)).To(BeFalse())
		Expect(IsDiscrete(EventSampleProgress)).To(BeFalse())
		Expect(IsDiscrete(EventLog)).To(BeFalse())
		Expect(IsDiscrete(EventMetrics)).To(BeFalse())
	})
})
