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

package constants

import "time"

// Streaming topic paths on the worker.
const (
	TopicTrainingPath = "/ws/training"
	TopicTerminalPath = "/ws/terminal"
	TopicSystemPath   = "/ws/system"
)

const (
	// ReconnectInitialDelay is the first retry delay after a connection failure.
	ReconnectInitialDelay = 500 * time.Millisecond

	// ReconnectGrowthFactor multiplies the retry delay after each failure.
	ReconnectGrowthFactor = 2.0

	// ReconnectMaxDelay caps the retry delay.
	ReconnectMaxDelay = 10 * time.Second

	// CoalesceFrameInterval is the apply cadence for coalesced progress
	// updates, one display frame at roughly 60 Hz.
	CoalesceFrameInterval = 16 * time.Millisecond

	// BatchFlushInterval is the flush cadence for accumulated log fragments.
	BatchFlushInterval = 50 * time.Millisecond

	// ChannelWriteTimeout bounds a single websocket write.
	ChannelWriteTimeout = 5 * time.Second
)

const (
	// ConfigPushDebounce is the trailing-edge window that collapses a burst
	// of field edits into one push.
	ConfigPushDebounce = 500 * time.Millisecond

	// MetricsSampleInterval is the local resource-sampling cadence used when
	// the system topic is unavailable. Matches the worker's own push rate.
	MetricsSampleInterval = time.Second
)
