package server

import "time"

// Broadcast loop defaults. See throttle.go for the throttling controller's
// constants, which mirror the historical assignment-client AvatarMixer.
const (
	DefaultBroadcastRateHz = 45.0
	DefaultFrameInterval   = time.Second / time.Duration(DefaultBroadcastRateHz)

	// Throttling controller constants (see throttle.go).
	throttleTarget        = 0.9
	throttleBackoffTarget = 0.44
	throttleStrugglesAt   = 150.0
	throttleRate          = 2.0 / throttleStrugglesAt
	backoffRate           = throttleRate / 4.0
	recoverySeconds       = 180.0
	trailingFrames        = int(100 * recoverySeconds * backoffRate)
	currentFrameRatio     = 1.0 / float64(trailingFrames)
)

// Bandwidth and avatar model defaults, sourced from
// avatar_mixer.max_node_send_bandwidth and avatars.* settings keys.
const (
	DefaultMaxNodeSendBandwidthMBps = 5.0
	kiloPerMega                     = 1000.0

	DefaultMinAvatarHeight = 1.0
	DefaultMaxAvatarHeight = 3.0
	absoluteMinHeight      = 0.5
	absoluteMaxHeight      = 4.5

	defaultDisplayName = "anonymous"
)

// Inbox and bandwidth accounting defaults.
const (
	DefaultInboxDepth = 64

	// StatsReportInterval matches the "default 1 Hz" reporter cadence in
	// spec §4.12.
	StatsReportInterval = time.Second

	// RateLimitLogInterval bounds "log once per sender per minute" for
	// malformed-packet handling (spec §4.11).
	RateLimitLogInterval = time.Minute
)
