// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_smallwebrtc

import (
	"time"

	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
)

// Opus audio constants (WebRTC standard: 48kHz)
const (
	OpusSampleRate  = 48000
	OpusChannels    = 2 // opus/48000/2 per RFC 7587, even for mono voice
	OpusPayloadType = 111
	OpusSDPFmtpLine = "minptime=10;useinbandfec=1;stereo=0;sprop-stereo=0"

	VP8ClockRate   = 90000
	VP8PayloadType = 96
)

const (
	RTPBufferSize        = 1500 // Max RTP packet size (MTU)
	MaxConsecutiveErrors = 50   // Max read errors before stopping a remote track reader

	DataChannelLabel      = "chat"
	DefaultRequestTimeout = 15 * time.Second

	BotParticipantID   = "bot"
	BotParticipantName = "Bot"
)

// Config holds the engine configuration.
type Config struct {
	ICEServers         []ICEServer
	ICETransportPolicy string // "all" or "relay"

	// OfferPath is appended to the join URL when set; otherwise the join URL
	// is the offer endpoint itself.
	OfferPath      string
	RequestTimeout time.Duration
	Headers        map[string]string

	// LocalAudioLevelOnly skips remote level sampling, for bots that report
	// their own speaking state.
	LocalAudioLevelOnly bool

	// Devices is the virtual device catalog reported to the transport.
	Devices []internal_type.Device
}

// ICEServer represents a STUN/TURN server
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() *Config {
	return &Config{
		ICEServers: []ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		ICETransportPolicy: "all",
		RequestTimeout:     DefaultRequestTimeout,
		Devices:            DefaultDevices(),
	}
}

// DefaultDevices is one virtual device per class.
func DefaultDevices() []internal_type.Device {
	return []internal_type.Device{
		{DeviceID: "default-mic", Label: "Default microphone", Kind: internal_type.MediaDeviceAudioInput, GroupID: "default"},
		{DeviceID: "default-cam", Label: "Default camera", Kind: internal_type.MediaDeviceVideoInput, GroupID: "default"},
		{DeviceID: "default-speaker", Label: "Default speaker", Kind: internal_type.MediaDeviceAudioOutput, GroupID: "default"},
	}
}
