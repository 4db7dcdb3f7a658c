// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_type

import "context"

// Stats report types read by the audio level observer.
const (
	StatsTypeMediaSource = "media-source"
	StatsTypeInboundRTP  = "inbound-rtp"
	StatsKindAudio       = "audio"
)

// StatsEntry is one report of a statistics read.
type StatsEntry struct {
	Type       string
	Kind       string
	AudioLevel *float64
}

// Transceiver exposes the statistics of one sender/receiver pair.
type Transceiver interface {
	SenderStats(ctx context.Context) ([]StatsEntry, error)
	ReceiverStats(ctx context.Context) ([]StatsEntry, error)
}

// PeerConnection is the read-only view of a connection the observer samples.
// Index 0 of Transceivers is the audio transceiver.
type PeerConnection interface {
	Transceivers() []Transceiver
}

// MicState reports whether local audio is enabled.
type MicState interface {
	IsMicEnabled() bool
}

// StatsProvider is implemented by engines that can lend their peer connection.
type StatsProvider interface {
	PeerConnection() PeerConnection
}

// LocalLevelProvider is implemented by stats providers that may only report
// the outbound level. When LocalLevelsOnly is true the transport samples the
// local path alone.
type LocalLevelProvider interface {
	LocalLevelsOnly() bool
}
