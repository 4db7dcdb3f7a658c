// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_enginetest

import (
	"context"

	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
)

// Transceiver reports fixed audio levels.
type Transceiver struct {
	Local  float64
	Remote float64
}

func (t Transceiver) SenderStats(context.Context) ([]internal_type.StatsEntry, error) {
	level := t.Local
	return []internal_type.StatsEntry{{Type: internal_type.StatsTypeMediaSource, Kind: internal_type.StatsKindAudio, AudioLevel: &level}}, nil
}

func (t Transceiver) ReceiverStats(context.Context) ([]internal_type.StatsEntry, error) {
	level := t.Remote
	return []internal_type.StatsEntry{{Type: internal_type.StatsTypeInboundRTP, Kind: internal_type.StatsKindAudio, AudioLevel: &level}}, nil
}

type PeerConnection struct {
	List []internal_type.Transceiver
}

func (p *PeerConnection) Transceivers() []internal_type.Transceiver { return p.List }

// StaticPeerConnection returns an audio and a video transceiver, the audio
// one reporting the given levels.
func StaticPeerConnection(local, remote float64) *PeerConnection {
	return &PeerConnection{List: []internal_type.Transceiver{
		Transceiver{Local: local, Remote: remote},
		Transceiver{},
	}}
}
