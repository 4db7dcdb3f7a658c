// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_smallwebrtc

import (
	"context"
	"errors"
	"sort"

	pionwebrtc "github.com/pion/webrtc/v4"
	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
)

var errConnectionClosed = errors.New("peer connection closed")

// statsPeerConnection adapts a pion peer connection to the observer's
// statistics view.
type statsPeerConnection struct {
	pc *pionwebrtc.PeerConnection
}

func newStatsPeerConnection(pc *pionwebrtc.PeerConnection) internal_type.PeerConnection {
	return &statsPeerConnection{pc: pc}
}

func (p *statsPeerConnection) Transceivers() []internal_type.Transceiver {
	list := p.pc.GetTransceivers()
	out := make([]internal_type.Transceiver, 0, len(list))
	for _, t := range list {
		out = append(out, &statsTransceiver{pc: p.pc, transceiver: t})
	}
	return out
}

type statsTransceiver struct {
	pc          *pionwebrtc.PeerConnection
	transceiver *pionwebrtc.RTPTransceiver
}

func (t *statsTransceiver) report(ctx context.Context) (pionwebrtc.StatsReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.pc.ConnectionState() == pionwebrtc.PeerConnectionStateClosed {
		return nil, errConnectionClosed
	}
	return t.pc.GetStats(), nil
}

func (t *statsTransceiver) SenderStats(ctx context.Context) ([]internal_type.StatsEntry, error) {
	report, err := t.report(ctx)
	if err != nil {
		return nil, err
	}
	sender := t.transceiver.Sender()
	if sender == nil || sender.Track() == nil {
		return nil, nil
	}
	return senderEntries(report, sender.Track().ID()), nil
}

func (t *statsTransceiver) ReceiverStats(ctx context.Context) ([]internal_type.StatsEntry, error) {
	report, err := t.report(ctx)
	if err != nil {
		return nil, err
	}
	receiver := t.transceiver.Receiver()
	if receiver == nil {
		return nil, nil
	}
	ssrcs := map[pionwebrtc.SSRC]bool{}
	for _, track := range receiver.Tracks() {
		ssrcs[track.SSRC()] = true
	}
	return receiverEntries(report, ssrcs), nil
}

// sortedIDs keeps entry order stable across reads.
func sortedIDs(report pionwebrtc.StatsReport) []string {
	ids := make([]string, 0, len(report))
	for id := range report {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func senderEntries(report pionwebrtc.StatsReport, trackID string) []internal_type.StatsEntry {
	var out []internal_type.StatsEntry
	for _, id := range sortedIDs(report) {
		source, ok := report[id].(pionwebrtc.AudioSourceStats)
		if !ok || source.TrackIdentifier != trackID {
			continue
		}
		level := source.AudioLevel
		out = append(out, internal_type.StatsEntry{
			Type:       internal_type.StatsTypeMediaSource,
			Kind:       source.Kind,
			AudioLevel: &level,
		})
	}
	return out
}

func receiverEntries(report pionwebrtc.StatsReport, ssrcs map[pionwebrtc.SSRC]bool) []internal_type.StatsEntry {
	var out []internal_type.StatsEntry
	for _, id := range sortedIDs(report) {
		inbound, ok := report[id].(pionwebrtc.InboundRTPStreamStats)
		if !ok || !ssrcs[inbound.SSRC] {
			continue
		}
		level := inbound.AudioLevel
		out = append(out, internal_type.StatsEntry{
			Type:       internal_type.StatsTypeInboundRTP,
			Kind:       inbound.Kind,
			AudioLevel: &level,
		})
	}
	return out
}
