// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_smallwebrtc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pion/sdp/v3"
	pionwebrtc "github.com/pion/webrtc/v4"
	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
	"github.com/rapidaai/voice-client/pkg/commons"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu     sync.Mutex
	events []internal_type.EngineEvent
}

func (l *eventLog) handle(ev internal_type.EngineEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) names() []internal_type.EngineEventName {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]internal_type.EngineEventName, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.EventName())
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *eventLog) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ICEServers = nil
	e := NewEngine(commons.NewNopLogger(), cfg)
	log := &eventLog{}
	e.On(log.handle)
	return e, log
}

func TestEngine_OfferEndpoint(t *testing.T) {
	tests := []struct {
		name string
		path string
		url  string
		want string
	}{
		{name: "url is endpoint", url: "https://bot.example/api/offer", want: "https://bot.example/api/offer"},
		{name: "path appended", path: "/api/offer", url: "https://bot.example/", want: "https://bot.example/api/offer"},
		{name: "path without slash", path: "offer", url: "https://bot.example", want: "https://bot.example/offer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(commons.NewNopLogger(), &Config{OfferPath: tt.path})
			got, err := e.offerEndpoint(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := NewEngine(commons.NewNopLogger(), nil).offerEndpoint("")
	var invalid *internal_type.InvalidTransportParamsError
	assert.ErrorAs(t, err, &invalid)
}

func TestEngine_DeviceCatalog(t *testing.T) {
	e, log := newTestEngine(t)

	require.NoError(t, e.StartCamera(context.Background(), internal_type.JoinOptions{StartVideoOff: true}))
	selected, err := e.InputDevices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "default-mic", selected.Mic.DeviceID)
	assert.Equal(t, "default-cam", selected.Camera.DeviceID)
	assert.Equal(t, "default-speaker", selected.Speaker.DeviceID)
	assert.True(t, e.LocalAudio())
	assert.False(t, e.LocalVideo())

	devices, err := e.EnumerateDevices(context.Background())
	require.NoError(t, err)
	assert.Len(t, devices, 3)

	assert.ErrorIs(t, e.SetAudioDevice(context.Background(), "default-cam"), ErrUnknownDevice)
	require.NoError(t, e.SetSpeaker(context.Background(), "default-speaker"))
	assert.Equal(t, []internal_type.EngineEventName{internal_type.EventSelectedDevicesUpdated}, log.names())
}

func TestEngine_LocalLevelsOnly(t *testing.T) {
	e, _ := newTestEngine(t)
	var provider internal_type.LocalLevelProvider = e
	assert.False(t, provider.LocalLevelsOnly())

	cfg := DefaultConfig()
	cfg.LocalAudioLevelOnly = true
	assert.True(t, NewEngine(commons.NewNopLogger(), cfg).LocalLevelsOnly())
}

func TestEngine_ScreenShareUnsupported(t *testing.T) {
	e, log := newTestEngine(t)

	err := e.StartScreenShare(context.Background())
	var unsupported *internal_type.UnsupportedFeatureError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "smallwebrtc", unsupported.Source)
	assert.False(t, e.LocalScreenVideo())

	log.mu.Lock()
	defer log.mu.Unlock()
	require.Len(t, log.events, 1)
	nonFatal, ok := log.events[0].(internal_type.NonFatalErrorEvent)
	require.True(t, ok)
	assert.Equal(t, internal_type.NonFatalScreenShareError, nonFatal.Type)
}

func TestEngine_NotConnected(t *testing.T) {
	e, log := newTestEngine(t)

	assert.ErrorIs(t, e.SendAppMessage(context.Background(), internal_type.ClientReadyMessage()), ErrNotConnected)
	assert.Nil(t, e.PeerConnection())
	assert.ErrorIs(t, e.WriteAudio([]byte{0xf8}, 20*time.Millisecond), ErrNotConnected)

	require.NoError(t, e.StartCamera(context.Background(), internal_type.JoinOptions{}))
	// a prepared track drops frames until joined
	assert.NoError(t, e.WriteAudio([]byte{0xf8}, 20*time.Millisecond))

	participants := e.Participants()
	require.Contains(t, participants, internal_type.LocalParticipantKey)
	assert.NotNil(t, participants[internal_type.LocalParticipantKey].Audio)
	assert.Len(t, participants, 1)

	require.NoError(t, e.Leave(context.Background()))
	assert.Equal(t, []internal_type.EngineEventName{internal_type.EventLeftMeeting}, log.names())
}

func TestEngine_JoinRejectedOffer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bot unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	e, log := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := e.Join(ctx, internal_type.JoinOptions{URL: server.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Nil(t, e.PeerConnection())
	assert.Empty(t, log.names())

	// a failed join leaves the engine ready for another attempt
	err = e.Join(ctx, internal_type.JoinOptions{URL: server.URL})
	assert.NotErrorIs(t, err, ErrAlreadyJoined)
}

// answerOffer plays the bot side of the exchange with a plain pion peer.
func answerOffer(offer offerRequest) (offerResponse, *pionwebrtc.PeerConnection, error) {
	pc, err := pionwebrtc.NewPeerConnection(pionwebrtc.Configuration{})
	if err != nil {
		return offerResponse{}, nil, err
	}
	if err := pc.SetRemoteDescription(pionwebrtc.SessionDescription{Type: pionwebrtc.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		return offerResponse{}, pc, err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return offerResponse{}, pc, err
	}
	gathered := pionwebrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return offerResponse{}, pc, err
	}
	<-gathered
	return offerResponse{SDP: pc.LocalDescription().SDP, Type: "answer", PCID: "pc-123"}, pc, nil
}

func TestEngine_JoinSendsOffer(t *testing.T) {
	var (
		mu       sync.Mutex
		received offerRequest
		auth     string
		peers    []*pionwebrtc.PeerConnection
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var offer offerRequest
		if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp, pc, err := answerOffer(offer)
		mu.Lock()
		received = offer
		auth = r.Header.Get("Authorization")
		if pc != nil {
			peers = append(peers, pc)
		}
		mu.Unlock()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		for _, pc := range peers {
			_ = pc.Close()
		}
	}()

	e, _ := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := e.Join(ctx, internal_type.JoinOptions{
		URL:   server.URL,
		Token: "secret",
		Extra: map[string]interface{}{"voice": "alloy"},
	})
	// connectivity depends on the host interfaces; the exchange does not
	assert.True(t, err == nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrPeerConnection), "%v", err)
	if err == nil {
		assert.NotNil(t, e.PeerConnection())
		assert.Equal(t, "pc-123", e.botParticipant().SessionID)
	}
	require.NoError(t, e.Leave(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "offer", received.Type)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "alloy", received.RequestData["voice"])
	var offer sdp.SessionDescription
	require.NoError(t, offer.UnmarshalString(received.SDP))
	var media []string
	for _, m := range offer.MediaDescriptions {
		media = append(media, m.MediaName.Media)
	}
	assert.Equal(t, []string{"audio", "video", "application"}, media)
}

func TestStatsEntries(t *testing.T) {
	report := pionwebrtc.StatsReport{
		"source-a": pionwebrtc.AudioSourceStats{TrackIdentifier: "mic", Kind: "audio", AudioLevel: 0.3},
		"source-b": pionwebrtc.AudioSourceStats{TrackIdentifier: "other", Kind: "audio", AudioLevel: 0.9},
		"in-1":     pionwebrtc.InboundRTPStreamStats{SSRC: 11, Kind: "audio", AudioLevel: 0.6},
		"in-2":     pionwebrtc.InboundRTPStreamStats{SSRC: 22, Kind: "video"},
	}

	sender := senderEntries(report, "mic")
	require.Len(t, sender, 1)
	assert.Equal(t, internal_type.StatsTypeMediaSource, sender[0].Type)
	assert.Equal(t, internal_type.StatsKindAudio, sender[0].Kind)
	assert.InDelta(t, 0.3, *sender[0].AudioLevel, 1e-9)

	receiver := receiverEntries(report, map[pionwebrtc.SSRC]bool{11: true})
	require.Len(t, receiver, 1)
	assert.Equal(t, internal_type.StatsTypeInboundRTP, receiver[0].Type)
	assert.InDelta(t, 0.6, *receiver[0].AudioLevel, 1e-9)

	assert.Empty(t, receiverEntries(report, map[pionwebrtc.SSRC]bool{}))
	assert.Empty(t, senderEntries(report, "missing"))
}
