// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_enginetest provides a scriptable in-memory engine for
// transport and client tests.
package internal_enginetest

import (
	"context"
	"sync"
	"time"

	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
)

// Engine records calls and lets tests emit events. Hooks left nil succeed.
type Engine struct {
	mu      sync.Mutex
	handler internal_type.EngineEventHandler

	JoinFunc             func(ctx context.Context, opts internal_type.JoinOptions) error
	LeaveFunc            func(ctx context.Context) error
	StartCameraErr       error
	EnumerateErr         error
	SendErr              error
	ScreenShareErr       error
	EmitLeftOnLeave      bool
	LocalLevelsOnlyStats bool

	devices      []internal_type.Device
	selected     internal_type.SelectedDevices
	localAudio   bool
	localVideo   bool
	screenVideo  bool
	participants map[string]internal_type.ParticipantState
	pc           internal_type.PeerConnection

	joins  []internal_type.JoinOptions
	leaves int
	calls  map[string]int
	sent   chan *internal_type.Message
}

func New() *Engine {
	return &Engine{
		localAudio:   true,
		participants: map[string]internal_type.ParticipantState{internal_type.LocalParticipantKey: {EngineParticipant: internal_type.EngineParticipant{SessionID: "local-session", UserID: "local", UserName: "me", Local: true}}},
		calls:        map[string]int{},
		sent:         make(chan *internal_type.Message, 64),
	}
}

func (e *Engine) record(name string) {
	e.mu.Lock()
	e.calls[name]++
	e.mu.Unlock()
}

// Calls returns how often the named method ran.
func (e *Engine) Calls(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[name]
}

func (e *Engine) SetDevices(devices []internal_type.Device, selected internal_type.SelectedDevices) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.devices = devices
	e.selected = selected
}

func (e *Engine) SetPeerConnection(pc internal_type.PeerConnection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pc = pc
}

// AddParticipant registers a participant so level and track lookups find it.
func (e *Engine) AddParticipant(p internal_type.ParticipantState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.participants[p.SessionID] = p
}

// Emit delivers ev to the registered handler synchronously.
func (e *Engine) Emit(ev internal_type.EngineEvent) {
	e.mu.Lock()
	h := e.handler
	e.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (e *Engine) Joins() []internal_type.JoinOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]internal_type.JoinOptions(nil), e.joins...)
}

// NextSent waits for the next message sent through SendAppMessage.
func (e *Engine) NextSent(timeout time.Duration) (*internal_type.Message, bool) {
	select {
	case m := <-e.sent:
		return m, true
	case <-time.After(timeout):
		return nil, false
	}
}

func (e *Engine) Preauth(context.Context, internal_type.JoinOptions) error {
	e.record("Preauth")
	return nil
}

func (e *Engine) StartCamera(context.Context, internal_type.JoinOptions) error {
	e.record("StartCamera")
	return e.StartCameraErr
}

func (e *Engine) Join(ctx context.Context, opts internal_type.JoinOptions) error {
	e.record("Join")
	e.mu.Lock()
	e.joins = append(e.joins, opts)
	e.localAudio = !opts.StartAudioOff
	e.localVideo = !opts.StartVideoOff
	fn := e.JoinFunc
	e.mu.Unlock()
	if fn != nil {
		return fn(ctx, opts)
	}
	return nil
}

func (e *Engine) Leave(ctx context.Context) error {
	e.record("Leave")
	e.mu.Lock()
	e.leaves++
	fn := e.LeaveFunc
	emit := e.EmitLeftOnLeave
	e.mu.Unlock()
	var err error
	if fn != nil {
		err = fn(ctx)
	}
	if emit {
		e.Emit(internal_type.LeftMeetingEvent{})
	}
	return err
}

func (e *Engine) Destroy(context.Context) error {
	e.record("Destroy")
	return nil
}

func (e *Engine) EnumerateDevices(context.Context) ([]internal_type.Device, error) {
	e.record("EnumerateDevices")
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.EnumerateErr != nil {
		return nil, e.EnumerateErr
	}
	return append([]internal_type.Device(nil), e.devices...), nil
}

func (e *Engine) InputDevices(context.Context) (internal_type.SelectedDevices, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected, nil
}

func (e *Engine) find(id string) internal_type.Device {
	for _, d := range e.devices {
		if d.DeviceID == id {
			return d
		}
	}
	return internal_type.Device{DeviceID: id}
}

func (e *Engine) SetCamera(_ context.Context, deviceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selected.Camera = e.find(deviceID)
	return nil
}

func (e *Engine) SetAudioDevice(_ context.Context, deviceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selected.Mic = e.find(deviceID)
	return nil
}

func (e *Engine) SetSpeaker(_ context.Context, deviceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selected.Speaker = e.find(deviceID)
	return nil
}

func (e *Engine) SetLocalAudio(enable bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.localAudio = enable
	return nil
}

func (e *Engine) SetLocalVideo(enable bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.localVideo = enable
	return nil
}

func (e *Engine) LocalAudio() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.localAudio
}

func (e *Engine) LocalVideo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.localVideo
}

func (e *Engine) StartScreenShare(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ScreenShareErr != nil {
		return e.ScreenShareErr
	}
	e.screenVideo = true
	return nil
}

func (e *Engine) StopScreenShare(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.screenVideo = false
	return nil
}

func (e *Engine) LocalScreenAudio() bool { return false }

func (e *Engine) LocalScreenVideo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.screenVideo
}

func (e *Engine) Participants() map[string]internal_type.ParticipantState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]internal_type.ParticipantState, len(e.participants))
	for k, v := range e.participants {
		out[k] = v
	}
	return out
}

func (e *Engine) SendAppMessage(_ context.Context, data interface{}) error {
	e.record("SendAppMessage")
	e.mu.Lock()
	err := e.SendErr
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if m, ok := data.(*internal_type.Message); ok {
		select {
		case e.sent <- m:
		default:
		}
	}
	return nil
}

func (e *Engine) On(handler internal_type.EngineEventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = handler
}

// PeerConnection implements internal_type.StatsProvider; nil unless set.
func (e *Engine) PeerConnection() internal_type.PeerConnection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pc
}

func (e *Engine) LocalLevelsOnly() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.LocalLevelsOnlyStats
}

// Bot returns a remote participant suitable for join and track events.
func Bot() internal_type.EngineParticipant {
	return internal_type.EngineParticipant{SessionID: "bot-session", UserID: "bot", UserName: "Bot"}
}

// BotTrackStarted emits the remote audio track the ready handshake waits for.
func (e *Engine) BotTrackStarted() {
	bot := Bot()
	e.Emit(internal_type.TrackStartedEvent{
		Type:        internal_type.TrackKindAudio,
		Track:       &internal_type.Track{ID: "bot-audio", Kind: internal_type.TrackKindAudio},
		Participant: &bot,
	})
}
