// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transport

import (
	internal_normalizer "github.com/rapidaai/voice-client/api/voice-client/internal/normalizer"
	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
)

// onEngineEvent is the engine listener. Events are queued so they are
// handled in arrival order on the notifier goroutine.
func (t *Transport) onEngineEvent(ev internal_type.EngineEvent) {
	if ev == nil {
		return
	}
	t.notifier.enqueue(func() { t.handleEvent(ev) })
}

func (t *Transport) handleEvent(ev internal_type.EngineEvent) {
	t.metrics.ObserveEngineEvent(string(ev.EventName()))

	switch e := ev.(type) {
	case internal_type.ParticipantJoinedEvent:
		t.handleParticipantJoined(e)
	case internal_type.ParticipantLeftEvent:
		t.handleParticipantLeft(e)
	case internal_type.TrackStartedEvent:
		t.handleTrackStarted(e)
	case internal_type.TrackStoppedEvent:
		t.notify(func(cb *internal_type.Callbacks) { t.normalizer.HandleTrackStopped(e, cb) })
	case internal_type.AvailableDevicesUpdatedEvent:
		t.notify(func(cb *internal_type.Callbacks) { t.normalizer.HandleAvailableDevices(e, cb) })
	case internal_type.SelectedDevicesUpdatedEvent:
		t.notify(func(cb *internal_type.Callbacks) { t.normalizer.HandleSelectedDevices(e, cb) })
	case internal_type.CameraErrorEvent:
		t.notify(func(cb *internal_type.Callbacks) { t.normalizer.HandleDeviceError(e, cb) })
	case internal_type.LocalAudioLevelEvent:
		t.notify(func(cb *internal_type.Callbacks) { t.normalizer.HandleLocalAudioLevel(e, cb) })
	case internal_type.RemoteAudioLevelEvent:
		participants := t.engine.Participants()
		t.notify(func(cb *internal_type.Callbacks) { t.normalizer.HandleRemoteAudioLevel(e, participants, cb) })
	case internal_type.AppMessageEvent:
		t.handleAppMessage(e)
	case internal_type.LeftMeetingEvent:
		t.handleLeftMeeting()
	case internal_type.FatalErrorEvent:
		t.handleFatalError(e)
	case internal_type.NonFatalErrorEvent:
		t.notify(func(cb *internal_type.Callbacks) { t.normalizer.HandleNonFatalError(e, cb) })
	default:
		t.logger.Debugw("ignoring engine event", "event", ev.EventName())
	}
}

// handleParticipantJoined associates the first remote participant as the bot.
func (t *Transport) handleParticipantJoined(e internal_type.ParticipantJoinedEvent) {
	p := e.Participant.ToParticipant()
	if !p.Local {
		t.mu.Lock()
		if t.botID == "" {
			t.botID = e.Participant.SessionID
		}
		t.mu.Unlock()
	}
	t.notify(func(cb *internal_type.Callbacks) {
		if cb.OnParticipantJoined != nil {
			cb.OnParticipantJoined(p)
		}
		if !p.Local && cb.OnBotConnected != nil {
			cb.OnBotConnected(p)
		}
	})
}

func (t *Transport) handleParticipantLeft(e internal_type.ParticipantLeftEvent) {
	p := e.Participant.ToParticipant()
	if !p.Local {
		t.mu.Lock()
		if t.botID == e.Participant.SessionID {
			t.botID = ""
		}
		t.mu.Unlock()
	}
	t.notify(func(cb *internal_type.Callbacks) {
		if cb.OnParticipantLeft != nil {
			cb.OnParticipantLeft(p)
		}
		if !p.Local && cb.OnBotDisconnected != nil {
			cb.OnBotDisconnected(p)
		}
	})
}

// handleTrackStarted releases a pending ready handshake on the first remote track.
func (t *Transport) handleTrackStarted(e internal_type.TrackStartedEvent) {
	if e.Participant != nil && !e.Participant.Local {
		t.mu.Lock()
		t.session.markBotTrack()
		t.mu.Unlock()
	}
	t.notify(func(cb *internal_type.Callbacks) { t.normalizer.HandleTrackStarted(e, cb) })
}

// handleAppMessage bubbles up messages carrying the protocol label.
func (t *Transport) handleAppMessage(e internal_type.AppMessageEvent) {
	msg, ok := internal_normalizer.ParseAppMessage(e.Data)
	if !ok {
		return
	}
	t.metrics.ObserveMessage(string(msg.Type))
	t.mu.Lock()
	handler := t.onMessage
	t.mu.Unlock()
	if handler == nil {
		return
	}
	t.notifier.enqueue(func() { handler(msg) })
}

// handleLeftMeeting finalizes a disconnect, or walks an active session
// through disconnecting to disconnected when the engine leaves on its own.
// The confirmation of a Leave issued for a session that has since been
// replaced only releases that session.
func (t *Transport) handleLeftMeeting() {
	t.mu.Lock()
	if leaving := t.leaving; leaving != nil {
		t.leaving = nil
		leaving.markLeft()
		if leaving != t.session {
			t.mu.Unlock()
			t.logger.Debugw("leave confirmed for a replaced session")
			return
		}
	}
	sess := t.session
	sess.markLeft()
	sess.end()
	t.botID = ""
	state := t.stateLocked()
	switch state {
	case internal_type.TransportStateDisconnected:
		t.mu.Unlock()
		return
	case internal_type.TransportStateDisconnecting, internal_type.TransportStateError:
	default:
		t.mustTransitionLocked(internal_type.TransportStateDisconnecting)
	}
	t.mustTransitionLocked(internal_type.TransportStateDisconnected)
	t.notify(func(cb *internal_type.Callbacks) {
		if cb.OnDisconnected != nil {
			cb.OnDisconnected()
		}
	})
	t.stopObserverLocked()
	t.mu.Unlock()
}

// handleFatalError forces the error state and reports one fatal error.
func (t *Transport) handleFatalError(e internal_type.FatalErrorEvent) {
	t.logger.Errorw("engine fatal error", "message", e.Message)
	t.mu.Lock()
	t.session.end()
	t.botID = ""
	t.stopObserverLocked()
	if state := t.stateLocked(); state != internal_type.TransportStateDisconnected {
		t.mustTransitionLocked(internal_type.TransportStateError)
	}
	msg := internal_type.ErrorMessage(e.Message, true)
	t.notify(func(cb *internal_type.Callbacks) {
		if cb.OnError != nil {
			cb.OnError(msg)
		}
	})
	t.mu.Unlock()
}
