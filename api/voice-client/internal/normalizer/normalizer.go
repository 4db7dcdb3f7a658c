// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_normalizer

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	internal_telemetry "github.com/rapidaai/voice-client/api/voice-client/internal/telemetry"
	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
	"github.com/rapidaai/voice-client/pkg/commons"
)

// Normalizer maps raw engine events to domain notifications. It keeps the
// last known device selection so only changed classes are announced.
// Lifecycle events (participants, left-meeting, fatal errors) belong to the
// transport and are not handled here.
type Normalizer struct {
	logger  commons.Logger
	metrics *internal_telemetry.Metrics

	mu       sync.Mutex
	selected internal_type.SelectedDevices
}

func NewNormalizer(logger commons.Logger, metrics *internal_telemetry.Metrics) *Normalizer {
	return &Normalizer{logger: logger, metrics: metrics}
}

// Selected returns the last known device selection.
func (n *Normalizer) Selected() internal_type.SelectedDevices {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.selected
}

// SetSelected records a selection read directly from the engine and
// announces every class, as device initialization does.
func (n *Normalizer) SetSelected(devices internal_type.SelectedDevices, cb *internal_type.Callbacks) {
	n.mu.Lock()
	n.selected = devices
	n.mu.Unlock()
	if cb == nil {
		return
	}
	if cb.OnCamUpdated != nil {
		cb.OnCamUpdated(devices.Camera)
	}
	if cb.OnMicUpdated != nil {
		cb.OnMicUpdated(devices.Mic)
	}
}

// UpdateSelected records one class without notifying.
func (n *Normalizer) UpdateSelected(kind internal_type.MediaDeviceKind, device internal_type.Device) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch kind {
	case internal_type.MediaDeviceVideoInput:
		n.selected.Camera = device
	case internal_type.MediaDeviceAudioInput:
		n.selected.Mic = device
	case internal_type.MediaDeviceAudioOutput:
		n.selected.Speaker = device
	}
}

// HandleSelectedDevices diffs the event against the known selection and
// notifies only the classes whose device id changed.
func (n *Normalizer) HandleSelectedDevices(ev internal_type.SelectedDevicesUpdatedEvent, cb *internal_type.Callbacks) {
	n.mu.Lock()
	camChanged := n.selected.Camera.DeviceID != ev.Devices.Camera.DeviceID
	micChanged := n.selected.Mic.DeviceID != ev.Devices.Mic.DeviceID
	speakerChanged := n.selected.Speaker.DeviceID != ev.Devices.Speaker.DeviceID
	if camChanged {
		n.selected.Camera = ev.Devices.Camera
	}
	if micChanged {
		n.selected.Mic = ev.Devices.Mic
	}
	if speakerChanged {
		n.selected.Speaker = ev.Devices.Speaker
	}
	n.mu.Unlock()

	if cb == nil {
		return
	}
	if camChanged && cb.OnCamUpdated != nil {
		cb.OnCamUpdated(ev.Devices.Camera)
	}
	if micChanged && cb.OnMicUpdated != nil {
		cb.OnMicUpdated(ev.Devices.Mic)
	}
	if speakerChanged && cb.OnSpeakerUpdated != nil {
		cb.OnSpeakerUpdated(ev.Devices.Speaker)
	}
}

// SplitDevices partitions devices into cams, mics and speakers.
func SplitDevices(devices []internal_type.Device) (cams, mics, speakers []internal_type.Device) {
	cams, mics, speakers = []internal_type.Device{}, []internal_type.Device{}, []internal_type.Device{}
	for _, d := range devices {
		switch d.Kind {
		case internal_type.MediaDeviceVideoInput:
			cams = append(cams, d)
		case internal_type.MediaDeviceAudioInput:
			mics = append(mics, d)
		case internal_type.MediaDeviceAudioOutput:
			speakers = append(speakers, d)
		}
	}
	return cams, mics, speakers
}

func (n *Normalizer) HandleAvailableDevices(ev internal_type.AvailableDevicesUpdatedEvent, cb *internal_type.Callbacks) {
	if cb == nil {
		return
	}
	cams, mics, speakers := SplitDevices(ev.Devices)
	if cb.OnAvailableCamsUpdated != nil {
		cb.OnAvailableCamsUpdated(cams)
	}
	if cb.OnAvailableMicsUpdated != nil {
		cb.OnAvailableMicsUpdated(mics)
	}
	if cb.OnAvailableSpeakersUpdated != nil {
		cb.OnAvailableSpeakersUpdated(speakers)
	}
}

func (n *Normalizer) HandleDeviceError(ev internal_type.CameraErrorEvent, cb *internal_type.Callbacks) {
	deviceErr := ClassifyDeviceError(ev.Error)
	n.metrics.ObserveDeviceError(string(deviceErr.Type))
	n.logger.Warnw("device error", "type", deviceErr.Type, "devices", deviceErr.Devices, "message", deviceErr.Message)
	if cb != nil && cb.OnDeviceError != nil {
		cb.OnDeviceError(deviceErr)
	}
}

// ClassifyDeviceError maps a raw engine device failure to a DeviceError. The
// mapping is total: the affected set is never empty.
func ClassifyDeviceError(raw internal_type.CameraError) *internal_type.DeviceError {
	var (
		devices []internal_type.DeviceKind
		kind    internal_type.DeviceErrorType
		details map[string]interface{}
	)
	switch raw.Type {
	case "permissions":
		kind = internal_type.DeviceErrorPermissions
		devices = devicesFromMedia(raw.BlockedMedia)
		details = map[string]interface{}{"blockedBy": raw.BlockedBy}
	case "not-found":
		kind = internal_type.DeviceErrorNotFound
		devices = devicesFromMedia(raw.MissingMedia)
	case "constraints":
		kind = internal_type.DeviceErrorConstraints
		devices = devicesFromMedia(raw.FailedMedia)
		details = map[string]interface{}{"reason": raw.Reason}
	case "cam-in-use":
		kind = internal_type.DeviceErrorInUse
		devices = []internal_type.DeviceKind{internal_type.DeviceCam}
	case "mic-in-use":
		kind = internal_type.DeviceErrorInUse
		devices = []internal_type.DeviceKind{internal_type.DeviceMic}
	case "cam-mic-in-use":
		kind = internal_type.DeviceErrorInUse
		devices = []internal_type.DeviceKind{internal_type.DeviceCam, internal_type.DeviceMic}
	case "undefined-mediadevices":
		kind = internal_type.DeviceErrorUndefinedMediaDevices
	case "unknown":
		kind = internal_type.DeviceErrorUnknown
	default:
		kind = internal_type.DeviceErrorUnknown
		details = map[string]interface{}{"type": raw.Type}
	}
	if len(devices) == 0 {
		devices = []internal_type.DeviceKind{internal_type.DeviceCam, internal_type.DeviceMic}
	}
	return &internal_type.DeviceError{
		Devices: devices,
		Type:    kind,
		Message: raw.Message,
		Details: details,
	}
}

// devicesFromMedia maps "video" to cam and any other medium to mic.
func devicesFromMedia(media []string) []internal_type.DeviceKind {
	var devices []internal_type.DeviceKind
	seen := map[internal_type.DeviceKind]bool{}
	for _, m := range media {
		d := internal_type.DeviceMic
		if m == "video" {
			d = internal_type.DeviceCam
		}
		if !seen[d] {
			seen[d] = true
			devices = append(devices, d)
		}
	}
	return devices
}

func participantOf(p *internal_type.EngineParticipant) *internal_type.Participant {
	if p == nil {
		return nil
	}
	out := p.ToParticipant()
	return &out
}

// HandleTrackStarted routes screen tracks and camera/mic tracks to distinct
// notifications.
func (n *Normalizer) HandleTrackStarted(ev internal_type.TrackStartedEvent, cb *internal_type.Callbacks) {
	if cb == nil {
		return
	}
	p := participantOf(ev.Participant)
	if ev.Type.IsScreen() {
		if cb.OnScreenTrackStarted != nil {
			cb.OnScreenTrackStarted(ev.Track, p)
		}
		return
	}
	if cb.OnTrackStarted != nil {
		cb.OnTrackStarted(ev.Track, p)
	}
}

func (n *Normalizer) HandleTrackStopped(ev internal_type.TrackStoppedEvent, cb *internal_type.Callbacks) {
	if cb == nil {
		return
	}
	p := participantOf(ev.Participant)
	if ev.Type.IsScreen() {
		if cb.OnScreenTrackStopped != nil {
			cb.OnScreenTrackStopped(ev.Track, p)
		}
		return
	}
	if cb.OnTrackStopped != nil {
		cb.OnTrackStopped(ev.Track, p)
	}
}

func (n *Normalizer) HandleLocalAudioLevel(ev internal_type.LocalAudioLevelEvent, cb *internal_type.Callbacks) {
	if cb != nil && cb.OnLocalAudioLevel != nil {
		cb.OnLocalAudioLevel(ev.Level)
	}
}

// HandleRemoteAudioLevel reports non-silent levels of known participants.
func (n *Normalizer) HandleRemoteAudioLevel(ev internal_type.RemoteAudioLevelEvent, participants map[string]internal_type.ParticipantState, cb *internal_type.Callbacks) {
	if cb == nil || cb.OnRemoteAudioLevel == nil {
		return
	}
	ids := make([]string, 0, len(ev.Levels))
	for id := range ev.Levels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		level := ev.Levels[id]
		p, ok := participants[id]
		if level == 0 || !ok {
			continue
		}
		cb.OnRemoteAudioLevel(level, p.ToParticipant())
	}
}

// HandleNonFatalError reports known non fatal errors without any state change.
func (n *Normalizer) HandleNonFatalError(ev internal_type.NonFatalErrorEvent, cb *internal_type.Callbacks) {
	switch ev.Type {
	case internal_type.NonFatalScreenShareError:
		n.logger.Warnw("screen share error", "message", ev.Message)
		if cb != nil && cb.OnScreenShareError != nil {
			cb.OnScreenShareError(ev.Message)
		}
	default:
		n.logger.Debugw("ignoring non fatal engine error", "type", ev.Type, "message", ev.Message)
	}
}

// ParseAppMessage extracts a protocol message from an app-message payload.
// It returns false for payloads that do not carry the protocol label.
func ParseAppMessage(data interface{}) (*internal_type.Message, bool) {
	msg, err := toMessage(data)
	if err != nil || !msg.IsProtocolMessage() {
		return nil, false
	}
	return msg, true
}

func toMessage(data interface{}) (*internal_type.Message, error) {
	switch v := data.(type) {
	case *internal_type.Message:
		if v == nil {
			return nil, fmt.Errorf("nil message")
		}
		return v, nil
	case internal_type.Message:
		return &v, nil
	case []byte:
		return unmarshalMessage(v)
	case json.RawMessage:
		return unmarshalMessage(v)
	case string:
		return unmarshalMessage([]byte(v))
	default:
		var msg internal_type.Message
		if err := internal_type.DecodeData(v, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	}
}

func unmarshalMessage(raw []byte) (*internal_type.Message, error) {
	var msg internal_type.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid app message: %w", err)
	}
	return &msg, nil
}
