// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_type

import "context"

// JoinOptions are passed to the engine on join. URL and Token are the
// normalized connection parameters, Extra carries the remaining keys.
type JoinOptions struct {
	URL           string
	Token         string
	Extra         map[string]interface{}
	StartAudioOff bool
	StartVideoOff bool
}

// EngineParticipant is the engine view of a participant. SessionID is the
// connection scoped id used for bot association.
type EngineParticipant struct {
	SessionID string
	UserID    string
	UserName  string
	Local     bool
}

// ToParticipant projects the engine participant into the domain type.
func (p EngineParticipant) ToParticipant() Participant {
	return Participant{ID: p.UserID, Name: p.UserName, Local: p.Local}
}

// ParticipantState is an engine participant together with its tracks.
type ParticipantState struct {
	EngineParticipant
	Audio       *Track
	Video       *Track
	ScreenAudio *Track
	ScreenVideo *Track
}

// Engine is the media engine the transport drives. Implementations must be
// safe for concurrent use and deliver events to the registered handler.
type Engine interface {
	Preauth(ctx context.Context, opts JoinOptions) error
	StartCamera(ctx context.Context, opts JoinOptions) error
	Join(ctx context.Context, opts JoinOptions) error
	Leave(ctx context.Context) error
	Destroy(ctx context.Context) error

	EnumerateDevices(ctx context.Context) ([]Device, error)
	InputDevices(ctx context.Context) (SelectedDevices, error)
	SetCamera(ctx context.Context, deviceID string) error
	SetAudioDevice(ctx context.Context, deviceID string) error
	SetSpeaker(ctx context.Context, deviceID string) error

	SetLocalAudio(enable bool) error
	SetLocalVideo(enable bool) error
	LocalAudio() bool
	LocalVideo() bool
	StartScreenShare(ctx context.Context) error
	StopScreenShare(ctx context.Context) error
	LocalScreenAudio() bool
	LocalScreenVideo() bool

	// Participants is keyed by session id; the local participant is keyed "local".
	Participants() map[string]ParticipantState
	SendAppMessage(ctx context.Context, data interface{}) error

	// On registers the single event handler. Events may be delivered from any goroutine.
	On(handler EngineEventHandler)
}

// LocalParticipantKey is the Participants key of the local participant.
const LocalParticipantKey = "local"

// EngineEventHandler receives raw engine events.
type EngineEventHandler func(EngineEvent)

// EngineEventName names a raw engine event.
type EngineEventName string

const (
	EventParticipantJoined       EngineEventName = "participant-joined"
	EventParticipantLeft         EngineEventName = "participant-left"
	EventTrackStarted            EngineEventName = "track-started"
	EventTrackStopped            EngineEventName = "track-stopped"
	EventAvailableDevicesUpdated EngineEventName = "available-devices-updated"
	EventSelectedDevicesUpdated  EngineEventName = "selected-devices-updated"
	EventCameraError             EngineEventName = "camera-error"
	EventLocalAudioLevel         EngineEventName = "local-audio-level"
	EventRemoteAudioLevel        EngineEventName = "remote-participants-audio-level"
	EventAppMessage              EngineEventName = "app-message"
	EventLeftMeeting             EngineEventName = "left-meeting"
	EventFatalError              EngineEventName = "error"
	EventNonFatalError           EngineEventName = "nonfatal-error"
)

// EngineEvent is one of the event structs below.
type EngineEvent interface {
	EventName() EngineEventName
}

type ParticipantJoinedEvent struct {
	Participant EngineParticipant
}

type ParticipantLeftEvent struct {
	Participant EngineParticipant
}

type TrackStartedEvent struct {
	Type        TrackKind
	Track       *Track
	Participant *EngineParticipant
}

type TrackStoppedEvent struct {
	Type        TrackKind
	Track       *Track
	Participant *EngineParticipant
}

type AvailableDevicesUpdatedEvent struct {
	Devices []Device
}

// SelectedDevicesUpdatedEvent carries the selected device ids per class.
type SelectedDevicesUpdatedEvent struct {
	Devices SelectedDevices
}

// CameraError is the raw engine device failure. The media lists hold
// "video" or "audio".
type CameraError struct {
	Type         string
	Message      string
	BlockedBy    string
	BlockedMedia []string
	MissingMedia []string
	FailedMedia  []string
	Reason       string
}

type CameraErrorEvent struct {
	Error CameraError
}

type LocalAudioLevelEvent struct {
	Level float64
}

// RemoteAudioLevelEvent maps participant session ids to levels.
type RemoteAudioLevelEvent struct {
	Levels map[string]float64
}

type AppMessageEvent struct {
	Data   interface{}
	FromID string
}

type LeftMeetingEvent struct{}

type FatalErrorEvent struct {
	Message string
}

// NonFatalErrorType names a non fatal engine error.
type NonFatalErrorType string

const NonFatalScreenShareError NonFatalErrorType = "screen-share-error"

type NonFatalErrorEvent struct {
	Type    NonFatalErrorType
	Message string
}

func (ParticipantJoinedEvent) EventName() EngineEventName       { return EventParticipantJoined }
func (ParticipantLeftEvent) EventName() EngineEventName         { return EventParticipantLeft }
func (TrackStartedEvent) EventName() EngineEventName            { return EventTrackStarted }
func (TrackStoppedEvent) EventName() EngineEventName            { return EventTrackStopped }
func (AvailableDevicesUpdatedEvent) EventName() EngineEventName { return EventAvailableDevicesUpdated }
func (SelectedDevicesUpdatedEvent) EventName() EngineEventName  { return EventSelectedDevicesUpdated }
func (CameraErrorEvent) EventName() EngineEventName             { return EventCameraError }
func (LocalAudioLevelEvent) EventName() EngineEventName         { return EventLocalAudioLevel }
func (RemoteAudioLevelEvent) EventName() EngineEventName        { return EventRemoteAudioLevel }
func (AppMessageEvent) EventName() EngineEventName              { return EventAppMessage }
func (LeftMeetingEvent) EventName() EngineEventName             { return EventLeftMeeting }
func (FatalErrorEvent) EventName() EngineEventName              { return EventFatalError }
func (NonFatalErrorEvent) EventName() EngineEventName           { return EventNonFatalError }
