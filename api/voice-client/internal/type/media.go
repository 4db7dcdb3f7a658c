// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_type

// Participant is a read-only projection of an engine participant.
type Participant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Local bool   `json:"local"`
}

// MediaDeviceKind follows the browser media device kinds.
type MediaDeviceKind string

const (
	MediaDeviceAudioInput  MediaDeviceKind = "audioinput"
	MediaDeviceVideoInput  MediaDeviceKind = "videoinput"
	MediaDeviceAudioOutput MediaDeviceKind = "audiooutput"
)

// Device identifies a media device. DeviceID is stable for a session.
type Device struct {
	DeviceID string          `json:"deviceId"`
	Label    string          `json:"label"`
	Kind     MediaDeviceKind `json:"kind"`
	GroupID  string          `json:"groupId,omitempty"`
}

// IsZero reports whether no device is set.
func (d Device) IsZero() bool {
	return d.DeviceID == ""
}

// SelectedDevices is the current selection per device class.
type SelectedDevices struct {
	Camera  Device
	Mic     Device
	Speaker Device
}

// TrackKind is the media kind of a track.
type TrackKind string

const (
	TrackKindAudio       TrackKind = "audio"
	TrackKindVideo       TrackKind = "video"
	TrackKindScreenAudio TrackKind = "screenAudio"
	TrackKindScreenVideo TrackKind = "screenVideo"
)

// IsScreen reports whether the kind belongs to a screen share.
func (k TrackKind) IsScreen() bool {
	return k == TrackKindScreenAudio || k == TrackKindScreenVideo
}

// Track is an engine media track. Source holds the engine-native handle.
type Track struct {
	ID     string
	Kind   TrackKind
	Source interface{}
}

// TrackEvent is a started/stopped track. Participant is nil for pre-join tracks.
type TrackEvent struct {
	Kind        TrackKind
	Track       *Track
	Participant *Participant
}

// LocalTracks are the tracks published by the local participant.
type LocalTracks struct {
	Audio       *Track
	Video       *Track
	ScreenAudio *Track
	ScreenVideo *Track
}

// BotTracks are the tracks received from the bot.
type BotTracks struct {
	Audio *Track
	Video *Track
}

// Tracks is a projection of the current local and bot tracks.
type Tracks struct {
	Local LocalTracks
	Bot   *BotTracks
}

// AudioLevelSample is a level in [0,1] attributed to a participant.
type AudioLevelSample struct {
	Level       float64
	Participant Participant
}
