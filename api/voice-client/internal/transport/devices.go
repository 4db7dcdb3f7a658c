// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transport

import (
	"context"
	"fmt"

	internal_normalizer "github.com/rapidaai/voice-client/api/voice-client/internal/normalizer"
	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
)

func (t *Transport) enumerate(ctx context.Context) (cams, mics, speakers []internal_type.Device, err error) {
	devices, err := t.engine.EnumerateDevices(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	cams, mics, speakers = internal_normalizer.SplitDevices(devices)
	return cams, mics, speakers, nil
}

func (t *Transport) GetAllCams(ctx context.Context) ([]internal_type.Device, error) {
	cams, _, _, err := t.enumerate(ctx)
	return cams, err
}

func (t *Transport) GetAllMics(ctx context.Context) ([]internal_type.Device, error) {
	_, mics, _, err := t.enumerate(ctx)
	return mics, err
}

func (t *Transport) GetAllSpeakers(ctx context.Context) ([]internal_type.Device, error) {
	_, _, speakers, err := t.enumerate(ctx)
	return speakers, err
}

// UpdateCam selects a camera and records the engine's resulting selection.
func (t *Transport) UpdateCam(ctx context.Context, deviceID string) error {
	if err := t.engine.SetCamera(ctx, deviceID); err != nil {
		return fmt.Errorf("failed to set camera %s: %w", deviceID, err)
	}
	return t.refreshSelected(ctx, internal_type.MediaDeviceVideoInput)
}

func (t *Transport) UpdateMic(ctx context.Context, deviceID string) error {
	if err := t.engine.SetAudioDevice(ctx, deviceID); err != nil {
		return fmt.Errorf("failed to set mic %s: %w", deviceID, err)
	}
	return t.refreshSelected(ctx, internal_type.MediaDeviceAudioInput)
}

func (t *Transport) UpdateSpeaker(ctx context.Context, deviceID string) error {
	if err := t.engine.SetSpeaker(ctx, deviceID); err != nil {
		return fmt.Errorf("failed to set speaker %s: %w", deviceID, err)
	}
	return t.refreshSelected(ctx, internal_type.MediaDeviceAudioOutput)
}

func (t *Transport) refreshSelected(ctx context.Context, kind internal_type.MediaDeviceKind) error {
	selected, err := t.engine.InputDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to read selected devices: %w", err)
	}
	switch kind {
	case internal_type.MediaDeviceVideoInput:
		t.normalizer.UpdateSelected(kind, selected.Camera)
	case internal_type.MediaDeviceAudioInput:
		t.normalizer.UpdateSelected(kind, selected.Mic)
	case internal_type.MediaDeviceAudioOutput:
		t.normalizer.UpdateSelected(kind, selected.Speaker)
	}
	return nil
}

func (t *Transport) SelectedCam() internal_type.Device {
	return t.normalizer.Selected().Camera
}

func (t *Transport) SelectedMic() internal_type.Device {
	return t.normalizer.Selected().Mic
}

func (t *Transport) SelectedSpeaker() internal_type.Device {
	return t.normalizer.Selected().Speaker
}

func (t *Transport) EnableMic(enable bool) error {
	t.mu.Lock()
	t.joinOpts.StartAudioOff = !enable
	t.mu.Unlock()
	return t.engine.SetLocalAudio(enable)
}

func (t *Transport) EnableCam(enable bool) error {
	t.mu.Lock()
	t.joinOpts.StartVideoOff = !enable
	t.mu.Unlock()
	return t.engine.SetLocalVideo(enable)
}

func (t *Transport) IsMicEnabled() bool {
	return t.engine.LocalAudio()
}

func (t *Transport) IsCamEnabled() bool {
	return t.engine.LocalVideo()
}

func (t *Transport) EnableScreenShare(ctx context.Context, enable bool) error {
	if enable {
		return t.engine.StartScreenShare(ctx)
	}
	return t.engine.StopScreenShare(ctx)
}

func (t *Transport) IsSharingScreen() bool {
	return t.engine.LocalScreenAudio() || t.engine.LocalScreenVideo()
}

// Tracks projects the current local tracks and, once associated, the bot's.
func (t *Transport) Tracks() internal_type.Tracks {
	participants := t.engine.Participants()
	local := participants[internal_type.LocalParticipantKey]
	tracks := internal_type.Tracks{
		Local: internal_type.LocalTracks{
			Audio:       local.Audio,
			Video:       local.Video,
			ScreenAudio: local.ScreenAudio,
			ScreenVideo: local.ScreenVideo,
		},
	}
	if botID := t.BotID(); botID != "" {
		if bot, ok := participants[botID]; ok {
			tracks.Bot = &internal_type.BotTracks{Audio: bot.Audio, Video: bot.Video}
		}
	}
	return tracks
}
