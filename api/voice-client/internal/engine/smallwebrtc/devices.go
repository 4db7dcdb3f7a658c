// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_smallwebrtc

import (
	"context"
	"fmt"

	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
)

func (e *Engine) EnumerateDevices(context.Context) ([]internal_type.Device, error) {
	return append([]internal_type.Device(nil), e.config.Devices...), nil
}

func (e *Engine) InputDevices(context.Context) (internal_type.SelectedDevices, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected, nil
}

func (e *Engine) SetCamera(_ context.Context, deviceID string) error {
	return e.selectDevice(internal_type.MediaDeviceVideoInput, deviceID)
}

func (e *Engine) SetAudioDevice(_ context.Context, deviceID string) error {
	return e.selectDevice(internal_type.MediaDeviceAudioInput, deviceID)
}

func (e *Engine) SetSpeaker(_ context.Context, deviceID string) error {
	return e.selectDevice(internal_type.MediaDeviceAudioOutput, deviceID)
}

func (e *Engine) selectDevice(kind internal_type.MediaDeviceKind, deviceID string) error {
	e.mu.Lock()
	device, ok := e.findDevice(kind, deviceID)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s %s", ErrUnknownDevice, kind, deviceID)
	}
	switch kind {
	case internal_type.MediaDeviceVideoInput:
		e.selected.Camera = device
	case internal_type.MediaDeviceAudioInput:
		e.selected.Mic = device
	case internal_type.MediaDeviceAudioOutput:
		e.selected.Speaker = device
	}
	selected := e.selected
	e.mu.Unlock()

	e.emit(internal_type.SelectedDevicesUpdatedEvent{Devices: selected})
	return nil
}

// findDevice must hold e.mu.
func (e *Engine) findDevice(kind internal_type.MediaDeviceKind, deviceID string) (internal_type.Device, bool) {
	for _, d := range e.config.Devices {
		if d.Kind == kind && d.DeviceID == deviceID {
			return d, true
		}
	}
	return internal_type.Device{}, false
}

// firstDevice must hold e.mu.
func (e *Engine) firstDevice(kind internal_type.MediaDeviceKind) internal_type.Device {
	for _, d := range e.config.Devices {
		if d.Kind == kind {
			return d
		}
	}
	return internal_type.Device{}
}
