// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_type

import (
	"errors"
	"fmt"
	"strings"
)

// RTVIError is the base error of the client with an optional HTTP-like status.
type RTVIError struct {
	Message string
	Status  int
}

func (e *RTVIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	return e.Message
}

var (
	ErrTransportNotInitialized = errors.New("transport instance not initialized")
	ErrBotNotReady             = errors.New("attempt to call action on transport when not in 'ready' state")
	ErrBotAlreadyStarted       = errors.New("bot already started or in the process of starting")
	ErrDevicesAlreadyInit      = errors.New("devices already initialized")
	ErrConnectAborted          = errors.New("connect aborted")

	ErrMessageTimeout         = errors.New("message timed out")
	ErrDispatcherDisconnected = errors.New("dispatcher disconnected")
)

// InvalidTransportParamsError is returned for connection parameters that are
// not an object.
type InvalidTransportParamsError struct {
	Reason string
}

func (e *InvalidTransportParamsError) Error() string {
	if e.Reason == "" {
		return "invalid connection parameters"
	}
	return "invalid connection parameters: " + e.Reason
}

// TransportStartError wraps an engine join failure.
type TransportStartError struct {
	Err error
}

func (e *TransportStartError) Error() string {
	if e.Err == nil {
		return "unable to connect to transport"
	}
	return "unable to connect to transport: " + e.Err.Error()
}

func (e *TransportStartError) Unwrap() error {
	return e.Err
}

// StartBotError is returned when the bootstrap service rejects the request.
type StartBotError struct {
	Status  int
	Message string
	Err     error
}

func (e *StartBotError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "failed to start bot"
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *StartBotError) Unwrap() error {
	return e.Err
}

// ConnectionTimeoutError is returned when a connect step does not finish in time.
type ConnectionTimeoutError struct {
	Step string
}

func (e *ConnectionTimeoutError) Error() string {
	if e.Step == "" {
		return "bot did not enter ready state within the specified timeout period"
	}
	return "timed out waiting for " + e.Step
}

// UnsupportedFeatureError is returned by backends that lack a capability.
type UnsupportedFeatureError struct {
	Feature string
	Source  string
	Message string
}

func (e *UnsupportedFeatureError) Error() string {
	msg := fmt.Sprintf("%s not supported", e.Feature)
	if e.Source != "" {
		msg = fmt.Sprintf("%s by %s", msg, e.Source)
	}
	if e.Message != "" {
		msg = msg + ": " + e.Message
	}
	return msg
}

// DisabledMethodError is returned by the engine proxy for lifecycle calls.
type DisabledMethodError struct {
	Method string
	Use    string
}

func (e *DisabledMethodError) Error() string {
	if e.Use == "" {
		return fmt.Sprintf("calls to %s() are disabled", e.Method)
	}
	return fmt.Sprintf("calls to %s() are disabled, use %s instead", e.Method, e.Use)
}

// MessageError carries the error-response that rejected a request.
type MessageError struct {
	Message *Message
}

func (e *MessageError) Error() string {
	if e.Message == nil {
		return "message rejected"
	}
	var data ErrorData
	if err := e.Message.Decode(&data); err == nil && data.Message != "" {
		return fmt.Sprintf("message %s rejected: %s", e.Message.ID, data.Message)
	}
	return fmt.Sprintf("message %s rejected", e.Message.ID)
}

// DeviceKind is an affected device class of a DeviceError.
type DeviceKind string

const (
	DeviceCam     DeviceKind = "cam"
	DeviceMic     DeviceKind = "mic"
	DeviceSpeaker DeviceKind = "speaker"
)

// DeviceErrorType classifies a DeviceError.
type DeviceErrorType string

const (
	DeviceErrorInUse                 DeviceErrorType = "in-use"
	DeviceErrorPermissions           DeviceErrorType = "permissions"
	DeviceErrorNotFound              DeviceErrorType = "not-found"
	DeviceErrorConstraints           DeviceErrorType = "constraints"
	DeviceErrorUndefinedMediaDevices DeviceErrorType = "undefined-mediadevices"
	DeviceErrorUnknown               DeviceErrorType = "unknown"
)

// DeviceError reports a device failure. Devices is never empty.
type DeviceError struct {
	Devices []DeviceKind
	Type    DeviceErrorType
	Message string
	Details map[string]interface{}
}

func (e *DeviceError) Error() string {
	kinds := make([]string, len(e.Devices))
	for i, d := range e.Devices {
		kinds[i] = string(d)
	}
	msg := e.Message
	if msg == "" {
		msg = "device error"
	}
	return fmt.Sprintf("%s [%s]: %s", e.Type, strings.Join(kinds, ","), msg)
}

// Affects reports whether the error names the given device class.
func (e *DeviceError) Affects(kind DeviceKind) bool {
	for _, d := range e.Devices {
		if d == kind {
			return true
		}
	}
	return false
}
