// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package voice_client

import (
	"github.com/prometheus/client_golang/prometheus"
	internal_smallwebrtc "github.com/rapidaai/voice-client/api/voice-client/internal/engine/smallwebrtc"
	internal_websocket "github.com/rapidaai/voice-client/api/voice-client/internal/engine/websocket"
	internal_telemetry "github.com/rapidaai/voice-client/api/voice-client/internal/telemetry"
	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
	"github.com/rapidaai/voice-client/pkg/commons"
)

type (
	Engine         = internal_type.Engine
	Callbacks      = internal_type.Callbacks
	Message        = internal_type.Message
	MessageType    = internal_type.MessageType
	TransportState = internal_type.TransportState
	Participant    = internal_type.Participant
	Device         = internal_type.Device
	Tracks         = internal_type.Tracks

	BotReadyData        = internal_type.BotReadyData
	ErrorData           = internal_type.ErrorData
	MetricsData         = internal_type.MetricsData
	TranscriptData      = internal_type.TranscriptData
	BotLLMTextData      = internal_type.BotLLMTextData
	BotTTSTextData      = internal_type.BotTTSTextData
	LLMFunctionCallData = internal_type.LLMFunctionCallData
	LLMContextMessage   = internal_type.LLMContextMessage
	SendTextOptions     = internal_type.SendTextOptions

	StartBotError          = internal_type.StartBotError
	TransportStartError    = internal_type.TransportStartError
	ConnectionTimeoutError = internal_type.ConnectionTimeoutError
	MessageError           = internal_type.MessageError

	Metrics = internal_telemetry.Metrics

	SmallWebRTCConfig = internal_smallwebrtc.Config
	ICEServer         = internal_smallwebrtc.ICEServer
	WebSocketConfig   = internal_websocket.Config
)

var (
	ErrTransportNotInitialized = internal_type.ErrTransportNotInitialized
	ErrBotNotReady             = internal_type.ErrBotNotReady
	ErrBotAlreadyStarted       = internal_type.ErrBotAlreadyStarted
	ErrMessageTimeout          = internal_type.ErrMessageTimeout
)

const (
	StateDisconnected   = internal_type.TransportStateDisconnected
	StateInitializing   = internal_type.TransportStateInitializing
	StateInitialized    = internal_type.TransportStateInitialized
	StateAuthenticating = internal_type.TransportStateAuthenticating
	StateAuthenticated  = internal_type.TransportStateAuthenticated
	StateConnecting     = internal_type.TransportStateConnecting
	StateConnected      = internal_type.TransportStateConnected
	StateReady          = internal_type.TransportStateReady
	StateDisconnecting  = internal_type.TransportStateDisconnecting
	StateError          = internal_type.TransportStateError
)

// NewMetrics registers the client collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return internal_telemetry.NewMetrics(reg)
}

func DefaultSmallWebRTCConfig() *SmallWebRTCConfig {
	return internal_smallwebrtc.DefaultConfig()
}

func DefaultWebSocketConfig() *WebSocketConfig {
	return internal_websocket.DefaultConfig()
}

// NewSmallWebRTCEngine builds the peer to peer engine that negotiates with
// the bot through an SDP offer endpoint.
func NewSmallWebRTCEngine(logger commons.Logger, config *SmallWebRTCConfig) Engine {
	return internal_smallwebrtc.NewEngine(logger, config)
}

// NewWebSocketEngine builds the message only engine.
func NewWebSocketEngine(logger commons.Logger, config *WebSocketConfig) Engine {
	return internal_websocket.NewEngine(logger, config)
}
