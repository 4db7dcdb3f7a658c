// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_type

// Callbacks is the notification surface of the client. Every field is
// optional and is invoked only when set.
type Callbacks struct {
	// local connection state
	OnConnected             func()
	OnDisconnected          func()
	OnTransportStateChanged func(state TransportState)

	// remote connection state
	OnBotStarted      func(response interface{})
	OnBotConnected    func(participant Participant)
	OnBotReady        func(data BotReadyData)
	OnBotDisconnected func(participant Participant)
	OnError           func(message *Message)

	// server messaging
	OnServerMessage func(data interface{})
	OnMessageError  func(message *Message)

	// service events
	OnMetrics              func(data MetricsData)
	OnBotStartedSpeaking   func()
	OnBotStoppedSpeaking   func()
	OnUserStartedSpeaking  func()
	OnUserStoppedSpeaking  func()
	OnUserTranscript       func(data TranscriptData)
	OnBotTranscript        func(data BotLLMTextData)
	OnBotLLMText           func(data BotLLMTextData)
	OnBotLLMStarted        func()
	OnBotLLMStopped        func()
	OnLLMFunctionCall      func(data LLMFunctionCallData)
	OnBotLLMSearchResponse func(data BotLLMSearchResponseData)
	OnBotTTSText           func(data BotTTSTextData)
	OnBotTTSStarted        func()
	OnBotTTSStopped        func()

	// participants
	OnParticipantJoined func(participant Participant)
	OnParticipantLeft   func(participant Participant)

	// media
	OnTrackStarted       func(track *Track, participant *Participant)
	OnTrackStopped       func(track *Track, participant *Participant)
	OnScreenTrackStarted func(track *Track, participant *Participant)
	OnScreenTrackStopped func(track *Track, participant *Participant)
	OnScreenShareError   func(message string)
	OnLocalAudioLevel    func(level float64)
	OnRemoteAudioLevel   func(level float64, participant Participant)

	// devices
	OnAvailableCamsUpdated     func(cams []Device)
	OnAvailableMicsUpdated     func(mics []Device)
	OnAvailableSpeakersUpdated func(speakers []Device)
	OnCamUpdated               func(cam Device)
	OnMicUpdated               func(mic Device)
	OnSpeakerUpdated           func(speaker Device)
	OnDeviceError              func(err *DeviceError)
}

// MessageHandler receives inbound protocol messages from the transport.
type MessageHandler func(message *Message)

// TransportOptions configure a transport at initialize time.
// A nil EnableMic defaults to on, a nil EnableCam defaults to off.
type TransportOptions struct {
	EnableMic *bool
	EnableCam *bool
	Callbacks *Callbacks
}

// MicEnabled resolves the mic default.
func (o TransportOptions) MicEnabled() bool {
	if o.EnableMic == nil {
		return true
	}
	return *o.EnableMic
}

// CamEnabled resolves the cam default.
func (o TransportOptions) CamEnabled() bool {
	if o.EnableCam == nil {
		return false
	}
	return *o.EnableCam
}
