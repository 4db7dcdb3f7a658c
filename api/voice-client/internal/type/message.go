// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_type

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

const (
	// MessageLabel tags every control message of the protocol.
	MessageLabel = "rtvi-ai"

	// ProtocolVersion is announced in the client-ready message.
	ProtocolVersion = "1.0.0"

	// ClientLibrary identifies this library in client-ready.
	ClientLibrary = "rapida-voice-client"
)

// MessageType is the type field of a control message.
type MessageType string

const (
	// outbound
	MessageTypeClientReady           MessageType = "client-ready"
	MessageTypeDisconnectBot         MessageType = "disconnect-bot"
	MessageTypeClientMessage         MessageType = "client-message"
	MessageTypeSendText              MessageType = "send-text"
	MessageTypeAppendToContext       MessageType = "append-to-context"
	MessageTypeLLMFunctionCallResult MessageType = "llm-function-call-result"

	// inbound
	MessageTypeBotReady              MessageType = "bot-ready"
	MessageTypeError                 MessageType = "error"
	MessageTypeMetrics               MessageType = "metrics"
	MessageTypeServerMessage         MessageType = "server-message"
	MessageTypeServerResponse        MessageType = "server-response"
	MessageTypeErrorResponse         MessageType = "error-response"
	MessageTypeAppendToContextResult MessageType = "append-to-context-result"
	MessageTypeUserTranscription     MessageType = "user-transcription"
	MessageTypeBotTranscription      MessageType = "bot-transcription"
	MessageTypeUserStartedSpeaking   MessageType = "user-started-speaking"
	MessageTypeUserStoppedSpeaking   MessageType = "user-stopped-speaking"
	MessageTypeBotStartedSpeaking    MessageType = "bot-started-speaking"
	MessageTypeBotStoppedSpeaking    MessageType = "bot-stopped-speaking"
	MessageTypeUserLLMText           MessageType = "user-llm-text"
	MessageTypeBotLLMText            MessageType = "bot-llm-text"
	MessageTypeBotLLMStarted         MessageType = "bot-llm-started"
	MessageTypeBotLLMStopped         MessageType = "bot-llm-stopped"
	MessageTypeLLMFunctionCall       MessageType = "llm-function-call"
	MessageTypeBotLLMSearchResponse  MessageType = "bot-llm-search-response"
	MessageTypeBotTTSText            MessageType = "bot-tts-text"
	MessageTypeBotTTSStarted         MessageType = "bot-tts-started"
	MessageTypeBotTTSStopped         MessageType = "bot-tts-stopped"
)

// Message is the control message envelope exchanged with the bot.
type Message struct {
	ID    string      `json:"id" mapstructure:"id"`
	Label string      `json:"label" mapstructure:"label"`
	Type  MessageType `json:"type" mapstructure:"type"`
	Data  interface{} `json:"data,omitempty" mapstructure:"data"`
}

// NewMessage builds a labelled message with a fresh id.
func NewMessage(t MessageType, data interface{}) *Message {
	return &Message{
		ID:    uuid.NewString(),
		Label: MessageLabel,
		Type:  t,
		Data:  data,
	}
}

// ClientReadyMessage announces the client protocol version.
func ClientReadyMessage() *Message {
	return NewMessage(MessageTypeClientReady, ClientReadyData{
		Version: ProtocolVersion,
		About:   AboutClientData{Library: ClientLibrary, LibraryVersion: ProtocolVersion, Platform: "go"},
	})
}

// DisconnectBotMessage asks the bot to end the session.
func DisconnectBotMessage() *Message {
	return NewMessage(MessageTypeDisconnectBot, nil)
}

// ErrorMessage wraps a local error as an error message.
func ErrorMessage(message string, fatal bool) *Message {
	return NewMessage(MessageTypeError, ErrorData{Message: message, Fatal: fatal})
}

// IsProtocolMessage reports whether the message carries the protocol label.
func (m *Message) IsProtocolMessage() bool {
	return m != nil && m.Label == MessageLabel
}

func (m *Message) String() string {
	if m == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s(%s)", m.Type, m.ID)
}

// DecodeData decodes the message payload into out, which must be a pointer.
// Payloads arrive either as generic JSON maps or as typed structs.
func DecodeData(data interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := decoder.Decode(data); err != nil {
		return fmt.Errorf("failed to decode message data: %w", err)
	}
	return nil
}

// Decode decodes the message payload into out.
func (m *Message) Decode(out interface{}) error {
	return DecodeData(m.Data, out)
}

// =============================================================================
// Payloads
// =============================================================================

type BotReadyData struct {
	Version string      `json:"version"`
	About   interface{} `json:"about,omitempty"`
}

type AboutClientData struct {
	Library         string                 `json:"library"`
	LibraryVersion  string                 `json:"library_version,omitempty"`
	Platform        string                 `json:"platform,omitempty"`
	PlatformVersion string                 `json:"platform_version,omitempty"`
	PlatformDetails map[string]interface{} `json:"platform_details,omitempty"`
}

type ClientReadyData struct {
	Version string          `json:"version"`
	About   AboutClientData `json:"about"`
}

type ErrorData struct {
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}

type MetricData struct {
	Processor string  `json:"processor"`
	Value     float64 `json:"value"`
}

type MetricsData struct {
	Processing []MetricData `json:"processing,omitempty"`
	TTFB       []MetricData `json:"ttfb,omitempty"`
	Characters []MetricData `json:"characters,omitempty"`
}

type TranscriptData struct {
	Text      string `json:"text"`
	Final     bool   `json:"final"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id"`
}

type BotLLMTextData struct {
	Text string `json:"text"`
}

type BotTTSTextData struct {
	Text string `json:"text"`
}

type ServerMessageData struct {
	Data interface{} `json:"data"`
}

// ClientMessageData is the payload of client-message and its server-response.
type ClientMessageData struct {
	T string      `json:"t"`
	D interface{} `json:"d,omitempty"`
}

type LLMSearchResult struct {
	Text       string    `json:"text"`
	Confidence []float64 `json:"confidence"`
}

type LLMSearchOrigin struct {
	SiteURI   string            `json:"site_uri,omitempty"`
	SiteTitle string            `json:"site_title,omitempty"`
	Results   []LLMSearchResult `json:"results"`
}

type BotLLMSearchResponseData struct {
	SearchResult    string            `json:"search_result,omitempty"`
	RenderedContent string            `json:"rendered_content,omitempty"`
	Origins         []LLMSearchOrigin `json:"origins"`
}

type LLMFunctionCallData struct {
	FunctionName string                 `json:"function_name"`
	ToolCallID   string                 `json:"tool_call_id"`
	Args         map[string]interface{} `json:"args"`
}

type LLMFunctionCallResultResponse struct {
	FunctionName string                 `json:"function_name"`
	ToolCallID   string                 `json:"tool_call_id"`
	Args         map[string]interface{} `json:"args"`
	Result       interface{}            `json:"result"`
}

type SendTextOptions struct {
	RunImmediately *bool `json:"run_immediately,omitempty"`
	AudioResponse  *bool `json:"audio_response,omitempty"`
}

type SendTextData struct {
	Content string          `json:"content"`
	Options SendTextOptions `json:"options"`
}

type LLMContextMessage struct {
	Role           string      `json:"role"`
	Content        interface{} `json:"content"`
	RunImmediately bool        `json:"run_immediately,omitempty"`
}

type AppendToContextResultData struct {
	Result interface{} `json:"result"`
}
