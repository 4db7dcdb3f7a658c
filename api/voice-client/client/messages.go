// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package voice_client

import (
	"context"
	"fmt"
	"time"

	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
	"github.com/rapidaai/voice-client/pkg/utils"
)

// SendClientMessage sends a fire and forget client-message to the bot.
func (c *Client) SendClientMessage(ctx context.Context, msgType string, data interface{}) error {
	if err := c.requireReady(); err != nil {
		return err
	}
	return c.transport.SendMessage(ctx, internal_type.NewMessage(
		internal_type.MessageTypeClientMessage,
		internal_type.ClientMessageData{T: msgType, D: data},
	))
}

// SendClientRequest sends a client-message and waits for the matching
// server-response. It returns the response payload. A zero timeout uses the
// client message timeout.
func (c *Client) SendClientRequest(ctx context.Context, msgType string, data interface{}, timeout time.Duration) (interface{}, error) {
	if err := c.requireReady(); err != nil {
		return nil, err
	}
	d := c.currentDispatcher()
	if d == nil {
		return nil, ErrBotNotReady
	}
	response, err := d.Dispatch(ctx, internal_type.ClientMessageData{T: msgType, D: data}, internal_type.MessageTypeClientMessage, timeout)
	if err != nil {
		return nil, err
	}
	var payload internal_type.ClientMessageData
	if err := response.Decode(&payload); err != nil {
		return nil, fmt.Errorf("invalid server-response for %s: %w", msgType, err)
	}
	return payload.D, nil
}

// SendText sends text input to the bot pipeline.
func (c *Client) SendText(ctx context.Context, content string, options SendTextOptions) error {
	if err := c.requireReady(); err != nil {
		return err
	}
	return c.transport.SendMessage(ctx, internal_type.NewMessage(
		internal_type.MessageTypeSendText,
		internal_type.SendTextData{Content: content, Options: options},
	))
}

// AppendToContext adds a message to the bot LLM context.
func (c *Client) AppendToContext(ctx context.Context, message LLMContextMessage) error {
	if err := c.requireReady(); err != nil {
		return err
	}
	return c.transport.SendMessage(ctx, internal_type.NewMessage(internal_type.MessageTypeAppendToContext, message))
}

func (c *Client) RegisterFunctionCallHandler(functionName string, handler FunctionCallHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.functions[functionName] = handler
}

func (c *Client) UnregisterFunctionCallHandler(functionName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.functions, functionName)
}

func (c *Client) UnregisterAllFunctionCallHandlers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.functions = make(map[string]FunctionCallHandler)
}

func (c *Client) requireReady() error {
	if state := c.transport.State(); state != StateReady {
		return fmt.Errorf("%w: transport is %s", ErrBotNotReady, state)
	}
	return nil
}

// handleMessage routes an inbound protocol message. It runs on the callback
// goroutine.
func (c *Client) handleMessage(msg *Message) {
	cb := c.callbacks
	switch msg.Type {
	case internal_type.MessageTypeBotReady:
		var data BotReadyData
		if err := msg.Decode(&data); err != nil {
			c.logger.Warnw("invalid bot-ready payload", "error", err)
		}
		c.logger.Infow("bot ready", "version", data.Version)
		c.settleReady(readyResult{data: &data})
		if cb.OnBotReady != nil {
			cb.OnBotReady(data)
		}

	case internal_type.MessageTypeError:
		var data ErrorData
		if err := msg.Decode(&data); err != nil {
			c.logger.Warnw("invalid error payload", "error", err)
		}
		c.logger.Errorw("bot reported error", "message", data.Message, "fatal", data.Fatal)
		if cb.OnError != nil {
			cb.OnError(msg)
		}
		if data.Fatal {
			c.settleReady(readyResult{err: fmt.Errorf("%w: %s", ErrBotNotReady, data.Message)})
			c.disconnectAsync()
		}

	case internal_type.MessageTypeServerResponse, internal_type.MessageTypeAppendToContextResult:
		if d := c.currentDispatcher(); d != nil {
			d.Resolve(msg)
		}

	case internal_type.MessageTypeErrorResponse:
		c.logger.Warnw("server rejected request", "id", msg.ID)
		if cb.OnMessageError != nil {
			cb.OnMessageError(msg)
		}
		if d := c.currentDispatcher(); d != nil {
			d.Reject(msg)
		}

	case internal_type.MessageTypeServerMessage:
		if cb.OnServerMessage != nil {
			cb.OnServerMessage(msg.Data)
		}

	case internal_type.MessageTypeMetrics:
		var data MetricsData
		if c.decode(msg, &data) && cb.OnMetrics != nil {
			cb.OnMetrics(data)
		}

	case internal_type.MessageTypeUserTranscription:
		var data TranscriptData
		if c.decode(msg, &data) && cb.OnUserTranscript != nil {
			cb.OnUserTranscript(data)
		}

	case internal_type.MessageTypeBotTranscription:
		var data BotLLMTextData
		if c.decode(msg, &data) && cb.OnBotTranscript != nil {
			cb.OnBotTranscript(data)
		}

	case internal_type.MessageTypeUserStartedSpeaking:
		if cb.OnUserStartedSpeaking != nil {
			cb.OnUserStartedSpeaking()
		}
	case internal_type.MessageTypeUserStoppedSpeaking:
		if cb.OnUserStoppedSpeaking != nil {
			cb.OnUserStoppedSpeaking()
		}
	case internal_type.MessageTypeBotStartedSpeaking:
		if cb.OnBotStartedSpeaking != nil {
			cb.OnBotStartedSpeaking()
		}
	case internal_type.MessageTypeBotStoppedSpeaking:
		if cb.OnBotStoppedSpeaking != nil {
			cb.OnBotStoppedSpeaking()
		}

	case internal_type.MessageTypeBotLLMText:
		var data BotLLMTextData
		if c.decode(msg, &data) && cb.OnBotLLMText != nil {
			cb.OnBotLLMText(data)
		}
	case internal_type.MessageTypeBotLLMStarted:
		if cb.OnBotLLMStarted != nil {
			cb.OnBotLLMStarted()
		}
	case internal_type.MessageTypeBotLLMStopped:
		if cb.OnBotLLMStopped != nil {
			cb.OnBotLLMStopped()
		}
	case internal_type.MessageTypeBotLLMSearchResponse:
		var data internal_type.BotLLMSearchResponseData
		if c.decode(msg, &data) && cb.OnBotLLMSearchResponse != nil {
			cb.OnBotLLMSearchResponse(data)
		}

	case internal_type.MessageTypeBotTTSText:
		var data BotTTSTextData
		if c.decode(msg, &data) && cb.OnBotTTSText != nil {
			cb.OnBotTTSText(data)
		}
	case internal_type.MessageTypeBotTTSStarted:
		if cb.OnBotTTSStarted != nil {
			cb.OnBotTTSStarted()
		}
	case internal_type.MessageTypeBotTTSStopped:
		if cb.OnBotTTSStopped != nil {
			cb.OnBotTTSStopped()
		}

	case internal_type.MessageTypeLLMFunctionCall:
		var data LLMFunctionCallData
		if !c.decode(msg, &data) {
			return
		}
		if cb.OnLLMFunctionCall != nil {
			cb.OnLLMFunctionCall(data)
		}
		c.runFunctionCall(data)

	default:
		c.logger.Debugw("unhandled message", "type", msg.Type, "id", msg.ID)
	}
}

func (c *Client) decode(msg *Message, out interface{}) bool {
	if err := msg.Decode(out); err != nil {
		c.logger.Warnw("invalid message payload", "type", msg.Type, "error", err)
		return false
	}
	return true
}

// runFunctionCall runs the registered handler off the callback goroutine
// and sends its result back to the bot.
func (c *Client) runFunctionCall(call LLMFunctionCallData) {
	c.mu.Lock()
	handler, ok := c.functions[call.FunctionName]
	c.mu.Unlock()
	if !ok {
		c.logger.Warnw("no handler registered for function call", "function", call.FunctionName, "tool_call_id", call.ToolCallID)
		return
	}

	// counted so Close waits for the result to be sent
	utils.GoGroup(c.ctx, &c.wg, func() {
		result, err := handler(c.ctx, call)
		if err != nil {
			c.logger.Warnw("function call handler failed", "function", call.FunctionName, "error", err)
			result = map[string]interface{}{"error": err.Error()}
		}
		if result == nil {
			return
		}
		reply := internal_type.NewMessage(internal_type.MessageTypeLLMFunctionCallResult, internal_type.LLMFunctionCallResultResponse{
			FunctionName: call.FunctionName,
			ToolCallID:   call.ToolCallID,
			Args:         call.Args,
			Result:       result,
		})
		if err := c.transport.SendMessage(c.ctx, reply); err != nil {
			c.logger.Errorw("failed to send function call result", "function", call.FunctionName, "error", err)
		}
	}, func(recovered interface{}, stack []byte) {
		c.logger.Errorw("function call handler panicked", "function", call.FunctionName, "error", utils.PanicError(recovered), "stack", string(stack))
	})
}

// disconnectAsync leaves after a fatal bot error without blocking the
// callback goroutine.
func (c *Client) disconnectAsync() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.Disconnect(c.ctx); err != nil {
			c.logger.Warnw("disconnect after fatal bot error failed", "error", err)
		}
	}()
}
