// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package voice_client

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
	"github.com/rapidaai/voice-client/pkg/utils"
)

// APIRequest describes the bot bootstrap call.
type APIRequest struct {
	Endpoint    string            `validate:"required,url"`
	Headers     map[string]string `validate:"omitempty"`
	RequestData interface{}
	Timeout     time.Duration `validate:"gte=0"`
}

// makeRequest POSTs the request data as JSON. A non 2xx reply becomes a
// *StartBotError and an empty body yields a nil response.
func (c *Client) makeRequest(ctx context.Context, request APIRequest) (interface{}, error) {
	if err := c.validate.Struct(request); err != nil {
		return nil, &internal_type.StartBotError{Message: "invalid start bot request", Err: err}
	}
	if request.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, request.Timeout)
		defer cancel()
	}

	start := time.Now()
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(request.Headers)
	if request.RequestData != nil {
		req.SetBody(request.RequestData)
	}
	resp, err := req.Post(request.Endpoint)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &internal_type.StartBotError{Message: "start bot request cancelled", Err: ctx.Err()}
		}
		return nil, &internal_type.StartBotError{Message: "start bot request failed", Err: err}
	}
	c.logger.Benchmark("Client.StartBot", time.Since(start))

	body := resp.Body()
	if resp.IsError() {
		return nil, &internal_type.StartBotError{
			Status:  resp.StatusCode(),
			Message: errorMessage(body),
		}
	}
	if utils.IsEmpty(string(body)) {
		return nil, nil
	}
	var out interface{}
	if err := json.Unmarshal(body, &out); err != nil {
		c.logger.Warnw("start bot response is not json", "error", err)
		return string(body), nil
	}
	return out, nil
}

// errorMessage extracts the reason from a bootstrap error body.
func errorMessage(body []byte) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"info", "error", "detail", "message"} {
			if v, ok := payload[key].(string); ok && v != "" {
				return v
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return "failed to start bot"
}

// IsStartBotError reports whether err came from a rejected bot start.
func IsStartBotError(err error) bool {
	var target *internal_type.StartBotError
	return errors.As(err, &target)
}

