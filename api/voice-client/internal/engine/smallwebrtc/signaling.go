// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_smallwebrtc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pionwebrtc "github.com/pion/webrtc/v4"
	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
)

// offerRequest is the body POSTed to the offer endpoint.
type offerRequest struct {
	SDP         string                 `json:"sdp"`
	Type        string                 `json:"type"`
	RequestData map[string]interface{} `json:"requestData,omitempty"`
}

type offerResponse struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
	PCID string `json:"pc_id"`
}

func (e *Engine) offerEndpoint(url string) (string, error) {
	if url == "" {
		return "", &internal_type.InvalidTransportParamsError{Reason: "smallwebrtc requires an offer url"}
	}
	if e.config.OfferPath == "" {
		return url, nil
	}
	return strings.TrimRight(url, "/") + "/" + strings.TrimLeft(e.config.OfferPath, "/"), nil
}

// negotiate creates the offer, waits for ICE gathering, exchanges it with
// the bot and applies the answer.
func (e *Engine) negotiate(ctx context.Context, conn *connection, endpoint string, opts internal_type.JoinOptions) error {
	offer, err := conn.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	gathered := pionwebrtc.GatheringCompletePromise(conn.pc)
	if err := conn.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return ctx.Err()
	}

	local := conn.pc.LocalDescription()
	if local == nil {
		return errors.New("no local description after gathering")
	}

	answer := offerResponse{}
	req := e.client.R().
		SetContext(ctx).
		SetBody(offerRequest{SDP: local.SDP, Type: local.Type.String(), RequestData: opts.Extra}).
		SetResult(&answer)
	if opts.Token != "" {
		req.SetAuthToken(opts.Token)
	}
	resp, err := req.Post(endpoint)
	if err != nil {
		return fmt.Errorf("failed to send offer: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("offer rejected with status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	if answer.SDP == "" {
		return errors.New("offer response carries no sdp")
	}

	if answer.PCID != "" {
		e.mu.Lock()
		if e.conn == conn {
			e.bot.SessionID = answer.PCID
		}
		e.mu.Unlock()
	}

	if err := conn.pc.SetRemoteDescription(pionwebrtc.SessionDescription{
		Type: pionwebrtc.SDPTypeAnswer,
		SDP:  answer.SDP,
	}); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	e.logger.Debugw("smallwebrtc answer applied", "pcID", answer.PCID)
	return nil
}
