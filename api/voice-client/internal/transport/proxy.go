// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transport

import (
	"context"

	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
	"github.com/rapidaai/voice-client/pkg/commons"
)

// engineProxy exposes the engine for advanced use while refusing the
// lifecycle calls the transport must sequence itself.
type engineProxy struct {
	internal_type.Engine
	logger commons.Logger
}

func newEngineProxy(logger commons.Logger, engine internal_type.Engine) internal_type.Engine {
	return &engineProxy{Engine: engine, logger: logger}
}

func (p *engineProxy) Preauth(context.Context, internal_type.JoinOptions) error {
	return &internal_type.DisabledMethodError{Method: "Preauth", Use: "Transport.Preauth"}
}

func (p *engineProxy) StartCamera(context.Context, internal_type.JoinOptions) error {
	return &internal_type.DisabledMethodError{Method: "StartCamera", Use: "InitDevices"}
}

func (p *engineProxy) Join(context.Context, internal_type.JoinOptions) error {
	return &internal_type.DisabledMethodError{Method: "Join", Use: "Connect"}
}

func (p *engineProxy) Leave(context.Context) error {
	return &internal_type.DisabledMethodError{Method: "Leave", Use: "Disconnect"}
}

func (p *engineProxy) Destroy(context.Context) error {
	return &internal_type.DisabledMethodError{Method: "Destroy"}
}

// On is refused as well since the transport owns the single event handler.
func (p *engineProxy) On(internal_type.EngineEventHandler) {
	p.logger.Warnw("ignoring engine handler registration, use the transport callbacks instead",
		"method", "On")
}
