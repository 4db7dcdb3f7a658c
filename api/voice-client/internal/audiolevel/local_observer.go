// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_audiolevel

import (
	"time"

	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
	"github.com/rapidaai/voice-client/pkg/commons"
)

// LocalObserver samples only the outbound path of a connection bound at
// construction. It is used when the engine has no remote level source.
type LocalObserver struct {
	observer *Observer
	pc       internal_type.PeerConnection
}

// NewLocalObserver binds pc. Stats are read only once pc has at least two
// transceivers, so audio and video are both negotiated.
func NewLocalObserver(logger commons.Logger, pc internal_type.PeerConnection, mic internal_type.MicState, opts ...Option) *LocalObserver {
	o := NewObserver(logger, mic, opts...)
	o.name = "local audio level observer"
	o.localOnly = true
	o.minTrans = 2
	o.onRemote = nil
	return &LocalObserver{observer: o, pc: pc}
}

func (l *LocalObserver) Start(interval time.Duration) error {
	return l.observer.Start(l.pc, interval)
}

func (l *LocalObserver) Stop() {
	l.observer.Stop()
}

func (l *LocalObserver) Running() bool {
	return l.observer.Running()
}
