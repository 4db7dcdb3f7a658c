// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transport

import (
	"strings"

	"github.com/looplab/fsm"
	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
)

// transitions lists every allowed edge of the transport lifecycle.
var transitions = map[internal_type.TransportState][]internal_type.TransportState{
	internal_type.TransportStateDisconnected: {
		internal_type.TransportStateInitializing,
		internal_type.TransportStateAuthenticating,
		internal_type.TransportStateConnecting,
	},
	internal_type.TransportStateInitializing: {
		internal_type.TransportStateInitialized,
		internal_type.TransportStateError,
		internal_type.TransportStateDisconnecting,
	},
	internal_type.TransportStateInitialized: {
		internal_type.TransportStateAuthenticating,
		internal_type.TransportStateConnecting,
		internal_type.TransportStateError,
		internal_type.TransportStateDisconnecting,
	},
	internal_type.TransportStateAuthenticating: {
		internal_type.TransportStateAuthenticated,
		internal_type.TransportStateError,
		internal_type.TransportStateDisconnecting,
	},
	internal_type.TransportStateAuthenticated: {
		internal_type.TransportStateConnecting,
		internal_type.TransportStateError,
		internal_type.TransportStateDisconnecting,
	},
	internal_type.TransportStateConnecting: {
		internal_type.TransportStateConnected,
		internal_type.TransportStateError,
		internal_type.TransportStateDisconnecting,
	},
	internal_type.TransportStateConnected: {
		internal_type.TransportStateReady,
		internal_type.TransportStateError,
		internal_type.TransportStateDisconnecting,
	},
	internal_type.TransportStateReady: {
		internal_type.TransportStateError,
		internal_type.TransportStateDisconnecting,
	},
	internal_type.TransportStateDisconnecting: {
		internal_type.TransportStateDisconnected,
		internal_type.TransportStateError,
	},
	internal_type.TransportStateError: {
		internal_type.TransportStateDisconnected,
	},
}

// formEventName names the event of an edge, "SRC_to_DST".
func formEventName(src, dst internal_type.TransportState) string {
	builder := strings.Builder{}
	builder.WriteString(string(src))
	builder.WriteString("_to_")
	builder.WriteString(string(dst))
	return builder.String()
}

func newStateMachine(callbacks fsm.Callbacks) *fsm.FSM {
	events := fsm.Events{}
	for src, dsts := range transitions {
		for _, dst := range dsts {
			events = append(events, fsm.EventDesc{
				Name: formEventName(src, dst),
				Src:  []string{string(src)},
				Dst:  string(dst),
			})
		}
	}
	return fsm.NewFSM(string(internal_type.TransportStateDisconnected), events, callbacks)
}

// CanTransition reports whether src -> dst is an allowed edge.
func CanTransition(src, dst internal_type.TransportState) bool {
	for _, d := range transitions[src] {
		if d == dst {
			return true
		}
	}
	return false
}
