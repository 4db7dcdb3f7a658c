// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_type

// TransportState is the lifecycle state of a transport instance.
type TransportState string

const (
	TransportStateDisconnected   TransportState = "disconnected"
	TransportStateInitializing   TransportState = "initializing"
	TransportStateInitialized    TransportState = "initialized"
	TransportStateAuthenticating TransportState = "authenticating"
	TransportStateAuthenticated  TransportState = "authenticated"
	TransportStateConnecting     TransportState = "connecting"
	TransportStateConnected      TransportState = "connected"
	TransportStateReady          TransportState = "ready"
	TransportStateDisconnecting  TransportState = "disconnecting"
	TransportStateError          TransportState = "error"
)

// AllTransportStates lists every state in lifecycle order.
var AllTransportStates = []TransportState{
	TransportStateDisconnected,
	TransportStateInitializing,
	TransportStateInitialized,
	TransportStateAuthenticating,
	TransportStateAuthenticated,
	TransportStateConnecting,
	TransportStateConnected,
	TransportStateReady,
	TransportStateDisconnecting,
	TransportStateError,
}

func (s TransportState) String() string {
	return string(s)
}

// IsActive reports whether a session is being set up or is live.
func (s TransportState) IsActive() bool {
	switch s {
	case TransportStateAuthenticating, TransportStateAuthenticated,
		TransportStateConnecting, TransportStateConnected, TransportStateReady:
		return true
	}
	return false
}

// IsTerminal reports whether the state needs no teardown.
func (s TransportState) IsTerminal() bool {
	return s == TransportStateDisconnected || s == TransportStateError
}
