// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transport

import (
	"context"
	"testing"

	"github.com/looplab/fsm"
	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_MatchesTransitionTable(t *testing.T) {
	for _, src := range internal_type.AllTransportStates {
		for _, dst := range internal_type.AllTransportStates {
			if src == dst {
				continue
			}
			m := newStateMachine(fsm.Callbacks{})
			m.SetState(string(src))
			err := m.Event(context.Background(), formEventName(src, dst))
			if CanTransition(src, dst) {
				assert.NoError(t, err, "%s -> %s", src, dst)
				assert.Equal(t, string(dst), m.Current())
			} else {
				assert.Error(t, err, "%s -> %s", src, dst)
				assert.Equal(t, string(src), m.Current())
			}
		}
	}
}

func TestStateMachine_StartsDisconnected(t *testing.T) {
	m := newStateMachine(fsm.Callbacks{})
	assert.Equal(t, string(internal_type.TransportStateDisconnected), m.Current())
}

func TestTransitions_EveryStateReachesDisconnected(t *testing.T) {
	for _, src := range internal_type.AllTransportStates {
		seen := map[internal_type.TransportState]bool{src: true}
		queue := []internal_type.TransportState{src}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range transitions[cur] {
				if !seen[next] {
					seen[next] = true
					queue = append(queue, next)
				}
			}
		}
		require.True(t, seen[internal_type.TransportStateDisconnected], "%s cannot reach disconnected", src)
	}
}

func TestTransitions_ErrorOnlyRecoversToDisconnected(t *testing.T) {
	assert.Equal(t, []internal_type.TransportState{internal_type.TransportStateDisconnected},
		transitions[internal_type.TransportStateError])
	assert.False(t, CanTransition(internal_type.TransportStateReady, internal_type.TransportStateConnected))
	assert.False(t, CanTransition(internal_type.TransportStateDisconnected, internal_type.TransportStateReady))
	assert.Equal(t, "connected_to_ready", formEventName(internal_type.TransportStateConnected, internal_type.TransportStateReady))
}
