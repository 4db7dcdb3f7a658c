// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
	"github.com/rapidaai/voice-client/pkg/commons"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu     sync.Mutex
	events []internal_type.EngineEvent
}

func (l *eventLog) handle(ev internal_type.EngineEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) snapshot() []internal_type.EngineEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]internal_type.EngineEvent(nil), l.events...)
}

func (l *eventLog) count(name internal_type.EngineEventName) int {
	n := 0
	for _, ev := range l.snapshot() {
		if ev.EventName() == name {
			n++
		}
	}
	return n
}

// botServer answers client-ready with bot-ready and lets tests drive the
// server side of the socket.
type botServer struct {
	*httptest.Server
	mu       sync.Mutex
	conn     *websocket.Conn
	auth     string
	query    string
	received []internal_type.Message
	ready    chan struct{}
}

func newBotServer(t *testing.T) *botServer {
	s := &botServer{ready: make(chan struct{})}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.auth = r.Header.Get("Authorization")
		s.query = r.URL.RawQuery
		s.mu.Unlock()
		close(s.ready)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg internal_type.Message
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			s.mu.Lock()
			s.received = append(s.received, msg)
			s.mu.Unlock()
			if msg.Type == internal_type.MessageTypeClientReady {
				reply := internal_type.NewMessage(internal_type.MessageTypeBotReady, internal_type.BotReadyData{Version: internal_type.ProtocolVersion})
				reply.ID = msg.ID
				_ = conn.WriteJSON(reply)
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *botServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *botServer) serverConn(t *testing.T) *websocket.Conn {
	select {
	case <-s.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("bot server never accepted")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func newTestEngine(t *testing.T) (*Engine, *eventLog) {
	e := NewEngine(commons.NewNopLogger(), &Config{HandshakeTimeout: time.Second})
	log := &eventLog{}
	e.On(log.handle)
	t.Cleanup(func() { _ = e.Destroy(context.Background()) })
	return e, log
}

func TestDialURL(t *testing.T) {
	tests := []struct {
		in    string
		extra map[string]interface{}
		want  string
	}{
		{in: "http://bot.example/ws", want: "ws://bot.example/ws"},
		{in: "https://bot.example/ws", want: "wss://bot.example/ws"},
		{in: "wss://bot.example/ws", extra: map[string]interface{}{"voice": "alloy", "nested": map[string]string{}}, want: "wss://bot.example/ws?voice=alloy"},
	}
	for _, tt := range tests {
		got, err := dialURL(tt.in, tt.extra)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	var invalid *internal_type.InvalidTransportParamsError
	_, err := dialURL("", nil)
	assert.ErrorAs(t, err, &invalid)
	_, err = dialURL("ftp://bot.example", nil)
	assert.ErrorAs(t, err, &invalid)
}

func TestEngine_JoinAnnouncesBot(t *testing.T) {
	server := newBotServer(t)
	e, log := newTestEngine(t)

	require.NoError(t, e.Join(context.Background(), internal_type.JoinOptions{
		URL:   server.wsURL(),
		Token: "secret",
		Extra: map[string]interface{}{"assistant": "a-1"},
	}))
	server.serverConn(t)

	events := log.snapshot()
	require.Len(t, events, 2)
	joined, ok := events[0].(internal_type.ParticipantJoinedEvent)
	require.True(t, ok)
	assert.False(t, joined.Participant.Local)
	track, ok := events[1].(internal_type.TrackStartedEvent)
	require.True(t, ok)
	assert.Equal(t, internal_type.TrackKindAudio, track.Type)
	require.NotNil(t, track.Participant)
	assert.Equal(t, BotParticipantID, track.Participant.SessionID)

	server.mu.Lock()
	assert.Equal(t, "Bearer secret", server.auth)
	assert.Equal(t, "assistant=a-1", server.query)
	server.mu.Unlock()

	assert.Contains(t, e.Participants(), BotParticipantID)
	assert.ErrorIs(t, e.Join(context.Background(), internal_type.JoinOptions{URL: server.wsURL()}), ErrAlreadyJoined)
}

func TestEngine_MessageRoundTrip(t *testing.T) {
	server := newBotServer(t)
	e, log := newTestEngine(t)
	require.NoError(t, e.Join(context.Background(), internal_type.JoinOptions{URL: server.wsURL()}))

	ready := internal_type.ClientReadyMessage()
	require.NoError(t, e.SendAppMessage(context.Background(), ready))

	require.Eventually(t, func() bool { return log.count(internal_type.EventAppMessage) == 1 }, 2*time.Second, 10*time.Millisecond)
	for _, ev := range log.snapshot() {
		if msg, ok := ev.(internal_type.AppMessageEvent); ok {
			var reply internal_type.Message
			require.NoError(t, json.Unmarshal(msg.Data.(json.RawMessage), &reply))
			assert.Equal(t, internal_type.MessageTypeBotReady, reply.Type)
			assert.Equal(t, ready.ID, reply.ID)
		}
	}
}

func TestEngine_LeaveClosesNormally(t *testing.T) {
	server := newBotServer(t)
	e, log := newTestEngine(t)
	require.NoError(t, e.Join(context.Background(), internal_type.JoinOptions{URL: server.wsURL()}))
	server.serverConn(t)

	require.NoError(t, e.Leave(context.Background()))
	assert.Equal(t, 1, log.count(internal_type.EventLeftMeeting))
	assert.Zero(t, log.count(internal_type.EventFatalError))
	assert.ErrorIs(t, e.SendAppMessage(context.Background(), ready()), ErrNotConnected)
	assert.NotContains(t, e.Participants(), BotParticipantID)
}

func ready() *internal_type.Message { return internal_type.ClientReadyMessage() }

func TestEngine_BotClosesNormally(t *testing.T) {
	server := newBotServer(t)
	e, log := newTestEngine(t)
	require.NoError(t, e.Join(context.Background(), internal_type.JoinOptions{URL: server.wsURL()}))

	conn := server.serverConn(t)
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	require.Eventually(t, func() bool { return log.count(internal_type.EventLeftMeeting) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, log.count(internal_type.EventFatalError))
}

func TestEngine_BotDropsConnection(t *testing.T) {
	server := newBotServer(t)
	e, log := newTestEngine(t)
	require.NoError(t, e.Join(context.Background(), internal_type.JoinOptions{URL: server.wsURL()}))

	conn := server.serverConn(t)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return log.count(internal_type.EventFatalError) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, log.count(internal_type.EventLeftMeeting))
}

func TestEngine_NoDevices(t *testing.T) {
	e, log := newTestEngine(t)

	devices, err := e.EnumerateDevices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)

	var unsupported *internal_type.UnsupportedFeatureError
	assert.ErrorAs(t, e.SetCamera(context.Background(), "cam"), &unsupported)
	assert.ErrorAs(t, e.StartScreenShare(context.Background()), &unsupported)
	assert.Equal(t, 1, log.count(internal_type.EventNonFatalError))

	require.NoError(t, e.StartCamera(context.Background(), internal_type.JoinOptions{StartAudioOff: true}))
	assert.False(t, e.LocalAudio())
}
