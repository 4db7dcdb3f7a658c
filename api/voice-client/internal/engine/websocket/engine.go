// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_websocket carries protocol messages over a plain
// websocket. It has no media: the bot joins with a placeholder audio track
// as soon as the socket is open.
package internal_websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
	"github.com/rapidaai/voice-client/pkg/commons"
)

const (
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultReadLimit        = 10 * 1024 * 1024 // 10MB max message size
	DefaultPingInterval     = 20 * time.Second

	BotParticipantID = "bot"
)

var (
	ErrNotConnected  = errors.New("websocket: not connected")
	ErrAlreadyJoined = errors.New("websocket: already joined, leave first")
)

type Config struct {
	HandshakeTimeout time.Duration
	ReadLimit        int64
	PingInterval     time.Duration
	Headers          map[string]string
}

func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout: DefaultHandshakeTimeout,
		ReadLimit:        DefaultReadLimit,
		PingInterval:     DefaultPingInterval,
	}
}

type Engine struct {
	mu      sync.Mutex
	writeMu sync.Mutex // Separate mutex for write operations
	logger  commons.Logger
	config  *Config
	handler internal_type.EngineEventHandler

	conn       *websocket.Conn
	done       chan struct{}
	wg         sync.WaitGroup
	localAudio bool
	localVideo bool
}

func NewEngine(logger commons.Logger, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{logger: logger, config: config, localAudio: true}
}

func (e *Engine) On(handler internal_type.EngineEventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = handler
}

func (e *Engine) emit(ev internal_type.EngineEvent) {
	e.mu.Lock()
	h := e.handler
	e.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func bot() internal_type.EngineParticipant {
	return internal_type.EngineParticipant{SessionID: BotParticipantID, UserID: BotParticipantID, UserName: "Bot"}
}

func botAudio() *internal_type.Track {
	return &internal_type.Track{ID: "bot-audio", Kind: internal_type.TrackKindAudio}
}

func (e *Engine) Preauth(context.Context, internal_type.JoinOptions) error { return nil }

// StartCamera has no local media to acquire.
func (e *Engine) StartCamera(_ context.Context, opts internal_type.JoinOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.localAudio = !opts.StartAudioOff
	e.localVideo = !opts.StartVideoOff
	return nil
}

// dialURL maps http schemes to ws and adds scalar extras to the query.
func dialURL(raw string, extra map[string]interface{}) (string, error) {
	if raw == "" {
		return "", &internal_type.InvalidTransportParamsError{Reason: "websocket requires a url"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse websocket URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", &internal_type.InvalidTransportParamsError{Reason: "unsupported websocket scheme " + u.Scheme}
	}
	if len(extra) > 0 {
		query := u.Query()
		for key, value := range extra {
			switch v := value.(type) {
			case string, bool, int, int64, float64:
				query.Set(key, fmt.Sprint(v))
			}
		}
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// Join dials the bot and announces it with its placeholder audio track.
func (e *Engine) Join(ctx context.Context, opts internal_type.JoinOptions) error {
	target, err := dialURL(opts.URL, opts.Extra)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.conn != nil {
		e.mu.Unlock()
		return ErrAlreadyJoined
	}
	e.localAudio = !opts.StartAudioOff
	e.localVideo = !opts.StartVideoOff
	e.mu.Unlock()

	headers := http.Header{}
	for key, value := range e.config.Headers {
		headers.Set(key, value)
	}
	if opts.Token != "" {
		headers.Set("Authorization", "Bearer "+opts.Token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: e.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, target, headers)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket: %w", err)
	}
	if e.config.ReadLimit > 0 {
		conn.SetReadLimit(e.config.ReadLimit)
	}
	conn.SetPongHandler(func(string) error {
		e.logger.Debugw("received pong from websocket server")
		return nil
	})

	done := make(chan struct{})
	e.mu.Lock()
	e.conn = conn
	e.done = done
	e.mu.Unlock()

	e.wg.Add(1)
	go e.readLoop(conn, done)
	if e.config.PingInterval > 0 {
		e.wg.Add(1)
		go e.pingLoop(conn, done)
	}

	b := bot()
	e.emit(internal_type.ParticipantJoinedEvent{Participant: b})
	e.emit(internal_type.TrackStartedEvent{Type: internal_type.TrackKindAudio, Track: botAudio(), Participant: &b})
	return nil
}

func (e *Engine) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer e.wg.Done()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				// closed by Leave
				return
			default:
			}
			e.detach(conn)
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				e.logger.Debugw("websocket connection closed by bot")
				e.emit(internal_type.LeftMeetingEvent{})
				return
			}
			e.logger.Errorw("websocket read error", "error", err)
			e.emit(internal_type.FatalErrorEvent{Message: fmt.Sprintf("websocket read error: %v", err)})
			return
		}
		e.emit(internal_type.AppMessageEvent{Data: json.RawMessage(message), FromID: BotParticipantID})
	}
}

func (e *Engine) pingLoop(conn *websocket.Conn, done chan struct{}) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			e.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(e.config.PingInterval))
			e.writeMu.Unlock()
			if err != nil {
				e.logger.Debugw("websocket ping failed", "error", err)
				return
			}
		}
	}
}

// detach forgets a connection the bot closed and stops its helpers.
func (e *Engine) detach(conn *websocket.Conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn != conn {
		return
	}
	close(e.done)
	e.conn = nil
	e.done = nil
	_ = conn.Close()
}

// Leave sends a normal close frame, closes the socket and confirms with
// left-meeting.
func (e *Engine) Leave(ctx context.Context) error {
	e.mu.Lock()
	conn := e.conn
	done := e.done
	e.conn = nil
	e.done = nil
	if done != nil {
		close(done)
	}
	e.mu.Unlock()

	if conn != nil {
		e.writeMu.Lock()
		err := conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		e.writeMu.Unlock()
		if err != nil {
			e.logger.Warnw("error sending close message", "error", err)
		}
		if err := conn.Close(); err != nil {
			e.logger.Warnw("error closing websocket connection", "error", err)
		}
	}

	stopped := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		e.logger.Warnw("websocket helpers still running after leave", "error", ctx.Err())
	}
	e.emit(internal_type.LeftMeetingEvent{})
	return nil
}

func (e *Engine) Destroy(ctx context.Context) error {
	e.mu.Lock()
	joined := e.conn != nil
	e.mu.Unlock()
	if joined {
		return e.Leave(ctx)
	}
	return nil
}

// SendAppMessage writes data as a JSON text frame.
func (e *Engine) SendAppMessage(ctx context.Context, data interface{}) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		defer conn.SetWriteDeadline(time.Time{})
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (e *Engine) EnumerateDevices(context.Context) ([]internal_type.Device, error) {
	return nil, nil
}

func (e *Engine) InputDevices(context.Context) (internal_type.SelectedDevices, error) {
	return internal_type.SelectedDevices{}, nil
}

func unsupported(feature string) error {
	return &internal_type.UnsupportedFeatureError{Feature: feature, Source: "websocket"}
}

func (e *Engine) SetCamera(context.Context, string) error      { return unsupported("camera selection") }
func (e *Engine) SetAudioDevice(context.Context, string) error { return unsupported("mic selection") }
func (e *Engine) SetSpeaker(context.Context, string) error     { return unsupported("speaker selection") }

func (e *Engine) SetLocalAudio(enable bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.localAudio = enable
	return nil
}

func (e *Engine) SetLocalVideo(enable bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.localVideo = enable
	return nil
}

func (e *Engine) LocalAudio() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.localAudio
}

func (e *Engine) LocalVideo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.localVideo
}

func (e *Engine) StartScreenShare(context.Context) error {
	err := unsupported("screenShare")
	e.emit(internal_type.NonFatalErrorEvent{Type: internal_type.NonFatalScreenShareError, Message: err.Error()})
	return err
}

func (e *Engine) StopScreenShare(context.Context) error { return nil }

func (e *Engine) LocalScreenAudio() bool { return false }

func (e *Engine) LocalScreenVideo() bool { return false }

func (e *Engine) Participants() map[string]internal_type.ParticipantState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := map[string]internal_type.ParticipantState{
		internal_type.LocalParticipantKey: {
			EngineParticipant: internal_type.EngineParticipant{SessionID: internal_type.LocalParticipantKey, UserID: internal_type.LocalParticipantKey, Local: true},
		},
	}
	if e.conn != nil {
		out[BotParticipantID] = internal_type.ParticipantState{EngineParticipant: bot(), Audio: botAudio()}
	}
	return out
}
