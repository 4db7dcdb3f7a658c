// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_smallwebrtc is a peer-to-peer engine over a single pion
// peer connection, signaled with one HTTP offer/answer exchange.
package internal_smallwebrtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	pionwebrtc "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
	"github.com/rapidaai/voice-client/pkg/commons"
)

var (
	ErrNotConnected   = errors.New("smallwebrtc: not connected")
	ErrAlreadyJoined  = errors.New("smallwebrtc: already joined, leave first")
	ErrUnknownDevice  = errors.New("smallwebrtc: unknown device")
	ErrPeerConnection = errors.New("smallwebrtc: peer connection failed")
)

// PacketSink receives every RTP packet read from a remote track.
type PacketSink func(kind internal_type.TrackKind, pkt *rtp.Packet)

// connection is one joined session. It is replaced on every Join.
type connection struct {
	pc     *pionwebrtc.PeerConnection
	dc     *pionwebrtc.DataChannel
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	opened   chan struct{}
	openOnce sync.Once
	failed   chan struct{}
	failOnce sync.Once
}

func (c *connection) markOpened() { c.openOnce.Do(func() { close(c.opened) }) }
func (c *connection) markFailed() { c.failOnce.Do(func() { close(c.failed) }) }

type Engine struct {
	mu      sync.Mutex
	logger  commons.Logger
	config  *Config
	client  *resty.Client
	sink    PacketSink
	handler internal_type.EngineEventHandler

	selected   internal_type.SelectedDevices
	localAudio bool
	localVideo bool
	audioTrack *pionwebrtc.TrackLocalStaticSample

	conn        *connection
	established bool
	bot         internal_type.EngineParticipant
	botJoined   bool
	remote      map[internal_type.TrackKind]*internal_type.Track
}

type Option func(*Engine)

// WithPacketSink receives remote RTP packets, for recording or analysis.
func WithPacketSink(sink PacketSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithHTTPClient replaces the signaling client.
func WithHTTPClient(client *resty.Client) Option {
	return func(e *Engine) { e.client = client }
}

func NewEngine(logger commons.Logger, config *Config, opts ...Option) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	e := &Engine{
		logger:     logger,
		config:     config,
		client:     resty.New().SetTimeout(timeout).SetHeaders(config.Headers),
		localAudio: true,
		remote:     map[internal_type.TrackKind]*internal_type.Track{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
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

// Preauth has nothing to negotiate ahead of the offer.
func (e *Engine) Preauth(context.Context, internal_type.JoinOptions) error {
	e.logger.Debugw("smallwebrtc preauth is a no-op")
	return nil
}

// StartCamera prepares the local audio track and selects the first device
// of each class from the catalog.
func (e *Engine) StartCamera(_ context.Context, opts internal_type.JoinOptions) error {
	track, err := e.localTrack()
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.audioTrack = track
	e.localAudio = !opts.StartAudioOff
	e.localVideo = !opts.StartVideoOff
	if e.selected.Camera.IsZero() {
		e.selected.Camera = e.firstDevice(internal_type.MediaDeviceVideoInput)
	}
	if e.selected.Mic.IsZero() {
		e.selected.Mic = e.firstDevice(internal_type.MediaDeviceAudioInput)
	}
	if e.selected.Speaker.IsZero() {
		e.selected.Speaker = e.firstDevice(internal_type.MediaDeviceAudioOutput)
	}
	e.mu.Unlock()
	return nil
}

func (e *Engine) localTrack() (*pionwebrtc.TrackLocalStaticSample, error) {
	e.mu.Lock()
	track := e.audioTrack
	e.mu.Unlock()
	if track != nil {
		return track, nil
	}
	track, err := pionwebrtc.NewTrackLocalStaticSample(
		pionwebrtc.RTPCodecCapability{
			MimeType:  pionwebrtc.MimeTypeOpus,
			ClockRate: OpusSampleRate,
			Channels:  OpusChannels,
		},
		"audio",
		"voice-client-"+uuid.NewString(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create local audio track: %w", err)
	}
	return track, nil
}

// Join negotiates the peer connection and returns once the data channel
// is open.
func (e *Engine) Join(ctx context.Context, opts internal_type.JoinOptions) error {
	endpoint, err := e.offerEndpoint(opts.URL)
	if err != nil {
		return err
	}
	track, err := e.localTrack()
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.conn != nil {
		e.mu.Unlock()
		return ErrAlreadyJoined
	}
	e.audioTrack = track
	e.localAudio = !opts.StartAudioOff
	e.localVideo = !opts.StartVideoOff
	e.mu.Unlock()

	conn, err := e.newConnection(track)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.conn = conn
	e.established = false
	e.botJoined = false
	e.bot = internal_type.EngineParticipant{SessionID: BotParticipantID, UserID: BotParticipantID, UserName: BotParticipantName}
	e.remote = map[internal_type.TrackKind]*internal_type.Track{}
	e.mu.Unlock()

	start := time.Now()
	if err := e.negotiate(ctx, conn, endpoint, opts); err != nil {
		e.drop(conn)
		return err
	}

	select {
	case <-conn.opened:
	case <-conn.failed:
		e.drop(conn)
		return ErrPeerConnection
	case <-ctx.Done():
		e.drop(conn)
		return ctx.Err()
	}

	e.mu.Lock()
	e.established = true
	e.mu.Unlock()
	e.logger.Benchmark("smallwebrtc.Join", time.Since(start))
	return nil
}

func (e *Engine) newConnection(track *pionwebrtc.TrackLocalStaticSample) (*connection, error) {
	mediaEngine := &pionwebrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(pionwebrtc.RTPCodecParameters{
		RTPCodecCapability: pionwebrtc.RTPCodecCapability{
			MimeType:    pionwebrtc.MimeTypeOpus,
			ClockRate:   OpusSampleRate,
			Channels:    OpusChannels,
			SDPFmtpLine: OpusSDPFmtpLine,
		},
		PayloadType: OpusPayloadType,
	}, pionwebrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("failed to register Opus codec: %w", err)
	}
	if err := mediaEngine.RegisterCodec(pionwebrtc.RTPCodecParameters{
		RTPCodecCapability: pionwebrtc.RTPCodecCapability{
			MimeType:  pionwebrtc.MimeTypeVP8,
			ClockRate: VP8ClockRate,
		},
		PayloadType: VP8PayloadType,
	}, pionwebrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("failed to register VP8 codec: %w", err)
	}

	// Interceptors (default includes NACK and the stats interceptor)
	registry := &interceptor.Registry{}
	if err := pionwebrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	api := pionwebrtc.NewAPI(
		pionwebrtc.WithMediaEngine(mediaEngine),
		pionwebrtc.WithInterceptorRegistry(registry),
	)

	iceServers := make([]pionwebrtc.ICEServer, len(e.config.ICEServers))
	for i, srv := range e.config.ICEServers {
		iceServers[i] = pionwebrtc.ICEServer{
			URLs:       srv.URLs,
			Username:   srv.Username,
			Credential: srv.Credential,
		}
	}
	pcConfig := pionwebrtc.Configuration{ICEServers: iceServers}
	if e.config.ICETransportPolicy == "relay" {
		pcConfig.ICETransportPolicy = pionwebrtc.ICETransportPolicyRelay
	}

	pc, err := api.NewPeerConnection(pcConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn := &connection{
		pc:     pc,
		ctx:    ctx,
		cancel: cancel,
		opened: make(chan struct{}),
		failed: make(chan struct{}),
	}

	// audio first: level observers read transceiver 0
	audio, err := pc.AddTransceiverFromTrack(track, pionwebrtc.RTPTransceiverInit{
		Direction: pionwebrtc.RTPTransceiverDirectionSendrecv,
	})
	if err != nil {
		e.close(conn)
		return nil, fmt.Errorf("failed to add audio transceiver: %w", err)
	}
	if _, err := pc.AddTransceiverFromKind(pionwebrtc.RTPCodecTypeVideo, pionwebrtc.RTPTransceiverInit{
		Direction: pionwebrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		e.close(conn)
		return nil, fmt.Errorf("failed to add video transceiver: %w", err)
	}

	dc, err := pc.CreateDataChannel(DataChannelLabel, nil)
	if err != nil {
		e.close(conn)
		return nil, fmt.Errorf("failed to create data channel: %w", err)
	}
	conn.dc = dc

	e.setupHandlers(conn)

	conn.wg.Add(1)
	go e.drainRTCP(conn, audio.Sender())
	return conn, nil
}

func (e *Engine) setupHandlers(conn *connection) {
	conn.dc.OnOpen(func() {
		e.logger.Infow("smallwebrtc data channel open", "label", conn.dc.Label())
		conn.markOpened()
	})
	conn.dc.OnMessage(func(msg pionwebrtc.DataChannelMessage) {
		if !e.current(conn) {
			return
		}
		e.emit(internal_type.AppMessageEvent{Data: msg.Data, FromID: e.botParticipant().SessionID})
	})

	conn.pc.OnConnectionStateChange(func(state pionwebrtc.PeerConnectionState) {
		e.logger.Infow("smallwebrtc connection state changed", "state", state)
		switch state {
		case pionwebrtc.PeerConnectionStateConnected:
			e.mu.Lock()
			first := e.conn == conn && !e.botJoined
			if first {
				e.botJoined = true
			}
			bot := e.bot
			e.mu.Unlock()
			if first {
				e.emit(internal_type.ParticipantJoinedEvent{Participant: bot})
			}
		case pionwebrtc.PeerConnectionStateFailed:
			conn.markFailed()
			e.mu.Lock()
			fatal := e.conn == conn && e.established
			e.mu.Unlock()
			if fatal {
				e.emit(internal_type.FatalErrorEvent{Message: "peer connection failed"})
			}
		case pionwebrtc.PeerConnectionStateDisconnected:
			// transient, ICE may recover
			e.logger.Warnw("smallwebrtc peer disconnected")
		}
	})

	conn.pc.OnTrack(func(track *pionwebrtc.TrackRemote, _ *pionwebrtc.RTPReceiver) {
		e.handleRemoteTrack(conn, track)
	})
}

func (e *Engine) handleRemoteTrack(conn *connection, remote *pionwebrtc.TrackRemote) {
	kind := internal_type.TrackKindAudio
	if remote.Kind() == pionwebrtc.RTPCodecTypeVideo {
		kind = internal_type.TrackKindVideo
	}
	track := &internal_type.Track{ID: remote.ID(), Kind: kind, Source: remote}

	e.mu.Lock()
	if e.conn != conn {
		e.mu.Unlock()
		return
	}
	e.remote[kind] = track
	bot := e.bot
	e.mu.Unlock()

	e.logger.Infow("remote track received", "kind", kind, "codec", remote.Codec().MimeType)
	e.emit(internal_type.TrackStartedEvent{Type: kind, Track: track, Participant: &bot})

	conn.wg.Add(1)
	go e.readRemote(conn, remote, track)
}

// readRemote drains a remote track so the interceptors keep producing
// statistics, handing packets to the sink when one is set.
func (e *Engine) readRemote(conn *connection, remote *pionwebrtc.TrackRemote, track *internal_type.Track) {
	defer conn.wg.Done()

	buf := make([]byte, RTPBufferSize)
	consecutiveErrors := 0
	for {
		select {
		case <-conn.ctx.Done():
			return
		default:
		}

		n, _, err := remote.Read(buf)
		if err != nil {
			if conn.ctx.Err() != nil {
				return
			}
			consecutiveErrors++
			if consecutiveErrors >= MaxConsecutiveErrors {
				e.logger.Errorw("too many consecutive read errors, stopping remote track reader", "kind", track.Kind, "lastError", err)
				e.trackEnded(conn, track)
				return
			}
			continue
		}
		consecutiveErrors = 0
		if e.sink == nil {
			continue
		}
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			e.logger.Debugw("failed to unmarshal RTP packet", "error", err)
			continue
		}
		e.sink(track.Kind, pkt)
	}
}

func (e *Engine) trackEnded(conn *connection, track *internal_type.Track) {
	e.mu.Lock()
	if e.conn != conn || e.remote[track.Kind] != track {
		e.mu.Unlock()
		return
	}
	delete(e.remote, track.Kind)
	bot := e.bot
	e.mu.Unlock()
	e.emit(internal_type.TrackStoppedEvent{Type: track.Kind, Track: track, Participant: &bot})
}

// drainRTCP reads sender RTCP so interceptors such as NACK can act on it.
func (e *Engine) drainRTCP(conn *connection, sender *pionwebrtc.RTPSender) {
	defer conn.wg.Done()
	buf := make([]byte, RTPBufferSize)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (e *Engine) current(conn *connection) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn == conn
}

// drop discards a connection that never completed Join.
func (e *Engine) drop(conn *connection) {
	e.mu.Lock()
	if e.conn == conn {
		e.conn = nil
		e.established = false
		e.botJoined = false
		e.remote = map[internal_type.TrackKind]*internal_type.Track{}
	}
	e.mu.Unlock()
	e.close(conn)
}

func (e *Engine) close(conn *connection) {
	conn.cancel()
	if err := conn.pc.Close(); err != nil {
		e.logger.Warnw("failed to close peer connection", "error", err)
	}
	conn.wg.Wait()
}

// Leave closes the peer connection and always confirms with left-meeting.
func (e *Engine) Leave(context.Context) error {
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.established = false
	e.botJoined = false
	e.remote = map[internal_type.TrackKind]*internal_type.Track{}
	e.mu.Unlock()

	if conn != nil {
		e.close(conn)
	}
	e.emit(internal_type.LeftMeetingEvent{})
	return nil
}

func (e *Engine) Destroy(ctx context.Context) error {
	e.mu.Lock()
	joined := e.conn != nil
	e.audioTrack = nil
	e.mu.Unlock()
	if joined {
		return e.Leave(ctx)
	}
	return nil
}

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

// WriteAudio sends one Opus frame on the local track. Frames written while
// the mic is disabled are dropped.
func (e *Engine) WriteAudio(frame []byte, duration time.Duration) error {
	e.mu.Lock()
	track := e.audioTrack
	enabled := e.localAudio && e.conn != nil
	e.mu.Unlock()
	if track == nil {
		return ErrNotConnected
	}
	if !enabled {
		return nil
	}
	return track.WriteSample(media.Sample{Data: frame, Duration: duration})
}

// StartScreenShare is not available on a peer-to-peer voice connection.
func (e *Engine) StartScreenShare(context.Context) error {
	err := &internal_type.UnsupportedFeatureError{Feature: "screenShare", Source: "smallwebrtc"}
	e.emit(internal_type.NonFatalErrorEvent{Type: internal_type.NonFatalScreenShareError, Message: err.Error()})
	return err
}

func (e *Engine) StopScreenShare(context.Context) error { return nil }

func (e *Engine) LocalScreenAudio() bool { return false }

func (e *Engine) LocalScreenVideo() bool { return false }

func (e *Engine) botParticipant() internal_type.EngineParticipant {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bot
}

func (e *Engine) Participants() map[string]internal_type.ParticipantState {
	e.mu.Lock()
	defer e.mu.Unlock()

	local := internal_type.ParticipantState{
		EngineParticipant: internal_type.EngineParticipant{SessionID: internal_type.LocalParticipantKey, UserID: internal_type.LocalParticipantKey, Local: true},
	}
	if e.audioTrack != nil {
		local.Audio = &internal_type.Track{ID: e.audioTrack.ID(), Kind: internal_type.TrackKindAudio, Source: e.audioTrack}
	}
	out := map[string]internal_type.ParticipantState{internal_type.LocalParticipantKey: local}
	if e.conn != nil && e.botJoined {
		out[e.bot.SessionID] = internal_type.ParticipantState{
			EngineParticipant: e.bot,
			Audio:             e.remote[internal_type.TrackKindAudio],
			Video:             e.remote[internal_type.TrackKindVideo],
		}
	}
	return out
}

// SendAppMessage writes data as JSON text on the data channel.
func (e *Engine) SendAppMessage(_ context.Context, data interface{}) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil || conn.dc.ReadyState() != pionwebrtc.DataChannelStateOpen {
		return ErrNotConnected
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode app message: %w", err)
	}
	return conn.dc.SendText(string(raw))
}

func (e *Engine) LocalLevelsOnly() bool {
	return e.config.LocalAudioLevelOnly
}

// PeerConnection lends the live connection to audio level observers.
func (e *Engine) PeerConnection() internal_type.PeerConnection {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return nil
	}
	return newStatsPeerConnection(e.conn.pc)
}
