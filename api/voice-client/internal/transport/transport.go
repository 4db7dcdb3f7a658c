// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
	internal_audiolevel "github.com/rapidaai/voice-client/api/voice-client/internal/audiolevel"
	internal_normalizer "github.com/rapidaai/voice-client/api/voice-client/internal/normalizer"
	internal_telemetry "github.com/rapidaai/voice-client/api/voice-client/internal/telemetry"
	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
	"github.com/rapidaai/voice-client/pkg/commons"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultLeaveTimeout = 5 * time.Second
)

// session tracks one connect attempt. It is replaced on every Connect and
// ended by disconnect, fatal error or abort.
type session struct {
	botTrack     chan struct{}
	botTrackSeen bool
	done         chan struct{}
	ended        bool
	readySent    bool
	left         chan struct{}
	leftClosed   bool
}

func newSession() *session {
	return &session{
		botTrack: make(chan struct{}),
		done:     make(chan struct{}),
		left:     make(chan struct{}),
	}
}

func (s *session) markBotTrack() {
	if !s.botTrackSeen {
		s.botTrackSeen = true
		close(s.botTrack)
	}
}

func (s *session) end() {
	if !s.ended {
		s.ended = true
		close(s.done)
	}
}

func (s *session) markLeft() {
	if !s.leftClosed {
		s.leftClosed = true
		close(s.left)
	}
}

// Transport owns the connection lifecycle over a media engine. All
// callbacks are delivered in order on one goroutine.
type Transport struct {
	mu      sync.Mutex
	logger  commons.Logger
	metrics *internal_telemetry.Metrics

	engine     internal_type.Engine
	proxy      internal_type.Engine
	normalizer *internal_normalizer.Normalizer
	notifier   *notifier
	observer   *internal_audiolevel.Observer
	local      *internal_audiolevel.LocalObserver

	observerInterval time.Duration
	leaveTimeout     time.Duration

	fsm         *fsm.FSM
	initialized bool
	devicesInit bool
	callbacks   *internal_type.Callbacks
	onMessage   internal_type.MessageHandler
	joinOpts    internal_type.JoinOptions
	botID       string
	session     *session
	// leaving is the session whose Leave awaits the engine confirmation.
	leaving *session
}

type Option func(*Transport)

func WithMetrics(metrics *internal_telemetry.Metrics) Option {
	return func(t *Transport) { t.metrics = metrics }
}

// WithAudioObserverInterval sets the polling interval of the audio level
// observer used with engines that lend their peer connection.
func WithAudioObserverInterval(interval time.Duration) Option {
	return func(t *Transport) { t.observerInterval = interval }
}

// WithLeaveTimeout bounds the wait for the engine leave confirmation.
func WithLeaveTimeout(timeout time.Duration) Option {
	return func(t *Transport) {
		if timeout > 0 {
			t.leaveTimeout = timeout
		}
	}
}

// NewTransport wraps engine. Initialize must be called before use.
func NewTransport(logger commons.Logger, engine internal_type.Engine, opts ...Option) *Transport {
	t := &Transport{
		logger:           logger,
		engine:           engine,
		proxy:            newEngineProxy(logger, engine),
		observerInterval: internal_audiolevel.DefaultInterval,
		leaveTimeout:     DefaultLeaveTimeout,
		callbacks:        &internal_type.Callbacks{},
		session:          newSession(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.fsm = newStateMachine(fsm.Callbacks{})
	t.normalizer = internal_normalizer.NewNormalizer(logger, t.metrics)
	t.notifier = newNotifier(logger)
	t.observer = internal_audiolevel.NewObserver(logger, t, t.levelOptions()...)
	return t
}

func (t *Transport) levelOptions() []internal_audiolevel.Option {
	return []internal_audiolevel.Option{
		internal_audiolevel.WithMetrics(t.metrics),
		internal_audiolevel.WithParticipant(t.botParticipant),
		internal_audiolevel.WithLocalLevel(func(level float64) {
			t.notify(func(cb *internal_type.Callbacks) {
				if cb.OnLocalAudioLevel != nil {
					cb.OnLocalAudioLevel(level)
				}
			})
		}),
		internal_audiolevel.WithRemoteLevel(func(level float64, p internal_type.Participant) {
			t.notify(func(cb *internal_type.Callbacks) {
				if cb.OnRemoteAudioLevel != nil {
					cb.OnRemoteAudioLevel(level, p)
				}
			})
		}),
	}
}

// Initialize wires callbacks and the inbound message handler, resolves the
// mic and cam defaults and attaches the engine event listener.
func (t *Transport) Initialize(opts internal_type.TransportOptions, handler internal_type.MessageHandler) {
	t.mu.Lock()
	if opts.Callbacks != nil {
		t.callbacks = opts.Callbacks
	}
	t.onMessage = handler
	t.joinOpts.StartAudioOff = !opts.MicEnabled()
	t.joinOpts.StartVideoOff = !opts.CamEnabled()
	first := !t.initialized
	t.initialized = true
	t.mu.Unlock()

	if first {
		t.engine.On(t.onEngineEvent)
	}
	t.logger.Debugw("transport initialized", "mic", opts.MicEnabled(), "cam", opts.CamEnabled())
}

// Engine returns the engine with its lifecycle methods disabled.
func (t *Transport) Engine() internal_type.Engine {
	return t.proxy
}

func (t *Transport) State() internal_type.TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

func (t *Transport) stateLocked() internal_type.TransportState {
	return internal_type.TransportState(t.fsm.Current())
}

// SetState moves the transport along an allowed edge. It is used by the
// client for the authenticating and authenticated states.
func (t *Transport) SetState(state internal_type.TransportState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transitionLocked(state)
}

// transitionLocked applies an edge and queues the state notification. A
// transition to the current state is a no-op. It must hold t.mu.
func (t *Transport) transitionLocked(to internal_type.TransportState) error {
	from := t.stateLocked()
	if from == to {
		return nil
	}
	if err := t.fsm.Event(context.Background(), formEventName(from, to)); err != nil {
		return fmt.Errorf("invalid transport transition %s -> %s: %w", from, to, err)
	}
	t.metrics.ObserveTransition(string(from), string(to))
	t.logger.Debugw("transport state changed", "from", from, "to", to)
	t.notify(func(cb *internal_type.Callbacks) {
		if cb.OnTransportStateChanged != nil {
			cb.OnTransportStateChanged(to)
		}
	})
	return nil
}

// mustTransitionLocked applies an edge the caller has already validated.
func (t *Transport) mustTransitionLocked(to internal_type.TransportState) {
	if err := t.transitionLocked(to); err != nil {
		t.logger.Errorw("unexpected transport transition failure", "error", err)
	}
}

// notify queues fn with the callbacks current at delivery time.
func (t *Transport) notify(fn func(cb *internal_type.Callbacks)) {
	t.notifier.enqueue(func() {
		t.mu.Lock()
		cb := t.callbacks
		t.mu.Unlock()
		fn(cb)
	})
}

// Flush blocks until every queued notification, and any engine event they
// raised, has been delivered.
// It must not be called from a callback.
func (t *Transport) Flush() {
	t.notifier.flush()
}

// Preauth forwards normalized params to the engine pre-authentication.
func (t *Transport) Preauth(ctx context.Context, params interface{}) error {
	p, err := NormalizeParams(params)
	if err != nil {
		return err
	}
	t.mu.Lock()
	if !t.initialized {
		t.mu.Unlock()
		return internal_type.ErrTransportNotInitialized
	}
	t.joinOpts = p.apply(t.joinOpts)
	opts := t.joinOpts
	t.mu.Unlock()
	return t.engine.Preauth(ctx, opts)
}

// DevicesInitialized reports whether InitDevices has completed once.
func (t *Transport) DevicesInitialized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.devicesInit
}

// InitDevices acquires local media and publishes the available and selected
// devices. Calling it while initialized is a no-op.
func (t *Transport) InitDevices(ctx context.Context) error {
	t.mu.Lock()
	if !t.initialized {
		t.mu.Unlock()
		return internal_type.ErrTransportNotInitialized
	}
	state := t.stateLocked()
	if state == internal_type.TransportStateInitialized {
		t.mu.Unlock()
		t.logger.Warnw("devices already initialized")
		return nil
	}
	if state != internal_type.TransportStateDisconnected {
		t.mu.Unlock()
		return fmt.Errorf("cannot initialize devices in state %s", state)
	}
	t.mustTransitionLocked(internal_type.TransportStateInitializing)
	opts := t.joinOpts
	t.mu.Unlock()

	if err := t.engine.StartCamera(ctx, opts); err != nil {
		t.failInit(err)
		return fmt.Errorf("failed to start local media: %w", err)
	}

	var (
		devices  []internal_type.Device
		selected internal_type.SelectedDevices
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		devices, err = t.engine.EnumerateDevices(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		selected, err = t.engine.InputDevices(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		t.failInit(err)
		return fmt.Errorf("failed to enumerate devices: %w", err)
	}

	cams, mics, speakers := internal_normalizer.SplitDevices(devices)
	t.normalizer.SetSelected(selected, nil)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stateLocked() != internal_type.TransportStateInitializing {
		return fmt.Errorf("device initialization interrupted in state %s", t.stateLocked())
	}
	t.notify(func(cb *internal_type.Callbacks) {
		if cb.OnAvailableCamsUpdated != nil {
			cb.OnAvailableCamsUpdated(cams)
		}
		if cb.OnAvailableMicsUpdated != nil {
			cb.OnAvailableMicsUpdated(mics)
		}
		if cb.OnAvailableSpeakersUpdated != nil {
			cb.OnAvailableSpeakersUpdated(speakers)
		}
		if cb.OnCamUpdated != nil {
			cb.OnCamUpdated(selected.Camera)
		}
		if cb.OnMicUpdated != nil {
			cb.OnMicUpdated(selected.Mic)
		}
	})
	t.devicesInit = true
	t.mustTransitionLocked(internal_type.TransportStateInitialized)
	return nil
}

func (t *Transport) failInit(err error) {
	t.logger.Errorw("failed to initialize devices", "error", err)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stateLocked() == internal_type.TransportStateInitializing {
		t.mustTransitionLocked(internal_type.TransportStateError)
	}
}

// Connect normalizes params, joins the engine and moves to connected. A
// cancellation of ctx observed before the connected state is written aborts
// the attempt and the transport is left disconnected.
func (t *Transport) Connect(ctx context.Context, params interface{}) error {
	p, err := NormalizeParams(params)
	if err != nil {
		return err
	}
	if t.State() == internal_type.TransportStateError {
		// clean up the failed session first
		if err := t.Disconnect(ctx); err != nil {
			return err
		}
	}

	t.mu.Lock()
	if !t.initialized {
		t.mu.Unlock()
		return internal_type.ErrTransportNotInitialized
	}
	switch t.stateLocked() {
	case internal_type.TransportStateDisconnected, internal_type.TransportStateInitialized,
		internal_type.TransportStateAuthenticated:
	default:
		state := t.stateLocked()
		t.mu.Unlock()
		return fmt.Errorf("%w: transport is %s", internal_type.ErrBotAlreadyStarted, state)
	}
	t.joinOpts = p.apply(t.joinOpts)
	opts := t.joinOpts
	sess := newSession()
	t.session = sess
	t.botID = ""
	t.mustTransitionLocked(internal_type.TransportStateConnecting)
	t.mu.Unlock()

	start := time.Now()
	joinErr := t.engine.Join(ctx, opts)

	t.mu.Lock()
	if t.session != sess || sess.ended || t.stateLocked() != internal_type.TransportStateConnecting {
		t.mu.Unlock()
		t.logger.Warnw("connect superseded before completion", "error", joinErr)
		return internal_type.ErrConnectAborted
	}
	if ctx.Err() != nil {
		t.mu.Unlock()
		t.abortConnect(sess)
		return fmt.Errorf("%w: %w", internal_type.ErrConnectAborted, ctx.Err())
	}
	if joinErr != nil {
		sess.end()
		t.mustTransitionLocked(internal_type.TransportStateError)
		t.mu.Unlock()
		t.logger.Errorw("failed to join room", "error", joinErr)
		return &internal_type.TransportStartError{Err: joinErr}
	}
	t.mustTransitionLocked(internal_type.TransportStateConnected)
	t.notify(func(cb *internal_type.Callbacks) {
		if cb.OnConnected != nil {
			cb.OnConnected()
		}
	})
	// under t.mu so a concurrent end of the session stops it
	t.startObserverLocked()
	t.mu.Unlock()

	t.metrics.ObserveConnect(time.Since(start))
	t.logger.Benchmark("Transport.Connect", time.Since(start))
	return nil
}

// abortConnect leaves the engine after a cancelled connect without ever
// reporting connected.
func (t *Transport) abortConnect(sess *session) {
	t.mu.Lock()
	if t.session != sess || t.stateLocked() != internal_type.TransportStateConnecting {
		t.mu.Unlock()
		return
	}
	sess.end()
	t.leaving = sess
	t.mustTransitionLocked(internal_type.TransportStateDisconnecting)
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), t.leaveTimeout)
	defer cancel()
	if err := t.engine.Leave(ctx); err != nil {
		t.logger.Warnw("failed to leave after aborted connect", "error", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == sess && t.stateLocked() == internal_type.TransportStateDisconnecting {
		t.mustTransitionLocked(internal_type.TransportStateDisconnected)
	}
}

// startObserverLocked samples the engine connection, outbound only when the
// engine cannot report remote levels. It must hold t.mu.
func (t *Transport) startObserverLocked() {
	sp, ok := t.engine.(internal_type.StatsProvider)
	if !ok {
		return
	}
	pc := sp.PeerConnection()
	if pc == nil {
		return
	}
	if lp, ok := t.engine.(internal_type.LocalLevelProvider); ok && lp.LocalLevelsOnly() {
		t.local = internal_audiolevel.NewLocalObserver(t.logger, pc, t, t.levelOptions()...)
		if err := t.local.Start(t.observerInterval); err != nil {
			t.logger.Warnw("failed to start local audio level observer", "error", err)
		}
		return
	}
	if err := t.observer.Start(pc, t.observerInterval); err != nil {
		t.logger.Warnw("failed to start audio level observer", "error", err)
	}
}

// stopObserverLocked stops whichever observer runs. It must hold t.mu.
func (t *Transport) stopObserverLocked() {
	t.observer.Stop()
	if t.local != nil {
		t.local.Stop()
		t.local = nil
	}
}

// SendReadyMessage waits for the first remote track of the current connect,
// moves to ready and sends client-ready exactly once.
func (t *Transport) SendReadyMessage(ctx context.Context) error {
	t.mu.Lock()
	sess := t.session
	state := t.stateLocked()
	if state == internal_type.TransportStateReady && sess.readySent {
		t.mu.Unlock()
		return nil
	}
	if state != internal_type.TransportStateConnected {
		t.mu.Unlock()
		return fmt.Errorf("%w: transport is %s", internal_type.ErrBotNotReady, state)
	}
	t.mu.Unlock()

	select {
	case <-sess.botTrack:
	case <-sess.done:
		return internal_type.ErrConnectAborted
	case <-ctx.Done():
		return ctx.Err()
	}

	t.mu.Lock()
	if t.session != sess || sess.ended {
		t.mu.Unlock()
		return internal_type.ErrConnectAborted
	}
	if sess.readySent {
		t.mu.Unlock()
		return nil
	}
	if t.stateLocked() != internal_type.TransportStateConnected {
		state := t.stateLocked()
		t.mu.Unlock()
		return fmt.Errorf("%w: transport is %s", internal_type.ErrBotNotReady, state)
	}
	sess.readySent = true
	t.mustTransitionLocked(internal_type.TransportStateReady)
	t.mu.Unlock()

	return t.SendMessage(ctx, internal_type.ClientReadyMessage())
}

// Disconnect leaves the engine and waits for its confirmation, bounded by
// ctx and the leave timeout.
func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	if !t.initialized {
		t.mu.Unlock()
		return internal_type.ErrTransportNotInitialized
	}
	sess := t.session
	switch t.stateLocked() {
	case internal_type.TransportStateDisconnected, internal_type.TransportStateDisconnecting:
		t.mu.Unlock()
		return nil
	case internal_type.TransportStateError:
		return t.disconnectFromError(ctx, sess)
	}
	sess.end()
	t.leaving = sess
	t.stopObserverLocked()
	t.mustTransitionLocked(internal_type.TransportStateDisconnecting)
	t.mu.Unlock()

	if err := t.engine.Leave(ctx); err != nil {
		t.logger.Warnw("engine leave failed", "error", err)
	}
	t.awaitLeft(ctx, sess)
	t.finishDisconnect()
	return nil
}

// disconnectFromError cleans up a failed session and only then moves error
// to disconnected. It is entered holding t.mu and releases it.
func (t *Transport) disconnectFromError(ctx context.Context, sess *session) error {
	sess.end()
	t.botID = ""
	t.leaving = sess
	t.stopObserverLocked()
	t.mu.Unlock()

	if err := t.engine.Leave(ctx); err != nil {
		t.logger.Warnw("failed to leave after error", "error", err)
	}
	t.awaitLeft(ctx, sess)

	t.mu.Lock()
	defer t.mu.Unlock()
	// the leave confirmation may already have completed the transition
	if t.session != sess || t.stateLocked() != internal_type.TransportStateError {
		return nil
	}
	t.mustTransitionLocked(internal_type.TransportStateDisconnected)
	t.notify(func(cb *internal_type.Callbacks) {
		if cb.OnDisconnected != nil {
			cb.OnDisconnected()
		}
	})
	return nil
}

// awaitLeft waits for the leave confirmation of sess, bounded by ctx and the
// leave timeout.
func (t *Transport) awaitLeft(ctx context.Context, sess *session) {
	timer := time.NewTimer(t.leaveTimeout)
	defer timer.Stop()
	select {
	case <-sess.left:
	case <-ctx.Done():
		t.logger.Warnw("disconnect context done before leave confirmation", "error", ctx.Err())
	case <-timer.C:
		t.logger.Warnw("no leave confirmation from engine", "timeout", t.leaveTimeout)
	}
}

// finishDisconnect completes a pending disconnecting state.
func (t *Transport) finishDisconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stateLocked() != internal_type.TransportStateDisconnecting {
		return
	}
	t.botID = ""
	t.mustTransitionLocked(internal_type.TransportStateDisconnected)
	t.notify(func(cb *internal_type.Callbacks) {
		if cb.OnDisconnected != nil {
			cb.OnDisconnected()
		}
	})
}

// SendMessage sends a protocol message over the engine data channel.
func (t *Transport) SendMessage(ctx context.Context, message *internal_type.Message) error {
	if message == nil {
		return errors.New("nil message")
	}
	if message.Label == "" {
		message.Label = internal_type.MessageLabel
	}
	if err := t.engine.SendAppMessage(ctx, message); err != nil {
		return fmt.Errorf("failed to send %s: %w", message.Type, err)
	}
	return nil
}

// Close disconnects, destroys the engine and stops callback delivery. It
// must not be called from a callback.
func (t *Transport) Close(ctx context.Context) error {
	if err := t.Disconnect(ctx); err != nil && !errors.Is(err, internal_type.ErrTransportNotInitialized) {
		t.logger.Warnw("disconnect during close failed", "error", err)
	}
	err := t.engine.Destroy(ctx)
	t.notifier.close()
	return err
}

// BotID returns the session id of the associated bot, empty when none.
func (t *Transport) BotID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.botID
}

func (t *Transport) botParticipant() internal_type.Participant {
	t.mu.Lock()
	id := t.botID
	t.mu.Unlock()
	if id != "" {
		if p, ok := t.engine.Participants()[id]; ok {
			return p.ToParticipant()
		}
	}
	return internal_audiolevel.DefaultBotParticipant
}
