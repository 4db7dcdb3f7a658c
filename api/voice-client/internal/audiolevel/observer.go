// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_audiolevel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	internal_telemetry "github.com/rapidaai/voice-client/api/voice-client/internal/telemetry"
	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
	"github.com/rapidaai/voice-client/pkg/commons"
	"github.com/rapidaai/voice-client/pkg/utils"
)

const (
	DefaultInterval = 500 * time.Millisecond

	// MaxConsecutiveFailures trips the breaker.
	MaxConsecutiveFailures = 3
)

var ErrAlreadyStarted = errors.New("audio level observer already started, call Stop before starting again")

// DefaultBotParticipant is reported with remote levels when no resolver is set.
var DefaultBotParticipant = internal_type.Participant{ID: "bot", Name: "Bot", Local: false}

// Observer polls a peer connection for local and remote audio levels. Ticks
// run on one goroutine so tick N+1 never starts before tick N has settled.
type Observer struct {
	mu      sync.Mutex
	logger  commons.Logger
	metrics *internal_telemetry.Metrics
	name    string

	mic         internal_type.MicState
	participant func() internal_type.Participant
	localOnly   bool
	minTrans    int

	onLocal  func(level float64)
	onRemote func(level float64, participant internal_type.Participant)

	pc         internal_type.PeerConnection
	cancel     context.CancelFunc
	generation uint64
	failCount  int
}

type Option func(*Observer)

func WithMetrics(metrics *internal_telemetry.Metrics) Option {
	return func(o *Observer) { o.metrics = metrics }
}

// WithParticipant sets the resolver for the participant remote levels are
// attributed to.
func WithParticipant(resolve func() internal_type.Participant) Option {
	return func(o *Observer) { o.participant = resolve }
}

func WithLocalLevel(fn func(level float64)) Option {
	return func(o *Observer) { o.onLocal = fn }
}

func WithRemoteLevel(fn func(level float64, participant internal_type.Participant)) Option {
	return func(o *Observer) { o.onRemote = fn }
}

// NewObserver samples both directions of the connection passed to Start.
func NewObserver(logger commons.Logger, mic internal_type.MicState, opts ...Option) *Observer {
	o := &Observer{
		logger:      logger,
		name:        "audio level observer",
		mic:         mic,
		participant: func() internal_type.Participant { return DefaultBotParticipant },
		minTrans:    1,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start begins polling pc every interval. A zero interval uses DefaultInterval.
func (o *Observer) Start(pc internal_type.PeerConnection, interval time.Duration) error {
	if pc == nil {
		return fmt.Errorf("%s: nil peer connection", o.name)
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	o.mu.Lock()
	if o.pc != nil {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.pc = pc
	o.cancel = cancel
	o.generation++
	gen := o.generation
	o.mu.Unlock()

	o.logger.Infow("starting "+o.name, "interval", interval)
	go o.run(ctx, gen, pc, interval)
	return nil
}

// Stop halts polling, resets the failure count and releases the connection.
// It is idempotent and does not wait for an in-flight tick; that tick's
// callbacks are suppressed.
func (o *Observer) Stop() {
	o.mu.Lock()
	if o.pc == nil {
		o.mu.Unlock()
		return
	}
	o.stopLocked()
	o.mu.Unlock()
	o.logger.Infow("stopping " + o.name)
}

// Running reports whether the observer holds a connection.
func (o *Observer) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pc != nil
}

func (o *Observer) stopLocked() {
	o.pc = nil
	o.failCount = 0
	o.generation++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

func (o *Observer) run(ctx context.Context, gen uint64, pc internal_type.PeerConnection, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			o.tick(ctx, gen, pc)
		}
	}
}

func (o *Observer) tick(ctx context.Context, gen uint64, pc internal_type.PeerConnection) {
	local, err := o.localLevel(ctx, pc)
	if err != nil {
		o.fail(gen, err)
		return
	}
	o.metrics.ObserveAudioLevel("local", local)
	if !o.emitLocal(gen, local) {
		return
	}
	if o.localOnly {
		o.succeed(gen)
		return
	}

	remote, err := o.remoteLevel(ctx, pc)
	if err != nil {
		o.fail(gen, err)
		return
	}
	o.metrics.ObserveAudioLevel("remote", remote)
	o.emitRemote(gen, remote)
	o.succeed(gen)
}

func (o *Observer) current(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation == gen && o.pc != nil
}

func (o *Observer) emitLocal(gen uint64, level float64) bool {
	if !o.current(gen) {
		return false
	}
	if o.onLocal != nil {
		o.onLocal(level)
	}
	return true
}

func (o *Observer) emitRemote(gen uint64, level float64) {
	if !o.current(gen) {
		return
	}
	if o.onRemote != nil {
		o.onRemote(level, o.participant())
	}
}

func (o *Observer) succeed(gen uint64) {
	o.mu.Lock()
	if o.generation == gen {
		o.failCount = 0
	}
	o.mu.Unlock()
}

func (o *Observer) fail(gen uint64, err error) {
	o.metrics.ObserveStatsFailure()
	o.mu.Lock()
	if o.generation != gen || o.pc == nil {
		o.mu.Unlock()
		return
	}
	o.failCount++
	count := o.failCount
	tripped := count >= MaxConsecutiveFailures
	if tripped {
		o.stopLocked()
	}
	o.mu.Unlock()

	o.logger.Warnw("failed to retrieve audio level", "observer", o.name, "failures", count, "error", err)
	if tripped {
		o.metrics.ObserveBreakerTrip()
		o.logger.Warnw("stopping " + o.name + " due to the previous errors")
	}
}

// localLevel reads the media-source report of the first sender. A disabled
// mic reports silence without touching statistics.
func (o *Observer) localLevel(ctx context.Context, pc internal_type.PeerConnection) (float64, error) {
	if o.mic != nil && !o.mic.IsMicEnabled() {
		return 0, nil
	}
	transceivers := pc.Transceivers()
	if len(transceivers) < o.minTrans {
		return 0, nil
	}
	// index 0 is the audio transceiver by construction of the connection
	stats, err := transceivers[0].SenderStats(ctx)
	if err != nil {
		return 0, fmt.Errorf("sender stats: %w", err)
	}
	for _, entry := range stats {
		if entry.Type == internal_type.StatsTypeMediaSource && entry.Kind == internal_type.StatsKindAudio {
			return levelOf(entry), nil
		}
	}
	return 0, nil
}

// remoteLevel reads the last inbound-rtp audio report of the first receiver.
func (o *Observer) remoteLevel(ctx context.Context, pc internal_type.PeerConnection) (float64, error) {
	transceivers := pc.Transceivers()
	if len(transceivers) == 0 {
		return 0, nil
	}
	stats, err := transceivers[0].ReceiverStats(ctx)
	if err != nil {
		return 0, fmt.Errorf("receiver stats: %w", err)
	}
	var inbound *internal_type.StatsEntry
	for i := range stats {
		if stats[i].Type == internal_type.StatsTypeInboundRTP && stats[i].Kind == internal_type.StatsKindAudio {
			inbound = &stats[i]
		}
	}
	if inbound == nil {
		return 0, nil
	}
	return levelOf(*inbound), nil
}

func levelOf(entry internal_type.StatsEntry) float64 {
	if entry.AudioLevel == nil {
		return 0
	}
	return utils.Clamp(*entry.AudioLevel, 0, 1)
}
