// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package voice_client connects an application to an RTVI bot. It drives
// the transport lifecycle, correlates request and response messages and
// routes inbound bot messages to the registered callbacks.
package voice_client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	internal_dispatcher "github.com/rapidaai/voice-client/api/voice-client/internal/dispatcher"
	internal_transport "github.com/rapidaai/voice-client/api/voice-client/internal/transport"
	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
	"github.com/rapidaai/voice-client/pkg/commons"
)

// FunctionCallHandler answers an llm-function-call. A nil result sends no
// reply; an error is reported to the bot as the result.
type FunctionCallHandler func(ctx context.Context, call LLMFunctionCallData) (interface{}, error)

// Options configure a Client. Engine is required.
type Options struct {
	Engine    Engine
	Callbacks *Callbacks
	EnableMic *bool
	EnableCam *bool
	Metrics   *Metrics

	// MessageTimeout bounds request round trips, zero uses the dispatcher default.
	MessageTimeout        time.Duration
	GCInterval            time.Duration
	AudioObserverInterval time.Duration
	LeaveTimeout          time.Duration

	// HTTPClient is used for StartBot, a default client is built when nil.
	HTTPClient *resty.Client
}

type readyResult struct {
	data *BotReadyData
	err  error
}

// Client is safe for concurrent use. Callbacks run on one goroutine and
// must not call Connect, Disconnect or Close.
type Client struct {
	mu        sync.Mutex
	logger    commons.Logger
	options   Options
	callbacks *Callbacks
	transport *internal_transport.Transport
	http      *resty.Client
	validate  *validator.Validate

	dispatcher *internal_dispatcher.Dispatcher
	ready      chan readyResult
	functions  map[string]FunctionCallHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a client over options.Engine and initializes its transport.
func New(logger commons.Logger, options Options) (*Client, error) {
	if options.Engine == nil {
		return nil, errors.New("voice client requires an engine")
	}
	if logger == nil {
		logger = commons.NewNopLogger()
	}
	user := options.Callbacks
	if user == nil {
		user = &Callbacks{}
	}
	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = resty.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		logger:    logger,
		options:   options,
		callbacks: user,
		http:      httpClient,
		validate:  validator.New(),
		functions: make(map[string]FunctionCallHandler),
		ctx:       ctx,
		cancel:    cancel,
	}

	c.transport = internal_transport.NewTransport(logger, options.Engine,
		internal_transport.WithMetrics(options.Metrics),
		internal_transport.WithAudioObserverInterval(options.AudioObserverInterval),
		internal_transport.WithLeaveTimeout(options.LeaveTimeout),
	)
	c.transport.Initialize(internal_type.TransportOptions{
		EnableMic: options.EnableMic,
		EnableCam: options.EnableCam,
		Callbacks: c.wrapCallbacks(user),
	}, c.handleMessage)
	return c, nil
}

// wrapCallbacks copies the user callbacks and hooks the lifecycle events
// the client tracks itself. Notifications are delivered late, so a stale
// error or disconnect is ignored once a new session is active.
func (c *Client) wrapCallbacks(user *Callbacks) *Callbacks {
	cb := *user
	cb.OnTransportStateChanged = func(state TransportState) {
		if (state == StateError || state == StateDisconnected) && !c.sessionActive() {
			c.settleReady(readyResult{err: fmt.Errorf("%w: transport is %s", ErrBotNotReady, state)})
		}
		if user.OnTransportStateChanged != nil {
			user.OnTransportStateChanged(state)
		}
	}
	cb.OnDisconnected = func() {
		if !c.sessionActive() {
			c.releaseDispatcher()
		}
		if user.OnDisconnected != nil {
			user.OnDisconnected()
		}
	}
	return &cb
}

func (c *Client) sessionActive() bool {
	switch c.transport.State() {
	case StateConnecting, StateConnected, StateReady:
		return true
	}
	return false
}

func (c *Client) State() TransportState {
	return c.transport.State()
}

// Connected reports whether the transport is connected or ready.
func (c *Client) Connected() bool {
	state := c.transport.State()
	return state == StateConnected || state == StateReady
}

// Engine returns the engine with its lifecycle methods disabled.
func (c *Client) Engine() Engine {
	return c.transport.Engine()
}

// InitDevices acquires local media and publishes the device lists.
func (c *Client) InitDevices(ctx context.Context) error {
	return c.transport.InitDevices(ctx)
}

// StartBot asks the bootstrap service to start a bot and returns its
// response, which is meant to be passed to Connect unchanged.
func (c *Client) StartBot(ctx context.Context, request APIRequest) (interface{}, error) {
	state := c.transport.State()
	switch state {
	case StateAuthenticating, StateAuthenticated, StateConnecting, StateConnected, StateReady:
		return nil, ErrBotAlreadyStarted
	case StateError:
		// clean up the failed session first
		if err := c.transport.Disconnect(ctx); err != nil {
			return nil, err
		}
		state = c.transport.State()
	}
	if state == StateDisconnected {
		if err := c.InitDevices(ctx); err != nil {
			return nil, err
		}
	}
	if err := c.transport.SetState(StateAuthenticating); err != nil {
		return nil, err
	}

	response, err := c.makeRequest(ctx, request)
	if err != nil {
		if serr := c.transport.SetState(StateError); serr != nil {
			c.logger.Warnw("failed to mark start failure", "error", serr)
		}
		return nil, err
	}
	if err := c.transport.SetState(StateAuthenticated); err != nil {
		return nil, err
	}
	if c.callbacks.OnBotStarted != nil {
		c.callbacks.OnBotStarted(response)
	}
	return response, nil
}

// Connect joins the bot session, sends client-ready and waits for bot-ready.
func (c *Client) Connect(ctx context.Context, params interface{}) (*BotReadyData, error) {
	start := time.Now()
	switch c.transport.State() {
	case StateAuthenticating, StateConnecting, StateConnected, StateReady:
		return nil, ErrBotAlreadyStarted
	case StateDisconnected:
		if !c.transport.DevicesInitialized() {
			if err := c.InitDevices(ctx); err != nil {
				return nil, err
			}
		}
	}

	if err := c.transport.Connect(ctx, params); err != nil {
		return nil, err
	}
	// bot-ready only follows client-ready, so arming here cannot miss it
	ready := c.arm()
	if err := c.transport.SendReadyMessage(ctx); err != nil {
		c.disarm(ready)
		c.releaseDispatcher()
		return nil, err
	}

	select {
	case r := <-ready:
		if r.err != nil {
			return nil, r.err
		}
		c.logger.Benchmark("Client.Connect", time.Since(start))
		return r.data, nil
	case <-ctx.Done():
		c.disarm(ready)
		return nil, fmt.Errorf("%w: %w", &ConnectionTimeoutError{Step: "bot-ready"}, ctx.Err())
	}
}

// StartBotAndConnect starts a bot and connects with its response.
func (c *Client) StartBotAndConnect(ctx context.Context, request APIRequest) (*BotReadyData, error) {
	response, err := c.StartBot(ctx, request)
	if err != nil {
		return nil, err
	}
	return c.Connect(ctx, response)
}

// Disconnect leaves the session and rejects every pending request.
func (c *Client) Disconnect(ctx context.Context) error {
	c.releaseDispatcher()
	return c.transport.Disconnect(ctx)
}

// DisconnectBot asks the bot to end the session; the transport stays up
// until the bot leaves.
func (c *Client) DisconnectBot(ctx context.Context) error {
	return c.transport.SendMessage(ctx, internal_type.DisconnectBotMessage())
}

// Close disconnects and releases the engine. Running function call
// handlers see their context cancelled.
func (c *Client) Close(ctx context.Context) error {
	c.cancel()
	c.releaseDispatcher()
	err := c.transport.Close(ctx)
	c.wg.Wait()
	return err
}

// Flush blocks until every queued callback has run.
func (c *Client) Flush() {
	c.transport.Flush()
}

// arm creates the dispatcher and the bot-ready waiter of a connect.
func (c *Client) arm() chan readyResult {
	d := internal_dispatcher.NewDispatcher(c.logger, c.transport.SendMessage,
		internal_dispatcher.WithTimeout(c.options.MessageTimeout),
		internal_dispatcher.WithGCInterval(c.options.GCInterval),
		internal_dispatcher.WithMetrics(c.options.Metrics),
	)
	ready := make(chan readyResult, 1)

	c.mu.Lock()
	previous := c.dispatcher
	c.dispatcher = d
	c.ready = ready
	c.mu.Unlock()

	if previous != nil {
		previous.Disconnect()
	}
	return ready
}

func (c *Client) disarm(ready chan readyResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready == ready {
		c.ready = nil
	}
}

// settleReady delivers r to a pending Connect, once.
func (c *Client) settleReady(r readyResult) {
	c.mu.Lock()
	ready := c.ready
	c.ready = nil
	c.mu.Unlock()
	if ready != nil {
		ready <- r
	}
}

func (c *Client) currentDispatcher() *internal_dispatcher.Dispatcher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispatcher
}

func (c *Client) releaseDispatcher() {
	c.mu.Lock()
	d := c.dispatcher
	c.dispatcher = nil
	c.mu.Unlock()
	if d != nil {
		d.Disconnect()
	}
}
