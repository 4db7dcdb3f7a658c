// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// voice-client connects to an RTVI bot, keeps the session open and serves
// health and metrics while it runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	voice_client "github.com/rapidaai/voice-client/api/voice-client/client"
	"github.com/rapidaai/voice-client/api/voice-client/config"
	voice_client_routers "github.com/rapidaai/voice-client/api/voice-client/router"
	"github.com/rapidaai/voice-client/pkg/commons"
	"github.com/rapidaai/voice-client/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// Flags holds the per run options that do not belong in the environment.
type Flags struct {
	EnvPath  string
	Duration time.Duration
	Text     string
	Request  string
}

func main() {
	flags := parseFlags()
	if flags.EnvPath != "" {
		os.Setenv("ENV_PATH", flags.EnvPath)
	}

	v, err := config.InitConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	cfg, err := config.GetApplicationConfig(v)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := commons.NewApplicationLogger(
		commons.Name(cfg.Name),
		commons.Level(cfg.LogLevel),
		commons.Path(cfg.LogPath),
	)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Infow("shutting down")
		cancel()
	}()

	if err := run(ctx, cfg, flags, logger); err != nil {
		logger.Errorw("voice client stopped with error", "error", err)
		logger.Sync()
		os.Exit(1)
	}
}

func parseFlags() *Flags {
	f := &Flags{}
	flag.StringVar(&f.EnvPath, "env", "", "Path to the env file, overrides ENV_PATH")
	flag.DurationVar(&f.Duration, "duration", 0, "How long to stay connected, 0 waits for a signal")
	flag.StringVar(&f.Text, "text", "", "Text to send to the bot once it is ready")
	flag.StringVar(&f.Request, "request", "", "Client request type to send once the bot is ready")
	flag.Parse()
	return f
}

func run(ctx context.Context, cfg *config.AppConfig, flags *Flags, logger commons.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := voice_client.NewMetrics(registry)

	engine, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	client, err := voice_client.New(logger, voice_client.Options{
		Engine:                engine,
		Callbacks:             logCallbacks(logger),
		EnableMic:             utils.Ptr(cfg.EnableMic),
		EnableCam:             utils.Ptr(cfg.EnableCam),
		Metrics:               metrics,
		MessageTimeout:        cfg.Dispatcher.Timeout,
		GCInterval:            cfg.Dispatcher.GCInterval,
		AudioObserverInterval: cfg.AudioObserverInterval,
		LeaveTimeout:          cfg.LeaveTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), cors.Default())
	voice_client_routers.HealthCheckRoutes(cfg, router, logger, client)
	voice_client_routers.MetricRoutes(router, logger, registry)
	server := &http.Server{Addr: cfg.ListenAddress(), Handler: router}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infow("serving health and metrics", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		// the server follows the session
		defer stop()
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.LeaveTimeout+time.Second)
			defer cancel()
			if err := client.Close(closeCtx); err != nil {
				logger.Warnw("failed to close client", "error", err)
			}
		}()
		return runSession(gctx, cfg, flags, client, logger)
	})
	return g.Wait()
}

func newEngine(cfg *config.AppConfig, logger commons.Logger) (voice_client.Engine, error) {
	switch cfg.Engine {
	case "smallwebrtc":
		ec := voice_client.DefaultSmallWebRTCConfig()
		if len(cfg.SmallWebRTC.ICEServers) > 0 {
			ec.ICEServers = []voice_client.ICEServer{{
				URLs:       cfg.SmallWebRTC.ICEServers,
				Username:   cfg.SmallWebRTC.ICEUsername,
				Credential: cfg.SmallWebRTC.ICECredential,
			}}
		}
		ec.ICETransportPolicy = cfg.SmallWebRTC.ICETransportPolicy
		ec.OfferPath = cfg.SmallWebRTC.OfferPath
		ec.LocalAudioLevelOnly = cfg.SmallWebRTC.LocalLevelOnly
		if cfg.SmallWebRTC.RequestTimeout > 0 {
			ec.RequestTimeout = cfg.SmallWebRTC.RequestTimeout
		}
		return voice_client.NewSmallWebRTCEngine(logger, ec), nil
	case "websocket":
		ec := voice_client.DefaultWebSocketConfig()
		if cfg.WebSocket.HandshakeTimeout > 0 {
			ec.HandshakeTimeout = cfg.WebSocket.HandshakeTimeout
		}
		if cfg.WebSocket.PingInterval > 0 {
			ec.PingInterval = cfg.WebSocket.PingInterval
		}
		if cfg.WebSocket.ReadLimit > 0 {
			ec.ReadLimit = cfg.WebSocket.ReadLimit
		}
		return voice_client.NewWebSocketEngine(logger, ec), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}

// runSession connects, optionally talks to the bot and stays connected
// until ctx is done, the duration elapses or the bot leaves.
func runSession(ctx context.Context, cfg *config.AppConfig, flags *Flags, client *voice_client.Client, logger commons.Logger) error {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var (
		ready *voice_client.BotReadyData
		err   error
	)
	if cfg.StartBotEndpoint != "" {
		ready, err = client.StartBotAndConnect(connectCtx, voice_client.APIRequest{
			Endpoint: cfg.StartBotEndpoint,
			Headers:  authHeaders(cfg.BotToken),
			Timeout:  cfg.StartBotTimeout,
		})
	} else {
		ready, err = client.Connect(connectCtx, map[string]interface{}{
			"url":   cfg.BotURL,
			"token": cfg.BotToken,
		})
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to connect: %w", err)
	}
	logger.Infow("bot ready", "version", ready.Version)

	if flags.Text != "" {
		if err := client.SendText(ctx, flags.Text, voice_client.SendTextOptions{}); err != nil {
			logger.Warnw("failed to send text", "error", err)
		}
	}
	if flags.Request != "" {
		result, err := client.SendClientRequest(ctx, flags.Request, nil, 0)
		if err != nil {
			logger.Warnw("client request failed", "type", flags.Request, "error", err)
		} else {
			logger.Infow("client request answered", "type", flags.Request, "result", result)
		}
	}

	var timeout <-chan time.Time
	if flags.Duration > 0 {
		timer := time.NewTimer(flags.Duration)
		defer timer.Stop()
		timeout = timer.C
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timeout:
			logger.Infow("session duration elapsed, asking the bot to leave")
			if err := client.DisconnectBot(ctx); err != nil {
				logger.Warnw("failed to ask bot to disconnect", "error", err)
			}
			return nil
		case <-ticker.C:
			if !client.Connected() {
				logger.Infow("session ended", "state", client.State())
				return nil
			}
		}
	}
}

func authHeaders(token string) map[string]string {
	if token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func logCallbacks(logger commons.Logger) *voice_client.Callbacks {
	return &voice_client.Callbacks{
		OnTransportStateChanged: func(state voice_client.TransportState) {
			logger.Infow("transport state changed", "state", state)
		},
		OnBotConnected: func(p voice_client.Participant) {
			logger.Infow("bot connected", "participant", p.ID)
		},
		OnBotDisconnected: func(p voice_client.Participant) {
			logger.Infow("bot disconnected", "participant", p.ID)
		},
		OnError: func(m *voice_client.Message) {
			logger.Errorw("bot error", "message", m.Data)
		},
		OnUserTranscript: func(d voice_client.TranscriptData) {
			if d.Final {
				logger.Infow("user", "text", d.Text)
			}
		},
		OnBotTranscript: func(d voice_client.BotLLMTextData) {
			logger.Infow("bot", "text", d.Text)
		},
		OnMetrics: func(d voice_client.MetricsData) {
			logger.Debugw("bot metrics", "ttfb", d.TTFB, "processing", d.Processing)
		},
		OnServerMessage: func(data interface{}) {
			logger.Infow("server message", "data", data)
		},
	}
}
