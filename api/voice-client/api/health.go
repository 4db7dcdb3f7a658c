// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package voice_client_api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	voice_client "github.com/rapidaai/voice-client/api/voice-client/client"
	"github.com/rapidaai/voice-client/api/voice-client/config"
	"github.com/rapidaai/voice-client/pkg/commons"
)

// StateReporter exposes the transport state of a running client.
type StateReporter interface {
	State() voice_client.TransportState
}

type HealthCheckApi struct {
	cfg    *config.AppConfig
	logger commons.Logger
	client StateReporter
}

func New(cfg *config.AppConfig, logger commons.Logger, client StateReporter) *HealthCheckApi {
	return &HealthCheckApi{cfg: cfg, logger: logger, client: client}
}

// Readiness is 200 only while the bot session is connected or ready.
func (h *HealthCheckApi) Readiness(c *gin.Context) {
	state := h.client.State()
	switch state {
	case voice_client.StateConnected, voice_client.StateReady:
		c.JSON(http.StatusOK, gin.H{"ready": true, "state": state})
	default:
		h.logger.Debugw("readiness check while not connected", "state", state)
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "state": state})
	}
}

func (h *HealthCheckApi) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"healthy": true,
		"service": h.cfg.Name,
		"version": h.cfg.Version,
		"engine":  h.cfg.Engine,
	})
}
