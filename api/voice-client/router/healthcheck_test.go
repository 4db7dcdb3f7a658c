// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package voice_client_routers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	voice_client "github.com/rapidaai/voice-client/api/voice-client/client"
	"github.com/rapidaai/voice-client/api/voice-client/config"
	"github.com/rapidaai/voice-client/pkg/commons"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedState voice_client.TransportState

func (s fixedState) State() voice_client.TransportState {
	return voice_client.TransportState(s)
}

func newEngine(state voice_client.TransportState, reg *prometheus.Registry) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	cfg := &config.AppConfig{Name: "voice-client", Version: "0.0.1", Engine: "smallwebrtc"}
	HealthCheckRoutes(cfg, engine, commons.NewNopLogger(), fixedState(state))
	MetricRoutes(engine, commons.NewNopLogger(), reg)
	return engine
}

func get(engine *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		state voice_client.TransportState
		code  int
	}{
		{voice_client.StateReady, http.StatusOK},
		{voice_client.StateConnected, http.StatusOK},
		{voice_client.StateConnecting, http.StatusServiceUnavailable},
		{voice_client.StateDisconnected, http.StatusServiceUnavailable},
		{voice_client.StateError, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			w := get(newEngine(tt.state, prometheus.NewRegistry()), "/readiness/")
			assert.Equal(t, tt.code, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, string(tt.state), body["state"])
		})
	}
}

func TestHealthz(t *testing.T) {
	w := get(newEngine(voice_client.StateDisconnected, prometheus.NewRegistry()), "/healthz/")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["healthy"])
	assert.Equal(t, "smallwebrtc", body["engine"])
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := voice_client.NewMetrics(reg)
	metrics.ObserveTransition("disconnected", "connecting")

	w := get(newEngine(voice_client.StateReady, reg), "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "transitions"), w.Body.String())
}
