// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Application config structure
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required,gt=0"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogPath  string `mapstructure:"log_path"`

	// engine backend used to reach the bot
	Engine string `mapstructure:"engine" validate:"required,oneof=smallwebrtc websocket"`

	// either a direct bot url or a start endpoint that returns one
	BotURL           string        `mapstructure:"bot_url" validate:"required_without=StartBotEndpoint,omitempty,url"`
	BotToken         string        `mapstructure:"bot_token"`
	StartBotEndpoint string        `mapstructure:"start_bot_endpoint" validate:"omitempty,url"`
	StartBotTimeout  time.Duration `mapstructure:"start_bot_timeout" validate:"gte=0"`

	EnableMic             bool          `mapstructure:"enable_mic"`
	EnableCam             bool          `mapstructure:"enable_cam"`
	ConnectTimeout        time.Duration `mapstructure:"connect_timeout" validate:"gt=0"`
	LeaveTimeout          time.Duration `mapstructure:"leave_timeout" validate:"gte=0"`
	AudioObserverInterval time.Duration `mapstructure:"audio_observer_interval" validate:"gte=0"`

	Dispatcher  DispatcherConfig  `mapstructure:"dispatcher" validate:"required"`
	SmallWebRTC SmallWebRTCConfig `mapstructure:"smallwebrtc" validate:"required"`
	WebSocket   WebSocketConfig   `mapstructure:"websocket" validate:"required"`
}

type DispatcherConfig struct {
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
	GCInterval time.Duration `mapstructure:"gc_interval" validate:"gt=0"`
}

type SmallWebRTCConfig struct {
	OfferPath          string        `mapstructure:"offer_path"`
	ICEServers         []string      `mapstructure:"ice_servers"`
	ICEUsername        string        `mapstructure:"ice_username"`
	ICECredential      string        `mapstructure:"ice_credential"`
	ICETransportPolicy string        `mapstructure:"ice_transport_policy" validate:"oneof=all relay"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout" validate:"gte=0"`
	LocalLevelOnly     bool          `mapstructure:"local_level_only"`
}

type WebSocketConfig struct {
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" validate:"gte=0"`
	PingInterval     time.Duration `mapstructure:"ping_interval" validate:"gte=0"`
	ReadLimit        int64         `mapstructure:"read_limit" validate:"gte=0"`
}

// ListenAddress is the health and metrics listen address.
func (c *AppConfig) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// reading config and intializing configs for application
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()
	setDefault(vConfig)

	if err := vConfig.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Printf("Reading from env varaibles.")
	}
	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	// keys must be known to viper for env overrides to reach Unmarshal
	v.SetDefault("SERVICE_NAME", "voice-client")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 9091)
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("LOG_PATH", "")

	v.SetDefault("ENGINE", "smallwebrtc")
	v.SetDefault("BOT_URL", "http://localhost:7860")
	v.SetDefault("BOT_TOKEN", "")
	v.SetDefault("START_BOT_ENDPOINT", "")
	v.SetDefault("START_BOT_TIMEOUT", "30s")

	v.SetDefault("ENABLE_MIC", true)
	v.SetDefault("ENABLE_CAM", false)
	v.SetDefault("CONNECT_TIMEOUT", "30s")
	v.SetDefault("LEAVE_TIMEOUT", "5s")
	v.SetDefault("AUDIO_OBSERVER_INTERVAL", "500ms")

	v.SetDefault("DISPATCHER__TIMEOUT", "10s")
	v.SetDefault("DISPATCHER__GC_INTERVAL", "1s")

	v.SetDefault("SMALLWEBRTC__OFFER_PATH", "api/offer")
	v.SetDefault("SMALLWEBRTC__ICE_SERVERS", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("SMALLWEBRTC__ICE_USERNAME", "")
	v.SetDefault("SMALLWEBRTC__ICE_CREDENTIAL", "")
	v.SetDefault("SMALLWEBRTC__ICE_TRANSPORT_POLICY", "all")
	v.SetDefault("SMALLWEBRTC__REQUEST_TIMEOUT", "15s")
	v.SetDefault("SMALLWEBRTC__LOCAL_LEVEL_ONLY", false)

	v.SetDefault("WEBSOCKET__HANDSHAKE_TIMEOUT", "10s")
	v.SetDefault("WEBSOCKET__PING_INTERVAL", "20s")
	v.SetDefault("WEBSOCKET__READ_LIMIT", 1<<20)
}

// Getting application config from viper
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	err := v.Unmarshal(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}

	// valdating the app config
	validate := validator.New()
	err = validate.Struct(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}
	return &config, nil
}
