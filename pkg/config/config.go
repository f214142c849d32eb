package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log struct {
		Telegram struct {
			Token  string `yaml:"token"`
			ChatID string `yaml:"chat_id"`
		} `yaml:"telegram"`
	} `yaml:"log"`

	Sentry struct {
		DSN              string  `yaml:"dsn"`
		Environment      string  `yaml:"environment"`
		TracesSampleRate float64 `yaml:"traces_sample_rate"`
	} `yaml:"sentry"`

	Twitch struct {
		ClientID       string `yaml:"client_id" validate:"required"`
		PublicClientID string `yaml:"public_client_id"`
		Scopes         string `yaml:"scopes"`

		DeviceURL    string `yaml:"device_url"`
		TokenURL     string `yaml:"token_url"`
		ValidateURL  string `yaml:"validate_url"`
		GQLURL       string `yaml:"gql_url"`
		IntegrityURL string `yaml:"integrity_url"`
		UsherURL     string `yaml:"usher_url"`
		HelixURL     string `yaml:"helix_url"`

		PersistedQueryHash string `yaml:"persisted_query_hash"`
		ProbeChannel       string `yaml:"probe_channel"`
	} `yaml:"twitch"`

	Settings struct {
		Path string `yaml:"path"`
	} `yaml:"settings"`

	Player struct {
		Command string   `yaml:"command"`
		Args    []string `yaml:"args"`
	} `yaml:"player"`
}

func Load() (*Config, error) {
	data, err := os.ReadFile("config.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var result Config
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	applyDefaults(&result)

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Sentry.TracesSampleRate == 0 {
		cfg.Sentry.TracesSampleRate = 1.0
	}
	if cfg.Sentry.Environment == "" {
		cfg.Sentry.Environment = "production"
	}

	if cfg.Twitch.PublicClientID == "" {
		// Twitch's own web player client id, required by GQL and usher.
		cfg.Twitch.PublicClientID = "kimne78kx3ncx6brgo4mv6wki5h1ko"
	}
	if cfg.Twitch.Scopes == "" {
		cfg.Twitch.Scopes = "user:read:email user:read:follows"
	}
	if cfg.Twitch.DeviceURL == "" {
		cfg.Twitch.DeviceURL = "https://id.twitch.tv/oauth2/device"
	}
	if cfg.Twitch.TokenURL == "" {
		cfg.Twitch.TokenURL = "https://id.twitch.tv/oauth2/token"
	}
	if cfg.Twitch.ValidateURL == "" {
		cfg.Twitch.ValidateURL = "https://id.twitch.tv/oauth2/validate"
	}
	if cfg.Twitch.GQLURL == "" {
		cfg.Twitch.GQLURL = "https://gql.twitch.tv/gql"
	}
	if cfg.Twitch.IntegrityURL == "" {
		cfg.Twitch.IntegrityURL = "https://gql.twitch.tv/integrity"
	}
	if cfg.Twitch.UsherURL == "" {
		cfg.Twitch.UsherURL = "https://usher.ttvnw.net/api/channel/hls/%s.m3u8"
	}
	if cfg.Twitch.HelixURL == "" {
		cfg.Twitch.HelixURL = "https://api.twitch.tv/helix"
	}
	if cfg.Twitch.PersistedQueryHash == "" {
		cfg.Twitch.PersistedQueryHash = "0828119ded1c13477966434e15800ff57ddacf13ba1911c129dc2200705b0712"
	}
	if cfg.Twitch.ProbeChannel == "" {
		cfg.Twitch.ProbeChannel = "esl_csgo"
	}

	if cfg.Settings.Path == "" {
		cfg.Settings.Path = "data/viewer.conf"
	}

	if cfg.Player.Command == "" {
		cfg.Player.Command = "mpv"
	}
}
