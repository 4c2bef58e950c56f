package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/coachcall/internal/config"
)

type envConfig struct {
	Env                     string `env:"ENV" envDefault:"production"`
	HTTPAddr                string `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseURL             string `env:"DATABASE_URL,required"`
	WebhookSecret           string `env:"WEBHOOK_SECRET,required"`
	WebhookAPIKey           string `env:"WEBHOOK_API_KEY,required"`
	RTCAPIBaseURL           string `env:"RTC_API_BASE_URL,required"`
	RTCAPIKey               string `env:"RTC_API_KEY,required"`
	LLMAPIBaseURL           string `env:"LLM_API_BASE_URL,required"`
	LLMAPIKey               string `env:"LLM_API_KEY"`
	LLMModel                string `env:"LLM_MODEL" envDefault:"gpt-4o"`
	LLMAnalysisMaxTok       int    `env:"LLM_ANALYSIS_MAX_TOKENS" envDefault:"4096"`
	ChatHistoryWindow       int    `env:"CHAT_HISTORY_WINDOW" envDefault:"10"`
	ShutdownDrainTimeoutSec int    `env:"SHUTDOWN_DRAIN_TIMEOUT_SEC" envDefault:"30"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                 raw.Env,
		HTTPAddr:            raw.HTTPAddr,
		DatabaseURL:         raw.DatabaseURL,
		WebhookSecret:       raw.WebhookSecret,
		WebhookAPIKey:       raw.WebhookAPIKey,
		RTCAPIBaseURL:       raw.RTCAPIBaseURL,
		RTCAPIKey:           raw.RTCAPIKey,
		LLMAPIBaseURL:       raw.LLMAPIBaseURL,
		LLMAPIKey:           raw.LLMAPIKey,
		LLMModel:            raw.LLMModel,
		LLMAnalysisMaxTok:   raw.LLMAnalysisMaxTok,
		ChatHistoryWindow:   raw.ChatHistoryWindow,
		ShutdownDrainPeriod: time.Duration(raw.ShutdownDrainTimeoutSec) * time.Second,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
