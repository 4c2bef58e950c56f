package config

import (
	"fmt"
	"time"
)

type Config struct {
	Env                 string
	HTTPAddr            string
	DatabaseURL         string
	WebhookSecret       string
	WebhookAPIKey       string
	RTCAPIBaseURL       string
	RTCAPIKey           string
	LLMAPIBaseURL       string
	LLMAPIKey           string
	LLMModel            string
	LLMAnalysisMaxTok   int
	ChatHistoryWindow   int
	ShutdownDrainPeriod time.Duration
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.ChatHistoryWindow <= 0 {
		return fmt.Errorf("CHAT_HISTORY_WINDOW must be positive, got %d", c.ChatHistoryWindow)
	}
	if c.LLMAnalysisMaxTok <= 0 {
		return fmt.Errorf("LLM_ANALYSIS_MAX_TOKENS must be positive, got %d", c.LLMAnalysisMaxTok)
	}
	if c.ShutdownDrainPeriod <= 0 {
		return fmt.Errorf("SHUTDOWN_DRAIN_TIMEOUT_SEC must be positive, got %s", c.ShutdownDrainPeriod)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "HTTP_ADDR", value: c.HTTPAddr},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "WEBHOOK_SECRET", value: c.WebhookSecret},
		{name: "WEBHOOK_API_KEY", value: c.WebhookAPIKey},
		{name: "RTC_API_BASE_URL", value: c.RTCAPIBaseURL},
		{name: "RTC_API_KEY", value: c.RTCAPIKey},
		{name: "LLM_API_BASE_URL", value: c.LLMAPIBaseURL},
		{name: "LLM_MODEL", value: c.LLMModel},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
