package llm

import (
	"github.com/foxseedlab/coachcall/internal/config"
	"github.com/foxseedlab/coachcall/internal/llm"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (llm.Client, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewOpenAIClient(OpenAIConfig{
			BaseURL: cfg.LLMAPIBaseURL,
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.LLMModel,
		}), nil
	})
}
