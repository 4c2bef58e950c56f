package analysis

import (
	"github.com/foxseedlab/coachcall/internal/config"
	"github.com/foxseedlab/coachcall/internal/llm"
	"github.com/foxseedlab/coachcall/internal/observability"
	"github.com/foxseedlab/coachcall/internal/repository"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Pipeline, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		llmClient := do.MustInvoke[llm.Client](i)
		return NewPipeline(cfg, repo, llmClient), nil
	})
	do.Provide(injector, func(i do.Injector) (*Runner, error) {
		pipeline := do.MustInvoke[*Pipeline](i)
		metrics := do.MustInvoke[*observability.Metrics](i)
		return NewRunner(pipeline, metrics), nil
	})
}
