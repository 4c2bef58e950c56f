package session

import (
	"github.com/foxseedlab/coachcall/internal/analysis"
	"github.com/foxseedlab/coachcall/internal/config"
	"github.com/foxseedlab/coachcall/internal/llm"
	"github.com/foxseedlab/coachcall/internal/observability"
	"github.com/foxseedlab/coachcall/internal/repository"
	"github.com/foxseedlab/coachcall/internal/rtc"
	"github.com/foxseedlab/coachcall/internal/transcript"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Registry, error) {
		metrics := do.MustInvoke[*observability.Metrics](i)
		return NewRegistry(metrics), nil
	})
	do.Provide(injector, func(i do.Injector) (*Router, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		rtcClient := do.MustInvoke[rtc.Client](i)
		llmClient := do.MustInvoke[llm.Client](i)
		collector := do.MustInvoke[*transcript.Collector](i)
		registry := do.MustInvoke[*Registry](i)
		runner := do.MustInvoke[*analysis.Runner](i)
		metrics := do.MustInvoke[*observability.Metrics](i)
		return NewRouter(cfg, repo, rtcClient, llmClient, collector, registry, runner, metrics), nil
	})
}
