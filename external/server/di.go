package server

import (
	"github.com/foxseedlab/coachcall/internal/config"
	"github.com/foxseedlab/coachcall/internal/repository"
	"github.com/foxseedlab/coachcall/internal/session"
	"github.com/foxseedlab/coachcall/internal/transcript"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		router := do.MustInvoke[*session.Router](i)
		registry := do.MustInvoke[*session.Registry](i)
		collector := do.MustInvoke[*transcript.Collector](i)
		return NewServer(cfg, repo, router, registry, collector), nil
	})
}
