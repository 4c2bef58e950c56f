package transcript

import (
	"github.com/foxseedlab/coachcall/internal/observability"
	"github.com/foxseedlab/coachcall/internal/repository"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Collector, error) {
		repo := do.MustInvoke[repository.Repository](i)
		metrics := do.MustInvoke[*observability.Metrics](i)
		return NewCollector(repo, metrics), nil
	})
}
