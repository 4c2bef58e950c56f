package rtc

import (
	"github.com/foxseedlab/coachcall/internal/config"
	"github.com/foxseedlab/coachcall/internal/rtc"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (rtc.Client, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewHTTPClient(ClientConfig{
			BaseURL: cfg.RTCAPIBaseURL,
			APIKey:  cfg.RTCAPIKey,
		}), nil
	})
}
