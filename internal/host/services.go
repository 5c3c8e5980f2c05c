package host

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/luaproc/internal/config"
	"github.com/dshills/luaproc/internal/metrics"
)

// Services are long-running helpers started next to a script.
type Services struct {
	// MetricsAddr serves Prometheus metrics when non-empty.
	MetricsAddr string

	// ConfigPath is watched and re-applied on change when non-empty.
	ConfigPath string

	// Override, if set, adjusts every reloaded config before it is applied.
	// Command line flags use it to survive reloads.
	Override func(*config.Config) error
}

// Supervise runs script next to the configured services. The services stop
// once script returns. The first error from any of them is returned.
func (h *Host) Supervise(ctx context.Context, svc Services, script func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	svcCtx, stop := context.WithCancel(gctx)
	defer stop()

	if svc.MetricsAddr != "" {
		metrics.EmitBuildInfo(Version)
		g.Go(func() error {
			h.log.WithField("addr", svc.MetricsAddr).Info("serving metrics")
			return metrics.Serve(svcCtx, svc.MetricsAddr)
		})
	}

	if svc.ConfigPath != "" {
		w, err := config.NewWatcher(svc.ConfigPath, func(cfg *config.Config) {
			h.reload(cfg, svc.Override)
		},
			config.WithWatcherLogger(h.log),
			config.WithErrorHandler(func(err error) {
				h.log.WithError(err).Warn("ignoring config change")
			}))
		if err != nil {
			return err
		}
		g.Go(func() error {
			return w.Run(svcCtx)
		})
	}

	g.Go(func() error {
		defer stop()
		return script(gctx)
	})

	return g.Wait()
}

func (h *Host) reload(cfg *config.Config, override func(*config.Config) error) {
	if override != nil {
		if err := override(cfg); err != nil {
			h.log.WithError(err).Warn("config reload rejected")
			return
		}
	}
	if err := h.ApplyConfig(cfg); err != nil {
		h.log.WithError(err).Warn("config reload rejected")
	}
}
