// Package executors provides the outbound platform adapters the
// dispatcher drives. Each platform gets either a webhook adapter, when
// an endpoint is configured in the environment, or a console adapter
// that logs the call and fabricates a reference. The console adapter
// keeps the full pipeline runnable without any external system.
package executors

import (
	"context"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/config"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/dispatch"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/payload"
)

var platforms = []domain.Platform{
	domain.PlatformTaskTracker,
	domain.PlatformChat,
	domain.PlatformFilesystem,
	domain.PlatformSpreadsheet,
	domain.PlatformCalendar,
}

// RegisterAll wires one executor per platform into the dispatcher. An
// OPS_EXECUTOR_<PLATFORM>_URL environment variable selects the webhook
// adapter for that platform; otherwise the console adapter is used.
func RegisterAll(d *dispatch.Dispatcher, cfg config.Config) {
	for _, platform := range platforms {
		var exec dispatch.Executor
		if url := endpointFor(platform); url != "" {
			exec = NewWebhook(platform, url)
		} else {
			exec = NewConsole(platform)
		}
		d.Register(platform, exec, cfg.Dispatch.PlatformLimits[string(platform)])
		log.Debug().
			Str("platform", string(platform)).
			Str("executor", exec.Name()).
			Msg("executors: registered")
	}
}

func endpointFor(platform domain.Platform) string {
	key := strings.ToUpper(strings.ReplaceAll(string(platform), "-", "_"))
	return os.Getenv(config.EnvPrefix + "EXECUTOR_" + key + "_URL")
}

// Console is the dry-run adapter: it logs the built payload and returns
// a fabricated reference so the rest of the pipeline behaves as if the
// call succeeded.
type Console struct {
	platform domain.Platform
}

// NewConsole builds a console adapter for one platform.
func NewConsole(platform domain.Platform) *Console {
	return &Console{platform: platform}
}

func (c *Console) Name() string { return "console-" + string(c.platform) }

func (c *Console) Execute(ctx context.Context, p payload.Payload) (map[string]string, error) {
	ref := "dry-" + uuid.NewString()[:8]
	log.Info().
		Str("platform", string(c.platform)).
		Str("action", string(p.Action)).
		Str("ref", ref).
		Interface("fields", p.Fields).
		Msg("executors: dry-run dispatch")
	return map[string]string{"ref": ref}, nil
}
