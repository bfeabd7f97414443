package command

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"runtime/metrics"
	"time"
	"timebot/internal/core/domain"
	"timebot/internal/core/port"

	"github.com/rs/zerolog/log"
)

// GuildLister reports the guilds currently handled by the process.
type GuildLister interface {
	Guilds(ctx context.Context) ([]domain.GuildID, error)
}

// Uptimer reports how long the process has been running and how many gateway connections are live.
type Uptimer interface {
	Uptime() time.Duration
	Connected() int64
}

type Debug struct {
	guilds GuildLister
	state  Uptimer
}

func NewDebug(guilds GuildLister, state Uptimer) *Debug {
	return &Debug{guilds: guilds, state: state}
}

func (d *Debug) Name() string {
	return "debug"
}

func (d *Debug) Description() string {
	return "Shows runtime information about the bot"
}

func (d *Debug) Options() []domain.OptionSchema {
	return nil
}

func (d *Debug) Parse(_ *domain.CommandRequest) (port.Invocation, error) {
	return &debugInvocation{d: d}, nil
}

const kb = 1024
const debugTemplate = `uptime: %s
connections: %d
guilds: %d
allocated mem: %d KB
goroutines running: %d
heap: %d KB
stack: %d KB
compiled with %s for %s-%s
`
const metricCount = 3

type debugInvocation struct {
	d *Debug
}

func (i *debugInvocation) Execute(ctx context.Context, req *domain.CommandRequest) (*domain.Response, error) {
	l := log.With().
		Stringer("guildId", req.GuildID).
		Str("channelId", req.ChannelID).
		Str("command", i.d.Name()).
		Logger()

	l.Info().Msg("handling request")

	guilds, err := i.d.guilds.Guilds(ctx)
	if err != nil {
		return nil, &domain.CommandError{
			Response:   "Could not collect debug information",
			Kind:       domain.FailureError,
			LogMessage: err.Error(),
			Err:        err,
		}
	}

	data := make([]metrics.Sample, metricCount)
	data[0] = metrics.Sample{Name: "/memory/classes/heap/objects:bytes"}
	data[1] = metrics.Sample{Name: "/memory/classes/heap/stacks:bytes"}
	data[2] = metrics.Sample{Name: "/memory/classes/total:bytes"}

	metrics.Read(data)

	goos, goarch := runtime.GOOS, runtime.GOARCH
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "GOOS":
				goos = setting.Value
			case "GOARCH":
				goarch = setting.Value
			}
		}
	}

	return &domain.Response{
		Content: fmt.Sprintf(
			debugTemplate,
			i.d.state.Uptime().Truncate(time.Second),
			i.d.state.Connected(),
			len(guilds),
			data[2].Value.Uint64()/kb,
			runtime.NumGoroutine(),
			data[0].Value.Uint64()/kb,
			data[1].Value.Uint64()/kb,
			runtime.Version(), goos, goarch,
		),
		Ephemeral: true,
	}, nil
}
