// Command timeserver is the time authority: it virtualizes time for a group
// of cooperating client processes, advancing a simulated clock under their
// control instead of the host's wall clock.
package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/sgerwk/timeserver/clicommand"
	"github.com/sgerwk/timeserver/internal/authority"
	"github.com/sgerwk/timeserver/internal/clock"
	"github.com/sgerwk/timeserver/internal/signalgate"
	"github.com/sgerwk/timeserver/version"
	"github.com/urfave/cli"
)

const description = `timeserver [options]

Virtualizes time for clients that register with it instead of calling the
host's clock and sleep functions directly. Clients block in SLEEP until the
authority's simulated clock reaches their wakeup time; timerun advances that
clock.`

// Config is bound from flags, environment variables, and an optional
// config file by cliconfig.Loader.
type Config struct {
	clicommand.GlobalConfig

	ConfigFile string `cli:"config"`
	Socket     string `cli:"socket" validate:"required"`
	Origin     string `cli:"t"`
	IdleTime   int    `cli:"i"`
	IdleJump   int    `cli:"j"`
	BusyWait   int    `cli:"b"`
	NoFork     bool   `cli:"f"`
}

func main() {
	app := cli.NewApp()
	app.Name = "timeserver"
	app.Version = version.Version()
	app.Usage = "a time authority for simulated-time clients"
	app.Description = description
	app.Flags = append([]cli.Flag{
		clicommand.SocketFlag,
		clicommand.ConfigFileFlag,
		cli.StringFlag{
			Name:  "t",
			Value: "0",
			Usage: `origin time: "now" for the host's wall clock, or a fixed epoch second`,
		},
		cli.IntFlag{
			Name:  "i",
			Value: int(authority.DefaultIdleTime / time.Microsecond),
			Usage: "idle time in microseconds before an idle TIMEOUT fires",
		},
		cli.IntFlag{
			Name:  "j",
			Value: -1,
			Usage: "idle jump in seconds; unset means jump straight to the next wakeup",
		},
		cli.IntFlag{
			Name:  "b",
			Value: authority.DefaultBusyWait,
			Usage: "1-in-N chance a QUERY also nudges the clock forward by a second; 0 disables it",
		},
		cli.BoolFlag{
			Name:  "f",
			Usage: "assume clients never fork or exec (skip idle waits once every client is asleep)",
		},
	}, clicommand.GlobalFlags...)
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, log := clicommand.Load[Config](c)

	authCfg := authority.Config{
		SocketPath: cfg.Socket,
		Origin:     parseOrigin(cfg.Origin),
		IdleTime:   time.Duration(cfg.IdleTime) * time.Microsecond,
		BusyWait:   cfg.BusyWait,
		NoFork:     cfg.NoFork,
		Capacity:   authority.DefaultCapacity,
	}
	if cfg.IdleJump >= 0 {
		authCfg.IdleJumpSet = true
		authCfg.IdleJump = int64(cfg.IdleJump)
	}

	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(os.Getpid())))
	clk := clock.New(authCfg.Origin, authCfg.IdleJumpSet, authCfg.IdleJump, authCfg.BusyWait, authCfg.NoFork, rng)

	a, err := authority.New(log, authCfg, clk, os.Stdout)
	if err != nil {
		return err
	}

	gate := signalgate.Watch(log)
	log.Notice("timeserver listening on %s", authCfg.SocketPath)

	return a.Run(context.Background(), gate)
}

func parseOrigin(t string) int64 {
	if t == "now" {
		return time.Now().Unix()
	}
	var origin int64
	if _, err := fmt.Sscanf(t, "%d", &origin); err != nil {
		return 0
	}
	return origin
}
