// Command relaybot is a modular, hot-reloadable IRC bot.
// Configuration is entirely environment-driven; there are
// no command-line flags beyond -version, following the original
// program's own environment-first configuration style.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/relaybot/relaybot/internal/config"
	"github.com/relaybot/relaybot/internal/core"
	"github.com/relaybot/relaybot/internal/ipc"
	"github.com/relaybot/relaybot/internal/ircnet"
	"github.com/relaybot/relaybot/internal/mainloop"
	"github.com/relaybot/relaybot/internal/module"
	"github.com/relaybot/relaybot/internal/rlog"
	"github.com/relaybot/relaybot/modules/chans"
	"github.com/relaybot/relaybot/modules/helloworld"
)

const banner = "relaybot - a modular, hot-reloadable IRC bot"

var fVersion = flag.Bool("version", false, "print the version and exit")

const version = "0.1.0"

func usage() {
	fmt.Println(banner)
	fmt.Println("usage: relaybot")
	fmt.Println("configuration is read from the environment; see DESIGN.md")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *fVersion {
		fmt.Println("relaybot", version)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "relaybot: fatal startup error:", err)
		os.Exit(1)
	}

	if lvl, err := rlog.ParseLevel(cfg.LogLevel); err == nil {
		rlog.SetLevel(lvl)
	}
	if cfg.LogFile != "" {
		if err := rlog.AddFile(cfg.LogFile); err != nil {
			fmt.Fprintln(os.Stderr, "relaybot: log file:", err)
			os.Exit(1)
		}
	}

	rlog.Info(banner)

	if err := run(cfg); err != nil {
		rlog.Error("fatal: %v", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func run(cfg *config.Config) error {
	reg, err := module.NewRegistry(cfg.ModuleDir, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("module registry: %w", err)
	}
	defer reg.Close()

	channels := core.NewChannelRegistry(filepath.Join(cfg.DataDir, "core.data"))
	if err := channels.Load(); err != nil {
		return fmt.Errorf("load channel registry: %w", err)
	}

	c := core.New(cfg, reg, channels)
	svc := c.Services()

	// Built-in modules install the same way any plugin does, just
	// without an on-disk artifact to hot-reload.
	if err := reg.Register(chans.New(cfg.Admin, cfg.BotOwner), "", time.Time{}, svc); err != nil {
		rlog.Warn("install chans: %v", err)
	}
	if err := reg.Register(helloworld.New(cfg.ControlChar, cfg.ControlChar2), "", time.Time{}, svc); err != nil {
		rlog.Warn("install helloworld: %v", err)
	}

	reg.Discover(svc)

	client := ircnet.New(cfg)

	bus, err := ipc.New(cfg)
	if err != nil {
		rlog.Warn("ipc bus disabled: %v", err)
		bus = nil
	} else {
		c.IPC = bus
	}

	loop := mainloop.New(cfg, c, client, bus)
	return loop.Run(context.Background())
}
