// Copyright 2026 The Pidns Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command pidnsd serves the namespace store over HTTP, and removes stale
// handles in the background.
package main

import (
	"flag"
	"fmt"
	"os"

	"code.cloudfoundry.org/lager/v3"
	"github.com/gdamore/pidns"
	"github.com/gdamore/pidns/config"
	"github.com/gdamore/pidns/rest"
	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/grouper"
	"github.com/tedsuo/ifrit/http_server"
	"github.com/tedsuo/ifrit/sigmon"
)

var configPath string
var addr string
var runDir string
var logLevel string

func members(logger lager.Logger, cfg *config.ValidatedConfig, events *pidns.EventLog) grouper.Members {
	store := pidns.NewStore(logger, cfg.RunDir, nil)
	lc := pidns.NewLifecycle(logger, store, pidns.NewSupervisor(logger), nil)
	ident := pidns.NewIdentifier(logger, store, cfg.ProcDir)

	return grouper.Members{
		{Name: "sweeper", Runner: &pidns.Sweeper{
			Store:    store,
			Interval: cfg.SweepInterval,
			Logger:   logger,
		}},
		{Name: "http_server", Runner: http_server.New(cfg.ListenAddress,
			rest.NewHandler(logger, lc, ident, events))},
	}
}

// The daemon logs at info unless the configuration file or the flags say
// otherwise.
func loadConfig(getenv func(string) string) (*config.ValidatedConfig, error) {
	base := config.DefaultConfig()
	base.LogLevel = "info"
	return config.LoadOver(base, configPath, getenv, func(c *config.Config) {
		if addr != "" {
			c.ListenAddress = addr
		}
		if runDir != "" {
			c.RunDir = runDir
		}
		if logLevel != "" {
			c.LogLevel = logLevel
		}
	})
}

func main() {
	flag.StringVar(&configPath, "config", "", "configuration file")
	flag.StringVar(&addr, "a", "", "listen address")
	flag.StringVar(&runDir, "run-dir", "", "namespace handle directory")
	flag.StringVar(&logLevel, "log-level", "", "log level, default info")
	flag.Parse()

	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pidnsd: %v\n", err)
		os.Exit(1)
	}

	logger := lager.NewLogger("pidnsd")
	logger.RegisterSink(lager.NewWriterSink(os.Stdout, cfg.LogLevel))
	events := pidns.NewEventLog(lager.INFO)
	logger.RegisterSink(events)

	group := grouper.NewOrdered(os.Interrupt, members(logger, cfg, events))
	monitor := ifrit.Invoke(sigmon.New(group))
	logger.Info("started", lager.Data{"address": cfg.ListenAddress, "run_dir": cfg.RunDir})

	if err := <-monitor.Wait(); err != nil {
		logger.Error("exited-with-failure", err)
		os.Exit(1)
	}
	logger.Info("exited")
}
