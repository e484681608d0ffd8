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

// Command pidns creates and enters named, persistent PID namespaces.
//
// The flags are
//
//	-config <file>	- configuration file, default /etc/pidns/config.json
//	-run-dir <dir>	- where namespace handles are kept
//	-log-level <l>	- debug, info, error, or fatal (the default)
//
// Subcommands are
//
//	list                        - list live namespaces (the default)
//	create|add <name> <cmd>...  - run cmd in a new namespace
//	attach|exec <name> <cmd>... - run cmd in an existing namespace
//	destroy|delete <name>       - forget a namespace
//	identify <pid>              - name the namespace of a process
//	help                        - show usage
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"code.cloudfoundry.org/lager/v3"
	"github.com/gdamore/pidns"
	"github.com/gdamore/pidns/config"
)

var configPath string
var runDir string
var logLevel string

var (
	errUsage     = errors.New("Usage")
	errNoName    = fmt.Errorf("No namespace name specified: %w", pidns.ErrInvalidArgument)
	errNoCommand = fmt.Errorf("No command specified: %w", pidns.ErrInvalidArgument)
	errNoPid     = fmt.Errorf("No pid specified: %w", pidns.ErrInvalidArgument)
)

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: pidns [-config <file>] [-run-dir <dir>] [-log-level <level>] <subcommand>\n"+
		"       pidns list\n"+
		"       pidns create NAME cmd ...\n"+
		"       pidns attach NAME cmd ...\n"+
		"       pidns destroy NAME\n"+
		"       pidns identify PID\n")
}

type app struct {
	lc     *pidns.Lifecycle
	ident  *pidns.Identifier
	stdout io.Writer
}

func newApp(logger lager.Logger, cfg *config.ValidatedConfig, stdout io.Writer) *app {
	store := pidns.NewStore(logger, cfg.RunDir, nil)
	fin := pidns.NewExecFinalizer(logger, cfg.ProcDir, cfg.MountProc, os.Environ(), nil)
	lc := pidns.NewLifecycle(logger, store, pidns.NewSupervisor(logger), fin)
	return &app{
		lc:     lc,
		ident:  pidns.NewIdentifier(logger, store, cfg.ProcDir),
		stdout: stdout,
	}
}

func (a *app) run(args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		// Anything after "list" is ignored; listing never fails.
		for name := range a.lc.Store.List() {
			fmt.Fprintln(a.stdout, name)
		}
		return nil

	case "create", "add":
		if len(args) < 2 {
			return errNoName
		}
		if len(args) < 3 {
			return errNoCommand
		}
		return a.lc.Create(args[1], args[2:])

	case "attach", "exec":
		if len(args) < 2 {
			return errNoName
		}
		if len(args) < 3 {
			return errNoCommand
		}
		return a.lc.Attach(args[1], args[2:])

	case "destroy", "delete":
		if len(args) < 2 {
			return errNoName
		}
		if len(args) != 2 {
			return errUsage
		}
		return a.lc.Destroy(args[1])

	case "identify":
		if len(args) < 2 {
			return errNoPid
		}
		if len(args) != 2 {
			return errUsage
		}
		names, err := a.ident.Identify(args[1])
		if err != nil {
			return err
		}
		for name := range names {
			fmt.Fprintln(a.stdout, name)
		}
		return nil

	case "help":
		usage(a.stdout)
		return nil
	}
	return errUsage
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "pidns: %v\n", err)
	os.Exit(1)
}

func main() {
	flag.StringVar(&configPath, "config", "", "configuration file")
	flag.StringVar(&runDir, "run-dir", "", "namespace handle directory")
	flag.StringVar(&logLevel, "log-level", "", "log level")
	flag.Usage = func() { usage(os.Stderr) }
	flag.Parse()

	cfg, err := config.Load(configPath, os.Getenv, func(c *config.Config) {
		if runDir != "" {
			c.RunDir = runDir
		}
		if logLevel != "" {
			c.LogLevel = logLevel
		}
	})
	if err != nil {
		fail(err)
	}

	logger := lager.NewLogger("pidns")
	logger.RegisterSink(lager.NewWriterSink(os.Stderr, cfg.LogLevel))

	if err := newApp(logger, cfg, os.Stdout).run(flag.Args()); err != nil {
		if err == errUsage {
			usage(os.Stderr)
			os.Exit(1)
		}
		fail(err)
	}
}
