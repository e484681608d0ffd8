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

// Command pidnsctl is a client for pidnsd.
//
// The flags are
//
//	-a <address>	- server address, default http://127.0.0.1:8321
//	-t <timeout>	- request timeout, default 5s
//	-l <file>	- debug log for the ui subcommand
//
// Subcommands are
//
//	list            - list live namespaces
//	info <name>     - show details of a namespace
//	destroy <name>  - destroy a namespace
//	identify <pid>  - name the namespace of a process
//	log             - show the server's event log
//	ui              - interactive view (the default)
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"time"

	"code.cloudfoundry.org/lager/v3"
	"golang.org/x/net/context"

	"github.com/gdamore/pidns/pidnsctl/ui"
	"github.com/gdamore/pidns/rest"
)

var addr string = "http://127.0.0.1:8321"
var timeout time.Duration = 5 * time.Second
var logFile string

func usage() {
	log.Fatalf("Usage: %s [-a <address>] [-t <timeout>] <subcommand>",
		os.Args[0])
}

func run(ctx context.Context, client *rest.Client, args []string, w io.Writer) error {
	switch args[0] {
	case "list":
		names, e := client.Namespaces(ctx)
		if e != nil {
			return e
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintln(w, name)
		}
	case "info":
		s, e := client.GetNamespace(ctx, args[1])
		if e != nil {
			return e
		}
		fmt.Fprintf(w, "Name:      %s\n", s.Name)
		fmt.Fprintf(w, "State:     %s\n", s.State)
		fmt.Fprintf(w, "Path:      %s\n", s.Path)
		fmt.Fprintf(w, "Id:        %s\n", s.Id)
	case "destroy":
		return client.DestroyNamespace(ctx, args[1])
	case "identify":
		names, e := client.Identify(ctx, args[1])
		if e != nil {
			return e
		}
		for _, name := range names {
			fmt.Fprintln(w, name)
		}
	case "log":
		li, e := client.GetLog(ctx)
		if e != nil {
			return e
		}
		for _, r := range li.Records {
			fmt.Fprintln(w, ui.FormatRecord(r))
		}
	}
	return nil
}

func main() {
	flag.StringVar(&addr, "a", addr, "pidnsd address")
	flag.DurationVar(&timeout, "t", timeout, "request timeout")
	flag.StringVar(&logFile, "l", "", "ui debug log file")
	flag.Parse()

	client := rest.NewClient(nil, addr)

	args := flag.Args()
	if len(args) == 0 {
		args = []string{"ui"}
	}

	nargs := map[string]int{
		"list": 1, "log": 1, "ui": 1,
		"info": 2, "destroy": 2, "identify": 2,
	}
	if n, ok := nargs[args[0]]; !ok || n != len(args) {
		usage()
	}

	if args[0] == "ui" {
		// The terminal belongs to the UI.
		logger := lager.NewLogger("pidnsctl")
		if logFile != "" {
			f, e := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if e != nil {
				log.Fatalf("Failed: %v", e)
			}
			defer f.Close()
			logger.RegisterSink(lager.NewWriterSink(f, lager.DEBUG))
		}
		if e := ui.NewApp(logger, client, addr).Run(); e != nil {
			log.Fatalf("Failed: %v", e)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if e := run(ctx, client, args, os.Stdout); e != nil {
		log.Fatalf("Failed: %v", e)
	}
}
