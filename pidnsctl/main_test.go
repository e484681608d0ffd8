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

package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"code.cloudfoundry.org/lager/v3"
	"code.cloudfoundry.org/lager/v3/lagertest"
	"golang.org/x/net/context"

	"github.com/gdamore/pidns"
	"github.com/gdamore/pidns/rest"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRun(t *testing.T) {
	Convey("Given a server with two namespaces", t, func() {
		logger := lagertest.NewTestLogger("pidnsctl")
		events := pidns.NewEventLog(lager.INFO)
		logger.RegisterSink(events)

		runDir := t.TempDir()
		for _, name := range []string{"web", "db"} {
			So(os.Mkdir(filepath.Join(runDir, name), 0755), ShouldBeNil)
			So(os.WriteFile(filepath.Join(runDir, name, "pid"), nil, 0644), ShouldBeNil)
		}
		store := pidns.NewStore(logger, runDir, nil)
		lc := pidns.NewLifecycle(logger, store, pidns.NewSupervisor(logger), nil)
		srv := httptest.NewServer(rest.NewHandler(logger, lc,
			pidns.NewIdentifier(logger, store, t.TempDir()), events))
		defer srv.Close()

		client := rest.NewClient(nil, srv.URL)
		ctx := context.Background()
		out := &bytes.Buffer{}

		Convey("List prints sorted names", func() {
			So(run(ctx, client, []string{"list"}, out), ShouldBeNil)
			So(out.String(), ShouldEqual, "db\nweb\n")
		})

		Convey("Info prints details", func() {
			So(run(ctx, client, []string{"info", "web"}, out), ShouldBeNil)
			So(out.String(), ShouldContainSubstring, "State:     live")
		})

		Convey("Info of a missing namespace fails", func() {
			So(run(ctx, client, []string{"info", "nope"}, out), ShouldNotBeNil)
		})

		Convey("Log prints records", func() {
			logger.Info("hello")
			So(run(ctx, client, []string{"log"}, out), ShouldBeNil)
			So(out.String(), ShouldContainSubstring, "pidnsctl.hello")
		})
	})
}
