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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"code.cloudfoundry.org/lager/v3/lagertest"
	"github.com/gdamore/pidns"
	"github.com/gdamore/pidns/config"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCommands(t *testing.T) {
	Convey("Given the command over an empty run directory", t, func() {
		runDir := t.TempDir()
		out := &bytes.Buffer{}
		cfg := &config.ValidatedConfig{RunDir: runDir, ProcDir: t.TempDir()}
		a := newApp(lagertest.NewTestLogger("pidns"), cfg, out)

		live := filepath.Join(runDir, "web")
		So(os.Mkdir(live, 0755), ShouldBeNil)
		So(os.WriteFile(filepath.Join(live, pidns.NamespaceEntry), nil, 0644), ShouldBeNil)

		Convey("List is the default and prints live names", func() {
			So(a.run(nil), ShouldBeNil)
			So(out.String(), ShouldEqual, "web\n")
		})

		Convey("List collects stale handles", func() {
			old := filepath.Join(runDir, "old")
			So(os.Mkdir(old, 0755), ShouldBeNil)
			then := time.Now().Add(-time.Hour)
			So(os.Chtimes(old, then, then), ShouldBeNil)
			So(a.run([]string{"list"}), ShouldBeNil)
			So(out.String(), ShouldEqual, "web\n")
			_, err := os.Stat(old)
			So(os.IsNotExist(err), ShouldBeTrue)
		})

		Convey("List leaves a namespace that is still being created", func() {
			So(os.Mkdir(filepath.Join(runDir, "new"), 0755), ShouldBeNil)
			So(a.run([]string{"list"}), ShouldBeNil)
			So(out.String(), ShouldEqual, "web\n")
			_, err := os.Stat(filepath.Join(runDir, "new"))
			So(err, ShouldBeNil)
		})

		Convey("List ignores extra arguments", func() {
			So(a.run([]string{"list", "extra"}), ShouldBeNil)
			So(out.String(), ShouldEqual, "web\n")
		})

		Convey("Help prints usage", func() {
			So(a.run([]string{"help"}), ShouldBeNil)
			So(out.String(), ShouldContainSubstring, "pidns create NAME")
		})

		Convey("Missing arguments are reported", func() {
			So(a.run([]string{"add"}), ShouldEqual, errNoName)
			So(a.run([]string{"create", "web"}), ShouldEqual, errNoCommand)
			So(a.run([]string{"exec", "web"}), ShouldEqual, errNoCommand)
			So(a.run([]string{"delete"}), ShouldEqual, errNoName)
			So(a.run([]string{"identify"}), ShouldEqual, errNoPid)
			So(a.run([]string{"bogus"}), ShouldEqual, errUsage)
			So(errors.Is(errNoCommand, pidns.ErrInvalidArgument), ShouldBeTrue)
		})

		Convey("Destroy of a stale name succeeds", func() {
			So(os.Mkdir(filepath.Join(runDir, "old"), 0755), ShouldBeNil)
			So(a.run([]string{"destroy", "old"}), ShouldBeNil)
			So(a.run([]string{"destroy", "old"}), ShouldBeNil)
		})

		Convey("Attach to a missing name fails", func() {
			err := a.run([]string{"attach", "nope", "sh"})
			So(errors.Is(err, pidns.ErrNotFound), ShouldBeTrue)
		})

		Convey("Identify rejects a malformed pid", func() {
			err := a.run([]string{"identify", "abc"})
			So(errors.Is(err, pidns.ErrInvalidArgument), ShouldBeTrue)
		})

		Convey("Identify of a process outside named namespaces prints nothing", func() {
			nsDir := filepath.Join(cfg.ProcDir, "5", "ns")
			So(os.MkdirAll(nsDir, 0755), ShouldBeNil)
			So(os.WriteFile(filepath.Join(nsDir, "pid"), nil, 0644), ShouldBeNil)
			So(a.run([]string{"identify", "5"}), ShouldBeNil)
			So(out.String(), ShouldBeEmpty)
		})
	})
}
