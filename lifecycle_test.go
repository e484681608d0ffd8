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

package pidns

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"

	"code.cloudfoundry.org/lager/v3/lagertest"
	"golang.org/x/sys/unix"

	. "github.com/smartystreets/goconvey/convey"
)

type lifecycleFixture struct {
	lc  *Lifecycle
	fm  *fakeMounter
	ops *fakeProcOps
	tr  *fakeTransitioner
	fin *fakeFinalizer
}

func newLifecycleFixture(dir string, env []string) *lifecycleFixture {
	logger := lagertest.NewTestLogger("lifecycle")
	f := &lifecycleFixture{
		fm:  &fakeMounter{},
		ops: &fakeProcOps{statuses: []syscall.WaitStatus{exitedWith(0)}},
		tr:  &fakeTransitioner{},
		fin: &fakeFinalizer{},
	}
	store := NewStore(logger, dir, f.fm)
	f.lc = NewLifecycle(logger, store, newTestSupervisor(env, f.ops), f.fin)
	f.lc.Transitioner = f.tr
	f.lc.Mounter = f.fm
	return f
}

var shell = []string{"sh", "-c", "sleep 1"}

func TestCreate(t *testing.T) {
	Convey("Creating a namespace", t, func() {
		dir := filepath.Join(t.TempDir(), "run")

		Convey("From the invoking process", func() {
			f := newLifecycleFixture(dir, []string{"HOME=/"})
			s := f.lc.Store

			Convey("Prepares the handle, then forks and supervises", func() {
				So(f.lc.Create("web", shell), ShouldBeNil)
				So(s.State("web"), ShouldEqual, Pending)
				So(f.fm.mounts[0], ShouldResemble,
					mountCall{"", dir, "none", unix.MS_SHARED | unix.MS_REC})
				So(f.tr.unshared, ShouldBeTrue)
				So(f.ops.startAttr.Env, ShouldContain, StageEnv+"=create")
				So(f.ops.exited, ShouldBeTrue)
				So(f.fin.argv, ShouldBeNil)
			})

			Convey("Refuses a live name", func() {
				mkLive(s, "web")
				err := f.lc.Create("web", shell)
				So(errors.Is(err, ErrNameInUse), ShouldBeTrue)
				So(f.tr.unshared, ShouldBeFalse)
				So(s.IsLive("web"), ShouldBeTrue)
			})

			Convey("Refuses a name another create is still binding", func() {
				mkPending(s, "web")
				err := f.lc.Create("web", shell)
				So(errors.Is(err, ErrNameInUse), ShouldBeTrue)
				So(f.tr.unshared, ShouldBeFalse)
				So(s.State("web"), ShouldEqual, Pending)
			})

			Convey("Replaces a stale handle", func() {
				mkStale(s, "web")
				So(f.lc.Create("web", shell), ShouldBeNil)
				So(f.tr.unshared, ShouldBeTrue)
			})

			Convey("Rejects bad arguments", func() {
				So(errors.Is(f.lc.Create("a/b", shell), ErrInvalidArgument), ShouldBeTrue)
				So(errors.Is(f.lc.Create("web", nil), ErrInvalidArgument), ShouldBeTrue)
				So(errors.Is(f.lc.Create("web", []string{""}), ErrInvalidArgument), ShouldBeTrue)
				So(f.fm.mounts, ShouldBeEmpty)
			})

			Convey("Stops if the run directory cannot be shared", func() {
				f.fm.mountErrs = []error{unix.EPERM}
				So(errors.Is(f.lc.Create("web", shell), unix.EPERM), ShouldBeTrue)
				So(f.tr.unshared, ShouldBeFalse)
			})

			Convey("Reports a failed unshare", func() {
				f.tr.unshareErr = &OpError{Op: "unshare", Err: unix.EPERM}
				So(errors.Is(f.lc.Create("web", shell), unix.EPERM), ShouldBeTrue)
				So(f.ops.startPath, ShouldBeEmpty)
			})
		})

		Convey("In the forked child", func() {
			f := newLifecycleFixture(dir, []string{"HOME=/", StageEnv + "=create"})
			f.lc.SelfNSDir = "/proc/self/ns"

			Convey("Binds the handle, isolates mounts, and finalizes", func() {
				So(f.lc.Create("web", shell), ShouldBeNil)
				So(f.tr.unshared, ShouldBeFalse)
				So(f.fm.mounts, ShouldResemble, []mountCall{
					{"/proc/self/ns", filepath.Join(dir, "web"), "none", unix.MS_BIND},
					{"", "/", "none", unix.MS_SLAVE | unix.MS_REC},
				})
				So(f.fin.argv, ShouldResemble, shell)
			})

			Convey("Fails if the bind fails", func() {
				f.fm.mountErrs = []error{unix.ENOENT}
				err := f.lc.Create("web", shell)
				So(errors.Is(err, unix.ENOENT), ShouldBeTrue)
				So(f.fin.argv, ShouldBeNil)
			})

			Convey("Passes on a failed exec", func() {
				f.fin.err = &OpError{Op: "exec", Err: unix.ENOENT}
				So(errors.Is(f.lc.Create("web", shell), unix.ENOENT), ShouldBeTrue)
			})
		})
	})
}

func TestConcurrentCreate(t *testing.T) {
	Convey("Two creates of one name", t, func() {
		dir := filepath.Join(t.TempDir(), "run")
		a := newLifecycleFixture(dir, nil)
		b := newLifecycleFixture(dir, nil)

		Convey("Run one after the other, only the first proceeds", func() {
			So(a.lc.Create("web", shell), ShouldBeNil)
			So(a.ops.startPath, ShouldNotBeEmpty)

			err := b.lc.Create("web", shell)
			So(errors.Is(err, ErrNameInUse), ShouldBeTrue)
			So(b.tr.unshared, ShouldBeFalse)
			So(b.ops.startPath, ShouldBeEmpty)
			So(a.lc.Store.State("web"), ShouldEqual, Pending)
		})

		Convey("Run together, have exactly one winner", func() {
			const n = 8
			var wg sync.WaitGroup
			var mu sync.Mutex
			wins, losses := 0, 0
			for i := 0; i < n; i++ {
				f := newLifecycleFixture(dir, nil)
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := f.lc.Create("web", shell)
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						wins++
					} else if errors.Is(err, ErrNameInUse) || errors.Is(err, ErrExist) {
						losses++
					}
				}()
			}
			wg.Wait()
			So(wins, ShouldEqual, 1)
			So(losses, ShouldEqual, n-1)
		})

		Convey("A listing in between leaves the first create alone", func() {
			So(a.lc.Create("web", shell), ShouldBeNil)
			So(collect(a.lc.Store.List()), ShouldBeEmpty)
			So(a.lc.Store.State("web"), ShouldEqual, Pending)
		})
	})
}

func TestAttach(t *testing.T) {
	Convey("Attaching to a namespace", t, func() {
		dir := filepath.Join(t.TempDir(), "run")

		Convey("From the invoking process", func() {
			f := newLifecycleFixture(dir, nil)
			s := f.lc.Store

			Convey("Enters the named namespace and forks", func() {
				mkLive(s, "web")
				So(f.lc.Attach("web", shell), ShouldBeNil)
				So(f.tr.entered, ShouldEqual, s.NamespacePath("web"))
				So(f.ops.startAttr.Env, ShouldContain, StageEnv+"=attach")
				So(f.ops.exited, ShouldBeTrue)
			})

			Convey("Fails for a missing name", func() {
				err := f.lc.Attach("web", shell)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				So(f.tr.entered, ShouldBeEmpty)
			})

			Convey("Leaves a name another create is still binding", func() {
				mkPending(s, "web")
				err := f.lc.Attach("web", shell)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				So(s.State("web"), ShouldEqual, Pending)
			})

			Convey("Cleans up a stale name and fails", func() {
				mkStale(s, "web")
				err := f.lc.Attach("web", shell)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				So(s.State("web"), ShouldEqual, Absent)
			})

			Convey("Reports a namespace that vanished on open", func() {
				mkLive(s, "web")
				f.tr.enterErr = &OpError{Op: "open", Err: ErrNotFound}
				err := f.lc.Attach("web", shell)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				So(err.(*OpError).Name, ShouldEqual, "web")
				So(f.ops.startPath, ShouldBeEmpty)
			})
		})

		Convey("In the forked child", func() {
			f := newLifecycleFixture(dir, []string{StageEnv + "=attach"})

			Convey("Isolates mounts and finalizes", func() {
				So(f.lc.Attach("web", shell), ShouldBeNil)
				So(f.fm.mounts, ShouldResemble, []mountCall{
					{"", "/", "none", unix.MS_SLAVE | unix.MS_REC},
				})
				So(f.fin.argv, ShouldResemble, shell)
			})

			Convey("Fails if mounts cannot be isolated", func() {
				f.fm.mountErrs = []error{unix.EPERM}
				So(errors.Is(f.lc.Attach("web", shell), unix.EPERM), ShouldBeTrue)
				So(f.fin.argv, ShouldBeNil)
			})
		})
	})
}

func TestDestroy(t *testing.T) {
	Convey("Destroying a namespace", t, func() {
		dir := t.TempDir()
		f := newLifecycleFixture(dir, nil)
		s := f.lc.Store

		Convey("Removes a live handle", func() {
			mkLive(s, "web")
			So(f.lc.Destroy("web"), ShouldBeNil)
			So(s.State("web"), ShouldEqual, Absent)
		})

		Convey("Is idempotent", func() {
			So(f.lc.Destroy("web"), ShouldBeNil)
			So(f.lc.Destroy("web"), ShouldBeNil)
		})

		Convey("Rejects bad names", func() {
			So(errors.Is(f.lc.Destroy(""), ErrInvalidArgument), ShouldBeTrue)
			_, err := os.Stat(dir)
			So(err, ShouldBeNil)
		})
	})
}
