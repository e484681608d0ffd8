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
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"code.cloudfoundry.org/lager/v3/lagertest"
	"golang.org/x/sys/unix"
)

type mountCall struct {
	source string
	target string
	fstype string
	flags  uintptr
}

// fakeMounter records mounts.  A handle counts as mounted while its
// directory holds a "pid" entry; unmounting removes that entry, and fails
// with EINVAL when there is none, as umount2 does for a non-mount point.
type fakeMounter struct {
	mounts     []mountCall
	unmounts   []string
	mountErrs  []error
	unmountErr error
	sync.Mutex
}

func (m *fakeMounter) Mount(source, target, fstype string, flags uintptr, data string) error {
	m.Lock()
	defer m.Unlock()
	m.mounts = append(m.mounts, mountCall{source, target, fstype, flags})
	if len(m.mountErrs) > 0 {
		e := m.mountErrs[0]
		m.mountErrs = m.mountErrs[1:]
		return e
	}
	return nil
}

func (m *fakeMounter) Unmount(target string, flags int) error {
	m.Lock()
	defer m.Unlock()
	m.unmounts = append(m.unmounts, target)
	if m.unmountErr != nil {
		return m.unmountErr
	}
	if os.Remove(filepath.Join(target, NamespaceEntry)) != nil {
		return unix.EINVAL
	}
	return nil
}

type killCall struct {
	pid int
	sig syscall.Signal
}

type fakeProcOps struct {
	pid       int
	startPath string
	startArgv []string
	startAttr *syscall.ProcAttr
	startErr  error
	waitErrs  []error
	statuses  []syscall.WaitStatus
	kills     []killCall
	raised    []syscall.Signal
	notified  []os.Signal
	stopped   bool
	exited    bool
	exitCode  int
	sync.Mutex
}

func (f *fakeProcOps) start(path string, argv []string, attr *syscall.ProcAttr) (int, error) {
	f.startPath = path
	f.startArgv = argv
	f.startAttr = attr
	if f.startErr != nil {
		return 0, f.startErr
	}
	return 100, nil
}

func (f *fakeProcOps) wait(pid int) (syscall.WaitStatus, error) {
	if len(f.waitErrs) > 0 {
		e := f.waitErrs[0]
		f.waitErrs = f.waitErrs[1:]
		return 0, e
	}
	if len(f.statuses) == 0 {
		return 0, syscall.ECHILD
	}
	ws := f.statuses[0]
	f.statuses = f.statuses[1:]
	return ws, nil
}

func (f *fakeProcOps) kill(pid int, sig syscall.Signal) error {
	f.Lock()
	f.kills = append(f.kills, killCall{pid, sig})
	f.Unlock()
	return nil
}

func (f *fakeProcOps) killed() []killCall {
	f.Lock()
	defer f.Unlock()
	return append([]killCall{}, f.kills...)
}

func (f *fakeProcOps) raise(sig syscall.Signal) error {
	f.raised = append(f.raised, sig)
	return nil
}

func (f *fakeProcOps) notify(c chan<- os.Signal, sigs ...os.Signal) {
	f.notified = append(f.notified, sigs...)
}

func (f *fakeProcOps) stopNotify(c chan<- os.Signal) {
	f.stopped = true
}

func (f *fakeProcOps) getpid() int {
	if f.pid == 0 {
		return 1
	}
	return f.pid
}

func (f *fakeProcOps) exit(code int) {
	f.exited = true
	f.exitCode = code
}

// Wait statuses, as encoded by Linux.
func exitedWith(code int) syscall.WaitStatus {
	return syscall.WaitStatus(code << 8)
}

func stoppedBy(sig syscall.Signal) syscall.WaitStatus {
	return syscall.WaitStatus(0x7f | int(sig)<<8)
}

func killedBy(sig syscall.Signal) syscall.WaitStatus {
	return syscall.WaitStatus(sig)
}

type fakeTransitioner struct {
	unshared   bool
	entered    string
	unshareErr error
	enterErr   error
}

func (t *fakeTransitioner) UnsharePID() error {
	t.unshared = true
	return t.unshareErr
}

func (t *fakeTransitioner) EnterPID(path string) error {
	t.entered = path
	return t.enterErr
}

type fakeFinalizer struct {
	argv []string
	err  error
}

func (f *fakeFinalizer) Finalize(argv []string) error {
	f.argv = argv
	return f.err
}

func newTestSupervisor(env []string, ops *fakeProcOps) *Supervisor {
	return &Supervisor{
		Exe:    "/proc/self/exe",
		Args:   []string{"pidns", "create", "web", "sh"},
		Env:    env,
		logger: lagertest.NewTestLogger("test"),
		ops:    ops,
	}
}
