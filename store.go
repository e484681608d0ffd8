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
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"code.cloudfoundry.org/lager/v3"
	"golang.org/x/sys/unix"
)

const (
	// DefaultRunDir is where handles live unless configured otherwise.
	DefaultRunDir = "/var/run/pidns"

	// NamespaceEntry is the entry, inside a handle directory, that refers
	// to the PID namespace object itself.
	NamespaceEntry = "pid"

	// DefaultCreateGrace is how long an unmounted handle directory is
	// taken to belong to a create that has not bound it yet.
	DefaultCreateGrace = 30 * time.Second

	maxNameLen = 255
	scanBatch  = 64
)

// State is the computed condition of a named handle.  It is never stored.
type State int

const (
	Absent State = iota
	Stale
	Pending
	Live
)

func (st State) String() string {
	switch st {
	case Live:
		return "live"
	case Pending:
		return "creating"
	case Stale:
		return "stale"
	default:
		return "absent"
	}
}

// Mounter abstracts mount(2) and umount2(2).
type Mounter interface {
	Mount(source, target, fstype string, flags uintptr, data string) error
	Unmount(target string, flags int) error
}

type sysMounter struct{}

func (sysMounter) Mount(source, target, fstype string, flags uintptr, data string) error {
	return unix.Mount(source, target, fstype, flags, data)
}

func (sysMounter) Unmount(target string, flags int) error {
	return unix.Unmount(target, flags)
}

// SysMounter performs real mounts.
var SysMounter Mounter = sysMounter{}

// ValidName checks that name can be used as a single path segment in the
// run directory.  Names starting with a dot are reserved.
func ValidName(name string) error {
	if name == "" || len(name) > maxNameLen ||
		strings.HasPrefix(name, ".") ||
		strings.ContainsAny(name, "/\x00") {
		return &OpError{Op: "validate name", Name: name, Err: ErrInvalidArgument}
	}
	return nil
}

// Store maps names to namespace handles below a run directory.  It holds
// no state of its own beyond the directory location; everything else is
// read back from the filesystem on every call, since other invocations may
// change it at any time.
type Store struct {
	dir     string
	mounter Mounter
	grace   time.Duration
	now     func() time.Time
	logger  lager.Logger
}

// NewStore returns a Store rooted at dir.  The directory is not created
// until a namespace is created in it.
func NewStore(logger lager.Logger, dir string, mounter Mounter) *Store {
	if dir == "" {
		dir = DefaultRunDir
	}
	if mounter == nil {
		mounter = SysMounter
	}
	return &Store{
		dir:     dir,
		mounter: mounter,
		grace:   DefaultCreateGrace,
		now:     time.Now,
		logger:  logger.Session("store"),
	}
}

// SetCreateGrace changes how long a fresh, unmounted handle directory is
// left alone.  Zero makes every such directory stale at once.
func (s *Store) SetCreateGrace(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.grace = d
}

func (s *Store) Dir() string {
	return s.dir
}

// PathOf returns the handle directory for name.
func (s *Store) PathOf(name string) string {
	return filepath.Join(s.dir, name)
}

// NamespacePath returns the path of the namespace object for name.
func (s *Store) NamespacePath(name string) string {
	return filepath.Join(s.dir, name, NamespaceEntry)
}

// IsLive reports whether the namespace object behind name is reachable.
// The answer may be out of date as soon as it is returned.
func (s *Store) IsLive(name string) bool {
	if ValidName(name) != nil {
		return false
	}
	return unix.Access(s.NamespacePath(name), unix.F_OK) == nil
}

// State classifies name.  A handle directory that is not live is Stale if
// it is a mount point, which means its namespace went away, or if it has
// sat unmounted for longer than the create grace period.  Younger unmounted
// directories are Pending: a create has claimed the name and its child has
// not bound the namespace yet.  A handle whose mount has gone bad and
// cannot be stat'ed is Stale.
func (s *Store) State(name string) State {
	if s.IsLive(name) {
		return Live
	}
	if ValidName(name) != nil {
		return Absent
	}
	var st unix.Stat_t
	if err := unix.Lstat(s.PathOf(name), &st); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Absent
		}
		return Stale
	}
	if s.stale(&st) {
		return Stale
	}
	return Pending
}

func (s *Store) stale(st *unix.Stat_t) bool {
	if s.mountPoint(st) {
		return true
	}
	mtime := time.Unix(st.Mtim.Unix())
	return s.now().Sub(mtime) >= s.grace
}

// A handle is a mount point when it sits on another device than the run
// directory.  The bound namespace directory always lives on procfs.
func (s *Store) mountPoint(st *unix.Stat_t) bool {
	var parent unix.Stat_t
	if err := unix.Stat(s.dir, &parent); err != nil {
		return false
	}
	return st.Dev != parent.Dev
}

// Cleanup detaches the handle mount, if any, and removes the handle
// directory.  A directory that is already gone is not an error.
func (s *Store) Cleanup(name string) error {
	if err := ValidName(name); err != nil {
		return err
	}
	logger := s.logger.Session("cleanup", lager.Data{"name": name})
	path := s.PathOf(name)

	// Expected to fail when nothing is mounted there.
	if err := s.mounter.Unmount(path, unix.MNT_DETACH); err != nil {
		logger.Debug("unmount-skipped", lager.Data{"reason": err.Error()})
	}

	if err := unix.Rmdir(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("already-gone")
			return nil
		}
		logger.Error("rmdir-failed", err)
		return &OpError{Op: "remove", Name: name, Path: path, Err: err}
	}
	logger.Info("removed")
	return nil
}

// Reclaim removes the handle for name if it is stale.  It leaves live and
// pending handles in place and reports ErrNameInUse for them; an absent
// name is not an error.
//
// The unmounted directory is first renamed to a reserved name and then
// checked to be the one that was judged stale.  If another invocation
// replaced it in between, the directory is put back, so a reclaim can
// never remove a handle that a concurrent create has just made.
func (s *Store) Reclaim(name string) error {
	if err := ValidName(name); err != nil {
		return err
	}
	logger := s.logger.Session("reclaim", lager.Data{"name": name})
	path := s.PathOf(name)

	if s.IsLive(name) {
		return &OpError{Op: "reclaim", Name: name, Path: path, Err: ErrNameInUse}
	}

	// A plain directory is pinned by its inode before anything else
	// happens.  A mount point is detached first and the directory under
	// it pinned afterwards; nobody else can remove it while mounted.
	var st unix.Stat_t
	err := unix.Lstat(path, &st)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err == nil && !s.mountPoint(&st):
		if !s.stale(&st) {
			return &OpError{Op: "reclaim", Name: name, Path: path, Err: ErrNameInUse}
		}
	default:
		if err := s.mounter.Unmount(path, unix.MNT_DETACH); err != nil {
			logger.Debug("unmount-skipped", lager.Data{"reason": err.Error()})
		}
		if err := unix.Lstat(path, &st); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			logger.Error("stat-failed", err)
			return &OpError{Op: "stat", Name: name, Path: path, Err: err}
		}
	}

	grave := filepath.Join(s.dir, fmt.Sprintf(".reclaim.%d.%d", os.Getpid(), st.Ino))
	if err := unix.Renameat2(unix.AT_FDCWD, path, unix.AT_FDCWD, grave, unix.RENAME_NOREPLACE); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		logger.Error("rename-failed", err)
		return &OpError{Op: "rename", Name: name, Path: path, Err: err}
	}

	var moved unix.Stat_t
	if err := unix.Lstat(grave, &moved); err == nil && (moved.Dev != st.Dev || moved.Ino != st.Ino) {
		logger.Info("replaced-concurrently")
		if err := unix.Renameat2(unix.AT_FDCWD, grave, unix.AT_FDCWD, path, unix.RENAME_NOREPLACE); err != nil {
			logger.Error("restore-failed", err)
		}
		return &OpError{Op: "reclaim", Name: name, Path: path, Err: ErrNameInUse}
	}

	if err := unix.Rmdir(grave); err != nil {
		logger.Error("rmdir-failed", err)
		unix.Renameat2(unix.AT_FDCWD, grave, unix.AT_FDCWD, path, unix.RENAME_NOREPLACE)
		return &OpError{Op: "remove", Name: name, Path: path, Err: err}
	}
	logger.Info("reclaimed")
	return nil
}

// EnsureRunDirShared creates the run directory and makes it a mount point
// with shared, recursive propagation, so that unmounting a handle anywhere
// releases it everywhere.  If the directory is not yet a mount point it is
// bound onto itself, and the propagation change is tried once more.
func (s *Store) EnsureRunDirShared() error {
	logger := s.logger.Session("ensure-run-dir", lager.Data{"dir": s.dir})

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		logger.Error("mkdir-failed", err)
		return &OpError{Op: "mkdir", Path: s.dir, Err: err}
	}

	bound := false
	for {
		err := s.mounter.Mount("", s.dir, "none", unix.MS_SHARED|unix.MS_REC, "")
		if err == nil {
			logger.Debug("shared")
			return nil
		}
		if !errors.Is(err, unix.EINVAL) || bound {
			logger.Error("make-shared-failed", err)
			return &OpError{Op: "mount --make-rshared", Path: s.dir, Err: err}
		}
		if err := s.mounter.Mount(s.dir, s.dir, "none", unix.MS_BIND, ""); err != nil {
			logger.Error("self-bind-failed", err)
			return &OpError{Op: "mount --bind", Path: s.dir, Err: err}
		}
		logger.Info("self-bound")
		bound = true
	}
}

// CreateHandleDir creates the handle directory for name.  The mkdir is
// atomic, which makes it the one point where two concurrent creates of
// the same name are told apart: the loser gets ErrExist.
func (s *Store) CreateHandleDir(name string) (string, error) {
	if err := ValidName(name); err != nil {
		return "", err
	}
	path := s.PathOf(name)
	if err := os.Mkdir(path, 0755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", &OpError{Op: "create", Name: name, Path: path, Err: ErrExist}
		}
		s.logger.Error("mkdir-failed", err, lager.Data{"name": name})
		return "", &OpError{Op: "mkdir", Name: name, Path: path, Err: err}
	}
	s.logger.Info("handle-dir-created", lager.Data{"name": name, "path": path})
	return path, nil
}

// List yields the names of live namespaces.  Stale handles met along the
// way are reclaimed and not yielded; this is where stale handles are
// collected in bulk.  Pending handles are neither yielded nor touched.
func (s *Store) List() iter.Seq[string] {
	return s.scan(true)
}

// Live yields the names of live namespaces without touching the others.
func (s *Store) Live() iter.Seq[string] {
	return s.scan(false)
}

func (s *Store) scan(collect bool) iter.Seq[string] {
	return func(yield func(string) bool) {
		d, err := os.Open(s.dir)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.logger.Error("open-run-dir-failed", err)
			}
			return
		}
		defer d.Close()

		for {
			entries, err := d.ReadDir(scanBatch)
			for _, ent := range entries {
				name := ent.Name()
				if !ent.IsDir() || ValidName(name) != nil {
					continue
				}
				if s.IsLive(name) {
					if !yield(name) {
						return
					}
				} else if collect {
					s.Reclaim(name)
				}
			}
			if err != nil {
				if err != io.EOF {
					s.logger.Error("read-run-dir-failed", err)
				}
				return
			}
		}
	}
}
