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
	"io/fs"
	"iter"
	"path/filepath"

	"code.cloudfoundry.org/lager/v3"
	"github.com/vishvananda/netns"
)

// DefaultProcDir is where process information is read from.
const DefaultProcDir = "/proc"

// Identifier finds the names under which a process's PID namespace is
// known.
type Identifier struct {
	Store   *Store
	ProcDir string

	logger lager.Logger
}

func NewIdentifier(logger lager.Logger, store *Store, procDir string) *Identifier {
	if procDir == "" {
		procDir = DefaultProcDir
	}
	return &Identifier{
		Store:   store,
		ProcDir: procDir,
		logger:  logger.Session("identify"),
	}
}

// Identity returns a string that is equal for two paths exactly when
// they refer to the same namespace object.
func (id *Identifier) Identity(path string) (string, error) {
	h, err := netns.GetFromPath(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &OpError{Op: "open", Path: path, Err: ErrNotFound}
		}
		return "", &OpError{Op: "open", Path: path, Err: err}
	}
	defer h.Close()
	return h.UniqueId(), nil
}

// ValidPid checks that pid is a string of decimal digits.
func ValidPid(pid string) error {
	if pid == "" {
		return &OpError{Op: "validate pid", Err: ErrInvalidArgument}
	}
	for _, c := range pid {
		if c < '0' || c > '9' {
			return &OpError{Op: "validate pid", Name: pid, Err: ErrInvalidArgument}
		}
	}
	return nil
}

// Identify yields the names of live namespaces that pid is in.  The
// process's namespace is looked up before Identify returns; the handles
// are only compared against it as the result is consumed.  A process in
// an unnamed namespace yields nothing.
func (id *Identifier) Identify(pid string) (iter.Seq[string], error) {
	if err := ValidPid(pid); err != nil {
		return nil, err
	}
	target, err := id.Identity(filepath.Join(id.ProcDir, pid, "ns", "pid"))
	if err != nil {
		id.logger.Error("open-process-namespace-failed", err, lager.Data{"pid": pid})
		return nil, err
	}
	logger := id.logger.Session("match", lager.Data{"pid": pid, "id": target})

	return func(yield func(string) bool) {
		for name := range id.Store.Live() {
			ident, err := id.Identity(id.Store.NamespacePath(name))
			if err != nil {
				// Went away since the scan saw it.
				logger.Debug("skipped", lager.Data{"name": name, "reason": err.Error()})
				continue
			}
			if ident == target {
				logger.Debug("matched", lager.Data{"name": name})
				if !yield(name) {
					return
				}
			}
		}
	}, nil
}
