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
	"time"

	"code.cloudfoundry.org/lager/v3"
)

// DefaultSweepInterval is how often a Sweeper collects stale handles.
const DefaultSweepInterval = time.Minute

// Sweeper periodically removes stale handles from a Store.  It is an
// ifrit.Runner.
type Sweeper struct {
	Store    *Store
	Interval time.Duration
	Logger   lager.Logger
}

// Sweep collects stale handles once, and returns the number of live
// namespaces seen.
func (sw *Sweeper) Sweep() int {
	n := 0
	for range sw.Store.List() {
		n++
	}
	return n
}

func (sw *Sweeper) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	interval := sw.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	logger := sw.Logger.Session("sweeper", lager.Data{"interval": interval.String()})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("started")
	close(ready)

	for {
		select {
		case <-ticker.C:
			logger.Debug("swept", lager.Data{"live": sw.Sweep()})
		case sig := <-signals:
			logger.Info("stopped", lager.Data{"signal": sig.String()})
			return nil
		}
	}
}
