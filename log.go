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
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/lager/v3"
)

const (
	MaxLogRecords = 1000
)

type LogRecord struct {
	Id    int64     `json:"id,string"`
	Time  time.Time `json:"time"`
	Level string    `json:"level"`
	Text  string    `json:"text"`
}

// EventLog keeps the most recent log messages in memory, so that they
// can be served to clients.  It is a lager.Sink.
type EventLog struct {
	records    []LogRecord
	numRecords int
	maxRecords int
	minLevel   lager.LogLevel
	id         int64
	cvs        map[*sync.Cond]bool
	mx         sync.Mutex
}

// NewEventLog returns an EventLog that keeps messages at or above level.
func NewEventLog(level lager.LogLevel) *EventLog {
	return &EventLog{
		maxRecords: MaxLogRecords,
		minLevel:   level,
		id:         time.Now().UnixNano(),
		cvs:        make(map[*sync.Cond]bool),
	}
}

func levelName(l lager.LogLevel) string {
	switch l {
	case lager.DEBUG:
		return "debug"
	case lager.INFO:
		return "info"
	case lager.ERROR:
		return "error"
	case lager.FATAL:
		return "fatal"
	}
	return "unknown"
}

func formatRecord(lf lager.LogFormat) string {
	var sb strings.Builder
	sb.WriteString(lf.Message)
	keys := make([]string, 0, len(lf.Data))
	for k := range lf.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, lf.Data[k])
	}
	return sb.String()
}

// Log implements lager.Sink.
func (log *EventLog) Log(lf lager.LogFormat) {
	if lf.LogLevel < log.minLevel {
		return
	}
	log.mx.Lock()
	defer log.mx.Unlock()

	if log.records == nil {
		log.records = make([]LogRecord, log.maxRecords)
	}
	idx := log.numRecords % log.maxRecords
	log.id++
	log.records[idx] = LogRecord{
		Id:    log.id,
		Time:  time.Now(),
		Level: levelName(lf.LogLevel),
		Text:  formatRecord(lf),
	}
	// numRecords keeps counting past maxRecords; it tracks the next slot.
	log.numRecords++
	for cv := range log.cvs {
		cv.Broadcast()
	}
}

func (log *EventLog) Clear() {
	log.mx.Lock()
	log.numRecords = 0
	log.id = time.Now().UnixNano()
	log.mx.Unlock()
}

// GetRecords returns the stored records, oldest first, and an ID that
// changes whenever the log does.  If last is the current ID, nothing is
// returned.  The ID is suitable for use as an Etag.
func (log *EventLog) GetRecords(last int64) ([]LogRecord, int64) {
	log.mx.Lock()
	defer log.mx.Unlock()

	if log.id == last {
		return nil, last
	}
	cnt := log.numRecords
	if cnt > log.maxRecords {
		cnt = log.maxRecords
	}
	recs := make([]LogRecord, 0, cnt)
	index := log.numRecords - cnt
	for j := 0; j < cnt; j++ {
		recs = append(recs, log.records[index%log.maxRecords])
		index++
	}
	return recs, log.id
}

// Watch blocks until the log ID differs from last, or until expire has
// passed, and returns the ID at that time.  A zero expire does not wait.
func (log *EventLog) Watch(last int64, expire time.Duration) int64 {
	expired := false
	var timer *time.Timer
	cv := sync.NewCond(&log.mx)
	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			log.mx.Lock()
			expired = true
			cv.Broadcast()
			log.mx.Unlock()
		})
	} else {
		expired = true
	}

	log.mx.Lock()
	log.cvs[cv] = true
	for log.id == last && !expired {
		cv.Wait()
	}
	delete(log.cvs, cv)
	last = log.id
	log.mx.Unlock()
	if timer != nil {
		timer.Stop()
	}
	return last
}
