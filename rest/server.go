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

package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/lager/v3"
	"github.com/gdamore/pidns"
	"github.com/gorilla/mux"
)

// MaxWatch bounds how long a log request may wait for new records.
const MaxWatch = time.Minute

// Handler serves a namespace store over HTTP.
type Handler struct {
	store  *pidns.Store
	lc     *pidns.Lifecycle
	ident  *pidns.Identifier
	log    *pidns.EventLog
	logger lager.Logger
	r      *mux.Router
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

// errorFor maps namespace errors to HTTP statuses.
func errorFor(err error) *Error {
	switch {
	case errors.Is(err, pidns.ErrInvalidArgument):
		return &Error{http.StatusBadRequest, err.Error()}
	case errors.Is(err, pidns.ErrNotFound):
		return &Error{http.StatusNotFound, err.Error()}
	case errors.Is(err, pidns.ErrNameInUse), errors.Is(err, pidns.ErrExist):
		return &Error{http.StatusConflict, err.Error()}
	}
	return &Error{http.StatusInternalServerError, err.Error()}
}

func (h *Handler) listNamespaces(w http.ResponseWriter, r *http.Request) {
	l := []string{}
	for name := range h.store.Live() {
		l = append(l, name)
	}
	h.writeJson(w, l)
}

func (h *Handler) getNamespace(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := pidns.ValidName(name); err != nil {
		h.writeError(w, errorFor(err))
		return
	}
	st := h.store.State(name)
	if st == pidns.Absent {
		h.writeError(w, &Error{http.StatusNotFound, pidns.ErrNotFound.Error()})
		return
	}
	info := &NamespaceInfo{
		Name:  name,
		State: st.String(),
		Path:  h.store.PathOf(name),
	}
	if st == pidns.Live {
		if id, err := h.ident.Identity(h.store.NamespacePath(name)); err == nil {
			info.Id = id
		}
	}
	h.writeJson(w, info)
}

func (h *Handler) destroyNamespace(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.lc.Destroy(name); err != nil {
		h.logger.Error("destroy-failed", err, lager.Data{"name": name})
		h.writeError(w, errorFor(err))
		return
	}
	h.writeJson(w, ok)
}

func (h *Handler) identifyPid(w http.ResponseWriter, r *http.Request) {
	pid := mux.Vars(r)["pid"]
	names, err := h.ident.Identify(pid)
	if err != nil {
		h.writeError(w, errorFor(err))
		return
	}
	l := []string{}
	for name := range names {
		l = append(l, name)
	}
	h.writeJson(w, l)
}

func parseEtag(s string) int64 {
	s = strings.Trim(strings.TrimPrefix(s, "W/"), "\"")
	id, _ := strconv.ParseInt(s, 10, 64)
	return id
}

// getLog returns the event log.  A client that sends the Etag it last
// saw as If-None-Match gets 304 if nothing changed; with a wait query
// parameter (in seconds) it is held until something does.
func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	last := parseEtag(r.Header.Get("If-None-Match"))
	if s := r.URL.Query().Get("wait"); s != "" && last != 0 {
		secs, err := strconv.Atoi(s)
		if err != nil || secs < 0 {
			h.writeError(w, &Error{http.StatusBadRequest, "Bad wait value"})
			return
		}
		d := time.Duration(secs) * time.Second
		if d > MaxWatch {
			d = MaxWatch
		}
		h.log.Watch(last, d)
	}
	recs, id := h.log.GetRecords(last)
	w.Header().Set("Etag", "\""+strconv.FormatInt(id, 10)+"\"")
	if recs == nil && id == last {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	h.writeJson(w, recs)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

func NewHandler(logger lager.Logger, lc *pidns.Lifecycle, ident *pidns.Identifier, log *pidns.EventLog) *Handler {
	r := mux.NewRouter()
	h := &Handler{
		store:  lc.Store,
		lc:     lc,
		ident:  ident,
		log:    log,
		logger: logger.Session("rest"),
		r:      r,
	}
	r.HandleFunc("/namespaces", h.listNamespaces).Methods("GET")
	r.HandleFunc("/namespaces/{name}", h.getNamespace).Methods("GET")
	r.HandleFunc("/namespaces/{name}", h.destroyNamespace).Methods("DELETE")
	r.HandleFunc("/pids/{pid}/namespaces", h.identifyPid).Methods("GET")
	r.HandleFunc("/log", h.getLog).Methods("GET")
	return h
}
