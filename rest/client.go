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
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gdamore/pidns"
	"golang.org/x/net/context"
)

// LogInfo is a snapshot of the server's event log.
type LogInfo struct {
	etag    string
	Records []pidns.LogRecord
}

// Client talks to a pidnsd server.
type Client struct {
	base   string // URI to root of tree on server
	client *http.Client

	// Cached log, reused when the server reports no change.
	log  *LogInfo
	lock sync.Mutex
}

func (c *Client) url(parts ...string) string {
	u := c.base
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

// do issues a request, and decodes a JSON reply into v.  It returns the
// reply's Etag, or "" when the server answered that nothing changed.
func (c *Client) do(ctx context.Context, method, url, etag string, v interface{}) (string, error) {
	req, e := http.NewRequest(method, url, nil)
	if e != nil {
		return "", e
	}
	req = req.WithContext(ctx)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	res, e := c.client.Do(req)
	if e != nil {
		return "", e
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotModified {
		return "", nil
	}
	body, e := io.ReadAll(res.Body)
	if e != nil {
		return "", e
	}
	if res.StatusCode != http.StatusOK {
		re := &Error{}
		if json.Unmarshal(body, re) != nil || re.Message == "" {
			return "", &Error{Code: res.StatusCode, Message: res.Status}
		}
		re.Code = res.StatusCode
		return "", re
	}
	if v != nil {
		if e := json.Unmarshal(body, v); e != nil {
			return "", e
		}
	}
	return res.Header.Get("Etag"), nil
}

// Namespaces returns the names of live namespaces.
func (c *Client) Namespaces(ctx context.Context) ([]string, error) {
	v := []string{}
	if _, e := c.do(ctx, "GET", c.url("namespaces"), "", &v); e != nil {
		return nil, e
	}
	return v, nil
}

func (c *Client) GetNamespace(ctx context.Context, name string) (*NamespaceInfo, error) {
	v := &NamespaceInfo{}
	if _, e := c.do(ctx, "GET", c.url("namespaces", name), "", v); e != nil {
		return nil, e
	}
	return v, nil
}

func (c *Client) DestroyNamespace(ctx context.Context, name string) error {
	_, e := c.do(ctx, "DELETE", c.url("namespaces", name), "", nil)
	return e
}

// Identify returns the names of the namespace that process pid is in.
func (c *Client) Identify(ctx context.Context, pid string) ([]string, error) {
	v := []string{}
	if _, e := c.do(ctx, "GET", c.url("pids", pid, "namespaces"), "", &v); e != nil {
		return nil, e
	}
	return v, nil
}

func (c *Client) pollLog(ctx context.Context, secs int, last *LogInfo) (*LogInfo, error) {
	c.lock.Lock()
	cached := c.log
	c.lock.Unlock()

	otag := ""
	if last != nil {
		otag = last.etag
	} else if cached != nil {
		otag = cached.etag
		secs = 0
	}

	u := c.url("log")
	if secs > 0 && otag != "" {
		u += "?wait=" + strconv.Itoa(secs)
	}
	v := &LogInfo{}
	etag, e := c.do(ctx, "GET", u, otag, &v.Records)
	if e != nil {
		return nil, e
	}
	if etag == "" {
		if last != nil {
			return last, nil
		}
		return cached, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.log = v
	c.lock.Unlock()
	return v, nil
}

// GetLog returns the event log, without waiting for changes.
func (c *Client) GetLog(ctx context.Context) (*LogInfo, error) {
	return c.pollLog(ctx, 0, nil)
}

// WatchLog waits up to secs seconds for the log to differ from last.
func (c *Client) WatchLog(ctx context.Context, secs int, last *LogInfo) (*LogInfo, error) {
	return c.pollLog(ctx, secs, last)
}

// NewClient returns a Client handle.  The transport may be nil to use
// a default transport.  baseURI is the base URL to use.
func NewClient(t http.RoundTripper, baseURI string) *Client {
	if t == nil {
		t = &http.Transport{}
	}
	return &Client{
		base:   baseURI,
		client: &http.Client{Transport: t},
	}
}
