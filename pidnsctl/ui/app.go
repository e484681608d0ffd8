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

// Package ui is a terminal view of a pidnsd server.
package ui

import (
	"sort"
	"time"

	"code.cloudfoundry.org/lager/v3"
	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"
	"golang.org/x/net/context"

	"github.com/gdamore/pidns/rest"
)

type App struct {
	app     *views.Application
	view    views.View
	panel   views.Widget
	main    *MainPanel
	log     *LogPanel
	client  *rest.Client
	logger  lager.Logger
	items   []*rest.NamespaceInfo
	err     error
	logInfo *rest.LogInfo
	logErr  error

	views.WidgetWatchers
}

func (a *App) show(w views.Widget) {
	if w != a.panel {
		a.panel.SetView(nil)
		a.panel = w
	}
	a.panel.SetView(a.view)
	a.panel.Resize()
	a.app.Refresh()
}

func (a *App) ShowLog() {
	a.show(a.log)
}

func (a *App) ShowMain() {
	a.show(a.main)
}

func (a *App) DestroyNamespace(name string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.client.DestroyNamespace(ctx, name); err != nil {
			a.logger.Error("destroy-failed", err, lager.Data{"name": name})
		}
	}()
}

func (a *App) Quit() {
	a.app.Quit()
}

func (a *App) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyCtrlC:
			a.Quit()
			return true
		case tcell.KeyCtrlL:
			a.app.Refresh()
			return true
		}
	}

	if a.panel != nil {
		return a.panel.HandleEvent(ev)
	}
	return false
}

func (a *App) Draw() {
	if a.panel != nil {
		a.panel.Draw()
	}
}

func (a *App) Resize() {
	if a.panel != nil {
		a.panel.Resize()
	}
}

func (a *App) SetView(view views.View) {
	a.view = view
	if a.panel != nil {
		a.panel.SetView(view)
	}
}

func (a *App) Size() (int, int) {
	if a.panel != nil {
		return a.panel.Size()
	}
	return 0, 0
}

func (a *App) GetAppName() string {
	return "pidns"
}

func NewApp(logger lager.Logger, client *rest.Client, url string) *App {
	app := &App{}
	app.app = &views.Application{}
	app.client = client
	app.logger = logger.Session("ui")
	app.log = NewLogPanel(app)
	app.main = NewMainPanel(app, url)
	app.panel = app.main
	return app
}

// GetItems fetches the state of every namespace.  Live ones sort first.
func GetItems(ctx context.Context, client *rest.Client) ([]*rest.NamespaceInfo, error) {
	names, e := client.Namespaces(ctx)
	if e != nil {
		return nil, e
	}
	items := make([]*rest.NamespaceInfo, 0, len(names))
	for _, n := range names {
		if item, e := client.GetNamespace(ctx, n); e == nil {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].State != items[j].State {
			return items[i].State == "live"
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

// refresh polls the server, since the namespace list has no change
// notification.
func (a *App) refresh() {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		items, e := GetItems(ctx, a.client)
		cancel()

		a.app.PostFunc(func() {
			a.items = items
			a.err = e
			a.app.Update()
		})
		time.Sleep(time.Second)
	}
}

func (a *App) refreshLog() {
	var info *rest.LogInfo
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		next, e := a.client.WatchLog(ctx, 60, info)
		cancel()
		if e == nil {
			info = next
		}
		a.app.PostFunc(func() {
			a.logInfo = info
			a.logErr = e
			a.app.Update()
		})
		if e != nil {
			time.Sleep(2 * time.Second)
		}
	}
}

func (a *App) GetItems() ([]*rest.NamespaceInfo, error) {
	return a.items, a.err
}

func (a *App) GetLog() (*rest.LogInfo, error) {
	return a.logInfo, a.logErr
}

func (a *App) Run() error {
	a.logger.Info("starting")
	a.app.SetRootWidget(a)
	a.ShowMain()
	go a.refresh()
	go a.refreshLog()
	return a.app.Run()
}
