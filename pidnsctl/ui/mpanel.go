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

package ui

import (
	"fmt"

	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"

	"github.com/gdamore/pidns/rest"
)

// MainPanel lists the namespaces known to the server.
type MainPanel struct {
	content  *views.CellView
	selected *rest.NamespaceInfo
	width    int
	height   int
	curx     int
	cury     int
	lines    []string
	styles   []tcell.Style
	items    []*rest.NamespaceInfo

	Panel
}

// mainModel provides the model for a CellView.
type mainModel struct {
	m *MainPanel
}

func NewMainPanel(app *App, server string) *MainPanel {
	m := &MainPanel{}

	m.Panel.Init(app)
	m.content = views.NewCellView()
	m.SetContent(m.content)

	m.content.SetModel(&mainModel{m})
	m.content.SetStyle(StyleNormal)

	m.SetTitle(server)
	m.SetKeys([]string{"[Q] Quit"})

	return m
}

func (m *MainPanel) Draw() {
	m.update()
	m.Panel.Draw()
}

func (m *MainPanel) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			m.unselect()
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				m.App().Quit()
				return true
			case 'L', 'l':
				m.App().ShowLog()
				return true
			case 'D', 'd':
				if m.selected != nil {
					m.App().DestroyNamespace(m.selected.Name)
					return true
				}
			}
		}
	}
	return m.Panel.HandleEvent(ev)
}

func (model *mainModel) GetCell(x, y int) (rune, tcell.Style, []rune, int) {
	m := model.m

	if y < 0 || y >= len(m.lines) {
		return ' ', StyleNormal, nil, 1
	}
	ch := ' '
	if x >= 0 && x < len(m.lines[y]) {
		ch = rune(m.lines[y][x])
	}
	style := m.styles[y]
	if m.items[y] == m.selected {
		style = style.Reverse(true)
	}
	return ch, style, nil, 1
}

func (model *mainModel) GetBounds() (int, int) {
	return model.m.width, model.m.height
}

func (model *mainModel) GetCursor() (int, int, bool, bool) {
	m := model.m
	return m.curx, m.cury, true, false
}

func (model *mainModel) MoveCursor(offx, offy int) {
	m := model.m
	m.curx += offx
	m.cury += offy
	m.updateCursor(true)
}

func (model *mainModel) SetCursor(x, y int) {
	m := model.m
	m.curx = x
	m.cury = y
	m.updateCursor(true)
}

func (m *MainPanel) unselect() {
	m.cury = 0
	m.curx = 0
	m.updateCursor(false)
}

func (m *MainPanel) updateCursor(selected bool) {
	if m.curx > m.width-1 {
		m.curx = m.width - 1
	}
	if m.cury > m.height-1 {
		m.cury = m.height - 1
	}
	if m.curx < 0 {
		m.curx = 0
	}
	if m.cury < 0 {
		m.cury = 0
	}
	if selected && m.height > 0 {
		m.selected = m.items[m.cury]
	} else {
		m.selected = nil
	}
}

// update refreshes the content from the App's latest items.  It runs on
// the application's event loop.
func (m *MainPanel) update() {
	items, err := m.App().GetItems()
	m.items = items

	// keep the same namespace selected
	if sel := m.selected; sel != nil {
		m.selected = nil
		for i, item := range m.items {
			if item.Name == sel.Name {
				m.selected = item
				m.cury = i
			}
		}
	}
	if err != nil {
		m.SetStatusStyle(StyleError)
		m.SetStatus(fmt.Sprintf("Cannot load namespaces: %v", err))
		m.lines = nil
		m.styles = nil
		m.items = nil
		m.width, m.height = 0, 0
		return
	}

	m.lines = make([]string, 0, len(items))
	m.styles = make([]tcell.Style, 0, len(items))
	m.width, m.height = 0, 0
	nlive, nstale := 0, 0

	for _, info := range items {
		line := FormatLine(info)
		if len(line) > m.width {
			m.width = len(line)
		}
		m.height++
		m.lines = append(m.lines, line)

		if info.State == "live" {
			m.styles = append(m.styles, StyleGood)
			nlive++
		} else {
			m.styles = append(m.styles, StyleWarn)
			nstale++
		}
	}

	m.SetStatus(fmt.Sprintf("%6d Namespaces %6d Live %6d Stale",
		len(items), nlive, nstale))
	if nstale > 0 {
		m.SetStatusStyle(StyleWarn)
	} else {
		m.SetStatusStyle(StyleNormal)
	}

	words := []string{"[Q] Quit", "[L] Log"}
	if m.selected != nil {
		words = append(words, "[D] Destroy")
	}
	m.SetKeys(words)
}

// FormatLine renders one namespace as a list entry.
func FormatLine(info *rest.NamespaceInfo) string {
	return fmt.Sprintf("%-24s %-6s %-20s %s", info.Name, info.State, info.Id, info.Path)
}
