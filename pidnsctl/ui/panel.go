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
	"sync"

	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"
)

var (
	StyleNormal = tcell.StyleDefault.
			Foreground(tcell.ColorSilver).
			Background(tcell.ColorBlack)
	StyleGood = tcell.StyleDefault.
			Foreground(tcell.ColorGreen).
			Background(tcell.ColorBlack)
	StyleWarn = tcell.StyleDefault.
			Foreground(tcell.ColorYellow).
			Background(tcell.ColorBlack)
	StyleError = tcell.StyleDefault.
			Foreground(tcell.ColorMaroon).
			Background(tcell.ColorBlack)

	styleBar = tcell.StyleDefault.
			Foreground(tcell.ColorBlack).
			Background(tcell.ColorSilver)
)

// Panel is a views.Panel with a title bar on top, and a status line and
// a key bar at the bottom.
type Panel struct {
	tb   *views.TextBar
	sb   *views.TextBar
	kb   *KeyBar
	once sync.Once
	app  *App

	views.Panel
}

func (p *Panel) SetTitle(title string) {
	p.tb.SetCenter(title, styleBar)
}

func (p *Panel) SetKeys(words []string) {
	p.kb.SetKeys(words)
}

func (p *Panel) SetStatus(status string) {
	p.sb.SetLeft(status, tcell.StyleDefault)
}

func (p *Panel) SetStatusStyle(style tcell.Style) {
	p.sb.SetStyle(style)
}

func (p *Panel) Init(app *App) {
	p.once.Do(func() {
		p.app = app

		p.tb = views.NewTextBar()
		p.tb.SetStyle(styleBar)
		p.tb.SetRight(app.GetAppName(), styleBar)
		p.tb.SetCenter(" ", styleBar)

		p.sb = views.NewTextBar()
		p.sb.SetStyle(StyleNormal)

		p.kb = NewKeyBar()

		p.Panel.SetTitle(p.tb)
		p.Panel.SetMenu(p.sb)
		p.Panel.SetStatus(p.kb)
	})
}

func (p *Panel) App() *App {
	return p.app
}

// KeyBar shows the keys that work in the current panel.  The key itself,
// written in brackets, is highlighted.
type KeyBar struct {
	once sync.Once
	views.SimpleStyledTextBar
}

func (k *KeyBar) Init() {
	k.once.Do(func() {
		alternate := styleBar.Foreground(tcell.ColorBlue).Bold(true)

		k.SimpleStyledTextBar.Init()
		k.SimpleStyledTextBar.SetStyle(styleBar)
		k.RegisterLeftStyle('N', styleBar)
		k.RegisterLeftStyle('A', alternate)
	})
}

// KeyMarkup converts "[Q] Quit" style words into styled text markup.
func KeyMarkup(words []string) string {
	b := make([]rune, 0, 80)
	for i, w := range words {
		if i != 0 && len(w) != 0 {
			b = append(b, ' ')
		}
		esc := false
		for _, r := range w {
			if r == '%' {
				b = append(b, '%')
			}
			switch {
			case !esc && r == '[':
				b = append(b, r, '%', 'A')
				esc = true
			case esc && r == ']':
				b = append(b, '%', 'N', r)
				esc = false
			default:
				b = append(b, r)
			}
		}
	}
	return string(b)
}

func (k *KeyBar) SetKeys(words []string) {
	k.SetLeft(KeyMarkup(words))
}

func NewKeyBar() *KeyBar {
	kb := &KeyBar{}
	kb.Init()
	return kb
}
