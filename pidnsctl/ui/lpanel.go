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
	"time"

	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"

	"github.com/gdamore/pidns"
)

// LogPanel shows the server's event log.
type LogPanel struct {
	text *views.TextArea

	Panel
}

func NewLogPanel(app *App) *LogPanel {
	p := &LogPanel{}

	p.Panel.Init(app)
	p.SetTitle("Event Log")
	p.SetKeys([]string{"[ESC] Main", "[Q] Quit"})

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(StyleNormal)
	p.SetContent(p.text)

	return p
}

func (p *LogPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *LogPanel) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			p.app.ShowMain()
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				p.app.ShowMain()
				return true
			}
		}
	}
	return p.Panel.HandleEvent(ev)
}

// FormatRecord renders one log record as a line of text.
func FormatRecord(r pidns.LogRecord) string {
	return fmt.Sprintf("%s %-5s %s", r.Time.Format(time.StampMilli), r.Level, r.Text)
}

func (p *LogPanel) update() {
	info, err := p.app.GetLog()
	if info == nil {
		if err != nil {
			p.SetStatus(fmt.Sprintf("No data: %v", err))
			p.SetStatusStyle(StyleError)
		} else {
			p.SetStatus("Loading ...")
			p.SetStatusStyle(StyleNormal)
		}
		p.text.SetLines([]string{""})
		return
	}

	p.SetStatus(fmt.Sprintf("%d records", len(info.Records)))
	p.SetStatusStyle(StyleNormal)
	lines := make([]string, 0, len(info.Records))
	for _, r := range info.Records {
		lines = append(lines, FormatRecord(r))
	}
	p.text.SetLines(lines)
}
