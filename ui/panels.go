package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// pane pairs a scrollable text view with its base title.
type pane struct {
	tv    *tview.TextView
	title string
}

// paneFocus cycles keyboard focus over the scrollable panes and routes
// scroll keys to whichever pane holds it. Nothing is focused until the
// first Tab.
type paneFocus struct {
	app   *tview.Application
	panes []pane
	idx   int
}

func newPaneFocus(app *tview.Application, panes ...pane) paneFocus {
	filtered := make([]pane, 0, len(panes))
	for _, p := range panes {
		if p.tv == nil {
			continue
		}
		filtered = append(filtered, p)
	}
	return paneFocus{app: app, panes: filtered, idx: -1}
}

func (p *paneFocus) set(idx int) {
	if len(p.panes) == 0 {
		return
	}
	if idx < 0 || idx >= len(p.panes) {
		idx = 0
	}
	p.idx = idx
	for i, pn := range p.panes {
		applyFocusStyle(pn.tv, pn.title, i == idx)
	}
	if p.app != nil {
		p.app.SetFocus(p.panes[idx].tv)
	}
}

func (p *paneFocus) cycle(delta int) {
	if len(p.panes) == 0 {
		return
	}
	next := p.idx + delta
	if p.idx < 0 {
		next = 0
		if delta < 0 {
			next = len(p.panes) - 1
		}
	}
	if next < 0 {
		next = len(p.panes) - 1
	} else if next >= len(p.panes) {
		next = 0
	}
	p.set(next)
}

func (p *paneFocus) handleScroll(event *tcell.EventKey) bool {
	if p.app == nil || event == nil || p.idx < 0 || p.idx >= len(p.panes) {
		return false
	}
	target := p.panes[p.idx].tv
	if p.app.GetFocus() != tview.Primitive(target) {
		return false
	}
	return scrollTextView(target, event)
}

func applyFocusStyle(tv *tview.TextView, baseTitle string, focused bool) {
	if tv == nil {
		return
	}
	if focused {
		tv.SetBorderColor(uiFocusColor)
		tv.SetTitle(accentText("▸ " + baseTitle))
		return
	}
	tv.SetBorderColor(uiBorderColor)
	tv.SetTitle(accentText(baseTitle))
}

func scrollTextView(target *tview.TextView, event *tcell.EventKey) bool {
	if target == nil || event == nil {
		return false
	}
	row, col := target.GetScrollOffset()
	page := 10
	_, _, _, height := target.GetInnerRect()
	if height > 0 {
		page = height - 1
		if page < 1 {
			page = 1
		}
	}
	switch event.Key() {
	case tcell.KeyUp:
		if row > 0 {
			row--
		}
	case tcell.KeyDown:
		row++
	case tcell.KeyPgUp:
		row -= page
		if row < 0 {
			row = 0
		}
	case tcell.KeyPgDn:
		row += page
	case tcell.KeyHome:
		row = 0
	case tcell.KeyEnd:
		row = 1 << 30
	default:
		return false
	}
	target.ScrollTo(row, col)
	return true
}
