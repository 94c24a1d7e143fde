package tui

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/strainlabs/strain/internal/engine"
)

const tableTitle = "Workers"

// UI renders a live table of supervised workers from the engine's event
// stream. It owns the terminal until the stream closes, the context is
// cancelled, or the user quits.
type UI struct {
	app    *tview.Application
	table  *tview.Table
	events <-chan engine.Event

	// running gates draw scheduling: once the application has stopped,
	// queueing an update could block forever with nobody draining the
	// queue, so events are still applied but no longer drawn.
	running atomic.Bool

	mu    sync.Mutex
	units map[string]*unitRow
}

type unitRow struct {
	stressor string
	instance uint32
	pid      int
	state    string
	restarts int
	ooms     int
	message  string
}

// New builds a UI over the given event stream.
func New(events <-chan engine.Event) *UI {
	u := &UI{
		app:    tview.NewApplication(),
		table:  tview.NewTable(),
		events: events,
		units:  make(map[string]*unitRow),
	}
	u.table.
		SetBorders(false).
		SetSelectable(false, false).
		SetBorder(true).
		SetTitle(" " + tableTitle + " ")
	u.app.SetRoot(u.table, true)
	u.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Rune() == 'q' || ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
			u.running.Store(false)
			u.app.Stop()
			return nil
		}
		return ev
	})
	return u
}

// Run drives the UI until the event stream closes or ctx is cancelled.
func (u *UI) Run(ctx context.Context) error {
	u.running.Store(true)
	go u.consume(ctx)
	err := u.app.Run()
	u.running.Store(false)
	return err
}

// consume applies events for as long as the stream lasts. Draws are only
// scheduled while the application runs; after a quit the remaining events
// still update the tracked state so the stream never backs up.
func (u *UI) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			u.running.Store(false)
			u.app.Stop()
			return
		case evt, ok := <-u.events:
			if !ok {
				u.app.Stop()
				return
			}
			u.apply(evt)
			if u.running.Load() {
				u.app.QueueUpdateDraw(u.render)
			}
		}
	}
}

func (u *UI) apply(evt engine.Event) {
	u.mu.Lock()
	defer u.mu.Unlock()
	key := fmt.Sprintf("%s/%d", evt.Stressor, evt.Instance)
	row, ok := u.units[key]
	if !ok {
		row = &unitRow{stressor: evt.Stressor, instance: evt.Instance}
		u.units[key] = row
	}
	if evt.Pid != 0 {
		row.pid = evt.Pid
	}
	row.state = string(evt.Type)
	row.message = evt.Message
	switch evt.Type {
	case engine.EventTypeRestarted:
		row.restarts++
	case engine.EventTypeOomKilled:
		row.ooms++
	}
}

func (u *UI) render() {
	u.mu.Lock()
	rows := make([]*unitRow, 0, len(u.units))
	for _, row := range u.units {
		rows = append(rows, row)
	}
	u.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].stressor != rows[j].stressor {
			return rows[i].stressor < rows[j].stressor
		}
		return rows[i].instance < rows[j].instance
	})

	u.table.Clear()
	headers := []string{"STRESSOR", "INST", "PID", "STATE", "RESTARTS", "OOM", "LAST EVENT"}
	for col, h := range headers {
		u.table.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false))
	}
	for i, row := range rows {
		cells := []string{
			row.stressor,
			fmt.Sprintf("%d", row.instance),
			fmt.Sprintf("%d", row.pid),
			row.state,
			fmt.Sprintf("%d", row.restarts),
			fmt.Sprintf("%d", row.ooms),
			row.message,
		}
		color := stateColor(row.state)
		for col, text := range cells {
			u.table.SetCell(i+1, col, tview.NewTableCell(text).SetTextColor(color))
		}
	}
}

func stateColor(state string) tcell.Color {
	switch state {
	case string(engine.EventTypeFailed):
		return tcell.ColorRed
	case string(engine.EventTypeOomKilled), string(engine.EventTypeRestarted):
		return tcell.ColorOrange
	case string(engine.EventTypeExited), string(engine.EventTypeSummary):
		return tcell.ColorGreen
	default:
		return tcell.ColorWhite
	}
}
