// Package monitor is a live terminal view of the sync layer: connectivity,
// the mutation queue, local walks and the event stream.
package monitor

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/marcus/riverwalk/internal/events"
	"github.com/marcus/riverwalk/internal/models"
	rwsync "github.com/marcus/riverwalk/internal/sync"
	"github.com/marcus/riverwalk/internal/version"
)

// Panel represents which panel is active
type Panel int

const (
	PanelQueue Panel = iota
	PanelWalks
	PanelActivity
)

const panelCount = 3

// ActivityItem is one line of the event log.
type ActivityItem struct {
	Timestamp time.Time
	Type      events.Type
	Message   string
}

// Model is the main Bubble Tea model for the monitor TUI
type Model struct {
	Source Source

	// Window dimensions
	Width  int
	Height int

	// Panel data
	Status   rwsync.Status
	Queue    []models.QueueItem
	Walks    []*models.RiverWalk
	Activity []ActivityItem // newest first

	// UI state
	ActivePanel  Panel
	ScrollOffset map[Panel]int
	ShowHelp     bool
	Syncing      bool
	LastRefresh  time.Time
	Err          error // Last error, if any

	// Configuration
	RefreshInterval time.Duration
	Version         string // checked against releases when set

	UpdateNotice *version.UpdateAvailableMsg

	spinner spinner.Model
	events  <-chan events.Event
}

// MinWidth is the minimum terminal width for proper display
const MinWidth = 40

// MinHeight is the minimum terminal height for proper display
const MinHeight = 15

// TickMsg triggers a data refresh
type TickMsg time.Time

// RefreshDataMsg carries refreshed data
type RefreshDataMsg struct {
	Status    rwsync.Status
	Queue     []models.QueueItem
	Walks     []*models.RiverWalk
	Timestamp time.Time
	Err       error
}

// EventMsg delivers one bus event to the model.
type EventMsg events.Event

// SyncDoneMsg reports the outcome of a sync started from the monitor.
type SyncDoneMsg struct {
	Result rwsync.Result
	Err    error
}

// NewModel creates a new monitor model. When bus is non-nil the monitor
// subscribes to it; the returned stop function unsubscribes.
func NewModel(src Source, bus *events.Bus, interval time.Duration) (Model, func()) {
	m := Model{
		Source:          src,
		RefreshInterval: interval,
		ScrollOffset:    make(map[Panel]int),
		ActivePanel:     PanelQueue,
		spinner:         spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(spinnerStyle)),
	}
	stop := func() {}
	if bus != nil {
		ch := make(chan events.Event, 64)
		unsubscribe := bus.Subscribe(func(e events.Event) {
			select {
			case ch <- e:
			default:
			}
		})
		m.events = ch
		stop = unsubscribe
	}
	return m, stop
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.fetchData(),
		m.scheduleTick(),
		m.waitForEvent(),
		m.spinner.Tick,
	}
	if m.Version != "" {
		cmds = append(cmds, version.CheckAsync(m.Version))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case TickMsg:
		return m, tea.Batch(m.fetchData(), m.scheduleTick())

	case RefreshDataMsg:
		m.Err = msg.Err
		if msg.Err == nil {
			m.Status = msg.Status
			m.Queue = msg.Queue
			m.Walks = msg.Walks
		}
		m.LastRefresh = msg.Timestamp
		return m, nil

	case EventMsg:
		m.addActivity(describeEvent(events.Event(msg)))
		switch msg.Type {
		case events.SyncStarted:
			m.Syncing = true
		case events.SyncCompleted, events.SyncFailed:
			m.Syncing = false
		}
		// Refresh on every event so counts follow the queue.
		return m, tea.Batch(m.fetchData(), m.waitForEvent())

	case SyncDoneMsg:
		m.Syncing = false
		if msg.Err != nil {
			m.addActivity(ActivityItem{Timestamp: time.Now(), Type: events.SyncFailed, Message: "manual sync: " + msg.Err.Error()})
		}
		return m, m.fetchData()

	case version.UpdateAvailableMsg:
		m.UpdateNotice = &msg
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) addActivity(item ActivityItem) {
	m.Activity = append([]ActivityItem{item}, m.Activity...)
	if len(m.Activity) > maxEvents {
		m.Activity = m.Activity[:maxEvents]
	}
}

// handleKey processes key input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "tab":
		m.ActivePanel = (m.ActivePanel + 1) % panelCount
		return m, nil

	case "shift+tab":
		m.ActivePanel = (m.ActivePanel + panelCount - 1) % panelCount
		return m, nil

	case "1":
		m.ActivePanel = PanelQueue
		return m, nil

	case "2":
		m.ActivePanel = PanelWalks
		return m, nil

	case "3":
		m.ActivePanel = PanelActivity
		return m, nil

	case "j", "down":
		if m.ScrollOffset[m.ActivePanel] < m.panelLen(m.ActivePanel)-1 {
			m.ScrollOffset[m.ActivePanel]++
		}
		return m, nil

	case "k", "up":
		if m.ScrollOffset[m.ActivePanel] > 0 {
			m.ScrollOffset[m.ActivePanel]--
		}
		return m, nil

	case "r":
		return m, m.fetchData()

	case "s":
		if m.Syncing || !m.Status.Online {
			return m, nil
		}
		m.Syncing = true
		return m, m.runSync()

	case "?":
		m.ShowHelp = !m.ShowHelp
		return m, nil
	}

	return m, nil
}

func (m Model) panelLen(p Panel) int {
	switch p {
	case PanelQueue:
		return len(m.Queue)
	case PanelWalks:
		return len(m.Walks)
	default:
		return len(m.Activity)
	}
}

// View implements tea.Model
func (m Model) View() string {
	return m.renderView()
}

// scheduleTick returns a command that sends a TickMsg after the refresh interval
func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// fetchData returns a command that fetches all data and sends a RefreshDataMsg
func (m Model) fetchData() tea.Cmd {
	src := m.Source
	return func() tea.Msg {
		return FetchData(src)
	}
}

// waitForEvent blocks on the bus channel and returns the next event.
func (m Model) waitForEvent() tea.Cmd {
	ch := m.events
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return EventMsg(e)
	}
}

func (m Model) runSync() tea.Cmd {
	src := m.Source
	return func() tea.Msg {
		res, err := src.Sync(context.Background())
		return SyncDoneMsg{Result: res, Err: err}
	}
}
