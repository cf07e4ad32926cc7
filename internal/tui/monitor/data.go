package monitor

import (
	"context"
	"strconv"
	"time"

	"github.com/marcus/riverwalk/internal/events"
	"github.com/marcus/riverwalk/internal/models"
	rwsync "github.com/marcus/riverwalk/internal/sync"
)

// Source is what the monitor reads from. *data.Service implements it.
type Source interface {
	SyncStatus() (rwsync.Status, error)
	PendingChanges() ([]models.QueueItem, error)
	LocalRiverWalks() ([]*models.RiverWalk, error)
	Sync(ctx context.Context) (rwsync.Result, error)
}

// FetchData retrieves all data needed for the monitor display
func FetchData(src Source) RefreshDataMsg {
	msg := RefreshDataMsg{Timestamp: time.Now()}

	status, err := src.SyncStatus()
	if err != nil {
		msg.Err = err
		return msg
	}
	msg.Status = status

	if msg.Queue, err = src.PendingChanges(); err != nil {
		msg.Err = err
		return msg
	}
	if msg.Walks, err = src.LocalRiverWalks(); err != nil {
		msg.Err = err
	}
	return msg
}

// maxEvents bounds the event log.
const maxEvents = 200

// Describe renders one bus event as a single line of text.
func Describe(e events.Event) string { return describeEvent(e).Message }

// describeEvent renders one bus event as an activity line.
func describeEvent(e events.Event) ActivityItem {
	item := ActivityItem{Timestamp: e.At, Type: e.Type}
	switch e.Type {
	case events.DataChanged:
		item.Message = string(e.Op) + " " + string(e.Kind) + " " + e.LocalID
	case events.SyncStarted:
		item.Message = "sync started"
	case events.SyncCompleted:
		item.Message = syncSummary(e)
	case events.SyncFailed:
		item.Message = "sync failed"
		if e.Err != nil {
			item.Message += ": " + e.Err.Error()
		}
	case events.SyncStatusChanged:
		state := "offline"
		if e.Online {
			state = "online"
		}
		item.Message = state + ", " + plural(e.Pending, "change") + " pending"
	}
	return item
}

func syncSummary(e events.Event) string {
	s := "sync completed: " + plural(e.Pushed, "push") + ", " + plural(e.Downloaded, "download")
	if e.Deferred > 0 {
		s += ", " + plural(e.Deferred, "deferral")
	}
	if e.Dropped > 0 {
		s += ", " + plural(e.Dropped, "drop")
	}
	return s
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	if noun[len(noun)-1] == 'h' {
		return strconv.Itoa(n) + " " + noun + "es"
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
