package worker

import (
	"context"
	"fmt"
	"time"
)

// nowFunc stamps cache entries; replaceable in tests.
var nowFunc = time.Now

// EventKind identifies a worker event.
type EventKind string

const (
	EventInstall           EventKind = "install"
	EventActivate          EventKind = "activate"
	EventFetch             EventKind = "fetch"
	EventSync              EventKind = "sync"
	EventPeriodicSync      EventKind = "periodicsync"
	EventPush              EventKind = "push"
	EventNotificationClick EventKind = "notificationclick"
)

// Event is a single worker event. Only the fields relevant to the kind are
// set: URL for fetch, Tag for sync kinds, Payload for push, Action for
// notification clicks.
type Event struct {
	Kind    EventKind
	URL     string
	Tag     string
	Payload []byte
	Action  string
}

// Dispatch routes an event to its handler. Fetch events return a response;
// all other kinds return a zero response. Unknown kinds are an error.
func (m *Manager) Dispatch(ctx context.Context, evt Event) (Response, error) {
	switch evt.Kind {
	case EventInstall:
		return Response{}, m.Install(ctx)
	case EventActivate:
		return Response{}, m.Activate(ctx)
	case EventFetch:
		return m.Fetch(ctx, evt.URL)
	case EventSync:
		return Response{}, m.Sync(ctx, evt.Tag)
	case EventPeriodicSync:
		return Response{}, m.PeriodicSync(ctx, evt.Tag)
	case EventPush:
		m.Push(ctx, evt.Payload)
		return Response{}, nil
	case EventNotificationClick:
		m.NotificationClick(ctx, evt.Action)
		return Response{}, nil
	default:
		return Response{}, fmt.Errorf("unknown event kind %q", evt.Kind)
	}
}
