package notification

import (
	"context"
	"log"
	"sync"
	"time"
)

// ConnectivityWatcher turns feed up/down transitions into alerts. Alerts are
// queued and sent from Run so callers on the ingest path never block on
// delivery. Repeated reports of the same state are ignored.
type ConnectivityWatcher struct {
	notifier Notifier
	source   string
	queue    chan Alert

	mu       sync.Mutex
	up       bool
	seen     bool
	downedAt time.Time
	now      func() time.Time
}

// NewConnectivityWatcher creates a watcher for the feed named source.
func NewConnectivityWatcher(n Notifier, source string) *ConnectivityWatcher {
	return &ConnectivityWatcher{
		notifier: n,
		source:   source,
		queue:    make(chan Alert, 16),
		now:      time.Now,
	}
}

// Report records the current feed state. The first report only sets the
// baseline unless it is a failure.
func (w *ConnectivityWatcher) Report(up bool, detail string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.seen && w.up == up {
		return
	}
	first := !w.seen
	w.seen = true
	w.up = up

	var alert Alert
	switch {
	case !up:
		w.downedAt = w.now()
		alert = Alert{Level: AlertCritical, Feed: w.source, Title: w.source + " connection lost", Message: detail}
	case first:
		return
	default:
		outage := w.now().Sub(w.downedAt).Round(time.Second)
		alert = Alert{Level: AlertInfo, Feed: w.source, Title: w.source + " connection restored", Message: "down for " + outage.String()}
	}

	select {
	case w.queue <- alert:
	default:
		log.Printf("[notify] alert queue full, dropping %q", alert.Title)
	}
}

// Run delivers queued alerts until ctx is cancelled.
func (w *ConnectivityWatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-w.queue:
			sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := w.notifier.Send(sendCtx, a); err != nil {
				log.Printf("[notify] send %q failed: %v", a.Title, err)
			}
			cancel()
		}
	}
}
