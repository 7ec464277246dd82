package serialmux

import (
	"context"
	"net/http"
	"strings"
	"sync"
)

// DisabledSerialMux stands in for the link when no robot base is attached
// (run --no-serial). Inbound traffic never arrives; outbound lines are kept
// so the debug routes can show what would have been sent. Subscriber
// channels are closed on Unsubscribe or Close so readers unblock during
// shutdown.
type DisabledSerialMux struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	sent        []string
	sentTotal   uint64
	closing     bool
}

// maxDisabledBacklog bounds the retained outbound lines.
const maxDisabledBacklog = 256

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{
		subscribers: make(map[string]chan string),
	}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		close(ch)
		return id, ch
	}
	d.subscribers[id] = ch
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

func (d *DisabledSerialMux) SendCommand(command string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, strings.TrimSuffix(command, "\n"))
	d.sentTotal++
	if len(d.sent) > maxDisabledBacklog {
		d.sent = d.sent[len(d.sent)-maxDisabledBacklog:]
	}
	return nil
}

// Sent returns the retained outbound lines, oldest first.
func (d *DisabledSerialMux) Sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

func (d *DisabledSerialMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}

func (d *DisabledSerialMux) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{LinesOut: d.sentTotal}
}

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, d)
}
