package serialmux

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewSerialMux(t *testing.T) {
	port := NewFakePort()
	mux := NewSerialMux(port)

	if mux.port != port {
		t.Error("SerialMux port not set correctly")
	}
	if mux.subscribers == nil {
		t.Error("SerialMux subscribers map not initialised")
	}
}

func TestSerialMux_SubscribeUnsubscribe(t *testing.T) {
	mux := NewSerialMux(NewFakePort())

	id1, ch1 := mux.Subscribe()
	id2, _ := mux.Subscribe()
	if id1 == "" || id1 == id2 {
		t.Fatalf("subscription IDs %q, %q must be unique and non-empty", id1, id2)
	}

	mux.Unsubscribe(id1)
	if _, ok := <-ch1; ok {
		t.Error("channel should be closed after Unsubscribe")
	}
	// unknown IDs are ignored
	mux.Unsubscribe("missing")

	if len(mux.subscribers) != 1 {
		t.Errorf("subscribers = %d, want 1", len(mux.subscribers))
	}
}

func TestSerialMux_SendCommand(t *testing.T) {
	port := NewFakePort()
	mux := NewSerialMux(port)

	if err := mux.SendCommand(`{"type":"cmd_vel"}`); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if err := mux.SendCommand("already terminated\n"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}

	got := string(port.Written())
	want := "{\"type\":\"cmd_vel\"}\nalready terminated\n"
	if got != want {
		t.Errorf("written = %q, want %q", got, want)
	}
	if s := mux.Stats(); s.LinesOut != 2 {
		t.Errorf("LinesOut = %d, want 2", s.LinesOut)
	}
}

func TestSerialMux_SendCommandError(t *testing.T) {
	port := NewFakePort()
	port.FailWrite = errors.New("unplugged")
	mux := NewSerialMux(port)

	if err := mux.SendCommand("x"); err == nil || err.Error() != "unplugged" {
		t.Errorf("SendCommand error = %v, want unplugged", err)
	}
}

type shortWriter struct{ *FakePort }

func (s shortWriter) Write(p []byte) (int, error) { return len(p) - 1, nil }

func TestSerialMux_SendCommandShortWrite(t *testing.T) {
	mux := NewSerialMux(shortWriter{NewFakePort()})
	if err := mux.SendCommand("abc"); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("SendCommand error = %v, want ErrWriteFailed", err)
	}
}

func TestSerialMux_MonitorFansOut(t *testing.T) {
	port := NewLiveFakePort()
	mux := NewSerialMux(port)

	_, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	port.Feed("line one", "line two")

	for _, ch := range []chan string{ch1, ch2} {
		for _, want := range []string{"line one", "line two"} {
			select {
			case got := <-ch:
				if got != want {
					t.Errorf("got %q, want %q", got, want)
				}
			case <-time.After(2 * time.Second):
				t.Fatalf("timed out waiting for %q", want)
			}
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Monitor error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
	port.Close()

	if s := mux.Stats(); s.LinesIn != 2 {
		t.Errorf("LinesIn = %d, want 2", s.LinesIn)
	}
}

func TestSerialMux_MonitorEOF(t *testing.T) {
	port := NewFakePort("only")
	mux := NewSerialMux(port)

	if err := mux.Monitor(context.Background()); err != nil {
		t.Errorf("Monitor at EOF = %v, want nil", err)
	}
}

func TestSerialMux_MonitorReadError(t *testing.T) {
	port := NewFakePort()
	port.FailRead = errors.New("framing error")
	mux := NewSerialMux(port)

	err := mux.Monitor(context.Background())
	if err == nil || err.Error() != "framing error" {
		t.Errorf("Monitor error = %v, want framing error", err)
	}
}

func TestSerialMux_SlowSubscriberDrops(t *testing.T) {
	mux := NewSerialMux(NewFakePort())
	_, ch := mux.Subscribe()

	for i := 0; i < subscriberBuffer+5; i++ {
		mux.broadcast("x")
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("buffered = %d, want %d", len(ch), subscriberBuffer)
	}
	if s := mux.Stats(); s.Dropped != 5 {
		t.Errorf("Dropped = %d, want 5", s.Dropped)
	}
}

func TestSerialMux_Close(t *testing.T) {
	port := NewFakePort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	if err := mux.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}
	if _, err := port.Write([]byte("x")); !errors.Is(err, ErrPortClosed) {
		t.Errorf("write after Close = %v, want ErrPortClosed", err)
	}
	if err := mux.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}

	_, late := mux.Subscribe()
	if _, ok := <-late; ok {
		t.Error("Subscribe after Close should return a closed channel")
	}
}

func TestDisabledSerialMux(t *testing.T) {
	d := NewDisabledSerialMux()
	id, ch := d.Subscribe()

	if err := d.SendCommand("a\n"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	d.SendCommand("b")
	if got := d.Sent(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Sent = %q", got)
	}
	if d.Stats().LinesOut != 2 {
		t.Errorf("LinesOut = %d", d.Stats().LinesOut)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Monitor(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Monitor = %v", err)
	}

	d.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
	_, late := d.Subscribe()
	if _, ok := <-late; ok {
		t.Error("Subscribe after Close should return a closed channel")
	}
}
