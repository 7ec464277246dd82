package serialmux

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrPortClosed is returned by FakePort after Close.
var ErrPortClosed = errors.New("serial port closed")

// FakePort stands in for the robot's serial link in tests. Lines written by
// the navigator are captured; lines from the robot are queued with Feed.
//
// A recorded port (NewFakePort) reports io.EOF once its queue drains, like a
// replayed session. A live port (NewLiveFakePort) blocks readers until more
// lines arrive or the port is closed.
type FakePort struct {
	mu     sync.Mutex
	cond   *sync.Cond
	in     bytes.Buffer
	out    bytes.Buffer
	live   bool
	closed bool

	// FailRead and FailWrite are returned once by the next Read or Write.
	FailRead  error
	FailWrite error
}

// NewFakePort returns a recorded port that replays lines and then hits EOF.
func NewFakePort(lines ...string) *FakePort {
	p := &FakePort{}
	p.cond = sync.NewCond(&p.mu)
	p.Feed(lines...)
	return p
}

// NewLiveFakePort returns a port whose reads block until Feed or Close.
func NewLiveFakePort() *FakePort {
	p := NewFakePort()
	p.live = true
	return p
}

func (p *FakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.FailRead; err != nil {
		p.FailRead = nil
		return 0, err
	}
	for p.live && !p.closed && p.in.Len() == 0 {
		p.cond.Wait()
	}
	if p.closed {
		return 0, ErrPortClosed
	}
	if p.in.Len() == 0 {
		return 0, io.EOF
	}
	return p.in.Read(b)
}

func (p *FakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrPortClosed
	}
	if err := p.FailWrite; err != nil {
		p.FailWrite = nil
		return 0, err
	}
	return p.out.Write(b)
}

// Close wakes any blocked reader.
func (p *FakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}

// Feed queues newline-terminated lines for the reader.
func (p *FakePort) Feed(lines ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range lines {
		p.in.WriteString(l)
		p.in.WriteByte('\n')
	}
	p.cond.Broadcast()
}

// Written returns a copy of everything written to the port.
func (p *FakePort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bytes.Clone(p.out.Bytes())
}

// WrittenLines splits Written on newlines.
func (p *FakePort) WrittenLines() []string {
	data := strings.TrimRight(string(p.Written()), "\n")
	if data == "" {
		return nil
	}
	return strings.Split(data, "\n")
}
