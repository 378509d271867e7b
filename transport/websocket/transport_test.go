package websocket

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/sage-ws/session"
)

// fakeServerCore echoes every text frame it receives back to the sender
// that sent it, and closes the connection on the sentinel "close-me" frame.
type fakeServerCore struct {
	mu      sync.Mutex
	opened  []session.Handle
	closed  []session.Handle
	senders map[session.Handle]session.Sender
	texts   []string
}

func newFakeServerCore() *fakeServerCore {
	return &fakeServerCore{senders: make(map[session.Handle]session.Sender)}
}

func (f *fakeServerCore) Opened(handle session.Handle, sender session.Sender) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, handle)
	f.senders[handle] = sender
}

func (f *fakeServerCore) HandleText(handle session.Handle, text string) bool {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	sender := f.senders[handle]
	f.mu.Unlock()

	if text == "close-me" {
		_ = sender.Close(4000, "requested")
		return true
	}
	_ = sender.SendText("echo:" + text)
	return false
}

func (f *fakeServerCore) Closed(handle session.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, handle)
}

func (f *fakeServerCore) closedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.closed)
}

// fakeClientCore records every frame it receives and never closes on its
// own initiative.
type fakeClientCore struct {
	mu       sync.Mutex
	received []string
	closed   bool
}

func (f *fakeClientCore) Opened(sender interface {
	SendText(text string) error
	Close(code int, reason string) error
}) error {
	return sender.SendText("hello")
}

func (f *fakeClientCore) HandleText(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, text)
	return false
}

func (f *fakeClientCore) Closed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeClientCore) receivedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

func dialURL(httpURL string) string {
	return "ws" + httpURL[len("http"):]
}

func TestServerClientRoundTrip(t *testing.T) {
	core := newFakeServerCore()
	srv := NewServer(core, 5*time.Second, 5*time.Second)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	ccore := &fakeClientCore{}
	client := NewClient(dialURL(httpSrv.URL), ccore, 2*time.Second, 5*time.Second, 5*time.Second)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	require.Eventually(t, func() bool { return ccore.receivedCount() >= 1 }, time.Second, 10*time.Millisecond)
	ccore.mu.Lock()
	assert.Equal(t, "echo:hello", ccore.received[0])
	ccore.mu.Unlock()
	assert.True(t, client.Connected())
}

func TestServerCoreCloseTearsDownBothSides(t *testing.T) {
	core := newFakeServerCore()
	srv := NewServer(core, 5*time.Second, 5*time.Second)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	ccore := &fakeClientCore{}
	client := NewClient(dialURL(httpSrv.URL), ccore, 2*time.Second, 5*time.Second, 5*time.Second)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	// Wait for the server to have registered the connection, then hand
	// fakeServerCore the sentinel frame directly so that it closes it.
	require.Eventually(t, func() bool { return len(core.opened) == 1 }, time.Second, 10*time.Millisecond)

	var handle session.Handle
	core.mu.Lock()
	for h := range core.senders {
		handle = h
	}
	core.mu.Unlock()
	require.NotNil(t, handle)

	assert.True(t, core.HandleText(handle, "close-me"))
	require.Eventually(t, func() bool { return core.closedCount() == 1 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !client.Connected() }, time.Second, 10*time.Millisecond)
}
