package client

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Manager creates channels and keeps track of the live ones.
type Manager struct {
	dialer     Dialer
	log        *zap.Logger
	newBackOff func() backoff.BackOff

	mu       sync.Mutex
	channels map[*Channel]struct{}
}

type ManagerOption func(*Manager)

// WithBackOff replaces the reconnect policy for channels created afterwards.
func WithBackOff(f func() backoff.BackOff) ManagerOption {
	return func(m *Manager) { m.newBackOff = f }
}

func WithLogger(log *zap.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// NewManager returns a manager dialling through d, or a websocket dialer
// when d is nil.
func NewManager(d Dialer, opts ...ManagerOption) *Manager {
	if d == nil {
		d = WebsocketDialer{}
	}
	m := &Manager{
		dialer:     d,
		log:        zap.NewNop(),
		newBackOff: DefaultBackOff,
		channels:   make(map[*Channel]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect starts a channel to url. It returns immediately; the channel
// dials in the background and reports through hooks.
func (m *Manager) Connect(ctx context.Context, url string, h Handler, hooks Hooks) *Channel {
	ch := newChannel(ctx, url, m.dialer, m.newBackOff(), h, hooks, m.log.With(zap.String("url", url)))
	ch.onClose = m.forget

	m.mu.Lock()
	m.channels[ch] = struct{}{}
	m.mu.Unlock()

	go ch.run()
	return ch
}

// Channels lists channels that have not stopped yet.
func (m *Manager) Channels() []*Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Channel, 0, len(m.channels))
	for ch := range m.channels {
		out = append(out, ch)
	}
	return out
}

func (m *Manager) CloseAll() {
	for _, ch := range m.Channels() {
		ch.Close()
	}
}

func (m *Manager) forget(ch *Channel) {
	m.mu.Lock()
	delete(m.channels, ch)
	m.mu.Unlock()
}
