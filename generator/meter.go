package generator

import (
	"context"
	"sync"

	"github.com/spetersoncode/longform"
)

// meter is a ChatProvider that sums the token usage of every call it
// forwards.
type meter struct {
	longform.ChatProvider

	mu    sync.Mutex
	usage longform.Usage
	calls int
}

func newMeter(chat longform.ChatProvider) *meter {
	return &meter{ChatProvider: chat}
}

func (m *meter) Chat(ctx context.Context, messages []longform.Message, opts ...longform.Option) (*longform.Response, error) {
	resp, err := m.ChatProvider.Chat(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	m.record(resp.Usage)
	return resp, nil
}

func (m *meter) ChatStream(ctx context.Context, messages []longform.Message, opts ...longform.Option) (<-chan longform.StreamEvent, error) {
	in, err := m.ChatProvider.ChatStream(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	out := make(chan longform.StreamEvent)
	go func() {
		defer close(out)
		for ev := range in {
			if ev.Done && ev.Response != nil {
				m.record(ev.Response.Usage)
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				// Drain so the provider goroutine can exit.
				for range in {
				}
				return
			}
		}
	}()
	return out, nil
}

func (m *meter) record(u longform.Usage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage.Add(u)
	m.calls++
}

// Snapshot returns the usage so far and the number of completed calls.
func (m *meter) Snapshot() (longform.Usage, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage, m.calls
}
