package local

import (
	"context"
	"strconv"
	"sync"

	"github.com/auctionhaus/marketd/internal/domain"
)

// Bus is an in-process domain.SignalBus. Publishes fan out to current
// subscribers; streams are append-only slices read by offset.
type Bus struct {
	mu      sync.Mutex
	subs    map[string][]chan []byte
	streams map[string][][]byte
}

var _ domain.SignalBus = (*Bus)(nil)

// NewBus creates a Bus.
func NewBus() *Bus {
	return &Bus{
		subs:    make(map[string][]chan []byte),
		streams: make(map[string][][]byte),
	}
}

func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
			// Slow subscribers drop messages rather than block publishers.
		}
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		chans := b.subs[channel]
		for i, c := range chans {
			if c == ch {
				b.subs[channel] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

func (b *Bus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

func (b *Bus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := 0
	if lastID != "" && lastID != "0" && lastID != "0-0" {
		if n, err := strconv.Atoi(lastID); err == nil {
			start = n
		}
	}

	entries := b.streams[stream]
	if start >= len(entries) {
		return nil, nil
	}

	var messages []domain.StreamMessage
	for i := start; i < len(entries); i++ {
		if count > 0 && len(messages) >= count {
			break
		}
		messages = append(messages, domain.StreamMessage{
			ID:      strconv.Itoa(i + 1),
			Payload: entries[i],
		})
	}
	return messages, nil
}
