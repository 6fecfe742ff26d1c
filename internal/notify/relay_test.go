package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu       sync.Mutex
	name     string
	fail     bool
	titles   []string
	messages []string
}

func (s *recordingSender) Send(ctx context.Context, title, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("unreachable")
	}
	s.titles = append(s.titles, title)
	s.messages = append(s.messages, message)
	return nil
}

func (s *recordingSender) Name() string { return s.name }

func discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestNotifierFiltersEvents(t *testing.T) {
	ctx := context.Background()
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{"sale_settled"}, discard())

	require.NoError(t, n.Notify(ctx, "bid_placed", "Bid", "ignored"))
	require.NoError(t, n.Notify(ctx, "sale_settled", "Sale settled", "delivered"))

	require.Equal(t, []string{"Sale settled"}, sender.titles)
}

func TestNotifierEmptyEventsAllowsAll(t *testing.T) {
	ctx := context.Background()
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, nil, discard())

	require.NoError(t, n.Notify(ctx, "anything", "t", "m"))
	require.Len(t, sender.titles, 1)
}

func TestNotifierFailureDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	broken := &recordingSender{name: "broken", fail: true}
	healthy := &recordingSender{name: "healthy"}
	n := NewNotifier([]Sender{broken, healthy}, nil, discard())

	err := n.NotifyAll(ctx, "t", "m")
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken")
	require.Len(t, healthy.titles, 1)
}

func TestRenderEvents(t *testing.T) {
	key := "0x00000000000000000000000000000000C0fFEE00/7"

	title, msg := render("listing_created", map[string]string{
		"event": "listing_created", "key": key, "modality": "fixed", "price": "100",
	})
	require.Equal(t, "New listing", title)
	require.Contains(t, msg, "fixed")
	require.Contains(t, msg, "100")

	// Auctions carry start_price instead of price.
	_, msg = render("listing_created", map[string]string{
		"event": "listing_created", "key": key, "modality": "english", "start_price": "150",
	})
	require.Contains(t, msg, "150")

	title, msg = render("sale_settled", map[string]string{
		"event": "sale_settled", "key": key, "modality": "dutch",
		"buyer": "0xb1", "price": "70", "sale_id": "s1",
	})
	require.Equal(t, "Sale settled", title)
	require.Contains(t, msg, "s1")
	require.Contains(t, msg, "70")

	_, msg = render("auction_ended", map[string]string{
		"event": "auction_ended", "key": key, "outcome": "no_sale",
	})
	require.Contains(t, msg, "no sale")

	_, msg = render("auction_ended", map[string]string{
		"event": "auction_ended", "key": key, "outcome": "sold", "buyer": "0xd1", "price": "180",
	})
	require.Contains(t, msg, "180")
}

func TestSendersFromConfig(t *testing.T) {
	require.Empty(t, SendersFromConfig("", "", ""))

	// Telegram needs both token and chat ID.
	require.Empty(t, SendersFromConfig("tok", "", ""))

	senders := SendersFromConfig("tok", "chat", "https://discord.example/webhook")
	require.Len(t, senders, 2)
	require.Equal(t, "telegram", senders[0].Name())
	require.Equal(t, "discord", senders[1].Name())
}
