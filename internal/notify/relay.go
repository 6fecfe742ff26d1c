package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/auctionhaus/marketd/internal/domain"
)

// relayChannels are the bus channels the relay watches. Bid traffic is
// deliberately excluded; it is too chatty for operator alerts.
var relayChannels = []string{"listings", "sales", "auctions"}

// Relay bridges marketplace events from the signal bus into operator
// notifications. Each event payload is a flat JSON object with an
// "event" field naming the event type.
type Relay struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewRelay creates a Relay.
func NewRelay(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Relay {
	return &Relay{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_relay")),
	}
}

// Run subscribes to the marketplace channels and forwards events until
// the context ends.
func (r *Relay) Run(ctx context.Context) error {
	merged := make(chan []byte)
	for _, channel := range relayChannels {
		events, err := r.bus.Subscribe(ctx, channel)
		if err != nil {
			return fmt.Errorf("notify: subscribing to %s: %w", channel, err)
		}
		go func() {
			for payload := range events {
				select {
				case merged <- payload:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-merged:
			r.forward(ctx, payload)
		}
	}
}

func (r *Relay) forward(ctx context.Context, payload []byte) {
	var event map[string]string
	if err := json.Unmarshal(payload, &event); err != nil {
		r.logger.WarnContext(ctx, "dropping malformed event",
			slog.String("error", err.Error()),
		)
		return
	}

	name := event["event"]
	if name == "" {
		return
	}

	title, message := render(name, event)
	if err := r.notifier.Notify(ctx, name, title, message); err != nil {
		r.logger.WarnContext(ctx, "notification failed",
			slog.String("event", name),
			slog.String("error", err.Error()),
		)
	}
}

// render formats an event payload into a notification title and body.
func render(name string, event map[string]string) (string, string) {
	key := event["key"]
	modality := event["modality"]

	switch name {
	case "listing_created":
		price := event["price"]
		if price == "" {
			price = event["start_price"]
		}
		return "New listing",
			fmt.Sprintf("%s listed %s at %s", modality, key, price)
	case "listing_cancelled":
		return "Listing cancelled",
			fmt.Sprintf("%s listing for %s was cancelled", modality, key)
	case "sale_settled":
		return "Sale settled",
			fmt.Sprintf("%s sold via %s to %s for %s (sale %s)",
				key, modality, event["buyer"], event["price"], event["sale_id"])
	case "auction_ended":
		if event["outcome"] == "sold" {
			return "Auction ended",
				fmt.Sprintf("auction for %s sold to %s for %s",
					key, event["buyer"], event["price"])
		}
		return "Auction ended",
			fmt.Sprintf("auction for %s ended with no sale", key)
	default:
		return name, fmt.Sprintf("%s %s", modality, key)
	}
}

// SendersFromConfig builds the sender list for the configured channels.
func SendersFromConfig(telegramToken, telegramChatID, discordWebhookURL string) []Sender {
	var senders []Sender
	if telegramToken != "" && telegramChatID != "" {
		senders = append(senders, NewTelegramSender(telegramToken, telegramChatID))
	}
	if discordWebhookURL != "" {
		senders = append(senders, NewDiscordSender(discordWebhookURL))
	}
	return senders
}
