package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"hexwatch-backend/config"
	"hexwatch-backend/internal/itemdata"
	"hexwatch-backend/internal/model"
	"hexwatch-backend/internal/parse"
	"hexwatch-backend/pkg/metrics"
)

const maxDupeLines = 10

// WebhookMessage is a Discord-compatible webhook body.
type WebhookMessage struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds"`
}

type Embed struct {
	Title  string       `json:"title"`
	URL    string       `json:"url,omitempty"`
	Color  int          `json:"color"`
	Author *EmbedAuthor `json:"author,omitempty"`
	Fields []EmbedField `json:"fields"`
	Footer *EmbedFooter `json:"footer,omitempty"`
}

type EmbedAuthor struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

// Owned pairs a duplicate record with its resolved owner name.
type Owned struct {
	Piece     model.Piece
	OwnerName string
}

// BuildMessage renders alert as a webhook message.
func BuildMessage(cfg config.WebhookConfig, alert Alert, seller string, dupes []Owned) WebhookMessage {
	title := alert.ItemName
	if len(dupes) > 0 {
		// Widened titles stand out in the channel when a twin exists.
		title = strings.ReplaceAll(title, " ", "  ")
	}

	priceLabel := "Starting Bid"
	if alert.BIN {
		priceLabel = "Price"
	}

	color, _ := strconv.ParseInt(alert.Piece.HexCode, 16, 32)

	fields := []EmbedField{
		{Name: "Hex", Value: "#" + alert.Piece.HexCode, Inline: true},
		{Name: priceLabel, Value: HumanFormat(alert.StartingBid), Inline: true},
		{Name: "Closest Armor Pieces (new method)", Value: matchLines(alert.Closest)},
		{Name: "Closest Armor Pieces (old method)", Value: matchLines(alert.ClosestCIE76)},
	}
	if alert.Variant != "" && alert.Variant != itemdata.VariantDefault {
		fields = append(fields, EmbedField{Name: "Variant", Value: string(alert.Variant), Inline: true})
	}
	if alert.Reforge != "" {
		fields = append(fields, EmbedField{Name: "Reforge", Value: parse.DisplayName(alert.Reforge), Inline: true})
	}
	if alert.Stars > 0 {
		fields = append(fields, EmbedField{Name: "Stars", Value: strconv.Itoa(alert.Stars), Inline: true})
	}
	if len(alert.ReferenceOf) > 0 {
		fields = append(fields, EmbedField{Name: "Reference color of", Value: parse.DisplayName(strings.Join(alert.ReferenceOf, ", "))})
	}
	if len(dupes) > 0 {
		fields = append(fields, EmbedField{Name: "Matching hexes", Value: dupeLines(dupes)})
	}

	msg := WebhookMessage{Embeds: []Embed{{
		Title: title,
		URL:   cfg.AuctionURL + alert.AuctionUUID,
		Color: int(color),
		Author: &EmbedAuthor{
			Name:    seller,
			IconURL: cfg.AvatarURL + alert.Auctioneer,
		},
		Fields: fields,
		Footer: &EmbedFooter{Text: "/viewauction " + alert.AuctionUUID},
	}}}
	if cfg.MentionRole != "" && alert.BestScore() < cfg.MentionBelow {
		msg.Content = "<@&" + cfg.MentionRole + ">"
	}
	return msg
}

func dupeLines(dupes []Owned) string {
	lines := make([]string, 0, min(len(dupes), maxDupeLines)+1)
	for i, d := range dupes {
		if i == maxDupeLines {
			lines = append(lines, fmt.Sprintf("and %d more", len(dupes)-maxDupeLines))
			break
		}
		lines = append(lines, fmt.Sprintf("%s: %s (%s)", d.OwnerName, parse.DisplayName(d.Piece.ItemKind), d.Piece.Location))
	}
	return strings.Join(lines, "\n")
}

// WebhookClient posts messages, at most RatePerSec per second.
type WebhookClient struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewWebhookClient returns nil when no webhook URL is configured.
func NewWebhookClient(cfg config.WebhookConfig, client *http.Client) *WebhookClient {
	if cfg.URL == "" {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &WebhookClient{url: cfg.URL, client: client, limiter: rate.NewLimiter(limit, 1)}
}

// Send waits for the rate limiter and posts msg.
func (w *WebhookClient) Send(ctx context.Context, msg WebhookMessage) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	metrics.ObserveWebhook(time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
