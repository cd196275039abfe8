package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/SherClockHolmes/webpush-go"

	"hexwatch-backend/config"
	"hexwatch-backend/internal/model"
	"hexwatch-backend/internal/parse"
	"hexwatch-backend/internal/store"
	"hexwatch-backend/pkg/logger"
	"hexwatch-backend/pkg/metrics"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// NameResolver maps a player id to a display name.
type NameResolver interface {
	Name(ctx context.Context, id string) string
}

// OwnerRefresher re-reads a player's holdings into the ledger.
type OwnerRefresher interface {
	Enabled() bool
	Refresh(ctx context.Context, owner string) (int, error)
}

// Deps are the collaborators a worker needs. Webhook, Names and History
// may be nil.
type Deps struct {
	Store         store.Store
	WebPush       *webpush.Options
	Webhook       *WebhookClient
	WebhookConfig config.WebhookConfig
	Names         NameResolver
	History       OwnerRefresher
	Log           logger.Logger
}

// PushPayload is the JSON body delivered to browsers.
type PushPayload struct {
	Title string  `json:"title"`
	Body  string  `json:"body"`
	URL   string  `json:"url"`
	Hex   string  `json:"hex"`
	Score float64 `json:"score"`
}

// WorkerPool manages a pool of workers for delivering alerts.
type WorkerPool struct {
	size    int
	jobs    chan Alert
	stopped chan struct{}
	deps    Deps
	sender  NotificationSender
	log     logger.Logger
}

// NewWorkerPool creates a new worker pool with queue buffered alerts.
func NewWorkerPool(size, queue int, deps Deps) *WorkerPool {
	if size < 1 {
		size = 1
	}
	if queue < 1 {
		queue = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Alert, queue),
		stopped: make(chan struct{}),
		deps:    deps,
		sender:  &WebPushSender{},
		log:     logger.OrNop(deps.Log),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
	go func() {
		<-ctx.Done()
		close(wp.stopped)
	}()
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug(ctx, "notification worker started", logger.Int("worker", id))
	for {
		select {
		case alert := <-wp.jobs:
			wp.deliver(ctx, alert)
		case <-ctx.Done():
			wp.log.Debug(ctx, "notification worker shutting down", logger.Int("worker", id))
			return
		}
	}
}

// Dispatch queues an alert. It blocks while the queue is full and drops the
// alert once the pool has stopped.
func (wp *WorkerPool) Dispatch(alert Alert) {
	select {
	case wp.jobs <- alert:
	case <-wp.stopped:
		wp.log.Warn(context.Background(), "notification pool stopped, dropping alert",
			logger.String("auction", alert.AuctionUUID))
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Alert {
	return wp.jobs
}

func (wp *WorkerPool) deliver(ctx context.Context, alert Alert) {
	seller := wp.name(ctx, alert.Auctioneer)
	dupes := wp.resolveDuplicates(ctx, alert)

	wp.log.Info(ctx, "auction found",
		logger.String("seller", seller),
		logger.String("item", alert.Piece.ItemKind),
		logger.String("uuid", alert.Piece.ItemUUID),
		logger.String("hex", alert.Piece.HexCode),
		logger.Int("matches", len(dupes)))

	if wp.deps.Webhook != nil {
		msg := BuildMessage(wp.deps.WebhookConfig, alert, seller, dupes)
		err := wp.deps.Webhook.Send(ctx, msg)
		metrics.ObserveAlert("webhook", err)
		if err != nil {
			wp.log.Error(ctx, "webhook delivery failed", logger.String("auction", alert.AuctionUUID), logger.Error(err))
		}
	}

	wp.push(ctx, alert)
}

func (wp *WorkerPool) name(ctx context.Context, id string) string {
	if wp.deps.Names == nil {
		return id
	}
	return wp.deps.Names.Name(ctx, id)
}

// resolveDuplicates refreshes every duplicate owner from their inventories and
// item history, then re-reads the matches so the alert shows the last known
// owner.
func (wp *WorkerPool) resolveDuplicates(ctx context.Context, alert Alert) []Owned {
	dupes := alert.Duplicates
	if len(dupes) == 0 {
		return nil
	}

	if wp.deps.History != nil && wp.deps.History.Enabled() {
		seen := make(map[string]bool, len(dupes))
		for _, d := range dupes {
			if d.Owner == "" || seen[d.Owner] {
				continue
			}
			seen[d.Owner] = true
			if _, err := wp.deps.History.Refresh(ctx, d.Owner); err != nil {
				wp.log.Warn(ctx, "item history refresh failed", logger.String("owner", d.Owner), logger.Error(err))
			}
		}
		if wp.deps.Store != nil {
			fresh, err := wp.deps.Store.FindByColor(ctx, alert.Piece.HexCode, alert.Piece.ItemUUID)
			if err != nil {
				wp.log.Warn(ctx, "duplicate re-read failed", logger.Error(err))
			} else {
				dupes = fresh
			}
		}
	}

	out := make([]Owned, len(dupes))
	for i, d := range dupes {
		out[i] = Owned{Piece: d, OwnerName: wp.name(ctx, d.Owner)}
	}
	return out
}

func (wp *WorkerPool) push(ctx context.Context, alert Alert) {
	score := alert.BestScore()
	if wp.deps.Store == nil || wp.deps.WebPush == nil || math.IsInf(score, 1) || math.IsNaN(score) {
		return
	}
	subs, err := wp.deps.Store.SubscriptionsWithin(ctx, score)
	if err != nil {
		wp.log.Error(ctx, "error fetching subscriptions", logger.Error(err))
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(PushPayload{
		Title: alert.ItemName,
		Body: fmt.Sprintf("#%s is %s from %s", alert.Piece.HexCode, roundScore(score),
			parse.DisplayName(firstName(alert.Closest[0].Names))),
		URL:   wp.deps.WebhookConfig.AuctionURL + alert.AuctionUUID,
		Hex:   alert.Piece.HexCode,
		Score: score,
	})
	if err != nil {
		wp.log.Error(ctx, "failed to marshal push payload", logger.Error(err))
		return
	}

	wp.log.Debug(ctx, "sending push notifications", logger.Int("subscriptions", len(subs)))
	for _, sub := range subs {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.deps.WebPush)
	metrics.ObserveAlert("webpush", err)
	if err != nil {
		wp.log.Error(ctx, "error sending notification", logger.String("endpoint", sub.Endpoint), logger.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		wp.log.Info(ctx, "subscription expired, deleting", logger.String("endpoint", sub.Endpoint))
		if err := wp.deps.Store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.log.Error(ctx, "failed to delete expired subscription", logger.String("endpoint", sub.Endpoint), logger.Error(err))
		}
	}
}

func firstName(names string) string {
	name, _, _ := strings.Cut(names, ", ")
	return name
}
