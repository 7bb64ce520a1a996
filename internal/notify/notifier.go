// Package notify delivers end-of-day completion notifications. Enqueue is
// fire-and-forget from the report builder; delivery is at-least-once off a
// redis list, deduplicated per report so a redelivered message is dropped
// instead of notifying twice.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pos-analytics/config"
	"pos-analytics/internal/cache"
	"pos-analytics/internal/eod"
	"pos-analytics/internal/events"
	"pos-analytics/internal/logging"
)

// Message is one queued notification.
type Message struct {
	ReportID   string    `json:"report_id"`
	BusinessID string    `json:"business_id"`
	ReportDate string    `json:"report_date"`
	Status     string    `json:"status"`
	NetSales   float64   `json:"net_sales"`
	AlertCount int       `json:"alert_count"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Attempts   int       `json:"attempts"`
}

// Notifier consumes the notification queue.
type Notifier struct {
	cache *cache.CacheService
	cfg   config.NotifyConfig
	email *EmailSender
	log   *logging.Logger
}

// NewNotifier wires the notifier to the report lifecycle events.
func NewNotifier(cs *cache.CacheService, bus *events.Bus, cfg config.NotifyConfig) *Notifier {
	n := &Notifier{
		cache: cs,
		cfg:   cfg,
		email: NewEmailSender(cfg.SMTP),
		log:   logging.WithComponent("notify"),
	}
	if cfg.Enabled {
		bus.Subscribe(events.EODCompleted, n.onEODCompleted)
	}
	return n
}

// onEODCompleted enqueues a notification. Enqueue failure logs and moves
// on: a missed notification must never fail report generation.
func (n *Notifier) onEODCompleted(evt events.Event) {
	report, ok := evt.Payload.(*eod.Report)
	if !ok {
		return
	}

	msg := Message{
		ReportID:   report.ID,
		BusinessID: report.BusinessID,
		ReportDate: report.ReportDate.Format("2006-01-02"),
		Status:     report.Status,
		NetSales:   report.Sales.NetSales,
		AlertCount: len(report.Alerts),
		EnqueuedAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := n.enqueue(ctx, msg); err != nil {
		n.log.Warn("notification enqueue failed", "report_id", report.ID, "error", err)
	}
}

func (n *Notifier) enqueue(ctx context.Context, msg Message) error {
	client := n.cache.Client()
	if client == nil {
		return cache.ErrUnavailable
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return client.LPush(ctx, n.cfg.QueueKey, data).Err()
}

// Run consumes the queue until the context ends. Delivery is at-least-once;
// the per-report dedupe key suppresses duplicates within its TTL.
func (n *Notifier) Run(ctx context.Context) {
	if !n.cfg.Enabled {
		return
	}
	client := n.cache.Client()
	if client == nil {
		n.log.Warn("notifier disabled, redis unavailable")
		return
	}

	n.log.Info("notification worker started", "queue", n.cfg.QueueKey)
	for {
		select {
		case <-ctx.Done():
			n.log.Info("notification worker stopped")
			return
		default:
		}

		res, err := client.BRPop(ctx, 5*time.Second, n.cfg.QueueKey).Result()
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			continue
		}
		if err != nil {
			n.log.Warn("notification dequeue failed", "error", err)
			time.Sleep(n.cfg.RetryDelay)
			continue
		}
		if len(res) < 2 {
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			n.log.Error("dropping malformed notification", "error", err)
			continue
		}
		n.process(ctx, client, msg)
	}
}

func (n *Notifier) process(ctx context.Context, client *redis.Client, msg Message) {
	dedupeKey := fmt.Sprintf("notify:eod:sent:%s", msg.ReportID)
	ok, err := client.SetNX(ctx, dedupeKey, time.Now().UTC().Format(time.RFC3339), n.cfg.DedupeTTL).Result()
	if err != nil {
		n.log.Warn("dedupe check failed, requeueing", "report_id", msg.ReportID, "error", err)
		n.requeue(ctx, client, msg)
		return
	}
	if !ok {
		n.log.Debug("duplicate notification suppressed", "report_id", msg.ReportID)
		return
	}

	if err := n.deliver(msg); err != nil {
		// Release the dedupe claim so a retry can deliver.
		client.Del(ctx, dedupeKey)
		n.requeue(ctx, client, msg)
		return
	}
}

// deliver emits the notification: email when SMTP is configured,
// otherwise a structured log line.
func (n *Notifier) deliver(msg Message) error {
	if n.email != nil {
		return n.email.Send(msg)
	}
	n.log.Info("eod report ready",
		"business_id", msg.BusinessID,
		"report_date", msg.ReportDate,
		"status", msg.Status,
		"net_sales", msg.NetSales,
		"alerts", msg.AlertCount)
	return nil
}

func (n *Notifier) requeue(ctx context.Context, client *redis.Client, msg Message) {
	msg.Attempts++
	if msg.Attempts >= n.cfg.MaxAttempts {
		n.log.Error("notification dropped after max attempts", "report_id", msg.ReportID, "attempts", msg.Attempts)
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := client.LPush(ctx, n.cfg.QueueKey, data).Err(); err != nil {
		n.log.Warn("notification requeue failed", "report_id", msg.ReportID, "error", err)
	}
}
