package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"crewboard/internal/config"
	"crewboard/internal/domain"
	"crewboard/internal/engine"
)

const (
	webhookPollInterval   = 2 * time.Second
	webhookDefaultTimeout = 5 * time.Second
	webhookBatchSize      = 100
)

// webhookDispatcher polls the events table and POSTs new events to the
// tenant's configured webhook endpoints. Each endpoint keeps its own cursor so
// a slow or failing endpoint does not block the others.
type webhookDispatcher struct {
	engine   engine.Engine
	tenantID string
	hooks    []config.WebhookConfig
	client   *http.Client
	log      *slog.Logger

	mu      sync.Mutex
	cursors map[int]int64
}

// startWebhookDispatcher launches the background dispatcher when the server's
// config declares enabled webhooks. No-op otherwise.
func startWebhookDispatcher(e engine.Engine) {
	if e.Config == nil || e.Config.Tenant.ID == "" {
		return
	}
	var hooks []config.WebhookConfig
	for _, h := range e.Config.Webhooks {
		if h.URL == "" {
			continue
		}
		if h.Enabled != nil && !*h.Enabled {
			continue
		}
		hooks = append(hooks, h)
	}
	if len(hooks) == 0 {
		return
	}
	d := &webhookDispatcher{
		engine:   e,
		tenantID: e.Config.Tenant.ID,
		hooks:    hooks,
		client:   &http.Client{},
		log:      slog.Default().With("component", "webhooks", "tenant", e.Config.Tenant.ID),
		cursors:  make(map[int]int64),
	}
	go d.run(context.Background())
}

func (d *webhookDispatcher) run(ctx context.Context) {
	if err := d.initCursors(ctx); err != nil {
		d.log.Error("init webhook cursors", "err", err)
		return
	}
	ticker := time.NewTicker(webhookPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.dispatchOnce(ctx)
		}
	}
}

// initCursors starts every endpoint at the current event head: only events
// created after the server started are delivered.
func (d *webhookDispatcher) initCursors(ctx context.Context) error {
	head, err := d.engine.Repo.LatestEventID(ctx, d.tenantID)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.hooks {
		d.cursors[i] = head
	}
	return nil
}

func (d *webhookDispatcher) dispatchOnce(ctx context.Context) {
	for i, hook := range d.hooks {
		d.mu.Lock()
		cursor := d.cursors[i]
		d.mu.Unlock()

		events, err := d.engine.Repo.EventsAfter(ctx, webhookBatchSize, cursor, d.tenantID)
		if err != nil {
			d.log.Warn("load events for webhook", "url", hook.URL, "err", err)
			continue
		}
		for _, evt := range events {
			if !eventMatches(hook, evt) {
				d.advance(i, evt.ID)
				continue
			}
			if err := d.postEvent(ctx, hook, evt); err != nil {
				d.log.Warn("deliver webhook", "url", hook.URL, "event_id", evt.ID, "err", err)
				break // retry this event next tick
			}
			d.advance(i, evt.ID)
		}
	}
}

func (d *webhookDispatcher) advance(hookIdx int, eventID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if eventID > d.cursors[hookIdx] {
		d.cursors[hookIdx] = eventID
	}
}

// eventMatches applies the hook's event filter. An empty filter matches all.
func eventMatches(hook config.WebhookConfig, evt domain.Event) bool {
	if len(hook.Events) == 0 {
		return true
	}
	for _, t := range hook.Events {
		if t == evt.Type || t == "*" {
			return true
		}
	}
	return false
}

func (d *webhookDispatcher) postEvent(ctx context.Context, hook config.WebhookConfig, evt domain.Event) error {
	body, err := json.Marshal(eventResponse(evt))
	if err != nil {
		return err
	}
	timeout := webhookDefaultTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Crewboard-Event", evt.Type)
	req.Header.Set("X-Crewboard-Delivery", fmt.Sprintf("%d", evt.ID))
	req.Header.Set("X-Crewboard-Tenant", d.tenantID)
	if hook.Secret != "" {
		req.Header.Set("X-Crewboard-Secret", hook.Secret)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}
