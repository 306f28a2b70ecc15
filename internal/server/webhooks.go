package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"nudgeline/internal/config"
	"nudgeline/internal/domain"
	"nudgeline/internal/engine"
)

const (
	webhookPollInterval = 5 * time.Second
	webhookBatchSize    = 100
	webhookTimeout      = 10 * time.Second
)

// startWebhookDispatcher fans events out to the configured webhooks. Each
// hook keeps its own cursor, starting at the newest event at boot so a
// restart does not replay history.
func startWebhookDispatcher(e engine.Engine) {
	if len(e.Config.Webhooks) == 0 {
		return
	}
	go func() {
		ctx := context.Background()
		start, err := e.Repo.LatestEventID(ctx, "")
		if err != nil {
			log.Printf("webhooks: initial cursor: %v", err)
		}
		cursors := make([]int64, len(e.Config.Webhooks))
		for i := range cursors {
			cursors[i] = start
		}
		client := &http.Client{Timeout: webhookTimeout}
		ticker := time.NewTicker(webhookPollInterval)
		defer ticker.Stop()
		for range ticker.C {
			for i, hook := range e.Config.Webhooks {
				events, err := e.Repo.EventsAfter(ctx, webhookBatchSize, cursors[i], "")
				if err != nil {
					log.Printf("webhooks: poll %s: %v", hook.URL, err)
					continue
				}
				for _, evt := range events {
					if !eventMatches(hook, evt.Type) {
						cursors[i] = evt.ID
						continue
					}
					if err := postEvent(ctx, client, hook, evt); err != nil {
						log.Printf("webhooks: deliver %s to %s: %v", evt.Type, hook.URL, err)
						break
					}
					cursors[i] = evt.ID
				}
			}
		}
	}()
}

// eventMatches applies the hook's event filter; empty means everything.
// A trailing ".*" matches a type prefix, so "proposal.*" covers the whole
// proposal lifecycle.
func eventMatches(hook config.Webhook, evtType string) bool {
	if len(hook.Events) == 0 {
		return true
	}
	for _, pattern := range hook.Events {
		if pattern == evtType {
			return true
		}
		if strings.HasSuffix(pattern, ".*") && strings.HasPrefix(evtType, strings.TrimSuffix(pattern, "*")) {
			return true
		}
	}
	return false
}

func postEvent(ctx context.Context, client *http.Client, hook config.Webhook, evt domain.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Nudgeline-Event", evt.Type)
	req.Header.Set("X-Nudgeline-Delivery", uuid.NewString())
	if hook.Secret != "" {
		req.Header.Set("X-Nudgeline-Secret", hook.Secret)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
