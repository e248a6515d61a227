package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/codeGROOVE-dev/sprinkler/pkg/client"
)

const (
	eventChannelSize     = 100              // Buffer size for the event queue
	eventDedupWindow     = 5 * time.Second  // Time window for deduplicating events
	eventMapMaxSize      = 1000             // Maximum entries in the event dedup map
	eventMapCleanupAge   = time.Hour        // Age threshold for cleaning old dedup entries
	eventMaxRetries      = 3                // Attempts per event before giving up
	eventMaxDelay        = 10 * time.Second // Upper bound on per-event retry delay
	maxReconnectAttempts = 100              // Restarts of the websocket client before giving up
	reconnectBackoff     = 30 * time.Second // Initial delay between client restarts
	maxReconnectBackoff  = 5 * time.Minute  // Maximum delay between client restarts
)

// Event kinds carried in GitHub URLs.
const (
	kindPull  = "pull"
	kindIssue = "issues"
)

// eventRef is a parsed pull request or issue URL.
type eventRef struct {
	owner  string
	repo   string
	kind   string // kindPull or kindIssue
	number int
}

func (r eventRef) repository() string {
	return r.owner + "/" + r.repo
}

// eventHandler is the subset of the bot the monitor drives.
type eventHandler interface {
	processPR(ctx context.Context, pr int) error
	dispatchNow(ctx context.Context) error
}

// sprinklerMonitor subscribes to the organization event stream and feeds
// events for one repository to the bot.
type sprinklerMonitor struct {
	handler      eventHandler
	metrics      *MetricsCollector
	tokens       func(context.Context) (string, error)
	client       *client.Client
	cancel       context.CancelFunc
	events       chan eventRef
	lastEventMap map[string]time.Time
	org          string
	repository   string // owner/repo; events for other repositories are dropped
	mu           sync.Mutex
	connected    bool
}

func newSprinklerMonitor(h eventHandler, metrics *MetricsCollector, org, repository string, tokens func(context.Context) (string, error)) *sprinklerMonitor {
	return &sprinklerMonitor{
		handler:      h,
		metrics:      metrics,
		tokens:       tokens,
		events:       make(chan eventRef, eventChannelSize),
		lastEventMap: make(map[string]time.Time),
		org:          org,
		repository:   repository,
	}
}

// start launches the connection and event processing goroutines.
func (sm *sprinklerMonitor) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	sm.mu.Lock()
	sm.cancel = cancel
	sm.mu.Unlock()

	slog.Info("Starting event monitor", "component", "sprinkler", "org", sm.org, "repo", sm.repository)
	go sm.processEvents(ctx)
	go sm.manageConnection(ctx)
}

// stop cancels the monitor and closes the websocket.
func (sm *sprinklerMonitor) stop() {
	sm.mu.Lock()
	cancel, wsClient := sm.cancel, sm.client
	sm.cancel = nil
	sm.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if wsClient != nil {
		wsClient.Stop()
	}
	slog.Info("Event monitor stopped", "component", "sprinkler", "org", sm.org)
}

// manageConnection keeps a websocket client running. The client reconnects on its
// own; this restarts it with backoff when it gives up.
func (sm *sprinklerMonitor) manageConnection(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Connection manager panic", "component", "sprinkler", "org", sm.org, "panic", r)
		}
	}()

	for ctx.Err() == nil {
		err := retry.Do(
			func() error { return sm.connect(ctx) },
			retry.Context(ctx),
			retry.Attempts(maxReconnectAttempts),
			retry.Delay(reconnectBackoff),
			retry.MaxDelay(maxReconnectBackoff),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(error) bool { return ctx.Err() == nil }),
			retry.OnRetry(func(n uint, err error) {
				slog.Warn("WebSocket client gave up, restarting", "component", "sprinkler", "org", sm.org, "attempt", n+1, "error", err)
			}),
		)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Error("Giving up on event stream", "component", "sprinkler", "org", sm.org, "error", err)
			}
			return
		}

		// Clean exit; restart after a short pause.
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

// connect runs one websocket client until it exits. The token is fetched on every
// call, so a client that stops on an expired installation token restarts with a fresh one.
func (sm *sprinklerMonitor) connect(ctx context.Context) error {
	token, err := sm.tokens(ctx)
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}

	wsClient, err := client.New(client.Config{
		ServerURL:    "wss://" + client.DefaultServerAddress + "/ws",
		Organization: sm.org,
		Token:        token,
		Logger:       slog.Default().With("component", "sprinkler"),
		EventTypes:   []string{"pull_request", "issues"},
		OnConnect: func() {
			sm.setConnected(true)
			slog.Info("WebSocket connected", "component", "sprinkler", "org", sm.org)
		},
		OnDisconnect: func(err error) {
			sm.setConnected(false)
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("WebSocket disconnected", "component", "sprinkler", "org", sm.org, "error", err)
			}
		},
		OnEvent: func(event client.Event) {
			sm.handleEvent(event.Type, event.URL)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	sm.mu.Lock()
	sm.client = wsClient
	sm.mu.Unlock()

	start := time.Now()
	if err := wsClient.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("websocket client stopped after %s: %w", time.Since(start).Round(time.Second), err)
	}
	return nil
}

func (sm *sprinklerMonitor) setConnected(v bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.connected = v
}

func (sm *sprinklerMonitor) isConnected() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.connected
}

// handleEvent filters, dedupes and queues one event. It never blocks.
func (sm *sprinklerMonitor) handleEvent(eventType, url string) bool {
	if eventType != "pull_request" && eventType != "issues" {
		return false
	}
	ref, err := parseEventURL(url)
	if err != nil {
		slog.Warn("Ignoring event with unparseable URL", "component", "sprinkler", "url", url, "error", err)
		return false
	}
	if !strings.EqualFold(ref.repository(), sm.repository) {
		slog.Debug("Ignoring event for another repository", "component", "sprinkler", "url", url)
		return false
	}

	sm.mu.Lock()
	now := time.Now()
	if last, ok := sm.lastEventMap[url]; ok && now.Sub(last) < eventDedupWindow {
		sm.mu.Unlock()
		return false
	}
	sm.lastEventMap[url] = now
	if len(sm.lastEventMap) > eventMapMaxSize {
		cutoff := now.Add(-eventMapCleanupAge)
		for u, ts := range sm.lastEventMap {
			if ts.Before(cutoff) {
				delete(sm.lastEventMap, u)
			}
		}
	}
	sm.mu.Unlock()

	select {
	case sm.events <- ref:
		sm.metrics.RecordEvent()
		slog.Info("Event queued", "component", "sprinkler", "url", url)
		return true
	default:
		slog.Warn("Event channel full, dropping event", "component", "sprinkler", "url", url)
		return false
	}
}

func (sm *sprinklerMonitor) processEvents(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event processor panic", "component", "sprinkler", "panic", r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ref := <-sm.events:
			sm.processEvent(ctx, ref)
		}
	}
}

// processEvent runs Guardian for a pull request event or a dispatch cycle for an issue event.
func (sm *sprinklerMonitor) processEvent(ctx context.Context, ref eventRef) {
	start := time.Now()
	op := func() error { return sm.handler.processPR(ctx, ref.number) }
	if ref.kind == kindIssue {
		op = func() error { return sm.handler.dispatchNow(ctx) }
	}

	err := retry.Do(op,
		retry.Attempts(eventMaxRetries),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxDelay(eventMaxDelay),
		retry.OnRetry(func(n uint, err error) {
			slog.Info("Retrying event", "component", "sprinkler", "attempt", n+1, "kind", ref.kind, "number", ref.number, "error", err)
		}),
		retry.Context(ctx),
	)
	if err != nil {
		slog.Error("Failed to process event after retries",
			"component", "sprinkler",
			"kind", ref.kind,
			"number", ref.number,
			"elapsed", time.Since(start).Round(time.Millisecond),
			"error", err)
		return
	}
	slog.Info("Processed event",
		"component", "sprinkler",
		"kind", ref.kind,
		"number", ref.number,
		"elapsed", time.Since(start).Round(time.Millisecond))
}

// parseEventURL parses https://github.com/owner/repo/pull/123 or .../issues/123.
// Trailing path segments are ignored.
func parseEventURL(url string) (eventRef, error) {
	const minParts = 7
	parts := strings.Split(url, "/")
	if len(parts) < minParts || parts[0] != "https:" || parts[2] != "github.com" || parts[3] == "" || parts[4] == "" {
		return eventRef{}, fmt.Errorf("invalid GitHub URL format: %s", url)
	}
	kind := parts[5]
	if kind != kindPull && kind != kindIssue {
		return eventRef{}, fmt.Errorf("not a pull request or issue URL: %s", url)
	}
	number, err := strconv.Atoi(parts[6])
	if err != nil || number <= 0 {
		return eventRef{}, fmt.Errorf("invalid number in URL: %s", url)
	}
	return eventRef{owner: parts[3], repo: parts[4], kind: kind, number: number}, nil
}
