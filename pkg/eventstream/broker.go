package eventstream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// listenTimeout bounds how long a LISTEN may block when a first subscriber
// joins a run's channel, so a stalled PG connection can't wedge the SSE
// handler goroutine indefinitely.
const listenTimeout = 10 * time.Second

// subscriberBuffer is how many raw NOTIFY payloads a slow SSE client can fall
// behind by before further payloads for it are dropped (the client stays
// subscribed) — a lagging client is a defect on the client side, not
// something the broker should block for.
const subscriberBuffer = 64

// runChannel derives the NOTIFY channel name for a Run. Must match the
// naming used by store.RunChannel, which issues the NOTIFY.
func runChannel(runID string) string {
	return "run_" + strings.ReplaceAll(runID, "-", "_")
}

type subscriber struct {
	id string
	ch chan []byte
}

// Broker fans out NOTIFY payloads to SSE subscribers, ref-counting LISTEN
// per Run channel so the dedicated PG connection only listens on channels
// with at least one live client.
type Broker struct {
	listener *NotifyListener

	mu   sync.RWMutex
	subs map[string]map[string]*subscriber // runID -> subscriberID -> subscriber
}

// NewBroker creates a Broker. SetListener must be called before Subscribe.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[string]*subscriber)}
}

// SetListener wires the NotifyListener used for LISTEN/UNLISTEN.
func (b *Broker) SetListener(l *NotifyListener) {
	b.listener = l
}

// Subscribe registers a new SSE client for runID and starts LISTEN if it is
// the first subscriber for that run. The returned channel receives raw
// NOTIFY payload bytes until unsubscribe is called; the caller must always
// call unsubscribe when done to release the ref count.
func (b *Broker) Subscribe(ctx context.Context, runID string) (ch <-chan []byte, unsubscribe func(), err error) {
	channel := runChannel(runID)
	sub := &subscriber{id: uuid.NewString(), ch: make(chan []byte, subscriberBuffer)}

	b.mu.Lock()
	needsListen := false
	if _, ok := b.subs[runID]; !ok {
		b.subs[runID] = make(map[string]*subscriber)
		needsListen = true
	}
	b.subs[runID][sub.id] = sub
	b.mu.Unlock()

	if needsListen && b.listener != nil {
		listenCtx, cancel := context.WithTimeout(ctx, listenTimeout)
		defer cancel()
		if err := b.listener.Subscribe(listenCtx, channel); err != nil {
			b.removeSubscriber(runID, sub.id)
			return nil, nil, fmt.Errorf("listen on run channel: %w", err)
		}
	}

	once := sync.Once{}
	return sub.ch, func() {
		once.Do(func() { b.removeSubscriber(runID, sub.id) })
	}, nil
}

func (b *Broker) removeSubscriber(runID, subID string) {
	b.mu.Lock()
	subs, ok := b.subs[runID]
	if ok {
		delete(subs, subID)
		if len(subs) == 0 {
			delete(b.subs, runID)
		}
	}
	b.mu.Unlock()

	if !ok || len(subs) > 0 || b.listener == nil {
		return
	}

	// Last subscriber left: stop LISTEN, but re-check first in case a rapid
	// resubscribe already recreated the entry.
	go func() {
		channel := runChannel(runID)
		b.mu.RLock()
		_, resubscribed := b.subs[runID]
		b.mu.RUnlock()
		if resubscribed {
			return
		}
		if err := b.listener.Unsubscribe(context.Background(), channel); err != nil {
			slog.Error("UNLISTEN failed", "run_id", runID, "error", err)
		}
	}()
}

// dispatch delivers a raw NOTIFY payload to every subscriber of its channel.
// A subscriber whose buffer is full is skipped rather than blocking the
// shared receive loop.
func (b *Broker) dispatch(channel string, payload []byte) {
	runID := runIDFromChannel(channel)
	b.mu.RLock()
	subs := b.subs[runID]
	targets := make([]*subscriber, 0, len(subs))
	for _, s := range subs {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- payload:
		default:
			slog.Warn("SSE subscriber buffer full, dropping event", "run_id", runID)
		}
	}
}

func runIDFromChannel(channel string) string {
	const prefix = "run_"
	if !strings.HasPrefix(channel, prefix) {
		return channel
	}
	return strings.ReplaceAll(channel[len(prefix):], "_", "-")
}
