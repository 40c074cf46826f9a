// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Live event types.
const (
	LiveEventTurn  = "turn"
	LiveEventEnded = "ended"
)

// LiveEvent is one transcript line or call end pushed to live feed
// subscribers. Phone numbers are never included.
type LiveEvent struct {
	Type   string    `json:"type"`
	CallID string    `json:"call_sid"`
	Role   string    `json:"role,omitempty"`
	Kind   string    `json:"kind,omitempty"`
	Text   string    `json:"text,omitempty"`
	Phase  string    `json:"phase,omitempty"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// DefaultLiveBuffer is the per-subscriber queue length.
const DefaultLiveBuffer = 64

// LiveFeed fans call events out to websocket subscribers.
//
// # Description
//
// Publish never blocks the call path. A subscriber whose queue is full
// misses the event; the drop is counted on the subscription.
//
// # Thread Safety
//
// Safe for concurrent use. A nil *LiveFeed ignores Publish.
type LiveFeed struct {
	mu     sync.Mutex
	subs   map[*liveSub]struct{}
	buffer int
}

type liveSub struct {
	events  chan LiveEvent
	dropped int
}

// NewLiveFeed creates a LiveFeed. buffer <= 0 uses DefaultLiveBuffer.
func NewLiveFeed(buffer int) *LiveFeed {
	if buffer <= 0 {
		buffer = DefaultLiveBuffer
	}
	return &LiveFeed{subs: make(map[*liveSub]struct{}), buffer: buffer}
}

// Subscribe registers a subscriber. Call cancel to unsubscribe; it closes
// the returned channel.
func (f *LiveFeed) Subscribe() (events <-chan LiveEvent, cancel func()) {
	sub := &liveSub{events: make(chan LiveEvent, f.buffer)}
	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return sub.events, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, sub)
			dropped := sub.dropped
			f.mu.Unlock()
			close(sub.events)
			if dropped > 0 {
				slog.Warn("Live feed subscriber missed events", "dropped", dropped)
			}
		})
	}
}

// Publish delivers ev to every subscriber with room in its queue.
func (f *LiveFeed) Publish(ev LiveEvent) {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		select {
		case sub.events <- ev:
		default:
			sub.dropped++
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (f *LiveFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// =============================================================================
// WebSocket Handler
// =============================================================================

const (
	liveWriteTimeout = 10 * time.Second
	livePingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	_ = ws.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleLiveFeed streams live call events over a websocket until the client
// disconnects or the server shuts down.
//
// # Description
//
// The stream is read-only. Anything the client sends is discarded; reading
// only serves to notice the close frame.
func HandleLiveFeed(feed *LiveFeed) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		events, cancel := feed.Subscribe()
		defer cancel()

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(livePingInterval)
		defer ping.Stop()

		ctx := c.Request.Context()
		for {
			select {
			case ev := <-events:
				if err := sendJSON(ws, ev); err != nil {
					return
				}
			case <-ping.C:
				deadline := time.Now().Add(liveWriteTimeout)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			case <-closed:
				return
			case <-ctx.Done():
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(time.Second))
				return
			}
		}
	}
}
