package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agent-runner/pkg/models"
)

// sseKeepaliveInterval is how often the stream writes a comment-only line to
// keep intermediaries from timing out an idle connection.
const sseKeepaliveInterval = 20 * time.Second

// sseEventType extracts an event payload's "type" field so the stream can
// detect a terminal event and close itself without depending on the caller.
func sseEventType(payload []byte) models.EventType {
	var envelope struct {
		Type models.EventType `json:"type"`
	}
	_ = json.Unmarshal(payload, &envelope)
	return envelope.Type
}

// listEventsHandler handles GET /runs/:id/events?after_id=&limit=.
func (s *Server) listEventsHandler(c *echo.Context) error {
	runID := c.Param("id")
	if _, err := s.store.GetRun(c.Request().Context(), runID); err != nil {
		return mapStoreError(err)
	}

	afterID := int64(0)
	if v := c.QueryParam("after_id"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid after_id")
		}
		afterID = parsed
	}

	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid limit")
		}
		limit = parsed
	}

	events, err := s.store.ListEvents(c.Request().Context(), runID, afterID, limit)
	if err != nil {
		return mapStoreError(err)
	}
	if events == nil {
		return c.JSON(http.StatusOK, []struct{}{})
	}
	return c.JSON(http.StatusOK, events)
}

// streamEventsHandler handles GET /runs/:id/events/stream[?after_id=], a
// server-sent-events endpoint. It replays events after the given cursor
// from the store, then forwards live NOTIFY-delivered events from the
// Broker until the client disconnects or the Run reaches a terminal state.
func (s *Server) streamEventsHandler(c *echo.Context) error {
	runID := c.Param("id")
	ctx := c.Request().Context()

	if _, err := s.store.GetRun(ctx, runID); err != nil {
		return mapStoreError(err)
	}

	afterID := int64(0)
	if v := c.QueryParam("after_id"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			afterID = parsed
		}
	}

	ch, unsubscribe, err := s.broker.Subscribe(ctx, runID)
	if err != nil {
		return mapStoreError(err)
	}
	defer unsubscribe()

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.Writer.(interface{ Flush() })

	backlog, err := s.store.ListEvents(ctx, runID, afterID, 0)
	if err != nil {
		return mapStoreError(err)
	}
	for _, evt := range backlog {
		payload, merr := json.Marshal(evt)
		if merr != nil {
			continue
		}
		if _, werr := fmt.Fprintf(w, "data: %s\n\n", payload); werr != nil {
			return nil
		}
		if models.TerminalRunEvents[evt.Type] {
			if canFlush {
				flusher.Flush()
			}
			return nil
		}
	}
	if canFlush {
		flusher.Flush()
	}

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return nil
			}
			if canFlush {
				flusher.Flush()
			}
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return nil
			}
			if canFlush {
				flusher.Flush()
			}
			if models.TerminalRunEvents[sseEventType(payload)] {
				return nil
			}
		}
	}
}
