package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gyaneshwarpardhi/paystream/internal/event"
	"github.com/gyaneshwarpardhi/paystream/internal/filter"
	"github.com/gyaneshwarpardhi/paystream/internal/stream"
)

const (
	streamBuffer = 64
	pingInterval = 15 * time.Second
)

// GET /v1/stream?filter=: server-sent events, one envelope per broadcast
// event. The subscription lives exactly as long as the request.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	f, err := filter.Compile(r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rc := http.NewResponseController(w)
	// Server write timeouts would cut a long-lived stream.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && err != http.ErrNotSupported {
		slog.Debug("stream write deadline", "err", err)
	}

	done := r.Context().Done()
	frames := make(chan *event.Event, streamBuffer)
	opts := []stream.Option{
		stream.WithHandler(func(ev *event.Event) {
			select {
			case frames <- ev:
			case <-done:
			}
		}),
	}
	if f != nil {
		opts = append(opts, stream.WithFilter(f.Match))
	}
	sub := h.Channel.Subscribe(opts...)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	if err := rc.Flush(); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
		case ev := <-frames:
			env := event.Wrap(ev, time.Now())
			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, env.Type, data)
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
