package notify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"lv-settle/internal/metrics"
)

// TokenParser turns a bearer token into a user id.
type TokenParser func(token string) (string, error)

// WSHandler streams settlement events to the authenticated client over a
// websocket. Events addressed to other users are filtered out per
// connection.
type WSHandler struct {
	bus      *Bus
	parse    TokenParser
	origin   string
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(bus *Bus, parse TokenParser, origin string, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		bus:    bus,
		parse:  parse,
		origin: origin,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
		log: log.With().Str("component", "notify.ws").Logger(),
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "*" {
		return true
	}
	reqOrigin := r.Header.Get("Origin")
	// Allow both localhost and 127.0.0.1 variants for development
	if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
		if strings.Contains(reqOrigin, "localhost") || strings.Contains(reqOrigin, "127.0.0.1") {
			return true
		}
	}
	return strings.EqualFold(reqOrigin, origin)
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	userID, err := h.parse(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)

	metrics.WebSocketClients.Inc()
	defer metrics.WebSocketClients.Dec()

	// read pump: we ignore client messages but need the read loop to notice
	// a closed connection
	ctx, cancel := context.WithCancel(r.Context())
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub:
			if !ok {
				return
			}
			if !evt.Targets(userID) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(evt); err != nil {
				h.log.Debug().Err(err).Str("user_id", userID).Msg("websocket write failed")
				return
			}
		}
	}
}
