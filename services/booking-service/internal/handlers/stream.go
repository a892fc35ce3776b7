package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/md-rashed-zaman/zapagenda/libs/httpx"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
)

const (
	streamWriteWait    = 10 * time.Second
	streamPingInterval = 30 * time.Second
	streamBuffer       = 16
)

// Origin checks happen at the gateway's CORS layer; booking pages are
// embedded on arbitrary customer domains.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Stream pushes one JSON message per availability change for a business and
// date. Clients refetch slots when a message arrives.
func (h *BookingHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	companyID := strings.TrimSpace(q.Get("business_id"))
	date := strings.TrimSpace(q.Get("date"))
	if companyID == "" {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, "business_id is required", map[string]string{"field": "business_id"})
		return
	}
	if !validID(w, "business_id", companyID) {
		return
	}
	if _, err := model.ParseDate(date); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, "date must be YYYY-MM-DD", map[string]string{"field": "date"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	changes := make(chan availability.Change, streamBuffer)
	unsubscribe := h.broker.Subscribe(companyID, date, func(c availability.Change) {
		select {
		case changes <- c:
		default:
			h.logger.Warn("availability stream lagging, change dropped", "business_id", companyID, "date", date)
		}
	})
	defer unsubscribe()
	h.logger.Debug("availability stream opened", "business_id", companyID, "date", date)

	// The read loop only detects the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case c := <-changes:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(c); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}
