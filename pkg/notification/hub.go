/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package notification

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/learningequality/kolibri-sub006/pkg/config"
	"github.com/learningequality/kolibri-sub006/pkg/metrics"
)

// ErrTooManySubscribers is returned when the subscriber limit is reached
var ErrTooManySubscribers = errors.New("too many notification subscribers")

const (
	sendBufferSize = 64
	maxMessageSize = 4096

	// Inbound messages a subscriber may send: a burst of actionBurst, then
	// one per actionInterval
	actionBurst    = 4
	actionInterval = 500 * time.Millisecond
)

type subscriber struct {
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
}

// Hub implements Relay and Navigator by broadcasting events to every
// subscribed UI over WebSocket. The latest persistent snackbar is replayed
// to new subscribers.
type Hub struct {
	cfg      config.NotificationsConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	subscribers map[*subscriber]bool
	snackbar    *SnackbarPayload
	action      func()
}

// NewHub creates a notification hub
func NewHub(cfg config.NotificationsConfig, logger *zap.Logger) *Hub {
	return &Hub{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		subscribers: make(map[*subscriber]bool),
	}
}

// CreateSnackbar shows a snackbar on every subscriber
func (h *Hub) CreateSnackbar(text string, opts Options) {
	payload := SnackbarPayload{
		Text:        text,
		ActionText:  opts.ActionText,
		AutoDismiss: opts.AutoDismiss,
		Backdrop:    opts.Backdrop,
		ForceReuse:  opts.ForceReuse,
	}

	h.mu.Lock()
	h.action = opts.ActionCallback
	if opts.AutoDismiss {
		h.snackbar = nil
	} else {
		h.snackbar = &payload
	}
	h.mu.Unlock()

	h.broadcast(Event{Type: EventSnackbarCreate, Payload: payload})
}

// SetSnackbarText updates the text of the visible snackbar
func (h *Hub) SetSnackbarText(text string) {
	h.mu.Lock()
	if h.snackbar != nil {
		h.snackbar.Text = text
	}
	h.mu.Unlock()

	h.broadcast(Event{Type: EventSnackbarText, Payload: TextPayload{Text: text}})
}

// ClearSnackbar hides the snackbar
func (h *Hub) ClearSnackbar() {
	h.mu.Lock()
	h.snackbar = nil
	h.action = nil
	h.mu.Unlock()

	h.broadcast(Event{Type: EventSnackbarClear})
}

// Redirect sends every subscriber to url
func (h *Hub) Redirect(url string) {
	h.broadcast(Event{Type: EventNavigate, Payload: NavigatePayload{URL: url}})
}

// Reload asks every subscriber to reload the page
func (h *Hub) Reload() {
	h.broadcast(Event{Type: EventReload})
}

// Snackbar returns the persistent snackbar currently shown, if any
func (h *Hub) Snackbar() (SnackbarPayload, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.snackbar == nil {
		return SnackbarPayload{}, false
	}
	return *h.snackbar, true
}

// TriggerAction runs the current snackbar's action, if it has one
func (h *Hub) TriggerAction() bool {
	h.mu.RLock()
	action := h.action
	h.mu.RUnlock()

	if action == nil {
		return false
	}
	action()
	return true
}

// SubscriberCount returns the number of connected subscribers
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// ServeHTTP upgrades the request and subscribes the connection
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.cfg.MaxSubscribers > 0 && h.SubscriberCount() >= h.cfg.MaxSubscribers {
		http.Error(w, ErrTooManySubscribers.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Notification subscriber upgrade failed", zap.Error(err))
		return
	}

	s, err := h.add(conn)
	if err != nil {
		h.logger.Warn("Rejecting notification subscriber", zap.Error(err))
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(h.cfg.WriteTimeout))
		conn.Close()
		return
	}

	h.logger.Info("Notification subscriber connected", zap.String("remote_addr", r.RemoteAddr))
	go h.writePump(s)
	h.readPump(s)
	h.logger.Info("Notification subscriber disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subscribers {
		delete(h.subscribers, s)
		close(s.send)
	}
	metrics.NotificationSubscribers.Set(0)
}

func (h *Hub) add(conn *websocket.Conn) (*subscriber, error) {
	s := &subscriber{
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		limiter: rate.NewLimiter(rate.Every(actionInterval), actionBurst),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cfg.MaxSubscribers > 0 && len(h.subscribers) >= h.cfg.MaxSubscribers {
		return nil, ErrTooManySubscribers
	}
	h.subscribers[s] = true
	metrics.NotificationSubscribers.Set(float64(len(h.subscribers)))

	if h.snackbar != nil {
		if data, err := json.Marshal(Event{Type: EventSnackbarCreate, Payload: *h.snackbar}); err == nil {
			s.send <- data
		}
	}
	return s, nil
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[s]; ok {
		delete(h.subscribers, s)
		close(s.send)
		metrics.NotificationSubscribers.Set(float64(len(h.subscribers)))
	}
}

func (h *Hub) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to marshal notification event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	metrics.NotificationEventsTotal.WithLabelValues(string(ev.Type)).Inc()

	var slow []*subscriber
	h.mu.RLock()
	for s := range h.subscribers {
		select {
		case s.send <- data:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.logger.Warn("Notification subscriber too slow, disconnecting")
		h.remove(s)
	}
}

func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(s *subscriber) {
	defer h.remove(s)

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Notification subscriber read failed", zap.Error(err))
			}
			return
		}

		if !s.limiter.Allow() {
			h.logger.Debug("Dropping subscriber message over rate limit")
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("Ignoring malformed subscriber message", zap.Error(err))
			continue
		}
		if msg.Type == MessageSnackbarAction {
			h.TriggerAction()
		}
	}
}
