package api

import (
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mescon/chronarr/internal/domain"
	"github.com/mescon/chronarr/internal/eventbus"
	"github.com/mescon/chronarr/internal/logger"
	"github.com/mescon/chronarr/internal/metrics"
)

// getWebSocketUpgrader returns an upgrader with origin validation
// based on CHRONARR_CORS_ORIGIN environment variable
func getWebSocketUpgrader() websocket.Upgrader {
	corsOrigins := os.Getenv("CHRONARR_CORS_ORIGIN")
	allowedOrigins := make(map[string]bool)
	if corsOrigins != "" && corsOrigins != "*" {
		for _, origin := range strings.Split(corsOrigins, ",") {
			allowedOrigins[strings.TrimSpace(origin)] = true
		}
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// If CORS is set to "*", allow all origins
			if corsOrigins == "*" {
				return true
			}
			// If no CORS origins configured, only allow same-origin
			if corsOrigins == "" {
				// Same-origin check: origin should match host
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true // No origin header = same-origin request
				}
				// Parse origin and compare host
				host := r.Host
				return strings.Contains(origin, host)
			}
			// Check against allowed origins
			origin := r.Header.Get("Origin")
			return allowedOrigins[origin]
		},
	}
}

var upgrader = getWebSocketUpgrader()

// WebSocketHub fans events and log entries out to connected clients.
// Sensor value updates arrive here the moment a timer fires, so a
// dashboard sees each clock tick without polling.
type WebSocketHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan interface{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	closeOnce  sync.Once
	logCh      chan logger.LogEntry
	mu         sync.Mutex
	eventBus   *eventbus.EventBus
	metrics    *metrics.MetricsService
}

// NewWebSocketHub creates a hub subscribed to every event type.
// metrics may be nil; the client gauge is then skipped.
func NewWebSocketHub(eventBus *eventbus.EventBus, m *metrics.MetricsService) *WebSocketHub {
	h := &WebSocketHub{
		broadcast:  make(chan interface{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		clients:    make(map[*websocket.Conn]bool),
		eventBus:   eventBus,
		metrics:    m,
	}

	// Subscribe to all events
	types := []domain.EventType{
		domain.SensorActivated,
		domain.SensorValueChanged,
		domain.SensorDeactivated,
		domain.SensorTimerFailed,
		domain.ProfileCreated,
		domain.ProfileUpdated,
		domain.ProfileDeleted,
		domain.ProfilesFileReloaded,
		domain.ChimeFired,
		domain.NotificationSent,
		domain.NotificationFailed,
	}

	for _, t := range types {
		eventBus.Subscribe(t, func(e domain.Event) {
			h.emit(map[string]interface{}{
				"type": "event",
				"data": e,
			})
		})
	}

	// Subscribe to logs
	h.logCh = logger.Subscribe()
	go func() {
		for {
			select {
			case entry, ok := <-h.logCh:
				if !ok {
					return
				}
				h.emit(map[string]interface{}{
					"type": "log",
					"data": entry,
				})
			case <-h.done:
				return
			}
		}
	}()

	go h.run()
	return h
}

// emit hands a message to the broadcast loop. After Shutdown the message
// is dropped instead of blocking the caller, which matters because event
// bus handlers must never wedge during teardown.
func (h *WebSocketHub) emit(message interface{}) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

func (h *WebSocketHub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				if err := client.Close(); err != nil {
					logger.Debugf("WebSocket close error during shutdown: %v", err)
				}
			}
			h.clients = make(map[*websocket.Conn]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			logger.Debugf("WebSocket client connected (Total: %d)", len(h.clients))
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.WebSocketClientConnected()
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				if err := client.Close(); err != nil {
					logger.Debugf("WebSocket close error: %v", err)
				}
				logger.Debugf("WebSocket client disconnected")
				if h.metrics != nil {
					h.metrics.WebSocketClientDisconnected()
				}
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				err := client.WriteJSON(message)
				if err != nil {
					logger.Errorf("WebSocket error: %v", err)
					if closeErr := client.Close(); closeErr != nil {
						logger.Debugf("WebSocket close error during broadcast: %v", closeErr)
					}
					delete(h.clients, client)
					if h.metrics != nil {
						h.metrics.WebSocketClientDisconnected()
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *WebSocketHub) HandleConnection(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}
	select {
	case h.register <- ws:
	case <-h.done:
		ws.Close()
		return
	}

	// Send initial ping to verify connection (safe before ping goroutine starts)
	h.mu.Lock()
	if err := ws.WriteJSON(gin.H{"type": "ping", "timestamp": time.Now()}); err != nil {
		logger.Debugf("Failed to send initial ping: %v", err)
	}
	h.mu.Unlock()

	// Set up ping/pong to keep connection alive
	const (
		pongWait   = 60 * time.Second
		pingPeriod = (pongWait * 9) / 10
	)

	if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Debugf("Failed to set initial read deadline: %v", err)
	}
	ws.SetPongHandler(func(string) error {
		// SetReadDeadline error is returned to the pong handler caller
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Send pings periodically
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	go func() {
		for range ticker.C {
			h.mu.Lock()
			_, exists := h.clients[ws]
			if !exists {
				h.mu.Unlock()
				return // Client disconnected, stop sending pings
			}
			// Write ping while holding mutex to prevent concurrent writes with broadcast
			err := ws.WriteMessage(websocket.PingMessage, nil)
			h.mu.Unlock()
			if err != nil {
				logger.Errorf("WebSocket ping error: %v", err)
				select {
				case h.unregister <- ws:
				case <-h.done:
				}
				return
			}
		}
	}()

	// Keep connection alive by reading messages (pings/pongs/close)
	// This loop blocks until the connection is closed or an error occurs.
	// The defer function will handle cleanup.
	defer func() {
		// Unregister client when HandleConnection exits
		select {
		case h.unregister <- ws:
		case <-h.done:
		}
		logger.Debugf("WebSocket client handler exited")
	}()

	for {
		// ReadMessage blocks until a message is received or an error occurs.
		// We don't necessarily care about the content of the message here,
		// as the pong handler updates the read deadline.
		// This loop primarily keeps the connection open and allows the pong handler to work.
		_, _, err := ws.ReadMessage()
		if err != nil {
			break
		}
	}
}

// ClientCount returns the number of connected WebSocket clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown stops the broadcast loop, releases the log subscription and
// closes every connected client. Safe to call more than once.
func (h *WebSocketHub) Shutdown() {
	h.closeOnce.Do(func() {
		logger.Unsubscribe(h.logCh)
		close(h.done)
	})
}
