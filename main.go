package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

type Server struct {
	cfg      Config
	store    RecordStore
	rewards  *Rewards
	admins   *AdminStore
	tokens   *TokenIssuer
	router   *mux.Router
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// Hub fans user events out to that user's websocket connections.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan hubMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	logger     *slog.Logger
}

type hubMessage struct {
	userID  string
	payload []byte
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan hubMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func NewServer(cfg Config, store RecordStore, logger *slog.Logger) (*Server, error) {
	catalogFile, err := LoadCatalogFile(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}

	hub := NewHub(logger)
	rewards := NewRewards(store, RewardsOptions{
		Badges:      catalogFile.Badges,
		MaxAttempts: cfg.MaxWriteAttempts,
		Notifier:    hub,
		Logger:      logger,
	})
	admins := NewAdminStore(newRecordUpdater(store, cfg.MaxWriteAttempts, logger))

	if err := seedData(context.Background(), rewards.Catalog(), admins, catalogFile.Rewards, cfg.AdminEmail, cfg.AdminPassword, logger); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		store:   store,
		rewards: rewards,
		admins:  admins,
		tokens:  NewTokenIssuer(cfg.JWTSecret, cfg.SessionTTL),
		router:  mux.NewRouter(),
		hub:     hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}

	s.setupRoutes()
	go s.hub.run()

	return s, nil
}

// Close stops the event hub. Open websocket connections are closed by
// their write pumps.
func (s *Server) Close() {
	s.hub.stop()
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.logger.Debug("client connected", "user", client.userID)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Debug("client disconnected", "user", client.userID)
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				if client.userID != message.userID {
					continue
				}
				select {
				case client.send <- message.payload:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// Notify queues an event for the user's connected clients.
func (h *Hub) Notify(userID, eventType string, data interface{}) {
	payload, err := json.Marshal(map[string]interface{}{
		"type": eventType,
		"data": data,
	})
	if err != nil {
		h.logger.Error("marshal event", "type", eventType, "error", err)
		return
	}

	select {
	case h.broadcast <- hubMessage{userID: userID, payload: payload}:
	default:
		h.logger.Warn("event dropped, hub backlog full", "type", eventType, "user", userID)
	}
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/login", s.handleLogin).Methods("POST")
	api.HandleFunc("/logout", s.handleLogout).Methods("POST")
	api.HandleFunc("/badges", s.handleGetBadgeCatalog).Methods("GET")
	api.HandleFunc("/leaderboard", s.handleGetLeaderboard).Methods("GET")

	api.HandleFunc("/me/progress", s.withUser(s.handleGetProgress)).Methods("GET")
	api.HandleFunc("/me/transactions", s.withUser(s.handleGetTransactions)).Methods("GET")
	api.HandleFunc("/me/badges", s.withUser(s.handleGetUnlockedBadges)).Methods("GET")
	api.HandleFunc("/me/claims", s.withUser(s.handleGetClaims)).Methods("GET")
	api.HandleFunc("/me/claims/{id}/use", s.withUser(s.handleUseClaim)).Methods("POST")
	api.HandleFunc("/trips", s.withUser(s.handleLogTrip)).Methods("POST")
	api.HandleFunc("/trips", s.withUser(s.handleGetTrips)).Methods("GET")
	api.HandleFunc("/activity", s.withUser(s.handleRecordActivity)).Methods("POST")
	api.HandleFunc("/rewards", s.withUser(s.handleGetRewards)).Methods("GET")
	api.HandleFunc("/rewards/{id}/redeem", s.withUser(s.handleRedeemReward)).Methods("POST")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.requireAdmin)
	admin.HandleFunc("/rewards/{id}", s.handleUpsertReward).Methods("PUT")
	admin.HandleFunc("/rewards/{id}", s.handleDeactivateReward).Methods("DELETE")
	admin.HandleFunc("/users/{id}/credit", s.handleAdminCredit).Methods("POST")
	admin.HandleFunc("/users/{id}/debit", s.handleAdminDebit).Methods("POST")
	admin.HandleFunc("/users/{id}/adjust", s.handleAdminAdjust).Methods("POST")
	admin.HandleFunc("/users/{id}/streak/reset", s.handleResetStreak).Methods("POST")
	admin.HandleFunc("/users/{id}/reconcile", s.handleReconcile).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := s.tokens.userFromRequest(r, true)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
	}

	select {
	case client.hub.register <- client:
	case <-client.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", "user", c.userID, "error", err)
			}
			break
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)

	store, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open storage", "storage", cfg.Storage, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	server, err := NewServer(cfg, store, logger)
	if err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	defer server.Close()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("server starting", "port", cfg.Port, "storage", cfg.Storage)
	if err := httpServer.ListenAndServe(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
