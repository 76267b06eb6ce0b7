package websocket

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/courtsight/projection-service/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now (should be restricted in production)
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Client is one WebSocket subscriber following a game's projections.
type Client struct {
	GameID   int64
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *ProjectionHub
	LastSeen time.Time
}

// ProjectionHub fans freshly composed projection payloads out to the clients
// subscribed to each game.
type ProjectionHub struct {
	clients     map[*Client]bool
	gameClients map[int64][]*Client
	broadcast   chan *projectionUpdate
	register    chan *Client
	unregister  chan *Client
	logger      *logrus.Logger
	mutex       sync.RWMutex
}

type projectionUpdate struct {
	gameID  int64
	payload *models.ProjectionResponse
}

// ProjectionMessage is the wire envelope sent to clients.
type ProjectionMessage struct {
	Type      string      `json:"type"` // "projections", "connected", "pong"
	GameID    int64       `json:"game_id,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewProjectionHub(logger *logrus.Logger) *ProjectionHub {
	return &ProjectionHub{
		clients:     make(map[*Client]bool),
		gameClients: make(map[int64][]*Client),
		broadcast:   make(chan *projectionUpdate, 256),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		logger:      logger,
	}
}

// Run starts the hub and handles client registration/unregistration
func (h *ProjectionHub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case update := <-h.broadcast:
			h.broadcastUpdate(update)

		case <-ticker.C:
			h.sweepStaleClients()
		}
	}
}

// BroadcastProjections implements the engine's Broadcaster: every composed
// payload reaches subscribers of that game. Non-blocking for the engine.
func (h *ProjectionHub) BroadcastProjections(gameID int64, payload *models.ProjectionResponse) {
	select {
	case h.broadcast <- &projectionUpdate{gameID: gameID, payload: payload}:
	default:
		h.logger.WithField("game_id", gameID).Warn("Projection broadcast channel full, dropping update")
	}
}

func (h *ProjectionHub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = true
	h.gameClients[client.GameID] = append(h.gameClients[client.GameID], client)

	h.logger.WithFields(logrus.Fields{
		"game_id":       client.GameID,
		"total_clients": len(h.clients),
	}).Info("Projection WebSocket client connected")

	welcome := &ProjectionMessage{
		Type:      "connected",
		GameID:    client.GameID,
		Data:      map[string]interface{}{"message": "Subscribed to projection updates"},
		Timestamp: time.Now(),
	}
	h.sendToClient(client, welcome)
}

func (h *ProjectionHub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)

	gameClients := h.gameClients[client.GameID]
	for i, c := range gameClients {
		if c == client {
			h.gameClients[client.GameID] = append(gameClients[:i], gameClients[i+1:]...)
			break
		}
	}
	if len(h.gameClients[client.GameID]) == 0 {
		delete(h.gameClients, client.GameID)
	}

	h.logger.WithFields(logrus.Fields{
		"game_id":       client.GameID,
		"total_clients": len(h.clients),
	}).Info("Projection WebSocket client disconnected")
}

func (h *ProjectionHub) broadcastUpdate(update *projectionUpdate) {
	h.mutex.RLock()
	clients := append([]*Client(nil), h.gameClients[update.gameID]...)
	h.mutex.RUnlock()

	if len(clients) == 0 {
		return
	}

	message := &ProjectionMessage{
		Type:      "projections",
		GameID:    update.gameID,
		Data:      update.payload,
		Timestamp: time.Now(),
	}

	for _, client := range clients {
		h.sendToClient(client, message)
	}

	h.logger.WithFields(logrus.Fields{
		"game_id":      update.gameID,
		"client_count": len(clients),
	}).Debug("Broadcast projection payload")
}

func (h *ProjectionHub) sendToClient(client *Client, message *ProjectionMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal WebSocket message")
		return
	}

	select {
	case client.Send <- data:
		client.LastSeen = time.Now()
	default:
		// Client's send channel is full, close the connection
		go func() { h.unregister <- client }()
	}
}

func (h *ProjectionHub) sweepStaleClients() {
	h.mutex.RLock()
	now := time.Now()
	stale := []*Client{}
	for client := range h.clients {
		if now.Sub(client.LastSeen) > 2*time.Minute {
			stale = append(stale, client)
		}
	}
	h.mutex.RUnlock()

	for _, client := range stale {
		h.unregister <- client
	}

	if len(stale) > 0 {
		h.logger.WithField("stale_clients", len(stale)).Debug("Removed stale WebSocket clients")
	}
}

// HandleWebSocket upgrades a connection subscribed to one game's projections.
func (h *ProjectionHub) HandleWebSocket(c *gin.Context) {
	gameID, err := strconv.ParseInt(c.Param("gameId"), 10, 64)
	if err != nil || gameID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "valid game id is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade projection WebSocket connection")
		return
	}

	client := &Client{
		GameID:   gameID,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		Hub:      h,
		LastSeen: time.Now(),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// ConnectionCount returns the total number of active connections.
func (h *ProjectionHub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		c.LastSeen = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.WithError(err).Error("Projection WebSocket error")
			}
			break
		}

		c.handleIncomingMessage(message)
		c.LastSeen = time.Now()
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.logger.WithError(err).Error("Failed to write projection WebSocket message")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleIncomingMessage(message []byte) {
	var clientMsg map[string]interface{}
	if err := json.Unmarshal(message, &clientMsg); err != nil {
		c.Hub.logger.WithError(err).Warn("Failed to parse client message")
		return
	}

	if msgType, _ := clientMsg["type"].(string); msgType == "ping" {
		response := &ProjectionMessage{
			Type:      "pong",
			Data:      map[string]interface{}{"timestamp": time.Now().Unix()},
			Timestamp: time.Now(),
		}
		c.Hub.sendToClient(c, response)
	}
}
