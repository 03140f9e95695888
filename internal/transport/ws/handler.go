package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/PAIR-code/deliberate-lab/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for dev
	},
}

// Handler handles WebSocket connections
type Handler struct {
	hub            *Hub
	authSvc        *service.AuthService
	participantSvc *service.ParticipantService
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, authSvc *service.AuthService, participantSvc *service.ParticipantService) *Handler {
	return &Handler{
		hub:            hub,
		authSvc:        authSvc,
		participantSvc: participantSvc,
	}
}

// DashboardWS handles GET /v1/ws/cohorts/{cohortId}/dashboard
func (h *Handler) DashboardWS(w http.ResponseWriter, r *http.Request) {
	cohortID := mux.Vars(r)["cohortId"]
	token := r.URL.Query().Get("token")

	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := h.authSvc.ValidateExperimenterToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	conn := &Connection{
		CohortID:    cohortID,
		IsDashboard: true,
		Send:        make(chan []byte, 256),
		Hub:         h.hub,
	}
	h.hub.Register(conn)

	log.Printf("Experimenter %s watching cohort %s via WebSocket", claims.ExperimenterID, cohortID)

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

// ParticipantWS handles GET /v1/ws/cohorts/{cohortId}/participant
func (h *Handler) ParticipantWS(w http.ResponseWriter, r *http.Request) {
	cohortID := mux.Vars(r)["cohortId"]
	token := r.URL.Query().Get("token")

	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := h.authSvc.ValidateParticipantToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	// The token carries the joining cohort; after a transfer the live
	// record is what counts.
	participant, err := h.participantSvc.GetParticipant(r.Context(), claims.ParticipantPrivateID)
	if err != nil || participant == nil {
		http.Error(w, "participant not found", http.StatusForbidden)
		return
	}
	if participant.CurrentCohortID != cohortID {
		http.Error(w, "token not valid for this cohort", http.StatusForbidden)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	conn := &Connection{
		CohortID:      cohortID,
		ParticipantID: participant.PrivateID,
		Send:          make(chan []byte, 256),
		Hub:           h.hub,
	}
	h.hub.Register(conn)

	if err := h.participantSvc.UpdateWaiting(r.Context(), participant.PrivateID, true); err != nil {
		log.Printf("Failed to record connect for %s: %v", participant.PublicID, err)
	}

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.hub.Unregister(conn)
		wsConn.Close()
		if conn.ParticipantID != "" {
			// The request context is gone by the time the socket drops.
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := h.participantSvc.UpdateWaiting(ctx, conn.ParticipantID, false); err != nil {
				log.Printf("Failed to record disconnect: %v", err)
			}
		}
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
		// Incoming frames are ignored; clients act through the REST API.
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
