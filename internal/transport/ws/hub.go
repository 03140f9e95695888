package ws

import (
	"encoding/json"
	"log"
	"sync"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Dashboard message types
const (
	MsgParticipantJoined   MessageType = "participant_joined"
	MsgParticipantLeft     MessageType = "participant_left"
	MsgParticipantProgress MessageType = "participant_progress_update"
	MsgTransferAccepted    MessageType = "transfer_accepted"
)

// Participant message types
const (
	MsgStageUnlocked  MessageType = "stage_unlocked"
	MsgChatMessage    MessageType = "chat_message"
	MsgChipOffer      MessageType = "chip_offer"
	MsgRolesAssigned  MessageType = "roles_assigned"
	MsgTransferOffer  MessageType = "transfer_offered"
	MsgAttentionCheck MessageType = "attention_check"
	MsgError          MessageType = "error"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub manages WebSocket connections for cohorts. Experimenter dashboards
// and participants both attach to a cohort; participants are additionally
// indexed by private ID for direct sends.
type Hub struct {
	// Cohort -> dashboard connections (an experiment can have several
	// experimenters watching)
	dashboardConns map[string]map[*Connection]bool
	// Cohort -> private ID -> connection
	participantConns map[string]map[string]*Connection
	// Private ID -> connection, for cohort-independent sends
	byParticipant map[string]*Connection

	mu sync.RWMutex

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
}

// Connection represents a WebSocket connection
type Connection struct {
	CohortID      string
	ParticipantID string // Private ID; empty for dashboard connections
	IsDashboard   bool
	Send          chan []byte
	Hub           *Hub
}

// BroadcastMessage is a message to fan out
type BroadcastMessage struct {
	CohortID      string
	ToDashboard   bool
	ToParticipant string // Private ID for a direct send
	Message       *Message
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	h := &Hub{
		dashboardConns:   make(map[string]map[*Connection]bool),
		participantConns: make(map[string]map[string]*Connection),
		byParticipant:    make(map[string]*Connection),
		register:         make(chan *Connection),
		unregister:       make(chan *Connection),
		broadcast:        make(chan *BroadcastMessage, 256),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if conn.IsDashboard {
				if h.dashboardConns[conn.CohortID] == nil {
					h.dashboardConns[conn.CohortID] = make(map[*Connection]bool)
				}
				h.dashboardConns[conn.CohortID][conn] = true
				log.Printf("Dashboard connected to cohort %s", conn.CohortID)
			} else {
				if h.participantConns[conn.CohortID] == nil {
					h.participantConns[conn.CohortID] = make(map[string]*Connection)
				}
				h.participantConns[conn.CohortID][conn.ParticipantID] = conn
				h.byParticipant[conn.ParticipantID] = conn
				log.Printf("Participant connected to cohort %s", conn.CohortID)
			}
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			h.remove(conn)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			data, _ := json.Marshal(msg.Message)

			if msg.ToParticipant != "" {
				if conn, ok := h.byParticipant[msg.ToParticipant]; ok {
					send(conn, data)
				}
			} else if msg.ToDashboard {
				for conn := range h.dashboardConns[msg.CohortID] {
					send(conn, data)
				}
			} else {
				for _, conn := range h.participantConns[msg.CohortID] {
					send(conn, data)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// remove must be called with the write lock held
func (h *Hub) remove(conn *Connection) {
	if conn.IsDashboard {
		if conns, ok := h.dashboardConns[conn.CohortID]; ok && conns[conn] {
			delete(conns, conn)
			close(conn.Send)
			log.Printf("Dashboard disconnected from cohort %s", conn.CohortID)
		}
		return
	}
	if conns, ok := h.participantConns[conn.CohortID]; ok {
		if existing, ok := conns[conn.ParticipantID]; ok && existing == conn {
			delete(conns, conn.ParticipantID)
			if h.byParticipant[conn.ParticipantID] == conn {
				delete(h.byParticipant, conn.ParticipantID)
			}
			close(conn.Send)
			log.Printf("Participant disconnected from cohort %s", conn.CohortID)
		}
	}
}

func send(conn *Connection, data []byte) {
	select {
	case conn.Send <- data:
	default:
		// Drop when the client can't keep up.
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// BroadcastToDashboard sends a message to every dashboard watching a cohort
// (implements service.Broadcaster)
func (h *Hub) BroadcastToDashboard(cohortID string, msgType string, payload interface{}) {
	data, _ := json.Marshal(payload)
	h.broadcast <- &BroadcastMessage{
		CohortID:    cohortID,
		ToDashboard: true,
		Message:     &Message{Type: MessageType(msgType), Payload: data},
	}
}

// BroadcastToParticipant sends a message to one participant by private ID
// (implements service.Broadcaster)
func (h *Hub) BroadcastToParticipant(privateID string, msgType string, payload interface{}) {
	data, _ := json.Marshal(payload)
	h.broadcast <- &BroadcastMessage{
		ToParticipant: privateID,
		Message:       &Message{Type: MessageType(msgType), Payload: data},
	}
}

// BroadcastToCohort sends a message to every participant in a cohort
// (implements service.Broadcaster)
func (h *Hub) BroadcastToCohort(cohortID string, msgType string, payload interface{}) {
	data, _ := json.Marshal(payload)
	h.broadcast <- &BroadcastMessage{
		CohortID: cohortID,
		Message:  &Message{Type: MessageType(msgType), Payload: data},
	}
}

// DisconnectCohort drops every connection attached to a cohort, dashboards
// included. Used when the cohort is deleted. (implements service.Broadcaster)
func (h *Hub) DisconnectCohort(cohortID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.dashboardConns[cohortID] {
		h.remove(conn)
	}
	delete(h.dashboardConns, cohortID)

	for _, conn := range h.participantConns[cohortID] {
		h.remove(conn)
	}
	delete(h.participantConns, cohortID)
}
