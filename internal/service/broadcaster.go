package service

// Broadcaster interface for WebSocket broadcasting (avoids import cycle)
type Broadcaster interface {
	BroadcastToDashboard(cohortID string, msgType string, payload interface{})
	BroadcastToParticipant(privateID string, msgType string, payload interface{})
	BroadcastToCohort(cohortID string, msgType string, payload interface{})
	DisconnectCohort(cohortID string)
}
