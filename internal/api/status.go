package api

import "net/http"

// statusResponse is the payload for GET /api/v1/status.
type statusResponse struct {
	Connected        string `json:"connection"`
	ServerURI        string `json:"server_uri"`
	ClientID         string `json:"client_id"`
	BufferedMessages int    `json:"buffered_messages"`
}

// handleStatus reports the bridge's connection state and buffer depth.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	connection := "disconnected"
	if s.bridge.IsConnected() {
		connection = "connected"
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Connected:        connection,
		ServerURI:        s.bridge.ServerURI(),
		ClientID:         s.bridge.ClientID(),
		BufferedMessages: s.bridge.BufferedMessageCount(),
	})
}
