package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WSMessage is one reply frame on /ws.
type WSMessage struct {
	Type string `json:"type"` // "response" or "error"

	ChatResponse
	Error string `json:"error,omitempty"`
}

// handleWebSocket runs chat over a websocket. Every text frame is a chat
// request and gets exactly one reply frame; requests on one connection are
// handled in order.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(MaxBodyBytes)

	session := uuid.NewString()
	logger := s.logger.With("session", session)
	logger.Debug("websocket connected")

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		reply := s.chatFrame(r, data)
		if err := conn.WriteJSON(reply); err != nil {
			logger.Warn("websocket write failed", "error", err)
			return
		}
	}
}

func (s *Server) chatFrame(r *http.Request, data []byte) WSMessage {
	input, err := decodeChatRequest(data)
	if err != nil {
		return WSMessage{Type: "error", Error: malformedMessage}
	}
	out, err := s.chat.Run(r.Context(), input)
	if err != nil {
		s.logger.Error("error processing chat", "error", err)
		return WSMessage{Type: "error", Error: err.Error()}
	}
	return WSMessage{
		Type: "response",
		ChatResponse: ChatResponse{
			Action:         out.Action,
			Response:       out.Response,
			ConversationID: out.ConversationID,
		},
	}
}
