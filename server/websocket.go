package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Dinesh0401/RAG-Chatbot/pkg/rag"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

type wsRequest struct {
	Question string `json:"question"`
	K        int    `json:"k"`
}

type wsMessage struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// handleWebSocket streams answers over a websocket. Each incoming message is
// one question; deltas arrive as "stream" messages and the final answer with
// its sources as a "response" message.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		s.answerOverSocket(r, conn, req)
	}
}

func (s *Server) answerOverSocket(r *http.Request, conn *websocket.Conn, req wsRequest) {
	if s.service == nil {
		s.sendMessage(conn, "error", "service unavailable")
		return
	}

	result, err := s.service.AnswerStream(r.Context(), req.Question, req.K, func(delta string) {
		s.sendMessage(conn, "stream", delta)
	})
	switch {
	case errors.Is(err, rag.ErrValidation):
		s.sendMessage(conn, "error", err.Error())
		return
	case err != nil:
		s.logger.Error("websocket query failed", zap.Error(err))
		s.sendMessage(conn, "error", "upstream service error")
		return
	}

	if err := conn.WriteJSON(wsMessage{Type: "response", Content: result.Answer, Data: result.Sources}); err != nil {
		s.logger.Warn("failed to send websocket response", zap.Error(err))
	}
}

func (s *Server) sendMessage(conn *websocket.Conn, msgType, content string) {
	if err := conn.WriteJSON(wsMessage{Type: msgType, Content: content}); err != nil {
		s.logger.Warn("failed to send websocket message", zap.Error(err))
	}
}
