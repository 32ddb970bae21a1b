package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"

	"github.com/jmolinaso/voxbridge/internal/fault"
	"github.com/jmolinaso/voxbridge/internal/ws"
)

// inboundMessage is the tagged union of accepted duplex message kinds.
// Unknown kinds get a typed error back; the session stays open.
type inboundMessage struct {
	Type string `json:"type"`

	// audio
	Audio      string `json:"audio,omitempty"`
	Format     string `json:"format,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`

	// ai_request
	Prompt   string `json:"prompt,omitempty"`
	Provider string `json:"provider,omitempty"`
	Context  string `json:"context,omitempty"`
	Model    string `json:"model,omitempty"`

	// mcp_command
	Tool       string            `json:"tool,omitempty"`
	Command    string            `json:"command,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// handleWebsocket upgrades the connection, registers the session, and pumps
// inbound messages until the client disconnects. The read loop processes
// messages sequentially, so replies to one session preserve request order.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("client_id")
	if clientID == "" {
		writeError(w, r, fault.New(fault.KindInvalidInput, "gateway", "client id is required"))
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Debug("websocket accept failed", "client", clientID, "error", err)
		return
	}

	ctx := r.Context()
	if err := s.sessions.Connect(ctx, clientID, ws.NewWebsocketTransport(conn)); err != nil {
		_ = conn.Close(websocket.StatusTryAgainLater, "server unavailable")
		return
	}
	defer s.sessions.Disconnect(clientID)

	s.logger.Info("websocket connected", "client", clientID)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.logger.Debug("websocket closed", "client", clientID, "error", err)
			return
		}
		s.sessions.Touch(clientID)
		s.dispatchInbound(ctx, clientID, data)
	}
}

// dispatchInbound routes one duplex message and sends the typed reply.
func (s *Server) dispatchInbound(ctx context.Context, clientID string, data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendWS(ctx, clientID, ws.Message{
			"type":  "error",
			"kind":  fault.KindInvalidInput,
			"error": "invalid JSON payload",
		})
		return
	}

	switch msg.Type {
	case "audio":
		result, err := s.broker.ProcessVoice(ctx, msg.Audio, msg.Format, msg.SampleRate)
		if err != nil {
			s.sendWSError(ctx, clientID, "audio", err)
			return
		}
		reply := ws.Message{"type": "audio_response"}
		for k, v := range result {
			reply[k] = v
		}
		s.sendWS(ctx, clientID, reply)

	case "ai_request":
		result, err := s.broker.RouteAI(ctx, msg.Provider, msg.Prompt, msg.Context, msg.Model)
		if err != nil {
			s.sendWSError(ctx, clientID, "ai_request", err)
			return
		}
		reply := ws.Message{"type": "ai_response"}
		for k, v := range result {
			reply[k] = v
		}
		s.sendWS(ctx, clientID, reply)

	case "mcp_command":
		result, err := s.broker.Dispatch(ctx, msg.Tool, msg.Command, msg.Parameters)
		if err != nil {
			s.sendWSError(ctx, clientID, "mcp_command", err)
			return
		}
		s.sendWS(ctx, clientID, ws.Message{
			"type":    "mcp_response",
			"tool":    msg.Tool,
			"command": msg.Command,
			"result":  result,
		})

	default:
		s.sendWS(ctx, clientID, ws.Message{
			"type":  "error",
			"kind":  fault.KindInvalidInput,
			"error": "unknown message type " + msg.Type,
		})
	}
}

func (s *Server) sendWS(ctx context.Context, clientID string, msg ws.Message) {
	if err := s.sessions.SendPersonal(ctx, clientID, msg); err != nil {
		s.logger.Debug("websocket send failed", "client", clientID, "error", err)
	}
}

func (s *Server) sendWSError(ctx context.Context, clientID, inResponseTo string, err error) {
	s.sendWS(ctx, clientID, ws.Message{
		"type":           "error",
		"in_response_to": inResponseTo,
		"kind":           fault.KindOf(err),
		"error":          err.Error(),
	})
}
