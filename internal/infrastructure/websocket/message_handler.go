package websocket

import (
	"encoding/json"
	stderrors "errors"
	"time"

	"kitchenchat/internal/domain/entity"
	"kitchenchat/pkg/errors"
	"kitchenchat/pkg/logger"
)

// WebSocket frame types
const (
	MessageTypeSubscribe         = "subscribe"
	MessageTypeUnsubscribe       = "unsubscribe"
	MessageTypePing              = "ping"
	MessageTypePong              = "pong"
	MessageTypeMessages          = "messages"
	MessageTypeSubscriptionError = "subscription_error"
	MessageTypeError             = "error"
)

// ClientFrame is what clients send.
type ClientFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// ServerFrame is what the server sends. Messages is the full current window,
// oldest first, and replaces whatever the client showed before. A messages
// frame always carries the array, empty when the window is.
type ServerFrame struct {
	Type           string            `json:"type"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Messages       []*entity.Message `json:"messages"`
	Error          string            `json:"error,omitempty"`
	Timestamp      string            `json:"timestamp"`
}

// HandleClientMessage processes one incoming frame.
func (m *Manager) HandleClientMessage(client *Client, raw []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		logger.Warn("WebSocket: bad frame from client %d: %v", client.UserID, err)
		m.sendError(client, "", "Invalid message format")
		return
	}

	switch frame.Type {
	case MessageTypePing:
		m.send(client, ServerFrame{Type: MessageTypePong})

	case MessageTypeSubscribe:
		m.handleSubscribe(client, frame)

	case MessageTypeUnsubscribe:
		m.handleUnsubscribe(client, frame)

	default:
		logger.Warn("WebSocket: unknown frame type '%s' from client %d", frame.Type, client.UserID)
		m.sendError(client, frame.ConversationID, "Unknown message type")
	}
}

func (m *Manager) handleSubscribe(client *Client, frame ClientFrame) {
	if frame.ConversationID == "" {
		m.sendError(client, "", "Missing conversation_id")
		return
	}
	conversationID := frame.ConversationID

	// a second subscribe to the same conversation replaces the first
	if previous := client.takeSubscription(conversationID); previous != nil {
		previous()
	}

	unsubscribe, err := m.subscriber.Subscribe(client.ctx, conversationID, frame.Limit,
		func(messages []*entity.Message) {
			if messages == nil {
				messages = []*entity.Message{}
			}
			m.send(client, ServerFrame{
				Type:           MessageTypeMessages,
				ConversationID: conversationID,
				Messages:       messages,
			})
		},
		func(err error) {
			client.takeSubscription(conversationID)
			logger.Warn("WebSocket: subscription of client %d to %s ended: %v", client.UserID, conversationID, err)
			m.send(client, ServerFrame{
				Type:           MessageTypeSubscriptionError,
				ConversationID: conversationID,
				Error:          publicMessage(err),
			})
		})
	if err != nil {
		m.send(client, ServerFrame{
			Type:           MessageTypeSubscriptionError,
			ConversationID: conversationID,
			Error:          publicMessage(err),
		})
		return
	}

	if !client.setSubscription(conversationID, unsubscribe) {
		unsubscribe()
		return
	}
	logger.Debug("WebSocket: client %d subscribed to %s", client.UserID, conversationID)
}

func (m *Manager) handleUnsubscribe(client *Client, frame ClientFrame) {
	if frame.ConversationID == "" {
		m.sendError(client, "", "Missing conversation_id")
		return
	}
	if unsubscribe := client.takeSubscription(frame.ConversationID); unsubscribe != nil {
		unsubscribe()
	}
	logger.Debug("WebSocket: client %d unsubscribed from %s", client.UserID, frame.ConversationID)
}

func (m *Manager) send(client *Client, frame ServerFrame) {
	frame.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(frame)
	if err != nil {
		logger.Error("WebSocket: failed to marshal %s frame for client %d: %v", frame.Type, client.UserID, err)
		return
	}
	client.enqueue(data)
}

func (m *Manager) sendError(client *Client, conversationID, message string) {
	m.send(client, ServerFrame{
		Type:           MessageTypeError,
		ConversationID: conversationID,
		Error:          message,
	})
}

func publicMessage(err error) string {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return "Subscription failed"
}
