package websocket

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log"
	"time"

	"talentos/internal/domain/entity"
	"talentos/internal/usecase"
	"talentos/pkg/errors"
)

// WebSocket Message Types
const (
	MessageTypePing              = "ping"
	MessageTypePong              = "pong"
	MessageTypeJoinConversation  = "join_conversation"
	MessageTypeLeaveConversation = "leave_conversation"
	MessageTypeSendMessage       = "send_message"
	MessageTypeMarkRead          = "mark_read"

	// server pushed
	MessageTypeMessages         = "messages"
	MessageTypeConversationList = "conversation_list"
	MessageTypeSendAck          = "send_ack"
	MessageTypeError            = "error"
)

// WSMessage is the envelope for every frame in both directions.
type WSMessage struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Data           interface{} `json:"data,omitempty"`
	Timestamp      string      `json:"timestamp"`
}

type SendMessageData struct {
	Content   string `json:"content"`
	MediaURL  string `json:"media_url"`
	MediaType string `json:"media_type"`
}

// HandleClientMessage processes incoming WebSocket messages
func (m *Manager) HandleClientMessage(client *Client, messageBytes []byte) {
	var wsMessage WSMessage

	if err := json.Unmarshal(messageBytes, &wsMessage); err != nil {
		log.Printf("WebSocket: Failed to unmarshal message from client %s: %v", client.UserID, err)
		m.sendErrorToClient(client, "Invalid message format")
		return
	}

	switch wsMessage.Type {
	case MessageTypePing:
		m.handlePing(client)

	case MessageTypeJoinConversation:
		m.handleJoinConversation(client, wsMessage)

	case MessageTypeLeaveConversation:
		m.handleLeaveConversation(client, wsMessage)

	case MessageTypeSendMessage:
		m.handleSendMessage(client, wsMessage)

	case MessageTypeMarkRead:
		m.handleMarkRead(client, wsMessage)

	default:
		log.Printf("WebSocket: Unknown message type '%s' from client %s", wsMessage.Type, client.UserID)
		m.sendErrorToClient(client, "Unknown message type")
	}
}

func (m *Manager) handlePing(client *Client) {
	m.sendToClient(client, WSMessage{
		Type:      MessageTypePong,
		Data:      map[string]string{"status": "alive"},
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// handleJoinConversation opens a live message view for the conversation. The
// full merged list is pushed immediately and again after every change. Joining
// an already joined conversation retries a failed load and re-pushes the list.
func (m *Manager) handleJoinConversation(client *Client, wsMessage WSMessage) {
	conversationID := wsMessage.ConversationID
	if conversationID == "" {
		m.sendErrorToClient(client, "Missing conversation_id")
		return
	}

	merger := client.merger(conversationID)
	if merger == nil {
		created, err := m.chatUseCase.NewMerger(context.Background(), client.UserID, conversationID)
		if err != nil {
			log.Printf("WebSocket: join of %s by %s rejected: %v", conversationID, client.UserID, err)
			m.sendErrorToClient(client, errorMessage(err, "Failed to join conversation"))
			return
		}
		created.SetOnChange(func(messages []*entity.Message) {
			m.pushMessages(client, conversationID, messages)
		})
		client.putMerger(conversationID, created)
		merger = created
	}

	go func() {
		if err := merger.Open(context.Background()); err != nil {
			if merger.State() == usecase.MergerLive {
				// Already open; the join was a re-push request.
				m.pushMessages(client, conversationID, merger.Messages())
				return
			}
			log.Printf("WebSocket: open of %s by %s failed: %v", conversationID, client.UserID, err)
			m.sendErrorToClient(client, errorMessage(err, "Failed to load conversation"))
		}
	}()
}

func (m *Manager) handleLeaveConversation(client *Client, wsMessage WSMessage) {
	if wsMessage.ConversationID == "" {
		m.sendErrorToClient(client, "Missing conversation_id")
		return
	}

	merger := client.dropMerger(wsMessage.ConversationID)
	if merger != nil {
		merger.Close()
	}
}

// handleSendMessage routes the send through the open merger so the sender's
// own view shows the message optimistically before the write lands. Media is
// uploaded via the HTTP endpoint first; only its URL travels here.
func (m *Manager) handleSendMessage(client *Client, wsMessage WSMessage) {
	conversationID := wsMessage.ConversationID
	if conversationID == "" {
		m.sendErrorToClient(client, "Missing conversation_id")
		return
	}

	dataBytes, err := json.Marshal(wsMessage.Data)
	if err != nil {
		m.sendErrorToClient(client, "Invalid send message data")
		return
	}
	var sendData SendMessageData
	if err := json.Unmarshal(dataBytes, &sendData); err != nil {
		m.sendErrorToClient(client, "Invalid send message format")
		return
	}

	merger := client.merger(conversationID)
	if merger == nil {
		m.sendErrorToClient(client, "Conversation not joined")
		return
	}

	go func() {
		input := usecase.SendInput{Content: sendData.Content}
		if sendData.MediaURL != "" {
			input.PreuploadedURL = sendData.MediaURL
			input.PreuploadedType = sendData.MediaType
		}

		durable, err := merger.Send(context.Background(), input)
		if err != nil {
			log.Printf("WebSocket: send to %s by %s failed: %v", conversationID, client.UserID, err)
			m.sendErrorToClient(client, errorMessage(err, "Failed to send message"))
			return
		}

		m.sendToClient(client, WSMessage{
			Type:           MessageTypeSendAck,
			ConversationID: conversationID,
			Data:           durable,
			Timestamp:      time.Now().Format(time.RFC3339),
		})
	}()
}

func (m *Manager) handleMarkRead(client *Client, wsMessage WSMessage) {
	if wsMessage.ConversationID == "" {
		m.sendErrorToClient(client, "Missing conversation_id")
		return
	}

	go func() {
		err := m.chatUseCase.MarkConversationRead(context.Background(), client.UserID, wsMessage.ConversationID)
		if err != nil {
			log.Printf("WebSocket: mark read of %s by %s failed: %v", wsMessage.ConversationID, client.UserID, err)
			m.sendErrorToClient(client, errorMessage(err, "Failed to mark conversation read"))
		}
	}()
}

func (m *Manager) pushMessages(client *Client, conversationID string, messages []*entity.Message) {
	m.sendToClient(client, WSMessage{
		Type:           MessageTypeMessages,
		ConversationID: conversationID,
		Data:           messages,
		Timestamp:      time.Now().Format(time.RFC3339),
	})
}

func (m *Manager) pushConversationList(client *Client, summaries []*entity.ConversationSummary) {
	m.sendToClient(client, WSMessage{
		Type:      MessageTypeConversationList,
		Data:      summaries,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (m *Manager) sendToClient(client *Client, message WSMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("WebSocket: Failed to marshal message for client %s: %v", client.UserID, err)
		return
	}

	if !client.deliver(messageBytes) {
		log.Printf("WebSocket: Client %s not accepting frames, dropping", client.UserID)
	}
}

func (m *Manager) sendErrorToClient(client *Client, errorMsg string) {
	m.sendToClient(client, WSMessage{
		Type: MessageTypeError,
		Data: map[string]string{
			"error": errorMsg,
		},
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func errorMessage(err error, fallback string) string {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return fallback
}
