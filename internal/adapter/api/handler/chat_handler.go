package handler

import (
	"github.com/labstack/echo/v4"

	"talentos/internal/usecase"
	"talentos/pkg/errors"
	"talentos/pkg/response"
	"talentos/pkg/utils"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

type resolveConversationRequest struct {
	OtherUserID string `json:"other_user_id" validate:"required"`
}

type sendMessageRequest struct {
	Content   string `json:"content" validate:"required_without=MediaURL,max=4000"`
	MediaURL  string `json:"media_url,omitempty" validate:"omitempty,url"`
	MediaType string `json:"media_type,omitempty" validate:"omitempty,oneof=image video file"`
}

// ResolveConversation returns the id of the single conversation between the
// caller and the other user, creating it if it does not exist yet.
func (h *ChatHandler) ResolveConversation(c echo.Context) error {
	var req resolveConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	conversationID, err := h.chatUseCase.ResolveConversation(c.Request().Context(), userID, req.OtherUserID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"conversation_id": conversationID})
}

// ListConversations gets the caller's conversation list, most recently
// active first
func (h *ChatHandler) ListConversations(c echo.Context) error {
	userID := c.Get("uid").(string)

	summaries, err := h.chatUseCase.ListConversations(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	params := utils.GetPaginationParams(c)
	return response.Paginated(c, utils.PageOf(summaries, params), len(summaries), params.Page, params.PageSize)
}

// GetMessages gets a conversation's messages, oldest first
func (h *ChatHandler) GetMessages(c echo.Context) error {
	userID := c.Get("uid").(string)
	conversationID := c.Param("id")

	messages, err := h.chatUseCase.GetMessages(c.Request().Context(), userID, conversationID)
	if err != nil {
		return response.Error(c, err)
	}

	params := utils.GetPaginationParams(c)
	return response.Paginated(c, utils.PageOf(messages, params), len(messages), params.Page, params.PageSize)
}

// SendMessage appends a message to the conversation
func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	conversationID := c.Param("id")

	message, err := h.chatUseCase.SendMessage(c.Request().Context(), userID, conversationID, usecase.SendMessageInput{
		Content:   req.Content,
		MediaURL:  req.MediaURL,
		MediaType: req.MediaType,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

// UploadMedia stores a message attachment and returns its URL. The client
// sends the URL back in a follow-up send.
func (h *ChatHandler) UploadMedia(c echo.Context) error {
	userID := c.Get("uid").(string)
	conversationID := c.Param("id")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.Error(c, errors.BadRequest("Missing file", err))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return response.Error(c, errors.BadRequest("Failed to open file", err))
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")

	url, err := h.chatUseCase.UploadMedia(c.Request().Context(), userID, conversationID, contentType, file)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, map[string]string{"url": url})
}

// MarkConversationRead marks every message from the other participant as read
func (h *ChatHandler) MarkConversationRead(c echo.Context) error {
	userID := c.Get("uid").(string)
	conversationID := c.Param("id")

	if err := h.chatUseCase.MarkConversationRead(c.Request().Context(), userID, conversationID); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"status": "read"})
}
