package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const defaultMessagesLimit = 50

type MessagesHandler struct {
	messages MessageStore
}

func NewMessagesHandler(messages MessageStore) *MessagesHandler {
	return &MessagesHandler{messages: messages}
}

// List godoc
//
//	@Summary		List downloaded messages
//	@Description	Newest first
//	@Tags			messages
//	@Produce		json
//	@Param			limit	query		int	false	"Maximum number of messages"	default(50)
//	@Success		200		{object}	MessagesResponse
//	@Failure		400		{object}	ControlPlaneError
//	@Router			/v1/messages [get]
//	@Security		APIToken
func (h *MessagesHandler) List(c *gin.Context) {
	var req MessagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultMessagesLimit
	}

	msgs, err := h.messages.Messages(req.Limit)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	items := make([]MessageItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, MessageItem{
			ID:        m.ID,
			KbGUID:    m.KbGUID,
			Title:     m.Title,
			Body:      m.Body,
			Sender:    m.Sender,
			Version:   m.Version,
			CreatedAt: m.CreatedAt,
			Read:      m.Read,
		})
	}
	c.PureJSON(http.StatusOK, MessagesResponse{Messages: items})
}
