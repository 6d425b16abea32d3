package syncsdk

import (
	"context"
	"strconv"
	"time"

	"github.com/imroc/req/v3"
)

const v1Messages = "/api/v1/messages"

type MessageInfo struct {
	ID        string    `json:"id"`
	KbGUID    string    `json:"kb_guid"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Sender    string    `json:"sender"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

type MessagesResponse struct {
	Messages []MessageInfo `json:"messages"`
}

type MessagesAPI struct {
	client *req.Client
}

func newMessagesAPI(client *req.Client) *MessagesAPI {
	return &MessagesAPI{client: client}
}

// List returns the messages with a version greater than since.
func (m *MessagesAPI) List(ctx context.Context, token string, since int64) ([]MessageInfo, error) {
	var resp MessagesResponse
	res, err := m.client.R().
		SetContext(ctx).
		SetBearerAuthToken(token).
		SetQueryParam("since", strconv.FormatInt(since, 10)).
		SetSuccessResult(&resp).
		Get(v1Messages)

	if err := handleAPIError(res, err, "messages"); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}
