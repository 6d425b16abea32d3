package handlers

import "time"

type RecordRequest struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Deleted bool   `json:"deleted"`
}

type RecordResponse struct {
	KbGUID     string    `json:"kb_guid"`
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Version    int64     `json:"version"`
	Deleted    bool      `json:"deleted,omitempty"`
	Dirty      bool      `json:"dirty"`
	ModifiedAt time.Time `json:"modified_at"`
}

type MessagesRequest struct {
	Limit int `form:"limit" binding:"min=0,max=1000"`
}

type MessageItem struct {
	ID        string    `json:"id"`
	KbGUID    string    `json:"kb_guid,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Sender    string    `json:"sender"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

type MessagesResponse struct {
	Messages []MessageItem `json:"messages"`
}
