package syncsdk

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/imroc/req/v3"
)

const (
	v1KbEndpoint = "/api/v1/kb/{guid}/endpoint"
	v1KbChanges  = "/api/v1/kb/{guid}/changes"
)

// RecordChange is a record as exchanged with the server.
type RecordChange struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Version    int64     `json:"version"`
	Deleted    bool      `json:"deleted,omitempty"`
	ModifiedAt time.Time `json:"modified_at"`
}

type EndpointResponse struct {
	KbGUID         string `json:"kb_guid"`
	DatabaseServer string `json:"database_server"`
}

type ChangesResponse struct {
	Changes []RecordChange `json:"changes"`
	Version int64          `json:"version"`
	HasMore bool           `json:"has_more"`
}

type PushRequest struct {
	Changes []RecordChange `json:"changes"`
}

// PushResponse carries the version the server assigned to every accepted change.
type PushResponse struct {
	Versions map[string]int64 `json:"versions"`
	Version  int64            `json:"version"`
}

type KnowledgeBaseAPI struct {
	client *req.Client
}

func newKnowledgeBaseAPI(client *req.Client) *KnowledgeBaseAPI {
	return &KnowledgeBaseAPI{client: client}
}

// Endpoint asks the account server which database server hosts kbGUID.
func (k *KnowledgeBaseAPI) Endpoint(ctx context.Context, token, kbGUID string) (string, error) {
	var resp EndpointResponse
	res, err := k.client.R().
		SetContext(ctx).
		SetBearerAuthToken(token).
		SetPathParam("guid", kbGUID).
		SetSuccessResult(&resp).
		Get(v1KbEndpoint)

	if err := handleAPIError(res, err, "kb endpoint"); err != nil {
		return "", err
	}
	if resp.DatabaseServer == "" {
		return "", ErrNoEndpoint
	}
	return resp.DatabaseServer, nil
}

// Changes pulls one page of changes newer than since from the database server.
func (k *KnowledgeBaseAPI) Changes(ctx context.Context, endpoint, token, kbGUID string, since int64) (*ChangesResponse, error) {
	var resp ChangesResponse
	res, err := k.client.R().
		SetContext(ctx).
		SetBearerAuthToken(token).
		SetPathParam("guid", kbGUID).
		SetQueryParam("since", strconv.FormatInt(since, 10)).
		SetSuccessResult(&resp).
		Get(joinEndpoint(endpoint, v1KbChanges))

	if err := handleAPIError(res, err, "kb changes"); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Push uploads local changes to the database server.
func (k *KnowledgeBaseAPI) Push(ctx context.Context, endpoint, token, kbGUID string, changes []RecordChange) (*PushResponse, error) {
	var resp PushResponse
	res, err := k.client.R().
		SetContext(ctx).
		SetBearerAuthToken(token).
		SetPathParam("guid", kbGUID).
		SetBody(&PushRequest{Changes: changes}).
		SetSuccessResult(&resp).
		Post(joinEndpoint(endpoint, v1KbChanges))

	if err := handleAPIError(res, err, "kb push"); err != nil {
		return nil, err
	}
	return &resp, nil
}

// joinEndpoint builds an absolute url on a database server. An empty endpoint
// falls back to the account server the client was created with.
func joinEndpoint(endpoint, path string) string {
	if endpoint == "" {
		return path
	}
	return strings.TrimRight(endpoint, "/") + path
}
