package syncsdk

import (
	"net/http"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/kbsync/internal/utils"
	"github.com/openmined/kbsync/internal/version"
)

const (
	HeaderUserAgent     = "User-Agent"
	HeaderKBSyncVersion = "X-KBSync-Version"
	HeaderDeviceID      = "X-KBSync-Device-Id"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultRetryCount = 3
)

// SDK is the client of the knowledge base sync server
type SDK struct {
	client   *req.Client
	baseURL  string
	Auth     *AuthAPI
	User     *UserAPI
	KB       *KnowledgeBaseAPI
	Messages *MessagesAPI
}

func New(baseURL string) (*SDK, error) {
	if baseURL == "" {
		return nil, ErrNoServerURL
	}

	client := newHTTPClient(baseURL)

	return &SDK{
		client:   client,
		baseURL:  baseURL,
		Auth:     newAuthAPI(client),
		User:     newUserAPI(client),
		KB:       newKnowledgeBaseAPI(client),
		Messages: newMessagesAPI(client),
	}, nil
}

func (s *SDK) BaseURL() string {
	return s.baseURL
}

// Close releases idle connections
func (s *SDK) Close() {
	s.client.GetClient().CloseIdleConnections()
}

func newHTTPClient(baseURL string) *req.Client {
	return req.C().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetUserAgent(version.UserAgent()).
		SetCommonHeader(HeaderKBSyncVersion, version.Version).
		SetCommonHeader(HeaderDeviceID, utils.HWID).
		SetCommonRetryCount(defaultRetryCount).
		SetCommonRetryBackoffInterval(500*time.Millisecond, 5*time.Second).
		SetCommonRetryCondition(func(resp *req.Response, err error) bool {
			// transport errors and server side failures are worth another try
			return err != nil || resp.StatusCode >= http.StatusInternalServerError
		}).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)
}
