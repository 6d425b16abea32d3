package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/kbsync/internal/client/handlers"
)

// controlClient talks to the control plane of a running daemon.
type controlClient struct {
	client *req.Client
}

func newControlClient(baseURL, token string) *controlClient {
	c := req.C().
		SetBaseURL(baseURL).
		SetTimeout(3 * time.Minute).
		SetCommonErrorResult(&handlers.ControlPlaneError{})
	if token != "" {
		c.SetCommonBearerAuthToken(token)
	}
	return &controlClient{client: c}
}

func (c *controlClient) do(ctx context.Context, method, path string, body any, result any) error {
	r := c.client.R().SetContext(ctx)
	if body != nil {
		r.SetBody(body)
	}
	if result != nil {
		r.SetSuccessResult(result)
	}

	resp, err := r.Send(method, path)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.client.BaseURL, err)
	}
	if resp.IsErrorState() {
		if cpErr, ok := resp.ErrorResult().(*handlers.ControlPlaneError); ok && cpErr.Error != "" {
			return fmt.Errorf("%s: %s", cpErr.ErrorCode, cpErr.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}

func (c *controlClient) FullSync(ctx context.Context, background bool) error {
	path := "/v1/sync/full"
	if background {
		path += "?background=true"
	}
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *controlClient) QuickSync(ctx context.Context, kbGUID string) error {
	return c.do(ctx, http.MethodPost, "/v1/sync/quick", &handlers.QuickSyncRequest{KbGUID: kbGUID}, nil)
}

func (c *controlClient) DownloadMessages(ctx context.Context) (bool, error) {
	var resp handlers.MessagesSyncResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sync/messages", nil, &resp); err != nil {
		return false, err
	}
	return resp.Accepted, nil
}

func (c *controlClient) Pause(ctx context.Context, wait bool) error {
	path := "/v1/sync/pause"
	if wait {
		path += "?wait=true"
	}
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *controlClient) Resume(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/sync/resume", nil, nil)
}

func (c *controlClient) SetInterval(ctx context.Context, minutes int) error {
	return c.do(ctx, http.MethodPut, "/v1/sync/interval", &handlers.SyncIntervalRequest{Minutes: &minutes}, nil)
}

func (c *controlClient) Status(ctx context.Context) (*handlers.SyncStatusResponse, error) {
	var resp handlers.SyncStatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/sync/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
