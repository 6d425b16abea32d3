package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/openmined/kbsync/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusHandler_Status(t *testing.T) {
	info := &ClientInfo{
		Email:     "alice@example.com",
		DataDir:   "/data",
		ServerURL: "https://sync.example.com",
		StartedAt: "2025-01-02T03:04:05Z",
	}
	ctrl := &fakeController{paused: true}

	r := gin.New()
	r.GET("/v1/status", NewStatusHandler(info, ctrl).Status)

	w := serve(t, r, http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, version.Version, resp.Version)
	assert.Equal(t, info, resp.Client)
	require.NotNil(t, resp.Sync)
	assert.True(t, resp.Sync.Paused)
	require.NotNil(t, resp.Process)
	assert.Equal(t, int32(os.Getpid()), resp.Process.PID)
}

func TestStatusHandler_WithoutScheduler(t *testing.T) {
	r := gin.New()
	r.GET("/v1/status", NewStatusHandler(nil, nil).Status)

	w := serve(t, r, http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"sync"`)
}
