package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openmined/kbsync/internal/version"
)

// StatusHandler handles status-related endpoints
type StatusHandler struct {
	info  *ClientInfo
	sched SyncController
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(info *ClientInfo, sched SyncController) *StatusHandler {
	return &StatusHandler{
		info:  info,
		sched: sched,
	}
}

// Status returns the status of the service
//
//	@Summary		Get status
//	@Description	Returns the status of the service
//	@Tags			status
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Router			/v1/status [get]
func (h *StatusHandler) Status(ctx *gin.Context) {
	now := time.Now()
	resp := &StatusResponse{
		Status:    "ok",
		Timestamp: now.UTC().Format(time.RFC3339),
		Version:   version.Version,
		Revision:  version.Revision,
		BuildDate: version.BuildDate,
		Client:    h.info,
		Process:   currentProcess(now),
	}
	if h.sched != nil {
		resp.Sync = h.sched.Status()
	}
	ctx.PureJSON(http.StatusOK, resp)
}
