package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openmined/kbsync/internal/client/workspace"
)

// how long POST /v1/sync/pause?wait=true waits for a running sync
const pauseWaitTimeout = 2 * time.Minute

type SyncHandler struct {
	sched  SyncController
	events EventSource
}

func NewSyncHandler(sched SyncController, events EventSource) *SyncHandler {
	return &SyncHandler{sched: sched, events: events}
}

// Status godoc
//
//	@Summary		Get sync status
//	@Description	Returns the scheduler state and the result of the last sync
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	SyncStatusResponse
//	@Router			/v1/sync/status [get]
//	@Security		APIToken
func (h *SyncHandler) Status(c *gin.Context) {
	resp := SyncStatusResponse{SchedulerStatus: h.sched.Status()}
	if h.events != nil {
		resp.LastResult = h.events.LastFinish()
	}
	c.PureJSON(http.StatusOK, resp)
}

// FullSync godoc
//
//	@Summary		Request a full sync
//	@Tags			sync
//	@Param			background	query	bool	false	"Run without user facing notifications"
//	@Success		202	{object}	ControlPlaneResponse
//	@Router			/v1/sync/full [post]
//	@Security		APIToken
func (h *SyncHandler) FullSync(c *gin.Context) {
	background, err := queryBool(c, "background")
	if err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	h.sched.RequestFullSync(background)
	c.PureJSON(http.StatusAccepted, ControlPlaneResponse{Code: CodeOk})
}

// QuickSync godoc
//
//	@Summary		Request a quick sync of one knowledge base
//	@Description	An empty kb_guid syncs the primary knowledge base
//	@Tags			sync
//	@Accept			json
//	@Param			request	body	QuickSyncRequest	false	"Knowledge base"
//	@Success		202	{object}	ControlPlaneResponse
//	@Failure		400	{object}	ControlPlaneError
//	@Router			/v1/sync/quick [post]
//	@Security		APIToken
func (h *SyncHandler) QuickSync(c *gin.Context) {
	var req QuickSyncRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
			return
		}
	}

	if req.KbGUID != "" && !workspace.IsValidKbGUID(req.KbGUID) {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, errors.New("invalid kb_guid"))
		return
	}

	h.sched.RequestQuickSync(req.KbGUID)
	c.PureJSON(http.StatusAccepted, ControlPlaneResponse{Code: CodeOk})
}

// DownloadMessages godoc
//
//	@Summary		Request a message download
//	@Description	accepted is false while the download cooldown is active
//	@Tags			sync
//	@Success		202	{object}	MessagesSyncResponse
//	@Router			/v1/sync/messages [post]
//	@Security		APIToken
func (h *SyncHandler) DownloadMessages(c *gin.Context) {
	accepted := h.sched.RequestMessageDownload()
	c.PureJSON(http.StatusAccepted, MessagesSyncResponse{Code: CodeOk, Accepted: accepted})
}

// Pause godoc
//
//	@Summary		Pause the scheduler
//	@Description	With wait=true the call returns once the running sync, if any, finished
//	@Tags			sync
//	@Param			wait	query	bool	false	"Wait for the running sync"
//	@Success		200	{object}	ControlPlaneResponse
//	@Failure		504	{object}	ControlPlaneError
//	@Router			/v1/sync/pause [post]
//	@Security		APIToken
func (h *SyncHandler) Pause(c *gin.Context) {
	wait, err := queryBool(c, "wait")
	if err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	if !wait {
		h.sched.Pause()
		c.PureJSON(http.StatusOK, ControlPlaneResponse{Code: CodeOk})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), pauseWaitTimeout)
	defer cancel()
	if err := h.sched.WaitUntilIdleThenPause(ctx); err != nil {
		AbortWithError(c, http.StatusGatewayTimeout, ErrCodeSyncNotReady, err)
		return
	}
	c.PureJSON(http.StatusOK, ControlPlaneResponse{Code: CodeOk})
}

// Resume godoc
//
//	@Summary		Resume the scheduler
//	@Tags			sync
//	@Success		200	{object}	ControlPlaneResponse
//	@Router			/v1/sync/resume [post]
//	@Security		APIToken
func (h *SyncHandler) Resume(c *gin.Context) {
	h.sched.Resume()
	c.PureJSON(http.StatusOK, ControlPlaneResponse{Code: CodeOk})
}

// SetInterval godoc
//
//	@Summary		Change the automatic full sync interval
//	@Description	0 disables the automatic full sync
//	@Tags			sync
//	@Accept			json
//	@Param			request	body	SyncIntervalRequest	true	"Interval in minutes"
//	@Success		200	{object}	ControlPlaneResponse
//	@Failure		400	{object}	ControlPlaneError
//	@Router			/v1/sync/interval [put]
//	@Security		APIToken
func (h *SyncHandler) SetInterval(c *gin.Context) {
	var req SyncIntervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	h.sched.SetFullSyncIntervalMinutes(*req.Minutes)
	c.PureJSON(http.StatusOK, ControlPlaneResponse{Code: CodeOk})
}

func queryBool(c *gin.Context, key string) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.New("invalid " + key + " parameter")
	}
	return v, nil
}
