package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openmined/kbsync/internal/client/workspace"
	"github.com/openmined/kbsync/internal/kbstore"
)

const maxRecordIDLength = 256

type RecordsHandler struct {
	records RecordStore
	sched   SyncController
}

func NewRecordsHandler(records RecordStore, sched SyncController) *RecordsHandler {
	return &RecordsHandler{records: records, sched: sched}
}

// Get godoc
//
//	@Summary		Get a record
//	@Tags			records
//	@Produce		json
//	@Param			guid	path		string	true	"Knowledge base guid"
//	@Param			id		path		string	true	"Record id"
//	@Success		200		{object}	RecordResponse
//	@Failure		404		{object}	ControlPlaneError
//	@Router			/v1/kb/{guid}/records/{id} [get]
//	@Security		APIToken
func (h *RecordsHandler) Get(c *gin.Context) {
	kbGUID, id, ok := recordParams(c)
	if !ok {
		return
	}

	rec, err := h.records.GetRecord(kbGUID, id)
	if err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.PureJSON(http.StatusOK, toRecordResponse(kbGUID, rec))
}

// Put godoc
//
//	@Summary		Store a record
//	@Description	Stores a local edit and requests a quick sync of the knowledge base
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			guid	path		string			true	"Knowledge base guid"
//	@Param			id		path		string			true	"Record id"
//	@Param			request	body		RecordRequest	true	"Record"
//	@Success		200		{object}	RecordResponse
//	@Failure		400		{object}	ControlPlaneError
//	@Failure		404		{object}	ControlPlaneError
//	@Router			/v1/kb/{guid}/records/{id} [put]
//	@Security		APIToken
func (h *RecordsHandler) Put(c *gin.Context) {
	kbGUID, id, ok := recordParams(c)
	if !ok {
		return
	}

	var req RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	rec := &kbstore.Record{
		ID:         id,
		Title:      req.Title,
		Body:       req.Body,
		Deleted:    req.Deleted,
		ModifiedAt: time.Now().UTC(),
	}
	if err := h.records.PutRecord(kbGUID, rec); err != nil {
		abortWithStoreError(c, err)
		return
	}

	h.sched.RequestQuickSync(kbGUID)

	stored, err := h.records.GetRecord(kbGUID, id)
	if errors.Is(err, kbstore.ErrRecordNotFound) {
		// local delete of a record the server never had
		c.PureJSON(http.StatusOK, toRecordResponse(kbGUID, rec))
		return
	} else if err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.PureJSON(http.StatusOK, toRecordResponse(kbGUID, stored))
}

func recordParams(c *gin.Context) (string, string, bool) {
	kbGUID := c.Param("guid")
	id := c.Param("id")

	if !workspace.IsValidKbGUID(kbGUID) {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Errorf("invalid kb guid %q", kbGUID))
		return "", "", false
	}
	if id == "" || len(id) > maxRecordIDLength {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, errors.New("invalid record id"))
		return "", "", false
	}
	return kbGUID, id, true
}

func abortWithStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, kbstore.ErrRecordNotFound), errors.Is(err, kbstore.ErrGroupNotFound):
		AbortWithError(c, http.StatusNotFound, ErrCodeNotFound, err)
	case errors.Is(err, kbstore.ErrReadOnly):
		AbortWithError(c, http.StatusForbidden, ErrCodeRecordsReadOnly, err)
	default:
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
	}
}

func toRecordResponse(kbGUID string, r *kbstore.Record) *RecordResponse {
	return &RecordResponse{
		KbGUID:     kbGUID,
		ID:         r.ID,
		Title:      r.Title,
		Body:       r.Body,
		Version:    r.Version,
		Deleted:    r.Deleted,
		Dirty:      r.Dirty,
		ModifiedAt: r.ModifiedAt,
	}
}
