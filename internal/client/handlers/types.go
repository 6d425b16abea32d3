package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/openmined/kbsync/internal/client/sync"
	"github.com/openmined/kbsync/internal/kbstore"
)

const (
	CodeOk                 string = "OK"
	ErrCodeBadRequest      string = "ERR_BAD_REQUEST"
	ErrCodeNotFound        string = "ERR_NOT_FOUND"
	ErrCodeUnknownError    string = "ERR_UNKNOWN_ERROR"
	ErrCodeSyncNotReady    string = "ERR_SYNC_NOT_READY"
	ErrCodeRecordsReadOnly string = "ERR_RECORDS_READ_ONLY"
)

type ControlPlaneResponse struct {
	Code string `json:"code"`
}

type ControlPlaneError struct {
	ErrorCode string `json:"code"`
	Error     string `json:"error"`
}

func AbortWithError(c *gin.Context, status int, code string, err error) {
	c.Abort()
	c.Error(err)
	c.PureJSON(status, ControlPlaneError{
		ErrorCode: code,
		Error:     err.Error(),
	})
}

// SyncController is the part of the scheduler the control plane drives.
type SyncController interface {
	RequestFullSync(background bool)
	RequestQuickSync(kbGUID string)
	RequestMessageDownload() bool
	Pause()
	Resume()
	WaitUntilIdleThenPause(ctx context.Context) error
	SetFullSyncIntervalMinutes(minutes int)
	Status() *sync.SchedulerStatus
}

// EventSource streams scheduler events.
type EventSource interface {
	Subscribe() <-chan *sync.Event
	Unsubscribe(ch <-chan *sync.Event)
	LastFinish() *sync.Event
}

// RecordStore reads and writes records of any knowledge base the user can reach.
type RecordStore interface {
	GetRecord(kbGUID, id string) (*kbstore.Record, error)
	PutRecord(kbGUID string, r *kbstore.Record) error
}

type MessageStore interface {
	Messages(limit int) ([]*kbstore.Message, error)
}
