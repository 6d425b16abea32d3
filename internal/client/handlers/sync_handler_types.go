package handlers

import (
	"github.com/openmined/kbsync/internal/client/sync"
)

type SyncStatusResponse struct {
	*sync.SchedulerStatus
	LastResult *sync.Event `json:"last_result,omitempty"`
}

type QuickSyncRequest struct {
	KbGUID string `json:"kb_guid"`
}

type MessagesSyncResponse struct {
	Code     string `json:"code"`
	Accepted bool   `json:"accepted"`
}

type SyncIntervalRequest struct {
	Minutes *int `json:"minutes" binding:"required,min=0,max=1440"`
}
