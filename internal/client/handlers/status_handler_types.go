package handlers

import "github.com/openmined/kbsync/internal/client/sync"

// ClientInfo is the static part of the status response.
type ClientInfo struct {
	Email     string `json:"email"`
	DataDir   string `json:"data_dir"`
	ServerURL string `json:"server_url"`
	StartedAt string `json:"started_at"`
}

// StatusResponse represents the health status of the service.
type StatusResponse struct {
	Status    string                `json:"status"`    // health status ("ok").
	Timestamp string                `json:"ts"`        // timestamp when health check was performed.
	Version   string                `json:"version"`   // version of the client.
	Revision  string                `json:"revision"`  // revision of the client.
	BuildDate string                `json:"buildDate"` // build date of the client.
	Client    *ClientInfo           `json:"client,omitempty"`
	Process   *ProcessInfo          `json:"process,omitempty"`
	Sync      *sync.SchedulerStatus `json:"sync,omitempty"`
}
