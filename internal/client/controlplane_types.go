package client

import (
	"github.com/openmined/kbsync/internal/client/handlers"
)

// RouteDeps is everything the control plane routes are served from.
type RouteDeps struct {
	Scheduler handlers.SyncController
	Events    handlers.EventSource
	Records   handlers.RecordStore
	Messages  handlers.MessageStore
	Info      *handlers.ClientInfo
}
