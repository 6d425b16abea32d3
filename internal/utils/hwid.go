package utils

import (
	"log/slog"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
)

const hwidAppID = "kbsync"

// HWID identifies this device to the sync server. The raw machine id never
// leaves the host, only an app specific hash of it.
var HWID = resolveHWID()

func resolveHWID() string {
	id, err := machineid.ProtectedID(hwidAppID)
	if err != nil {
		slog.Debug("machine id unavailable, using random device id", "error", err)
		return uuid.NewString()
	}
	return id
}
