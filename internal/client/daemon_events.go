package client

import (
	"log/slog"

	"github.com/openmined/kbsync/internal/client/sync"
)

// loggingSink writes scheduler events to the log before fanning them out.
type loggingSink struct {
	*sync.EventHub
}

func (s *loggingSink) OnStatusText(text string) {
	slog.Debug("[sync] " + text)
	s.EventHub.OnStatusText(text)
}

func (s *loggingSink) OnFinish(code string, message string, background bool) {
	if code == sync.CodeOK {
		slog.Info("[sync] finished", "background", background)
	} else {
		slog.Warn("[sync] finished", "code", code, "error", message, "background", background)
	}
	s.EventHub.OnFinish(code, message, background)
}

func (s *loggingSink) OnPromptMessage(kind sync.PromptKind, title string, body string) {
	slog.Warn("[sync] "+title, "kind", kind.String(), "body", body)
	s.EventHub.OnPromptMessage(kind, title, body)
}

var _ sync.EventSink = (*loggingSink)(nil)
