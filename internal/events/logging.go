package events

import (
	"encoding/json"
	"fmt"
	"io"

	"procrelay/internal/logger"
)

// DefaultLogPath is where events are logged by default.
const DefaultLogPath = "logs/events.log"

var log = logger.Named("events")

// NewFileLogger opens a dedicated events log, falling back to the global
// logger when the file cannot be opened.
func NewFileLogger(path string) (*logger.LogEntry, io.Closer) {
	if path == "" {
		return log, nil
	}
	entry, closer, _, err := logger.SetupComponentFile("events", path)
	if err != nil {
		log.Warnf("failed to set up events log file (%s): %v", path, err)
		return log, nil
	}
	return entry, closer
}

func encodePayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return ""
	case string:
		return v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%+v", payload)
	}
	return string(data)
}
