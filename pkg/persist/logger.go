package persist

import (
	"encoding/json"
	"log"
)

// Logger receives structured diagnostics from the snapshot store, such as
// corrupt-record skips during load.
//
// Intentionally minimal to avoid coupling persistence to a specific logging
// library. Implementations should treat fields as a stable machine-readable
// contract.
type Logger interface {
	Log(level string, msg string, fields map[string]any)
}

type defaultLogger struct{}

func (defaultLogger) Log(level string, msg string, fields map[string]any) {
	// Best-effort structured printing using stdlib log.
	payload := map[string]any{
		"level": level,
		"msg":   msg,
	}
	for k, v := range fields {
		payload[k] = v
	}

	b, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[persist] level=%s msg=%s fields=%v", level, msg, fields)
		return
	}
	log.Printf("[persist] %s", string(b))
}
