package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

const serviceName = "fleetcore-api"

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// Emit writes one JSON log line, stamping the timestamp and service name.
// Callers fill in their own fields; ts and service are never overridden.
func Emit(entry map[string]any) {
	if entry == nil {
		entry = make(map[string]any, 2)
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["service"] = serviceName
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

// LogRequest emits an access-log line with common HTTP fields.
func LogRequest(method, path string, status int, d time.Duration) {
	Emit(map[string]any{
		"level":       "info",
		"kind":        "http_access",
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": d.Milliseconds(),
	})
}
