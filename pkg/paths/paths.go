package paths

import (
	"os"
)

// DataDirEnv overrides the data directory when set.
const DataDirEnv = "STREAMHUB_DATA_DIR"

// GetDataDir returns the directory holding config.json, state.json and logs.
// Order: STREAMHUB_DATA_DIR, /app/data inside a container, then the working directory.
func GetDataDir() string {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return dir
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return "/app/data"
	}
	return "."
}
