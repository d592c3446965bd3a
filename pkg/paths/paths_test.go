package paths

import "testing"

func TestGetDataDirOverride(t *testing.T) {
	t.Setenv(DataDirEnv, "/tmp/streamhub-data")
	if got := GetDataDir(); got != "/tmp/streamhub-data" {
		t.Errorf("expected override dir, got %s", got)
	}
}
