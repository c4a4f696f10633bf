package app

import (
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

const testModeEnv = "ATELIER_TEST_MODE"

// Version is stamped at build time with -ldflags "-X .../internal/app.Version=...".
var Version = "dev"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether binaries should skip connecting to real infrastructure.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode updates the cached flag after environment changes.
func RefreshTestMode() {
	detectTestMode()
}

// BuildInfo describes the running binary for the health endpoint.
type BuildInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"goVersion"`
	Revision  string `json:"revision,omitempty"`
}

// ReadBuildInfo combines Version with the VCS data embedded by the toolchain.
func ReadBuildInfo() BuildInfo {
	info := BuildInfo{Version: Version}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			info.Revision = s.Value
		}
	}
	return info
}
