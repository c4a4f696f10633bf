// Package guard switches binaries into test mode when blank-imported from tests,
// so calling main never dials Postgres or Redis.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ATELIER_TEST_MODE") == "" {
			_ = os.Setenv("ATELIER_TEST_MODE", "1")
		}
	})
}
