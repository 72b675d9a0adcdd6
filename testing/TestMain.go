package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("PORTCULLIS_TEST_MODE", "1")
		if os.Getenv("RADIUS_RELOAD_COMMAND") == "" {
			_ = os.Setenv("RADIUS_RELOAD_COMMAND", "true")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
