package app

import (
	"os"
	"sync"
)

const testModeEnv = "PORTAL_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether PORTAL_TEST_MODE=1 was set when the process first
// asked. Startup skips its database and Redis connections in that mode.
func InTestMode() bool {
	return testMode()
}
