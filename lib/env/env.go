package env

import (
	"os"
	"strconv"
)

func Debug() bool {
	return os.Getenv("DEBUG") != ""
}

// Timeout returns the number of seconds set in TIKZJAX_TIMEOUT, if any.
func Timeout() (int, bool) {
	if s := os.Getenv("TIKZJAX_TIMEOUT"); s != "" {
		i, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return int(i), true
		}
	}
	return -1, false
}

// EnginePath returns an explicit engine binary set in TIKZJAX_ENGINE_PATH. It takes
// priority over the $PATH search for tikzjax-engine-* binaries.
func EnginePath() string {
	return os.Getenv("TIKZJAX_ENGINE_PATH")
}
