package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("NCOMPLIANCE_TEST_MODE") == "" {
			_ = os.Setenv("NCOMPLIANCE_TEST_MODE", "1")
		}
	})
}
