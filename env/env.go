package env

import (
	"os"
)

func init() {
	// Bypass the moving-GC check performed by the gorgonia/cu dependency chain
	// at init. Only relevant when the gorgonia compute kernel is built in.
	os.Setenv("ASSUME_NO_MOVING_GC_UNSAFE_RISK_IT_WITH", "go1.24")
}
