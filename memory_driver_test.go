package kvmirror_test

import (
	"testing"

	"code.byted.org/khicago/kvmirror"
	"code.byted.org/khicago/kvmirror/internal/drivertest"
)

func TestMemory_DriverSuite(t *testing.T) {
	drivertest.Run(t, kvmirror.NewMemory())
}
