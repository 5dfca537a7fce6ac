package memtier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolSystemPressureReportsNonZeroTotal(t *testing.T) {
	p := newTestPool()
	defer func() { _ = p.Teardown(nil) }()

	pressure, err := p.SystemPressure()
	require.NoError(t, err)
	assert.Greater(t, pressure.TotalBytes, uint64(0), "expected a non-zero host memory total")
	assert.GreaterOrEqual(t, pressure.TotalBytes, pressure.UsedBytes, "used cannot exceed total")
}
