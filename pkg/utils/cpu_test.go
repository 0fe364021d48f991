package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func stubCPUPercent(t *testing.T, usage []float64, err error) {
	t.Helper()
	orig := cpuPercent
	cpuPercent = func(interval time.Duration, percpu bool) ([]float64, error) {
		return usage, err
	}
	t.Cleanup(func() { cpuPercent = orig })
}

func TestCheckCPUUsageDisabled(t *testing.T) {
	stubCPUPercent(t, nil, errors.New("should not be called"))
	ok, usage, err := CheckCPUUsage(0)
	assert.True(t, ok)
	assert.Zero(t, usage)
	assert.NoError(t, err)
}

func TestCheckCPUUsageThreshold(t *testing.T) {
	stubCPUPercent(t, []float64{91.5}, nil)
	ok, usage, err := CheckCPUUsage(80)
	assert.False(t, ok)
	assert.Equal(t, 91.5, usage)
	assert.NoError(t, err)

	ok, _, _ = CheckCPUUsage(95)
	assert.True(t, ok)
}

func TestCheckCPUUsageFailsOpen(t *testing.T) {
	stubCPUPercent(t, nil, errors.New("open /proc/stat: permission denied"))
	ok, _, err := CheckCPUUsage(80)
	assert.True(t, ok)
	assert.Error(t, err)

	stubCPUPercent(t, []float64{}, nil)
	ok, _, err = CheckCPUUsage(80)
	assert.True(t, ok)
	assert.Error(t, err)
}
