package utils

import (
	"errors"

	"github.com/shirou/gopsutil/cpu"
)

var cpuPercent = cpu.Percent

// CheckCPUUsage reports whether host CPU usage is at or below maxCPUUsage.
// A limit of zero disables the check. When usage cannot be read the check
// passes and the error is returned for the caller to log.
func CheckCPUUsage(maxCPUUsage float64) (bool, float64, error) {
	if maxCPUUsage <= 0 {
		return true, 0, nil
	}
	usage, err := cpuPercent(0, false)
	if err != nil {
		return true, 0, err
	}
	if len(usage) == 0 {
		return true, 0, errors.New("cpu usage unavailable")
	}
	return usage[0] <= maxCPUUsage, usage[0], nil
}
