package preflight

import (
	"fmt"
	"os"
	"syscall"
)

// Free-space thresholds for the data directory. The indexes live in memory,
// but logs and sync state need room to grow, and a sync run needs headroom
// proportional to the memory log it is about to ingest.
const (
	// MinDiskSpaceBytes is the hard floor (100MB) below which serving is
	// refused.
	MinDiskSpaceBytes = 100 * 1024 * 1024

	// diskWarnMultiplier sizes the comfortable margin above the required
	// minimum.
	diskWarnMultiplier = 2
)

// CheckDiskSpace checks free space at the data directory. The required
// minimum grows with the size of the source log, since one sync pass can
// write state and logs on the same order.
func (c *Checker) CheckDiskSpace(dataDir, sourcePath string) CheckResult {
	result := CheckResult{
		Name:     "disk_space",
		Required: true,
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(dataDir, &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}

	required := uint64(MinDiskSpaceBytes)
	if sourcePath != "" {
		if info, err := os.Stat(sourcePath); err == nil {
			required += uint64(info.Size())
		}
	}

	availableBytes := stat.Bavail * uint64(stat.Bsize)
	result.Message = fmt.Sprintf("%s free (minimum: %s)",
		formatBytes(availableBytes), formatBytes(required))

	switch {
	case availableBytes < required:
		result.Status = StatusFail
	case availableBytes < required*diskWarnMultiplier:
		result.Status = StatusWarn
		result.Details = "free space is close to the minimum"
	default:
		result.Status = StatusPass
	}
	return result
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
