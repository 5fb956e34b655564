package preflight

import (
	"fmt"
	"os"
)

// CheckSourceLog checks the memory log source database. A missing file is
// only a warning: the sync loop waits for the runtime to create it.
func (c *Checker) CheckSourceLog(sourcePath string) CheckResult {
	result := CheckResult{
		Name:     "source_log",
		Required: false,
	}

	if sourcePath == "" {
		result.Status = StatusWarn
		result.Message = "no source path configured, sync disabled"
		return result
	}

	info, err := os.Stat(sourcePath)
	if os.IsNotExist(err) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("memory log not found at %s (sync will start once it appears)", sourcePath)
		return result
	}
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot stat memory log: %v", err)
		return result
	}

	f, err := os.Open(sourcePath)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("memory log is not readable: %v", err)
		return result
	}
	_ = f.Close()

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%s)", sourcePath, formatBytes(uint64(info.Size())))
	return result
}
