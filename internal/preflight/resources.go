package preflight

import (
	"fmt"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/Aman-CERP/rowsearch/internal/config"
)

// storageLocation is a directory rowsearch writes to at runtime.
type storageLocation struct {
	role string
	dir  string
}

// storageLocations lists where the index, the checkpoint and the log file
// live, each resolved to the nearest directory that exists today.
func storageLocations(cfg *config.Config) []storageLocation {
	locs := []storageLocation{
		{role: "index", dir: existingDir(cfg.IndexPath)},
		{role: "checkpoint", dir: existingDir(filepath.Dir(cfg.StateFile))},
	}
	if cfg.Logging.File != "" {
		locs = append(locs, storageLocation{role: "logs", dir: existingDir(filepath.Dir(cfg.Logging.File))})
	}
	return locs
}

func statfsFree(dir string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

func rlimitOpenFiles() (soft, hard uint64, err error) {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, 0, err
	}
	return uint64(rLimit.Cur), uint64(rLimit.Max), nil
}

// CheckDiskSpace checks that every storage location has at least
// doctor.min_free_mb free.
func (c *Checker) CheckDiskSpace(cfg *config.Config) CheckResult {
	result := CheckResult{
		Name:     "disk_space",
		Required: true,
		Status:   StatusPass,
	}
	minimum := uint64(cfg.Doctor.MinFreeMB) * humanize.MiByte

	var free, low []string
	for _, loc := range storageLocations(cfg) {
		avail, err := c.freeSpace(loc.dir)
		if err != nil {
			result.Status = StatusFail
			result.Message = fmt.Sprintf("cannot read free space of %s directory %s: %v", loc.role, loc.dir, err)
			return result
		}
		free = append(free, fmt.Sprintf("%s %s", loc.role, humanize.IBytes(avail)))
		if avail < minimum {
			low = append(low, fmt.Sprintf("%s (%s)", loc.role, loc.dir))
		}
	}

	result.Message = fmt.Sprintf("%s free (minimum: %s)", strings.Join(free, ", "), humanize.IBytes(minimum))
	if len(low) > 0 {
		result.Status = StatusFail
		result.Details = "Below doctor.min_free_mb: " + strings.Join(low, ", ")
	}
	return result
}

// CheckFileDescriptors checks the soft open file limit against
// doctor.min_open_files. Index segments and API connections each hold one.
func (c *Checker) CheckFileDescriptors(cfg *config.Config) CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: true,
		Status:   StatusPass,
	}
	minimum := uint64(cfg.Doctor.MinOpenFiles)

	soft, hard, err := c.openFileLimit()
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot read open file limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d open files (minimum: %d)", soft, minimum)
	if soft >= minimum {
		return result
	}
	result.Status = StatusFail
	if hard >= minimum {
		result.Details = fmt.Sprintf("Run 'ulimit -n %d' before 'rowsearch serve'", minimum)
	} else {
		result.Details = fmt.Sprintf("Hard limit is %d; raise it to at least %d for the rowsearch user", hard, minimum)
	}
	return result
}
