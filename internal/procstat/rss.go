// Package procstat samples a process's resident memory from /proc, used by
// the worker to self-report in its heartbeat. The pool does not sample
// memory itself; it checks recycling thresholds against the last value a
// worker reported.
package procstat

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ResidentMemoryMB reads /proc/<pid>/status and returns VmRSS in MiB.
// Grounded on the original's worker/memory.rs::get_process_memory_mb; no
// ecosystem process-metrics library appears anywhere in the reference pack.
func ResidentMemoryMB(pid int) (int64, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0, fmt.Errorf("open status for pid %d: %w", pid, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, fmt.Errorf("malformed VmRSS line: %q", line)
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse VmRSS: %w", err)
		}
		return kb / 1024, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan status: %w", err)
	}
	return 0, fmt.Errorf("VmRSS not found for pid %d", pid)
}
