package mount

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
)

// mountinfoContains reports whether targetPath appears as a mount point in
// /proc/self/mountinfo content. The mount point is the fifth field.
func mountinfoContains(buf []byte, targetPath string) bool {
	target := strings.TrimRight(targetPath, "/")
	for _, line := range strings.Split(string(buf), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		if unescapeMountPath(fields[4]) == target {
			return true
		}
	}
	return false
}

// Mount paths with spaces are octal-escaped in mountinfo.
func unescapeMountPath(s string) string {
	s = strings.ReplaceAll(s, `\040`, " ")
	s = strings.ReplaceAll(s, `\011`, "\t")
	return s
}

// findDriverPID scans process command lines for the driver invocation that
// mounted the given bucket.
func findDriverPID(procRoot, driverBinary, bucket string) (int, error) {
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return 0, err
	}
	base := path.Base(driverBinary)
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		buf, err := os.ReadFile(path.Join(procRoot, entry.Name(), "cmdline"))
		if err != nil {
			continue
		}
		args := strings.Split(string(buf), "\x00")
		if len(args) == 0 || path.Base(args[0]) != base {
			continue
		}
		for _, arg := range args[1:] {
			if arg == bucket {
				return pid, nil
			}
		}
	}
	return 0, fmt.Errorf("no %s process found for bucket %s", base, bucket)
}
