package mount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrMountFailed is returned when the driver exits non-zero or the mount
// point never becomes ready.
var ErrMountFailed = errors.New("mount failed")

// A ProcessHandle identifies the driver process backing a mount. PID is 0
// when the process could not be resolved; sampling such a handle is a no-op.
type ProcessHandle struct {
	PID int
}

// A Session manages one mount/unmount cycle of the filesystem driver. Only
// one session may be open per worker at a time.
type Session struct {
	driverBinary string
	mountArgs    []string
	timeout      time.Duration

	open          bool
	mountinfoPath string
	procRoot      string
}

type SessionInput struct {
	DriverBinary string
	// MountArgs is the extra driver flag string, space separated.
	MountArgs string
	// Timeout bounds how long Acquire waits for the mount point to be ready.
	Timeout time.Duration
}

func NewSession(input *SessionInput) *Session {
	return &Session{
		driverBinary:  input.DriverBinary,
		mountArgs:     strings.Fields(input.MountArgs),
		timeout:       input.Timeout,
		mountinfoPath: "/proc/self/mountinfo",
		procRoot:      "/proc",
	}
}

// Acquire mounts the bucket at targetPath and returns a handle to the driver
// process. The driver daemonizes, so readiness is established by polling the
// mount table and the PID by scanning process command lines.
func (s *Session) Acquire(ctx context.Context, bucket, targetPath string) (*ProcessHandle, error) {
	if s.open {
		panic("mount.Session: Acquire while a session is already open")
	}

	err := os.MkdirAll(targetPath, 0o755)
	if err != nil {
		return nil, fmt.Errorf("creating mount point %s failed: %w", targetPath, err)
	}

	args := append(append([]string{}, s.mountArgs...), bucket, targetPath)
	slog.Info("mounting", slog.String("driver", s.driverBinary), slog.String("bucket", bucket), slog.String("target", targetPath))
	out, err := exec.CommandContext(ctx, s.driverBinary, args...).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("driver exited: %s: %w", strings.TrimSpace(string(out)), ErrMountFailed)
	}

	err = s.waitReady(ctx, targetPath)
	if err != nil {
		// Don't leave a half-set-up mount behind.
		s.unmount(targetPath)
		return nil, err
	}
	s.open = true

	handle := &ProcessHandle{PID: s.resolvePID(ctx, bucket)}
	if handle.PID == 0 {
		slog.Warn("could not resolve driver process, telemetry will be empty", slog.String("bucket", bucket))
	}
	slog.Info("mounted", slog.String("target", targetPath), slog.Int("driverPID", handle.PID))
	return handle, nil
}

func (s *Session) waitReady(ctx context.Context, targetPath string) error {
	deadline := time.Now().Add(s.timeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", ctx.Err(), ErrMountFailed)
		}
		mounted, err := s.isMountPoint(targetPath)
		if err != nil {
			return fmt.Errorf("checking mount table failed: %w", err)
		}
		if mounted {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("mount point %s not ready after %s: %w", targetPath, s.timeout, ErrMountFailed)
}

// resolvePID polls briefly for the daemonized driver process.
func (s *Session) resolvePID(ctx context.Context, bucket string) int {
	deadline := time.Now().Add(2 * time.Second)
	for {
		pid, err := findDriverPID(s.procRoot, s.driverBinary, bucket)
		if err == nil {
			return pid
		}
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			return 0
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// Release unmounts targetPath. Already-unmounted is success.
func (s *Session) Release(targetPath string) error {
	s.open = false
	mounted, err := s.isMountPoint(targetPath)
	if err == nil && !mounted {
		slog.Debug("already unmounted", slog.String("target", targetPath))
		return nil
	}
	return s.unmount(targetPath)
}

func (s *Session) unmount(targetPath string) error {
	out, err := exec.Command("fusermount", "-u", targetPath).CombinedOutput()
	if err == nil {
		slog.Info("unmounted", slog.String("target", targetPath))
		return nil
	}
	slog.Warn("fusermount failed, retrying with lazy umount", slog.String("output", strings.TrimSpace(string(out))))
	time.Sleep(2 * time.Second)
	out, err = exec.Command("umount", "-l", targetPath).CombinedOutput()
	if err != nil {
		if mounted, merr := s.isMountPoint(targetPath); merr == nil && !mounted {
			return nil
		}
		return fmt.Errorf("unmounting %s failed: %s: %w", targetPath, strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (s *Session) isMountPoint(targetPath string) (bool, error) {
	buf, err := os.ReadFile(s.mountinfoPath)
	if err != nil {
		return false, err
	}
	return mountinfoContains(buf, targetPath), nil
}
