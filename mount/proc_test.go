package mount

import (
	"os"
	"path"
	"strconv"
	"testing"
)

const sampleMountinfo = `22 28 0:21 / /proc rw,nosuid,nodev,noexec,relatime shared:5 - proc proc rw
29 28 8:1 / / rw,relatime shared:1 - ext4 /dev/sda1 rw
618 28 0:52 / /home/user/bench\040mnt rw,nosuid,nodev,relatime shared:340 - fuse.gcsfuse gcsfuse rw,user_id=1000
619 28 0:53 / /tmp/fusebench/mnt rw,nosuid,nodev,relatime shared:341 - fuse.gcsfuse gcsfuse rw,user_id=1000
`

func TestMountinfoContains(t *testing.T) {
	cases := []struct {
		name   string
		target string
		want   bool
	}{
		{"mounted path", "/tmp/fusebench/mnt", true},
		{"trailing slash", "/tmp/fusebench/mnt/", true},
		{"escaped space", "/home/user/bench mnt", true},
		{"not mounted", "/tmp/other", false},
		{"prefix of a mount", "/tmp/fusebench", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := mountinfoContains([]byte(sampleMountinfo), c.target)
			if got != c.want {
				t.Fatalf("mountinfoContains(%q) = %v, want %v", c.target, got, c.want)
			}
		})
	}
}

func writeCmdline(t *testing.T, procRoot string, pid int, args ...string) {
	t.Helper()
	dir := path.Join(procRoot, strconv.Itoa(pid))
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		t.Fatal(err)
	}
	buf := []byte{}
	for _, arg := range args {
		buf = append(buf, arg...)
		buf = append(buf, 0)
	}
	err = os.WriteFile(path.Join(dir, "cmdline"), buf, 0o644)
	if err != nil {
		t.Fatal(err)
	}
}

func TestFindDriverPID(t *testing.T) {
	procRoot := t.TempDir()
	writeCmdline(t, procRoot, 100, "/usr/bin/fio", "jobfile.fio")
	writeCmdline(t, procRoot, 200, "/usr/local/bin/gcsfuse", "--implicit-dirs", "other-bucket", "/mnt/other")
	writeCmdline(t, procRoot, 300, "gcsfuse", "--implicit-dirs", "my-bucket", "/tmp/fusebench/mnt")
	// Non-pid entries are skipped.
	err := os.MkdirAll(path.Join(procRoot, "self"), 0o755)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("matches binary and bucket", func(t *testing.T) {
		pid, err := findDriverPID(procRoot, "/usr/local/bin/gcsfuse", "my-bucket")
		if err != nil {
			t.Fatal(err)
		}
		if pid != 300 {
			t.Fatalf("got pid %d, want 300", pid)
		}
	})

	t.Run("bucket must appear in args", func(t *testing.T) {
		_, err := findDriverPID(procRoot, "gcsfuse", "missing-bucket")
		if err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("binary name must match", func(t *testing.T) {
		_, err := findDriverPID(procRoot, "s3fs", "my-bucket")
		if err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestSessionRelease(t *testing.T) {
	t.Run("already unmounted is success", func(t *testing.T) {
		dir := t.TempDir()
		mountinfo := path.Join(dir, "mountinfo")
		err := os.WriteFile(mountinfo, []byte(sampleMountinfo), 0o644)
		if err != nil {
			t.Fatal(err)
		}

		s := NewSession(&SessionInput{DriverBinary: "gcsfuse"})
		s.mountinfoPath = mountinfo
		err = s.Release("/not/mounted")
		if err != nil {
			t.Fatal(err)
		}
	})
}
