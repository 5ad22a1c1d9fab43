package fiobench

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/fusebench/FuseBench/util"
	goversion "github.com/hashicorp/go-version"
)

// CheckVersion fails when the installed fio is older than minVersion.
// Checked once before any mount so a stale node fails fast as a
// configuration error.
func CheckVersion(ctx context.Context, fioBinary, minVersion string) error {
	out, err := exec.CommandContext(ctx, fioBinary, "--version").CombinedOutput()
	if err != nil {
		return fmt.Errorf("running %s --version failed: %s: %w", fioBinary, strings.TrimSpace(string(out)), err)
	}
	// Some builds print warnings before the version line.
	return checkVersionOutput(util.LastNonEmptyLine(out), minVersion)
}

func checkVersionOutput(out, minVersion string) error {
	min, err := goversion.NewVersion(minVersion)
	if err != nil {
		return fmt.Errorf("bad minimum fio version %q: %w", minVersion, err)
	}

	// fio prints e.g. "fio-3.39" or "fio-3.36-10-g888fa8".
	raw := strings.TrimSpace(out)
	raw = strings.TrimPrefix(raw, "fio-")
	if i := strings.Index(raw, "-"); i > 0 {
		raw = raw[:i]
	}
	have, err := goversion.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("can't parse fio version from %q: %w", strings.TrimSpace(out), err)
	}

	if have.LessThan(min) {
		return fmt.Errorf("fio %s is older than required %s", have, min)
	}
	return nil
}
