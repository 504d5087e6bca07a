package capability

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/mattn/go-isatty"

	"manualqa/internal"
)

// Environment identifies the runtime a process is executing in
type Environment string

const (
	EnvMobile   Environment = "mobile"
	EnvTerminal Environment = "terminal"
	EnvBrowser  Environment = "browser"
)

// probe holds everything environment detection looks at, so tests can fake it
type probe struct {
	goos       string
	override   string
	isTerminal func(fd uintptr) bool
	fds        []uintptr
}

func systemProbe(override string) probe {
	return probe{
		goos:     runtime.GOOS,
		override: override,
		isTerminal: func(fd uintptr) bool {
			return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
		},
		fds: []uintptr{os.Stdin.Fd(), os.Stdout.Fd()},
	}
}

// DetectEnvironment probes the running process once. A non-empty override
// (from MANUALQA_RUNTIME or --runtime) wins over detection.
func DetectEnvironment(override string) (Environment, error) {
	return systemProbe(override).detect()
}

func (p probe) detect() (Environment, error) {
	if p.override != "" {
		env, err := ParseEnvironment(p.override)
		if err != nil {
			return "", err
		}
		return env, nil
	}

	switch p.goos {
	case "android", "ios":
		return EnvMobile, nil
	case "js", "wasip1":
		return EnvBrowser, nil
	}

	for _, fd := range p.fds {
		if p.isTerminal != nil && p.isTerminal(fd) {
			return EnvTerminal, nil
		}
	}

	return "", fmt.Errorf("%w: no supported runtime detected on %s without a terminal (set %sRUNTIME)",
		internal.ErrCapabilityUnresolved, p.goos, internal.EnvPrefix)
}

// ParseEnvironment validates an environment name
func ParseEnvironment(name string) (Environment, error) {
	switch env := Environment(strings.ToLower(strings.TrimSpace(name))); env {
	case EnvMobile, EnvTerminal, EnvBrowser:
		return env, nil
	default:
		return "", fmt.Errorf("%w: unknown runtime %q (want mobile, terminal or browser)",
			internal.ErrCapabilityUnresolved, name)
	}
}
