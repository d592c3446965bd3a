package playback

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Launcher hands a URL to the operating system or a companion app.
// A nil error means the handoff was accepted.
type Launcher interface {
	Open(ctx context.Context, target string) error
}

// LauncherFunc adapts a function to Launcher
type LauncherFunc func(ctx context.Context, target string) error

func (f LauncherFunc) Open(ctx context.Context, target string) error {
	return f(ctx, target)
}

// DesktopLauncher opens URLs with the platform's default handler and waits
// for the opener to exit, so an unregistered scheme is reported as an error.
type DesktopLauncher struct {
	GOOS string
}

// NewDesktopLauncher targets the running OS
func NewDesktopLauncher() *DesktopLauncher {
	return &DesktopLauncher{GOOS: runtime.GOOS}
}

func (l *DesktopLauncher) Open(ctx context.Context, target string) error {
	cmd, err := l.command(ctx, target)
	if err != nil {
		return err
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w (%s)", cmd.Path, err, trimOutput(out))
	}
	return nil
}

func (l *DesktopLauncher) command(ctx context.Context, target string) (*exec.Cmd, error) {
	switch l.GOOS {
	case "windows":
		rundll := filepath.Join(os.Getenv("SYSTEMROOT"), "System32", "rundll32.exe")
		return exec.CommandContext(ctx, rundll, "url.dll,FileProtocolHandler", target), nil
	case "darwin":
		return exec.CommandContext(ctx, "open", target), nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.CommandContext(ctx, "xdg-open", target), nil
	case "android":
		return exec.CommandContext(ctx, "termux-open", target), nil
	default:
		return nil, fmt.Errorf("unsupported OS: %s", l.GOOS)
	}
}

func trimOutput(out []byte) string {
	const limit = 200
	if len(out) > limit {
		out = out[:limit]
	}
	return string(out)
}
