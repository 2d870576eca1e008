package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

var getRuntime = func() string { return runtime.GOOS }

// startCommand is swapped in tests to avoid launching real processes.
var startCommand = func(cmd *exec.Cmd) error { return cmd.Start() }

// OpenURL hands target (a web or file:// URL) to the system default handler.
//
// Supports macOS, Linux, and Windows platforms.
func OpenURL(target string) error {
	var cmd *exec.Cmd
	rt := getRuntime()
	switch rt {
	case "darwin":
		cmd = exec.Command("open", target)
	case "linux":
		cmd = exec.Command("xdg-open", target)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", target)
	default:
		return fmt.Errorf("unsupported platform: %s", rt)
	}

	if err := startCommand(cmd); err != nil {
		return fmt.Errorf("failed to open %s: %w", target, err)
	}

	return nil
}
