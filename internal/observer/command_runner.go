package observer

import (
	"context"
	"os/exec"
	"time"
)

// CommandRunner spawns an external script/command, the mechanism
// behind the Bash sink (spec §4.6). Grounded on security/isolation.go's
// `os/exec.Command` usage, generalized from OS-specific process
// isolation invocations into one structured run-with-timeout.
type CommandRunner struct {
	Path    string
	Timeout time.Duration
}

// NewCommandRunner returns a CommandRunner invoking path, bounding
// each run to timeout (0 means no bound).
func NewCommandRunner(path string, timeout time.Duration) *CommandRunner {
	return &CommandRunner{Path: path, Timeout: timeout}
}

// Run executes the command with args, waiting for it to exit.
func (r *CommandRunner) Run(args ...string) error {
	ctx := context.Background()
	var cancel context.CancelFunc
	if r.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, r.Path, args...)
	return cmd.Run()
}
