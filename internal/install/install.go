package install

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommand fetches the module dependencies of the checkout the panel
// runs from, mirroring what a notebook user would install by hand.
var DefaultCommand = []string{"go", "mod", "download"}

// Installer shells out to install dependencies and reports the result as a
// human-readable string for the control panel.
type Installer struct {
	// Command overrides DefaultCommand, mainly for tests.
	Command []string
	// Dir is the working directory for the command. Empty means inherit.
	Dir string
	// Timeout bounds the shell-out. Defaults to 5 minutes.
	Timeout time.Duration
}

// Run executes the install command and formats its outcome.
func (i Installer) Run(ctx context.Context) string {
	command := i.Command
	if len(command) == 0 {
		command = DefaultCommand
	}
	timeout := i.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = i.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail != "" {
			return fmt.Sprintf("Error installing dependencies: %v: %s", err, detail)
		}
		return fmt.Sprintf("Error installing dependencies: %v", err)
	}
	return "Dependencies installed successfully."
}
