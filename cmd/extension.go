package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

const (
	EnvConfigFile = "BT_CONFIG"
	EnvVerbose    = "BT_VERBOSE"
)

// RunExtension attempts to find and execute an external bt-<subcommand> binary.
// It returns (true, exitCode) if an extension was found and executed,
// and (false, 0) if no extension was found.
//
// Global flags are passed to the extension as environment variables.
func RunExtension(subcommand string, args []string) (bool, int) {
	lp, err := exec.LookPath("bt-" + subcommand)
	if err != nil {
		return false, 0
	}

	cmd := exec.Command(lp, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(),
		EnvConfigFile+"="+*configFile,
		EnvVerbose+"="+strconv.FormatBool(*Verbose),
	)

	if err := cmd.Run(); err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return true, exitError.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "Error executing external command %q: %v\n", lp, err)
		return true, 1
	}
	return true, 0
}
