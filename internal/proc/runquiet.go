package proc

import "os/exec"

// RunQuiet runs a short-lived shell command to completion, discarding
// its output. Used for best-effort side effects such as stopping a
// file-sync client around a race.
func RunQuiet(command string) error {
	cmd := exec.Command("/usr/bin/bash", "-c", command)
	_, err := cmd.CombinedOutput()
	return err
}
