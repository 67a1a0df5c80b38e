//go:build !unix

package worker

import "os/exec"

// killGroup is a no-op where process groups are unavailable; only the
// shell itself is killed on cancellation.
func killGroup(*exec.Cmd) {}
