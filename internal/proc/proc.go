// Package proc launches and supervises the OS processes belonging to
// one race attempt: the simulator and every driver client. It owns the
// only code that talks to os/exec; everything above it sees Handles
// and classified errors, never raw process plumbing.
package proc

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
)

// LaunchSpec describes a single child process.
type LaunchSpec struct {
	Name    string // registry key: "torcs" or a player token
	Dir     string // working directory
	Command string // shell command line, already templated
	Stdout  string // capture path, empty discards output
	Stderr  string // capture path, empty discards output
	RunAs   string // OS user name, empty inherits the orchestrator's identity
}

// Handle is a supervised child process. Done is closed once the
// process has exited; ExitErr is only meaningful afterwards.
type Handle interface {
	Name() string
	Alive() bool
	Done() <-chan struct{}
	ExitErr() error
	Terminate() error // graceful stop (SIGTERM)
	Kill() error      // forced stop (SIGKILL)
}

// Launcher starts child processes. The production implementation runs
// real commands through the shell; tests substitute scripted fakes.
type Launcher interface {
	Start(spec LaunchSpec) (Handle, error)
}

type shellLauncher struct{}

// NewLauncher returns the production Launcher.
func NewLauncher() Launcher { return shellLauncher{} }

func (shellLauncher) Start(spec LaunchSpec) (Handle, error) {
	cmd := exec.Command("/usr/bin/bash", "-c", spec.Command)
	cmd.Dir = spec.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if spec.RunAs != "" {
		cred, err := lookupCredential(spec.RunAs)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve run-as user for %s: %w", spec.Name, err)
		}
		cmd.SysProcAttr.Credential = cred
	}

	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	if spec.Stdout != "" {
		out, err := openCapture(spec.Stdout)
		if err != nil {
			return nil, fmt.Errorf("failed to open stdout capture for %s: %w", spec.Name, err)
		}
		files = append(files, out)
		cmd.Stdout = out
	}
	if spec.Stderr != "" {
		errFile, err := openCapture(spec.Stderr)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to open stderr capture for %s: %w", spec.Name, err)
		}
		files = append(files, errFile)
		cmd.Stderr = errFile
	}

	if err := cmd.Start(); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to start %s: %w", spec.Name, err)
	}

	h := &process{name: spec.Name, cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		closeAll()
		h.mu.Lock()
		h.exitErr = err
		h.mu.Unlock()
		close(h.done)
	}()
	return h, nil
}

func openCapture(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
}

func lookupCredential(name string) (*syscall.Credential, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return nil, err
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("uid %q of user %s is not numeric", u.Uid, name)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("gid %q of user %s is not numeric", u.Gid, name)
	}
	return &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)}, nil
}

type process struct {
	name string
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	exitErr error
}

func (p *process) Name() string { return p.name }

func (p *process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *process) Done() <-chan struct{} { return p.done }

// ExitErr reports how the process exited. A plain *exec.ExitError
// means the command ran and failed; anything else is a supervision
// problem. Nil means a clean exit.
func (p *process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

func (p *process) Terminate() error { return p.signal(syscall.SIGTERM) }

func (p *process) Kill() error { return p.signal(syscall.SIGKILL) }

func (p *process) signal(sig syscall.Signal) error {
	if !p.Alive() {
		return nil
	}
	// Negative pid signals the whole process group, so children
	// spawned by the launch shell go down with it.
	err := syscall.Kill(-p.cmd.Process.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// Crashed reports whether the exit error represents an abnormal exit
// as opposed to a supervision failure.
func Crashed(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
