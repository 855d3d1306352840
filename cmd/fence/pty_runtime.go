package main

import (
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
)

// attachPty allocates a pseudo-terminal for execCmd, starts execCmd on it
// (callers must not call execCmd.Start again), wires it to the process's own
// stdin/stdout, and relays window-size changes via SIGWINCH.
// The returned Closer stops the relay and releases the PTY; callers must
// close it after execCmd.Wait() returns.
func attachPty(execCmd *exec.Cmd) (io.Closer, error) {
	ptmx, err := pty.Start(execCmd)
	if err != nil {
		return nil, err
	}

	_ = pty.InheritSize(os.Stdin, ptmx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGWINCH)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-sigChan:
				_ = pty.InheritSize(os.Stdin, ptmx)
			}
		}
	}()

	go func() { _, _ = io.Copy(ptmx, os.Stdin) }()
	go func() { _, _ = io.Copy(os.Stdout, ptmx) }()

	return &ptyCloser{ptmx: ptmx, sigChan: sigChan, done: done}, nil
}

type ptyCloser struct {
	ptmx    *os.File
	sigChan chan os.Signal
	done    chan struct{}
}

func (c *ptyCloser) Close() error {
	signal.Stop(c.sigChan)
	close(c.done)
	return c.ptmx.Close()
}
