package render

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
)

// Pager pipes output through an external pager command.
type Pager struct {
	// Command is the pager command line. Empty means $PAGER, then less.
	Command string
	Stdout  io.Writer
	Stderr  io.Writer
}

func (p Pager) command() []string {
	cmd := p.Command
	if cmd == "" {
		cmd = os.Getenv("PAGER")
	}
	if cmd == "" {
		cmd = "less -FRSX"
	}
	return strings.Fields(cmd)
}

// Page shows data through the pager. When the pager cannot be started the
// data is written to Stdout directly.
func (p Pager) Page(data []byte) error {
	stdout := p.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := p.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	args := p.command()
	if len(args) == 0 {
		_, err := stdout.Write(data)
		return eris.Wrap(err, "render: write output")
	}
	path, err := exec.LookPath(args[0])
	if err != nil {
		_, err := stdout.Write(data)
		return eris.Wrap(err, "render: write output")
	}

	cmd := exec.Command(path, args[1:]...) //nolint:gosec
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return eris.Wrapf(err, "render: pager %s", args[0])
	}
	return nil
}

// IsTerminal reports whether f is attached to a character device.
func IsTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
