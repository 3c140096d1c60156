package render

import (
	"bytes"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPager_Command(t *testing.T) {
	t.Setenv("PAGER", "more -s")
	assert.Equal(t, []string{"more", "-s"}, Pager{}.command())
	assert.Equal(t, []string{"most"}, Pager{Command: "most"}.command())

	t.Setenv("PAGER", "")
	assert.Equal(t, []string{"less", "-FRSX"}, Pager{}.command())
}

func TestPager_PipesThroughCommand(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	var out bytes.Buffer
	p := Pager{Command: "cat", Stdout: &out, Stderr: &bytes.Buffer{}}
	require.NoError(t, p.Page([]byte("STR (1)\n")))
	assert.Equal(t, "STR (1)\n", out.String())
}

func TestPager_MissingCommandFallsBack(t *testing.T) {
	var out bytes.Buffer
	p := Pager{Command: "definitely-not-a-pager-xyz", Stdout: &out}
	require.NoError(t, p.Page([]byte("plain")))
	assert.Equal(t, "plain", out.String())
}

func TestIsTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	assert.False(t, IsTerminal(f))
}
