//go:build !integration

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ntripbrowser/internal/geodesy"
	"github.com/sells-group/ntripbrowser/internal/store"
)

func TestFormatSnapshotList(t *testing.T) {
	saved := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	snaps := []store.Snapshot{
		{
			ID:        "0b6f3a52-7c0e-4d8e-9a4b-6d1f2e3c4b5a",
			Caster:    "rtk2go.com",
			Protocol:  "ntrip2",
			Base:      &geodesy.Point{Lat: 50.45, Lon: 30.52},
			Streams:   812,
			Casters:   3,
			Networks:  5,
			CreatedAt: saved,
		},
		{
			ID:        "7d1c9e40-2b3a-4f5e-8c6d-0a9b8c7d6e5f",
			Caster:    "a-very-long-caster-name.example.org",
			Protocol:  "ntrip1",
			CreatedAt: saved,
		},
	}

	var buf bytes.Buffer
	formatSnapshotList(&buf, snaps)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.True(t, strings.HasPrefix(lines[2], snaps[0].ID))
	assert.Contains(t, lines[2], "50.45,30.52")
	assert.Contains(t, lines[2], "812")
	assert.Contains(t, lines[2], "2026-10-17 09:30")
	assert.Contains(t, lines[3], "a-very-long-caster-name.exa...")
}

func TestHistoryShow_NotFound(t *testing.T) {
	inTempDir(t)

	_, err := execute(t, "history", "show", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot not found")
}

func TestHistoryList_Empty(t *testing.T) {
	inTempDir(t)

	out, err := execute(t, "history", "list")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestHistory_UnknownDriver(t *testing.T) {
	inTempDir(t)
	t.Setenv("NTRIP_STORE_DRIVER", "mysql")

	_, err := execute(t, "history", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config:")
}
