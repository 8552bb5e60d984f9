package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/polarization.report/internal/fsutil"
	"github.com/banshee-data/polarization.report/internal/testutil"
)

func TestParseArgs(t *testing.T) {
	var stderr bytes.Buffer
	o, err := parseArgs([]string{"-workers", "4", "-html", "/exp", "/exp/enc.json"}, &stderr)
	require.NoError(t, err)

	assert.Equal(t, "/exp", o.exposureDir)
	assert.Equal(t, "/exp/enc.json", o.encoderPath)
	assert.Equal(t, filepath.Join("/exp", "plots"), o.outDir)
	assert.True(t, o.set["workers"])
	assert.True(t, o.set["html"])
	assert.False(t, o.set["time-offset-hours"])
}

func TestParseArgs_OutOverride(t *testing.T) {
	o, err := parseArgs([]string{"-out", "/tmp/p", "/exp", "enc.json"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/p", o.outDir)
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"counts_per_rev": 3600, "workers": 2, "channel": "RED"}`), 0644))

	o, err := parseArgs([]string{"-config", path, "-workers", "8", "-time-offset-hours", "0", "/exp", "enc.json"}, &bytes.Buffer{})
	require.NoError(t, err)
	pc, err := loadConfig(o)
	require.NoError(t, err)

	assert.Equal(t, 3600, pc.GetCountsPerRev())
	assert.Equal(t, 8, pc.GetWorkers())
	assert.Equal(t, "RED", pc.GetChannel())
	require.NotNil(t, pc.GetTimeOffsetHours())
	assert.Equal(t, 0.0, *pc.GetTimeOffsetHours())
}

func TestLoadConfig_InvalidOverride(t *testing.T) {
	o, err := parseArgs([]string{"-counts-per-rev", "0", "/exp", "enc.json"}, &bytes.Buffer{})
	require.NoError(t, err)
	_, err = loadConfig(o)
	assert.Error(t, err)
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"/exp"}, fsutil.NewMemoryFileSystem(), &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "usage: platefit")
}

func TestRun_Version(t *testing.T) {
	var stdout bytes.Buffer
	code := run(context.Background(), []string{"-version"}, fsutil.NewMemoryFileSystem(), &stdout, &bytes.Buffer{})
	assert.Equal(t, 0, code)
	assert.NotEmpty(t, strings.TrimSpace(stdout.String()))
}

func TestRun_NoFrames(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	testutil.WriteEncoderLog(t, fsys, "/exp/enc.json", map[int64]int64{1700000000000: 0, 1700000010000: 2400})

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"/exp", "/exp/enc.json"}, fsys, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "no FITS frames found")
	assert.Empty(t, fsys.Files("/exp/plots"))
}
