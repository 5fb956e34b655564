package preflight

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoniassia/memclawz/internal/embed"
)

func TestCheckWritePermissions(t *testing.T) {
	c := New()

	result := c.CheckWritePermissions(t.TempDir())
	assert.Equal(t, StatusPass, result.Status)
	assert.True(t, result.Required)

	// Directory creation counts as part of the check.
	result = c.CheckWritePermissions(filepath.Join(t.TempDir(), "nested", "data"))
	assert.Equal(t, StatusPass, result.Status)
}

func TestCheckDiskSpace(t *testing.T) {
	c := New()

	result := c.CheckDiskSpace(t.TempDir(), "")
	assert.NotEqual(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "free")
	assert.Contains(t, result.Message, "minimum: 100.0 MB")

	// A present source log raises the required minimum.
	dir := t.TempDir()
	source := filepath.Join(dir, "main.sqlite")
	require.NoError(t, os.WriteFile(source, bytes.Repeat([]byte("x"), 1024), 0o644))
	result = c.CheckDiskSpace(dir, source)
	assert.Contains(t, result.Message, "minimum: 100.0 MB")
}

func TestCheckSourceLog(t *testing.T) {
	c := New()

	result := c.CheckSourceLog("")
	assert.Equal(t, StatusWarn, result.Status)

	result = c.CheckSourceLog(filepath.Join(t.TempDir(), "absent.sqlite"))
	assert.Equal(t, StatusWarn, result.Status)
	assert.False(t, result.IsCritical())

	path := filepath.Join(t.TempDir(), "main.sqlite")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	result = c.CheckSourceLog(path)
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, path)
}

func TestCheckEmbedderStatic(t *testing.T) {
	c := New()
	embedder := embed.NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	result := c.CheckEmbedder(context.Background(), embedder)
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "dimensions")
}

func TestRunAllAndSummary(t *testing.T) {
	buf := new(bytes.Buffer)
	c := New(WithOutput(buf))
	embedder := embed.NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	dir := t.TempDir()
	results := c.RunAll(context.Background(), dir, filepath.Join(dir, "absent.sqlite"), embedder)
	require.Len(t, results, 4)

	assert.False(t, c.HasCriticalFailures(results))
	assert.Equal(t, "ready_with_warnings", c.SummaryStatus(results))

	c.PrintResults(results)
	out := buf.String()
	assert.Contains(t, out, "memclawz System Check")
	assert.Contains(t, out, "READY_WITH_WARNINGS")
	assert.Contains(t, out, "source_log")
}

func TestSummaryStatusFailed(t *testing.T) {
	c := New()
	results := []CheckResult{
		{Name: "write_permissions", Status: StatusFail, Required: true, Message: "denied"},
	}
	assert.True(t, c.HasCriticalFailures(results))
	assert.Equal(t, "failed", c.SummaryStatus(results))
}
