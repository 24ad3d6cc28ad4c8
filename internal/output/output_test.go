package output

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_BufferIsPlain(t *testing.T) {
	// Given a writer over a buffer
	w := New(&bytes.Buffer{})

	// Then it never uses rich output
	assert.False(t, w.Rich())
}

func TestWriter_Plain_UsesTags(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{"success", func(w *Writer) { w.Success("Index complete") }, "[ok] Index complete\n"},
		{"warning", func(w *Writer) { w.Warningf("%d files skipped", 3) }, "[warn] 3 files skipped\n"},
		{"error", func(w *Writer) { w.Error("lock held") }, "[error] lock held\n"},
		{"unknown kind", func(w *Writer) { w.Status("other", "plain") }, "   plain\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.write(NewPlain(buf))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_Rich_UsesIcons(t *testing.T) {
	// Given a rich writer
	buf := &bytes.Buffer{}
	w := &Writer{out: buf, rich: true}

	// When printing a success message
	w.Success("done")

	// Then the icon is used
	assert.Equal(t, "✅ done\n", buf.String())
}

func TestWriter_Mode(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewPlain(buf)

	w.Mode(true, 2)
	w.Mode(false, 0)

	assert.Equal(t, "[dumb] dumb mode (2 pending)\n[smart] smart mode\n", buf.String())
}

func TestWriter_Fields_SortedAndAligned(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewPlain(buf)

	w.Fields(map[string]string{"mode": "smart", "generation": "4"})

	assert.Equal(t, "  generation:  4\n  mode:        smart\n", buf.String())
}

func TestWriter_Code_IndentsLines(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewPlain(buf)

	w.Code("a: 1\nb: 2\n")

	assert.Equal(t, "\n  a: 1\n  b: 2\n\n", buf.String())
}

func TestWriter_Progress(t *testing.T) {
	// Given a plain writer
	buf := &bytes.Buffer{}
	w := NewPlain(buf)

	// When progress is reported, including out-of-range values
	w.Progress(0.5, "indexing")
	w.Progress(2, "done")

	// Then each call is one line with a clamped percentage
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], " 50% indexing")
	assert.Contains(t, lines[1], "100% done")
	assert.NotContains(t, buf.String(), "\r")
}

func TestWriter_Progress_RichRedrawsInPlace(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &Writer{out: buf, rich: true}

	w.Progress(0.25, "a")
	w.Progress(1, "b")

	assert.True(t, strings.HasPrefix(buf.String(), "\r["))
	assert.True(t, strings.HasSuffix(buf.String(), "b\n"))
}

func TestRenderProgressBar(t *testing.T) {
	assert.Equal(t, strings.Repeat("░", 10), renderProgressBar(0, 10))
	assert.Equal(t, strings.Repeat("█", 5)+strings.Repeat("░", 5), renderProgressBar(0.5, 10))
	assert.Equal(t, strings.Repeat("█", 10), renderProgressBar(1, 10))
}

func TestIsTTY(t *testing.T) {
	assert.False(t, IsTTY(nil))
	assert.False(t, IsTTY(&bytes.Buffer{}))

	f, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.False(t, IsTTY(f), "regular files are not terminals")
}

func TestDetectCI(t *testing.T) {
	t.Setenv("CI", "true")
	assert.True(t, DetectCI())
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}
