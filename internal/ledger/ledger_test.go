package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ChuLiYu/geotile/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

// newTestLedger creates a ledger with the given filenames, all PENDING
func newTestLedger(names ...string) *Ledger {
	l := &Ledger{}
	for _, n := range names {
		l.Jobs = append(l.Jobs, types.Job{Filename: n, Status: types.StatusPending})
	}
	return l
}

// assertJobStatus asserts job status
func assertJobStatus(t *testing.T, l *Ledger, filename string, want types.JobStatus) {
	t.Helper()
	i := l.Find(filename)
	if i < 0 {
		t.Errorf("job %s not found", filename)
		return
	}
	if l.Jobs[i].Status != want {
		t.Errorf("job %s status: got %s, want %s", filename, l.Jobs[i].Status, want)
	}
}

// ============================================================================
// Line Codec Tests
// ============================================================================

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    types.Job
		wantErr bool
	}{
		{"pending", "a.geojson,PENDING", types.Job{Filename: "a.geojson", Status: types.StatusPending}, false},
		{"in progress with newline", "b.geojson,IN_PROGRESS\n", types.Job{Filename: "b.geojson", Status: types.StatusInProgress}, false},
		{"crlf", "c.geojson,DONE\r\n", types.Job{Filename: "c.geojson", Status: types.StatusDone}, false},
		{"no comma", "a.geojson", types.Job{}, true},
		{"unknown status", "a.geojson,RUNNING", types.Job{}, true},
		{"empty filename", ",PENDING", types.Job{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedLine)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatRoundTrip(t *testing.T) {
	job := types.Job{Filename: "tile,with,commas.geojson", Status: types.StatusDone}
	line := Format(job)
	assert.Equal(t, "tile,with,commas.geojson,DONE\n", line)

	// 以第一個逗號切分，檔名中的逗號無法還原，這與原本的行為一致
	_, err := ParseLine(line)
	assert.Error(t, err)
}

func TestParseSkipsBlankLinesAndReportsLineNumber(t *testing.T) {
	l, err := Parse([]byte("a.geojson,PENDING\n\nb.geojson,DONE\n"))
	require.NoError(t, err)
	assert.Len(t, l.Jobs, 2)

	_, err = Parse([]byte("a.geojson,PENDING\ngarbage\n"))
	var lineErr *LineError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, 2, lineErr.Line)
	assert.ErrorIs(t, err, ErrMalformedLine)
}

// ============================================================================
// State Machine Tests
// ============================================================================

func TestTransitionOrder(t *testing.T) {
	l := newTestLedger("a.geojson")

	require.NoError(t, l.Transition("a.geojson", types.StatusInProgress))
	assertJobStatus(t, l, "a.geojson", types.StatusInProgress)

	require.NoError(t, l.Transition("a.geojson", types.StatusDone))
	assertJobStatus(t, l, "a.geojson", types.StatusDone)

	// DONE -> DONE is idempotent
	assert.NoError(t, l.Transition("a.geojson", types.StatusDone))
}

func TestTransitionRejectsOtherEdges(t *testing.T) {
	l := newTestLedger("a.geojson")

	assert.ErrorIs(t, l.Transition("a.geojson", types.StatusDone), ErrInvalidTransition)
	require.NoError(t, l.Transition("a.geojson", types.StatusInProgress))
	assert.ErrorIs(t, l.Transition("a.geojson", types.StatusPending), ErrInvalidTransition)
	assert.ErrorIs(t, l.Transition("a.geojson", types.StatusInProgress), ErrInvalidTransition)
	assert.ErrorIs(t, l.Transition("missing.geojson", types.StatusDone), ErrJobNotFound)
}

func TestReset(t *testing.T) {
	l := newTestLedger("a.geojson", "b.geojson")
	require.NoError(t, l.Transition("a.geojson", types.StatusInProgress))

	require.NoError(t, l.Reset("a.geojson"))
	assertJobStatus(t, l, "a.geojson", types.StatusPending)

	// only IN_PROGRESS jobs can be reset
	assert.ErrorIs(t, l.Reset("b.geojson"), ErrInvalidTransition)
	assert.ErrorIs(t, l.Reset("zzz.geojson"), ErrJobNotFound)
}

func TestFirstPendingAndStats(t *testing.T) {
	l := newTestLedger("a", "b", "c")
	assert.Equal(t, 0, l.FirstPending())

	require.NoError(t, l.Transition("a", types.StatusInProgress))
	assert.Equal(t, 1, l.FirstPending())

	require.NoError(t, l.Transition("b", types.StatusInProgress))
	require.NoError(t, l.Transition("b", types.StatusDone))

	stats := l.Stats()
	assert.Equal(t, Stats{Pending: 1, InProgress: 1, Done: 1}, stats)
	assert.Equal(t, 3, stats.Total())
	assert.False(t, l.AllDone())
}

func TestWriteReadPreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.txt")
	l := newTestLedger("z.geojson", "a.geojson", "m.geojson")
	require.NoError(t, l.Transition("a.geojson", types.StatusInProgress))
	require.NoError(t, l.Write(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "z.geojson,PENDING\na.geojson,IN_PROGRESS\nm.geojson,PENDING\n", string(raw))

	back, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, l.Jobs, back.Jobs)
}

func TestReadMissing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
