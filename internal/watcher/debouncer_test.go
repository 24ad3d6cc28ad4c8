package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexmode/internal/async"
)

func receiveBatch(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case events := <-d.Output():
		return events
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced batch")
		return nil
	}
}

func TestDebouncer_Coalesce(t *testing.T) {
	tests := []struct {
		name   string
		ops    []Operation
		want   Operation
		absent bool
	}{
		{name: "create then modify stays create", ops: []Operation{OpCreate, OpModify}, want: OpCreate},
		{name: "create then delete cancels", ops: []Operation{OpCreate, OpDelete}, absent: true},
		{name: "modify then delete is delete", ops: []Operation{OpModify, OpDelete}, want: OpDelete},
		{name: "delete then create is modify", ops: []Operation{OpDelete, OpCreate}, want: OpModify},
		{name: "repeated modify is one modify", ops: []Operation{OpModify, OpModify, OpModify}, want: OpModify},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given a debouncer and a marker event for another path
			d := NewDebouncer(20*time.Millisecond, 4, nil)
			defer d.Stop()
			d.Add(FileEvent{Path: "marker.go", Operation: OpModify})

			// When the operations arrive for one path within the window
			for _, op := range tt.ops {
				d.Add(FileEvent{Path: "file.go", Operation: op, Timestamp: time.Now()})
			}

			// Then the batch carries the coalesced result
			batch := receiveBatch(t, d)
			byPath := make(map[string]Operation)
			for _, ev := range batch {
				byPath[ev.Path] = ev.Operation
			}
			op, ok := byPath["file.go"]
			if tt.absent {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, op)
		})
	}
}

func TestDebouncer_DifferentFiles_OneSortedBatch(t *testing.T) {
	// Given a debouncer
	d := NewDebouncer(20*time.Millisecond, 4, nil)
	defer d.Stop()

	// When events for several files arrive
	d.Add(FileEvent{Path: "c.go", Operation: OpDelete})
	d.Add(FileEvent{Path: "a.go", Operation: OpCreate})
	d.Add(FileEvent{Path: "b.go", Operation: OpModify})

	// Then they are emitted together in path order
	batch := receiveBatch(t, d)
	require.Len(t, batch, 3)
	assert.Equal(t, "a.go", batch[0].Path)
	assert.Equal(t, "b.go", batch[1].Path)
	assert.Equal(t, "c.go", batch[2].Path)
}

func TestDebouncer_Signal_RaisedUntilDone(t *testing.T) {
	// Given a debouncer driving a scanning flag
	scanning := async.NewFlag(false)
	d := NewDebouncer(20*time.Millisecond, 4, scanning)
	defer d.Stop()

	// When an event is added
	d.Add(FileEvent{Path: "a.go", Operation: OpModify})

	// Then the flag is raised while pending
	assert.True(t, scanning.Get())
	assert.Equal(t, 1, d.Pending())

	// And stays raised after the batch is handed out
	receiveBatch(t, d)
	assert.True(t, scanning.Get())
	assert.Equal(t, 0, d.Pending())
	assert.True(t, d.Busy())

	// And drops once the batch is acknowledged
	d.Done()
	assert.False(t, scanning.Get())
	assert.False(t, d.Busy())
}

func TestDebouncer_Signal_CanceledPairLowersFlag(t *testing.T) {
	// Given a debouncer driving a scanning flag
	scanning := async.NewFlag(false)
	d := NewDebouncer(time.Hour, 4, scanning)
	defer d.Stop()

	// When a create and delete cancel out
	d.Add(FileEvent{Path: "tmp.go", Operation: OpCreate})
	d.Add(FileEvent{Path: "tmp.go", Operation: OpDelete})

	// Then nothing is pending and the flag is lowered
	assert.Equal(t, 0, d.Pending())
	assert.False(t, scanning.Get())
}

func TestDebouncer_FullOutput_DefersInsteadOfDropping(t *testing.T) {
	// Given a debouncer whose single buffer slot is occupied
	d := NewDebouncer(10*time.Millisecond, 1, nil)
	defer d.Stop()
	d.Add(FileEvent{Path: "first.go", Operation: OpModify})
	require.Eventually(t, func() bool { return d.Pending() == 0 }, time.Second, 5*time.Millisecond)

	// When another event is flushed while the slot is full
	d.Add(FileEvent{Path: "second.go", Operation: OpModify})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, d.Pending(), "batch is held back, not dropped")

	// Then it is delivered once the slot frees up
	first := receiveBatch(t, d)
	assert.Equal(t, "first.go", first[0].Path)
	second := receiveBatch(t, d)
	assert.Equal(t, "second.go", second[0].Path)
}

func TestDebouncer_Stop_ClosesOutputAndLowersSignal(t *testing.T) {
	// Given a debouncer with pending events
	scanning := async.NewFlag(false)
	d := NewDebouncer(time.Hour, 4, scanning)
	d.Add(FileEvent{Path: "a.go", Operation: OpModify})
	require.True(t, scanning.Get())

	// When stopped twice
	d.Stop()
	d.Stop()

	// Then the output is closed and the flag lowered
	_, ok := <-d.Output()
	assert.False(t, ok)
	assert.False(t, scanning.Get())

	// And later events are ignored
	d.Add(FileEvent{Path: "b.go", Operation: OpModify})
	assert.Equal(t, 0, d.Pending())
}
