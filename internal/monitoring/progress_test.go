package monitoring

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressIncrementClamps(t *testing.T) {
	assert.Equal(t, 0.0, ProgressIncrement(-0.5).Delta)
	assert.Equal(t, 1.0, ProgressIncrement(3).Delta)
	assert.Equal(t, 0.25, ProgressIncrement(0.25).Delta)
}

func TestChannelSink(t *testing.T) {
	ch := make(chan Event, 2)
	sink := ChannelSink{C: ch}
	sink.Send(ProgressStart("tiles"))
	sink.Send(TaskComplete("merge"))

	first := <-ch
	second := <-ch
	assert.Equal(t, EventProgressStart, first.Kind)
	assert.Equal(t, "tiles", first.Text)
	assert.Equal(t, EventTaskComplete, second.Kind)
	assert.Equal(t, "merge", second.Tag)
}

func TestRecordingSinkConcurrent(t *testing.T) {
	rec := &RecordingSink{}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Send(ProgressIncrement(0.1))
		}()
	}
	wg.Wait()

	assert.Equal(t, 16, rec.Count(EventProgressIncrement))
	assert.Len(t, rec.Events(), 16)
}

func TestMultiSink(t *testing.T) {
	a, b := &RecordingSink{}, &RecordingSink{}
	MultiSink{a, nil, b}.Send(ErrorEvent(errors.New("boom"), true))

	require.Len(t, a.Events(), 1)
	require.Len(t, b.Events(), 1)
	assert.True(t, a.Events()[0].Fatal)
	assert.Equal(t, "boom", b.Events()[0].Text)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	LogSink{}.Send(ErrorEvent(errors.New("tile 2,3 skipped"), false))
	assert.Contains(t, buf.String(), "tile 2,3 skipped")
	assert.Contains(t, buf.String(), "level=warning")
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "task_complete", EventTaskComplete.String())
	assert.Equal(t, "event(42)", EventKind(42).String())
}
