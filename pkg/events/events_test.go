package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igmonitor/pkg/models"
)

var at = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func decodeLines(t *testing.T, out string) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		records = append(records, m)
	}
	return records
}

func TestJSONLinesCommonFields(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONLines(&buf)

	all := []Event{
		NewBioChanged("alice", at, "old", "new"),
		NewNewPost("alice", at, models.PostSummary{ID: "p2", MediaType: models.MediaTypePhoto}),
		NewProfileFieldsChanged("alice", at, []Field{FieldFullName, FieldPrivacy}),
		NewCheckCompleted("alice", at, nil),
		NewStoryDownloaded("alice", at, models.StoryItem{ID: "s1"}, ""),
		NewLiveDetected("alice", at, models.LiveBroadcast{ID: "b1"}),
		NewDownloadComplete("alice", at, 3, 90*time.Second),
		NewSessionError("alice", at, "missing_field", "username is required"),
		NewSessionWarning("alice", at, "session is 9 days old", 9),
	}
	for _, e := range all {
		require.NoError(t, sink.Emit(context.Background(), e))
	}

	records := decodeLines(t, buf.String())
	require.Len(t, records, len(all))
	for i, r := range records {
		assert.Equal(t, string(all[i].Header().Type), r["type"])
		assert.Equal(t, "alice", r["username"])
		assert.Equal(t, "2024-05-01T12:00:00Z", r["timestamp"])
	}

	assert.Equal(t, "new", records[0]["new_bio"])
	assert.Equal(t, "p2", records[1]["post"].(map[string]any)["id"])
	assert.Equal(t, []any{"full_name", "privacy"}, records[2]["changes"])
	assert.Equal(t, true, records[3]["success"])
	assert.NotContains(t, records[3], "error")
	assert.Equal(t, float64(3), records[6]["tasks_completed"])
	assert.Equal(t, float64(90), records[6]["duration"])
	assert.Equal(t, "missing_field", records[7]["error_kind"])
}

func TestCheckCompletedFailure(t *testing.T) {
	e := NewCheckCompleted("bob", at, errors.New("boom"))
	assert.False(t, e.Success)
	assert.Equal(t, "boom", e.Error)
	assert.Equal(t, "Check failed: boom", e.Summary())
}

func TestBioSummaryTruncatesButPayloadDoesNot(t *testing.T) {
	long := strings.Repeat("x", 250)
	e := NewBioChanged("alice", at, "", long)
	assert.Equal(t, long, e.NewBio)
	assert.NotContains(t, e.Summary(), long)
	assert.Contains(t, e.Summary(), strings.Repeat("x", 100)+"...")
}

func TestJSONLinesDoesNotEscapeHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONLines(&buf).Emit(context.Background(), NewBioChanged("a", at, "", "<3 & more")))
	assert.Contains(t, buf.String(), `"new_bio":"<3 & more"`)
}

func TestJSONLinesConcurrentWritesStayWhole(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONLines(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sink.Emit(context.Background(), NewCheckCompleted("user", at, nil))
		}()
	}
	wg.Wait()

	assert.Len(t, decodeLines(t, buf.String()), 20)
}

func TestMultiDeliversDespiteFailure(t *testing.T) {
	rec := &Recorder{}
	failing := SinkFunc(func(ctx context.Context, e Event) error { return errors.New("down") })

	err := Multi{failing, rec}.Emit(context.Background(), NewCheckCompleted("a", at, nil))
	assert.EqualError(t, err, "down")
	assert.Len(t, rec.Events(), 1)
}

func TestRecorderOfType(t *testing.T) {
	rec := &Recorder{}
	_ = rec.Emit(context.Background(), NewCheckCompleted("a", at, nil))
	_ = rec.Emit(context.Background(), NewBioChanged("a", at, "x", "y"))
	_ = rec.Emit(context.Background(), NewCheckCompleted("a", at, nil))

	assert.Len(t, rec.OfType(TypeCheckComplete), 2)
	assert.Len(t, rec.OfType(TypeBioChange), 1)
	assert.Empty(t, rec.OfType(TypeNewPost))
}
