package api

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/rehearse/internal/media"
	"github.com/abhisek/rehearse/internal/store"
)

func TestWithLogging_RecordsRequestEvents(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer st.Close()

	mock := NewMockBackend(MockUpload{AttemptID: "a1"}, MockUpload{Err: &ErrUnavailable{}})
	var buf bytes.Buffer
	b := WithLogging(mock, zerolog.New(&buf), st.EventRepo())
	ctx := context.Background()

	require.NoError(t, b.UpdateStatus(ctx, "s1", Running(time.Now())))
	a, err := b.UploadRecording(ctx, "s1", 0, media.NewBlob([]byte("x"), ""))
	require.NoError(t, err)
	assert.Equal(t, "a1", a.ID)
	_, err = b.UploadRecording(ctx, "s1", 1, media.NewBlob([]byte("y"), ""))
	require.Error(t, err)
	b.Beacon("s1", Canceled(time.Now()))

	var rows []struct {
		op      string
		success bool
	}
	r, err := st.DB().QueryContext(ctx, "SELECT operation, success FROM request_events ORDER BY sequence")
	require.NoError(t, err)
	defer r.Close()
	for r.Next() {
		var row struct {
			op      string
			success bool
		}
		require.NoError(t, r.Scan(&row.op, &row.success))
		rows = append(rows, row)
	}
	require.NoError(t, r.Err())

	require.Len(t, rows, 4)
	assert.Equal(t, OpUpdateStatus, rows[0].op)
	assert.Equal(t, OpUpload, rows[1].op)
	assert.True(t, rows[1].success)
	assert.False(t, rows[2].success)
	assert.Equal(t, OpBeacon, rows[3].op)

	assert.Equal(t, 4, strings.Count(buf.String(), `"message":"backend call"`))
	assert.Contains(t, buf.String(), `"attempt_id":"a1"`)
}

type failingRepo struct{ store.EventRepo }

func (failingRepo) AppendRequestEvent(context.Context, store.RequestEventData) error {
	return errors.New("disk full")
}

func TestWithLogging_JournalFailureDoesNotFailCall(t *testing.T) {
	mock := NewMockBackend()
	b := WithLogging(mock, zerolog.Nop(), failingRepo{})
	assert.NoError(t, b.UpdateStatus(context.Background(), "s1", Running(time.Now())))
}

func TestWithLogging_FlushForwards(t *testing.T) {
	b := WithLogging(NewMockBackend(), zerolog.Nop(), nil)
	assert.NoError(t, Flush(context.Background(), b))
}
