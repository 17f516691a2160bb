package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"agent-vault-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentID(t *testing.T) {
	a, err := ContentID([]byte("hello world"))
	require.NoError(t, err)
	b, err := ContentID([]byte("hello world"))
	require.NoError(t, err)
	c, err := ContentID([]byte("hello world!"))
	require.NoError(t, err)

	// CIDv1 raw sha2-256 in base32 always starts with "bafkrei".
	assert.True(t, strings.HasPrefix(a, "bafkrei"), a)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "piece_confirmed", EventPieceConfirmed.String())
	assert.Equal(t, "dataset_resolved", EventDatasetResolved.String())
	assert.Equal(t, "unknown", EventKind(99).String())
}

func TestNilSinkIsSafe(t *testing.T) {
	var sink EventSink
	assert.NotPanics(t, func() { sink.emit(Event{Kind: EventUploadComplete}) })
}

func TestPickProviderIsStable(t *testing.T) {
	b := &MinioBackend{providers: []config.ProviderConfig{
		{Name: "alpha", Bucket: "a"},
		{Name: "beta", Bucket: "b"},
		{Name: "gamma", Bucket: "c"},
	}}
	addr := "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
	first := b.pickProvider(addr)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, b.pickProvider(addr))
	}
}

func TestTransferProgressReportsCumulativeBytes(t *testing.T) {
	var events []Event
	p := &transferProgress{total: 10, dataset: "ds", sink: func(e Event) { events = append(events, e) }}
	_, _ = p.Read(make([]byte, 4))
	_, _ = p.Read(make([]byte, 6))

	require.Len(t, events, 2)
	assert.Equal(t, int64(4), events[0].BytesSent)
	assert.Equal(t, int64(10), events[1].BytesSent)
	assert.Equal(t, int64(10), events[1].TotalBytes)
	assert.Equal(t, EventTransferProgress, events[1].Kind)
}

func TestNotInitializedBackendRejectsCalls(t *testing.T) {
	b := &MinioBackend{timeout: time.Second, poll: time.Millisecond}
	_, err := b.FindSessions(context.Background(), "0xabc")
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = b.CreateSession(context.Background(), SessionOptions{Address: "0xabc"}, nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
}
