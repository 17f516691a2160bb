package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"agent-vault-go/internal/model"
	"agent-vault-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndexer struct {
	docs []model.FileDocument
	err  error
}

func (f *fakeIndexer) IndexDocument(_ context.Context, doc model.FileDocument) error {
	f.docs = append(f.docs, doc)
	return f.err
}

func TestProcess(t *testing.T) {
	idx := &fakeIndexer{}
	p := NewProcessor(idx)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	err := p.Process(context.Background(), tasks.FileIndexTask{
		FolderID:  42,
		ContentID: "bafkreiabc",
		FileName:  "a.txt",
		Tags:      []string{"txt", "agent-upload"},
		Owner:     "0xabc",
		TxHash:    "0xdead",
	})
	require.NoError(t, err)
	require.Len(t, idx.docs, 1)
	doc := idx.docs[0]
	assert.Equal(t, "42_bafkreiabc_0xdead", doc.DocID)
	assert.Equal(t, []string{"txt", "agent-upload"}, doc.Tags)
	assert.Equal(t, fixed, doc.IndexedAt)
}

func TestProcessErrors(t *testing.T) {
	idx := &fakeIndexer{}
	p := NewProcessor(idx)
	assert.Error(t, p.Process(context.Background(), tasks.FileIndexTask{FolderID: 1}))
	assert.Empty(t, idx.docs)

	idx.err = errors.New("es down")
	assert.Error(t, p.Process(context.Background(), tasks.FileIndexTask{FolderID: 1, ContentID: "c"}))
}
