package repository

import (
	"context"
	"testing"

	"agent-vault-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "0xAAAA000000000000000000000000000000000001"
	bob   = "0xbbbb000000000000000000000000000000000002"
)

func newTestLedger(t *testing.T) LedgerRepository {
	t.Helper()
	l, err := NewBadgerLedger("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestMintFolderRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	receipt, err := l.MintFolder(ctx, alice, "Receipts", model.FolderTypePersonal, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.FolderID)
	assert.Len(t, receipt.TxHash, 66)

	folder, err := l.GetFolderData(ctx, receipt.FolderID)
	require.NoError(t, err)
	assert.Equal(t, "Receipts", folder.Name)
	assert.Equal(t, model.FolderTypePersonal, folder.FolderType)
	assert.Equal(t, "0xaaaa000000000000000000000000000000000001", folder.Owner)

	second, err := l.MintFolder(ctx, alice, "Work", model.FolderTypeWork, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.FolderID)
	assert.Greater(t, second.BlockNumber, receipt.BlockNumber)
	assert.NotEqual(t, receipt.TxHash, second.TxHash)
}

func TestGetFolderDataMissing(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.GetFolderData(context.Background(), 42)
	assert.ErrorIs(t, err, ErrFolderNotFound)
	_, err = l.GetFiles(context.Background(), 42)
	assert.ErrorIs(t, err, ErrFolderNotFound)
}

func TestAddFileOwnerOnly(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	r, err := l.MintFolder(ctx, alice, "Receipts", model.FolderTypePersonal, false)
	require.NoError(t, err)

	_, err = l.AddFile(ctx, bob, r.FolderID, "bafkreia", "a.txt", []string{"txt"})
	assert.ErrorIs(t, err, ErrNotFolderOwner)

	files, err := l.GetFiles(ctx, r.FolderID)
	require.NoError(t, err)
	assert.Empty(t, files)

	// owner comparison ignores case
	_, err = l.AddFile(ctx, "0xaaaa000000000000000000000000000000000001", r.FolderID, "bafkreia", "a.txt", []string{"txt", "agent-upload", "txt"})
	require.NoError(t, err)

	files, err = l.GetFiles(ctx, r.FolderID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.txt", files[0].Filename)
	assert.Equal(t, []string{"txt", "agent-upload"}, files[0].Tags)
}

func TestAddFileIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	r, err := l.MintFolder(ctx, alice, "Receipts", model.FolderTypePersonal, false)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := l.AddFile(ctx, alice, r.FolderID, "bafkreisame", "a.txt", []string{"txt"})
		require.NoError(t, err)
	}
	files, err := l.GetFiles(ctx, r.FolderID)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestOwnerIndexAndBalance(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	for _, name := range []string{"a", "b", "c"} {
		_, err := l.MintFolder(ctx, alice, name, model.FolderTypeAgent, false)
		require.NoError(t, err)
	}
	_, err := l.MintFolder(ctx, bob, "d", model.FolderTypeAgent, false)
	require.NoError(t, err)

	ids, err := l.GetFoldersOwnedBy(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, ids)

	owner, err := l.OwnerOf(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, bob, owner)

	bal, err := l.BalanceOf(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), bal)

	bal, err = l.BalanceOf(ctx, "0x0000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestSearchByTag(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	r, err := l.MintFolder(ctx, alice, "Docs", model.FolderTypeWork, false)
	require.NoError(t, err)
	_, err = l.AddFile(ctx, alice, r.FolderID, "cid1", "a.pdf", []string{"pdf", "agent-upload"})
	require.NoError(t, err)
	_, err = l.AddFile(ctx, alice, r.FolderID, "cid2", "b.txt", []string{"txt", "agent-upload"})
	require.NoError(t, err)

	pdfs, err := l.SearchByTag(ctx, "pdf")
	require.NoError(t, err)
	require.Len(t, pdfs, 1)
	assert.Equal(t, "cid1", pdfs[0].ContentID)

	all, err := l.SearchByTag(ctx, "agent-upload")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := l.SearchByTag(ctx, "png")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchByTagWithSeparatorInTag(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	r, err := l.MintFolder(ctx, alice, "Docs", model.FolderTypeWork, false)
	require.NoError(t, err)
	_, err = l.AddFile(ctx, alice, r.FolderID, "cid1", "x.a:b", []string{"a:b", "agent-upload"})
	require.NoError(t, err)

	none, err := l.SearchByTag(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, none)

	hits, err := l.SearchByTag(ctx, "a:b")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "cid1", hits[0].ContentID)
}
