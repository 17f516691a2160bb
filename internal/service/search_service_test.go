package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"agent-vault-go/internal/model"
	"agent-vault-go/pkg/search"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearch struct {
	hits []model.SearchHit
	err  error
}

func (s stubSearch) Search(context.Context, string, string) ([]model.SearchHit, error) {
	return s.hits, s.err
}

func TestSearchByPrompt(t *testing.T) {
	svc := NewSearchService(stubSearch{hits: []model.SearchHit{{Filename: "a.txt"}}})
	hits, err := svc.SearchByPrompt(context.Background(), "receipts", "")
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	_, err = svc.SearchByPrompt(context.Background(), "   ", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSearchByPromptUnavailable(t *testing.T) {
	svc := NewSearchService(stubSearch{err: fmt.Errorf("%w: connection refused", search.ErrUnavailable)})
	_, err := svc.SearchByPrompt(context.Background(), "receipts", "")
	assert.ErrorIs(t, err, ErrSearchUnavailable)

	_, err = NewSearchService(nil).SearchByPrompt(context.Background(), "receipts", "")
	assert.ErrorIs(t, err, ErrSearchUnavailable)

	other := errors.New("bad request")
	_, err = NewSearchService(stubSearch{err: other}).SearchByPrompt(context.Background(), "receipts", "")
	assert.ErrorIs(t, err, other)
}
