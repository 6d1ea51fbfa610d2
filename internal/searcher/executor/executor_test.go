package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

func buildIndex(t testing.TB, docs []indexer.Source) *index.Index {
	t.Helper()
	idx, err := indexer.NewBuilder(config.Default().Index).Build(docs)
	require.NoError(t, err)
	return idx
}

func sdkIndex(t testing.TB) *index.Index {
	return buildIndex(t, []indexer.Source{
		{Title: "Mouse", Body: "click move_to get_position", Anchor: "#mouse", Kind: index.KindClass},
		{Title: "Keyboard", Body: "type_string hold_key", Anchor: "#keyboard", Kind: index.KindClass},
	})
}

func TestSearchExamples(t *testing.T) {
	idx := sdkIndex(t)

	got, err := Search(idx, "click", 20)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "#mouse", got[0].Document.Anchor)
	assert.Greater(t, got[0].Score, 0.0)
	assert.False(t, got[0].Partial)

	got, err = Search(idx, "move", 20)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "#mouse", got[0].Document.Anchor)

	got, err = Search(idx, "nonexistent", 20)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Search(idx, "", 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = Search(idx, "click", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))

	_, err = Search(idx, "click", -3)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
}

func TestSearchStopWordsOnlyQuery(t *testing.T) {
	got, err := Search(sdkIndex(t), "to the of", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchConjunctiveScoring(t *testing.T) {
	idx := buildIndex(t, []indexer.Source{
		{Title: "Mouse", Body: "click move_to", Anchor: "#mouse", Kind: index.KindClass},
		{Title: "click", Body: "mouse mouse", Anchor: "#click", Kind: index.KindMethod},
		{Title: "Keyboard", Body: "click", Anchor: "#keyboard", Kind: index.KindClass},
	})
	res, err := New(config.Default().Search).Execute(context.Background(), idx, "mouse click", 10)
	require.NoError(t, err)

	assert.False(t, res.Partial)
	assert.Equal(t, 2, res.TotalHits)
	require.Len(t, res.Results, 2)
	// #mouse: title mouse 2 + body click 1; #click: title click 2 + body mouse 2.
	assert.Equal(t, "#click", res.Results[0].Document.Anchor)
	assert.Equal(t, 4.0, res.Results[0].Score)
	assert.Equal(t, "#mouse", res.Results[1].Document.Anchor)
	assert.Equal(t, 3.0, res.Results[1].Score)
	assert.Equal(t, map[string]int{"mouse": 2, "click": 3}, res.TermStats)
}

func TestSearchFallsBackToPartialMatches(t *testing.T) {
	idx := sdkIndex(t)
	res, err := New(config.Default().Search).Execute(context.Background(), idx, "mouse keyboard", 10)
	require.NoError(t, err)

	assert.True(t, res.Partial)
	require.Len(t, res.Results, 2)
	for _, r := range res.Results {
		assert.True(t, r.Partial)
		assert.Equal(t, 1.0, r.Score, "title weight 2 halved")
	}
	assert.Equal(t, 0, res.Results[0].Document.ID, "ties break on lower id")
	assert.Equal(t, 1, res.Results[1].Document.ID)
}

func TestSearchPartialFactorIsConfigurable(t *testing.T) {
	cfg := config.Default().Search
	cfg.PartialMatchFactor = 0.25
	res, err := New(cfg).Execute(context.Background(), sdkIndex(t), "mouse keyboard", 10)
	require.NoError(t, err)
	assert.Equal(t, 0.5, res.Results[0].Score)
}

func TestSearchRepeatedTermCountsOnce(t *testing.T) {
	res, err := New(config.Default().Search).Execute(context.Background(), sdkIndex(t), "click click", 10)
	require.NoError(t, err)
	assert.False(t, res.Partial)
	assert.Len(t, res.Results, 1)
}

func TestSearchExclusion(t *testing.T) {
	idx := buildIndex(t, []indexer.Source{
		{Title: "Mouse", Body: "click move_to", Anchor: "#mouse", Kind: index.KindClass},
		{Title: "Client", Body: "click_confirm keyboard", Anchor: "#client", Kind: index.KindClass},
	})
	got, err := Search(idx, "click -keyboard", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "#mouse", got[0].Document.Anchor)

	got, err = Search(idx, "-click", 10)
	require.NoError(t, err)
	assert.Empty(t, got, "exclusions alone select nothing")
}

func TestSearchLimitTruncates(t *testing.T) {
	docs := make([]indexer.Source, 0, 30)
	for i := 0; i < 30; i++ {
		docs = append(docs, indexer.Source{
			Title:  fmt.Sprintf("spell_%d", i),
			Body:   "cast",
			Anchor: fmt.Sprintf("#spell-%d", i),
			Kind:   index.KindFunction,
		})
	}
	idx := buildIndex(t, docs)
	res, err := New(config.Default().Search).Execute(context.Background(), idx, "spell", 5)
	require.NoError(t, err)
	assert.Equal(t, 30, res.TotalHits)
	require.Len(t, res.Results, 5)
	for i, r := range res.Results {
		assert.Equal(t, i, r.Document.ID)
	}
}

func TestSearchIsIdempotent(t *testing.T) {
	idx := sdkIndex(t)
	first, err := Search(idx, "mouse keyboard click", 10)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Search(idx, "mouse keyboard click", 10)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSearchConcurrentReaders(t *testing.T) {
	idx := sdkIndex(t)
	want, err := Search(idx, "mouse click", 10)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got, err := Search(idx, "mouse click", 10)
				assert.NoError(t, err)
				assert.Equal(t, want, got)
			}
		}()
	}
	wg.Wait()
}

func TestSearchWithoutIndex(t *testing.T) {
	_, err := Search(nil, "click", 10)
	assert.True(t, errors.Is(err, apperrors.ErrUnavailable))
}

func BenchmarkSearch(b *testing.B) {
	docs := make([]indexer.Source, 0, 5000)
	words := []string{"battle", "card", "client", "mouse", "keyboard", "window", "pixel", "spell"}
	for i := 0; i < 5000; i++ {
		docs = append(docs, indexer.Source{
			Title:  fmt.Sprintf("%s_%d", words[i%len(words)], i),
			Body:   fmt.Sprintf("%s %s", words[(i+3)%len(words)], words[(i*5)%len(words)]),
			Anchor: fmt.Sprintf("#o%d", i),
			Kind:   index.KindMethod,
		})
	}
	idx := buildIndex(b, docs)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Search(idx, "mouse client", 20); err != nil {
			b.Fatal(err)
		}
	}
}
