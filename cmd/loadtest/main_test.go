package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Equal(t, time.Duration(1), percentile(sorted, 0))
	assert.Equal(t, time.Duration(0), percentile(nil, 50))
}

func TestLoadQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.txt")
	require.NoError(t, os.WriteFile(path, []byte("# api\nmouse click\n\n  keyboard  \n"), 0o644))

	got, err := loadQueries(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"mouse click", "keyboard"}, got)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing\n"), 0o644))
	_, err = loadQueries(empty)
	assert.Error(t, err)
}

func TestRunLoadTestRecordsTiers(t *testing.T) {
	var served atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if served.Add(1)%2 == 0 {
			w.Write([]byte(`{"total_hits":0,"partial":false,"cache":"local"}`))
			return
		}
		w.Write([]byte(`{"total_hits":3,"partial":true}`))
	}))
	defer srv.Close()

	stats := runLoadTest(Config{
		BaseURL:     srv.URL,
		Concurrency: 2,
		Duration:    100 * time.Millisecond,
		RPS:         200,
		Limit:       5,
		Queries:     []string{"mouse"},
	})

	require.Positive(t, stats.totalRequests.Load())
	assert.Zero(t, stats.errorCount.Load())
	assert.Positive(t, stats.partial.Load())
	_, ok := stats.tiers.Load("none")
	assert.True(t, ok)
}
