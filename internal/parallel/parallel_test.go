package parallel

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 16}

	var counter int64
	seen := make([]bool, 1000)
	For(len(seen), func(i int) {
		atomic.AddInt64(&counter, 1)
		seen[i] = true
	}, cfg)

	assert.Equal(t, int64(len(seen)), counter)
	assert.NotContains(t, seen, false)
}

func TestChunksCoverRangeOnce(t *testing.T) {
	tests := []struct {
		name string
		n    int
		cfg  Config
		min  int // lower bound on the number of chunks
	}{
		{"disabled", 100, Config{Enabled: false, NumWorkers: 4, MinChunkSize: 1}, 1},
		{"small", 10, Config{Enabled: true, NumWorkers: 4, MinChunkSize: 8}, 1},
		{"split", 1000, Config{Enabled: true, NumWorkers: 4, MinChunkSize: 8}, 4},
		{"chunk floor", 100, Config{Enabled: true, NumWorkers: 64, MinChunkSize: 30}, 3},
		{"empty", 0, DefaultConfig(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mu sync.Mutex
			hits := make([]int, tt.n)
			chunks := 0
			Chunks(tt.n, func(start, end int) {
				mu.Lock()
				defer mu.Unlock()
				chunks++
				assert.GreaterOrEqual(t, end-start, 1)
				for i := start; i < end; i++ {
					hits[i]++
				}
			}, tt.cfg)

			for i, h := range hits {
				assert.Equal(t, 1, h, "index %d", i)
			}
			assert.GreaterOrEqual(t, chunks, tt.min)
		})
	}
}

func TestChunksSequentialIsOneChunk(t *testing.T) {
	var calls int
	Chunks(50, func(start, end int) {
		calls++
		assert.Equal(t, 0, start)
		assert.Equal(t, 50, end)
	}, Config{Enabled: false})
	assert.Equal(t, 1, calls)
}
