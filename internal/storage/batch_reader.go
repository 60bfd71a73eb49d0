package storage

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BatchReader coordinates parallel reads from object storage.
type BatchReader struct {
	storage     ObjectStorage
	concurrency int
}

// BatchResult contains the outcome of a batch read.
type BatchResult struct {
	Objects map[string][]byte
	Errors  map[string]error
}

// NewBatchReader creates a new batch reader.
// storage: the ObjectStorage implementation to read from
// concurrency: maximum number of parallel reads
func NewBatchReader(storage ObjectStorage, concurrency int) *BatchReader {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BatchReader{
		storage:     storage,
		concurrency: concurrency,
	}
}

// Read fetches every object in objectPaths. Successful reads land in
// Objects, failed ones in Errors; a failed read does not stop the others.
func (b *BatchReader) Read(ctx context.Context, objectPaths []string) *BatchResult {
	result := &BatchResult{
		Objects: make(map[string][]byte, len(objectPaths)),
		Errors:  make(map[string]error),
	}
	if len(objectPaths) == 0 {
		return result
	}

	sem := semaphore.NewWeighted(int64(b.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, p := range objectPaths {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled or semaphore failed
			mu.Lock()
			result.Errors[p] = fmt.Errorf("semaphore acquire failed: %w", err)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(path string) {
			defer sem.Release(1)
			defer wg.Done()

			data, _, err := b.storage.Get(ctx, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[path] = err
				return
			}
			result.Objects[path] = data
		}(p)
	}

	wg.Wait()
	return result
}
