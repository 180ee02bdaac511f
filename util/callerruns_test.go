package util

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallerRunsPoolExecutesAll(t *testing.T) {
	pool := NewCallerRunsPool(4, 16)

	var count atomic.Int64

	var wg sync.WaitGroup

	for i := 0; i < 1000; i++ {
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			count.Add(1)
		})
	}

	wg.Wait()
	pool.Close()

	assert.Equal(t, int64(1000), count.Load())
}

func TestCallerRunsPoolOverflowRunsOnCaller(t *testing.T) {
	// One worker blocked forever, queue depth one: the third submit must run
	// inline on this goroutine.
	block := make(chan struct{})
	pool := NewCallerRunsPool(1, 1)

	pool.Submit(func() { <-block })
	pool.Submit(func() {}) // sits in the queue

	ran := false

	pool.Submit(func() { ran = true })

	assert.True(t, ran)

	close(block)
	pool.Close()
}

func TestCallerRunsPoolSubmitAfterClose(t *testing.T) {
	pool := NewCallerRunsPool(1, 1)
	pool.Close()

	ran := false

	pool.Submit(func() { ran = true })
	assert.True(t, ran)
}
