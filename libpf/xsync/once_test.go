// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package xsync_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/ilstack/libpf/xsync"
)

func TestOnceRetriesAfterError(t *testing.T) {
	once := xsync.Once[int]{}
	failure := errors.New("not yet")

	assert.Nil(t, once.Get())

	val, err := once.GetOrInit(func() (int, error) { return 0, failure })
	require.ErrorIs(t, err, failure)
	assert.Nil(t, val)
	assert.Nil(t, once.Get())

	val, err = once.GetOrInit(func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, *val)

	val, err = once.GetOrInit(func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, *val)
	assert.Equal(t, 42, *once.Get())
}

func TestOnceConcurrentInit(t *testing.T) {
	once := xsync.Once[*int]{}
	calls := atomic.Uint32{}
	wg := sync.WaitGroup{}
	results := make([]*int, 32)

	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, err := once.GetOrInit(func() (*int, error) {
				calls.Add(1)
				v := 1
				return &v, nil
			})
			assert.NoError(t, err)
			results[i] = *val
		}()
	}
	wg.Wait()

	assert.Equal(t, uint32(1), calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}
