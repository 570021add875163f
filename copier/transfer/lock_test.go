/*
 * Copyright 2026 Amazon.com, Inc. or its affiliates. All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License"). You
 * may not use this file except in compliance with the License. A copy of
 * the License is located at
 *
 * 	http://aws.amazon.com/apache2.0/
 *
 * or in the "license" file accompanying this file. This file is
 * distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF
 * ANY KIND, either express or implied. See the License for the specific
 * language governing permissions and limitations under the License.
 */

package transfer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLockExcludes(t *testing.T) {
	l := newKeyedLock()
	unlock, err := l.lock(context.Background(), "a")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		unlockB, err := l.lock(context.Background(), "a")
		assert.NoError(t, err)
		close(acquired)
		unlockB()
	}()

	select {
	case <-acquired:
		t.Fatal("key acquired twice")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-acquired

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.slots)
}

func TestKeyedLockIndependentKeys(t *testing.T) {
	l := newKeyedLock()
	unlockA, err := l.lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestKeyedLockCancelledWaiter(t *testing.T) {
	l := newKeyedLock()
	unlock, err := l.lock(context.Background(), "b")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.lock(ctx, "a", "b")
	assert.ErrorIs(t, err, context.Canceled)

	// "a" was released when the wait for "b" gave up.
	unlockA, err := l.lock(context.Background(), "a")
	require.NoError(t, err)
	unlockA()
	unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.slots)
}

func TestKeyedLockOppositeOrder(t *testing.T) {
	l := newKeyedLock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		keys := []string{"x", "y"}
		if i%2 == 1 {
			keys = []string{"y", "x", "y"}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.lock(ctx, keys...)
			if !assert.NoError(t, err) {
				return
			}
			time.Sleep(time.Millisecond)
			unlock()
		}()
	}
	wg.Wait()
}
