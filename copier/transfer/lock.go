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
	"slices"
	"sync"
)

// keyedLock is a set of mutexes addressed by name. Unlike sync.Mutex a
// waiter gives up when its context is done.
type keyedLock struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

// lockSlot holds a token while its key is free. waiters counts the callers
// holding or waiting for the key, so that idle slots can be dropped.
type lockSlot struct {
	token   chan struct{}
	waiters int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{slots: map[string]*lockSlot{}}
}

// lock acquires every key in keys, in sorted order so that two callers
// sharing keys cannot deadlock. The returned function releases them all.
// When ctx is done first, the keys taken so far are released and ctx's
// error is returned.
func (l *keyedLock) lock(ctx context.Context, keys ...string) (func(), error) {
	keys = slices.Compact(slices.Sorted(slices.Values(keys)))
	held := make([]string, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
	}
	for _, key := range keys {
		if err := l.acquire(ctx, key); err != nil {
			release()
			return nil, err
		}
		held = append(held, key)
	}
	return release, nil
}

func (l *keyedLock) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{token: make(chan struct{}, 1)}
		slot.token <- struct{}{}
		l.slots[key] = slot
	}
	slot.waiters++
	l.mu.Unlock()

	select {
	case <-slot.token:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		l.drop(key, slot)
		l.mu.Unlock()
		return ctx.Err()
	}
}

func (l *keyedLock) unlock(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		panic("transfer: unlock of unlocked key " + key)
	}
	slot.token <- struct{}{}
	l.drop(key, slot)
}

// drop forgets slot once nobody holds or waits for it. l.mu must be held.
func (l *keyedLock) drop(key string, slot *lockSlot) {
	slot.waiters--
	if slot.waiters == 0 {
		delete(l.slots, key)
	}
}
