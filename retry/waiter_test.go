// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/gogama/httpq/request"
	"github.com/stretchr/testify/assert"
)

func TestDefaultWaiter(t *testing.T) {
	max := []time.Duration{
		50 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1 * time.Second,
		1 * time.Second,
	}
	r, err := request.New("GET", "http://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	e := r.Execution()
	for i := range max {
		e.Retries = i
		wait := DefaultWaiter.Wait(e)
		assert.GreaterOrEqual(t, wait, time.Duration(0))
		assert.LessOrEqual(t, wait, max[i])
	}
	r.Priority = request.Critical
	assert.Equal(t, time.Duration(0), DefaultWaiter.Wait(e))
}

func TestNewFixedWaiter(t *testing.T) {
	w := NewFixedWaiter(3 * time.Second)
	assert.Equal(t, 3*time.Second, w.Wait(&request.Execution{}))
	assert.Equal(t, 3*time.Second, w.Wait(&request.Execution{Retries: 9}))
}

func TestBackoff(t *testing.T) {
	base, max := time.Millisecond, time.Hour
	t.Run("no base", func(t *testing.T) {
		assert.Equal(t, time.Duration(0), Backoff{Max: max}.Wait(&request.Execution{Retries: 3}))
		assert.Equal(t, time.Duration(0), Backoff{Base: -1, Jitter: true}.Wait(&request.Execution{}))
	})
	t.Run("max below base", func(t *testing.T) {
		b := Backoff{Base: time.Second, Max: time.Millisecond}
		assert.Equal(t, time.Second, b.Wait(&request.Execution{}))
		assert.Equal(t, time.Second, b.Wait(&request.Execution{Retries: 4}))
	})
	t.Run("no jitter", func(t *testing.T) {
		b := Backoff{Base: base, Max: max}
		for i := 0; i < 10; i++ {
			assert.Equal(t, time.Duration(1<<i)*time.Millisecond, b.Wait(&request.Execution{Retries: i}))
		}
		assert.Equal(t, max, b.Wait(&request.Execution{Retries: 25}))
		assert.Equal(t, max, b.Wait(&request.Execution{Retries: 63}))
		assert.Equal(t, max, b.Wait(&request.Execution{Retries: math.MaxInt}))
	})
	t.Run("with jitter", func(t *testing.T) {
		b := Backoff{Base: base, Max: max, Jitter: true}
		for i := 0; i < 100; i++ {
			ceil := max
			if i < 22 {
				ceil = time.Duration(1<<i) * time.Millisecond
			}
			d := b.Wait(&request.Execution{Retries: i})
			assert.GreaterOrEqual(t, d, time.Duration(0))
			assert.Less(t, d, ceil)
		}
	})
	t.Run("concurrent", func(t *testing.T) {
		b := Backoff{Base: base, Max: max, Jitter: true}
		var wg sync.WaitGroup
		var mu sync.Mutex
		var total time.Duration
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 22; j++ {
					d := b.Wait(&request.Execution{Retries: j})
					mu.Lock()
					total += d
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Greater(t, total, time.Duration(0))
	})
}

func TestByPriority(t *testing.T) {
	w := ByPriority(NewFixedWaiter(time.Second))
	testCases := []struct {
		p    request.Priority
		want time.Duration
	}{
		{request.Critical, 0},
		{request.High, 500 * time.Millisecond},
		{90, 500 * time.Millisecond},
		{request.Normal, time.Second},
		{60, time.Second},
		{request.Low, 2 * time.Second},
		{request.Redundant, 2 * time.Second},
	}
	for _, testCase := range testCases {
		t.Run(testCase.p.String(), func(t *testing.T) {
			r, err := request.New("GET", "http://example.com/")
			if err != nil {
				t.Fatal(err)
			}
			r.Priority = testCase.p
			assert.Equal(t, testCase.want, w.Wait(r.Execution()))
		})
	}
	assert.Equal(t, time.Second, w.Wait(&request.Execution{}), "no request")
}
