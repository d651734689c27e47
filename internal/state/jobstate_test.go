// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestJobStateCloseWithNothingInFlight(t *testing.T) {
	chk := require.New(t)
	var js JobState
	js.Init()

	chk.False(isClosed(js.Done()))
	js.Close()
	chk.True(isClosed(js.Done()))
	chk.PanicsWithValue("job is closed and no longer accepts tasks", js.PanicIfClosed)
}

func TestJobStateDoneAfterLastTask(t *testing.T) {
	chk := require.New(t)
	var js JobState
	js.Init()

	js.IncrementTasks()
	js.IncrementTasks()
	js.Close()
	chk.True(js.HasTasks())
	chk.False(isClosed(js.Done()))

	js.DecrementTasks()
	chk.False(isClosed(js.Done()))
	js.DecrementTasks()
	chk.False(js.HasTasks())
	chk.True(isClosed(js.Done()))
}

func TestJobStateOpenJobNeverDone(t *testing.T) {
	chk := require.New(t)
	var js JobState
	js.Init()

	js.IncrementTasks()
	js.DecrementTasks()
	chk.False(isClosed(js.Done()))
	chk.NotPanics(js.PanicIfClosed)
}

func TestInFlightCounterLimit(t *testing.T) {
	chk := require.New(t)
	var c InFlightCounter

	chk.True(c.IncrementIfUnder(2))
	chk.True(c.IncrementIfUnder(2))
	chk.False(c.IncrementIfUnder(2))
	chk.Equal(2, c.Load())
	chk.False(c.Decrement())
	chk.True(c.IncrementIfUnder(-1))
	chk.Equal(2, c.Peak())
	chk.False(c.Decrement())
	chk.True(c.Decrement())
	chk.PanicsWithValue("there were no tasks in flight", func() { c.Decrement() })
}

func TestInFlightCounterConcurrentPeak(t *testing.T) {
	chk := require.New(t)
	var c InFlightCounter
	const limit = 3

	var wg sync.WaitGroup
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if c.IncrementIfUnder(limit) {
					c.Decrement()
				}
			}
		}()
	}
	wg.Wait()
	chk.True(c.IsZero())
	chk.LessOrEqual(c.Peak(), limit)
	chk.GreaterOrEqual(c.Peak(), 1)
}
