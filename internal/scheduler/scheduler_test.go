package scheduler

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geopods/podflow/internal/units"
)

func constTask(v float64) Task {
	return func(ctx context.Context) (*units.Array, error) {
		a, err := units.New([]string{"x"}, []int{1})
		if err != nil {
			return nil, err
		}
		a.Values[0] = v
		return a, nil
	}
}

func TestRunPreservesDeclaredOrder(t *testing.T) {
	s := New(4)
	tasks := []Task{constTask(1), constTask(2), constTask(3)}
	results, err := s.Run(context.Background(), tasks)
	require.NoError(t, err)
	require.Equal(t, 1.0, results[0].Values[0])
	require.Equal(t, 2.0, results[1].Values[0])
	require.Equal(t, 3.0, results[2].Values[0])
}

func TestRunNeverExceedsThreadBudget(t *testing.T) {
	s := New(2)
	var concurrent int32
	var maxSeen int32
	task := func(ctx context.Context) (*units.Array, error) {
		cur := atomic.AddInt32(&concurrent, 1)
		for {
			seen := atomic.LoadInt32(&maxSeen)
			if cur <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, cur) {
				break
			}
		}
		atomic.AddInt32(&concurrent, -1)
		return units.New([]string{"x"}, []int{1})
	}
	tasks := make([]Task, 8)
	for i := range tasks {
		tasks[i] = task
	}
	_, err := s.Run(context.Background(), tasks)
	require.NoError(t, err)
	require.LessOrEqual(t, int(atomic.LoadInt32(&maxSeen)), 2)
}

func TestRunPropagatesTaskError(t *testing.T) {
	s := New(4)
	boom := errBoom{}
	tasks := []Task{
		constTask(1),
		func(ctx context.Context) (*units.Array, error) { return nil, boom },
	}
	_, err := s.Run(context.Background(), tasks)
	require.Error(t, err)
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func TestRunCancelledContext(t *testing.T) {
	s := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Run(ctx, []Task{constTask(1)})
	require.Error(t, err)
}
