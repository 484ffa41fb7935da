package runall

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunAllSucceed(t *testing.T) {
	var ran atomic.Int32

	ok, failures := Run(context.Background(), map[string]Task{
		"one": func(context.Context) error { ran.Add(1); return nil },
		"two": func(context.Context) error { ran.Add(1); return nil },
	})

	require.True(t, ok)
	require.Empty(t, failures)
	require.Equal(t, int32(2), ran.Load())
}

func TestRunCollectsEveryFailureByName(t *testing.T) {
	errOne := errors.New("one failed")
	errTwo := errors.New("two failed")

	var survivorRan atomic.Bool

	ok, failures := Run(context.Background(), map[string]Task{
		"one":      func(context.Context) error { return errOne },
		"two":      func(context.Context) error { return errTwo },
		"survivor": func(context.Context) error { survivorRan.Store(true); return nil },
	})

	require.False(t, ok)
	require.Len(t, failures, 2)
	require.ErrorIs(t, failures["one"], errOne)
	require.ErrorIs(t, failures["two"], errTwo)
	require.True(t, survivorRan.Load(), "a failing sibling must not cancel the others")
}

func TestRunEmptyTaskSet(t *testing.T) {
	ok, failures := Run(context.Background(), nil)

	require.True(t, ok)
	require.Empty(t, failures)
}
