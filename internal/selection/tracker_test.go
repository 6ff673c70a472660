package selection

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectAllVisibleEmptyThenToggle(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.SelectAllVisible(nil)
	tr.Toggle(5, true)

	require.Equal(t, []int64{5}, tr.IDs())
}

func TestSelectAllVisibleReplaces(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.SelectAllVisible([]int64{1, 2, 3})
	tr.SelectAllVisible([]int64{4, 5})

	require.Equal(t, []int64{4, 5}, tr.IDs())
	require.False(t, tr.Contains(1))
}

func TestToggleNeverDuplicates(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.Toggle(9, true)
	tr.Toggle(9, true)
	tr.SelectAllVisible([]int64{3, 3, 9})
	require.Equal(t, 2, tr.Len())

	tr.Toggle(9, false)
	tr.Toggle(9, false)
	require.Equal(t, []int64{3}, tr.IDs())
}

func TestClear(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.SelectAllVisible([]int64{7, 8})
	tr.Clear()
	require.Zero(t, tr.Len())
	require.Empty(t, tr.IDs())
}

func TestRetainAny(t *testing.T) {
	t.Parallel()

	tr := New()
	require.False(t, tr.RetainAny([]int64{1}))

	tr.SelectAllVisible([]int64{1, 2})
	require.False(t, tr.RetainAny([]int64{2, 10, 11}))
	require.Equal(t, []int64{1, 2}, tr.IDs())

	require.True(t, tr.RetainAny([]int64{10, 11}))
	require.Zero(t, tr.Len())
}

func TestTrackerConcurrentToggles(t *testing.T) {
	t.Parallel()

	tr := New()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			tr.Toggle(id, true)
			_ = tr.Contains(id)
		}(int64(i))
	}
	wg.Wait()
	require.Equal(t, 50, tr.Len())
}
