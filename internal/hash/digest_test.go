package hash

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/reach/types"
)

func TestDigest(t *testing.T) {
	t.Run("order and duplicates do not matter", func(t *testing.T) {
		a := Digest([]types.CourseID{3, 1, 2})
		b := Digest([]types.CourseID{1, 2, 3, 3})
		require.Equal(t, a, b)
		require.Len(t, a, 16)
	})

	t.Run("different sets differ", func(t *testing.T) {
		require.NotEqual(t, Digest([]types.CourseID{1, 2}), Digest([]types.CourseID{1, 2, 3}))
	})

	t.Run("empty set is stable", func(t *testing.T) {
		require.Equal(t, Digest[types.GroupID](nil), Digest([]types.GroupID{}))
	})

	t.Run("does not mutate input", func(t *testing.T) {
		in := []types.UserID{3, 1, 2}
		_ = Digest(in)
		require.Equal(t, []types.UserID{3, 1, 2}, in)
	})
}
