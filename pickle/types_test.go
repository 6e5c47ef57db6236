package pickle_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prethora/skhub/pickle"
)

// setPickle is what protocol 4 writes for a set of terms: EMPTY_SET followed
// by ADDITEMS batches of 1000.
func setPickle(terms []string) string {
	var b strings.Builder
	b.WriteString("\x80\x04\x8f")
	for start := 0; start < len(terms); start += 1000 {
		end := min(start+1000, len(terms))
		b.WriteString("(")
		for _, term := range terms[start:end] {
			b.WriteString(shortUnicode(term))
		}
		b.WriteString("\x90")
	}
	b.WriteString(".")
	return b.String()
}

func vocabulary(n int) []string {
	terms := make([]string, n)
	for i := range terms {
		terms[i] = fmt.Sprintf("term-%06d", i)
	}
	return terms
}

func TestDecodeLargeSet(t *testing.T) {
	terms := vocabulary(50000)

	t.Run("set", func(t *testing.T) {
		start := time.Now()
		v := decodeString(t, setPickle(terms))
		assert.Less(t, time.Since(start), 5*time.Second)

		s, ok := v.(*pickle.Set)
		require.True(t, ok, "got %T", v)
		assert.Equal(t, len(terms), s.Len())
		assert.True(t, s.Contains("term-049999"))
		assert.False(t, s.Contains("term-050000"))
	})

	t.Run("frozenset", func(t *testing.T) {
		var b strings.Builder
		b.WriteString("\x80\x04(")
		for _, term := range terms {
			b.WriteString(shortUnicode(term))
		}
		b.WriteString("\x91.")

		start := time.Now()
		v := decodeString(t, b.String())
		assert.Less(t, time.Since(start), 5*time.Second)

		s, ok := v.(*pickle.FrozenSet)
		require.True(t, ok, "got %T", v)
		assert.Equal(t, len(terms), s.Len())
	})
}

func TestSet(t *testing.T) {
	s := &pickle.Set{}
	s.Add("a", int64(1), pickle.Tuple{int64(1), "x"}, nil)
	s.Add("a", int64(1), pickle.Tuple{int64(1), "x"}, nil, pickle.Tuple{int64(2)})

	assert.Equal(t, []any{"a", int64(1), pickle.Tuple{int64(1), "x"}, nil, pickle.Tuple{int64(2)}}, s.Items())
	assert.True(t, s.Contains(pickle.Tuple{int64(1), "x"}))
	assert.True(t, s.Contains(nil))
	assert.False(t, s.Contains("b"))
	assert.False(t, s.Contains(pickle.Tuple{int64(3)}))

	t.Run("zero value", func(t *testing.T) {
		var empty pickle.Set
		assert.False(t, empty.Contains("a"))
		assert.Equal(t, 0, empty.Len())
	})
}
