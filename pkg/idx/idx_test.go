package idx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewAndParse(t *testing.T) {
	id := idx.New()
	require.False(t, id.IsZero())

	parsed, err := idx.Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"", "   ", "not-a-ulid"} {
		_, err := idx.Parse(s)
		require.ErrorIs(t, err, idx.ErrInvalid)
	}
}

func TestGenerator_Monotonic(t *testing.T) {
	g := idx.NewGenerator()
	at := time.Unix(1700000000, 0)

	prev := g.NewAt(at)
	for range 50 {
		next := g.NewAt(at)
		require.Less(t, prev.String(), next.String(), "ids in the same millisecond must still sort")
		prev = next
	}
}

func TestTimeExtraction(t *testing.T) {
	tm := time.Unix(1700000000, 0).UTC()
	id := idx.NewGenerator().NewAt(tm)

	require.WithinDuration(t, tm, id.Time(), time.Millisecond)
	require.True(t, idx.Zero.Time().IsZero())
}
