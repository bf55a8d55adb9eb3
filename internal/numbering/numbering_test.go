package numbering

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memorySource struct {
	numbers []string
	locked  []string
}

func (s *memorySource) LockScope(ctx context.Context, scope string) error {
	s.locked = append(s.locked, scope)
	return nil
}

func (s *memorySource) LatestNumber(ctx context.Context, scope string) (string, bool, error) {
	latest := ""
	for _, n := range s.numbers {
		if strings.HasPrefix(n, scope) && n > latest {
			latest = n
		}
	}
	return latest, latest != "", nil
}

func fixedClock(day string) func() time.Time {
	t, _ := time.Parse("20060102", day)
	return func() time.Time { return t }
}

func TestNextStartsAtOne(t *testing.T) {
	src := &memorySource{}
	gen := Generator{Prefix: "GI", Now: fixedClock("20260831")}

	number, err := gen.Next(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, "GI20260831001", number)
	require.Equal(t, []string{"GI20260831"}, src.locked)
}

func TestNextIncrementsWithinDay(t *testing.T) {
	src := &memorySource{numbers: []string{"GR20260831001", "GR20260831014"}}
	gen := Generator{Prefix: "GR", Now: fixedClock("20260831")}

	number, err := gen.Next(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, "GR20260831015", number)
}

func TestNextIgnoresOtherDaysAndPrefixes(t *testing.T) {
	src := &memorySource{numbers: []string{"GI20260830009", "GR20260831002"}}
	gen := Generator{Prefix: "GI", Now: fixedClock("20260831")}

	number, err := gen.Next(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, "GI20260831001", number)
}

func TestSequentialGenerationHasNoGaps(t *testing.T) {
	src := &memorySource{}
	gen := Generator{Prefix: "GI", Now: fixedClock("20260831")}

	for i := 1; i <= 12; i++ {
		number, err := gen.Next(context.Background(), src)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("GI20260831%03d", i), number)
		src.numbers = append(src.numbers, number)
	}
}

func TestScopeKeyIsStable(t *testing.T) {
	require.Equal(t, ScopeKey("GI20260831"), ScopeKey("GI20260831"))
	require.NotEqual(t, ScopeKey("GI20260831"), ScopeKey("GR20260831"))
}
