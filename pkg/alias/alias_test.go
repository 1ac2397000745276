package alias

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/tracesim/internal/model"
	tserrors "github.com/logflow/tracesim/pkg/errors"
)

func events(pairs ...[2]string) []model.RawEvent {
	out := make([]model.RawEvent, len(pairs))
	for i, p := range pairs {
		out[i] = model.RawEvent{CaseID: "c", Activity: p[0], Resource: p[1]}
	}
	return out
}

func TestBuild_DeterministicOrder(t *testing.T) {
	evs := events([2]string{"b", ""}, [2]string{"a", ""}, [2]string{"c", ""}, [2]string{"a", ""})
	tbl, err := Build(evs, Features{"activity"}, Options{Alphabet: "XYZ"})
	require.NoError(t, err)

	assert.Equal(t, 3, tbl.Len())
	for i, want := range []byte("XYZ") {
		got, ok := tbl.Lookup(Key{A: string(rune('a' + i))})
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestBuild_Injective(t *testing.T) {
	var evs []model.RawEvent
	for i := 0; i < 40; i++ {
		evs = append(evs, model.RawEvent{Activity: string(rune('A' + i%20)), Resource: string(rune('a' + i%3))})
	}
	tbl, err := Build(evs, Features{"activity", "resource"}, Options{Rand: rand.New(rand.NewSource(7))})
	require.NoError(t, err)

	seen := make(map[byte]Key)
	for _, k := range tbl.Keys() {
		s, ok := tbl.Lookup(k)
		require.True(t, ok)
		prev, dup := seen[s]
		assert.False(t, dup, "symbol %q shared by %v and %v", s, prev, k)
		seen[s] = k
	}
}

func TestBuild_SeedReproducible(t *testing.T) {
	evs := events([2]string{"x", ""}, [2]string{"y", ""}, [2]string{"z", ""}, [2]string{"w", ""})
	a, err := Build(evs, Features{"task"}, Options{Rand: rand.New(rand.NewSource(42))})
	require.NoError(t, err)
	b, err := Build(evs, Features{"task"}, Options{Rand: rand.New(rand.NewSource(42))})
	require.NoError(t, err)

	for _, k := range a.Keys() {
		sa, _ := a.Lookup(k)
		sb, _ := b.Lookup(k)
		assert.Equal(t, sa, sb)
	}
}

func TestBuild_PairedFeatures(t *testing.T) {
	evs := events([2]string{"a", "r1"}, [2]string{"a", "r2"})
	tbl, err := Build(evs, Features{"activity", "role"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())

	s1, _ := tbl.Symbol(&evs[0])
	s2, _ := tbl.Symbol(&evs[1])
	assert.NotEqual(t, s1, s2)
}

func TestBuild_Errors(t *testing.T) {
	evs := events([2]string{"a", ""}, [2]string{"b", ""}, [2]string{"c", ""})

	_, err := Build(evs, Features{"activity"}, Options{Alphabet: "XY"})
	assert.True(t, tserrors.IsCode(err, tserrors.CodeAlphabetExhausted))

	_, err = Build(evs, Features{}, Options{})
	assert.True(t, tserrors.IsCode(err, tserrors.CodeInvalidFeatures))

	_, err = Build(evs, Features{"a", "b", "c"}, Options{})
	assert.True(t, tserrors.IsCode(err, tserrors.CodeInvalidFeatures))

	_, err = Build(evs, Features{"activity"}, Options{Alphabet: "XYX"})
	assert.True(t, tserrors.IsCode(err, tserrors.CodeInvalidAlphabet))

	_, err = Build(evs, Features{"activity"}, Options{Alphabet: "X\tY"})
	assert.True(t, tserrors.IsCode(err, tserrors.CodeInvalidAlphabet))
}

func TestDefaultAlphabet(t *testing.T) {
	assert.Len(t, DefaultAlphabet, 94)
	assert.NoError(t, ValidateAlphabet(DefaultAlphabet))
}

func TestSymbol_AttributeLookup(t *testing.T) {
	ev := model.RawEvent{Activity: "a", Attributes: map[string]string{"channel": "web"}}
	tbl, err := Build([]model.RawEvent{ev}, Features{"channel"}, Options{})
	require.NoError(t, err)

	_, ok := tbl.Lookup(Key{A: "web"})
	assert.True(t, ok)
	_, ok = tbl.Symbol(&model.RawEvent{Attributes: map[string]string{"channel": "mail"}})
	assert.False(t, ok)
}

func TestBuild_UnknownFeature(t *testing.T) {
	evs := events([2]string{"Register", "clerk"}, [2]string{"Approve", "boss"}, [2]string{"Reject", "boss"})

	_, err := Build(evs, Features{"actvity"}, Options{})
	require.Error(t, err)
	assert.True(t, tserrors.IsCode(err, tserrors.CodeInvalidFeatures))

	_, err = Build(evs, Features{"activity", "rsource"}, Options{})
	assert.True(t, tserrors.IsCode(err, tserrors.CodeInvalidFeatures))

	// a known field resolves even when empty on every event
	evs = events([2]string{"Register", ""}, [2]string{"Approve", ""})
	tbl, err := Build(evs, Features{"activity", "resource"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
}
