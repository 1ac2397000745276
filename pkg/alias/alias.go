// Package alias maps the distinct activity (and optionally resource)
// values of two event logs to one-character symbols, so that traces can be
// compared as short strings.
package alias

import (
	"math/rand"
	"sort"

	"github.com/logflow/tracesim/internal/model"
	tserrors "github.com/logflow/tracesim/pkg/errors"
)

// DefaultAlphabet holds the printable ASCII characters '!'..'~' in order.
var DefaultAlphabet = func() string {
	b := make([]byte, 0, '~'-'!'+1)
	for c := byte('!'); c <= '~'; c++ {
		b = append(b, c)
	}
	return string(b)
}()

// Features names the one or two event attributes whose values form a key.
type Features []string

// Paired reports whether keys combine two attributes.
func (f Features) Paired() bool {
	return len(f) == 2
}

// Validate checks the feature specification.
func (f Features) Validate() error {
	if len(f) == 0 || len(f) > 2 {
		return tserrors.New(tserrors.CodeInvalidFeatures, "features must name one or two attributes").
			WithContext("features", []string(f))
	}
	for _, name := range f {
		if name == "" {
			return tserrors.New(tserrors.CodeInvalidFeatures, "empty feature name")
		}
	}
	return nil
}

// Key identifies a behaviour: a single attribute value, or a pair of them.
type Key struct {
	A string
	B string
}

// KeyOf builds the key of an event under the given features.
func KeyOf(ev *model.RawEvent, f Features) Key {
	k := Key{A: ev.Attribute(f[0])}
	if f.Paired() {
		k.B = ev.Attribute(f[1])
	}
	return k
}

func (k Key) less(o Key) bool {
	if k.A != o.A {
		return k.A < o.A
	}
	return k.B < o.B
}

// Options control symbol assignment.
type Options struct {
	// Alphabet is the ordered symbol set. Empty means DefaultAlphabet.
	Alphabet string

	// Rand, when set, assigns a random permutation of the first n symbols
	// to the n sorted keys. When nil, the k-th sorted key gets the k-th
	// symbol.
	Rand *rand.Rand
}

// Table is an injective mapping from keys to symbols.
type Table struct {
	features Features
	keys     []Key
	symbols  map[Key]byte
}

// Build creates the alias table covering every key observed in events.
// Callers pass the concatenation of both logs so the same behaviour maps
// to the same symbol on both sides.
func Build(events []model.RawEvent, f Features, opts Options) (*Table, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	alphabet := opts.Alphabet
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	if err := ValidateAlphabet(alphabet); err != nil {
		return nil, err
	}

	if err := checkFeaturesPresent(events, f); err != nil {
		return nil, err
	}

	seen := make(map[Key]struct{})
	for i := range events {
		seen[KeyOf(&events[i], f)] = struct{}{}
	}
	keys := make([]Key, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	if len(keys) > len(alphabet) {
		return nil, tserrors.New(tserrors.CodeAlphabetExhausted, "more distinct feature keys than alphabet symbols").
			WithContext("keys", len(keys)).
			WithContext("alphabet", len(alphabet))
	}

	order := make([]int, len(keys))
	if opts.Rand != nil {
		order = opts.Rand.Perm(len(keys))
	} else {
		for i := range order {
			order[i] = i
		}
	}

	t := &Table{
		features: append(Features(nil), f...),
		keys:     keys,
		symbols:  make(map[Key]byte, len(keys)),
	}
	for i, k := range keys {
		t.symbols[k] = alphabet[order[i]]
	}
	return t, nil
}

// checkFeaturesPresent rejects feature names that no event carries, such as
// a misspelled column, which would otherwise map every event to one key.
func checkFeaturesPresent(events []model.RawEvent, f Features) error {
	for _, name := range f {
		found := false
		for i := range events {
			if _, ok := events[i].LookupAttribute(name); ok {
				found = true
				break
			}
		}
		if !found && len(events) > 0 {
			return tserrors.New(tserrors.CodeInvalidFeatures, "no event carries the feature attribute").
				WithContext("feature", name)
		}
	}
	return nil
}

// ValidateAlphabet checks that every symbol is a distinct printable ASCII
// character.
func ValidateAlphabet(alphabet string) error {
	var used [128]bool
	for i := 0; i < len(alphabet); i++ {
		c := alphabet[i]
		if c < ' ' || c > '~' {
			return tserrors.New(tserrors.CodeInvalidAlphabet, "alphabet must be printable ASCII").
				WithContext("position", i)
		}
		if used[c] {
			return tserrors.New(tserrors.CodeInvalidAlphabet, "duplicate alphabet symbol").
				WithContext("symbol", string(c))
		}
		used[c] = true
	}
	if len(alphabet) == 0 {
		return tserrors.New(tserrors.CodeInvalidAlphabet, "alphabet is empty")
	}
	return nil
}

// Symbol returns the symbol of an event.
func (t *Table) Symbol(ev *model.RawEvent) (byte, bool) {
	return t.Lookup(KeyOf(ev, t.features))
}

// Lookup returns the symbol of a key.
func (t *Table) Lookup(k Key) (byte, bool) {
	s, ok := t.symbols[k]
	return s, ok
}

// Keys returns the keys in canonical order.
func (t *Table) Keys() []Key {
	return append([]Key(nil), t.keys...)
}

// Features returns the feature specification the table was built with.
func (t *Table) Features() Features {
	return append(Features(nil), t.features...)
}

// Len returns the number of distinct keys.
func (t *Table) Len() int {
	return len(t.keys)
}
