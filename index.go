package linesearch

import (
	"fmt"
	"sort"
	"strings"
)

// Mode selects the lookup structure an Engine prepares.
type Mode string

// Supported search modes.
const (
	ModeNaive    Mode = "naive"     // linear scan, O(n)
	ModeSet      Mode = "set"       // hash set, O(1) average
	ModeDict     Mode = "dict"      // line -> true, O(1) average
	ModeIndexMap Mode = "index_map" // line -> first index, O(1) average
	ModeBinary   Mode = "binary"    // sorted copy, O(log n)
	ModeTrie     Mode = "trie"      // prefix tree, O(len(target))
)

// Modes returns every supported mode.
func Modes() []Mode {
	return []Mode{ModeNaive, ModeSet, ModeDict, ModeIndexMap, ModeBinary, ModeTrie}
}

var modeAliases = map[string]Mode{
	"naive":           ModeNaive,
	"linear":          ModeNaive,
	"linear search":   ModeNaive,
	"set":             ModeSet,
	"hash set":        ModeSet,
	"hash set search": ModeSet,
	"dict":            ModeDict,
	"hash map":        ModeDict,
	"index_map":       ModeIndexMap,
	"index map":       ModeIndexMap,
	"binary":          ModeBinary,
	"binary search":   ModeBinary,
	"trie":            ModeTrie,
	"trie search":     ModeTrie,
}

// ParseMode resolves a mode name, case-insensitively. Besides the canonical
// names it accepts the long algorithm names ("binary search", "trie search", ...).
func ParseMode(name string) (Mode, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if m, ok := modeAliases[key]; ok {
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown search mode %q", ErrInvalidArgument, name)
}

// Index is a prepared lookup structure over a corpus.
type Index interface {
	Mode() Mode
	Contains(target string) bool
}

// newIndex builds the structure for mode over lines. lines is not retained
// by modes that copy or transform it.
func newIndex(mode Mode, lines []string) (Index, error) {
	switch mode {
	case ModeNaive:
		return naiveIndex(lines), nil
	case ModeSet:
		return newSetIndex(lines), nil
	case ModeDict:
		return newDictIndex(lines), nil
	case ModeIndexMap:
		return newIndexMap(lines), nil
	case ModeBinary:
		sorted := make([]string, len(lines))
		copy(sorted, lines)
		sort.Strings(sorted)
		return newSortedIndex(sorted)
	case ModeTrie:
		return newTrie(lines), nil
	default:
		return nil, fmt.Errorf("%w: unknown search mode %q", ErrInvalidArgument, mode)
	}
}

type naiveIndex []string

func (naiveIndex) Mode() Mode { return ModeNaive }

func (ix naiveIndex) Contains(target string) bool {
	for _, l := range ix {
		if l == target {
			return true
		}
	}
	return false
}

type setIndex map[string]struct{}

func newSetIndex(lines []string) setIndex {
	ix := make(setIndex, len(lines))
	for _, l := range lines {
		ix[l] = struct{}{}
	}
	return ix
}

func (setIndex) Mode() Mode { return ModeSet }

func (ix setIndex) Contains(target string) bool {
	_, ok := ix[target]
	return ok
}

type dictIndex map[string]bool

func newDictIndex(lines []string) dictIndex {
	ix := make(dictIndex, len(lines))
	for _, l := range lines {
		ix[l] = true
	}
	return ix
}

func (dictIndex) Mode() Mode { return ModeDict }

func (ix dictIndex) Contains(target string) bool {
	return ix[target]
}

// IndexMap maps each distinct line to the index of its first occurrence.
type IndexMap map[string]int

func newIndexMap(lines []string) IndexMap {
	ix := make(IndexMap, len(lines))
	for i, l := range lines {
		if _, ok := ix[l]; !ok {
			ix[l] = i
		}
	}
	return ix
}

// Mode implements Index.
func (IndexMap) Mode() Mode { return ModeIndexMap }

// Contains implements Index.
func (ix IndexMap) Contains(target string) bool {
	_, ok := ix[target]
	return ok
}

// Position returns the corpus index of the first line equal to target.
func (ix IndexMap) Position(target string) (int, bool) {
	i, ok := ix[target]
	return i, ok
}

// sortedIndex holds lines in ascending byte order.
type sortedIndex []string

// newSortedIndex wraps lines, which must already be sorted ascending.
// Unsorted input is rejected rather than served with wrong answers.
func newSortedIndex(lines []string) (sortedIndex, error) {
	if !sort.StringsAreSorted(lines) {
		return nil, fmt.Errorf("%w: binary search requires sorted input", ErrInvalidArgument)
	}
	return sortedIndex(lines), nil
}

func (sortedIndex) Mode() Mode { return ModeBinary }

func (ix sortedIndex) Contains(target string) bool {
	lo, hi := 0, len(ix)-1
	for lo <= hi {
		mid := int(uint(lo+hi) >> 1)
		switch {
		case ix[mid] == target:
			return true
		case ix[mid] < target:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return false
}
