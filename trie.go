package linesearch

import "unicode/utf8"

// trieNode is one character of a stored line. terminal marks the end of a
// complete line.
type trieNode struct {
	children map[rune]*trieNode
	terminal bool
}

type trie struct {
	root *trieNode
}

func newTrie(lines []string) *trie {
	t := &trie{root: &trieNode{}}
	for _, l := range lines {
		t.insert(l)
	}
	return t
}

func (t *trie) insert(line string) {
	n := t.root
	for i := 0; i < len(line); {
		r, size := trieKey(line[i:])
		i += size
		child, ok := n.children[r]
		if !ok {
			if n.children == nil {
				n.children = make(map[rune]*trieNode)
			}
			child = &trieNode{}
			n.children[r] = child
		}
		n = child
	}
	n.terminal = true
}

func (*trie) Mode() Mode { return ModeTrie }

// Contains walks one node per character of target.
func (t *trie) Contains(target string) bool {
	n := t.root
	for i := 0; i < len(target); {
		r, size := trieKey(target[i:])
		i += size
		n = n.children[r]
		if n == nil {
			return false
		}
	}
	return n.terminal
}

// trieKey decodes the first character of s. Invalid bytes get a distinct
// negative key each, so lookups stay byte-exact on malformed UTF-8.
func trieKey(s string) (rune, int) {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError && size == 1 {
		return -rune(s[0]) - 1, 1
	}
	return r, size
}
