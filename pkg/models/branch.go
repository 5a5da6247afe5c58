package models

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

// NextBranch is the branch name for the linear "advance without a choice"
// continuation.
const NextBranch = "__next__"

// BranchKey builds a branch cache key. The index is the page the continuation
// starts from; a key at index i produces page i+1. Branch is either
// NextBranch or an option id, neither of which contains '.' or '$', so keys
// are safe as document map keys.
func BranchKey(index int, branch string) string {
	return strconv.Itoa(index) + ":" + branch
}

// NextKey returns the linear continuation key for the given page index.
func NextKey(index int) string {
	return BranchKey(index, NextBranch)
}

// ParseBranchKey splits a branch cache key into its page index and branch
// name. ok is false for keys that do not match the "<index>:<branch>" form.
func ParseBranchKey(key string) (index int, branch string, ok bool) {
	sep := strings.IndexByte(key, ':')
	if sep < 1 || sep == len(key)-1 {
		return 0, "", false
	}
	idx, err := strconv.Atoi(key[:sep])
	if err != nil {
		return 0, "", false
	}
	return idx, key[sep+1:], true
}

// MakeOptionID derives the stable identifier for an option shown on the page
// at baseIndex. The id embeds a 32-bit FNV-1a hash of the option text seeded
// by the index, so identical (index, text) pairs always map to the same id.
// Ids are assigned at commit time and never recomputed.
func MakeOptionID(baseIndex int, text string) string {
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%d:%s", baseIndex, text)
	return fmt.Sprintf("%d-%08x", baseIndex, h.Sum32())
}
