// Package summary condenses the results of set operations and the inputs they are computed from
// into human readable text and machine readable YAML or CBOR documents.
package summary

import (
	"fmt"
	"sort"

	"github.com/ajanusdev/pcapmath/canonical"
	"github.com/ajanusdev/pcapmath/capture"
	"github.com/ajanusdev/pcapmath/setAlgebra"
)

// CountMode selects what makes a key frequent.
type CountMode int8

const (
	// CountPresence counts the captures containing a key.
	CountPresence CountMode = iota
	// CountOccurrences counts the frames with a key.
	CountOccurrences
)

func (mode CountMode) String() string {
	switch mode {
	case CountPresence:
		return "presence"
	case CountOccurrences:
		return "occurrences"
	}
	return fmt.Sprintf("CountMode(%d)", int8(mode))
}

// ParseCountMode returns the CountMode named by s, either "presence" or "occurrences".
func ParseCountMode(s string) (CountMode, error) {
	switch s {
	case "presence":
		return CountPresence, nil
	case "occurrences":
		return CountOccurrences, nil
	}
	return 0, fmt.Errorf("unknown count mode %q", s)
}

// Item is one frequent key of a result.
//
//	Key			canonical.Key		- the canonical key
//	Count		int					- the count of the key in the selected CountMode
//	Frame		[]byte				- the bytes written for the key, canonical if the result is stripped
//	Timestamp	capture.Timestamp	- the timestamp of the representative frame
type Item struct {
	Key       canonical.Key
	Count     int
	Frame     []byte
	Timestamp capture.Timestamp
}

// TopK is a public function to find the most frequent keys of a result.
//
// Takes:
//	result	*setAlgebra.OperationResult	- the result to summarize
//	k		int							- the maximum number of items, all keys if below 1
//	mode	CountMode					- what is counted
//
// Returns:
//	[]Item	- the items by descending count, keys with the same count keep the order of the result
func TopK(result *setAlgebra.OperationResult, k int, mode CountMode) []Item {
	items := make([]Item, 0, result.Len())
	for _, entry := range result.Entries() {
		count := entry.Count
		if mode == CountOccurrences {
			count = entry.Occurrences
		}

		frame := []byte(entry.Frame)
		if result.Stripped() {
			frame = entry.Canonical
		}

		items = append(items, Item{
			Key:       entry.Key,
			Count:     count,
			Frame:     frame,
			Timestamp: entry.Timestamp,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Count > items[j].Count
	})

	if k > 0 && k < len(items) {
		items = items[:k]
	}
	return items
}
