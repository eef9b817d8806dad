package setAlgebra

import (
	"github.com/ajanusdev/pcapmath/canonical"
	"github.com/cespare/xxhash/v2"
)

// keyOccurrences holds every occurrence of one canonical key inside one capture.
//
//	key			canonical.Key		- the canonical key
//	occurrences	[]*FrameAndPosition	- the frames with this key in the order of their positions
type keyOccurrences struct {
	key         canonical.Key
	occurrences []*FrameAndPosition
}

// first returns the occurrence with the smallest position.
func (keyOccurrences *keyOccurrences) first() *FrameAndPosition {
	return keyOccurrences.occurrences[0]
}

// KeyMap is a hash map from canonical keys to their occurrences in one capture.
// The keys are hashed with xxhash, collisions are handled using chaining.
// A KeyMap is read-only after it has been built.
//
//	input	int								- the index of the capture the map was built from
//	buckets	map[uint64][]*keyOccurrences	- the keys and their occurrences in slices of keys with the same hash
//	ordered	[]*keyOccurrences				- the keys in order of their first occurrence
//	frames	int								- the number of frames added to the map
type KeyMap struct {
	input   int
	buckets map[uint64][]*keyOccurrences
	ordered []*keyOccurrences
	frames  int
}

// newKeyMap is a constructor for the KeyMap structure.
//
// Takes:
//	input		int	- the index of the capture the map is built from
//	sizeHint	int	- the expected number of keys
func newKeyMap(input int, sizeHint int) *KeyMap {
	return &KeyMap{
		input:   input,
		buckets: make(map[uint64][]*keyOccurrences, sizeHint),
		ordered: make([]*keyOccurrences, 0, sizeHint),
	}
}

// add is a private function to add an occurrence of a key to the map.
// Occurrences have to be added in the order of their positions.
//
// Operates on:
//	keyMap	*KeyMap	- the map the occurrence is added to
//
// Takes:
//	key			canonical.Key		- the canonical key of the frame
//	occurrence	*FrameAndPosition	- the frame with its position
func (keyMap *KeyMap) add(key canonical.Key, occurrence *FrameAndPosition) {
	keyMap.frames++

	hash := xxhash.Sum64String(string(key))
	chain := keyMap.buckets[hash]
	for _, candidate := range chain { // collision or the key is already known
		if candidate.key == key {
			candidate.occurrences = append(candidate.occurrences, occurrence)
			return
		}
	}

	// the key is new
	newOccurrences := &keyOccurrences{key: key, occurrences: []*FrameAndPosition{occurrence}}
	keyMap.buckets[hash] = append(chain, newOccurrences)
	keyMap.ordered = append(keyMap.ordered, newOccurrences)
}

// lookup is a private function to get the occurrences of a key, nil if the key isn't in the map.
func (keyMap *KeyMap) lookup(key canonical.Key) *keyOccurrences {
	for _, candidate := range keyMap.buckets[xxhash.Sum64String(string(key))] {
		if candidate.key == key {
			return candidate
		}
	}
	return nil
}

// Contains reports whether a frame with the key is in the capture.
func (keyMap *KeyMap) Contains(key canonical.Key) bool {
	return keyMap.lookup(key) != nil
}

// Occurrences returns the frames with the key in the order of their positions, nil if there is none.
func (keyMap *KeyMap) Occurrences(key canonical.Key) []*FrameAndPosition {
	if keyOccurrences := keyMap.lookup(key); keyOccurrences != nil {
		return keyOccurrences.occurrences
	}
	return nil
}

// Keys returns the distinct keys in order of their first occurrence.
func (keyMap *KeyMap) Keys() []canonical.Key {
	keys := make([]canonical.Key, 0, len(keyMap.ordered))
	for _, keyOccurrences := range keyMap.ordered {
		keys = append(keys, keyOccurrences.key)
	}
	return keys
}

// Input is a public getter function for the private input field of the KeyMap structure.
func (keyMap *KeyMap) Input() int {
	return keyMap.input
}

// Len returns the number of distinct keys.
func (keyMap *KeyMap) Len() int {
	return len(keyMap.ordered)
}

// Frames returns the number of frames in the map, duplicates included.
func (keyMap *KeyMap) Frames() int {
	return keyMap.frames
}
