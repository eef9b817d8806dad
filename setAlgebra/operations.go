package setAlgebra

import (
	"github.com/ajanusdev/pcapmath/canonical"
	"github.com/ajanusdev/pcapmath/capture"
)

// newResult is a private function to create an empty result of an operation.
// Results built from all captures carry the link-type of the first capture.
func (engine *Engine) newResult(operation Operation, input int) *OperationResult {
	owner := input
	if owner < 0 {
		owner = 0
	}

	return newOperationResult(
		resultName(operation, engine.inputNames[owner]),
		operation,
		input,
		engine.options.Canonical.OutputLinkType(engine.captures[owner].LinkType),
		engine.options.Canonical.Stripping(),
	)
}

// entryAcrossInputs is a private function to create the entry of a key present in several captures.
// The representative is the first occurrence in the first capture containing the key.
//
// Takes:
//	firstOccurrences	*keyOccurrences	- the occurrences of the key in the first capture containing it
//
// Returns:
//	*Entry	- the entry, Count is the number of captures containing the key,
//			  Occurrences the number of frames with the key in all captures
func (engine *Engine) entryAcrossInputs(firstOccurrences *keyOccurrences) *Entry {
	count, occurrences := 0, 0
	for _, keyMap := range engine.keyMaps {
		if keyOccurrences := keyMap.lookup(firstOccurrences.key); keyOccurrences != nil {
			count++
			occurrences += len(keyOccurrences.occurrences)
		}
	}
	return newEntry(firstOccurrences.key, firstOccurrences.first(), count, occurrences)
}

// presentInOthers is a private function to check if a key is in any capture but the given one.
func (engine *Engine) presentInOthers(key canonical.Key, input int) bool {
	for other, keyMap := range engine.keyMaps {
		if other != input && keyMap.Contains(key) {
			return true
		}
	}
	return false
}

// presentInAll is a private function to check if a key is in every capture.
func (engine *Engine) presentInAll(key canonical.Key) bool {
	for _, keyMap := range engine.keyMaps {
		if !keyMap.Contains(key) {
			return false
		}
	}
	return true
}

// union contains every key that is in any capture.
func (engine *Engine) union() *OperationResult {
	result := engine.newResult(Union, -1)

	// walking the captures in input order keeps the earliest capture as representative
	for _, keyMap := range engine.keyMaps {
		for _, keyOccurrences := range keyMap.ordered {
			if result.contains(keyOccurrences.key) {
				continue
			}
			result.add(engine.entryAcrossInputs(keyOccurrences))
		}
	}

	return result.finish()
}

// intersection contains every key that is in all captures.
func (engine *Engine) intersection() *OperationResult {
	result := engine.newResult(Intersection, -1)

	for _, keyOccurrences := range engine.keyMaps[0].ordered {
		if engine.presentInAll(keyOccurrences.key) {
			result.add(engine.entryAcrossInputs(keyOccurrences))
		}
	}

	return result.finish()
}

// difference contains every key of the first capture that is in no other capture.
func (engine *Engine) difference() *OperationResult {
	return engine.exclusiveKeys(Difference, 0)
}

// symmetricDifference contains every key of the given capture that is in no other capture.
func (engine *Engine) symmetricDifference(input int) *OperationResult {
	return engine.exclusiveKeys(SymmetricDifference, input)
}

// exclusiveKeys is a private function to collect the keys that only the given capture contains.
func (engine *Engine) exclusiveKeys(operation Operation, input int) *OperationResult {
	result := engine.newResult(operation, input)

	for _, keyOccurrences := range engine.keyMaps[input].ordered {
		if !engine.presentInOthers(keyOccurrences.key, input) {
			result.add(newEntry(keyOccurrences.key, keyOccurrences.first(), 1, len(keyOccurrences.occurrences)))
		}
	}

	return result.finish()
}

// sharedKeys is a private function to collect the keys that are in every capture.
func (engine *Engine) sharedKeys() map[canonical.Key]struct{} {
	shared := make(map[canonical.Key]struct{})
	for _, keyOccurrences := range engine.keyMaps[0].ordered {
		if engine.presentInAll(keyOccurrences.key) {
			shared[keyOccurrences.key] = struct{}{}
		}
	}
	return shared
}

// window is a private function to find the earliest and the latest timestamp
// of the first occurrences of the shared keys in a capture.
// Later repetitions of a shared frame don't widen the window.
//
// Returns:
//	first, last	capture.Timestamp	- the bounds of the window, both inclusive
//	bool							- false if there are no shared keys
func (engine *Engine) window(input int, shared map[canonical.Key]struct{}) (first, last capture.Timestamp, ok bool) {
	for key := range shared {
		timestamp := engine.keyMaps[input].lookup(key).first().Timestamp()
		if !ok {
			first, last, ok = timestamp, timestamp, true
			continue
		}
		if timestamp.Before(first) {
			first = timestamp
		}
		if timestamp.After(last) {
			last = timestamp
		}
	}
	return
}

// boundedIntersection contains every key of the given capture with a frame inside the window spanned by the
// first occurrences of the shared keys in that capture. The representative is the first frame of the key inside the window.
// If inverse is set the shared keys are left out, the result contains only the frames
// that occurred while the captures overlapped but were seen by this capture alone or by a subset.
//
// Takes:
//	input	int							- the index of the capture
//	shared	map[canonical.Key]struct{}	- the keys present in every capture
//	inverse	bool						- true to leave out the shared keys
func (engine *Engine) boundedIntersection(input int, shared map[canonical.Key]struct{}, inverse bool) *OperationResult {
	operation := BoundedIntersection
	if inverse {
		operation = InverseBoundedDifference
	}
	result := engine.newResult(operation, input)

	first, last, ok := engine.window(input, shared)
	if !ok {
		// no overlap, nothing is bounded
		return result.finish()
	}

	for _, keyOccurrences := range engine.keyMaps[input].ordered {
		if _, isShared := shared[keyOccurrences.key]; isShared && inverse {
			continue
		}

		var representative *FrameAndPosition
		inWindow := 0
		for _, occurrence := range keyOccurrences.occurrences {
			timestamp := occurrence.Timestamp()
			if timestamp.Before(first) || timestamp.After(last) {
				continue
			}
			if representative == nil {
				representative = occurrence
			}
			inWindow++
		}

		if representative != nil {
			result.add(newEntry(keyOccurrences.key, representative, 1, inWindow))
		}
	}

	return result.finish()
}
