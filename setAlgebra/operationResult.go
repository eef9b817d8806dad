package setAlgebra

import (
	"github.com/ajanusdev/pcapmath/canonical"
	"github.com/ajanusdev/pcapmath/capture"
)

// Entry is one distinct key of an OperationResult together with its representative frame.
//
//	Key			canonical.Key		- the canonical key
//	Frame		capture.Frame		- the original bytes of the representative frame
//	Canonical	[]byte				- the canonical bytes of the representative frame
//	Timestamp	capture.Timestamp	- the timestamp of the representative frame
//	Count		int					- the number of captures containing the key,
//									  1 for the results of a single capture
//	Occurrences	int					- the number of frames with the key in the captures the result is built from
//	Input		int					- the index of the capture the representative frame belongs to
//	Position	int					- the position of the representative frame in its capture
type Entry struct {
	Key         canonical.Key
	Frame       capture.Frame
	Canonical   []byte
	Timestamp   capture.Timestamp
	Count       int
	Occurrences int
	Input       int
	Position    int
}

// newEntry is a private constructor for an Entry represented by the given frame.
func newEntry(key canonical.Key, representative *FrameAndPosition, count int, occurrences int) *Entry {
	return &Entry{
		Key:         key,
		Frame:       representative.Frame(),
		Canonical:   representative.Canonical(),
		Timestamp:   representative.Timestamp(),
		Count:       count,
		Occurrences: occurrences,
		Input:       representative.Input(),
		Position:    representative.Position(),
	}
}

// TimelinePoint is one frame of a result on a timeline.
//
//	FrameNumber	int					- the number of the frame in the result, starting at 1
//	Timestamp	capture.Timestamp	- the timestamp of the frame
type TimelinePoint struct {
	FrameNumber int
	Timestamp   capture.Timestamp
}

// OperationResult is a structure holding the outcome of one operation,
// a mapping from canonical keys to entries ordered by the timestamps of the representative frames.
//
//	name		string							- the name of the result, the base name of its files
//	operation	Operation						- the operation computed
//	input		int								- the index of the capture the result belongs to,
//												  -1 if it is built from all captures
//	linkType	capture.LinkType				- the link-type of the frames to write
//	stripped	bool							- true if the canonical bytes differ in layout from the frames
//	entries		[]*Entry						- the entries in output order
//	index		map[canonical.Key]*Entry		- the entries by key
type OperationResult struct {
	name      string
	operation Operation
	input     int
	linkType  capture.LinkType
	stripped  bool
	entries   []*Entry
	index     map[canonical.Key]*Entry
}

// newOperationResult is a private constructor for an empty OperationResult.
func newOperationResult(
	name string,
	operation Operation,
	input int,
	linkType capture.LinkType,
	stripped bool,
) *OperationResult {
	return &OperationResult{
		name:      name,
		operation: operation,
		input:     input,
		linkType:  linkType,
		stripped:  stripped,
		entries:   make([]*Entry, 0),
		index:     make(map[canonical.Key]*Entry),
	}
}

// add is a private function to add an entry, an entry with a known key is ignored.
func (result *OperationResult) add(entry *Entry) {
	if _, exists := result.index[entry.Key]; exists {
		return
	}
	result.entries = append(result.entries, entry)
	result.index[entry.Key] = entry
}

// contains is a private function to check if the result already has an entry for the key.
func (result *OperationResult) contains(key canonical.Key) bool {
	_, exists := result.index[key]
	return exists
}

// finish is a private function to bring the entries into output order, called once after the last add.
func (result *OperationResult) finish() *OperationResult {
	sortEntries(result.entries)
	return result
}

// Name is a public getter function for the private name field of the OperationResult structure.
func (result *OperationResult) Name() string {
	return result.name
}

// Operation is a public getter function for the private operation field of the OperationResult structure.
func (result *OperationResult) Operation() Operation {
	return result.operation
}

// Input returns the index of the capture the result belongs to, -1 if it is built from all captures.
func (result *OperationResult) Input() int {
	return result.input
}

// LinkType is a public getter function for the private linkType field of the OperationResult structure.
func (result *OperationResult) LinkType() capture.LinkType {
	return result.linkType
}

// Stripped reports whether headers were stripped before the frames were keyed.
func (result *OperationResult) Stripped() bool {
	return result.stripped
}

// Entries returns the entries ordered by ascending timestamp, ties ordered by input and position.
// The slice must not be modified.
func (result *OperationResult) Entries() []*Entry {
	return result.entries
}

// Get returns the entry of a key.
func (result *OperationResult) Get(key canonical.Key) (*Entry, bool) {
	entry, exists := result.index[key]
	return entry, exists
}

// Len returns the number of distinct keys.
func (result *OperationResult) Len() int {
	return len(result.entries)
}

// Keys returns the keys in output order.
func (result *OperationResult) Keys() []canonical.Key {
	keys := make([]canonical.Key, 0, len(result.entries))
	for _, entry := range result.entries {
		keys = append(keys, entry.Key)
	}
	return keys
}

// Timeline returns the frame numbers and timestamps of the entries in output order.
func (result *OperationResult) Timeline() []TimelinePoint {
	timeline := make([]TimelinePoint, 0, len(result.entries))
	for i, entry := range result.entries {
		timeline = append(timeline, TimelinePoint{FrameNumber: i + 1, Timestamp: entry.Timestamp})
	}
	return timeline
}

// Frames returns the frames to write in output order.
// These are the canonical bytes if headers were stripped, the original frames if not.
func (result *OperationResult) Frames() []capture.FrameAndTimestamp {
	frames := make([]capture.FrameAndTimestamp, 0, len(result.entries))
	for _, entry := range result.entries {
		frame := entry.Frame
		if result.stripped {
			frame = entry.Canonical
		}
		frames = append(frames, capture.FrameAndTimestamp{Frame: frame, Timestamp: entry.Timestamp})
	}
	return frames
}
