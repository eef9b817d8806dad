package setAlgebra

import "github.com/ajanusdev/pcapmath/capture"

// FrameAndPosition is a structure which contains a pointer to a frame, its canonical bytes
// and its position in a capture.
//
//	frame		*capture.FrameAndTimestamp	- a pointer to the frame inside its capture
//	canonical	[]byte						- the canonical bytes of the frame
//	input		int							- the index of the capture the frame belongs to
//	position	int							- the position of the frame in its capture
type FrameAndPosition struct {
	frame     *capture.FrameAndTimestamp
	canonical []byte
	input     int
	position  int
}

// Frame is a public getter function for the frame bytes of the FrameAndPosition structure
func (frameAndPosition *FrameAndPosition) Frame() capture.Frame {
	return frameAndPosition.frame.Frame
}

// Timestamp is a public getter function for the timestamp of the FrameAndPosition structure
func (frameAndPosition *FrameAndPosition) Timestamp() capture.Timestamp {
	return frameAndPosition.frame.Timestamp
}

// Canonical is a public getter function for the private canonical field of the FrameAndPosition structure
func (frameAndPosition *FrameAndPosition) Canonical() []byte {
	return frameAndPosition.canonical
}

// Input is a public getter function for the private input field of the FrameAndPosition structure
func (frameAndPosition *FrameAndPosition) Input() int {
	return frameAndPosition.input
}

// Position is a public getter function for the private position field of the FrameAndPosition structure
func (frameAndPosition *FrameAndPosition) Position() int {
	return frameAndPosition.position
}
