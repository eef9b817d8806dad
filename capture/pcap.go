package capture

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	pcapGlobalHeaderLength = 24
	pcapRecordHeaderLength = 16

	// the magic numbers as they read in big endian byte order
	pcapMagicMicroseconds        uint32 = 0xA1B2C3D4
	pcapMagicNanoseconds         uint32 = 0xA1B23C4D
	pcapMagicMicrosecondsSwapped uint32 = 0xD4C3B2A1
	pcapMagicNanosecondsSwapped  uint32 = 0x4D3CB2A1

	pcapVersionMajor = 2
	pcapVersionMinor = 4

	// defaultSnapLen is the snap length written unless a frame is longer.
	defaultSnapLen = 262144
)

// isPcapMagic reports whether the first four bytes are one of the pcap magic numbers.
func isPcapMagic(magic uint32) bool {
	switch magic {
	case pcapMagicMicroseconds, pcapMagicNanoseconds, pcapMagicMicrosecondsSwapped, pcapMagicNanosecondsSwapped:
		return true
	}
	return false
}

// parsePcap parses a classic pcap file.
//
// Takes:
//	data	[]byte	- the complete content of the file
//
// Returns:
//	*Capture	- the parsed capture, the frames share the memory of data
//	error		- a *MalformedHeaderError or *TruncatedRecordError, nil if the file is valid
func parsePcap(data []byte) (*Capture, error) {
	if len(data) < pcapGlobalHeaderLength {
		return nil, &MalformedHeaderError{
			Offset: 0,
			Reason: fmt.Sprintf("pcap global header needs %d bytes, file has %d", pcapGlobalHeaderLength, len(data)),
		}
	}

	// the magic decides both the byte order and the meaning of the sub-second field
	var order binary.ByteOrder
	resolution := Microsecond
	switch binary.BigEndian.Uint32(data[0:4]) {
	case pcapMagicMicroseconds:
		order = binary.BigEndian
	case pcapMagicMicrosecondsSwapped:
		order = binary.LittleEndian
	case pcapMagicNanoseconds:
		order, resolution = binary.BigEndian, Nanosecond
	case pcapMagicNanosecondsSwapped:
		order, resolution = binary.LittleEndian, Nanosecond
	default:
		return nil, &MalformedHeaderError{
			Offset: 0,
			Reason: fmt.Sprintf("unknown magic number 0x%08x", binary.BigEndian.Uint32(data[0:4])),
		}
	}

	if major := order.Uint16(data[4:6]); major != pcapVersionMajor {
		return nil, &MalformedHeaderError{
			Offset: 4,
			Reason: fmt.Sprintf("unsupported pcap version %d.%d", major, order.Uint16(data[6:8])),
		}
	}

	capture := &Capture{
		Format:     FormatPcap,
		Resolution: resolution,
		SnapLen:    order.Uint32(data[16:20]),
		// the upper bits of the field carry FCS information
		LinkType: LinkType(order.Uint32(data[20:24]) & uint32(maxLinkType)),
	}

	offset := pcapGlobalHeaderLength
	for offset < len(data) {
		remaining := len(data) - offset
		if remaining < pcapRecordHeaderLength {
			return nil, &TruncatedRecordError{Offset: offset, Declared: pcapRecordHeaderLength, Remaining: remaining}
		}

		seconds := order.Uint32(data[offset:])
		fraction := uint64(order.Uint32(data[offset+4:]))
		capturedLength := order.Uint32(data[offset+8:])

		body := offset + pcapRecordHeaderLength
		if uint64(capturedLength) > uint64(len(data)-body) {
			return nil, &TruncatedRecordError{Offset: offset, Declared: int(capturedLength), Remaining: len(data) - body}
		}

		if resolution == Microsecond {
			fraction *= 1000
		}

		end := body + int(capturedLength)
		capture.Frames = append(capture.Frames, FrameAndTimestamp{
			Frame:     Frame(data[body:end:end]),
			Timestamp: NewTimestamp(int64(seconds), fraction),
		})
		offset = end
	}

	return capture, nil
}

// serializePcap writes frames as a little endian pcap file.
// Nanosecond resolution is used only if a timestamp needs it.
func serializePcap(frames []FrameAndTimestamp, linkType LinkType) ([]byte, error) {
	resolution := resolutionFor(frames)

	size := pcapGlobalHeaderLength
	for _, frame := range frames {
		size += pcapRecordHeaderLength + len(frame.Frame)
	}
	out := make([]byte, 0, size)

	magic := pcapMagicMicroseconds
	if resolution == Nanosecond {
		magic = pcapMagicNanoseconds
	}

	le := binary.LittleEndian
	out = le.AppendUint32(out, magic)
	out = le.AppendUint16(out, pcapVersionMajor)
	out = le.AppendUint16(out, pcapVersionMinor)
	out = le.AppendUint32(out, 0) // thiszone
	out = le.AppendUint32(out, 0) // sigfigs
	out = le.AppendUint32(out, snapLenFor(frames))
	out = le.AppendUint32(out, uint32(linkType))

	for _, frame := range frames {
		timestamp := frame.Timestamp
		if timestamp.Sec < 0 || timestamp.Sec > math.MaxUint32 {
			return nil, fmt.Errorf("timestamp %s can't be stored in a pcap record", timestamp)
		}

		fraction := timestamp.Nsec
		if resolution == Microsecond {
			fraction /= 1000
		}

		out = le.AppendUint32(out, uint32(timestamp.Sec))
		out = le.AppendUint32(out, fraction)
		out = le.AppendUint32(out, uint32(len(frame.Frame))) // captured length
		out = le.AppendUint32(out, uint32(len(frame.Frame))) // original length
		out = append(out, frame.Frame...)
	}

	return out, nil
}

// resolutionFor returns the coarsest resolution that keeps every timestamp exact.
func resolutionFor(frames []FrameAndTimestamp) Resolution {
	for _, frame := range frames {
		if frame.Timestamp.needsNanoseconds() {
			return Nanosecond
		}
	}
	return Microsecond
}

// snapLenFor returns the default snap length or the length of the longest frame, whichever is bigger.
func snapLenFor(frames []FrameAndTimestamp) uint32 {
	snapLen := uint32(defaultSnapLen)
	for _, frame := range frames {
		if uint32(len(frame.Frame)) > snapLen {
			snapLen = uint32(len(frame.Frame))
		}
	}
	return snapLen
}
