package capture

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

const (
	blockTypeSectionHeader        uint32 = 0x0A0D0D0A
	blockTypeInterfaceDescription uint32 = 0x00000001
	blockTypePacket               uint32 = 0x00000002 // obsolete, still written by old tools
	blockTypeSimplePacket         uint32 = 0x00000003
	blockTypeEnhancedPacket       uint32 = 0x00000006

	byteOrderMagic uint32 = 0x1A2B3C4D

	pcapngVersionMajor = 1
	pcapngVersionMinor = 0

	// type, total length and the trailing total length
	blockFrameLength = 12

	optionEndOfOptions uint16 = 0
	optionIfTsresol    uint16 = 9
	optionIfTsoffset   uint16 = 14

	// tsresol values
	tsresolMicroseconds byte = 6
	tsresolNanoseconds  byte = 9
	tsresolBinaryFlag   byte = 0x80
)

// ngInterface holds what an Interface Description Block declares for the packets referring to it.
type ngInterface struct {
	linkType LinkType
	snapLen  uint32
	tsresol  byte
	tsoffset int64
}

// finerThanMicroseconds reports whether the interface records timestamps more precisely than microseconds.
func (iface *ngInterface) finerThanMicroseconds() bool {
	if iface.tsresol&tsresolBinaryFlag != 0 {
		return iface.tsresol&^tsresolBinaryFlag > 19 // 2^-20 is just below a microsecond
	}
	return iface.tsresol > tsresolMicroseconds
}

// timestamp converts the raw timestamp units of a packet block into a Timestamp.
func (iface *ngInterface) timestamp(units uint64) Timestamp {
	var seconds, nanoseconds uint64

	if iface.tsresol&tsresolBinaryFlag == 0 {
		exponent := int(iface.tsresol)
		unitsPerSecond := pow10(exponent)
		seconds = units / unitsPerSecond
		fraction := units % unitsPerSecond
		if exponent <= 9 {
			nanoseconds = fraction * pow10(9-exponent)
		} else {
			nanoseconds = fraction / pow10(exponent-9)
		}
	} else {
		exponent := uint(iface.tsresol &^ tsresolBinaryFlag)
		seconds = units >> exponent
		fraction := units & (1<<exponent - 1)
		hi, lo := bits.Mul64(fraction, 1e9)
		nanoseconds = hi<<(64-exponent) | lo>>exponent
	}

	return NewTimestamp(int64(seconds)+iface.tsoffset, nanoseconds)
}

func pow10(exponent int) uint64 {
	result := uint64(1)
	for i := 0; i < exponent; i++ {
		result *= 10
	}
	return result
}

// parsePcapng parses a pcapng file with one or more sections.
// Blocks other than section headers, interface descriptions and packet blocks are skipped.
//
// Takes:
//	data	[]byte	- the complete content of the file
//
// Returns:
//	*Capture	- the parsed capture, the frames share the memory of data
//	error		- a *MalformedHeaderError or *TruncatedRecordError, nil if the file is valid
func parsePcapng(data []byte) (*Capture, error) {
	capture := &Capture{
		Format:     FormatPcapng,
		Resolution: Microsecond,
	}

	var order binary.ByteOrder
	var interfaces []ngInterface
	haveInterface := false

	offset := 0
	for offset < len(data) {
		remaining := len(data) - offset
		if remaining < blockFrameLength {
			return nil, &TruncatedRecordError{Offset: offset, Declared: blockFrameLength, Remaining: remaining}
		}

		// the section header block type reads the same in both byte orders
		if binary.LittleEndian.Uint32(data[offset:]) == blockTypeSectionHeader {
			sectionOrder, err := sectionByteOrder(data, offset)
			if err != nil {
				return nil, err
			}
			order = sectionOrder
			interfaces = interfaces[:0] // interface ids are scoped to their section
		} else if order == nil {
			return nil, &MalformedHeaderError{Offset: offset, Reason: "pcapng file doesn't start with a section header block"}
		}

		blockType := order.Uint32(data[offset:])
		totalLength := uint64(order.Uint32(data[offset+4:]))
		if totalLength < blockFrameLength || totalLength%4 != 0 {
			return nil, &MalformedHeaderError{Offset: offset, Reason: fmt.Sprintf("invalid block length %d", totalLength)}
		}
		if totalLength > uint64(remaining) {
			return nil, &TruncatedRecordError{Offset: offset, Declared: int(totalLength), Remaining: remaining}
		}

		end := offset + int(totalLength)
		if trailing := uint64(order.Uint32(data[end-4:])); trailing != totalLength {
			return nil, &MalformedHeaderError{
				Offset: offset,
				Reason: fmt.Sprintf("block length %d doesn't match trailing length %d", totalLength, trailing),
			}
		}
		body := data[offset+8 : end-4]

		switch blockType {
		case blockTypeSectionHeader:
			if len(body) < 16 {
				return nil, &MalformedHeaderError{Offset: offset, Reason: "section header block too short"}
			}
			if major := order.Uint16(body[4:]); major != pcapngVersionMajor {
				return nil, &MalformedHeaderError{
					Offset: offset,
					Reason: fmt.Sprintf("unsupported pcapng version %d.%d", major, order.Uint16(body[6:])),
				}
			}

		case blockTypeInterfaceDescription:
			iface, err := parseInterface(body, order, offset)
			if err != nil {
				return nil, err
			}
			if !haveInterface {
				capture.LinkType = iface.linkType
				capture.SnapLen = iface.snapLen
				haveInterface = true
			} else if iface.linkType != capture.LinkType {
				return nil, &MalformedHeaderError{
					Offset: offset,
					Reason: fmt.Sprintf("interfaces with differing link-types %s and %s", capture.LinkType, iface.linkType),
				}
			}
			if iface.finerThanMicroseconds() {
				capture.Resolution = Nanosecond
			}
			interfaces = append(interfaces, iface)

		case blockTypeEnhancedPacket, blockTypePacket:
			frame, err := parsePacketBlock(blockType, body, order, offset, interfaces)
			if err != nil {
				return nil, err
			}
			capture.Frames = append(capture.Frames, frame)

		case blockTypeSimplePacket:
			frame, err := parseSimplePacketBlock(body, order, offset, interfaces)
			if err != nil {
				return nil, err
			}
			capture.Frames = append(capture.Frames, frame)
		}

		offset = end
	}

	if order == nil {
		return nil, &MalformedHeaderError{Offset: 0, Reason: "empty pcapng file"}
	}

	return capture, nil
}

// sectionByteOrder reads the byte-order magic of the section header block starting at offset.
func sectionByteOrder(data []byte, offset int) (binary.ByteOrder, error) {
	if len(data)-offset < blockFrameLength+16 {
		return nil, &MalformedHeaderError{Offset: offset, Reason: "section header block too short"}
	}
	magic := data[offset+8 : offset+12]
	switch {
	case binary.LittleEndian.Uint32(magic) == byteOrderMagic:
		return binary.LittleEndian, nil
	case binary.BigEndian.Uint32(magic) == byteOrderMagic:
		return binary.BigEndian, nil
	}
	return nil, &MalformedHeaderError{
		Offset: offset,
		Reason: fmt.Sprintf("unknown byte-order magic 0x%08x", binary.BigEndian.Uint32(magic)),
	}
}

// parseInterface parses the body of an Interface Description Block including the options
// that change how timestamps are read.
func parseInterface(body []byte, order binary.ByteOrder, offset int) (ngInterface, error) {
	if len(body) < 8 {
		return ngInterface{}, &MalformedHeaderError{Offset: offset, Reason: "interface description block too short"}
	}

	iface := ngInterface{
		linkType: LinkType(order.Uint16(body[0:])),
		snapLen:  order.Uint32(body[4:]),
		tsresol:  tsresolMicroseconds,
	}

	options := body[8:]
	for len(options) >= 4 {
		code := order.Uint16(options[0:])
		length := int(order.Uint16(options[2:]))
		if code == optionEndOfOptions {
			break
		}

		padded := (length + 3) &^ 3
		if 4+padded > len(options) {
			return ngInterface{}, &MalformedHeaderError{Offset: offset, Reason: fmt.Sprintf("option %d overruns its block", code)}
		}
		value := options[4 : 4+length]

		switch code {
		case optionIfTsresol:
			if length != 1 {
				return ngInterface{}, &MalformedHeaderError{Offset: offset, Reason: "if_tsresol must be one byte"}
			}
			iface.tsresol = value[0]
			if (iface.tsresol&tsresolBinaryFlag == 0 && iface.tsresol > 19) ||
				(iface.tsresol&tsresolBinaryFlag != 0 && iface.tsresol&^tsresolBinaryFlag > 63) {
				return ngInterface{}, &MalformedHeaderError{Offset: offset, Reason: fmt.Sprintf("unsupported if_tsresol 0x%02x", iface.tsresol)}
			}
		case optionIfTsoffset:
			if length != 8 {
				return ngInterface{}, &MalformedHeaderError{Offset: offset, Reason: "if_tsoffset must be eight bytes"}
			}
			iface.tsoffset = int64(order.Uint64(value))
		}

		options = options[4+padded:]
	}

	return iface, nil
}

// parsePacketBlock parses an Enhanced Packet Block or an obsolete Packet Block.
// Both carry an interface id, a 64 bit timestamp and the captured length at the same offsets,
// only the width of the interface id differs.
func parsePacketBlock(
	blockType uint32,
	body []byte,
	order binary.ByteOrder,
	offset int,
	interfaces []ngInterface,
) (FrameAndTimestamp, error) {
	const headerLength = 20
	if len(body) < headerLength {
		return FrameAndTimestamp{}, &MalformedHeaderError{Offset: offset, Reason: "packet block too short"}
	}

	var interfaceID int
	if blockType == blockTypeEnhancedPacket {
		interfaceID = int(order.Uint32(body[0:]))
	} else {
		interfaceID = int(order.Uint16(body[0:]))
	}
	if interfaceID < 0 || interfaceID >= len(interfaces) {
		return FrameAndTimestamp{}, &MalformedHeaderError{
			Offset: offset,
			Reason: fmt.Sprintf("packet refers to undeclared interface %d", interfaceID),
		}
	}

	units := uint64(order.Uint32(body[4:]))<<32 | uint64(order.Uint32(body[8:]))
	capturedLength := uint64(order.Uint32(body[12:]))
	if capturedLength > uint64(len(body)-headerLength) {
		return FrameAndTimestamp{}, &TruncatedRecordError{
			Offset:    offset,
			Declared:  int(capturedLength),
			Remaining: len(body) - headerLength,
		}
	}

	end := headerLength + int(capturedLength)
	return FrameAndTimestamp{
		Frame:     Frame(body[headerLength:end:end]),
		Timestamp: interfaces[interfaceID].timestamp(units),
	}, nil
}

// parseSimplePacketBlock parses a Simple Packet Block.
// The block has no timestamp and always belongs to the first interface of the section.
func parseSimplePacketBlock(
	body []byte,
	order binary.ByteOrder,
	offset int,
	interfaces []ngInterface,
) (FrameAndTimestamp, error) {
	if len(body) < 4 {
		return FrameAndTimestamp{}, &MalformedHeaderError{Offset: offset, Reason: "simple packet block too short"}
	}
	if len(interfaces) == 0 {
		return FrameAndTimestamp{}, &MalformedHeaderError{Offset: offset, Reason: "simple packet block without an interface"}
	}

	// the captured length is the original length cut to the snap length of the interface
	capturedLength := uint64(order.Uint32(body[0:]))
	if snapLen := uint64(interfaces[0].snapLen); snapLen != 0 && capturedLength > snapLen {
		capturedLength = snapLen
	}
	if capturedLength > uint64(len(body)-4) {
		return FrameAndTimestamp{}, &TruncatedRecordError{Offset: offset, Declared: int(capturedLength), Remaining: len(body) - 4}
	}

	end := 4 + int(capturedLength)
	return FrameAndTimestamp{Frame: Frame(body[4:end:end])}, nil
}

// serializePcapng writes frames as a little endian pcapng file with one section and one interface.
func serializePcapng(frames []FrameAndTimestamp, linkType LinkType) ([]byte, error) {
	resolution := resolutionFor(frames)

	size := 28 + 32
	for _, frame := range frames {
		size += 32 + padTo4(len(frame.Frame))
	}
	out := make([]byte, 0, size)
	le := binary.LittleEndian

	// section header block
	out = le.AppendUint32(out, blockTypeSectionHeader)
	out = le.AppendUint32(out, 28)
	out = le.AppendUint32(out, byteOrderMagic)
	out = le.AppendUint16(out, pcapngVersionMajor)
	out = le.AppendUint16(out, pcapngVersionMinor)
	out = le.AppendUint64(out, ^uint64(0)) // section length not specified
	out = le.AppendUint32(out, 28)

	// interface description block
	idbLength := uint32(20)
	if resolution == Nanosecond {
		idbLength += 8 + 4 // if_tsresol and opt_endofopt
	}
	out = le.AppendUint32(out, blockTypeInterfaceDescription)
	out = le.AppendUint32(out, idbLength)
	out = le.AppendUint16(out, uint16(linkType))
	out = le.AppendUint16(out, 0) // reserved
	out = le.AppendUint32(out, snapLenFor(frames))
	if resolution == Nanosecond {
		out = le.AppendUint16(out, optionIfTsresol)
		out = le.AppendUint16(out, 1)
		out = append(out, tsresolNanoseconds, 0, 0, 0)
		out = le.AppendUint16(out, optionEndOfOptions)
		out = le.AppendUint16(out, 0)
	}
	out = le.AppendUint32(out, idbLength)

	// one enhanced packet block per frame
	for _, frame := range frames {
		timestamp := frame.Timestamp
		if timestamp.Sec < 0 {
			return nil, fmt.Errorf("timestamp %s can't be stored in a pcapng block", timestamp)
		}

		var units uint64
		if resolution == Nanosecond {
			units = uint64(timestamp.Sec)*1e9 + uint64(timestamp.Nsec)
		} else {
			units = uint64(timestamp.Sec)*1e6 + uint64(timestamp.Nsec/1000)
		}

		padded := padTo4(len(frame.Frame))
		epbLength := uint32(32 + padded)
		out = le.AppendUint32(out, blockTypeEnhancedPacket)
		out = le.AppendUint32(out, epbLength)
		out = le.AppendUint32(out, 0) // interface id
		out = le.AppendUint32(out, uint32(units>>32))
		out = le.AppendUint32(out, uint32(units))
		out = le.AppendUint32(out, uint32(len(frame.Frame))) // captured length
		out = le.AppendUint32(out, uint32(len(frame.Frame))) // original length
		out = append(out, frame.Frame...)
		out = append(out, make([]byte, padded-len(frame.Frame))...)
		out = le.AppendUint32(out, epbLength)
	}

	return out, nil
}

func padTo4(length int) int {
	return (length + 3) &^ 3
}
