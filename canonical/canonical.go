// Package canonical derives the content key of a frame.
//
// Two frames are considered equal if their keys are equal.
// Without stripping the key is the hex encoding of the whole frame.
// Stripping the link layer makes frames captured on different encapsulations comparable,
// neutralizing the IPv4 header additionally makes frames comparable across a router or a NAT.
package canonical

import (
	"encoding/hex"

	"github.com/ajanusdev/pcapmath/capture"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Key is the canonical content key of a frame, the lowercase hex of its canonical bytes.
type Key string

// Options selects which headers are removed or neutralized before a frame is keyed.
//
//	StripL2	bool	- remove the link-layer header
//	StripL3	bool	- remove the link-layer header and replace the varying IPv4 header fields
//					  with fixed values, implies StripL2
type Options struct {
	StripL2 bool
	StripL3 bool
}

// Stripping reports whether the canonical bytes differ in layout from the frame.
func (options Options) Stripping() bool {
	return options.StripL2 || options.StripL3
}

// OutputLinkType returns the link-type of the canonical bytes of frames with the given link-type.
// Stripped frames start at the network layer and are raw IP packets.
func (options Options) OutputLinkType(linkType capture.LinkType) capture.LinkType {
	if options.Stripping() {
		return capture.LinkTypeRaw
	}
	return linkType
}

// the values written into every neutralized IPv4 header
var (
	neutralTTL         byte = 0xff
	neutralChecksum         = [2]byte{0x13, 0x37}
	neutralSource           = [4]byte{10, 1, 1, 1}
	neutralDestination      = [4]byte{10, 2, 2, 2}
)

// Canonicalize computes the canonical bytes and the key of a frame.
// The frame itself is never modified.
//
// Takes:
//	frame		[]byte				- the captured bytes of the frame
//	linkType	capture.LinkType	- the link-type of the capture the frame belongs to
//	options		Options				- the headers to strip
//
// Returns:
//	Key		- the canonical key
//	[]byte	- the canonical bytes behind the key, the frame itself if nothing is stripped
//	error	- an *UnsupportedProtocolError if StripL3 is set and the frame isn't IPv4, nil if not
func Canonicalize(frame []byte, linkType capture.LinkType, options Options) (Key, []byte, error) {
	if !options.Stripping() {
		return Key(hex.EncodeToString(frame)), frame, nil
	}

	packet, decoded := decode(frame, linkType)

	if !options.StripL3 {
		canonicalBytes := stripLinkLayer(frame, packet, decoded)
		return Key(hex.EncodeToString(canonicalBytes)), canonicalBytes, nil
	}

	if !decoded {
		return "", nil, &UnsupportedProtocolError{LinkType: linkType, Reason: "link-type can't be decoded"}
	}
	ipv4, ok := packet.NetworkLayer().(*layers.IPv4)
	if !ok {
		reason := "no network layer"
		if packet.NetworkLayer() != nil {
			reason = packet.NetworkLayer().LayerType().String() + " isn't IPv4"
		}
		return "", nil, &UnsupportedProtocolError{LinkType: linkType, Reason: reason}
	}

	canonicalBytes := joinLayer(ipv4)
	neutralizeIPv4Header(canonicalBytes)
	return Key(hex.EncodeToString(canonicalBytes)), canonicalBytes, nil
}

// decode decodes the frame with gopacket.
// The second return value is false if neither a link layer nor a network layer could be decoded.
func decode(frame []byte, linkType capture.LinkType) (gopacket.Packet, bool) {
	// gopacket keeps link-types in a byte
	if linkType > 0xff {
		return nil, false
	}

	packet := gopacket.NewPacket(frame, layers.LinkType(linkType), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	if packet.LinkLayer() == nil && packet.NetworkLayer() == nil {
		return nil, false
	}
	return packet, true
}

// stripLinkLayer returns the network layer of the frame bounded by its own length,
// the link-layer payload if there is no network layer or the frame itself if it can't be decoded.
func stripLinkLayer(frame []byte, packet gopacket.Packet, decoded bool) []byte {
	if !decoded {
		return frame
	}
	if networkLayer := packet.NetworkLayer(); networkLayer != nil {
		return joinLayer(networkLayer)
	}
	if linkLayer := packet.LinkLayer(); linkLayer != nil {
		return append([]byte(nil), linkLayer.LayerPayload()...)
	}
	return frame
}

// joinLayer copies the header and the payload of a layer into a new slice.
func joinLayer(layer gopacket.Layer) []byte {
	contents, payload := layer.LayerContents(), layer.LayerPayload()
	joined := make([]byte, 0, len(contents)+len(payload))
	joined = append(joined, contents...)
	return append(joined, payload...)
}

// neutralizeIPv4Header overwrites the TTL, the header checksum and both addresses of an IPv4 header in place.
func neutralizeIPv4Header(header []byte) {
	header[8] = neutralTTL
	copy(header[10:12], neutralChecksum[:])
	copy(header[12:16], neutralSource[:])
	copy(header[16:20], neutralDestination[:])
}
