package capture

import (
	"fmt"
	"time"
)

// Frame holds the exact bytes of one captured packet.
type Frame []byte

// Timestamp is a fixed-point point in time with nanosecond units.
//
//	Sec		int64	- seconds since the unix epoch
//	Nsec	uint32	- nanoseconds within the second, always below 1e9
type Timestamp struct {
	Sec  int64
	Nsec uint32
}

// NewTimestamp builds a normalized Timestamp from seconds and nanoseconds.
// Nanoseconds greater than one second are carried into the seconds.
func NewTimestamp(sec int64, nsec uint64) Timestamp {
	return Timestamp{
		Sec:  sec + int64(nsec/uint64(time.Second)),
		Nsec: uint32(nsec % uint64(time.Second)),
	}
}

// TimestampFromTime converts a time.Time into a Timestamp.
func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp{Sec: t.Unix(), Nsec: uint32(t.Nanosecond())}
}

// Time converts the Timestamp into a UTC time.Time.
func (timestamp Timestamp) Time() time.Time {
	return time.Unix(timestamp.Sec, int64(timestamp.Nsec)).UTC()
}

// Compare returns -1 if the timestamp is before the other one, 1 if it is after and 0 if they are equal.
func (timestamp Timestamp) Compare(other Timestamp) int {
	switch {
	case timestamp.Sec < other.Sec:
		return -1
	case timestamp.Sec > other.Sec:
		return 1
	case timestamp.Nsec < other.Nsec:
		return -1
	case timestamp.Nsec > other.Nsec:
		return 1
	}
	return 0
}

// Before reports whether the timestamp is strictly before the other one.
func (timestamp Timestamp) Before(other Timestamp) bool {
	return timestamp.Compare(other) < 0
}

// After reports whether the timestamp is strictly after the other one.
func (timestamp Timestamp) After(other Timestamp) bool {
	return timestamp.Compare(other) > 0
}

// Sub returns the duration between the timestamp and an earlier one.
func (timestamp Timestamp) Sub(other Timestamp) time.Duration {
	return time.Duration(timestamp.Sec-other.Sec)*time.Second + time.Duration(int64(timestamp.Nsec)-int64(other.Nsec))
}

// String formats the timestamp as seconds with nine fractional digits, e.g. 1537945792.667334000.
func (timestamp Timestamp) String() string {
	return fmt.Sprintf("%d.%09d", timestamp.Sec, timestamp.Nsec)
}

// needsNanoseconds reports whether the timestamp has sub-microsecond digits.
func (timestamp Timestamp) needsNanoseconds() bool {
	return timestamp.Nsec%1000 != 0
}

// FrameAndTimestamp pairs a frame with the time it was captured.
type FrameAndTimestamp struct {
	Frame     Frame
	Timestamp Timestamp
}

// Format is the container layout of a capture file.
type Format int

const (
	FormatPcap Format = iota
	FormatPcapng
)

// String returns the usual file extension of the format without the dot.
func (format Format) String() string {
	switch format {
	case FormatPcap:
		return "pcap"
	case FormatPcapng:
		return "pcapng"
	}
	return fmt.Sprintf("Format(%d)", int(format))
}

// Extension returns the file extension of the format including the dot.
func (format Format) Extension() string {
	return "." + format.String()
}

// ParseFormat returns the Format named by s, either "pcap" or "pcapng".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "pcap":
		return FormatPcap, nil
	case "pcapng":
		return FormatPcapng, nil
	}
	return 0, fmt.Errorf("unknown capture format %q", s)
}

// Resolution is the precision of the timestamps recorded in a capture file.
type Resolution int

const (
	Microsecond Resolution = iota
	Nanosecond
)

func (resolution Resolution) String() string {
	if resolution == Nanosecond {
		return "ns"
	}
	return "us"
}

// LinkType is the data-link encapsulation identifier of the tcpdump.org LINKTYPE registry.
type LinkType uint32

// Link-types referenced by this module.
const (
	LinkTypeNull     LinkType = 0
	LinkTypeEthernet LinkType = 1
	LinkTypeRaw      LinkType = 101
	LinkType80211    LinkType = 105
	LinkTypeLinuxSLL LinkType = 113
	LinkTypeIPv4     LinkType = 228
	LinkTypeIPv6     LinkType = 229

	// maxLinkType is the biggest link-type that can be written, pcapng stores it in 16 bits.
	maxLinkType LinkType = 0xFFFF
)

func (linkType LinkType) String() string {
	switch linkType {
	case LinkTypeNull:
		return "NULL"
	case LinkTypeEthernet:
		return "ETHERNET"
	case LinkTypeRaw:
		return "RAW"
	case LinkType80211:
		return "IEEE802_11"
	case LinkTypeLinuxSLL:
		return "LINUX_SLL"
	case LinkTypeIPv4:
		return "IPV4"
	case LinkTypeIPv6:
		return "IPV6"
	}
	return fmt.Sprintf("LINKTYPE(%d)", uint32(linkType))
}

// Capture is the parsed content of one capture file.
// It is built once and treated as read-only afterwards.
//
//	Name		string				- the name of the capture, usually the file name
//	Format		Format				- the layout the capture was read from
//	LinkType	LinkType			- the link-type of all frames
//	Resolution	Resolution			- the finest timestamp resolution declared in the file
//	SnapLen		uint32				- the declared maximum number of bytes captured per frame
//	Frames		[]FrameAndTimestamp	- the frames in on-disk order
type Capture struct {
	Name       string
	Format     Format
	LinkType   LinkType
	Resolution Resolution
	SnapLen    uint32
	Frames     []FrameAndTimestamp
}

// Len returns the number of frames in the capture.
func (capture *Capture) Len() int {
	return len(capture.Frames)
}

// FirstTimestamp returns the smallest timestamp in the capture.
// The second return value is false for an empty capture.
func (capture *Capture) FirstTimestamp() (Timestamp, bool) {
	if len(capture.Frames) == 0 {
		return Timestamp{}, false
	}
	first := capture.Frames[0].Timestamp
	for _, frame := range capture.Frames[1:] {
		if frame.Timestamp.Before(first) {
			first = frame.Timestamp
		}
	}
	return first, true
}

// LastTimestamp returns the biggest timestamp in the capture.
// The second return value is false for an empty capture.
func (capture *Capture) LastTimestamp() (Timestamp, bool) {
	if len(capture.Frames) == 0 {
		return Timestamp{}, false
	}
	last := capture.Frames[0].Timestamp
	for _, frame := range capture.Frames[1:] {
		if frame.Timestamp.After(last) {
			last = frame.Timestamp
		}
	}
	return last, true
}
