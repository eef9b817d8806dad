package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pcapRecord struct {
	sec, frac uint32
	data      []byte
}

// pcapFile builds a classic pcap file, magic is given as it reads in the byte order of the file.
func pcapFile(order binary.AppendByteOrder, magic uint32, linkType uint32, records ...pcapRecord) []byte {
	out := order.AppendUint32(nil, magic)
	out = order.AppendUint16(out, 2)
	out = order.AppendUint16(out, 4)
	out = order.AppendUint32(out, 0)
	out = order.AppendUint32(out, 0)
	out = order.AppendUint32(out, 65535)
	out = order.AppendUint32(out, linkType)
	for _, record := range records {
		out = order.AppendUint32(out, record.sec)
		out = order.AppendUint32(out, record.frac)
		out = order.AppendUint32(out, uint32(len(record.data)))
		out = order.AppendUint32(out, uint32(len(record.data)))
		out = append(out, record.data...)
	}
	return out
}

func ngBlock(order binary.AppendByteOrder, blockType uint32, body []byte) []byte {
	padded := padTo4(len(body))
	total := uint32(blockFrameLength + padded)
	out := order.AppendUint32(nil, blockType)
	out = order.AppendUint32(out, total)
	out = append(out, body...)
	out = append(out, make([]byte, padded-len(body))...)
	return order.AppendUint32(out, total)
}

func ngSectionHeader(order binary.AppendByteOrder) []byte {
	body := order.AppendUint32(nil, byteOrderMagic)
	body = order.AppendUint16(body, 1)
	body = order.AppendUint16(body, 0)
	body = order.AppendUint64(body, ^uint64(0))
	return ngBlock(order, blockTypeSectionHeader, body)
}

func ngOption(order binary.AppendByteOrder, code uint16, value []byte) []byte {
	out := order.AppendUint16(nil, code)
	out = order.AppendUint16(out, uint16(len(value)))
	out = append(out, value...)
	return append(out, make([]byte, padTo4(len(value))-len(value))...)
}

func ngInterfaceBlock(order binary.AppendByteOrder, linkType uint16, snapLen uint32, options ...[]byte) []byte {
	body := order.AppendUint16(nil, linkType)
	body = order.AppendUint16(body, 0)
	body = order.AppendUint32(body, snapLen)
	for _, option := range options {
		body = append(body, option...)
	}
	if len(options) > 0 {
		body = append(body, 0, 0, 0, 0)
	}
	return ngBlock(order, blockTypeInterfaceDescription, body)
}

func ngEnhancedPacket(order binary.AppendByteOrder, interfaceID uint32, units uint64, data []byte) []byte {
	body := order.AppendUint32(nil, interfaceID)
	body = order.AppendUint32(body, uint32(units>>32))
	body = order.AppendUint32(body, uint32(units))
	body = order.AppendUint32(body, uint32(len(data)))
	body = order.AppendUint32(body, uint32(len(data)))
	body = append(body, data...)
	return ngBlock(order, blockTypeEnhancedPacket, body)
}

func concat(blocks ...[]byte) []byte {
	return bytes.Join(blocks, nil)
}

func TestParsePcapMicroseconds(t *testing.T) {
	for name, order := range map[string]binary.AppendByteOrder{
		"little endian": binary.LittleEndian,
		"big endian":    binary.BigEndian,
	} {
		t.Run(name, func(t *testing.T) {
			data := pcapFile(order, pcapMagicMicroseconds, 1,
				pcapRecord{sec: 1537945792, frac: 655360, data: []byte{0xde, 0xad}},
				pcapRecord{sec: 1537945792, frac: 667334, data: []byte{0xbe, 0xef, 0x01}},
			)

			capture, err := Parse(data)
			require.NoError(t, err)

			assert.Equal(t, FormatPcap, capture.Format)
			assert.Equal(t, LinkTypeEthernet, capture.LinkType)
			assert.Equal(t, Microsecond, capture.Resolution)
			assert.Equal(t, uint32(65535), capture.SnapLen)
			require.Equal(t, 2, capture.Len())
			assert.Equal(t, Frame{0xde, 0xad}, capture.Frames[0].Frame)
			assert.Equal(t, Timestamp{Sec: 1537945792, Nsec: 655360000}, capture.Frames[0].Timestamp)
			assert.Equal(t, "1537945792.667334000", capture.Frames[1].Timestamp.String())
		})
	}
}

func TestParsePcapNanoseconds(t *testing.T) {
	data := pcapFile(binary.BigEndian, pcapMagicNanoseconds, 101,
		pcapRecord{sec: 10, frac: 123456789, data: []byte{0x45}},
	)

	capture, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, Nanosecond, capture.Resolution)
	assert.Equal(t, LinkTypeRaw, capture.LinkType)
	assert.Equal(t, Timestamp{Sec: 10, Nsec: 123456789}, capture.Frames[0].Timestamp)
}

func TestParsePcapMasksLinkTypeFlags(t *testing.T) {
	// FCS length bits in the upper half of the link-type field
	data := pcapFile(binary.LittleEndian, pcapMagicMicroseconds, 0x10000000|1)

	capture, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, LinkTypeEthernet, capture.LinkType)
	assert.Zero(t, capture.Len())
}

func TestParsePcapErrors(t *testing.T) {
	valid := pcapFile(binary.LittleEndian, pcapMagicMicroseconds, 1,
		pcapRecord{sec: 1, frac: 2, data: []byte{1, 2, 3, 4}},
	)

	badVersion := bytes.Clone(valid)
	binary.LittleEndian.PutUint16(badVersion[4:], 3)

	tests := []struct {
		name      string
		data      []byte
		malformed bool
		truncated bool
	}{
		{name: "empty", data: nil, malformed: true},
		{name: "unknown magic", data: []byte{1, 2, 3, 4, 5, 6, 7, 8}, malformed: true},
		{name: "short global header", data: valid[:20], malformed: true},
		{name: "unsupported version", data: badVersion, malformed: true},
		{name: "short record header", data: valid[:pcapGlobalHeaderLength+10], truncated: true},
		{name: "short record body", data: valid[:len(valid)-1], truncated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capture, err := Parse(tt.data)
			require.Error(t, err)
			assert.Nil(t, capture)

			var malformed *MalformedHeaderError
			var truncated *TruncatedRecordError
			assert.Equal(t, tt.malformed, errors.As(err, &malformed))
			assert.Equal(t, tt.truncated, errors.As(err, &truncated))
		})
	}
}

func TestParsePcapTruncatedRecordDetails(t *testing.T) {
	data := pcapFile(binary.LittleEndian, pcapMagicMicroseconds, 1,
		pcapRecord{sec: 1, data: []byte{1, 2, 3, 4, 5, 6}},
	)

	_, err := Parse(data[:len(data)-2])

	var truncated *TruncatedRecordError
	require.ErrorAs(t, err, &truncated)
	assert.Equal(t, pcapGlobalHeaderLength, truncated.Offset)
	assert.Equal(t, 6, truncated.Declared)
	assert.Equal(t, 4, truncated.Remaining)
}

func TestParsePcapng(t *testing.T) {
	for name, order := range map[string]binary.AppendByteOrder{
		"little endian": binary.LittleEndian,
		"big endian":    binary.BigEndian,
	} {
		t.Run(name, func(t *testing.T) {
			data := concat(
				ngSectionHeader(order),
				ngInterfaceBlock(order, 1, 262144),
				ngEnhancedPacket(order, 0, 1537945792655360, []byte{0xaa, 0xbb, 0xcc}),
				// interface statistics block, skipped
				ngBlock(order, 5, make([]byte, 12)),
				ngEnhancedPacket(order, 0, 1537945792667334, []byte{0x01}),
			)

			capture, err := Parse(data)
			require.NoError(t, err)

			assert.Equal(t, FormatPcapng, capture.Format)
			assert.Equal(t, LinkTypeEthernet, capture.LinkType)
			assert.Equal(t, Microsecond, capture.Resolution)
			assert.Equal(t, uint32(262144), capture.SnapLen)
			require.Equal(t, 2, capture.Len())
			assert.Equal(t, Frame{0xaa, 0xbb, 0xcc}, capture.Frames[0].Frame)
			assert.Equal(t, Timestamp{Sec: 1537945792, Nsec: 655360000}, capture.Frames[0].Timestamp)
			assert.Equal(t, Timestamp{Sec: 1537945792, Nsec: 667334000}, capture.Frames[1].Timestamp)
		})
	}
}

func TestParsePcapngTimestampOptions(t *testing.T) {
	order := binary.LittleEndian

	tests := []struct {
		name       string
		options    [][]byte
		units      uint64
		expected   Timestamp
		resolution Resolution
	}{
		{
			name:       "nanoseconds",
			options:    [][]byte{ngOption(order, optionIfTsresol, []byte{9})},
			units:      5_000_000_123,
			expected:   Timestamp{Sec: 5, Nsec: 123},
			resolution: Nanosecond,
		},
		{
			name:       "milliseconds",
			options:    [][]byte{ngOption(order, optionIfTsresol, []byte{3})},
			units:      5_250,
			expected:   Timestamp{Sec: 5, Nsec: 250_000_000},
			resolution: Microsecond,
		},
		{
			name:       "binary exponent",
			options:    [][]byte{ngOption(order, optionIfTsresol, []byte{0x80 | 10})},
			units:      5*1024 + 512,
			expected:   Timestamp{Sec: 5, Nsec: 500_000_000},
			resolution: Microsecond,
		},
		{
			name: "offset",
			options: [][]byte{
				ngOption(order, optionIfTsoffset, binary.LittleEndian.AppendUint64(nil, 100)),
			},
			units:      1_000_001,
			expected:   Timestamp{Sec: 101, Nsec: 1000},
			resolution: Microsecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := concat(
				ngSectionHeader(order),
				ngInterfaceBlock(order, 101, 0, tt.options...),
				ngEnhancedPacket(order, 0, tt.units, []byte{0x45}),
			)

			capture, err := Parse(data)
			require.NoError(t, err)
			require.Equal(t, 1, capture.Len())
			assert.Equal(t, tt.expected, capture.Frames[0].Timestamp)
			assert.Equal(t, tt.resolution, capture.Resolution)
		})
	}
}

func TestParsePcapngSimpleAndObsoletePacketBlocks(t *testing.T) {
	order := binary.BigEndian

	simple := order.AppendUint32(nil, 5) // original length beyond the snap length
	simple = append(simple, 1, 2, 3, 4)

	obsolete := order.AppendUint16(nil, 0) // interface id
	obsolete = order.AppendUint16(obsolete, 0)
	obsolete = order.AppendUint32(obsolete, 0)
	obsolete = order.AppendUint32(obsolete, 2_000_000)
	obsolete = order.AppendUint32(obsolete, 2)
	obsolete = order.AppendUint32(obsolete, 2)
	obsolete = append(obsolete, 9, 9)

	data := concat(
		ngSectionHeader(order),
		ngInterfaceBlock(order, 1, 4),
		ngBlock(order, blockTypeSimplePacket, simple),
		ngBlock(order, blockTypePacket, obsolete),
	)

	capture, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, 2, capture.Len())
	assert.Equal(t, Frame{1, 2, 3, 4}, capture.Frames[0].Frame)
	assert.Equal(t, Timestamp{}, capture.Frames[0].Timestamp)
	assert.Equal(t, Frame{9, 9}, capture.Frames[1].Frame)
	assert.Equal(t, Timestamp{Sec: 2}, capture.Frames[1].Timestamp)
}

func TestParsePcapngMultipleSections(t *testing.T) {
	data := concat(
		ngSectionHeader(binary.LittleEndian),
		ngInterfaceBlock(binary.LittleEndian, 1, 0),
		ngEnhancedPacket(binary.LittleEndian, 0, 1_000_000, []byte{1}),
		ngSectionHeader(binary.BigEndian),
		ngInterfaceBlock(binary.BigEndian, 1, 0, ngOption(binary.BigEndian, optionIfTsresol, []byte{9})),
		ngEnhancedPacket(binary.BigEndian, 0, 2_000_000_001, []byte{2}),
	)

	capture, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, 2, capture.Len())
	assert.Equal(t, Timestamp{Sec: 1}, capture.Frames[0].Timestamp)
	assert.Equal(t, Timestamp{Sec: 2, Nsec: 1}, capture.Frames[1].Timestamp)
	assert.Equal(t, Nanosecond, capture.Resolution)
}

func TestParsePcapngErrors(t *testing.T) {
	order := binary.LittleEndian

	mismatchedTrailer := concat(ngSectionHeader(order), ngInterfaceBlock(order, 1, 0))
	order.PutUint32(mismatchedTrailer[len(mismatchedTrailer)-4:], 24)

	badVersion := ngSectionHeader(order)
	order.PutUint16(badVersion[12:], 2)

	badByteOrder := ngSectionHeader(order)
	order.PutUint32(badByteOrder[8:], 0x12345678)

	oddLength := concat(ngSectionHeader(order), ngInterfaceBlock(order, 1, 0))
	order.PutUint32(oddLength[28+4:], 19)

	tests := []struct {
		name      string
		data      []byte
		malformed bool
		truncated bool
	}{
		{
			name:      "undeclared interface",
			data:      concat(ngSectionHeader(order), ngEnhancedPacket(order, 0, 0, []byte{1})),
			malformed: true,
		},
		{
			name: "differing link-types",
			data: concat(
				ngSectionHeader(order),
				ngInterfaceBlock(order, 1, 0),
				ngInterfaceBlock(order, 101, 0),
			),
			malformed: true,
		},
		{name: "trailing length mismatch", data: mismatchedTrailer, malformed: true},
		{name: "unsupported version", data: badVersion, malformed: true},
		{name: "unknown byte order", data: badByteOrder, malformed: true},
		{name: "block length not a multiple of four", data: oddLength, malformed: true},
		{
			name: "block beyond the end",
			data: func() []byte {
				data := concat(ngSectionHeader(order), ngInterfaceBlock(order, 1, 0))
				return data[:len(data)-4]
			}(),
			truncated: true,
		},
		{
			name:      "no section header",
			data:      concat(ngSectionHeader(order)[:4], ngInterfaceBlock(order, 1, 0)),
			truncated: false,
			malformed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			require.Error(t, err)

			var malformed *MalformedHeaderError
			var truncated *TruncatedRecordError
			assert.Equal(t, tt.malformed, errors.As(err, &malformed), err.Error())
			assert.Equal(t, tt.truncated, errors.As(err, &truncated), err.Error())
		})
	}
}

func testFrames() []FrameAndTimestamp {
	return []FrameAndTimestamp{
		{Frame: Frame{0x01, 0x02, 0x03}, Timestamp: Timestamp{Sec: 1537945792, Nsec: 655360000}},
		{Frame: Frame{0x04}, Timestamp: Timestamp{Sec: 1537945792, Nsec: 667334000}},
		{Frame: Frame{0x05, 0x06, 0x07, 0x08, 0x09}, Timestamp: Timestamp{Sec: 1537945793}},
	}
}

func nanosecondFrames() []FrameAndTimestamp {
	frames := testFrames()
	frames[1].Timestamp.Nsec += 1
	return frames
}

func TestSerializeRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatPcap, FormatPcapng} {
		for name, frames := range map[string][]FrameAndTimestamp{
			"microseconds": testFrames(),
			"nanoseconds":  nanosecondFrames(),
			"empty":        nil,
		} {
			t.Run(format.String()+" "+name, func(t *testing.T) {
				data, err := Serialize(frames, LinkTypeEthernet, format)
				require.NoError(t, err)

				capture, err := Parse(data)
				require.NoError(t, err)

				assert.Equal(t, format, capture.Format)
				assert.Equal(t, LinkTypeEthernet, capture.LinkType)
				assert.Equal(t, resolutionFor(frames), capture.Resolution)
				require.Equal(t, len(frames), capture.Len())
				for i := range frames {
					assert.Equal(t, frames[i].Frame, capture.Frames[i].Frame)
					assert.Equal(t, frames[i].Timestamp, capture.Frames[i].Timestamp)
				}
			})
		}
	}
}

func TestSerializeSnapLen(t *testing.T) {
	long := make(Frame, defaultSnapLen+10)
	data, err := Serialize([]FrameAndTimestamp{{Frame: long}}, LinkTypeRaw, FormatPcap)
	require.NoError(t, err)

	capture, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(defaultSnapLen+10), capture.SnapLen)

	data, err = Serialize(testFrames(), LinkTypeRaw, FormatPcap)
	require.NoError(t, err)
	capture, err = Parse(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(defaultSnapLen), capture.SnapLen)
}

func TestSerializeErrors(t *testing.T) {
	_, err := Serialize(testFrames(), LinkType(0x10000), FormatPcapng)
	var unsupported *UnsupportedLinkTypeError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, LinkType(0x10000), unsupported.LinkType)

	negative := []FrameAndTimestamp{{Frame: Frame{1}, Timestamp: Timestamp{Sec: -1}}}
	for _, format := range []Format{FormatPcap, FormatPcapng} {
		_, err = Serialize(negative, LinkTypeEthernet, format)
		assert.Error(t, err)
	}
}

// The serialized files must be readable by an independent implementation.
func TestSerializeReadableByPcapgo(t *testing.T) {
	for name, frames := range map[string][]FrameAndTimestamp{
		"microseconds": testFrames(),
		"nanoseconds":  nanosecondFrames(),
	} {
		t.Run("pcap "+name, func(t *testing.T) {
			data, err := Serialize(frames, LinkTypeEthernet, FormatPcap)
			require.NoError(t, err)

			reader, err := pcapgo.NewReader(bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, uint32(LinkTypeEthernet), uint32(reader.LinkType()))

			for _, expected := range frames {
				packet, info, err := reader.ReadPacketData()
				require.NoError(t, err)
				assert.Equal(t, []byte(expected.Frame), packet)
				assert.True(t, expected.Timestamp.Time().Equal(info.Timestamp), info.Timestamp.String())
			}
			_, _, err = reader.ReadPacketData()
			assert.ErrorIs(t, err, io.EOF)
		})

		t.Run("pcapng "+name, func(t *testing.T) {
			data, err := Serialize(frames, LinkTypeEthernet, FormatPcapng)
			require.NoError(t, err)

			reader, err := pcapgo.NewNgReader(bytes.NewReader(data), pcapgo.DefaultNgReaderOptions)
			require.NoError(t, err)
			assert.Equal(t, uint32(LinkTypeEthernet), uint32(reader.LinkType()))

			for _, expected := range frames {
				packet, info, err := reader.ReadPacketData()
				require.NoError(t, err)
				assert.Equal(t, []byte(expected.Frame), packet)
				assert.True(t, expected.Timestamp.Time().Equal(info.Timestamp), info.Timestamp.String())
			}
			_, _, err = reader.ReadPacketData()
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestReadFileWrapsErrorsWithPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.pcap")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3, 4, 5}, 0o644))

	_, err := ReadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)

	var malformed *MalformedHeaderError
	assert.ErrorAs(t, err, &malformed)
}

func TestReadFiles(t *testing.T) {
	dir := t.TempDir()
	paths := make([]string, 0, 3)
	for i, name := range []string{"c.pcap", "a.pcapng", "b.pcap"} {
		format := FormatPcap
		if filepath.Ext(name) == ".pcapng" {
			format = FormatPcapng
		}
		frames := []FrameAndTimestamp{{Frame: Frame{byte(i)}, Timestamp: Timestamp{Sec: int64(i)}}}
		data, err := Serialize(frames, LinkTypeEthernet, format)
		require.NoError(t, err)

		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, data, 0o644))
		paths = append(paths, path)
	}

	statusChan := make(chan int, len(paths))
	captures, err := ReadFiles(paths, 2, statusChan)
	require.NoError(t, err)
	close(statusChan)

	require.Len(t, captures, 3)
	for i, capture := range captures {
		assert.Equal(t, filepath.Base(paths[i]), capture.Name)
		assert.Equal(t, Frame{byte(i)}, capture.Frames[0].Frame)
	}
	assert.Equal(t, FormatPcapng, captures[1].Format)

	statuses := 0
	for range statusChan {
		statuses++
	}
	assert.Equal(t, 3, statuses)

	_, err = ReadFiles(append(paths, filepath.Join(dir, "missing.pcap")), 0, nil)
	assert.Error(t, err)
}

func TestExpandPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pcapng", "a.pcap", "notes.txt", "c.CAP"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.pcap"), 0o755))

	explicit := filepath.Join(dir, "notes.txt")
	paths, err := ExpandPaths([]string{explicit, dir})
	require.NoError(t, err)

	assert.Equal(t, []string{
		explicit,
		filepath.Join(dir, "a.pcap"),
		filepath.Join(dir, "b.pcapng"),
		filepath.Join(dir, "c.CAP"),
	}, paths)

	_, err = ExpandPaths([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestTimestamp(t *testing.T) {
	a := NewTimestamp(1, 2_500_000_000)
	assert.Equal(t, Timestamp{Sec: 3, Nsec: 500_000_000}, a)

	b := Timestamp{Sec: 3, Nsec: 600_000_000}
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.Equal(t, 0, a.Compare(a))
	assert.Equal(t, int64(100_000_000), int64(b.Sub(a)))
	assert.Equal(t, a, TimestampFromTime(a.Time()))
}
