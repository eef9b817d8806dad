package summary

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// bytesPerLine is the width of a hex dump line.
const bytesPerLine = 16

// WriteText writes one block per item: the count, the frame as one hex string and a hex dump
// that text2pcap reads back.
//
//	Count: 3
//	Frame hex: 881544ab...
//	0000  88 15 44 ab ...
func WriteText(w io.Writer, items []Item) error {
	var builder strings.Builder
	for i, item := range items {
		if i > 0 {
			builder.WriteByte('\n')
		}
		fmt.Fprintf(&builder, "Count: %d\n", item.Count)
		fmt.Fprintf(&builder, "Frame hex: %s\n", hex.EncodeToString(item.Frame))
		builder.WriteString(HexDump(item.Frame))
	}

	_, err := io.WriteString(w, builder.String())
	return err
}

// HexDump formats a frame as lines of a four digit hex offset followed by up to 16 bytes.
func HexDump(frame []byte) string {
	var builder strings.Builder
	for offset := 0; offset < len(frame); offset += bytesPerLine {
		end := min(offset+bytesPerLine, len(frame))

		fmt.Fprintf(&builder, "%04x ", offset)
		for _, b := range frame[offset:end] {
			fmt.Fprintf(&builder, " %02x", b)
		}
		builder.WriteByte('\n')
	}
	return builder.String()
}
