// Package capture reads and writes packet-capture files.
//
// Both the classic pcap layout and pcapng are parsed directly from their byte layouts,
// without a capture library or an external dissector.
// A parsed file becomes a Capture, an ordered, read-only sequence of frames and their timestamps
// together with the metadata of the file (format, link-type, timestamp resolution, snap length).
// Serialize turns an ordered sequence of frames back into a valid capture file.
package capture
