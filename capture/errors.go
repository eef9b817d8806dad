package capture

import "fmt"

// MalformedHeaderError is returned when a file or block header can't be understood,
// e.g. an unknown magic number or an unsupported version.
type MalformedHeaderError struct {
	Offset int
	Reason string
}

func (err *MalformedHeaderError) Error() string {
	return fmt.Sprintf("malformed header at offset %d: %s", err.Offset, err.Reason)
}

// TruncatedRecordError is returned when a record declares more bytes than the file has left.
type TruncatedRecordError struct {
	Offset    int
	Declared  int
	Remaining int
}

func (err *TruncatedRecordError) Error() string {
	return fmt.Sprintf("truncated record at offset %d: declares %d bytes but only %d remain",
		err.Offset, err.Declared, err.Remaining)
}

// UnsupportedLinkTypeError is returned when a capture with the requested link-type can't be written.
type UnsupportedLinkTypeError struct {
	LinkType LinkType
	Format   Format
}

func (err *UnsupportedLinkTypeError) Error() string {
	return fmt.Sprintf("link-type %s can't be written as %s", err.LinkType, err.Format)
}
