package capture

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Parse detects the format of a capture file from its magic number and parses it.
//
// Takes:
//	data	[]byte	- the complete content of a pcap or pcapng file
//
// Returns:
//	*Capture	- the parsed capture, the frames share the memory of data
//	error		- a *MalformedHeaderError or *TruncatedRecordError, nil if the file is valid
func Parse(data []byte) (*Capture, error) {
	if len(data) < 4 {
		return nil, &MalformedHeaderError{
			Offset: 0,
			Reason: fmt.Sprintf("need at least 4 bytes to detect the format, got %d", len(data)),
		}
	}

	magic := binary.BigEndian.Uint32(data[0:4])
	switch {
	case isPcapMagic(magic):
		return parsePcap(data)
	case magic == blockTypeSectionHeader:
		return parsePcapng(data)
	}

	return nil, &MalformedHeaderError{Offset: 0, Reason: fmt.Sprintf("unknown magic number 0x%08x", magic)}
}

// Serialize writes frames in the given order as a capture file of the given format.
// The timestamp resolution is nanoseconds if any timestamp needs it, otherwise microseconds.
//
// Takes:
//	frames		[]FrameAndTimestamp	- the frames to write, in file order
//	linkType	LinkType			- the link-type of all frames
//	format		Format				- either FormatPcap or FormatPcapng
//
// Returns:
//	[]byte	- the complete file
//	error	- an *UnsupportedLinkTypeError if the link-type can't be stored, nil if not
func Serialize(frames []FrameAndTimestamp, linkType LinkType, format Format) ([]byte, error) {
	if linkType > maxLinkType {
		return nil, &UnsupportedLinkTypeError{LinkType: linkType, Format: format}
	}

	switch format {
	case FormatPcap:
		return serializePcap(frames, linkType)
	case FormatPcapng:
		return serializePcapng(frames, linkType)
	}

	return nil, fmt.Errorf("unknown capture format %s", format)
}

// ReadFile reads and parses a capture file.
// The name of the capture is the base name of the path.
// Errors are wrapped with the path, the typed errors of Parse stay reachable with errors.As.
func ReadFile(path string) (*Capture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	capture, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	capture.Name = filepath.Base(path)

	return capture, nil
}

// ReadFiles reads and parses capture files in parallel.
//
// Takes:
//	paths		[]string	- the paths of the capture files
//	workers		int			- the maximum number of files parsed at the same time, no limit if below 1
//	statusChan	chan<- int	- receives the number of finished files after each file, may be nil,
//							  must be able to buffer len(paths) values
//
// Returns:
//	[]*Capture	- the captures in the order of the paths
//	error		- the first error that occurred, nil if every file was parsed
func ReadFiles(paths []string, workers int, statusChan chan<- int) ([]*Capture, error) {
	captures := make([]*Capture, len(paths))

	group := errgroup.Group{}
	if workers > 0 {
		group.SetLimit(workers)
	}

	var finished atomic.Int64
	for i, path := range paths {
		group.Go(func() error {
			capture, err := ReadFile(path)
			if err != nil {
				return err
			}
			captures[i] = capture

			if statusChan != nil {
				statusChan <- int(finished.Add(1))
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return captures, nil
}

// captureExtensions are the file extensions picked up when a directory is expanded.
var captureExtensions = []string{".pcap", ".pcapng", ".cap"}

// ExpandPaths replaces each directory in paths with the capture files it directly contains.
// Files named explicitly are kept regardless of their extension.
// The files found in one directory are sorted by name, the order of the arguments is kept.
func ExpandPaths(paths []string) ([]string, error) {
	expanded := make([]string, 0, len(paths))

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			expanded = append(expanded, path)
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		found := make([]string, 0, len(entries))
		for _, entry := range entries {
			if entry.IsDir() || !hasCaptureExtension(entry.Name()) {
				continue
			}
			found = append(found, filepath.Join(path, entry.Name()))
		}
		sort.Strings(found)
		expanded = append(expanded, found...)
	}

	return expanded, nil
}

func hasCaptureExtension(name string) bool {
	extension := strings.ToLower(filepath.Ext(name))
	for _, captureExtension := range captureExtensions {
		if extension == captureExtension {
			return true
		}
	}
	return false
}
