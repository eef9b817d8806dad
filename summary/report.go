package summary

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/ajanusdev/pcapmath/setAlgebra"
	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// Report is the machine readable summary of one result.
//
//	Name		string			- the name of the result
//	Operation	string			- the name of the operation computed
//	LinkType	string			- the link-type of the frames written for the result
//	Frames		int				- the number of frames of the result
//	Timeline	[]ReportPoint	- the frames of the result on a timeline
//	Top			[]ReportItem	- the most frequent keys, empty if not requested
type Report struct {
	Name      string        `yaml:"name" cbor:"name"`
	Operation string        `yaml:"operation" cbor:"operation"`
	LinkType  string        `yaml:"linkType" cbor:"linkType"`
	Frames    int           `yaml:"frames" cbor:"frames"`
	Timeline  []ReportPoint `yaml:"timeline" cbor:"timeline"`
	Top       []ReportItem  `yaml:"top,omitempty" cbor:"top,omitempty"`
}

// ReportPoint is one frame of a Report timeline, the timestamp in seconds with nine fractional digits.
type ReportPoint struct {
	Frame     int    `yaml:"frame" cbor:"frame"`
	Timestamp string `yaml:"timestamp" cbor:"timestamp"`
}

// ReportItem is one frequent key of a Report with its frame as a hex string.
type ReportItem struct {
	Count     int    `yaml:"count" cbor:"count"`
	Timestamp string `yaml:"timestamp" cbor:"timestamp"`
	Frame     string `yaml:"frame" cbor:"frame"`
}

// NewReport is a constructor for the Report of a result.
//
// Takes:
//	result	*setAlgebra.OperationResult	- the result to report
//	top		int							- the number of frequent keys to add, none if below 1
//	mode	CountMode					- what is counted for the frequent keys
//
// Returns:
//	*Report	- a pointer to the constructed Report
func NewReport(result *setAlgebra.OperationResult, top int, mode CountMode) *Report {
	report := &Report{
		Name:      result.Name(),
		Operation: result.Operation().String(),
		LinkType:  result.LinkType().String(),
		Frames:    result.Len(),
		Timeline:  make([]ReportPoint, 0, result.Len()),
	}

	for _, point := range result.Timeline() {
		report.Timeline = append(report.Timeline, ReportPoint{
			Frame:     point.FrameNumber,
			Timestamp: point.Timestamp.String(),
		})
	}

	if top > 0 {
		for _, item := range TopK(result, top, mode) {
			report.Top = append(report.Top, ReportItem{
				Count:     item.Count,
				Timestamp: item.Timestamp.String(),
				Frame:     hex.EncodeToString(item.Frame),
			})
		}
	}

	return report
}

// WriteYAML writes the reports as a stream of YAML documents, one per report.
func WriteYAML(w io.Writer, reports ...*Report) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	for _, report := range reports {
		if err := encoder.Encode(report); err != nil {
			return fmt.Errorf("encoding report %s: %w", report.Name, err)
		}
	}
	return encoder.Close()
}

// WriteCBOR writes the reports as a CBOR sequence, one data item per report.
// The encoding is deterministic, equal reports always have equal bytes.
func WriteCBOR(w io.Writer, reports ...*Report) error {
	encMode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return err
	}

	encoder := encMode.NewEncoder(w)
	for _, report := range reports {
		if err := encoder.Encode(report); err != nil {
			return fmt.Errorf("encoding report %s: %w", report.Name, err)
		}
	}
	return nil
}
