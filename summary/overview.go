package summary

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/ajanusdev/pcapmath/capture"
)

// CaptureOverview describes the time span of one capture.
//
//	Name		string				- the name of the capture
//	Format		capture.Format		- the layout the capture was read from
//	LinkType	capture.LinkType	- the link-type of the frames
//	Resolution	capture.Resolution	- the timestamp resolution of the file
//	Frames		int					- the number of frames
//	First		capture.Timestamp	- the earliest timestamp, zero for an empty capture
//	Last		capture.Timestamp	- the latest timestamp, zero for an empty capture
//	Duration	time.Duration		- the time between First and Last
//	Empty		bool				- true if the capture has no frames
type CaptureOverview struct {
	Name       string
	Format     capture.Format
	LinkType   capture.LinkType
	Resolution capture.Resolution
	Frames     int
	First      capture.Timestamp
	Last       capture.Timestamp
	Duration   time.Duration
	Empty      bool
}

// Overview returns the overview of every capture in input order.
func Overview(captures []*capture.Capture) []CaptureOverview {
	overviews := make([]CaptureOverview, 0, len(captures))
	for _, input := range captures {
		overview := CaptureOverview{
			Name:       input.Name,
			Format:     input.Format,
			LinkType:   input.LinkType,
			Resolution: input.Resolution,
			Frames:     input.Len(),
		}

		first, ok := input.FirstTimestamp()
		if !ok {
			overview.Empty = true
			overviews = append(overviews, overview)
			continue
		}
		last, _ := input.LastTimestamp()
		overview.First = first
		overview.Last = last
		overview.Duration = last.Sub(first)

		overviews = append(overviews, overview)
	}
	return overviews
}

// WriteOverview writes the overviews as an aligned table with a header line.
// First and last timestamps are UTC, empty captures show a dash instead.
func WriteOverview(w io.Writer, overviews []CaptureOverview) error {
	table := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(table, "NAME\tFORMAT\tLINKTYPE\tFRAMES\tFIRST\tLAST\tDURATION")

	for _, overview := range overviews {
		first, last, duration := "-", "-", "-"
		if !overview.Empty {
			layout := timeLayout(overview.Resolution)
			first = overview.First.Time().Format(layout)
			last = overview.Last.Time().Format(layout)
			duration = overview.Duration.String()
		}
		fmt.Fprintf(table, "%s\t%s/%s\t%s\t%d\t%s\t%s\t%s\n",
			overview.Name, overview.Format, overview.Resolution, overview.LinkType, overview.Frames, first, last, duration)
	}

	return table.Flush()
}

func timeLayout(resolution capture.Resolution) string {
	if resolution == capture.Nanosecond {
		return "2006-01-02T15:04:05.000000000Z"
	}
	return "2006-01-02T15:04:05.000000Z"
}
