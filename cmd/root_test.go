package cmd

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/ajanusdev/pcapmath/canonical"
	"github.com/ajanusdev/pcapmath/capture"
	"github.com/ajanusdev/pcapmath/setAlgebra"
	"github.com/ajanusdev/pcapmath/summary"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func frameAt(frame string, sec int64) capture.FrameAndTimestamp {
	return capture.FrameAndTimestamp{Frame: capture.Frame(frame), Timestamp: capture.Timestamp{Sec: sec}}
}

func writeCapture(t *testing.T, path string, format capture.Format, frames ...capture.FrameAndTimestamp) {
	t.Helper()
	data, err := capture.Serialize(frames, capture.LinkTypeEthernet, format)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// inputs writes a.pcap with {x, y, x} and b.pcapng with {y, z}.
func inputs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeCapture(t, filepath.Join(dir, "a.pcap"), capture.FormatPcap, frameAt("x", 1), frameAt("y", 2), frameAt("x", 3))
	writeCapture(t, filepath.Join(dir, "b.pcapng"), capture.FormatPcapng, frameAt("y", 4), frameAt("z", 5))
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer

	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)

	err := root.Execute()
	return out.String(), err
}

func readFrames(t *testing.T, path string) []string {
	t.Helper()
	read, err := capture.ReadFile(path)
	require.NoError(t, err)

	frames := make([]string, 0, read.Len())
	for _, frame := range read.Frames {
		frames = append(frames, string(frame.Frame))
	}
	return frames
}

func TestOverviewWithoutOperations(t *testing.T) {
	dir := inputs(t)

	out, err := execute(t, dir)
	require.NoError(t, err)

	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "a.pcap")
	assert.Contains(t, out, "b.pcapng")
	assert.Contains(t, out, "pcapng/us")
}

func TestOperationsWriteCaptures(t *testing.T) {
	dir := inputs(t)
	outDir := t.TempDir()

	_, err := execute(t, "-u", "-i", "-d", "-s", "-o", "pcap,pcapng", "--out-dir", outDir, "--progress=false",
		filepath.Join(dir, "a.pcap"), filepath.Join(dir, "b.pcapng"))
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "y", "z"}, readFrames(t, filepath.Join(outDir, "union.pcap")))
	assert.Equal(t, []string{"x", "y", "z"}, readFrames(t, filepath.Join(outDir, "union.pcapng")))
	assert.Equal(t, []string{"y"}, readFrames(t, filepath.Join(outDir, "intersect.pcap")))
	assert.Equal(t, []string{"x"}, readFrames(t, filepath.Join(outDir, "diff_a.pcap")))
	assert.Equal(t, []string{"x"}, readFrames(t, filepath.Join(outDir, "symdiff_a.pcap")))
	assert.Equal(t, []string{"z"}, readFrames(t, filepath.Join(outDir, "symdiff_b.pcap")))
}

func TestExistingOutputs(t *testing.T) {
	dir := inputs(t)
	outDir := t.TempDir()
	args := []string{"-u", "-o", "pcap", "--out-dir", outDir, dir}

	_, err := execute(t, args...)
	require.NoError(t, err)

	_, err = execute(t, args...)
	assert.ErrorIs(t, err, fs.ErrExist)

	_, err = execute(t, append([]string{"--overwrite"}, args...)...)
	assert.NoError(t, err)
}

func TestCapturesWithTheSameName(t *testing.T) {
	dir := t.TempDir()
	lan, wan := filepath.Join(dir, "lan"), filepath.Join(dir, "wan")
	require.NoError(t, os.Mkdir(lan, 0o755))
	require.NoError(t, os.Mkdir(wan, 0o755))
	writeCapture(t, filepath.Join(lan, "cap.pcap"), capture.FormatPcap, frameAt("x", 1), frameAt("y", 2))
	writeCapture(t, filepath.Join(wan, "cap.pcap"), capture.FormatPcap, frameAt("y", 3), frameAt("z", 4))
	outDir := t.TempDir()

	_, err := execute(t, "-s", "-o", "pcap,txt", "--out-dir", outDir, lan, wan)
	require.NoError(t, err)

	assert.Equal(t, []string{"x"}, readFrames(t, filepath.Join(outDir, "symdiff_cap-1.pcap")))
	assert.Equal(t, []string{"z"}, readFrames(t, filepath.Join(outDir, "symdiff_cap-2.pcap")))

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	assert.ElementsMatch(t, []string{"symdiff_cap-1.pcap", "symdiff_cap-2.pcap", "symdiff_cap-1.txt", "symdiff_cap-2.txt"}, names)
}

func TestFramesWithoutIPv4(t *testing.T) {
	dir := inputs(t)

	// every test frame is too short to carry an IPv4 header
	out, err := execute(t, "-3", "-u", "--summary", "--out-dir", t.TempDir(), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "== union: 0 frames ==\n")
	assert.Contains(t, out, "skipped 3 of 3 frames of a.pcap without an IPv4 header\n")
	assert.Contains(t, out, "skipped 2 of 2 frames of b.pcapng without an IPv4 header\n")

	outDir := t.TempDir()
	_, err = execute(t, "-3", "-u", "--fail-unsupported", "--out-dir", outDir, dir)
	var unsupported *canonical.UnsupportedProtocolError
	require.ErrorAs(t, err, &unsupported)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReportOutputs(t *testing.T) {
	dir := inputs(t)
	outDir := t.TempDir()

	_, err := execute(t, "-u", "-i", "-x", "-o", "txt,yaml,cbor", "--top", "1", "--count-mode", "occurrences",
		"--out-dir", outDir, dir)
	require.NoError(t, err)

	// no capture format was requested
	_, err = os.Stat(filepath.Join(outDir, "union.pcapng"))
	assert.ErrorIs(t, err, fs.ErrNotExist)

	text, err := os.ReadFile(filepath.Join(outDir, "union.txt"))
	require.NoError(t, err)
	// x and y both occur twice, x comes first
	assert.Equal(t, "Count: 2\nFrame hex: 78\n0000  78\n", string(text))

	yamlReport, err := os.ReadFile(filepath.Join(outDir, "intersect.yaml"))
	require.NoError(t, err)
	var fromYAML summary.Report
	require.NoError(t, yaml.Unmarshal(yamlReport, &fromYAML))
	assert.Equal(t, "intersect", fromYAML.Name)
	assert.Equal(t, 1, fromYAML.Frames)

	cborReport, err := os.ReadFile(filepath.Join(outDir, "union.cbor"))
	require.NoError(t, err)
	var fromCBOR summary.Report
	require.NoError(t, cbor.Unmarshal(cborReport, &fromCBOR))
	assert.Equal(t, "union", fromCBOR.Name)
	assert.Equal(t, 3, fromCBOR.Frames)
	require.Len(t, fromCBOR.Top, 1)
	assert.Equal(t, 2, fromCBOR.Top[0].Count)
}

func TestSummary(t *testing.T) {
	dir := inputs(t)

	out, err := execute(t, "-u", "--summary", "-o", "txt", "--out-dir", t.TempDir(), dir)
	require.NoError(t, err)

	assert.Contains(t, out, "== union: 3 frames ==\nCount: 2\nFrame hex: 79\n")
	assert.Contains(t, out, "Count: 1\nFrame hex: 78\n")
}

func TestValidationBeforeOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "only.pcap")
	writeCapture(t, input, capture.FormatPcap, frameAt("x", 1))
	outDir := t.TempDir()

	_, err := execute(t, "-u", "-d", "--out-dir", outDir, input)

	var insufficient *setAlgebra.InsufficientInputsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, setAlgebra.Difference, insufficient.Operation)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMalformedInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "broken.pcap")
	require.NoError(t, os.WriteFile(input, []byte("not a capture file"), 0o644))

	_, err := execute(t, "-u", "--out-dir", t.TempDir(), input)

	var malformed *capture.MalformedHeaderError
	require.True(t, errors.As(err, &malformed))
	assert.Contains(t, err.Error(), "broken.pcap")
}

func TestArguments(t *testing.T) {
	_, err := execute(t, "-u")
	assert.Error(t, err)

	_, err = execute(t, "-u", t.TempDir())
	assert.ErrorContains(t, err, "no capture files found")

	_, err = execute(t, "-u", "-o", "csv", inputs(t))
	assert.ErrorContains(t, err, "invalid output format")
}

func TestShowLicenses(t *testing.T) {
	out, err := execute(t, "--show-licenses")
	require.NoError(t, err)
	assert.Contains(t, out, "github.com/google/gopacket\tBSD-3-Clause\n")
}
