package setAlgebra

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ajanusdev/pcapmath/capture"
)

// Operation is one of the set operations the Engine can compute.
type Operation int8

// Public constants for the operations.
//
// Union is 0. InverseBoundedDifference is 5.
const (
	Union Operation = iota
	Intersection
	Difference
	SymmetricDifference
	BoundedIntersection
	InverseBoundedDifference
)

// AllOperations lists every operation in the order results are returned.
var AllOperations = []Operation{
	Union,
	Intersection,
	Difference,
	SymmetricDifference,
	BoundedIntersection,
	InverseBoundedDifference,
}

var operationNames = map[Operation]string{
	Union:                    "union",
	Intersection:             "intersect",
	Difference:               "difference",
	SymmetricDifference:      "symmetric-difference",
	BoundedIntersection:      "bounded-intersect",
	InverseBoundedDifference: "inverse-bounded",
}

func (operation Operation) String() string {
	if name, ok := operationNames[operation]; ok {
		return name
	}
	return fmt.Sprintf("Operation(%d)", int8(operation))
}

// ParseOperation returns the Operation with the given name, as returned by String.
func ParseOperation(name string) (Operation, error) {
	for operation, operationName := range operationNames {
		if operationName == name {
			return operation, nil
		}
	}
	return 0, fmt.Errorf("unknown operation %q", name)
}

// perInput reports whether the operation produces one result for every input instead of a single one.
func (operation Operation) perInput() bool {
	switch operation {
	case SymmetricDifference, BoundedIntersection, InverseBoundedDifference:
		return true
	}
	return false
}

// minimumInputs returns the number of captures the operation needs.
func (operation Operation) minimumInputs() int {
	if operation == Union || operation == Intersection {
		return 1
	}
	return 2
}

// resultName returns the name of the result of an operation, the base name of its output files.
//
// Takes:
//	operation	Operation	- the computed operation
//	inputName	string		- the name of the input the result belongs to,
//							  the first input for Difference, ignored for Union and Intersection
func resultName(operation Operation, inputName string) string {
	switch operation {
	case Union:
		return "union"
	case Intersection:
		return "intersect"
	case Difference:
		return "diff_" + inputName
	case SymmetricDifference:
		return "symdiff_" + inputName
	case BoundedIntersection:
		return "bounded_intersect-" + inputName
	case InverseBoundedDifference:
		return "inverse_bounded-" + inputName
	}
	return operation.String()
}

// inputName returns the file name of a capture without its extension.
// Captures without a name are numbered starting at 1.
func inputName(name string, input int) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if name == "" || base == "" || base == "." {
		return fmt.Sprintf("input%d", input+1)
	}
	return base
}

// uniqueInputNames returns the names of the captures as used in result names, in input order.
// Captures sharing a name get their input number appended, "cap-1" and "cap-2",
// so every capture keeps its own output files.
func uniqueInputNames(captures []*capture.Capture) []string {
	names := make([]string, len(captures))
	uses := make(map[string]int, len(captures))
	for input, inputCapture := range captures {
		names[input] = inputName(inputCapture.Name, input)
		uses[names[input]]++
	}

	taken := make(map[string]bool, len(captures))
	for _, name := range names {
		if uses[name] == 1 {
			taken[name] = true
		}
	}

	for input, name := range names {
		if uses[name] == 1 {
			continue
		}
		suffix := fmt.Sprintf("-%d", input+1)
		unique := name + suffix
		for taken[unique] { // another capture is already called like this
			unique += suffix
		}
		taken[unique] = true
		names[input] = unique
	}
	return names
}

// sortEntries sorts entries by ascending timestamp, ties are broken by input and position.
func sortEntries(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if c := entries[i].Timestamp.Compare(entries[j].Timestamp); c != 0 {
			return c < 0
		}
		if entries[i].Input != entries[j].Input {
			return entries[i].Input < entries[j].Input
		}
		return entries[i].Position < entries[j].Position
	})
}
