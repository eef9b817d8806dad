package setAlgebra

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ajanusdev/pcapmath/canonical"
	"github.com/ajanusdev/pcapmath/capture"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Options configures an Engine.
//
//	Canonical			canonical.Options	- the headers stripped before the frames are keyed
//	Workers				int					- the maximum number of captures indexed and results computed in parallel,
//											  no limit if below 1
//	FailOnUnsupported	bool				- abort the indexing on the first frame whose headers can't be
//											  neutralized instead of skipping it
type Options struct {
	Canonical         canonical.Options
	Workers           int
	FailOnUnsupported bool
}

// Engine computes set operations over the frames of several captures.
// The captures are indexed once, the first time Run is called, and the index is shared by all operations.
//
//	captures			[]*capture.Capture	- the input captures in input order
//	inputNames			[]string			- the distinct names of the captures used in result names
//	options				Options				- the options of the engine
//	logger				logrus.FieldLogger	- the logger to report to
//	keyMaps				[]*KeyMap			- one map per capture, nil until indexed
//	skipped				[]int				- the number of frames per capture that couldn't be keyed
//	indexOnce			sync.Once			- guards the indexing
//	indexErr			error				- the error of the indexing
//	statusChan			chan int			- a channel to transfer the number of indexed frames for status updates
//	chansToGetStatus	[]chan int			- other parts of the software can register for status updates
//										  via a channel, these channels are stored here
type Engine struct {
	captures   []*capture.Capture
	inputNames []string
	options    Options
	logger     logrus.FieldLogger

	keyMaps   []*KeyMap
	skipped   []int
	indexOnce sync.Once
	indexErr  error

	statusChan       chan int
	chansToGetStatus []chan int
}

// NewEngine is a constructor for the Engine struct.
// Call Run to compute operations.
//
// Takes:
//	captures	[]*capture.Capture	- the captures to compute the operations on, in input order
//	options		Options				- the options of the engine
//	logger		logrus.FieldLogger	- the logger to report to, the standard logger if nil
//
// Returns:
//	*Engine	- a pointer to the constructed Engine, the captures aren't indexed
func NewEngine(captures []*capture.Capture, options Options, logger logrus.FieldLogger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	totalFrames := 0
	for _, input := range captures {
		totalFrames += input.Len()
	}

	engine := &Engine{
		captures:         captures,
		inputNames:       uniqueInputNames(captures),
		options:          options,
		logger:           logger,
		statusChan:       make(chan int, totalFrames),
		chansToGetStatus: make([]chan int, 0),
	}

	engine.warnAboutMixedLinkTypes()

	for input, inputCapture := range captures {
		if name := engine.inputNames[input]; name != inputName(inputCapture.Name, input) {
			logger.WithFields(logrus.Fields{
				"input": inputCapture.Name,
				"name":  name,
			}).Info("captures share a name, results of this capture are numbered")
		}
	}

	return engine
}

// warnAboutMixedLinkTypes logs a warning if unstripped captures with different link-types are combined,
// such frames never share a key and results built from all captures carry the link-type of the first one.
func (engine *Engine) warnAboutMixedLinkTypes() {
	if engine.options.Canonical.Stripping() || len(engine.captures) < 2 {
		return
	}

	linkTypes := make([]string, 0, len(engine.captures))
	mixed := false
	for _, input := range engine.captures {
		linkTypes = append(linkTypes, input.LinkType.String())
		if input.LinkType != engine.captures[0].LinkType {
			mixed = true
		}
	}
	if mixed {
		engine.logger.WithField("linkTypes", strings.Join(linkTypes, ",")).
			Warn("captures have different link-types, consider stripping the link layer")
	}
}

// Run is a public function which computes the given operations.
// Every operation is validated before any of them is computed.
//
// Operates on:
//	engine	*Engine	- the engine with the captures to compute the operations on
//
// Takes:
//	operations	...Operation	- the operations to compute, duplicates are computed once
//
// Returns:
//	[]*OperationResult	- the results in the order of the operations,
//						  the results of an operation producing one result per input are in input order
//	error				- an *InsufficientInputsError if an operation needs more captures,
//						  the indexing error otherwise, nil if no error occurred
func (engine *Engine) Run(operations ...Operation) ([]*OperationResult, error) {
	operations = deduplicateOperations(operations)

	// validate all operations first
	for _, operation := range operations {
		if _, known := operationNames[operation]; !known {
			return nil, fmt.Errorf("unknown operation %s", operation)
		}
		if len(engine.captures) < operation.minimumInputs() {
			return nil, &InsufficientInputsError{
				Operation: operation,
				Inputs:    len(engine.captures),
				Required:  operation.minimumInputs(),
			}
		}
	}

	if err := engine.index(); err != nil {
		return nil, err
	}

	// the shared keys are the base of the bounded operations
	var shared map[canonical.Key]struct{}
	for _, operation := range operations {
		if operation == BoundedIntersection || operation == InverseBoundedDifference {
			shared = engine.sharedKeys()
			break
		}
	}

	// a job is one result to compute
	type job struct {
		operation Operation
		input     int
	}
	jobs := make([]job, 0, len(operations)*len(engine.captures))
	for _, operation := range operations {
		if !operation.perInput() {
			jobs = append(jobs, job{operation: operation, input: -1})
			continue
		}
		for input := range engine.captures {
			jobs = append(jobs, job{operation: operation, input: input})
		}
	}

	// the key maps are read-only, every result can be computed on its own
	results := make([]*OperationResult, len(jobs))
	group := errgroup.Group{}
	if engine.options.Workers > 0 {
		group.SetLimit(engine.options.Workers)
	}
	for i, job := range jobs {
		group.Go(func() error {
			results[i] = engine.compute(job.operation, job.input, shared)

			engine.logger.WithFields(logrus.Fields{
				"operation": job.operation.String(),
				"result":    results[i].Name(),
				"frames":    results[i].Len(),
			}).Debug("computed result")
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// compute is a private function to compute one result.
func (engine *Engine) compute(operation Operation, input int, shared map[canonical.Key]struct{}) *OperationResult {
	switch operation {
	case Union:
		return engine.union()
	case Intersection:
		return engine.intersection()
	case Difference:
		return engine.difference()
	case SymmetricDifference:
		return engine.symmetricDifference(input)
	case BoundedIntersection:
		return engine.boundedIntersection(input, shared, false)
	case InverseBoundedDifference:
		return engine.boundedIntersection(input, shared, true)
	}
	return nil // unreachable, operations are validated in Run
}

// index is a private function to build the key map of every capture in parallel, it only runs once.
// Frames whose headers can't be neutralized are skipped with a warning unless FailOnUnsupported is set.
func (engine *Engine) index() error {
	engine.indexOnce.Do(func() {
		engine.startStatusUpdate()
		defer close(engine.statusChan)

		keyMaps := make([]*KeyMap, len(engine.captures))
		skipped := make([]int, len(engine.captures))

		var indexedFrames atomic.Int64
		group := errgroup.Group{}
		if engine.options.Workers > 0 {
			group.SetLimit(engine.options.Workers)
		}

		for input, inputCapture := range engine.captures {
			group.Go(func() error {
				keyMap := newKeyMap(input, inputCapture.Len())

				for position := range inputCapture.Frames {
					frame := &inputCapture.Frames[position]

					key, canonicalBytes, err := canonical.Canonicalize(frame.Frame, inputCapture.LinkType, engine.options.Canonical)
					if err != nil {
						var unsupported *canonical.UnsupportedProtocolError
						if !errors.As(err, &unsupported) || engine.options.FailOnUnsupported {
							return fmt.Errorf("%s: frame %d: %w", inputCapture.Name, position+1, err)
						}
						skipped[input]++
					} else {
						keyMap.add(key, &FrameAndPosition{
							frame:     frame,
							canonical: canonicalBytes,
							input:     input,
							position:  position,
						})
					}

					engine.statusChan <- int(indexedFrames.Add(1)) // report the status
				}

				keyMaps[input] = keyMap

				logger := engine.logger.WithFields(logrus.Fields{
					"input":  inputCapture.Name,
					"frames": inputCapture.Len(),
					"keys":   keyMap.Len(),
				})
				if skipped[input] > 0 {
					logger.WithField("skipped", skipped[input]).Warn("skipped frames without an IPv4 header")
				} else {
					logger.Debug("indexed capture")
				}
				return nil
			})
		}

		if err := group.Wait(); err != nil {
			engine.indexErr = err
			return
		}
		engine.keyMaps = keyMaps
		engine.skipped = skipped
	})

	return engine.indexErr
}

// Skipped returns the number of frames per capture that couldn't be keyed, nil before the first Run.
func (engine *Engine) Skipped() []int {
	return engine.skipped
}

// RegisterForStatusUpdate is a public function to register a channel for status updates of the indexing.
// The registered channel will get the number of frames indexed so far and is closed when the indexing is done.
//
// Operates on:
//	engine	*Engine	- a pointer to the Engine structure which should report the status
//
// Takes:
//	chanToRegister	chan int	- the channel to register
//
// Returns:
//	error	- returns nil if the channel is registered and an error describing the registration problem if the
//			  registration wasn't possible
func (engine *Engine) RegisterForStatusUpdate(chanToRegister chan int) error {
	if cap(chanToRegister) < cap(engine.statusChan) {
		return fmt.Errorf("the capacity of the given chan is to small, it has to be at least %d but is %d",
			cap(engine.statusChan), cap(chanToRegister))
	}

	engine.chansToGetStatus = append(engine.chansToGetStatus, chanToRegister)
	return nil
}

// GetCapacityForStatusUpdateChan returns the minimum capacity of a channel that can be registered
// via the RegisterForStatusUpdate function, the total number of frames.
func (engine *Engine) GetCapacityForStatusUpdateChan() int {
	return cap(engine.statusChan)
}

// startStatusUpdate is a private function to start the reporting of the status.
// It will stop reporting when the statusChan of the Engine will be closed.
// Full registered channels are skipped, they never block the indexing.
func (engine *Engine) startStatusUpdate() {
	chansToGetStatus := engine.chansToGetStatus
	go func() {
		for currentStatus := range engine.statusChan {
			for _, chanToGetStatus := range chansToGetStatus {
				select {
				case chanToGetStatus <- currentStatus:
				default:
				}
			}
		}

		// reporting is over, close all registered channels
		for _, chanToGetStatus := range chansToGetStatus {
			close(chanToGetStatus)
		}
	}()
}

// deduplicateOperations removes repeated operations keeping the first occurrence.
func deduplicateOperations(operations []Operation) []Operation {
	seen := make(map[Operation]bool, len(operations))
	unique := make([]Operation, 0, len(operations))
	for _, operation := range operations {
		if !seen[operation] {
			seen[operation] = true
			unique = append(unique, operation)
		}
	}
	return unique
}
