package loadingBar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/term"
)

// barLength is the number of characters between the brackets of the bar, one character per two percent.
const barLength = 50

// refreshInterval is the time between two renderings of the bar.
const refreshInterval = 250 * time.Millisecond

// LoadingBar is a structure which holds all components to provide the loading bar.
//
//	label				string				- the text in front of the bar
//	out					io.Writer			- the writer the bar is drawn on
//	width				int					- the width of the terminal, 0 if out isn't a terminal
//	currentStatusChans	[]chan int			- the channels via which functions can report the current status
//	currentStatuses		[]atomic.Int64		- the latest status read from each channel
//	maxStatuses			[]int				- the maximum capacity of each channel
//	getChanSemaphore	*semaphore.Weighted	- a semaphore controlling parallel access on the channels
//	chansToAcquire		[]chan int			- channels which aren't already used to report a status
//	stopLoadingBar		atomic.Bool			- true if the loading bar shouldn't be shown anymore
//	loadingBarStopped	sync.WaitGroup		- done when the loading bar isn't shown anymore
//	statusesRead		sync.WaitGroup		- done when every status channel is closed and read
type LoadingBar struct {
	label              string
	out                io.Writer
	width              int
	currentStatusChans []chan int
	currentStatuses    []atomic.Int64
	maxStatuses        []int
	getChanSemaphore   *semaphore.Weighted
	chansToAcquire     []chan int
	stopLoadingBar     atomic.Bool
	loadingBarStopped  sync.WaitGroup
	statusesRead       sync.WaitGroup
}

// InitLoadingBar is a constructor for the LoadingBar structure.
// The bar is only drawn if out is a terminal, otherwise the statuses are read without being shown.
//
// Takes:
//	label			string		- the text in front of the bar, e.g. the name of the running phase
//	out				io.Writer	- the writer to draw the bar on, usually os.Stderr
//	maxInitStatuses	...int		- the size of each status channel, should accommodate the number of values reported
//								  to the channel, so it won't block, one status channel is needed for each part of
//								  the program that should report to the same loading bar
//
// Returns:
//	loadingBar	*LoadingBar	- a pointer to the created LoadingBar struct
func InitLoadingBar(label string, out io.Writer, maxInitStatuses ...int) (loadingBar *LoadingBar) {
	loadingBar = &LoadingBar{
		label:              label,
		out:                out,
		width:              terminalWidth(out),
		currentStatusChans: make([]chan int, len(maxInitStatuses)),
		currentStatuses:    make([]atomic.Int64, len(maxInitStatuses)),
		maxStatuses:        maxInitStatuses,
		getChanSemaphore:   semaphore.NewWeighted(1),
		chansToAcquire:     make([]chan int, len(maxInitStatuses)),
	}

	// init each chan with the correct size and add it to the acquirable channels
	for i := range loadingBar.currentStatusChans {
		loadingBar.currentStatusChans[i] = make(chan int, loadingBar.maxStatuses[i])
		loadingBar.chansToAcquire[i] = loadingBar.currentStatusChans[i]
	}

	// Loading bar hasn't stopped let everybody wait
	loadingBar.loadingBarStopped.Add(1)

	return
}

// terminalWidth returns the width of the terminal behind out, 0 if out isn't a terminal.
func terminalWidth(out io.Writer) int {
	file, ok := out.(interface{ Fd() uintptr })
	if !ok || !term.IsTerminal(int(file.Fd())) {
		return 0
	}

	width, _, err := term.GetSize(int(file.Fd()))
	if err != nil {
		// set default terminal width
		return 80
	}
	return width
}

// GetStatusChanWithCapacity is a public function which provide an acquirable channel with a given capacity.
// Provide integers that are counting up after RunLoadingBar was called to let the loading bar count up,
// close the channel when the reporting part is done.
//
// Operates on:
//	loadingBar	*LoadingBar	- a pointer to the LoadingBar structure which provides the channels
//
// Takes:
//	capacity	int	- the capacity the channel should have
//
// Returns:
//	currentStatusChan	chan int	- the channel requested, nil if an error occurred
//	err					error		- the error if no channel could be acquired
func (loadingBar *LoadingBar) GetStatusChanWithCapacity(capacity int) (currentStatusChan chan int, err error) {
	err = loadingBar.getChanSemaphore.Acquire(context.Background(), 1) // get the semaphore to acquire a channel
	if err != nil {
		return nil, err
	} // shouldn't happen because the acquiring of the semaphore will wait in the background
	defer loadingBar.getChanSemaphore.Release(1)

	// try to acquire a chan with the requested capacity
	for i, freeChan := range loadingBar.chansToAcquire {
		if cap(freeChan) == capacity {
			loadingBar.chansToAcquire = append(loadingBar.chansToAcquire[:i], loadingBar.chansToAcquire[i+1:]...)
			return freeChan, nil
		}
	}

	return nil, errors.New("there is no chan with the given capacity")
}

// RunLoadingBar is a public function to run and display the loading bar, it doesn't block.
//
// Operates on:
//	loadingBar	*LoadingBar	- a pointer to the loading bar that should be displayed
func (loadingBar *LoadingBar) RunLoadingBar() {
	// read asynchronous the values from the channels, the status only grows
	for i, statusChan := range loadingBar.currentStatusChans {
		loadingBar.statusesRead.Add(1)
		go func(currentStatus *atomic.Int64, statusChan chan int) {
			defer loadingBar.statusesRead.Done()
			for readFrom := range statusChan {
				if int64(readFrom) > currentStatus.Load() {
					currentStatus.Store(int64(readFrom))
				}
			}
		}(&loadingBar.currentStatuses[i], statusChan)
	}

	if loadingBar.width == 0 {
		// not a terminal, nothing to display
		loadingBar.loadingBarStopped.Done()
		return
	}

	// display the loading bar, non blocking
	go func() {
		defer loadingBar.loadingBarStopped.Done()

		blinkOn := true
		for !loadingBar.stopLoadingBar.Load() {
			current, maximum := loadingBar.Status()

			fmt.Fprint(loadingBar.out, "\r"+strings.Repeat(" ", loadingBar.width)+"\r")
			fmt.Fprint(loadingBar.out, render(loadingBar.label, current, maximum, blinkOn))
			blinkOn = !blinkOn

			if current >= maximum {
				break
			}

			timer := time.NewTimer(refreshInterval)
			<-timer.C
		}
	}()
}

// Status returns the sum of the current statuses and the sum of the maximum statuses.
func (loadingBar *LoadingBar) Status() (current int, maximum int) {
	for i := range loadingBar.currentStatuses {
		current += int(loadingBar.currentStatuses[i].Load())
	}
	for _, maxStatus := range loadingBar.maxStatuses {
		maximum += maxStatus
	}
	return
}

// Wait blocks until every acquired status channel is closed and read.
// Channels nobody acquired are closed first.
func (loadingBar *LoadingBar) Wait() {
	loadingBar.closeUnacquiredChans()
	loadingBar.statusesRead.Wait()
}

// closeUnacquiredChans is a private function to close the channels nobody reports to.
func (loadingBar *LoadingBar) closeUnacquiredChans() {
	if err := loadingBar.getChanSemaphore.Acquire(context.Background(), 1); err != nil {
		return
	}
	defer loadingBar.getChanSemaphore.Release(1)

	for _, freeChan := range loadingBar.chansToAcquire {
		close(freeChan)
	}
	loadingBar.chansToAcquire = nil
}

// StopLoadingBar is a public function to stop the loading bar and erase it from the screen.
// It doesn't wait for the status channels, call Wait before to show the final status.
//
// Operates on:
//	loadingBar	*LoadingBar	- a pointer to the loading bar that should be stopped
func (loadingBar *LoadingBar) StopLoadingBar() {
	loadingBar.closeUnacquiredChans()

	loadingBar.stopLoadingBar.Store(true) // provide the running loading bar with the information to stop
	loadingBar.loadingBarStopped.Wait()   // wait for the loading bar to stop

	if loadingBar.width == 0 {
		return
	}

	// clear the line
	fmt.Fprint(loadingBar.out, "\r"+strings.Repeat(" ", loadingBar.width)+"\r")
}

// render is a private function to draw one state of the loading bar, e.g.
//
//	indexing <=========================>                         >  50.000 %
//
// Takes:
//	label	string	- the text in front of the bar
//	current	int		- the current status
//	maximum	int		- the status at which the bar is full, a bar with a maximum below 1 is full
//	blinkOn	bool	- true to draw the head of the bar
func render(label string, current int, maximum int, blinkOn bool) string {
	currentStatusPercent := 100.0
	if maximum > 0 {
		currentStatusPercent = math.Min(float64(current)/float64(maximum)*100, 100)
	}
	currentLoadingBar := int(math.Floor(currentStatusPercent) / 2)

	var builder strings.Builder
	if label != "" {
		builder.WriteString(label + " ")
	}
	builder.WriteString("<")
	builder.WriteString(strings.Repeat("=", currentLoadingBar))
	if blinkOn && currentLoadingBar < barLength {
		builder.WriteString(">")
		builder.WriteString(strings.Repeat(" ", barLength-1-currentLoadingBar))
	} else {
		builder.WriteString(strings.Repeat(" ", barLength-currentLoadingBar))
	}
	fmt.Fprintf(&builder, "> %7.3f %%", currentStatusPercent)

	return builder.String()
}
