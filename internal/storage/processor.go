package storage

import (
	"context"
	"io"
	"runtime"
)

// Processor bounds how many uploads are decoded and resized at once. A
// full-size photo decodes to tens of megabytes, so unbounded concurrency
// lets a burst of uploads exhaust memory.
//
// Slots are tokens in a buffered channel: Process takes one before working
// and puts it back after, blocking (or giving up with ctx) while all are
// taken.
type Processor struct {
	slots chan struct{}
}

// NewProcessor allows up to concurrency simultaneous images; zero or less
// means runtime.NumCPU().
func NewProcessor(concurrency int) *Processor {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	slots := make(chan struct{}, concurrency)
	for i := 0; i < concurrency; i++ {
		slots <- struct{}{}
	}
	return &Processor{slots: slots}
}

// Process runs ProcessImage once a slot is free.
func (p *Processor) Process(ctx context.Context, r io.Reader, filename string) (*ProcessedImage, error) {
	select {
	case <-p.slots:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { p.slots <- struct{}{} }()

	return ProcessImage(r, filename)
}

// Available reports how many slots are free.
func (p *Processor) Available() int { return len(p.slots) }
