package telemetryrecord

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
)

// StdoutSink writes one JSON object per line to the given writer, appending
// a trailing newline after each record. It is the default Sink: cheap,
// dependency-free, and pipeable into any downstream log collector.
type StdoutSink struct {
	mu sync.Mutex
	w  *bufio.Writer
	f  io.Writer
}

// NewStdoutSink returns a Sink that writes to os.Stdout.
func NewStdoutSink() *StdoutSink {
	return NewWriterSink(os.Stdout)
}

// NewWriterSink returns a Sink that writes JSON-lines records to w.
func NewWriterSink(w io.Writer) *StdoutSink {
	return &StdoutSink{w: bufio.NewWriter(w), f: w}
}

// Record encodes r as JSON and appends it, flushing immediately so records
// survive a crash between calls.
func (s *StdoutSink) Record(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := json.NewEncoder(s.w)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return s.w.Flush()
}
