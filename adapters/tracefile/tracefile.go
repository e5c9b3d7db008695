// Package tracefile loads recorded dispatcher traces from YAML files.
package tracefile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/artpar/wakeacct/domain/trace"
	"gopkg.in/yaml.v3"
)

// ErrEmptyTrace is returned when a trace has no events.
var ErrEmptyTrace = errors.New("trace has no events")

// Load reads and validates a trace file.
func Load(path string) (*trace.Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML trace. Unknown fields are rejected.
// Events are stably sorted by timestamp so out-of-order recordings replay
// in time order.
func Parse(data []byte) (*trace.Trace, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var t trace.Trace
	if err := dec.Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyTrace
		}
		return nil, fmt.Errorf("parse trace: %w", err)
	}
	if len(t.Events) == 0 {
		return nil, ErrEmptyTrace
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("validate trace: %w", err)
	}

	sort.SliceStable(t.Events, func(i, j int) bool {
		return t.Events[i].AtMs < t.Events[j].AtMs
	})
	return &t, nil
}

// Write encodes a trace as YAML.
func Write(w io.Writer, t *trace.Trace) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	return enc.Close()
}
