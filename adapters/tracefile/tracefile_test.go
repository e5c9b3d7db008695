package tracefile_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/artpar/wakeacct/adapters/tracefile"
	"github.com/artpar/wakeacct/domain/trace"
)

const sampleTrace = `
name: dialer-burst
events:
  - type: start
    client: com.example.dialer
    kind: 12
    token: 1
    outstanding: 1
    at_ms: 0
  - type: stop
    client: com.example.dialer
    kind: 12
    token: 1
    outstanding: 0
    at_ms: 200
  - type: start
    client: com.example.sms
    kind: 25
    token: 7
    outstanding: 1
    at_ms: 100
  - type: stop_all
    at_ms: 500
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.yaml")
	if err := os.WriteFile(path, []byte(sampleTrace), 0o644); err != nil {
		t.Fatalf("write trace: %v", err)
	}

	tr, err := tracefile.Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if tr.Name != "dialer-burst" {
		t.Errorf("Name = %q, want dialer-burst", tr.Name)
	}
	if len(tr.Events) != 4 {
		t.Fatalf("len(Events) = %d, want 4", len(tr.Events))
	}

	// sorted by time
	wantAt := []int64{0, 100, 200, 500}
	for i, e := range tr.Events {
		if e.AtMs != wantAt[i] {
			t.Errorf("Events[%d].AtMs = %d, want %d", i, e.AtMs, wantAt[i])
		}
	}
	if tr.Events[1].Client != "com.example.sms" || tr.Events[1].Token != 7 {
		t.Errorf("Events[1] = %+v", tr.Events[1])
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := tracefile.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() error = %v, want ErrNotExist", err)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"empty document", "", tracefile.ErrEmptyTrace},
		{"no events", "name: x\nevents: []\n", tracefile.ErrEmptyTrace},
		{"unknown type", "events:\n  - type: pause\n    client: a\n", trace.ErrUnknownEventType},
		{"missing client", "events:\n  - type: start\n", trace.ErrMissingClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tracefile.Parse([]byte(tt.data))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParse_UnknownField(t *testing.T) {
	_, err := tracefile.Parse([]byte("events:\n  - type: start\n    client: a\n    colour: red\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	in := &trace.Trace{Name: "rt", Events: []trace.Event{
		{Type: trace.EventStart, Client: "a", Kind: 1, Token: 2, Outstanding: 1, AtMs: 5},
		{Type: trace.EventStopAll, AtMs: 9},
	}}

	var buf bytes.Buffer
	if err := tracefile.Write(&buf, in); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	out, err := tracefile.Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if out.Name != "rt" || len(out.Events) != 2 || out.Events[0] != in.Events[0] {
		t.Errorf("round trip = %+v", out)
	}
}
