package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// InvocationTrace is the canonical record of one wrapper invocation.
//
// Invariants:
//   - Captures the source file and an ordered list of events.
//   - Contains logical decisions only: no timestamps, durations or process
//     ids, so two identical invocations produce identical bytes.
//
// Events are ordered by Canonicalize, never by insertion. The trace is
// observational and must not influence execution.
type InvocationTrace struct {
	Source string
	Events []Event
}

// EventKind is the canonical discriminator for Event. The string values
// are part of the canonical bytes; do not rename.
type EventKind string

const (
	EventManifestWritten   EventKind = "ManifestWritten"
	EventManifestUnchanged EventKind = "ManifestUnchanged"
	EventPlanSelected      EventKind = "PlanSelected"
	EventCargoExited       EventKind = "CargoExited"
	EventFallbackUsed      EventKind = "FallbackUsed"
	EventArtifactCopied    EventKind = "ArtifactCopied"
	EventArtifactRenamed   EventKind = "ArtifactRenamed"
	EventArtifactSkipped   EventKind = "ArtifactSkipped"
	EventCacheCleared      EventKind = "CacheCleared"
	EventWarning           EventKind = "Warning"
)

// Event is a single logical step.
//
// Subject is what the event is about (manifest path, subcommand, artifact).
// Detail is a stable qualifier: plan class, exit code or warning text.
// Destination is set for copied and renamed artifacts.
type Event struct {
	Kind        EventKind
	Subject     string
	Detail      string
	Destination string
}

// Validate checks basic invariants.
func (t *InvocationTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.Source == "" {
		return errors.New("source is required")
	}
	for i, e := range t.Events {
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if kindOrder(e.Kind) == unknownKind {
			return fmt.Errorf("events[%d].kind %q is unknown", i, e.Kind)
		}
		if needsDestination(e.Kind) && e.Destination == "" {
			return fmt.Errorf("events[%d].destination is required for kind %q", i, e.Kind)
		}
	}
	return nil
}

func needsDestination(kind EventKind) bool {
	return kind == EventArtifactCopied || kind == EventArtifactRenamed
}

// Canonicalize sorts the events into their canonical order: by invocation
// phase first, then by (subject, detail, destination).
func (t *InvocationTrace) Canonicalize() {
	if t == nil {
		return
	}
	sort.SliceStable(t.Events, func(i, j int) bool {
		a := t.Events[i]
		b := t.Events[j]

		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if a.Detail != b.Detail {
			return a.Detail < b.Detail
		}
		return a.Destination < b.Destination
	})
}

const unknownKind = 1000

func kindOrder(k EventKind) int {
	switch k {
	case EventManifestWritten, EventManifestUnchanged:
		return 10
	case EventPlanSelected:
		return 20
	case EventCacheCleared:
		return 30
	case EventCargoExited:
		return 40
	case EventFallbackUsed:
		return 50
	case EventArtifactCopied, EventArtifactRenamed, EventArtifactSkipped:
		return 60
	case EventWarning:
		return 70
	default:
		return unknownKind
	}
}

// CanonicalJSON returns the canonical JSON encoding of the trace without
// mutating t.
func (t InvocationTrace) CanonicalJSON() ([]byte, error) {
	c := InvocationTrace{Source: t.Source}
	c.Events = make([]Event, len(t.Events))
	copy(c.Events, t.Events)
	c.Canonicalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&c)
}

// Hash returns the sha256 hex of the canonical JSON bytes.
func (t InvocationTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeTraceHash(b), nil
}

// WriteFile stores the canonical JSON encoding at path, creating parent
// directories as needed.
func (t InvocationTrace) WriteFile(path string) error {
	b, err := t.CanonicalJSON()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating trace directory: %w", err)
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// MarshalJSON fixes the field order.
func (t InvocationTrace) MarshalJSON() ([]byte, error) {
	if t.Source == "" {
		return nil, errors.New("source is required")
	}
	var buf bytes.Buffer
	buf.WriteString(`{"source":`)
	sb, _ := json.Marshal(t.Source)
	buf.Write(sb)

	buf.WriteString(`,"events":[`)
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// MarshalJSON fixes the field order and omits empty optional fields.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}
	var buf bytes.Buffer
	buf.WriteString(`{"kind":`)
	kb, _ := json.Marshal(string(e.Kind))
	buf.Write(kb)

	writeOptional(&buf, "subject", e.Subject)
	writeOptional(&buf, "detail", e.Detail)
	writeOptional(&buf, "destination", e.Destination)

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeOptional(buf *bytes.Buffer, key, value string) {
	if value == "" {
		return
	}
	buf.WriteString(`,"` + key + `":`)
	vb, _ := json.Marshal(value)
	buf.Write(vb)
}
