package spanz

import (
	"go.opentelemetry.io/otel/attribute"
)

// Level is the verbosity of a span.
type Level uint8

// Span levels, from most to least verbose.
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the upper-case level name.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Metadata describes a span callsite.
// Metadata values are shared by every span created at the same callsite and
// must not be modified after first use.
//
//nolint:govet // Field order follows how callsites are declared
type Metadata struct {
	Name   Key
	Target string
	Level  Level
	File   string
	Line   int
	Fields []string
}

// ParentKind selects how a new span finds its parent.
type ParentKind uint8

const (
	// ParentContextual uses the span currently entered on the context.
	ParentContextual ParentKind = iota
	// ParentRoot creates a span without a parent.
	ParentRoot
	// ParentExplicit uses Attributes.ParentID.
	ParentExplicit
)

// Attributes carries everything needed to create a span.
type Attributes struct {
	Metadata *Metadata
	Values   []attribute.KeyValue
	ParentID ID
	Parent   ParentKind
}

// NewAttributes returns attributes for a span whose parent is the current span.
func NewAttributes(meta *Metadata, values ...attribute.KeyValue) *Attributes {
	return &Attributes{Metadata: meta, Values: values, Parent: ParentContextual}
}

// NewRootAttributes returns attributes for a span without a parent.
func NewRootAttributes(meta *Metadata, values ...attribute.KeyValue) *Attributes {
	return &Attributes{Metadata: meta, Values: values, Parent: ParentRoot}
}

// NewChildAttributes returns attributes for a span with an explicit parent.
func NewChildAttributes(parent ID, meta *Metadata, values ...attribute.KeyValue) *Attributes {
	return &Attributes{Metadata: meta, Values: values, Parent: ParentExplicit, ParentID: parent}
}

// IsRoot reports whether the span is created without a parent.
func (a *Attributes) IsRoot() bool {
	return a.Parent == ParentRoot
}

// IsContextual reports whether the parent is taken from the context.
func (a *Attributes) IsContextual() bool {
	return a.Parent == ParentContextual
}
