package spanz

import (
	"bytes"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
)

// FieldFormatter renders span attributes into a slot's field buffer.
// Implementations append to buf and must not call back into the Store.
type FieldFormatter interface {
	FormatFields(buf *bytes.Buffer, values []attribute.KeyValue) error
}

// FieldFormatterFunc adapts a function to FieldFormatter.
type FieldFormatterFunc func(buf *bytes.Buffer, values []attribute.KeyValue) error

// FormatFields calls f.
func (f FieldFormatterFunc) FormatFields(buf *bytes.Buffer, values []attribute.KeyValue) error {
	return f(buf, values)
}

// DefaultFields renders values as space separated key=value pairs.
// String values are quoted.
type DefaultFields struct{}

// FormatFields appends values to buf, separated from existing content by a space.
func (DefaultFields) FormatFields(buf *bytes.Buffer, values []attribute.KeyValue) error {
	for _, kv := range values {
		if !kv.Valid() {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(string(kv.Key))
		buf.WriteByte('=')
		if kv.Value.Type() == attribute.STRING {
			buf.WriteString(strconv.Quote(kv.Value.AsString()))
		} else {
			buf.WriteString(kv.Value.Emit())
		}
	}
	return nil
}
