// Package transformer provides implementations of the
// publisher.Transformer interface for converting sync events to
// sink-specific wire formats.
package transformer

import (
	"encoding/json"

	"github.com/notifile/notifile/publisher"
)

func init() {
	publisher.RegisterTransformer("json", func() publisher.Transformer {
		return &JSONTransformer{}
	})
}

// JSONTransformer encodes sync events as plain JSON objects
type JSONTransformer struct{}

// Transform converts a sync event to JSON
func (t *JSONTransformer) Transform(event publisher.Event) ([]byte, error) {
	return json.Marshal(event)
}
