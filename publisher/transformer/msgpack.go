package transformer

import (
	"github.com/notifile/notifile/encoding"
	"github.com/notifile/notifile/publisher"
)

func init() {
	publisher.RegisterTransformer("msgpack", func() publisher.Transformer {
		return &MsgpackTransformer{}
	})
}

// MsgpackTransformer encodes sync events with msgpack, the compact
// format consumed by downstream notifile tooling
type MsgpackTransformer struct{}

// Transform converts a sync event to msgpack
func (t *MsgpackTransformer) Transform(event publisher.Event) ([]byte, error) {
	return encoding.Marshal(event)
}
