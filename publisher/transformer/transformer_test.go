package transformer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifile/notifile/encoding"
	"github.com/notifile/notifile/publisher"
)

func testEvent() publisher.Event {
	return publisher.Event{
		Instance:   "a1b2c3d4e5f60718",
		Target:     "zones",
		Outcome:    "written",
		Reason:     "notify",
		Checksum:   "00000000deadbeef",
		Bytes:      512,
		DurationUS: 1500,
		Reloaded:   true,
		SyncedAt:   1709294400000,
	}
}

func TestJSONTransform(t *testing.T) {
	data, err := (&JSONTransformer{}).Transform(testEvent())
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "zones", decoded["target"])
	assert.Equal(t, "written", decoded["outcome"])
	assert.Equal(t, "notify", decoded["reason"])
	assert.Equal(t, "00000000deadbeef", decoded["checksum"])
	assert.Equal(t, float64(512), decoded["bytes"])
	assert.Equal(t, true, decoded["reloaded"])
}

func TestJSONTransformOmitsEmptyError(t *testing.T) {
	data, err := (&JSONTransformer{}).Transform(testEvent())
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"error"`)

	event := testEvent()
	event.Outcome = "failed"
	event.Error = "query failed"
	data, err = (&JSONTransformer{}).Transform(event)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"error":"query failed"`)
}

func TestMsgpackTransformRoundTrip(t *testing.T) {
	event := testEvent()
	data, err := (&MsgpackTransformer{}).Transform(event)
	require.NoError(t, err)

	var decoded publisher.Event
	require.NoError(t, encoding.Unmarshal(data, &decoded))
	assert.Equal(t, event, decoded)
}
