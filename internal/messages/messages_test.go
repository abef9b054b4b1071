package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rabbithole/api/internal/validate"
)

func TestEncodeDecode(t *testing.T) {
	raw, err := NewSaveRequest("https://example.com/a", "A").Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"annotator:save-page-request","url":"https://example.com/a","title":"A"}`, string(raw))

	msg, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, SaveRequest, msg.Type)
	require.NotNil(t, msg.URL)
	assert.Equal(t, "https://example.com/a", *msg.URL)
}

func TestSaveStateChangedKeepsFalse(t *testing.T) {
	raw, err := NewSaveStateChanged(false).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"annotator:save-state-changed","saved":false}`, string(raw))

	msg, err := Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, msg.Saved)
	assert.False(t, msg.IsSaved())
}

func TestDecodeRejects(t *testing.T) {
	cases := map[string]string{
		"unknown type":  `{"type":"annotator:explode"}`,
		"missing type":  `{}`,
		"missing saved": `{"type":"annotator:save-state-changed"}`,
		"malformed":     `{"type":`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			var verr *validate.Error
			assert.ErrorAs(t, err, &verr)
		})
	}
}
