package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/checkflow/internal/domain/checks"
)

func TestDecodeEvent(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"image1":"aGVsbG8=","chequeNumber":"1234567","cmc7":"CMC7-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "aGVsbG8=", ev.Image1)
	assert.Equal(t, "1234567", ev.ChequeNumber)

	_, err = DecodeEvent([]byte(`[1,2`))
	var ie *checks.IngestError
	require.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, err, checks.ErrMalformedEvent)
}

func TestSlotsKeepCaptureOrder(t *testing.T) {
	slots := Event{Image1: "a", Image3: "c"}.Slots()
	require.Len(t, slots, 3)
	assert.Equal(t, checks.ImageRecto, slots[0].Type)
	assert.Equal(t, "", slots[1].Payload)
	assert.Equal(t, checks.ImageUV, slots[2].Type)
}
