package capture

import (
	"encoding/json"
	"fmt"

	"github.com/bryanwahyu/checkflow/internal/domain/checks"
)

// Event is one scanner submission as received on the ingest channel.
type Event struct {
	Image1 string `json:"image1,omitempty"`
	Image2 string `json:"image2,omitempty"`
	Image3 string `json:"image3,omitempty"`

	ChequeNumber  string `json:"chequeNumber,omitempty"`
	Amount        string `json:"amount,omitempty"`
	CMC7          string `json:"cmc7,omitempty"`
	Date          string `json:"date,omitempty"`
	PayeeName     string `json:"payeeName,omitempty"`
	PayeeID       string `json:"payeeId,omitempty"`
	IssuerName    string `json:"issuerName,omitempty"`
	IssuerAddress string `json:"issuerAddress,omitempty"`
	IssuerPhone   string `json:"issuerPhone,omitempty"`
	Memo          string `json:"memo,omitempty"`
}

// Slot pairs a raw image payload with the side it was captured from.
type Slot struct {
	Type    checks.ImageType
	Payload string
}

// Slots returns the three image slots in capture order, empty ones included.
func (e Event) Slots() []Slot {
	return []Slot{
		{Type: checks.ImageRecto, Payload: e.Image1},
		{Type: checks.ImageVerso, Payload: e.Image2},
		{Type: checks.ImageUV, Payload: e.Image3},
	}
}

// DecodeEvent parses one ingest message. A payload that is not a JSON
// object aborts the event with an IngestError.
func DecodeEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, &checks.IngestError{
			Reason: "malformed payload",
			Err:    fmt.Errorf("%w: %v", checks.ErrMalformedEvent, err),
		}
	}
	return e, nil
}
