package checks

import (
	"time"

	"github.com/shopspring/decimal"
)

// CheckID identifies a check record
type CheckID string

// Status enum
type Status string

const (
	StatusPending     Status = "pending"
	StatusNeedsReview Status = "needs_review"
	StatusValidated   Status = "validated"
	StatusRejected    Status = "rejected"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusNeedsReview, StatusValidated, StatusRejected:
		return true
	}
	return false
}

// ImageType enum
type ImageType string

const (
	ImageRecto ImageType = "recto"
	ImageVerso ImageType = "verso"
	ImageUV    ImageType = "uv"
)

// Image is one admitted capture slot
type Image struct {
	ID         string    `json:"id"`
	Type       ImageType `json:"type"`
	ContentRef string    `json:"contentRef"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Payee struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier,omitempty"`
}

type Issuer struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// BankDetails value object
type BankDetails struct {
	BankCode      string `json:"bankCode"`
	BranchCode    string `json:"branchCode"`
	AccountNumber string `json:"accountNumber"`
	RoutingNumber string `json:"routingNumber"`
	RIBKey        string `json:"ribKey"`
	BankName      string `json:"bankName"`
	BranchAddress string `json:"branchAddress,omitempty"`
}

// SecurityFeatures holds the results of the image probes
type SecurityFeatures struct {
	HasWatermark  bool `json:"hasWatermark"`
	HasMicrotext  bool `json:"hasMicrotext"`
	HasUVFeatures bool `json:"hasUVFeatures"`
}

type VerificationDetails struct {
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
	VerifiedBy string     `json:"verifiedBy,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// Aggregate Root: Check
type Check struct {
	ID                  CheckID              `json:"id"`
	CheckNumber         string               `json:"checkNumber"`
	Amount              decimal.Decimal      `json:"amount"`
	AmountInWords       string               `json:"amountInWords"`
	Payee               Payee                `json:"payee"`
	Issuer              Issuer               `json:"issuer"`
	BankDetails         BankDetails          `json:"bankDetails"`
	Date                time.Time            `json:"date"`
	Memo                string               `json:"memo,omitempty"`
	Currency            string               `json:"currency"`
	SecurityFeatures    SecurityFeatures     `json:"securityFeatures"`
	Anomalies           []Anomaly            `json:"anomalies"`
	VerificationDetails *VerificationDetails `json:"verificationDetails,omitempty"`
	Images              []Image              `json:"images"`
	Status              Status               `json:"status"`
	CreatedAt           time.Time            `json:"createdAt"`
	UpdatedAt           time.Time            `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share slices with the store.
func (c *Check) Clone() *Check {
	if c == nil {
		return nil
	}
	out := *c
	out.Anomalies = append(make([]Anomaly, 0, len(c.Anomalies)), c.Anomalies...)
	out.Images = append(make([]Image, 0, len(c.Images)), c.Images...)
	if c.VerificationDetails != nil {
		vd := *c.VerificationDetails
		if vd.VerifiedAt != nil {
			at := *vd.VerifiedAt
			vd.VerifiedAt = &at
		}
		out.VerificationDetails = &vd
	}
	return &out
}
