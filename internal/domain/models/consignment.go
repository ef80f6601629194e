package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a consignment, set by the user.
type Status string

const (
	StatusReceived  Status = "Received"
	StatusInTransit Status = "In Transit"
	StatusDelivered Status = "Delivered"
)

// PaymentStatus tracks collection of the consignment charges. It is
// independent of Status.
type PaymentStatus string

const (
	PaymentDue  PaymentStatus = "Due"
	PaymentPaid PaymentStatus = "Paid"
)

// DefaultNoOfArticles applies to records saved before the article count existed.
const DefaultNoOfArticles = 1

// Consignment is one shipment record owned by a single identity.
//
// Updates are full overwrites: a saved Consignment replaces every stored
// field, so callers must resend the fields they want to keep.
type Consignment struct {
	ID                        string        `json:"id,omitempty"`
	ConsignmentNo             string        `json:"consignmentNo"`
	ConsignorName             string        `json:"consignorName"`
	ConsigneeName             string        `json:"consigneeName"`
	NoOfArticles              int           `json:"noOfArticles"`
	ConsignmentDateTime       *time.Time    `json:"consignmentDateTime"`
	WarehouseReceivedDateTime *time.Time    `json:"warehouseReceivedDateTime"`
	ReceivingDateTime         *time.Time    `json:"receivingDateTime"`
	DeliveringDateTime        *time.Time    `json:"deliveringDateTime"`
	Status                    Status        `json:"status"`
	PaymentStatus             PaymentStatus `json:"paymentStatus"`
	Freight                   float64       `json:"freight"`
	Charges                   float64       `json:"charges"`
	StdCharges                float64       `json:"stdCharges"`
	Remarks                   string        `json:"remarks"`
}

// Total is freight + charges + stdCharges. It is derived and never stored.
// Negative or non-finite components count as zero.
func (c Consignment) Total() float64 {
	return chargeAmount(c.Freight).
		Add(chargeAmount(c.Charges)).
		Add(chargeAmount(c.StdCharges)).
		InexactFloat64()
}

// Normalize coerces numeric fields to non-negative values and unknown enum
// values to the form defaults. No other validation is applied.
func (c Consignment) Normalize() Consignment {
	c.Freight = nonNegative(c.Freight)
	c.Charges = nonNegative(c.Charges)
	c.StdCharges = nonNegative(c.StdCharges)
	if c.NoOfArticles < 0 {
		c.NoOfArticles = 0
	}
	c.Status = ParseStatus(string(c.Status))
	c.PaymentStatus = ParsePaymentStatus(string(c.PaymentStatus))
	return c
}

// ParseStatus maps raw input onto a Status, defaulting to Received.
func ParseStatus(raw string) Status {
	switch Status(raw) {
	case StatusInTransit:
		return StatusInTransit
	case StatusDelivered:
		return StatusDelivered
	default:
		return StatusReceived
	}
}

// ParsePaymentStatus maps raw input onto a PaymentStatus, defaulting to Due.
func ParsePaymentStatus(raw string) PaymentStatus {
	if PaymentStatus(raw) == PaymentPaid {
		return PaymentPaid
	}
	return PaymentDue
}

// NewConsignmentDraft returns the values a blank entry form starts with.
func NewConsignmentDraft(now time.Time) Consignment {
	consignedAt := now
	receivedAt := now
	return Consignment{
		NoOfArticles:              DefaultNoOfArticles,
		ConsignmentDateTime:       &consignedAt,
		WarehouseReceivedDateTime: &receivedAt,
		Status:                    StatusReceived,
		PaymentStatus:             PaymentDue,
	}
}

// ConsignmentPayload is the save request body. A nil NoOfArticles means the
// client did not send one.
type ConsignmentPayload struct {
	ConsignmentNo             string     `json:"consignmentNo"`
	ConsignorName             string     `json:"consignorName"`
	ConsigneeName             string     `json:"consigneeName"`
	NoOfArticles              *int       `json:"noOfArticles"`
	ConsignmentDateTime       *time.Time `json:"consignmentDateTime"`
	WarehouseReceivedDateTime *time.Time `json:"warehouseReceivedDateTime"`
	ReceivingDateTime         *time.Time `json:"receivingDateTime"`
	DeliveringDateTime        *time.Time `json:"deliveringDateTime"`
	Status                    string     `json:"status"`
	PaymentStatus             string     `json:"paymentStatus"`
	Freight                   float64    `json:"freight"`
	Charges                   float64    `json:"charges"`
	StdCharges                float64    `json:"stdCharges"`
	Remarks                   string     `json:"remarks"`
}

// ToConsignment converts the payload into a normalized record carrying id.
func (p ConsignmentPayload) ToConsignment(id string) Consignment {
	articles := DefaultNoOfArticles
	if p.NoOfArticles != nil {
		articles = *p.NoOfArticles
	}

	return Consignment{
		ID:                        id,
		ConsignmentNo:             p.ConsignmentNo,
		ConsignorName:             p.ConsignorName,
		ConsigneeName:             p.ConsigneeName,
		NoOfArticles:              articles,
		ConsignmentDateTime:       p.ConsignmentDateTime,
		WarehouseReceivedDateTime: p.WarehouseReceivedDateTime,
		ReceivingDateTime:         p.ReceivingDateTime,
		DeliveringDateTime:        p.DeliveringDateTime,
		Status:                    Status(p.Status),
		PaymentStatus:             PaymentStatus(p.PaymentStatus),
		Freight:                   p.Freight,
		Charges:                   p.Charges,
		StdCharges:                p.StdCharges,
		Remarks:                   p.Remarks,
	}.Normalize()
}

// Snapshot is one emission of a record subscription: the complete current set
// for the owner, or the error that ended the stream.
type Snapshot struct {
	Records []Consignment
	Err     error
}

func chargeAmount(v float64) decimal.Decimal {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func nonNegative(v float64) float64 {
	if v < 0 || v != v {
		return 0
	}
	return v
}
