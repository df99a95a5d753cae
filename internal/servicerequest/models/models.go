// Package models defines the service request aggregate: the pickup and
// delivery order, its lifecycle status, and the dutch-auction bid attached to
// it.
package models

import (
	"strings"
	"time"

	"geekship/pkg/domain"
	"geekship/pkg/domerrors"
	"geekship/pkg/geohash"
)

// Status is the service request lifecycle. The happy path only ever moves
// forward one step at a time; the three receiver acceptance outcomes and
// cancellation are the only jumps.
type Status int

const (
	StatusDraft Status = iota
	StatusReadyForAuction
	StatusDriverAssigned
	StatusReadyForPickup
	StatusParcelPickedUp
	StatusInTransit
	StatusDelivered
	StatusConditionallyAccepted
	StatusUnconditionallyAccepted
	StatusCancelled
	StatusDispute
	StatusDisputeResolved
)

var statusNames = map[Status]string{
	StatusDraft:                   "Draft",
	StatusReadyForAuction:         "ReadyForAuction",
	StatusDriverAssigned:          "DriverAssigned",
	StatusReadyForPickup:          "ReadyForPickup",
	StatusParcelPickedUp:          "ParcelPickedUp",
	StatusInTransit:               "InTransit",
	StatusDelivered:               "Delivered",
	StatusConditionallyAccepted:   "ConditionallyAccepted",
	StatusUnconditionallyAccepted: "UnconditionallyAccepted",
	StatusCancelled:               "Cancelled",
	StatusDispute:                 "Dispute",
	StatusDisputeResolved:         "DisputeResolved",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusUnconditionallyAccepted || s == StatusCancelled || s == StatusDisputeResolved
}

// Bid is the current best (lowest) dutch-auction bid. Seq distinguishes
// successive bids on the same request so collateral refunds stay uniquely
// keyed.
type Bid struct {
	Driver   domain.UserID
	Amount   uint64
	Seq      int
	PlacedAt time.Time
}

// ServiceRequest is one pickup and delivery order. The shipper's service fee
// and cargo insurable value are escrowed at creation; the winning driver
// escrows the insurable value again as collateral when bidding.
type ServiceRequest struct {
	ID            domain.RequestID
	Shipper       domain.UserID
	Receiver      domain.UserID
	Description   string
	OriginGeoHash string
	DestGeoHash   string
	// The approximate hashes are shipper-supplied prefixes of the precise
	// hashes. Driver eligibility (bids, jury, listings) is checked against
	// these, so the shipper controls how wide the catchment is without
	// exposing the exact addresses.
	OriginApproxGeoHash string
	DestApproxGeoHash   string
	CargoInsurableValue uint64
	ServiceFee          uint64
	RequestedPickupAt   time.Time
	RequestedDeliveryAt time.Time
	AuctionWindow       time.Duration
	// AuctionEndsAt is stamped when the request enters ReadyForAuction, and
	// again on every reopen.
	AuctionEndsAt time.Time
	Status        Status
	Driver        domain.UserID
	Bid           *Bid
	// EditSeq counts draft edits so escrow adjustments stay uniquely keyed.
	EditSeq   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisputeSnapshot is the fixed set of facts handed to dispute resolution when
// a receiver contests a delivery. Jurors are drawn from drivers serving either
// endpoint of the job, so both approximate regions travel with the snapshot.
type DisputeSnapshot struct {
	RequestID           domain.RequestID
	Shipper             domain.UserID
	Driver              domain.UserID
	Receiver            domain.UserID
	OriginApproxGeoHash string
	DestApproxGeoHash   string
}

// Draft collects what a shipper submits for a new request. The approximate
// hashes may be omitted, in which case eligibility narrows to the precise
// cells.
type Draft struct {
	Shipper             domain.UserID
	Receiver            domain.UserID
	Description         string
	OriginGeoHash       string
	DestGeoHash         string
	OriginApproxGeoHash string
	DestApproxGeoHash   string
	CargoInsurableValue uint64
	ServiceFee          uint64
	RequestedPickupAt   time.Time
	RequestedDeliveryAt time.Time
	AuctionWindow       time.Duration
}

// NewServiceRequest validates and builds a Draft request.
func NewServiceRequest(d Draft, now time.Time) (*ServiceRequest, error) {
	if strings.TrimSpace(d.Description) == "" {
		return nil, domerrors.New(domerrors.CodeInvalidInput, "description is required")
	}
	if !geohash.Valid(d.OriginGeoHash) {
		return nil, domerrors.New(domerrors.CodeInvalidInput, "origin geohash is malformed")
	}
	if !geohash.Valid(d.DestGeoHash) {
		return nil, domerrors.New(domerrors.CodeInvalidInput, "destination geohash is malformed")
	}
	if d.OriginApproxGeoHash == "" {
		d.OriginApproxGeoHash = d.OriginGeoHash
	}
	if d.DestApproxGeoHash == "" {
		d.DestApproxGeoHash = d.DestGeoHash
	}
	if !geohash.Valid(d.OriginApproxGeoHash) || !strings.HasPrefix(d.OriginGeoHash, d.OriginApproxGeoHash) {
		return nil, domerrors.New(domerrors.CodeInvalidInput, "origin approximate hash must be a prefix of the origin")
	}
	if !geohash.Valid(d.DestApproxGeoHash) || !strings.HasPrefix(d.DestGeoHash, d.DestApproxGeoHash) {
		return nil, domerrors.New(domerrors.CodeInvalidInput, "destination approximate hash must be a prefix of the destination")
	}
	if d.ServiceFee == 0 {
		return nil, domerrors.New(domerrors.CodeInvalidInput, "service fee must be positive")
	}
	if d.AuctionWindow <= 0 {
		return nil, domerrors.New(domerrors.CodeInvalidInput, "auction window must be positive")
	}
	if d.RequestedPickupAt.IsZero() || d.RequestedDeliveryAt.IsZero() {
		return nil, domerrors.New(domerrors.CodeInvalidInput, "pickup and delivery times are required")
	}
	if d.RequestedDeliveryAt.Before(d.RequestedPickupAt) {
		return nil, domerrors.New(domerrors.CodeInvalidInput, "delivery cannot precede pickup")
	}
	if d.Receiver.IsNil() {
		return nil, domerrors.New(domerrors.CodeInvalidInput, "receiver is required")
	}
	if d.Receiver == d.Shipper {
		return nil, domerrors.New(domerrors.CodeSelfInterest, "shipper cannot be the receiver")
	}
	return &ServiceRequest{
		Shipper:             d.Shipper,
		Receiver:            d.Receiver,
		Description:         d.Description,
		OriginGeoHash:       d.OriginGeoHash,
		DestGeoHash:         d.DestGeoHash,
		OriginApproxGeoHash: d.OriginApproxGeoHash,
		DestApproxGeoHash:   d.DestApproxGeoHash,
		CargoInsurableValue: d.CargoInsurableValue,
		ServiceFee:          d.ServiceFee,
		RequestedPickupAt:   d.RequestedPickupAt,
		RequestedDeliveryAt: d.RequestedDeliveryAt,
		AuctionWindow:       d.AuctionWindow,
		Status:              StatusDraft,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

// EscrowTotal is what the shipper has locked for this request.
func (sr *ServiceRequest) EscrowTotal() uint64 {
	return sr.ServiceFee + sr.CargoInsurableValue
}

// AuctionOpen reports whether bids are currently accepted.
func (sr *ServiceRequest) AuctionOpen(now time.Time) bool {
	return sr.Status == StatusReadyForAuction && now.Before(sr.AuctionEndsAt)
}

// IsParty reports whether uid is the shipper, receiver, or assigned driver.
func (sr *ServiceRequest) IsParty(uid domain.UserID) bool {
	return uid == sr.Shipper || uid == sr.Receiver || (!sr.Driver.IsNil() && uid == sr.Driver)
}
