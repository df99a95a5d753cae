// Package models defines the dispute record: a frozen snapshot of a
// contested delivery plus the regional driver votes cast over it.
package models

import (
	"time"

	"geekship/pkg/domain"
	"geekship/pkg/geohash"
)

// VoteChoice is one juror's verdict.
type VoteChoice int

const (
	VoteForDriver VoteChoice = iota
	VoteForReceiver
)

// Winner is the quorum outcome.
type Winner int

const (
	WinnerUndecided Winner = iota
	WinnerDriver
	WinnerReceiver
	WinnerDraw
)

func (w Winner) String() string {
	switch w {
	case WinnerDriver:
		return "Driver"
	case WinnerReceiver:
		return "Receiver"
	case WinnerDraw:
		return "Draw"
	default:
		return "Undecided"
	}
}

// Dispute is keyed by the contested order's request ID. The parties and the
// vote regions are snapshotted at opening time so later profile changes cannot
// shift the jury.
type Dispute struct {
	RequestID           domain.RequestID
	Shipper             domain.UserID
	Driver              domain.UserID
	Receiver            domain.UserID
	OriginApproxGeoHash string
	DestApproxGeoHash   string
	Votes               map[domain.UserID]VoteChoice
	Resolved            bool
	Winner              Winner
	OpenedAt            time.Time
	ResolvedAt          time.Time
}

func NewDispute(requestID domain.RequestID, shipper, driver, receiver domain.UserID, originApprox, destApprox string, now time.Time) *Dispute {
	return &Dispute{
		RequestID:           requestID,
		Shipper:             shipper,
		Driver:              driver,
		Receiver:            receiver,
		OriginApproxGeoHash: originApprox,
		DestApproxGeoHash:   destApprox,
		Votes:               make(map[domain.UserID]VoteChoice),
		OpenedAt:            now,
	}
}

// InRegion reports whether geo serves either endpoint of the contested job.
func (d *Dispute) InRegion(geo string) bool {
	return geohash.RegionsMatch(geo, d.OriginApproxGeoHash) || geohash.RegionsMatch(geo, d.DestApproxGeoHash)
}

// IsParty reports whether uid has a stake in the contested order.
func (d *Dispute) IsParty(uid domain.UserID) bool {
	return uid == d.Shipper || uid == d.Driver || uid == d.Receiver
}

func (d *Dispute) HasVoted(uid domain.UserID) bool {
	_, ok := d.Votes[uid]
	return ok
}

// Tally counts the votes cast so far.
func (d *Dispute) Tally() (forDriver, forReceiver int) {
	for _, v := range d.Votes {
		if v == VoteForDriver {
			forDriver++
		} else {
			forReceiver++
		}
	}
	return forDriver, forReceiver
}
