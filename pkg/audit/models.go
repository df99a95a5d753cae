// Package audit captures key domain actions as transport-agnostic events.
// Stores and sinks fan out from the publisher; domain services only ever see
// the Emit call.
package audit

import (
	"time"

	"geekship/pkg/domain"
)

// Event is emitted from domain logic. Keep it flat and transport-agnostic so
// the memory store and the Kafka sink serialize it the same way.
type Event struct {
	Timestamp time.Time
	// Actor is the authenticated caller that performed the action, when one
	// exists. Engine-internal actions (settlement, auto-registration) leave
	// it nil and set Subject instead.
	Actor   domain.UserID
	Action  string
	Subject string
	// RequestID correlates SR and dispute events. Zero for identity and
	// license events.
	RequestID domain.RequestID
	Detail    string
}

type Action string

const (
	EventUserCreated         Action = "user_created"
	EventRoleRequested       Action = "role_requested"
	EventRoleRequestResolved Action = "role_request_resolved"
	EventStarsDeducted       Action = "stars_deducted"

	EventLicenseMinted Action = "license_minted"
	EventLicenseBurned Action = "license_burned"
	EventMintWindow    Action = "mint_window_changed"

	EventSRCreated       Action = "sr_created"
	EventSRUpdated       Action = "sr_updated"
	EventSRCancelled     Action = "sr_cancelled"
	EventBidPlaced       Action = "bid_placed"
	EventBidDisplaced    Action = "bid_displaced"
	EventWinnerDeclared  Action = "winner_declared"
	EventAuctionReopened Action = "auction_reopened"
	EventSRStatusUpdated Action = "sr_status_updated"
	EventSettlementRun   Action = "settlement_executed"

	EventDisputeOpened   Action = "dispute_opened"
	EventDisputeVoteCast Action = "dispute_vote_cast"
	EventDisputeResolved Action = "dispute_resolved"
)
