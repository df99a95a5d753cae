package ledger

import (
	"fmt"

	"geekship/pkg/domain"
)

// Outcome selects a settlement split. Acceptance outcomes come from the
// receiver's terminal status choice; dispute outcomes from the quorum vote.
type Outcome int

const (
	OutcomeUnconditional Outcome = iota
	OutcomeConditional
	OutcomeDisputeDriverWin
	OutcomeDisputeReceiverWin
	OutcomeDisputeDraw
)

// Transfer is one leg of a settlement, keyed for exactly-once application.
type Transfer struct {
	To     domain.UserID
	Amount uint64
	Key    string
}

// Parties names the accounts a settlement can pay.
type Parties struct {
	Shipper  domain.UserID
	Driver   domain.UserID
	Receiver domain.UserID
}

// Amounts is what the escrow bucket holds at settlement time: the shipper's
// insurable value and service fee, plus the winning driver's collateral.
type Amounts struct {
	ServiceFee     uint64
	InsurableValue uint64
	Collateral     uint64
}

// SettlementPolicy turns an outcome into transfers. It is injected into the
// engine so the economic split stays configuration, not contract. Every
// outcome drains the escrow completely except OutcomeConditional, which
// leaves the holdback escrowed until the shipper releases it.
type SettlementPolicy struct {
	// ConditionalHoldbackPct of the driver's collateral stays escrowed on a
	// conditional acceptance, in [0, 100].
	ConditionalHoldbackPct int
}

func (p SettlementPolicy) Settle(srID domain.RequestID, outcome Outcome, who Parties, amounts Amounts) []Transfer {
	key := func(leg string) string { return fmt.Sprintf("sr:%d:settle:%s", srID, leg) }

	switch outcome {
	case OutcomeConditional:
		holdback := amounts.Collateral * uint64(p.ConditionalHoldbackPct) / 100
		return []Transfer{
			{To: who.Driver, Amount: amounts.ServiceFee, Key: key("fee")},
			{To: who.Driver, Amount: amounts.Collateral - holdback, Key: key("collateral")},
			{To: who.Shipper, Amount: amounts.InsurableValue, Key: key("insurable")},
		}
	case OutcomeDisputeReceiverWin:
		// The driver's collateral compensates the receiver; the shipper is
		// made whole.
		return []Transfer{
			{To: who.Shipper, Amount: amounts.ServiceFee, Key: key("fee")},
			{To: who.Shipper, Amount: amounts.InsurableValue, Key: key("insurable")},
			{To: who.Receiver, Amount: amounts.Collateral, Key: key("collateral")},
		}
	case OutcomeDisputeDraw:
		half := amounts.ServiceFee / 2
		return []Transfer{
			{To: who.Driver, Amount: half, Key: key("fee-driver")},
			{To: who.Shipper, Amount: amounts.ServiceFee - half, Key: key("fee-shipper")},
			{To: who.Driver, Amount: amounts.Collateral, Key: key("collateral")},
			{To: who.Shipper, Amount: amounts.InsurableValue, Key: key("insurable")},
		}
	default: // OutcomeUnconditional, OutcomeDisputeDriverWin
		return []Transfer{
			{To: who.Driver, Amount: amounts.ServiceFee, Key: key("fee")},
			{To: who.Driver, Amount: amounts.Collateral, Key: key("collateral")},
			{To: who.Shipper, Amount: amounts.InsurableValue, Key: key("insurable")},
		}
	}
}

// HoldbackTransfer releases a conditional holdback to the driver once the
// shipper confirms remediation.
func (p SettlementPolicy) HoldbackTransfer(srID domain.RequestID, driver domain.UserID, collateral uint64) Transfer {
	holdback := collateral * uint64(p.ConditionalHoldbackPct) / 100
	return Transfer{
		To:     driver,
		Amount: holdback,
		Key:    fmt.Sprintf("sr:%d:settle:holdback", srID),
	}
}
