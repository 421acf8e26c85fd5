package service

import (
	"github.com/pkg/errors"

	"github.com/arena-ops/loan-service/internal/errs"
	"github.com/arena-ops/loan-service/internal/model"
)

// Settle validates and normalizes a return submission against the loan
// it belongs to and derives the resulting status. Pure computation: no
// I/O, no mutation of the loan.
//
// Submitted quantities are absolute (total returned so far for the
// line), so a second partial return re-submits the higher figure. The
// inventory effect is computed from the delta against what was already
// recorded: OK units go back to the available pool, damaged or lost
// units are consumed from the pool entirely.
func Settle(loan model.Loan, req model.ReturnRequest) (model.SettlementResult, error) {
	byUid := make(map[string]model.LoanItem, len(loan.Items))
	for _, li := range loan.Items {
		byUid[li.ItemUid] = li
	}

	settled := make(map[string]model.Settlement, len(req.Items))
	result := model.SettlementResult{
		Settlements: make([]model.Settlement, 0, len(req.Items)),
	}

	for _, sub := range req.Items {
		li, ok := byUid[sub.ItemUid]
		if !ok {
			return model.SettlementResult{}, errors.Wrapf(errs.ErrNotFound, "loan item %s", sub.ItemUid)
		}
		if _, dup := settled[sub.ItemUid]; dup {
			return model.SettlementResult{}, errors.Wrapf(errs.ErrInvalidQuantity, "loan item %s submitted twice", sub.ItemUid)
		}
		if !sub.Condition.Valid() {
			return model.SettlementResult{}, errs.NewValidationError("condition", "must be OK, Danificado or Perdido")
		}
		if sub.QuantityReturned < 0 || sub.QuantityReturned > li.QuantityBorrowed {
			return model.SettlementResult{}, errors.Wrapf(errs.ErrInvalidQuantity,
				"returned %d of %d borrowed", sub.QuantityReturned, li.QuantityBorrowed)
		}
		delta := sub.QuantityReturned - li.QuantityReturned
		if delta < 0 {
			return model.SettlementResult{}, errors.Wrapf(errs.ErrInvalidQuantity,
				"returned quantity %d below already recorded %d", sub.QuantityReturned, li.QuantityReturned)
		}

		st := model.Settlement{
			ItemUid:          sub.ItemUid,
			InventoryItemID:  li.InventoryItemID,
			QuantityReturned: sub.QuantityReturned,
			Condition:        sub.Condition,
			Notes:            sub.Notes,
		}

		switch sub.Condition {
		case model.ConditionOK:
			// Defensive normalization: fee and payment fields are
			// meaningless for an undamaged return, whatever was sent.
			st.DamageFee = 0
			st.PaymentMethod = nil
			st.PaymentDate = nil
			st.ReleaseQuantity = delta
		default:
			if sub.DamageFee <= 0 {
				return model.SettlementResult{}, errs.ErrMissingFee
			}
			if sub.PaymentMethod == "" {
				return model.SettlementResult{}, errs.ErrMissingPaymentMethod
			}
			method := sub.PaymentMethod
			st.DamageFee = sub.DamageFee
			st.PaymentMethod = &method
			st.PaymentDate = sub.PaymentDate
			st.ConsumeQuantity = delta
		}

		settled[sub.ItemUid] = st
		result.Settlements = append(result.Settlements, st)
	}

	result.Status = deriveStatus(loan, settled)
	return result, nil
}

// deriveStatus folds the submission over the loan's stored line items:
// damage anywhere dominates, full return closes, anything else keeps
// the loan open.
func deriveStatus(loan model.Loan, settled map[string]model.Settlement) model.Status {
	allReturned := true
	hasDamage := false

	for _, li := range loan.Items {
		returned := li.QuantityReturned
		condition := li.Condition
		if st, ok := settled[li.ItemUid]; ok {
			returned = st.QuantityReturned
			condition = st.Condition
		}
		if returned != li.QuantityBorrowed {
			allReturned = false
		}
		if condition != model.ConditionOK {
			hasDamage = true
		}
	}

	switch {
	case hasDamage:
		return model.StatusDamaged
	case allReturned:
		return model.StatusReturned
	default:
		// Partial return keeps the loan open in its prior state
		// (emprestado or atrasado).
		return loan.Status
	}
}
