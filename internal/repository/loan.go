package repository

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/arena-ops/loan-service/internal/errs"
	"github.com/arena-ops/loan-service/internal/model"
)

var loanColumns = []string{
	"id", "loan_uid", "company", "requester_name", "requester_cpf", "requester_phone",
	"location", "delivered_by", "loan_date", "expected_return_at", "actual_return_at",
	"returned_by", "notes", "status",
}

var loanItemColumns = []string{
	"id", "item_uid", "loan_id", "inventory_item_id", "name", "category",
	"quantity_borrowed", "quantity_returned", "condition", "damage_fee",
	"payment_method", "payment_date", "notes",
}

// CreateLoan reserves every line item and persists the loan in one
// transaction. A failed reservation rolls everything back, so a failed
// creation leaves no partial reservation behind.
func (r *repository) CreateLoan(ctx context.Context, loan *model.Loan) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		for i := range loan.Items {
			li := &loan.Items[i]
			name, category, err := reserveTx(ctx, tx, li.InventoryItemID, li.QuantityBorrowed)
			if err != nil {
				return err
			}
			li.Name = name
			li.Category = category
		}

		query, args, err := qb.Insert(loansTableName).
			Columns("loan_uid", "company", "requester_name", "requester_cpf", "requester_phone",
				"location", "delivered_by", "loan_date", "expected_return_at", "notes", "status").
			Values(loan.LoanUid, loan.Company, loan.RequesterName, loan.RequesterCPF, loan.RequesterPhone,
				loan.Location, loan.DeliveredBy, loan.LoanDate, loan.ExpectedReturnAt, loan.Notes, loan.Status).
			Suffix("returning id").
			ToSql()
		if err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&loan.ID); err != nil {
			return err
		}

		ib := qb.Insert(loanItemsTableName).
			Columns("item_uid", "loan_id", "inventory_item_id", "name", "category",
				"quantity_borrowed", "notes")
		for _, li := range loan.Items {
			ib = ib.Values(li.ItemUid, loan.ID, li.InventoryItemID, li.Name, li.Category,
				li.QuantityBorrowed, li.Notes)
		}
		query, args, err = ib.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}

		for i := range loan.Items {
			loan.Items[i].LoanID = loan.ID
		}
		return nil
	})
}

func (r *repository) ListLoans(ctx context.Context) ([]model.Loan, error) {
	query, args, err := qb.Select(loanColumns...).
		From(loansTableName).
		OrderBy("loan_date desc", "id desc").
		ToSql()
	if err != nil {
		return nil, err
	}

	var loans []model.Loan
	if err := r.db.SelectContext(ctx, &loans, query, args...); err != nil {
		return nil, err
	}
	if len(loans) == 0 {
		return loans, nil
	}

	ids := make([]int, 0, len(loans))
	for _, l := range loans {
		ids = append(ids, l.ID)
	}
	query, args, err = qb.Select(loanItemColumns...).
		From(loanItemsTableName).
		Where(sq.Eq{"loan_id": ids}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	var items []model.LoanItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}

	byLoan := make(map[int][]model.LoanItem, len(loans))
	for _, li := range items {
		byLoan[li.LoanID] = append(byLoan[li.LoanID], li)
	}
	for i := range loans {
		loans[i].Items = byLoan[loans[i].ID]
	}
	return loans, nil
}

func (r *repository) GetLoan(ctx context.Context, loanUid string) (model.Loan, error) {
	query, args, err := qb.Select(loanColumns...).
		From(loansTableName).
		Where(sq.Eq{"loan_uid": loanUid}).
		ToSql()
	if err != nil {
		return model.Loan{}, err
	}

	var loan model.Loan
	if err := r.db.GetContext(ctx, &loan, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Loan{}, errs.ErrNotFound
		}
		return model.Loan{}, err
	}

	query, args, err = qb.Select(loanItemColumns...).
		From(loanItemsTableName).
		Where(sq.Eq{"loan_id": loan.ID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return model.Loan{}, err
	}
	if err := r.db.SelectContext(ctx, &loan.Items, query, args...); err != nil {
		return model.Loan{}, err
	}
	return loan, nil
}

// UpdateLoanMetadata patches non-item fields only; loan_items is never
// touched here.
func (r *repository) UpdateLoanMetadata(ctx context.Context, loanUid string, patch model.UpdateLoanRequest) error {
	ub := qb.Update(loansTableName).Where(sq.Eq{"loan_uid": loanUid})
	if patch.Company != nil {
		ub = ub.Set("company", *patch.Company)
	}
	if patch.RequesterName != nil {
		ub = ub.Set("requester_name", *patch.RequesterName)
	}
	if patch.RequesterCPF != nil {
		ub = ub.Set("requester_cpf", *patch.RequesterCPF)
	}
	if patch.RequesterPhone != nil {
		ub = ub.Set("requester_phone", *patch.RequesterPhone)
	}
	if patch.Location != nil {
		ub = ub.Set("location", *patch.Location)
	}
	if patch.DeliveredBy != nil {
		ub = ub.Set("delivered_by", *patch.DeliveredBy)
	}
	if patch.ExpectedReturnAt != nil {
		ub = ub.Set("expected_return_at", *patch.ExpectedReturnAt)
	}
	if patch.Notes != nil {
		ub = ub.Set("notes", *patch.Notes)
	}

	query, args, err := ub.ToSql()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *repository) UpdateLoanStatus(ctx context.Context, loanUid string, status model.Status) error {
	query, args, err := qb.Update(loansTableName).
		Set("status", status).
		Where(sq.Eq{"loan_uid": loanUid}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SettleReturn commits a whole return submission atomically: line-item
// settlement fields, inventory effects and the derived loan status
// either all land or none do.
func (r *repository) SettleReturn(ctx context.Context, loanUid string, res model.SettlementResult, returnedBy string, at time.Time) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, st := range res.Settlements {
			query, args, err := qb.Update(loanItemsTableName).
				Set("quantity_returned", st.QuantityReturned).
				Set("condition", st.Condition).
				Set("damage_fee", st.DamageFee).
				Set("payment_method", st.PaymentMethod).
				Set("payment_date", st.PaymentDate).
				Set("notes", st.Notes).
				Where(sq.Eq{"item_uid": st.ItemUid}).
				ToSql()
			if err != nil {
				return err
			}
			execRes, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return err
			}
			n, err := execRes.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return errors.Wrapf(errs.ErrNotFound, "loan item %s", st.ItemUid)
			}

			if st.ReleaseQuantity > 0 {
				clamped, err := releaseTx(ctx, tx, st.InventoryItemID, st.ReleaseQuantity)
				if err != nil {
					return err
				}
				if clamped {
					r.log.Warn("release clamped at quantity_total, bookkeeping drift upstream",
						zap.Int("inventory_item_id", st.InventoryItemID),
						zap.Int("release_quantity", st.ReleaseQuantity))
				}
			}
			if st.ConsumeQuantity > 0 {
				if err := consumeTx(ctx, tx, st.InventoryItemID, st.ConsumeQuantity); err != nil {
					return err
				}
			}
		}

		query, args, err := qb.Update(loansTableName).
			Set("status", res.Status).
			Set("actual_return_at", at).
			Set("returned_by", returnedBy).
			Where(sq.Eq{"loan_uid": loanUid}).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		return nil
	})
}

// DeleteLoan releases only what is still out: items fully returned get
// no second credit.
func (r *repository) DeleteLoan(ctx context.Context, loanUid string) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		var loanID int
		if err := tx.GetContext(ctx, &loanID,
			`select id from loans where loan_uid = $1 for update`, loanUid); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}

		var items []model.LoanItem
		query, args, err := qb.Select(loanItemColumns...).
			From(loanItemsTableName).
			Where(sq.Eq{"loan_id": loanID}).
			ToSql()
		if err != nil {
			return err
		}
		if err := tx.SelectContext(ctx, &items, query, args...); err != nil {
			return err
		}

		for _, li := range items {
			if out := li.Outstanding(); out > 0 {
				clamped, err := releaseTx(ctx, tx, li.InventoryItemID, out)
				if err != nil {
					return err
				}
				if clamped {
					r.log.Warn("release clamped at quantity_total, bookkeeping drift upstream",
						zap.Int("inventory_item_id", li.InventoryItemID),
						zap.Int("release_quantity", out))
				}
			}
		}

		// loan_items rows go with the loan (on delete cascade).
		if _, err := tx.ExecContext(ctx, `delete from loans where id = $1`, loanID); err != nil {
			return err
		}
		return nil
	})
}
