package repository

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/arena-ops/loan-service/internal/errs"
	"github.com/arena-ops/loan-service/internal/model"
)

type Repository interface {
	ListItems(ctx context.Context) ([]model.Item, error)
	GetItem(ctx context.Context, id int) (model.Item, error)
	SetQuantities(ctx context.Context, itemID, total, available int) error

	CreateLoan(ctx context.Context, loan *model.Loan) error
	ListLoans(ctx context.Context) ([]model.Loan, error)
	GetLoan(ctx context.Context, loanUid string) (model.Loan, error)
	UpdateLoanMetadata(ctx context.Context, loanUid string, patch model.UpdateLoanRequest) error
	UpdateLoanStatus(ctx context.Context, loanUid string, status model.Status) error
	SettleReturn(ctx context.Context, loanUid string, res model.SettlementResult, returnedBy string, at time.Time) error
	DeleteLoan(ctx context.Context, loanUid string) error
}

type repository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	itemsTableName     = `inventory_items`
	loansTableName     = `loans`
	loanItemsTableName = `loan_items`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func (r *repository) ListItems(ctx context.Context) ([]model.Item, error) {
	query, args, err := qb.Select("id", "name", "category", "description", "unit_value",
		"quantity_total", "quantity_available", "created_at").
		From(itemsTableName).
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, err
	}

	var items []model.Item
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) GetItem(ctx context.Context, id int) (model.Item, error) {
	query, args, err := qb.Select("id", "name", "category", "description", "unit_value",
		"quantity_total", "quantity_available", "created_at").
		From(itemsTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.Item{}, err
	}

	var item model.Item
	if err := r.db.GetContext(ctx, &item, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Item{}, errs.ErrNotFound
		}
		return model.Item{}, err
	}
	return item, nil
}

// SetQuantities is the administrative override; it bypasses
// reserve/release bookkeeping on purpose.
func (r *repository) SetQuantities(ctx context.Context, itemID, total, available int) error {
	query, args, err := qb.Update(itemsTableName).
		Set("quantity_total", total).
		Set("quantity_available", available).
		Where(sq.Eq{"id": itemID}).
		ToSql()
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isCheckViolation(err) {
			return errs.ErrInvalidQuantity
		}
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

// reserve decrements availability only when enough stock is left; the
// WHERE guard makes the check and the decrement one atomic statement,
// so two concurrent creations cannot both pass validation. Returns the
// item's name/category snapshot for the loan line.
func reserveTx(ctx context.Context, tx *sqlx.Tx, itemID, quantity int) (name, category string, err error) {
	const q = `
	update inventory_items
	set quantity_available = quantity_available - $1
	where id = $2 and quantity_available >= $1
	returning name, category`

	if err := tx.QueryRowContext(ctx, q, quantity, itemID).Scan(&name, &category); err == nil {
		return name, category, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return "", "", err
	}

	// The guard rejected: item missing or not enough stock. Re-read to
	// surface the exact available count.
	var cur struct {
		Name      string `db:"name"`
		Available int    `db:"quantity_available"`
	}
	err = tx.GetContext(ctx, &cur, `select name, quantity_available from inventory_items where id = $1`, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", errors.Wrapf(errs.ErrNotFound, "inventory item %d", itemID)
		}
		return "", "", err
	}
	return "", "", &errs.InsufficientStockError{
		ItemID:    itemID,
		ItemName:  cur.Name,
		Requested: quantity,
		Available: cur.Available,
	}
}

// releaseTx credits quantity back to the pool, clamped at the total.
// Exceeding the total indicates a bookkeeping bug upstream, so the
// clamp is reported to the caller for logging instead of swallowed.
func releaseTx(ctx context.Context, tx *sqlx.Tx, itemID, quantity int) (clamped bool, err error) {
	const q = `
	with prev as (
		select quantity_available, quantity_total
		from inventory_items
		where id = $2
		for update
	)
	update inventory_items i
	set quantity_available = least(prev.quantity_available + $1, i.quantity_total)
	from prev
	where i.id = $2
	returning prev.quantity_available + $1 > i.quantity_total`

	if err := tx.QueryRowContext(ctx, q, quantity, itemID).Scan(&clamped); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, errors.Wrapf(errs.ErrNotFound, "inventory item %d", itemID)
		}
		return false, err
	}
	return clamped, nil
}

// consumeTx removes damaged or lost units from the pool entirely: they
// never re-enter availability and shrink the owned total.
func consumeTx(ctx context.Context, tx *sqlx.Tx, itemID, quantity int) error {
	const q = `
	update inventory_items
	set quantity_total     = greatest(quantity_total - $1, 0),
	    quantity_available = least(quantity_available, greatest(quantity_total - $1, 0))
	where id = $2`

	res, err := tx.ExecContext(ctx, q, quantity, itemID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(errs.ErrNotFound, "inventory item %d", itemID)
	}
	return nil
}

func (r *repository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.log.Error("tx rollback", zap.Error(rbErr))
		}
		return err
	}
	return tx.Commit()
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation
}
