package model

import (
	"time"
)

// Status is the lifecycle state of a loan. Values are kept in
// Portuguese to stay compatible with the facility-management screens
// and the historical data they produced.
type Status string

const (
	StatusLent     Status = "emprestado"
	StatusOverdue  Status = "atrasado"
	StatusReturned Status = "devolvido"
	StatusDamaged  Status = "perdido_danificado"
)

// Terminal reports whether no further returns are permitted.
// Metadata edits stay possible in terminal states.
func (s Status) Terminal() bool {
	return s == StatusReturned || s == StatusDamaged
}

func (s Status) Valid() bool {
	switch s {
	case StatusLent, StatusOverdue, StatusReturned, StatusDamaged:
		return true
	}
	return false
}

// Condition is the state a line item came back in.
type Condition string

const (
	ConditionOK      Condition = "OK"
	ConditionDamaged Condition = "Danificado"
	ConditionLost    Condition = "Perdido"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionOK, ConditionDamaged, ConditionLost:
		return true
	}
	return false
}

type Item struct {
	ID                int       `json:"id" db:"id"`
	Name              string    `json:"name" db:"name"`
	Category          string    `json:"category" db:"category"`
	Description       string    `json:"description" db:"description"`
	UnitValue         float64   `json:"unitValue" db:"unit_value"`
	QuantityTotal     int       `json:"quantityTotal" db:"quantity_total"`
	QuantityAvailable int       `json:"quantityAvailable" db:"quantity_available"`
	CreatedAt         time.Time `json:"-" db:"created_at"`
}

type Loan struct {
	ID               int        `json:"id" db:"id"`
	LoanUid          string     `json:"loanUid" db:"loan_uid"`
	Company          string     `json:"company" db:"company"`
	RequesterName    string     `json:"requesterName" db:"requester_name"`
	RequesterCPF     string     `json:"requesterCpf" db:"requester_cpf"`
	RequesterPhone   string     `json:"requesterPhone" db:"requester_phone"`
	Location         string     `json:"location" db:"location"`
	DeliveredBy      string     `json:"deliveredBy" db:"delivered_by"`
	LoanDate         time.Time  `json:"loanDate" db:"loan_date"`
	ExpectedReturnAt *time.Time `json:"expectedReturnDate" db:"expected_return_at"`
	ActualReturnAt   *time.Time `json:"actualReturnDate" db:"actual_return_at"`
	ReturnedBy       *string    `json:"returnedBy" db:"returned_by"`
	Notes            string     `json:"notes" db:"notes"`
	Status           Status     `json:"status" db:"status"`
	Items            []LoanItem `json:"items" db:"-"`
}

// TotalDamageFee is derived, never stored.
func (l Loan) TotalDamageFee() float64 {
	var total float64
	for _, it := range l.Items {
		total += it.DamageFee
	}
	return total
}

type LoanItem struct {
	ID               int        `json:"id" db:"id"`
	ItemUid          string     `json:"itemUid" db:"item_uid"`
	LoanID           int        `json:"-" db:"loan_id"`
	InventoryItemID  int        `json:"inventoryItemId" db:"inventory_item_id"`
	Name             string     `json:"name" db:"name"`
	Category         string     `json:"category" db:"category"`
	QuantityBorrowed int        `json:"quantityBorrowed" db:"quantity_borrowed"`
	QuantityReturned int        `json:"quantityReturned" db:"quantity_returned"`
	Condition        Condition  `json:"condition" db:"condition"`
	DamageFee        float64    `json:"damageFee" db:"damage_fee"`
	PaymentMethod    *string    `json:"paymentMethod" db:"payment_method"`
	PaymentDate      *time.Time `json:"paymentDate" db:"payment_date"`
	Notes            string     `json:"notes" db:"notes"`
}

// Outstanding is the quantity still out with the requester, i.e. still
// reserved against the pool.
func (li LoanItem) Outstanding() int {
	return li.QuantityBorrowed - li.QuantityReturned
}

type CreateLoanItem struct {
	InventoryItemID int `json:"inventoryItemId" validate:"required,gt=0"`
	Quantity        int `json:"quantity" validate:"required,gt=0"`
}

type CreateLoanRequest struct {
	Company          string           `json:"company" validate:"required"`
	RequesterName    string           `json:"requesterName" validate:"required"`
	RequesterCPF     string           `json:"requesterCpf"`
	RequesterPhone   string           `json:"requesterPhone"`
	Location         string           `json:"location" validate:"required"`
	DeliveredBy      string           `json:"deliveredBy" validate:"required"`
	LoanDate         *time.Time       `json:"loanDate"`
	ExpectedReturnAt *time.Time       `json:"expectedReturnDate"`
	Notes            string           `json:"notes"`
	Items            []CreateLoanItem `json:"items" validate:"required,min=1,dive"`
}

// UpdateLoanRequest carries the metadata-only patch. Line items are
// deliberately absent: the item list is immutable after creation.
type UpdateLoanRequest struct {
	Company          *string    `json:"company"`
	RequesterName    *string    `json:"requesterName"`
	RequesterCPF     *string    `json:"requesterCpf"`
	RequesterPhone   *string    `json:"requesterPhone"`
	Location         *string    `json:"location"`
	DeliveredBy      *string    `json:"deliveredBy"`
	ExpectedReturnAt *time.Time `json:"expectedReturnDate"`
	Notes            *string    `json:"notes"`
}

func (r UpdateLoanRequest) Empty() bool {
	return r.Company == nil && r.RequesterName == nil && r.RequesterCPF == nil &&
		r.RequesterPhone == nil && r.Location == nil && r.DeliveredBy == nil &&
		r.ExpectedReturnAt == nil && r.Notes == nil
}

// ReturnItemRequest is one line item's submitted settlement.
type ReturnItemRequest struct {
	ItemUid          string     `json:"itemUid" validate:"required"`
	QuantityReturned int        `json:"quantityReturned" validate:"gte=0"`
	Condition        Condition  `json:"condition" validate:"required"`
	DamageFee        float64    `json:"damageFee" validate:"gte=0"`
	PaymentMethod    string     `json:"paymentMethod"`
	PaymentDate      *time.Time `json:"paymentDate"`
	Notes            string     `json:"notes"`
}

type ReturnRequest struct {
	ReturnedBy     string              `json:"returnedBy" validate:"required"`
	ActualReturnAt *time.Time          `json:"actualReturnDate"`
	Items          []ReturnItemRequest `json:"items" validate:"required,min=1,dive"`
}

type UpdateStatusRequest struct {
	Status Status `json:"status" validate:"required"`
}

type SetQuantitiesRequest struct {
	QuantityTotal     int `json:"quantityTotal"`
	QuantityAvailable int `json:"quantityAvailable"`
}

// Settlement is the normalized, validated outcome for one line item,
// produced by settlement computation and committed by the repository.
type Settlement struct {
	ItemUid          string
	InventoryItemID  int
	QuantityReturned int
	Condition        Condition
	DamageFee        float64
	PaymentMethod    *string
	PaymentDate      *time.Time
	Notes            string

	// ReleaseQuantity goes back to the item's available pool;
	// ConsumeQuantity leaves the pool entirely (damaged or lost).
	ReleaseQuantity int
	ConsumeQuantity int
}

// SettlementResult is a full return submission after settlement:
// per-item outcomes plus the derived loan status.
type SettlementResult struct {
	Status      Status
	Settlements []Settlement
}

type Summary struct {
	LoansByStatus    map[Status]int `json:"loansByStatus"`
	OpenLineItems    int            `json:"openLineItems"`
	OutstandingUnits int            `json:"outstandingUnits"`
	TotalDamageFees  float64        `json:"totalDamageFees"`
	ItemsTracked     int            `json:"itemsTracked"`
	UnitsAvailable   int            `json:"unitsAvailable"`
}
