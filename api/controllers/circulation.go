package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/librisforge/libris-backend/api/responses"
	"github.com/librisforge/libris-backend/api/validators"
	"github.com/librisforge/libris-backend/internal/circulation"
	"github.com/librisforge/libris-backend/pkg/db/models"
	"github.com/librisforge/libris-backend/pkg/enums"
	pkgerrors "github.com/librisforge/libris-backend/pkg/errors"
	"github.com/librisforge/libris-backend/pkg/logger"
	"github.com/librisforge/libris-backend/pkg/types"
)

// CheckoutLoan issues copies of a book to a member.
func CheckoutLoan(svc circulation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "circulation service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		loan, err := svc.Checkout(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newLoanResponse(loan))
	}
}

// ReturnLoan closes a loan, settles its fine, and reports any reservations
// the freed copies were handed to.
func ReturnLoan(svc circulation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "circulation service unavailable"))
			return
		}

		loanID, err := validators.ParseUUIDParam(r, "loanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload returnRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput(loanID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Return(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newReturnResponse(result))
	}
}

// LoanFine evaluates one loan's fine as of an optional date.
func LoanFine(svc circulation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "circulation service unavailable"))
			return
		}

		loanID, err := validators.ParseUUIDParam(r, "loanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		asOf, err := validators.ParseDateQuery(r, "as_of")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ComputeFine(r.Context(), loanID, asOf)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// MemberLoans lists a member's loans with derived overdue state.
func MemberLoans(svc circulation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "circulation service unavailable"))
			return
		}

		memberID, err := validators.ParseUUIDParam(r, "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		asOf, err := validators.ParseDateQuery(r, "as_of")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		loans, err := svc.MemberLoans(r.Context(), memberID, asOf)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, memberLoansResponse{MemberID: memberID, AsOf: asOf, Loans: loans})
	}
}

// MemberFines totals a member's accrued fines.
func MemberFines(svc circulation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "circulation service unavailable"))
			return
		}

		memberID, err := validators.ParseUUIDParam(r, "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		asOf, err := validators.ParseDateQuery(r, "as_of")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.MemberFines(r.Context(), memberID, asOf)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, summary)
	}
}

// CreateReservation places a member in a book's wait queue.
func CreateReservation(svc circulation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "circulation service unavailable"))
			return
		}

		var payload reserveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reservation, err := svc.Reserve(r.Context(), payload.BookID, payload.MemberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newReservationResponse(reservation))
	}
}

// CancelReservation withdraws a waiting reservation from the queue.
func CancelReservation(svc circulation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "circulation service unavailable"))
			return
		}

		reservationID, err := validators.ParseUUIDParam(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reservation, err := svc.CancelReservation(r.Context(), reservationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newReservationResponse(reservation))
	}
}

type checkoutRequest struct {
	BookID     uuid.UUID `json:"book_id" validate:"required"`
	MemberID   uuid.UUID `json:"member_id" validate:"required"`
	Copies     int       `json:"copies" validate:"required,min=1"`
	IssuedDate string    `json:"issued_date,omitempty"`
	DueDate    string    `json:"due_date,omitempty"`
}

func (p checkoutRequest) toInput() (circulation.CheckoutInput, error) {
	input := circulation.CheckoutInput{
		BookID:   p.BookID,
		MemberID: p.MemberID,
		Copies:   p.Copies,
	}
	if p.IssuedDate != "" {
		issued, err := types.ParseDate(p.IssuedDate)
		if err != nil {
			return circulation.CheckoutInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "issued_date must be a date").WithDetails(map[string]any{"field": "issued_date", "format": "YYYY-MM-DD"})
		}
		input.IssuedDate = issued
	}
	if p.DueDate != "" {
		due, err := types.ParseDate(p.DueDate)
		if err != nil {
			return circulation.CheckoutInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "due_date must be a date").WithDetails(map[string]any{"field": "due_date", "format": "YYYY-MM-DD"})
		}
		input.DueDate = due
	}
	return input, nil
}

type returnRequest struct {
	ReturnedDate string `json:"returned_date,omitempty"`
}

func (p returnRequest) toInput(loanID uuid.UUID) (circulation.ReturnInput, error) {
	input := circulation.ReturnInput{LoanID: loanID}
	if p.ReturnedDate != "" {
		returned, err := types.ParseDate(p.ReturnedDate)
		if err != nil {
			return circulation.ReturnInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "returned_date must be a date").WithDetails(map[string]any{"field": "returned_date", "format": "YYYY-MM-DD"})
		}
		input.ReturnedDate = returned
	}
	return input, nil
}

type reserveRequest struct {
	BookID   uuid.UUID `json:"book_id" validate:"required"`
	MemberID uuid.UUID `json:"member_id" validate:"required"`
}

type loanResponse struct {
	ID           uuid.UUID        `json:"id"`
	BookID       uuid.UUID        `json:"book_id"`
	MemberID     uuid.UUID        `json:"member_id"`
	CopiesLent   int              `json:"copies_lent"`
	IssuedDate   types.Date       `json:"issued_date"`
	DueDate      types.Date       `json:"due_date"`
	FinePerDay   decimal.Decimal  `json:"fine_per_day"`
	ReturnedDate *types.Date      `json:"returned_date,omitempty"`
	Status       enums.LoanStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
}

func newLoanResponse(loan *models.Loan) loanResponse {
	return loanResponse{
		ID:           loan.ID,
		BookID:       loan.BookID,
		MemberID:     loan.MemberID,
		CopiesLent:   loan.CopiesLent,
		IssuedDate:   loan.IssuedDate,
		DueDate:      loan.DueDate,
		FinePerDay:   loan.FinePerDay,
		ReturnedDate: loan.ReturnedDate,
		Status:       loan.Status,
		CreatedAt:    loan.CreatedAt,
	}
}

type returnResponse struct {
	Loan                  loanResponse          `json:"loan"`
	FineAmount            decimal.Decimal       `json:"fine_amount"`
	OverdueDays           int                   `json:"overdue_days"`
	FulfilledReservations []reservationResponse `json:"fulfilled_reservations"`
}

func newReturnResponse(result *circulation.ReturnResult) returnResponse {
	fulfilled := make([]reservationResponse, len(result.FulfilledReservations))
	for i := range result.FulfilledReservations {
		fulfilled[i] = newReservationResponse(&result.FulfilledReservations[i])
	}
	return returnResponse{
		Loan:                  newLoanResponse(result.Loan),
		FineAmount:            result.FineAmount,
		OverdueDays:           result.OverdueDays,
		FulfilledReservations: fulfilled,
	}
}

type reservationResponse struct {
	ID            uuid.UUID               `json:"id"`
	BookID        uuid.UUID               `json:"book_id"`
	MemberID      uuid.UUID               `json:"member_id"`
	Position      int64                   `json:"position"`
	Status        enums.ReservationStatus `json:"status"`
	ReservedAt    time.Time               `json:"reserved_at"`
	FulfilledAt   *time.Time              `json:"fulfilled_at,omitempty"`
	ClaimDeadline *time.Time              `json:"claim_deadline,omitempty"`
	ClaimedAt     *time.Time              `json:"claimed_at,omitempty"`
	CancelledAt   *time.Time              `json:"cancelled_at,omitempty"`
}

func newReservationResponse(reservation *models.Reservation) reservationResponse {
	return reservationResponse{
		ID:            reservation.ID,
		BookID:        reservation.BookID,
		MemberID:      reservation.MemberID,
		Position:      reservation.Position,
		Status:        reservation.Status,
		ReservedAt:    reservation.ReservedAt,
		FulfilledAt:   reservation.FulfilledAt,
		ClaimDeadline: reservation.ClaimDeadline,
		ClaimedAt:     reservation.ClaimedAt,
		CancelledAt:   reservation.CancelledAt,
	}
}

type memberLoansResponse struct {
	MemberID uuid.UUID              `json:"member_id"`
	AsOf     types.Date             `json:"as_of"`
	Loans    []circulation.LoanView `json:"loans"`
}
