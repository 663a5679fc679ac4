package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/librisforge/libris-backend/api/responses"
	"github.com/librisforge/libris-backend/api/validators"
	"github.com/librisforge/libris-backend/internal/inventory"
	"github.com/librisforge/libris-backend/pkg/db/models"
	pkgerrors "github.com/librisforge/libris-backend/pkg/errors"
	"github.com/librisforge/libris-backend/pkg/logger"
)

// BookAvailability reports the copy counts for one book.
func BookAvailability(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		bookID, err := validators.ParseUUIDParam(r, "bookId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Get(r.Context(), bookID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if record == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "book is not in the inventory"))
			return
		}

		responses.WriteSuccess(w, newInventoryResponse(record))
	}
}

// SetBookInventory registers a book or resizes its total copy count.
func SetBookInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		bookID, err := validators.ParseUUIDParam(r, "bookId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload setInventoryRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.SetTotal(r.Context(), bookID, payload.TotalCopies)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newInventoryResponse(record))
	}
}

// AddBookCopies grows a book's copy pool without touching copies
// already out on loan.
func AddBookCopies(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		bookID, err := validators.ParseUUIDParam(r, "bookId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addCopiesRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.AddCopies(r.Context(), bookID, payload.Copies)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newInventoryResponse(record))
	}
}

type setInventoryRequest struct {
	TotalCopies int `json:"total_copies" validate:"min=0"`
}

type addCopiesRequest struct {
	Copies int `json:"copies" validate:"required,min=1"`
}

type inventoryResponse struct {
	BookID          uuid.UUID `json:"book_id"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func newInventoryResponse(record *models.BookInventory) inventoryResponse {
	return inventoryResponse{
		BookID:          record.BookID,
		TotalCopies:     record.TotalCopies,
		AvailableCopies: record.AvailableCopies,
		UpdatedAt:       record.UpdatedAt,
	}
}
