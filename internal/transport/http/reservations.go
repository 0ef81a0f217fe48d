package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/inkworks/studio-booking/internal/app"
	"github.com/inkworks/studio-booking/internal/domain"
)

// BookingService is the minimal interface the reservation endpoints need.
type BookingService interface {
	CreateHold(ctx context.Context, in app.CreateHoldInput) (app.HoldDetails, error)
	AttachEvidence(ctx context.Context, reservationID, evidenceRef string) (domain.Reservation, error)
	Resolve(ctx context.Context, reservationID string, outcome domain.Outcome) (domain.Reservation, error)
}

// HandleCreateReservation serves POST /reservations.
func HandleCreateReservation(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req createReservationRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		details, err := svc.CreateHold(r.Context(), app.CreateHoldInput{
			User: domain.User{
				ID:          req.User.ID,
				DisplayName: req.User.DisplayName,
				Handle:      req.User.Handle,
			},
			SlotID:   req.SlotID,
			Discount: req.Discount,
		})
		if err != nil {
			switch err {
			case domain.ErrUserIDRequired:
				writeError(w, http.StatusBadRequest, codeUserIDRequired, err.Error())
			case domain.ErrInvalidID:
				writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
			case domain.ErrSlotNotFound:
				writeError(w, http.StatusNotFound, codeSlotNotFound, err.Error())
			case domain.ErrSlotUnavailable:
				writeError(w, http.StatusConflict, codeSlotUnavailable, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}

		resp := holdDetailsResponse{
			ID:            details.Reservation.ID,
			SlotID:        details.Reservation.SlotID,
			SlotLabel:     details.SlotLabel,
			Status:        string(details.Reservation.Status),
			CardNumber:    details.CardNumber,
			CardOwner:     details.CardOwner,
			DepositAmount: details.DepositAmount,
			HeldAt:        details.Reservation.HeldAt,
			ExpiresAt:     details.ExpiresAt,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// HandleReservationSub serves POST /reservations/{id}/evidence and
// POST /reservations/{id}/resolve.
func HandleReservationSub(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, action, ok := parseReservationPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		switch action {
		case "evidence":
			handleAttachEvidence(w, r, svc, id)
		case "resolve":
			handleResolve(w, r, svc, id)
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func handleAttachEvidence(w http.ResponseWriter, r *http.Request, svc BookingService, id string) {
	var req attachEvidenceRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}

	res, err := svc.AttachEvidence(r.Context(), id, req.EvidenceRef)
	if err != nil {
		switch err {
		case domain.ErrEvidenceRequired:
			writeError(w, http.StatusBadRequest, codeEvidenceRequired, err.Error())
		case domain.ErrInvalidID:
			writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
		case domain.ErrReservationNotFound:
			writeError(w, http.StatusNotFound, codeReservationNotFound, err.Error())
		case domain.ErrWrongState:
			writeError(w, http.StatusConflict, codeWrongState, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		}
		return
	}

	writeReservation(w, res, http.StatusOK)
}

func handleResolve(w http.ResponseWriter, r *http.Request, svc BookingService, id string) {
	var req resolveRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}

	// The outcome is decoded once into the closed set here; handlers and
	// services only ever see domain.Outcome values. Expiry belongs to the
	// sweeper, so the HTTP surface accepts admin outcomes only.
	outcome, err := domain.ParseOutcome(req.Outcome)
	if err != nil || outcome == domain.OutcomeExpired {
		writeError(w, http.StatusBadRequest, codeInvalidOutcome, domain.ErrInvalidOutcome.Error())
		return
	}

	res, err := svc.Resolve(r.Context(), id, outcome)
	if err != nil {
		switch err {
		case domain.ErrInvalidID:
			writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
		case domain.ErrReservationNotFound:
			writeError(w, http.StatusNotFound, codeReservationNotFound, err.Error())
		case domain.ErrAlreadyTerminal:
			// An expected race (admin double-tap or sweeper win), not a failure.
			writeError(w, http.StatusConflict, codeAlreadyTerminal, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		}
		return
	}

	writeReservation(w, res, http.StatusOK)
}

func parseReservationPath(path string) (id, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "reservations" || parts[1] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

type createReservationRequest struct {
	User     reservationUser `json:"user"`
	SlotID   string          `json:"slot_id"`
	Discount bool            `json:"discount,omitempty"`
}

type reservationUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Handle      string `json:"handle,omitempty"`
}

type attachEvidenceRequest struct {
	EvidenceRef string `json:"evidence_ref"`
}

type resolveRequest struct {
	Outcome string `json:"outcome"`
}

type holdDetailsResponse struct {
	ID            string    `json:"id"`
	SlotID        string    `json:"slot_id"`
	SlotLabel     string    `json:"slot_label"`
	Status        string    `json:"status"`
	CardNumber    string    `json:"card_number"`
	CardOwner     string    `json:"card_owner"`
	DepositAmount string    `json:"deposit_amount"`
	HeldAt        time.Time `json:"held_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type reservationResponse struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	SlotID      string     `json:"slot_id"`
	Status      string     `json:"status"`
	EvidenceRef string     `json:"evidence_ref,omitempty"`
	HeldAt      time.Time  `json:"held_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

func writeReservation(w http.ResponseWriter, res domain.Reservation, status int) {
	resp := reservationResponse{
		ID:          res.ID,
		UserID:      res.UserID,
		SlotID:      res.SlotID,
		Status:      string(res.Status),
		EvidenceRef: res.EvidenceRef,
		HeldAt:      res.HeldAt,
		ResolvedAt:  res.ResolvedAt,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
