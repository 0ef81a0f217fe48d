package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/inkworks/studio-booking/internal/domain"
)

// SlotService is the minimal interface the slot endpoints need.
type SlotService interface {
	Add(ctx context.Context, label string) (domain.Slot, error)
	Remove(ctx context.Context, id string) error
	ListAvailable(ctx context.Context) ([]domain.Slot, error)
	ListAll(ctx context.Context) ([]domain.Slot, error)
}

// HandleSlots serves GET /slots (available slots) and POST /slots.
func HandleSlots(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			slots, err := svc.ListAvailable(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
				return
			}
			writeSlots(w, slots, http.StatusOK)
			return
		case http.MethodPost:
			var req createSlotRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}

			slot, err := svc.Add(r.Context(), req.Label)
			if err != nil {
				switch err {
				case domain.ErrLabelRequired:
					writeError(w, http.StatusBadRequest, codeLabelRequired, err.Error())
				default:
					writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
				}
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(toSlotResponse(slot))
			return
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}
	}
}

// HandleSlotsSub serves GET /slots/all and DELETE /slots/{id}.
func HandleSlotsSub(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/slots"), "/")
		if rest == "" || strings.Contains(rest, "/") {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		if rest == "all" {
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
				return
			}
			slots, err := svc.ListAll(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
				return
			}
			writeSlots(w, slots, http.StatusOK)
			return
		}

		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		if err := svc.Remove(r.Context(), rest); err != nil {
			switch err {
			case domain.ErrInvalidID:
				writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
			case domain.ErrSlotNotFound:
				writeError(w, http.StatusNotFound, codeSlotNotFound, err.Error())
			case domain.ErrSlotOccupied:
				writeError(w, http.StatusConflict, codeSlotOccupied, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type createSlotRequest struct {
	Label string `json:"label"`
}

type slotResponse struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Available bool   `json:"available"`
}

func toSlotResponse(s domain.Slot) slotResponse {
	return slotResponse{ID: s.ID, Label: s.Label, Available: s.Available}
}

func writeSlots(w http.ResponseWriter, slots []domain.Slot, status int) {
	resp := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		resp = append(resp, toSlotResponse(s))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
