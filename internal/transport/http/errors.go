package http

import (
	"encoding/json"
	"net/http"
)

const (
	codeMethodNotAllowed    = "method_not_allowed"
	codeNotFound            = "not_found"
	codeInvalidRequestBody  = "invalid_request_body"
	codeInvalidID           = "invalid_id"
	codeLabelRequired       = "label_required"
	codeUserIDRequired      = "user_id_required"
	codeEvidenceRequired    = "evidence_required"
	codeInvalidOutcome      = "invalid_outcome"
	codeSlotUnavailable     = "slot_unavailable"
	codeSlotNotFound        = "slot_not_found"
	codeSlotOccupied        = "slot_occupied"
	codeReservationNotFound = "reservation_not_found"
	codeAlreadyTerminal     = "already_terminal"
	codeWrongState          = "wrong_state"
	codeForbidden           = "forbidden"
	codeInternalError       = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}
