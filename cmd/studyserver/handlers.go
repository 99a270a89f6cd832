package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/achraflolman/studybox-server/internal/aiclient"
	"github.com/achraflolman/studybox-server/internal/auth"
	"github.com/achraflolman/studybox-server/internal/reminders"
	"github.com/achraflolman/studybox-server/internal/session"
	"github.com/achraflolman/studybox-server/internal/stores"
	"github.com/achraflolman/studybox-server/internal/studyvault"
)

type apiHandler struct {
	vault *studyvault.Server
}

func newMux(vault *studyvault.Server) *http.ServeMux {
	h := &apiHandler{vault: vault}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/decks", h.createDeck)
	mux.HandleFunc("GET /api/decks", h.listDecks)
	mux.HandleFunc("DELETE /api/decks/{deckID}", h.deleteDeck)

	mux.HandleFunc("POST /api/decks/{deckID}/cards", h.addCards)
	mux.HandleFunc("GET /api/decks/{deckID}/cards", h.listCards)
	mux.HandleFunc("DELETE /api/decks/{deckID}/cards", h.deleteCards)
	mux.HandleFunc("GET /api/decks/{deckID}/schedule", h.scheduleBreakdown)

	mux.HandleFunc("POST /api/sessions", h.startSession)
	mux.HandleFunc("GET /api/sessions/{sessionID}", h.getSession)
	mux.HandleFunc("POST /api/sessions/{sessionID}/answer", h.submitAnswer)
	mux.HandleFunc("POST /api/sessions/{sessionID}/exit", h.exitSession)

	mux.HandleFunc("GET /api/profile", h.profile)
	mux.HandleFunc("POST /api/cards/generate", h.generateCards)

	mux.HandleFunc("POST /api/reminders", h.scheduleReminder)
	mux.HandleFunc("DELETE /api/reminders/{reminderID}", h.cancelReminder)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("encoding-response")
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, studyvault.ErrValidation),
		errors.Is(err, studyvault.ErrNoCards),
		errors.Is(err, session.ErrInsufficientCards),
		errors.Is(err, reminders.ErrPastTime):
		status = http.StatusBadRequest
	case errors.Is(err, studyvault.ErrDeckNotFound),
		errors.Is(err, studyvault.ErrSessionNotFound),
		errors.Is(err, stores.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, studyvault.ErrReadOnlyDeck):
		status = http.StatusForbidden
	case errors.Is(err, session.ErrSessionOver), errors.Is(err, session.ErrWrongMode):
		status = http.StatusConflict
	case errors.Is(err, aiclient.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed " + name})
		return uuid.Nil, false
	}
	return id, true
}

func user(r *http.Request) *auth.AuthedUser {
	return auth.UserFromContext(r.Context())
}

func (h *apiHandler) createDeck(w http.ResponseWriter, r *http.Request) {
	var req studyvault.CreateDeckRequest
	if !decodeBody(w, r, &req) {
		return
	}
	deck, err := h.vault.CreateDeck(r.Context(), user(r).UserID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deck)
}

func (h *apiHandler) listDecks(w http.ResponseWriter, r *http.Request) {
	decks, err := h.vault.ListDecks(r.Context(), user(r).UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if decks == nil {
		decks = []stores.Deck{}
	}
	writeJSON(w, http.StatusOK, decks)
}

func (h *apiHandler) deleteDeck(w http.ResponseWriter, r *http.Request) {
	deckID, ok := pathUUID(w, r, "deckID")
	if !ok {
		return
	}
	if err := h.vault.DeleteDeck(r.Context(), user(r).UserID, deckID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) addCards(w http.ResponseWriter, r *http.Request) {
	deckID, ok := pathUUID(w, r, "deckID")
	if !ok {
		return
	}
	var req studyvault.AddCardsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cards, err := h.vault.AddCards(r.Context(), user(r).UserID, deckID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cards)
}

func (h *apiHandler) listCards(w http.ResponseWriter, r *http.Request) {
	deckID, ok := pathUUID(w, r, "deckID")
	if !ok {
		return
	}
	cards, err := h.vault.ListCards(r.Context(), user(r).UserID, deckID)
	if err != nil {
		writeError(w, err)
		return
	}
	if cards == nil {
		cards = []stores.Flashcard{}
	}
	writeJSON(w, http.StatusOK, cards)
}

func (h *apiHandler) deleteCards(w http.ResponseWriter, r *http.Request) {
	deckID, ok := pathUUID(w, r, "deckID")
	if !ok {
		return
	}
	var req struct {
		IDs []uuid.UUID `json:"ids"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	n, err := h.vault.DeleteCards(r.Context(), user(r).UserID, deckID, req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (h *apiHandler) scheduleBreakdown(w http.ResponseWriter, r *http.Request) {
	deckID, ok := pathUUID(w, r, "deckID")
	if !ok {
		return
	}
	breakdown, err := h.vault.ScheduleBreakdown(r.Context(), user(r).UserID, deckID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

func (h *apiHandler) startSession(w http.ResponseWriter, r *http.Request) {
	var req studyvault.StartSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.vault.StartSession(r.Context(), user(r).UserID, req)
	if err != nil {
		// Nothing due is not a failure; the client shows a rest screen.
		if errors.Is(err, session.ErrAllCaughtUp) {
			writeJSON(w, http.StatusOK, map[string]string{"state": "all-caught-up"})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *apiHandler) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "sessionID")
	if !ok {
		return
	}
	view, err := h.vault.GetSession(user(r).UserID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *apiHandler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "sessionID")
	if !ok {
		return
	}
	var req studyvault.AnswerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	step, err := h.vault.SubmitAnswer(r.Context(), user(r).UserID, id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (h *apiHandler) exitSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "sessionID")
	if !ok {
		return
	}
	h.vault.ExitSession(user(r).UserID, id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) profile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.vault.Profile(r.Context(), user(r).UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *apiHandler) generateCards(w http.ResponseWriter, r *http.Request) {
	var req studyvault.GenerateCardsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	drafts, err := h.vault.GenerateCards(r.Context(), user(r).UserID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, drafts)
}

func (h *apiHandler) scheduleReminder(w http.ResponseWriter, r *http.Request) {
	var req studyvault.ReminderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.vault.ScheduleReminder(r.Context(), user(r).UserID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *apiHandler) cancelReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "reminderID")
	if !ok {
		return
	}
	if !h.vault.CancelReminder(id) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no such reminder"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
