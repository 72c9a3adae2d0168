package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/jaminalder/hotseat-tictactoe/internal/app"
	"github.com/jaminalder/hotseat-tictactoe/internal/domain"
)

type handlers struct {
	svc       *app.Service
	tpl       *templates
	log       zerolog.Logger
	heartbeat time.Duration
}

func (h *handlers) renderBoard(gs app.GameState, errMsg string) []byte {
	b, err := renderTemplate(h.tpl.board, "", newBoardView(gs, errMsg))
	if err != nil {
		h.log.Error().Err(err).Str("game", gs.ID).Msg("render board")
	}
	return b
}

func writeHTML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	body, err := renderTemplate(h.tpl.index, "base", nil)
	if err != nil {
		h.log.Error().Err(err).Msg("render index")
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	writeHTML(w, http.StatusOK, body)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	gs, err := h.svc.CreateGame()
	if err != nil {
		h.log.Error().Err(err).Msg("create game")
		http.Error(w, "failed to create", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/game/"+gs.ID, http.StatusSeeOther)
}

func (h *handlers) view(w http.ResponseWriter, r *http.Request) {
	gs, ok := h.svc.Get(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	data := struct {
		ID    string
		Board boardView
	}{ID: gs.ID, Board: newBoardView(*gs, "")}

	body, err := renderTemplate(h.tpl.game, "base", data)
	if err != nil {
		h.log.Error().Err(err).Str("game", gs.ID).Msg("render game")
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	writeHTML(w, http.StatusOK, body)
}

// parseCell reads the selected cell. Anything unparsable becomes -1 so the
// engine reports it as out of range.
func parseCell(r *http.Request) int {
	_ = r.ParseForm()
	idx, err := strconv.Atoi(strings.TrimSpace(r.Form.Get("cell")))
	if err != nil {
		return -1
	}
	return idx
}

func illegalMoveMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrCellOccupied):
		return "Cell is occupied"
	case errors.Is(err, domain.ErrOutOfRange):
		return "Out of range"
	case errors.Is(err, domain.ErrGameOver):
		return "Game is over"
	default:
		return "Invalid move"
	}
}

func (h *handlers) play(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	gs, err := h.svc.Play(id, parseCell(r))
	if errors.Is(err, app.ErrNotFound) || gs == nil {
		http.NotFound(w, r)
		return
	}
	var errMsg string
	if err != nil {
		errMsg = illegalMoveMessage(err)
	}
	writeHTML(w, http.StatusOK, h.renderBoard(*gs, errMsg))
}

func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
	gs, err := h.svc.Reset(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	writeHTML(w, http.StatusOK, h.renderBoard(*gs, ""))
}

type stateResponse struct {
	ID      string   `json:"id"`
	Board   []string `json:"board"`
	Turn    string   `json:"turn"`
	Status  string   `json:"status"`
	Winner  string   `json:"winner"`
	Line    []int    `json:"line,omitempty"`
	Moves   int      `json:"moves"`
	Message string   `json:"message"`
	Error   string   `json:"error,omitempty"`
}

func newStateResponse(gs app.GameState) stateResponse {
	s := gs.State
	resp := stateResponse{
		ID:      gs.ID,
		Board:   make([]string, len(s.Board)),
		Turn:    s.Turn.String(),
		Status:  s.Status.String(),
		Winner:  s.Winner.String(),
		Moves:   s.Moves,
		Message: domain.StatusMessage(s),
	}
	for i, m := range s.Board {
		resp.Board[i] = m.String()
	}
	if s.HasLine {
		resp.Line = s.Line[:]
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handlers) apiCreate(w http.ResponseWriter, r *http.Request) {
	gs, err := h.svc.CreateGame()
	if err != nil {
		h.log.Error().Err(err).Msg("create game")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create"})
		return
	}
	w.Header().Set("Location", "/api/games/"+gs.ID)
	writeJSON(w, http.StatusCreated, newStateResponse(*gs))
}

func (h *handlers) state(w http.ResponseWriter, r *http.Request) {
	gs, ok := h.svc.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": app.ErrNotFound.Error()})
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(*gs))
}

// apiPlay is the JSON variant of play: {"cell": n}. Illegal moves answer 409
// with the unchanged state.
func (h *handlers) apiPlay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Cell *int `json:"cell"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Cell == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must be {\"cell\": 0-8}"})
		return
	}
	gs, err := h.svc.Play(chi.URLParam(r, "id"), *req.Cell)
	if errors.Is(err, app.ErrNotFound) || gs == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": app.ErrNotFound.Error()})
		return
	}
	resp := newStateResponse(*gs)
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) apiReset(w http.ResponseWriter, r *http.Request) {
	gs, err := h.svc.Reset(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(*gs))
}

// writeEvent emits one SSE event; every payload line gets its own data field.
func writeEvent(w io.Writer, event string, payload []byte) {
	_, _ = fmt.Fprintf(w, "event: %s\n", event)
	for _, line := range strings.Split(strings.TrimRight(string(payload), "\n"), "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = io.WriteString(w, "\n")
}

func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.svc.Get(id); !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	// In tests or non-EventSource requests, just acknowledge headers and return
	if r.Header.Get("Accept") != "text/event-stream" {
		w.WriteHeader(http.StatusOK)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx := r.Context()
	ch, unsub, err := h.svc.Subscribe(ctx, id)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer unsub()
	h.log.Debug().Str("game", id).Msg("sse subscriber connected")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		case b, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, "board", b)
			flusher.Flush()
		}
	}
}
