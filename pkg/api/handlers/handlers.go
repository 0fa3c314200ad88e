package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/cbodonnell/tabletop/pkg/engine"
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/scene"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Table is the local participant's view of the session.
type Table interface {
	Snapshot() *scene.Snapshot
	Piece(id string) (*scene.Piece, bool)
	PieceAt(x, y float64) (*scene.Piece, bool)
	AddPiece(ctx context.Context, p *scene.Piece) error
	UpdatePiece(ctx context.Context, p *scene.Piece) error
	MovePiece(ctx context.Context, id string, pos scene.Position) error
	DeletePiece(ctx context.Context, id string) error
	ClearPieces(ctx context.Context) int
	ChangeBackground(ctx context.Context, bg scene.Background) error
	ChangeGrid(ctx context.Context, grid scene.GridScale) error
}

func HandleGetScene(table Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, table.Snapshot())
	}
}

func HandleAddPiece(table Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := &scene.Piece{}
		if err := json.NewDecoder(r.Body).Decode(p); err != nil {
			http.Error(w, "Failed to decode piece", http.StatusBadRequest)
			return
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}

		if err := table.AddPiece(r.Context(), p); err != nil {
			writeError(w, "Failed to add piece", err)
			return
		}

		writePiece(w, table, p.ID, http.StatusCreated)
	}
}

func HandleUpdatePiece(table Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := &scene.Piece{}
		if err := json.NewDecoder(r.Body).Decode(p); err != nil {
			http.Error(w, "Failed to decode piece", http.StatusBadRequest)
			return
		}
		p.ID = mux.Vars(r)["id"]

		if err := table.UpdatePiece(r.Context(), p); err != nil {
			writeError(w, "Failed to update piece", err)
			return
		}

		writePiece(w, table, p.ID, http.StatusOK)
	}
}

func HandleMovePiece(table Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var pos scene.Position
		if err := json.NewDecoder(r.Body).Decode(&pos); err != nil {
			http.Error(w, "Failed to decode position", http.StatusBadRequest)
			return
		}
		id := mux.Vars(r)["id"]

		if err := table.MovePiece(r.Context(), id, pos); err != nil {
			writeError(w, "Failed to move piece", err)
			return
		}

		writePiece(w, table, id, http.StatusOK)
	}
}

func HandleDeletePiece(table Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := table.DeletePiece(r.Context(), mux.Vars(r)["id"]); err != nil {
			writeError(w, "Failed to delete piece", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleClearPieces(table Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed := table.ClearPieces(r.Context())
		log.Debug("Cleared %d pieces", removed)
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandlePieceAt(table Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		x, err := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
		if err != nil {
			http.Error(w, "Failed to parse x", http.StatusBadRequest)
			return
		}
		y, err := strconv.ParseFloat(r.URL.Query().Get("y"), 64)
		if err != nil {
			http.Error(w, "Failed to parse y", http.StatusBadRequest)
			return
		}

		p, ok := table.PieceAt(x, y)
		if !ok {
			http.Error(w, "No piece at position", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func HandleChangeBackground(table Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var bg scene.Background
		if err := json.NewDecoder(r.Body).Decode(&bg); err != nil {
			http.Error(w, "Failed to decode background", http.StatusBadRequest)
			return
		}
		if err := table.ChangeBackground(r.Context(), bg); err != nil {
			writeError(w, "Failed to change background", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleChangeGrid(table Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var grid scene.GridScale
		if err := json.NewDecoder(r.Body).Decode(&grid); err != nil {
			http.Error(w, "Failed to decode grid", http.StatusBadRequest)
			return
		}
		if err := table.ChangeGrid(r.Context(), grid); err != nil {
			writeError(w, "Failed to change grid", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writePiece(w http.ResponseWriter, table Table, id string, status int) {
	p, ok := table.Piece(id)
	if !ok {
		// removed by a remote event in the meantime
		http.Error(w, "Piece not found", http.StatusNotFound)
		return
	}
	writeJSON(w, status, p)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response: %v", err)
	}
}

// writeError maps engine errors onto status codes
func writeError(w http.ResponseWriter, msg string, err error) {
	switch {
	case engine.IsRoleViolation(err):
		http.Error(w, msg+": "+err.Error(), http.StatusForbidden)
	case engine.IsUnknownPiece(err):
		http.Error(w, msg+": "+err.Error(), http.StatusNotFound)
	case engine.IsDuplicatePiece(err):
		http.Error(w, msg+": "+err.Error(), http.StatusConflict)
	case errors.Is(err, engine.ErrInvalidEvent):
		http.Error(w, msg+": "+err.Error(), http.StatusBadRequest)
	default:
		log.Error("%s: %v", msg, err)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}
