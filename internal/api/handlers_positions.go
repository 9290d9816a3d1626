package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	apperrors "github.com/portfolio-aggregator/internal/errors"
	"github.com/portfolio-aggregator/internal/service"
	"github.com/portfolio-aggregator/internal/types"
)

const dateLayout = "2006-01-02"

// defaultHistoryDays is the window of a history query without from
const defaultHistoryDays = 90

// PositionsResponse is the body of GET /api/positions
type PositionsResponse struct {
	Date      string            `json:"date,omitempty"`
	Count     int               `json:"count"`
	Positions []*types.Position `json:"positions"`
}

// HistoryResponse is the body of GET /api/positions/{id}/history
type HistoryResponse struct {
	PositionID string            `json:"positionId"`
	From       string            `json:"from"`
	To         string            `json:"to"`
	Rows       []*types.Position `json:"rows"`
}

// ExposureResponse is the body of GET /api/exposure
type ExposureResponse struct {
	Date string `json:"date,omitempty"`
	*service.ExposureReport
}

// handleGetPositions handles GET /api/positions?date=YYYY-MM-DD. Without a
// date it serves the current snapshot.
func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	date, positions, err := s.loadSnapshot(r)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	respondJSON(w, http.StatusOK, PositionsResponse{
		Date:      date,
		Count:     len(positions),
		Positions: positions,
	})
}

// handleGetPositionHistory handles GET /api/positions/{id}/history?from=&to=
func (s *Server) handleGetPositionHistory(w http.ResponseWriter, r *http.Request) {
	positionID := mux.Vars(r)["id"]
	if positionID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Position ID required", nil)
		return
	}

	to := types.Day(time.Now())
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := parseDate("to", v)
		if err != nil {
			respondCategorized(w, err)
			return
		}
		to = parsed
	}
	from := to.AddDate(0, 0, -defaultHistoryDays)
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := parseDate("from", v)
		if err != nil {
			respondCategorized(w, err)
			return
		}
		from = parsed
	}
	if from.After(to) {
		respondCategorized(w, apperrors.NewInvalidParameterError("from", "must not be after to"))
		return
	}
	if to.Sub(from) > time.Duration(s.config.MaxHistoryDays)*24*time.Hour {
		respondCategorized(w, apperrors.NewInvalidParameterError("from", "range exceeds the maximum history window"))
		return
	}

	rows, err := s.ledger.History(r.Context(), positionID, from, to)
	if err != nil {
		respondCategorized(w, apperrors.NewStorageError("read position history", err))
		return
	}
	if len(rows) == 0 {
		respondCategorized(w, apperrors.NewNotFoundError("position", positionID))
		return
	}

	respondJSON(w, http.StatusOK, HistoryResponse{
		PositionID: positionID,
		From:       from.Format(dateLayout),
		To:         to.Format(dateLayout),
		Rows:       rows,
	})
}

// handleGetExposure handles GET /api/exposure?date=YYYY-MM-DD
func (s *Server) handleGetExposure(w http.ResponseWriter, r *http.Request) {
	date, positions, err := s.loadSnapshot(r)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ExposureResponse{
		Date:           date,
		ExposureReport: service.Exposure(positions),
	})
}

// loadSnapshot reads the ledger snapshot named by ?date=, or the current
// snapshot when the parameter is absent
func (s *Server) loadSnapshot(r *http.Request) (string, []*types.Position, error) {
	v := r.URL.Query().Get("date")
	if v == "" {
		positions, err := s.current.Current(r.Context())
		if err != nil {
			return "", nil, apperrors.NewStorageError("read current snapshot", err)
		}
		if len(positions) == 0 {
			return "", nil, apperrors.NewNotFoundError("snapshot", "current")
		}
		return positions[0].Date.Format(dateLayout), positions, nil
	}

	date, err := parseDate("date", v)
	if err != nil {
		return "", nil, err
	}
	positions, err := s.ledger.GetByDate(r.Context(), date)
	if err != nil {
		return "", nil, apperrors.NewStorageError("read ledger snapshot", err)
	}
	if len(positions) == 0 {
		return "", nil, apperrors.NewNotFoundError("snapshot", v)
	}
	return date.Format(dateLayout), positions, nil
}

func parseDate(param, v string) (time.Time, error) {
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, apperrors.NewInvalidParameterError(param, "expected YYYY-MM-DD")
	}
	return t.UTC(), nil
}
