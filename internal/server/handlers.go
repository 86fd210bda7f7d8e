package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/promptbandit/promptbandit/internal/bandit"
	"github.com/promptbandit/promptbandit/internal/segment"
	"github.com/promptbandit/promptbandit/internal/stats"
)

// SelectRequest asks for the next variant to show a subject. The cohort
// is optional; without it selection runs unboosted.
type SelectRequest struct {
	SubjectID string          `json:"subject_id"`
	SessionID string          `json:"session_id"`
	Cohort    *segment.Cohort `json:"cohort,omitempty"`
}

type SelectResponse struct {
	SelectionID string    `json:"selection_id"`
	VariantID   string    `json:"variant_id"`
	VariantKey  string    `json:"variant_key"`
	Text        string    `json:"text"`
	ContextHint string    `json:"context_hint"`
	WindowEnd   time.Time `json:"window_end"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.SubjectID == "" || req.SessionID == "" {
		http.Error(w, "subject_id and session_id are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	var cohortKey, style string
	boosts := map[string]float64{}
	if req.Cohort != nil {
		cohortKey = req.Cohort.Key()
		style = req.Cohort.Style

		var err error
		boosts, err = s.segments.GetBoosts(ctx, cohortKey)
		if err != nil {
			s.logger.Error("failed to load segment boosts", "segment", cohortKey, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}

	variant, sel, err := s.selector.SelectAndRecord(ctx, req.SubjectID, req.SessionID, cohortKey, style, boosts)
	if errors.Is(err, bandit.ErrNoVariants) {
		http.Error(w, "no variants available", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		s.logger.Error("selection failed", "subject_id", req.SubjectID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, SelectResponse{
		SelectionID: sel.ID,
		VariantID:   variant.ID,
		VariantKey:  variant.Key,
		Text:        variant.Text,
		ContextHint: variant.ContextHint,
		WindowEnd:   sel.WindowEnd,
	})
}

// ConvertRequest reports a conversion event for a subject.
type ConvertRequest struct {
	SubjectID    string `json:"subject_id"`
	Event        string `json:"event"`
	ResponseText string `json:"response_text,omitempty"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.SubjectID == "" || req.Event == "" {
		http.Error(w, "subject_id and event are required", http.StatusBadRequest)
		return
	}

	if err := s.observer.RecordConversion(r.Context(), req.SubjectID, req.Event, req.ResponseText); err != nil {
		s.logger.Error("failed to record conversion", "subject_id", req.SubjectID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVariants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	variants, err := s.store.ListVariants(r.Context())
	if err != nil {
		s.logger.Error("failed to list variants", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, stats.Analyze(variants))
}

type HealthResponse struct {
	Status        string `json:"status"`
	VariantCount  int    `json:"variant_count"`
	DBSizeBytes   int64  `json:"db_size_bytes"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	variants, err := s.store.ListVariants(r.Context())
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var dbSize int64
	row := s.store.DB().QueryRow("SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	_ = row.Scan(&dbSize)

	writeJSON(w, HealthResponse{
		Status:        "ok",
		VariantCount:  len(variants),
		DBSizeBytes:   dbSize,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
