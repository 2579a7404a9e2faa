package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/MJE43/blackjack-policy/internal/blackjack"
	"github.com/MJE43/blackjack-policy/internal/dealer"
	"github.com/MJE43/blackjack-policy/internal/report"
	"github.com/MJE43/blackjack-policy/internal/solver"
	"github.com/MJE43/blackjack-policy/internal/store"
)

const maxRunsLimit = 500

func dealerRow(t dealer.OutcomeTable, up int) DealerRow {
	row := DealerRow{
		UpCard:   up,
		Label:    blackjack.Card(up).String(),
		Outcomes: make(map[string]decimal.Decimal, len(dealer.AllOutcomes)),
	}
	for _, o := range dealer.AllOutcomes {
		row.Outcomes[o.String()] = decimal.NewFromFloat(t.Probability(up, o))
	}
	return row
}

func policyRows(rows []solver.Row) []PolicyRow {
	out := make([]PolicyRow, 0, len(rows))
	for _, r := range rows {
		pr := PolicyRow{Label: r.Label, Total: r.Total, Soft: r.Soft, Cells: make([]PolicyCell, 0, len(r.Cells))}
		for _, c := range r.Cells {
			pr.Cells = append(pr.Cells, PolicyCell{UpCard: c.UpCard, Action: c.Action, Cost: decimal.NewFromFloat(c.Cost)})
		}
		out = append(out, pr)
	}
	return out
}

// GET /api/v1/dealer
func (s *Server) handleDealer(w http.ResponseWriter, r *http.Request) {
	t, run, err := s.store.LoadDealerTable(r.Context())
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}

	resp := DealerResponse{Run: run, EngineVersion: EngineVersion}
	for _, up := range blackjack.UpCards() {
		resp.Rows = append(resp.Rows, dealerRow(t, up))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// GET /api/v1/dealer/{upCard}
func (s *Server) handleDealerRow(w http.ResponseWriter, r *http.Request) {
	up, err := blackjack.ParseCard(chi.URLParam(r, "upCard"))
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "upCard", err.Error())
		return
	}

	t, run, err := s.store.LoadDealerTable(r.Context())
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, DealerRowResponse{Run: run, Row: dealerRow(t, int(up)), EngineVersion: EngineVersion})
}

// GET /api/v1/policy
func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	p, run, err := s.store.LoadPolicy(r.Context())
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, PolicyResponse{
		Run:           run,
		Timestep:      p.Timestep,
		Horizon:       p.Horizon,
		Hard:          policyRows(p.Hard),
		Soft:          policyRows(p.Soft),
		EngineVersion: EngineVersion,
	})
}

// GET /api/v1/policy.csv
func (s *Server) handlePolicyCSV(w http.ResponseWriter, r *http.Request) {
	p, run, err := s.store.LoadPolicy(r.Context())
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := report.PolicyCSV(&buf, p); err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="policy-%s.csv"`, run.ID))
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// GET /api/v1/policy/lookup?total=&soft=&upcard=
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	total, err := strconv.Atoi(q.Get("total"))
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "total", "total must be an integer")
		return
	}
	soft := false
	if v := q.Get("soft"); v != "" {
		if soft, err = strconv.ParseBool(v); err != nil {
			s.errorHandler.HandleValidationError(w, r, "soft", "soft must be true or false")
			return
		}
	}
	up, err := blackjack.ParseCard(q.Get("upcard"))
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "upcard", err.Error())
		return
	}

	p, run, err := s.store.LoadPolicy(r.Context())
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	cell, ok := p.Lookup(total, soft, int(up))
	if !ok {
		s.errorHandler.HandleNotFound(w, r, fmt.Sprintf("no policy cell for %s against %s", solver.RowLabel(total, soft), up))
		return
	}
	s.writeJSON(w, http.StatusOK, LookupResponse{
		Total:         total,
		Soft:          soft,
		UpCard:        cell.UpCard,
		Action:        cell.Action,
		Cost:          decimal.NewFromFloat(cell.Cost),
		RunID:         run.ID,
		EngineVersion: EngineVersion,
	})
}

// GET /api/v1/runs?kind=&limit=
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, err := store.ParseKind(q.Get("kind"))
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "kind", err.Error())
		return
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxRunsLimit {
			s.errorHandler.HandleValidationError(w, r, "limit", fmt.Sprintf("limit must be in 1..%d", maxRunsLimit))
			return
		}
	}

	runs, err := s.store.ListRuns(r.Context(), kind, limit)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, RunsResponse{Runs: runs, EngineVersion: EngineVersion})
}
