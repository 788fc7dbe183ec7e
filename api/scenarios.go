/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with a roster
	and a February 2026 ledger so the waterfall can be driven by hand via
	POST /api/collection/run-day.

AVAILABLE SCENARIOS:

	rent-900:       One tenant, $900 rent by check, nothing paid
	february-2026:  Ten tenants, mixed payment methods and states
	escalated:      rent-900 after days 1-10 ran; owner approval pending

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Save tenants
 3. Generate the ledger for 2/2026 (autopay tenants come out paid)
 4. Record manual payments and optionally run collection days

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "february-2026"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Collection endpoints
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/rent-engine/collection"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "rent-900",
		Name:        "Single Tenant",
		Description: "One tenant at $900 rent paying by check, February 2026 unpaid",
	},
	{
		ID:          "february-2026",
		Name:        "February 2026 Roster",
		Description: "Ten tenants: autopay, paid, partial, unpaid, one on notice, one moved out",
	},
	{
		ID:          "escalated",
		Name:        "Escalated",
		Description: "Single tenant after days 1-10 ran; pay-or-quit approval pending",
	},
}

var scenarioPeriod = collection.Period{Month: 2, Year: 2026}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	load, ok := map[string]func(context.Context) error{
		"rent-900":      h.loadSingleTenantScenario,
		"february-2026": h.loadFebruaryScenario,
		"escalated":     h.loadEscalatedScenario,
	}[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		h.Log.Error().Err(err).Str("scenario", req.ScenarioID).Msg("scenario load failed")
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID
	h.Log.Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type seedTenant struct {
	id, first, last, phone, address, unit string
	rent                                  int64
	method                                string
	status                                collection.TenantStatus
	// paid is the manual payment recorded after generation, if any.
	paid int64
}

func (h *Handler) seed(ctx context.Context, roster []seedTenant) error {
	now := h.Clock.Now()
	for _, s := range roster {
		status := s.status
		if status == "" {
			status = collection.TenantCurrent
		}
		t := collection.Tenant{
			ID:            collection.TenantID(s.id),
			FirstName:     s.first,
			LastName:      s.last,
			Phone:         s.phone,
			Address:       s.address,
			Unit:          s.unit,
			RentAmount:    decimal.NewFromInt(s.rent),
			PaymentMethod: s.method,
			Status:        status,
			CreatedAt:     now,
		}
		if err := h.Store.SaveTenant(ctx, t); err != nil {
			return fmt.Errorf("save tenant %s: %w", s.id, err)
		}
	}

	if _, err := h.Generator.GenerateMonthlyLedger(ctx, scenarioPeriod.Month, scenarioPeriod.Year); err != nil {
		return err
	}

	for _, s := range roster {
		if s.paid == 0 {
			continue
		}
		e, err := h.Store.FindLedgerEntry(ctx, collection.TenantID(s.id), scenarioPeriod)
		if err != nil {
			return fmt.Errorf("find ledger entry for %s: %w", s.id, err)
		}
		if _, err := h.Recorder.RecordPayment(ctx, e.ID, decimal.NewFromInt(s.paid), s.method, "seed"); err != nil {
			return err
		}
	}
	return nil
}

var sarahMitchell = seedTenant{
	id: "t-mitchell", first: "Sarah", last: "Mitchell", phone: "+18572257226",
	address: "321 Pine St", unit: "1", rent: 900, method: "check",
}

func (h *Handler) loadSingleTenantScenario(ctx context.Context) error {
	return h.seed(ctx, []seedTenant{sarahMitchell})
}

func (h *Handler) loadFebruaryScenario(ctx context.Context) error {
	return h.seed(ctx, []seedTenant{
		sarahMitchell,
		{id: "t-bouchard", first: "James", last: "Bouchard", phone: "207-364-1045",
			address: "154 Essex Ave", unit: "1B", rent: 950, method: "online"},
		{id: "t-arsenault", first: "Linda", last: "Arsenault", phone: "207-364-1078",
			address: "154 Essex Ave", unit: "2A", rent: 775, method: "cash", paid: 775},
		{id: "t-theriault", first: "Robert", last: "Theriault", phone: "207-364-1103",
			address: "154 Essex Ave", unit: "2B", rent: 975, method: "money_order", paid: 500},
		{id: "t-cyr", first: "Marie", last: "Cyr", phone: "207-364-1156",
			address: "16 Osgood Ave", unit: "2", rent: 950, method: "direct_deposit"},
		{id: "t-pelletier", first: "David", last: "Pelletier", phone: "207-364-1189",
			address: "16 Osgood Ave", unit: "3", rent: 950, method: "check", paid: 950},
		{id: "t-ouellette", first: "Karen", last: "Ouellette", phone: "207-364-1222",
			address: "236 Knox St", unit: "A", rent: 1000, method: "online"},
		{id: "t-gagnon", first: "Michael", last: "Gagnon", phone: "207-364-1255",
			address: "236 Knox St", unit: "B", rent: 1000, method: "cash"},
		{id: "t-dubois", first: "Susan", last: "Dubois", phone: "207-364-1288",
			address: "236 Knox St", unit: "C", rent: 1300, method: "money_order", status: collection.TenantNotice},
		{id: "t-roy", first: "Thomas", last: "Roy", phone: "207-364-1321",
			address: "313 Waldo St", unit: "1", rent: 925, method: "check", status: collection.TenantPast},
	})
}

func (h *Handler) loadEscalatedScenario(ctx context.Context) error {
	if err := h.seed(ctx, []seedTenant{sarahMitchell}); err != nil {
		return err
	}
	_, err := h.Engine.RunCollectionDay(ctx, h.Policy.EscalationDay, scenarioPeriod.Month, scenarioPeriod.Year)
	return err
}
