// Package api exposes the HTTP control surface: loading a listing file,
// running batch checks, fetching single listings, and recording manual
// verdicts.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sellerforge/listing-checker/internal/batch"
	"github.com/sellerforge/listing-checker/internal/config"
	"github.com/sellerforge/listing-checker/internal/decision"
	"github.com/sellerforge/listing-checker/internal/fetch"
	"github.com/sellerforge/listing-checker/internal/fxrate"
	"github.com/sellerforge/listing-checker/internal/report"
	"github.com/sellerforge/listing-checker/internal/rows"
	"github.com/sellerforge/listing-checker/internal/sku"
)

// Run is one batch check, from start to completion.
type Run struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Country     string          `json:"country"`
	SampleSize  int             `json:"sample_size"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	Summary     *batch.Summary  `json:"summary,omitempty"`
	RemovalRows []int           `json:"removal_rows,omitempty"`
	Error       string          `json:"error,omitempty"`

	records []decision.Record
}

const (
	runStatusRunning   = "running"
	runStatusCompleted = "completed"
	runStatusFailed    = "failed"
	runStatusArchived  = "archived"
)

// snapshot copies the run's exported fields so they can be encoded outside
// the handlers lock while executeRun keeps mutating the original. Callers
// must hold the lock.
func (r *Run) snapshot() Run {
	s := *r
	s.records = nil
	s.RemovalRows = append([]int(nil), r.RemovalRows...)
	if r.Summary != nil {
		sum := *r.Summary
		s.Summary = &sum
	}
	return s
}

// Archive persists evaluation records and recalls them after a restart.
// Implemented by store.Store.
type Archive interface {
	InsertBatch(ctx context.Context, batchID string, records []decision.Record) error
	ListRecords(ctx context.Context, batchID string) ([]decision.Record, error)
	CountByDecision(ctx context.Context, batchID string) (map[string]int, error)
}

type Handlers struct {
	cfg        *config.Config
	worker     *fetch.Worker
	controller *batch.Controller
	fx         *fxrate.Holder
	archive    Archive
	logger     *slog.Logger

	mu          sync.Mutex
	listingPath string
	listing     []rows.ListingRow
	manual      []decision.Record
	runs        map[string]*Run
	batchLive   bool
}

// NewHandlers wires the control surface. archive may be nil when no database
// is configured.
func NewHandlers(cfg *config.Config, worker *fetch.Worker, controller *batch.Controller, fx *fxrate.Holder, archive Archive, logger *slog.Logger) *Handlers {
	return &Handlers{
		cfg:        cfg,
		worker:     worker,
		controller: controller,
		fx:         fx,
		archive:    archive,
		logger:     logger.With("component", "api"),
		runs:       make(map[string]*Run),
	}
}

// Routes registers all endpoints on r.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/listings", h.LoadListing)
		r.Post("/checks", h.StartCheck)
		r.Get("/checks", h.ListChecks)
		r.Get("/checks/{checkID}", h.GetCheck)
		r.Get("/checks/{checkID}/records", h.GetCheckRecords)
		r.Get("/checks/{checkID}/log", h.GetCheckLog)
		r.Post("/checks/{checkID}/export", h.ExportCheckLog)
		r.Post("/checks/{checkID}/apply", h.ApplyCheck)
		r.Post("/fetch", h.FetchOne)
		r.Post("/manual", h.ManualVerdict)
		r.Post("/headless", h.SetHeadless)
		r.Get("/fx", h.GetFX)
	})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// LoadListingRequest names the listing file to evaluate.
type LoadListingRequest struct {
	Path string `json:"path"`
}

type LoadListingResponse struct {
	Rows     int `json:"rows"`
	Eligible int `json:"eligible"`
}

func (h *Handlers) LoadListing(w http.ResponseWriter, r *http.Request) {
	var req LoadListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		h.respondError(w, http.StatusBadRequest, "path is required")
		return
	}

	loaded, err := rows.LoadCSV(req.Path)
	if err != nil {
		h.logger.Error("failed to load listing file", "path", req.Path, "error", err)
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	eligible := 0
	for _, row := range loaded {
		if row.HasValidASIN() {
			eligible++
		}
	}

	h.mu.Lock()
	h.listingPath = req.Path
	h.listing = loaded
	h.mu.Unlock()

	h.logger.Info("listing loaded", "path", req.Path, "rows", len(loaded), "eligible", eligible)
	h.respondJSON(w, http.StatusOK, LoadListingResponse{Rows: len(loaded), Eligible: eligible})
}

// StartCheckRequest starts a random-sample batch check.
type StartCheckRequest struct {
	Country    string `json:"country"`
	SampleSize int    `json:"sample_size"`
}

func (h *Handlers) StartCheck(w http.ResponseWriter, r *http.Request) {
	var req StartCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SampleSize <= 0 {
		req.SampleSize = 10
	}

	cc, err := h.countryConfig(req.Country)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.mu.Lock()
	if h.batchLive {
		h.mu.Unlock()
		h.respondError(w, http.StatusConflict, "a check is already running")
		return
	}
	if len(h.listing) == 0 {
		h.mu.Unlock()
		h.respondError(w, http.StatusBadRequest, "no listing file loaded")
		return
	}
	listing := h.listing
	run := &Run{
		ID:         uuid.New().String(),
		Status:     runStatusRunning,
		Country:    cc.Country,
		SampleSize: req.SampleSize,
		StartedAt:  time.Now(),
	}
	h.runs[run.ID] = run
	h.batchLive = true
	snap := run.snapshot()
	h.mu.Unlock()

	go h.executeRun(run, listing, cc, req.SampleSize)

	h.respondJSON(w, http.StatusAccepted, snap)
}

func (h *Handlers) executeRun(run *Run, listing []rows.ListingRow, cc decision.CountryConfig, sampleSize int) {
	res, err := h.controller.Run(context.Background(), listing, cc, sampleSize)

	h.mu.Lock()
	now := time.Now()
	run.FinishedAt = &now
	if err != nil {
		run.Status = runStatusFailed
		run.Error = err.Error()
	} else {
		run.Status = runStatusCompleted
	}
	if res != nil {
		run.records = res.Records
		run.RemovalRows = res.RemovalRows
		s := res.Summary
		run.Summary = &s
	}
	h.batchLive = false
	h.mu.Unlock()

	if err != nil {
		h.logger.Error("check failed", "check_id", run.ID, "error", err)
	}

	if h.archive != nil && res != nil && len(res.Records) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := h.archive.InsertBatch(ctx, run.ID, res.Records); err != nil {
			h.logger.Error("failed to archive records", "check_id", run.ID, "error", err)
		}
	}
}

func (h *Handlers) ListChecks(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	list := make([]Run, 0, len(h.runs))
	for _, run := range h.runs {
		list = append(list, run.snapshot())
	}
	h.mu.Unlock()

	h.respondJSON(w, http.StatusOK, list)
}

func (h *Handlers) GetCheck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "checkID")

	h.mu.Lock()
	run, ok := h.runs[id]
	var snap Run
	if ok {
		snap = run.snapshot()
	}
	h.mu.Unlock()
	if ok {
		h.respondJSON(w, http.StatusOK, snap)
		return
	}

	// Runs from before a restart are still summarizable from the archive.
	if h.archive != nil {
		counts, err := h.archive.CountByDecision(r.Context(), id)
		if err == nil && len(counts) > 0 {
			summary := &batch.Summary{
				Kept:    counts[string(decision.VerdictKeep)],
				Deleted: counts[string(decision.VerdictDelete)],
				Skipped: counts[string(decision.VerdictSkip)],
			}
			summary.Total = summary.Kept + summary.Deleted + summary.Skipped
			h.respondJSON(w, http.StatusOK, Run{ID: id, Status: runStatusArchived, Summary: summary})
			return
		}
	}
	h.respondError(w, http.StatusNotFound, "check not found")
}

// checkRecords returns the records of a run, falling back to the archive for
// runs that finished before a restart.
func (h *Handlers) checkRecords(ctx context.Context, id string) ([]decision.Record, bool) {
	h.mu.Lock()
	run, ok := h.runs[id]
	var records []decision.Record
	if ok {
		records = append([]decision.Record(nil), run.records...)
	}
	h.mu.Unlock()
	if ok {
		return records, true
	}

	if h.archive != nil {
		recs, err := h.archive.ListRecords(ctx, id)
		if err != nil {
			h.logger.Error("failed to read archived records", "check_id", id, "error", err)
			return nil, false
		}
		if len(recs) > 0 {
			return recs, true
		}
	}
	return nil, false
}

func (h *Handlers) GetCheckRecords(w http.ResponseWriter, r *http.Request) {
	records, ok := h.checkRecords(r.Context(), chi.URLParam(r, "checkID"))
	if !ok {
		h.respondError(w, http.StatusNotFound, "check not found")
		return
	}
	h.respondJSON(w, http.StatusOK, records)
}

func (h *Handlers) GetCheckLog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "checkID")
	records, ok := h.checkRecords(r.Context(), id)
	if !ok {
		h.respondError(w, http.StatusNotFound, "check not found")
		return
	}

	h.mu.Lock()
	records = append(records, h.manual...)
	h.mu.Unlock()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="check_log.csv"`)
	if err := report.Write(w, records); err != nil {
		h.logger.Error("failed to write check log", "check_id", id, "error", err)
	}
}

// ExportCheckLogRequest saves the check log as a CSV file on the server host.
type ExportCheckLogRequest struct {
	OutputPath string `json:"output_path"`
}

func (h *Handlers) ExportCheckLog(w http.ResponseWriter, r *http.Request) {
	var req ExportCheckLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OutputPath == "" {
		h.respondError(w, http.StatusBadRequest, "output_path is required")
		return
	}

	id := chi.URLParam(r, "checkID")
	records, ok := h.checkRecords(r.Context(), id)
	if !ok {
		h.respondError(w, http.StatusNotFound, "check not found")
		return
	}

	h.mu.Lock()
	records = append(records, h.manual...)
	h.mu.Unlock()

	if err := report.WriteFile(req.OutputPath, records); err != nil {
		h.logger.Error("failed to export check log", "check_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"output_path": req.OutputPath})
}

// ApplyCheckRequest writes the listing file minus the DELETE rows.
type ApplyCheckRequest struct {
	OutputPath string `json:"output_path"`
}

type ApplyCheckResponse struct {
	Removed    int    `json:"removed"`
	OutputPath string `json:"output_path"`
}

func (h *Handlers) ApplyCheck(w http.ResponseWriter, r *http.Request) {
	var req ApplyCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OutputPath == "" {
		h.respondError(w, http.StatusBadRequest, "output_path is required")
		return
	}

	run, ok := h.lookupRun(chi.URLParam(r, "checkID"))
	if !ok {
		h.respondError(w, http.StatusNotFound, "check not found")
		return
	}

	h.mu.Lock()
	status := run.Status
	removals := append([]int(nil), run.RemovalRows...)
	src := h.listingPath
	h.mu.Unlock()

	if status != runStatusCompleted {
		h.respondError(w, http.StatusConflict, "check is not completed")
		return
	}
	if src == "" {
		h.respondError(w, http.StatusBadRequest, "no listing file loaded")
		return
	}

	if err := rows.WriteWithRemovals(src, req.OutputPath, removals); err != nil {
		h.logger.Error("failed to write cleaned listing", "error", err)
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, ApplyCheckResponse{Removed: len(removals), OutputPath: req.OutputPath})
}

// FetchOneRequest retrieves signals for a single product code.
type FetchOneRequest struct {
	ASIN string `json:"asin"`
}

type FetchOneResponse struct {
	ASIN            string `json:"asin"`
	OK              bool   `json:"ok"`
	ItemPriceYen    *int   `json:"item_price_yen"`
	ShippingYen     *int   `json:"shipping_yen"`
	DeliveryDays    *int   `json:"delivery_days"`
	ShippedByAmazon bool   `json:"shipped_by_amazon"`
	IsUsed          *bool  `json:"is_used"`
	NoFeaturedOffer bool   `json:"no_featured_offer"`
	Trace           string `json:"trace"`
}

func (h *Handlers) FetchOne(w http.ResponseWriter, r *http.Request) {
	var req FetchOneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ASIN = strings.TrimSpace(req.ASIN)
	if !(rows.ListingRow{ASIN: req.ASIN}).HasValidASIN() {
		h.respondError(w, http.StatusBadRequest, "asin must be 10 uppercase letters or digits")
		return
	}

	token := h.worker.NextToken()
	h.worker.Fetch(fetch.Task{ASIN: req.ASIN, Token: token})

	res, err := h.worker.Await(r.Context(), token, h.cfg.Fetch.HardTimeout)
	if err != nil {
		h.respondError(w, http.StatusGatewayTimeout, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, FetchOneResponse{
		ASIN:            res.ASIN,
		OK:              res.OK,
		ItemPriceYen:    res.Signals.ItemPriceYen,
		ShippingYen:     res.Signals.ShippingYen,
		DeliveryDays:    res.Signals.DeliveryDays,
		ShippedByAmazon: res.Signals.ShippedByAmazon,
		IsUsed:          res.Signals.IsUsed,
		NoFeaturedOffer: res.Signals.NoFeaturedOffer,
		Trace:           res.Trace,
	})
}

// ManualVerdictRequest records a user-entered verdict for one listing row.
type ManualVerdictRequest struct {
	RowPosition  int      `json:"row_position"`
	Country      string   `json:"country"`
	Decision     string   `json:"decision"`
	TotalYen     *float64 `json:"total_yen,omitempty"`
	DeliveryDays *int     `json:"delivery_days,omitempty"`
}

func (h *Handlers) ManualVerdict(w http.ResponseWriter, r *http.Request) {
	var req ManualVerdictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	verdict := decision.Verdict(strings.ToUpper(strings.TrimSpace(req.Decision)))
	if verdict != decision.VerdictKeep && verdict != decision.VerdictDelete {
		h.respondError(w, http.StatusBadRequest, "decision must be KEEP or DELETE")
		return
	}

	cc, err := h.countryConfig(req.Country)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.mu.Lock()
	var row *rows.ListingRow
	for i := range h.listing {
		if h.listing[i].Position == req.RowPosition {
			row = &h.listing[i]
			break
		}
	}
	h.mu.Unlock()
	if row == nil {
		h.respondError(w, http.StatusNotFound, "row not found in loaded listing")
		return
	}

	rec := decision.ManualRecord(decision.Input{
		Row: decision.RowData{
			Position:            row.Position,
			SKU:                 row.SKU,
			ASIN:                row.ASIN,
			ListingPriceForeign: row.PriceForeign,
		},
		Identifier:           sku.Decode(row.SKU, cc.Country),
		TotalYenOverride:     req.TotalYen,
		DeliveryDaysOverride: req.DeliveryDays,
		Config:               cc,
		Now:                  time.Now(),
	}, verdict)

	h.mu.Lock()
	h.manual = append(h.manual, rec)
	h.mu.Unlock()

	h.logger.Info("manual verdict recorded", "row", row.Position, "asin", row.ASIN, "decision", string(verdict))
	h.respondJSON(w, http.StatusCreated, rec)
}

// SetHeadlessRequest switches the browser mode for subsequent fetches.
type SetHeadlessRequest struct {
	Headless bool `json:"headless"`
}

func (h *Handlers) SetHeadless(w http.ResponseWriter, r *http.Request) {
	var req SetHeadlessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.worker.SetHeadless(req.Headless)
	h.respondJSON(w, http.StatusOK, map[string]bool{"headless": req.Headless})
}

func (h *Handlers) GetFX(w http.ResponseWriter, r *http.Request) {
	rates := h.fx.Get()
	if rates == nil {
		h.respondError(w, http.StatusServiceUnavailable, "exchange rates not available yet")
		return
	}
	h.respondJSON(w, http.StatusOK, rates)
}

func (h *Handlers) countryConfig(country string) (decision.CountryConfig, error) {
	cc, err := h.cfg.CountryConfig(country, 0)
	if err != nil {
		return decision.CountryConfig{}, err
	}
	rates := h.fx.Get()
	if rates == nil {
		return decision.CountryConfig{}, errors.New("exchange rates not available yet")
	}
	fx, ok := rates.ForCountry(cc.Country)
	if !ok || fx <= 0 {
		return decision.CountryConfig{}, fmt.Errorf("no exchange rate for country %s", cc.Country)
	}
	cc.FXJPYPerUnit = fx
	return cc, nil
}

func (h *Handlers) lookupRun(id string) (*Run, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	run, ok := h.runs[id]
	return run, ok
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
