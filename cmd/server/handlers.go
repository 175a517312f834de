package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/liamcoop/labparser/filter"
	"github.com/liamcoop/labparser/internal/logger"
	"github.com/liamcoop/labparser/labparser"
	"github.com/liamcoop/labparser/multilab"
	"github.com/liamcoop/labparser/rules"
)

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:     "healthy",
		Storage:    "memory",
		LabsLoaded: len(s.labs.ListLabs()),
		Time:       time.Now().UTC(),
	}

	if s.db != nil {
		resp.Storage = "postgres"
		if err := s.db.PingContext(r.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, logger.Snapshot())
}

func (s *Server) handleListLabs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, LabsListResponse{Labs: s.labs.ListLabs()})
}

func (s *Server) handleCreateLab(w http.ResponseWriter, r *http.Request) {
	var req CreateLabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if err := multilab.ValidateLabName(req.Name); err != nil {
		respondError(w, http.StatusBadRequest, "validation failed", err)
		return
	}

	lab, err := s.labs.CreateLab(req.Name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create lab", err)
		return
	}

	respondJSON(w, http.StatusCreated, lab)
}

func (s *Server) handleDeleteLab(w http.ResponseWriter, r *http.Request) {
	if err := s.labs.DeleteLab(chi.URLParam(r, "labId")); err != nil {
		respondStoreError(w, "failed to delete lab", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) engine(w http.ResponseWriter, r *http.Request) (*rules.Engine, bool) {
	engine, err := s.labs.GetEngine(chi.URLParam(r, "labId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "lab not found", err)
		return nil, false
	}
	return engine, true
}

func (s *Server) handleReloadLab(w http.ResponseWriter, r *http.Request) {
	labID := chi.URLParam(r, "labId")
	if err := s.labs.ReloadLab(labID); err != nil {
		respondStoreError(w, "failed to reload lab", err)
		return
	}

	engine, ok := s.engine(w, r)
	if !ok {
		return
	}

	dropped := engine.Dropped()
	resp := ReloadResponse{
		Rules:   engine.RuleSet().Len(),
		Dropped: make([]DroppedIndicatorResponse, 0, len(dropped)),
	}
	for _, d := range dropped {
		resp.Dropped = append(resp.Dropped, DroppedIndicatorResponse{
			IndicatorID:  d.Indicator.ID,
			DefinitionID: d.Indicator.DefinitionID,
			Error:        d.Err.Error(),
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(w, r)
	if !ok {
		return
	}

	defs, err := engine.SearchDefinitions(strings.TrimSpace(r.URL.Query().Get("q")))
	if err != nil {
		respondStoreError(w, "failed to list definitions", err)
		return
	}
	if defs == nil {
		defs = []*rules.TestDefinition{}
	}

	respondJSON(w, http.StatusOK, DefinitionsListResponse{Definitions: defs, Count: len(defs)})
}

func (s *Server) handleCreateDefinition(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(w, r)
	if !ok {
		return
	}

	var req DefinitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	def := req.toDefinition(0)
	if err := engine.AddDefinition(def); err != nil {
		respondStoreError(w, "failed to add definition", err)
		return
	}

	respondJSON(w, http.StatusCreated, def)
}

func (s *Server) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(w, r)
	if !ok {
		return
	}
	id, err := definitionID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid definition id", err)
		return
	}

	def, err := engine.GetDefinition(id)
	if err != nil {
		respondStoreError(w, "definition not found", err)
		return
	}
	respondJSON(w, http.StatusOK, def)
}

func (s *Server) handleUpdateDefinition(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(w, r)
	if !ok {
		return
	}
	id, err := definitionID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid definition id", err)
		return
	}

	var req DefinitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	def := req.toDefinition(id)
	if err := engine.UpdateDefinition(def); err != nil {
		respondStoreError(w, "failed to update definition", err)
		return
	}
	respondJSON(w, http.StatusOK, def)
}

func (s *Server) handleDeleteDefinition(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(w, r)
	if !ok {
		return
	}
	id, err := definitionID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid definition id", err)
		return
	}

	if err := engine.DeleteDefinition(id); err != nil {
		respondStoreError(w, "definition not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleParse parses every record with the lab's rules, then applies the
// optional filter.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(w, r)
	if !ok {
		return
	}

	var req ParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	var f *filter.Filter
	if strings.TrimSpace(req.Filter) != "" {
		var err error
		if f, err = filter.Compile(req.Filter); err != nil {
			respondError(w, http.StatusBadRequest, "invalid filter", err)
			return
		}
	}

	records := make([]*labparser.Record, 0, len(req.Records))
	for _, rec := range req.Records {
		if rec != nil {
			records = append(records, rec)
		}
	}

	start := time.Now()
	columns, err := engine.ParseAllWithColumns(r.Context(), records)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "parsing aborted", err)
		return
	}
	parseTime := time.Since(start)

	out := records
	if f != nil {
		out = f.Apply(records)
	}

	respondJSON(w, http.StatusOK, ParseResponse{
		Records:     out,
		Total:       len(records),
		Returned:    len(out),
		TestColumns: columns,
		ParseTime:   parseTime.String(),
	})
}
