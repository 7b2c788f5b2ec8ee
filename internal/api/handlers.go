package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hugo-lorenzo-mato/memwall/internal/config"
	"github.com/hugo-lorenzo-mato/memwall/internal/core"
	"github.com/hugo-lorenzo-mato/memwall/internal/service"
	"github.com/hugo-lorenzo-mato/memwall/internal/telemetry"
)

const maxControlBytes = 64 << 10

type systemInfoResponse struct {
	telemetry.HostInfo
	MemoryGB    float64 `json:"memory_gb"`
	Model       string  `json:"model"`
	VisionModel string  `json:"vision_model"`
	Backend     string  `json:"backend"`
}

type tierSummary struct {
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	Documents      int     `json:"documents"`
	MemoryTargetGB float64 `json:"memory_target_gb"`
}

type scenarioSummary struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Tiers       []tierSummary `json:"tiers"`
}

type startResponse struct {
	WSURL          string `json:"ws_url,omitempty"`
	RunID          string `json:"run_id,omitempty"`
	EventsURL      string `json:"events_url,omitempty"`
	Scenario       string `json:"scenario"`
	Tier           string `json:"tier"`
	OffloadEnabled bool   `json:"offload_enabled"`
	Documents      int    `json:"documents"`
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	cfg := s.snapshot().Config
	info := s.host.Collect(r.Context())
	backend := "scripted"
	if cfg.Ollama.Enabled {
		backend = "ollama"
	}
	s.respondJSON(w, http.StatusOK, systemInfoResponse{
		HostInfo:    info,
		MemoryGB:    info.MemTotalGB,
		Model:       cfg.Models.Text,
		VisionModel: cfg.Models.Vision,
		Backend:     backend,
	})
}

func summarize(def config.ScenarioDef) scenarioSummary {
	out := scenarioSummary{ID: def.ID, Name: def.Name, Description: def.Description, Tiers: []tierSummary{}}
	for _, t := range def.Tiers {
		out.Tiers = append(out.Tiers, tierSummary{
			Name:           t.Name,
			Description:    t.Description,
			Documents:      t.TotalDocuments(),
			MemoryTargetGB: t.MemoryTargetGB,
		})
	}
	return out
}

func (s *Server) handleListScenarios(w http.ResponseWriter, _ *http.Request) {
	defs := s.snapshot().Catalog.List()
	out := make([]scenarioSummary, 0, len(defs))
	for _, d := range defs {
		out = append(out, summarize(d))
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	def, err := s.snapshot().Catalog.Lookup(chi.URLParam(r, "scenarioID"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, def)
}

// handleStartScenario validates a run request. By default it returns the
// websocket URL and the control message the client should send there.
// With ?detach=true the run starts immediately and is followed over SSE.
func (s *Server) handleStartScenario(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxControlBytes))
	if err != nil {
		s.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	req, err := service.ParseControl(body)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	if r.URL.Query().Get("detach") == "true" {
		plan, err := s.launcher.Start(req)
		if err != nil {
			s.respondDomainError(w, err)
			return
		}
		resp := startResponseFor(plan)
		resp.RunID = plan.ID
		resp.EventsURL = "/api/v1/runs/" + plan.ID + "/events"
		s.respondJSON(w, http.StatusAccepted, resp)
		return
	}

	plan, err := s.launcher.Plan(req)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	resp := startResponseFor(plan)
	resp.WSURL = websocketURL(r)
	s.respondJSON(w, http.StatusOK, resp)
}

func startResponseFor(plan *service.Plan) startResponse {
	return startResponse{
		Scenario:       plan.Scenario.Scenario,
		Tier:           plan.Scenario.Tier,
		OffloadEnabled: plan.Scenario.OffloadEnabled,
		Documents:      plan.Scenario.TotalDocuments,
	}
}

func websocketURL(r *http.Request) string {
	scheme := "ws"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "wss"
	}
	return scheme + "://" + r.Host + "/ws/analysis"
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.launcher.Sessions().ListRuns(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleActiveRuns(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.launcher.Active())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	for _, run := range s.launcher.Active() {
		if run.ID == id {
			s.respondJSON(w, http.StatusOK, map[string]any{"active": true, "run": run})
			return
		}
	}
	rec, err := s.launcher.Sessions().GetRun(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	if rec == nil {
		s.respondDomainError(w, core.ErrNotFound("run", id))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"active": false, "run": rec})
}

func (s *Server) handleStopRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	if !s.launcher.Stop(id) {
		s.respondDomainError(w, core.ErrNotFound("run", id))
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "stopping", "run_id": id})
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	totals, err := s.launcher.Sessions().Totals(r.Context())
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, totals)
}
