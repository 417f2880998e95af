package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swar00pduthks/Aaf/pkg/aaf"
	"github.com/swar00pduthks/Aaf/pkg/aaf/statestore"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Uptime    string `json:"uptime"`
	Workflows int    `json:"workflows"`
}

// WorkflowInfo describes a registered workflow.
type WorkflowInfo struct {
	Name          string              `json:"name"`
	Entry         string              `json:"entry"`
	Terminal      string              `json:"terminal"`
	MaxIterations int                 `json:"max_iterations"`
	Nodes         []string            `json:"nodes,omitempty"`
	Routes        map[string][]string `json:"routes,omitempty"`
	Dynamic       []string            `json:"dynamic,omitempty"`
}

// RunRequest is the body of POST /workflows/{name}/runs. Every field is
// optional.
type RunRequest struct {
	State         map[string]any `json:"state"`
	RunID         string         `json:"run_id"`
	MaxIterations int            `json:"max_iterations"`
	// Timeout is a Go duration such as "30s".
	Timeout string `json:"timeout"`
}

// ResumeRequest is the body of POST /workflows/{name}/runs/{id}/resume.
type ResumeRequest struct {
	MaxIterations int    `json:"max_iterations"`
	Timeout       string `json:"timeout"`
}

// RunResponse reports a halted run.
type RunResponse struct {
	RunID      string    `json:"run_id"`
	Workflow   string    `json:"workflow,omitempty"`
	HaltReason string    `json:"halt_reason"`
	Visited    []string  `json:"visited_nodes"`
	FinalNode  string    `json:"final_node"`
	Error      string    `json:"error,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	FailedNode string    `json:"failed_node,omitempty"`
	State      aaf.State `json:"state"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	UserQuery string `json:"user_query"`
}

// ChatResponse is the reply of POST /chat.
type ChatResponse struct {
	RunID     string   `json:"run_id"`
	Response  any      `json:"response,omitempty"`
	Visited   []string `json:"visited_nodes"`
	FinalNode string   `json:"final_node"`
	Error     string   `json:"error,omitempty"`
}

func newRunResponse(runID, workflow string, final aaf.State) RunResponse {
	resp := RunResponse{
		RunID:      runID,
		Workflow:   workflow,
		HaltReason: string(final.Halt()),
		Visited:    final.Visited(),
		FinalNode:  final.FinalNode(),
		State:      final,
	}
	if resp.Visited == nil {
		resp.Visited = []string{}
	}
	if f := final.Failure(); f != nil {
		resp.Error = f.Message
		resp.ErrorKind = string(f.Kind)
		resp.FailedNode = f.Node
	}
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   s.opts.Version,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Workflows: s.workflows.Len(),
	})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, _ *http.Request) {
	infos := make([]WorkflowInfo, 0, s.workflows.Len())
	s.workflows.Range(func(_ string, cg *aaf.CompiledGraph) bool {
		infos = append(infos, WorkflowInfo{
			Name:          cg.Name(),
			Entry:         cg.EntryPoint(),
			Terminal:      cg.Terminal(),
			MaxIterations: cg.MaxIterations(),
		})
		return true
	})
	writeSuccess(w, http.StatusOK, infos)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	cg, ok := s.workflow(name)
	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, "unknown workflow: "+name, s.logger)
		return
	}
	info := WorkflowInfo{
		Name:          cg.Name(),
		Entry:         cg.EntryPoint(),
		Terminal:      cg.Terminal(),
		MaxIterations: cg.MaxIterations(),
		Nodes:         cg.NodeIDs(),
		Routes:        make(map[string][]string),
	}
	for _, id := range info.Nodes {
		if _, routed := cg.Route(id); !routed {
			continue
		}
		if cg.IsDynamic(id) {
			info.Dynamic = append(info.Dynamic, id)
			continue
		}
		info.Routes[id] = cg.Successors(id)
	}
	writeSuccess(w, http.StatusOK, info)
}

func parseLimits(maxIterations int, timeout string) (time.Duration, error) {
	if maxIterations < 0 || maxIterations > aaf.MaxIterationsLimit {
		return 0, fmt.Errorf("max_iterations must be within [1, %d]", aaf.MaxIterationsLimit)
	}
	if timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout: %w", err)
	}
	if d < 0 {
		return 0, errors.New("timeout must not be negative")
	}
	return d, nil
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	cg, ok := s.workflow(name)
	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, "unknown workflow: "+name, s.logger)
		return
	}

	var req RunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), s.logger)
		return
	}
	timeout, err := parseLimits(req.MaxIterations, req.Timeout)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), s.logger)
		return
	}

	runID := strings.TrimSpace(req.RunID)
	if runID == "" {
		runID = uuid.NewString()
	} else {
		if err := statestore.ValidateRunID(runID); err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), s.logger)
			return
		}
		exists, err := s.store.HasWorkflowState(r.Context(), runID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, CodeInternal, "checking run id: "+err.Error(), s.logger)
			return
		}
		if exists {
			writeError(w, http.StatusConflict, CodeConflict, "run already exists: "+runID, s.logger)
			return
		}
	}

	final := s.execute(r.Context(), cg, runID, func(ctx context.Context, opts []aaf.RunOption) aaf.State {
		return cg.Execute(ctx, aaf.NewState(req.State), opts...)
	}, req.MaxIterations, timeout)
	s.persist(r.Context(), runID, final)
	writeSuccess(w, http.StatusOK, newRunResponse(runID, name, final))
}

// execute runs fn with the server's run options and records the outcome.
func (s *Server) execute(ctx context.Context, cg *aaf.CompiledGraph, runID string,
	fn func(context.Context, []aaf.RunOption) aaf.State, maxIterations int, timeout time.Duration,
) aaf.State {
	s.metrics.runsInFlight.Inc()
	defer s.metrics.runsInFlight.Dec()

	start := time.Now()
	final := fn(ctx, s.runOptions(runID, maxIterations, timeout))
	if final.Halt() == "" {
		return final
	}
	s.metrics.RecordRun(cg.Name(), final, time.Since(start))

	fields := []zap.Field{
		zap.String("workflow", cg.Name()),
		zap.String("run_id", runID),
		zap.String("halt_reason", string(final.Halt())),
		zap.Strings("visited", final.Visited()),
	}
	if f := final.Failure(); f != nil {
		s.logger.Warn("run failed", append(fields,
			zap.String("error_kind", string(f.Kind)),
			zap.String("failed_node", f.Node),
			zap.String("error", f.Message))...)
	} else {
		s.logger.Info("run halted", fields...)
	}
	return final
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	runID, ok := s.pathRunID(w, r)
	if !ok {
		return
	}
	cg, ok := s.workflow(name)
	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, "unknown workflow: "+name, s.logger)
		return
	}
	var req ResumeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), s.logger)
		return
	}
	timeout, err := parseLimits(req.MaxIterations, req.Timeout)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), s.logger)
		return
	}

	var resumeErr error
	final := s.execute(r.Context(), cg, runID, func(ctx context.Context, opts []aaf.RunOption) aaf.State {
		st, err := cg.Resume(ctx, s.store, runID, opts...)
		resumeErr = err
		return st
	}, req.MaxIterations, timeout)

	// A state without a halt reason means the run never restarted.
	if resumeErr != nil && final.Halt() == "" {
		switch {
		case errors.Is(resumeErr, aaf.ErrNoCheckpoints):
			writeError(w, http.StatusNotFound, CodeNotFound, resumeErr.Error(), s.logger)
		case errors.Is(resumeErr, aaf.ErrInvalidResumeNode),
			errors.Is(resumeErr, aaf.ErrCheckpointVersionMismatch),
			errors.Is(resumeErr, aaf.ErrDeserializeState):
			writeError(w, http.StatusConflict, CodeConflict, resumeErr.Error(), s.logger)
		default:
			writeError(w, http.StatusInternalServerError, CodeInternal, resumeErr.Error(), s.logger)
		}
		return
	}
	s.persist(r.Context(), runID, final)
	writeSuccess(w, http.StatusOK, newRunResponse(runID, name, final))
}

// pathRunID returns the {id} path value, writing a 400 when it cannot
// scope stored keys.
func (s *Server) pathRunID(w http.ResponseWriter, r *http.Request) (string, bool) {
	runID := r.PathValue("id")
	if err := statestore.ValidateRunID(runID); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), s.logger)
		return "", false
	}
	return runID, true
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.pathRunID(w, r)
	if !ok {
		return
	}
	var final aaf.State
	err := s.store.LoadWorkflowState(r.Context(), runID, &final)
	if errors.Is(err, statestore.ErrNotFound) {
		writeError(w, http.StatusNotFound, CodeNotFound, "unknown run: "+runID, s.logger)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error(), s.logger)
		return
	}
	writeSuccess(w, http.StatusOK, newRunResponse(runID, "", final))
}

func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.pathRunID(w, r)
	if !ok {
		return
	}
	cps, err := s.store.ListCheckpoints(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error(), s.logger)
		return
	}
	if len(cps) == 0 {
		writeError(w, http.StatusNotFound, CodeNotFound, "no checkpoints for run: "+runID, s.logger)
		return
	}
	writeSuccess(w, http.StatusOK, cps)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.pathRunID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteRun(r.Context(), runID); err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error(), s.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), s.logger)
		return
	}

	runID := uuid.NewString()
	var inputErr error
	final := s.execute(r.Context(), s.opts.Chat.Graph(), runID, func(ctx context.Context, opts []aaf.RunOption) aaf.State {
		st, err := s.opts.Chat.Run(ctx, req.UserQuery, opts...)
		if err != nil && st.Halt() == "" {
			inputErr = err
		}
		return st
	}, 0, 0)
	if inputErr != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, inputErr.Error(), s.logger)
		return
	}
	s.persist(r.Context(), runID, final)

	resp := ChatResponse{
		RunID:     runID,
		Visited:   final.Visited(),
		FinalNode: final.FinalNode(),
	}
	if resp.Visited == nil {
		resp.Visited = []string{}
	}
	if v, ok := final.Get("response"); ok {
		resp.Response = v
	}
	if f := final.Failure(); f != nil {
		resp.Error = f.Message
	}
	writeSuccess(w, http.StatusOK, resp)
}
