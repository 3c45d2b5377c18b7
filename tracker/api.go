package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/waferline-labs/waferline-go/internal/domain"
	"github.com/waferline-labs/waferline-go/internal/groupexport"
	"github.com/waferline-labs/waferline-go/internal/groupvalidator"
	"github.com/waferline-labs/waferline-go/internal/platform/auth"
	"github.com/waferline-labs/waferline-go/internal/platform/telemetry"
	"github.com/waferline-labs/waferline-go/internal/repo"
	"github.com/waferline-labs/waferline-go/internal/service/groups"
	"github.com/waferline-labs/waferline-go/internal/service/stats"
)

type trackerAPI struct {
	logger    *slog.Logger
	db        *sql.DB
	groups    *groups.Service
	stats     *stats.Service
	snapshots *groupexport.SnapshotSink
	metrics   *telemetry.Metrics
}

func newTrackerAPI(
	logger *slog.Logger,
	db *sql.DB,
	groupService *groups.Service,
	statsService *stats.Service,
	snapshots *groupexport.SnapshotSink,
	metrics *telemetry.Metrics,
) *trackerAPI {
	return &trackerAPI{
		logger:    logger,
		db:        db,
		groups:    groupService,
		stats:     statsService,
		snapshots: snapshots,
		metrics:   metrics,
	}
}

func (api *trackerAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /experiment-groups", api.handleCreateGroup)
	mux.HandleFunc("GET /experiment-groups", api.handleListGroups)
	mux.HandleFunc("GET /experiment-groups/{group_id}", api.handleGetGroup)
	mux.HandleFunc("PUT /experiment-groups/{group_id}", api.handleUpdateGroup)
	mux.HandleFunc("POST /experiment-groups/{group_id}/experiments", api.handleAddExperiments)
	mux.HandleFunc("POST /experiment-groups/{group_id}/submit-queue", api.handleSubmitQueue)
	mux.HandleFunc("POST /experiment-groups/{group_id}/export", api.handleExportGroup)
	mux.HandleFunc("GET /experiment-groups/{group_id}/classification", api.handleClassifyGroup)

	mux.HandleFunc("POST /experiments/{experiment_id}/archive", api.handleArchiveExperiment)
	mux.HandleFunc("POST /experiments/{experiment_id}/cancel", api.handleCancelExperiment)

	mux.HandleFunc("POST /callbacks/status", api.handleStatusCallback)
	mux.HandleFunc("POST /callbacks/vpo", api.handleVpoCallback)
	mux.HandleFunc("POST /callbacks/result", api.handleResultCallback)

	mux.HandleFunc("GET /stats/location-codes", api.handleTopLocationCodes)
	mux.HandleFunc("GET /stats/engineering-ids", api.handleTopEngineeringIDs)
}

func (api *trackerAPI) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var group domain.ExperimentGroup
	if err := decodeJSON(r.Body, &group); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	created, err := api.groups.CreateGroup(r.Context(), group)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusCreated, created)
}

func (api *trackerAPI) handleListGroups(w http.ResponseWriter, r *http.Request) {
	filter := repo.GroupFilter{
		Username:      strings.TrimSpace(r.URL.Query().Get("username")),
		Team:          strings.TrimSpace(r.URL.Query().Get("team")),
		Segment:       strings.TrimSpace(r.URL.Query().Get("segment")),
		ProgramFamily: strings.TrimSpace(r.URL.Query().Get("family")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			api.writeError(w, r, http.StatusBadRequest, "invalid_limit", nil)
			return
		}
		filter.Limit = limit
	}
	listed, err := api.groups.ListGroups(r.Context(), filter)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"experiment_groups": listed})
}

func (api *trackerAPI) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	groupID := strings.TrimSpace(r.PathValue("group_id"))
	if groupID == "" {
		api.writeError(w, r, http.StatusBadRequest, "group_id_required", nil)
		return
	}
	group, err := api.groups.GetGroup(r.Context(), groupID)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, group)
}

func (api *trackerAPI) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	groupID := strings.TrimSpace(r.PathValue("group_id"))
	if groupID == "" {
		api.writeError(w, r, http.StatusBadRequest, "group_id_required", nil)
		return
	}
	var group domain.ExperimentGroup
	if err := decodeJSON(r.Body, &group); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if group.ID != "" && group.ID != groupID {
		api.writeError(w, r, http.StatusBadRequest, "group_id_mismatch", nil)
		return
	}
	group.ID = groupID

	err := api.groups.UpdateGroup(r.Context(), group)
	api.observeReplace(err)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *trackerAPI) handleAddExperiments(w http.ResponseWriter, r *http.Request) {
	groupID := strings.TrimSpace(r.PathValue("group_id"))
	if groupID == "" {
		api.writeError(w, r, http.StatusBadRequest, "group_id_required", nil)
		return
	}
	var body struct {
		Experiments []domain.Experiment `json:"experiments"`
	}
	if err := decodeJSON(r.Body, &body); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	group, err := api.groups.AddExperiments(r.Context(), groupID, body.Experiments)
	api.observeReplace(err)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, group)
}

func (api *trackerAPI) handleSubmitQueue(w http.ResponseWriter, r *http.Request) {
	groupID := strings.TrimSpace(r.PathValue("group_id"))
	if groupID == "" {
		api.writeError(w, r, http.StatusBadRequest, "group_id_required", nil)
		return
	}
	if err := api.groups.MarkSubmittedToQueue(r.Context(), groupID); err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *trackerAPI) handleExportGroup(w http.ResponseWriter, r *http.Request) {
	groupID := strings.TrimSpace(r.PathValue("group_id"))
	if groupID == "" {
		api.writeError(w, r, http.StatusBadRequest, "group_id_required", nil)
		return
	}
	if api.snapshots == nil {
		api.writeError(w, r, http.StatusServiceUnavailable, "export_unavailable", nil)
		return
	}
	group, err := api.groups.GetGroup(r.Context(), groupID)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	key, err := api.snapshots.Upload(r.Context(), group)
	if err != nil {
		api.logger.Error("snapshot export failed", "group_id", groupID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "export_failed", nil)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"object_key": key})
}

func (api *trackerAPI) handleClassifyGroup(w http.ResponseWriter, r *http.Request) {
	groupID := strings.TrimSpace(r.PathValue("group_id"))
	if groupID == "" {
		api.writeError(w, r, http.StatusBadRequest, "group_id_required", nil)
		return
	}
	classification, err := api.stats.Classify(r.Context(), groupID)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"group_id":       groupID,
		"classification": classification,
	})
}

func (api *trackerAPI) handleArchiveExperiment(w http.ResponseWriter, r *http.Request) {
	experimentID := strings.TrimSpace(r.PathValue("experiment_id"))
	if experimentID == "" {
		api.writeError(w, r, http.StatusBadRequest, "experiment_id_required", nil)
		return
	}
	var body struct {
		Archived bool `json:"archived"`
	}
	if err := decodeJSON(r.Body, &body); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if err := api.groups.SetExperimentArchived(r.Context(), experimentID, body.Archived); err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *trackerAPI) handleCancelExperiment(w http.ResponseWriter, r *http.Request) {
	experimentID := strings.TrimSpace(r.PathValue("experiment_id"))
	if experimentID == "" {
		api.writeError(w, r, http.StatusBadRequest, "experiment_id_required", nil)
		return
	}
	canceled, err := api.groups.CancelExperiment(r.Context(), experimentID)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"experiment_id":    experimentID,
		"canceled_records": canceled,
	})
}

type statusCallback struct {
	CorrelationID       string  `json:"correlation_id"`
	Status              string  `json:"status"`
	Comment             *string `json:"comment"`
	IsIssueStep         bool    `json:"is_issue_step"`
	MaterialIssueFailed bool    `json:"is_material_issue_failed"`
}

func (api *trackerAPI) handleStatusCallback(w http.ResponseWriter, r *http.Request) {
	var body statusCallback
	if err := decodeJSON(r.Body, &body); err != nil {
		api.observeCallback("status", "bad_request")
		api.writeError(w, r, http.StatusBadRequest, "invalid_json", nil)
		return
	}

	transition, err := api.groups.ApplyStatusUpdate(r.Context(), groups.StatusUpdate{
		CorrelationID:       strings.TrimSpace(body.CorrelationID),
		NewStatus:           domain.ProcessStatus(body.Status),
		Comment:             body.Comment,
		IsIssueStep:         body.IsIssueStep,
		MaterialIssueFailed: body.MaterialIssueFailed,
	})
	if err != nil {
		api.observeCallback("status", outcomeOf(err))
		api.writeDomainError(w, r, err)
		return
	}

	api.observeCallback("status", "applied")
	if !transition.Suppressed {
		api.metrics.ObserveStatusTransition(string(transition.To))
	}
	api.appendAudit(r, func(ctx context.Context, info groups.AuditInfo) error {
		return groups.AppendStatusAudit(ctx, api.db, info, transition)
	})
	w.WriteHeader(http.StatusNoContent)
}

type vpoCallback struct {
	ExperimentID           string `json:"experiment_id"`
	Vpo                    string `json:"vpo"`
	IsFinishedSuccessfully bool   `json:"is_finished_successfully"`
	ErrorMessage           string `json:"error_message"`
}

func (api *trackerAPI) handleVpoCallback(w http.ResponseWriter, r *http.Request) {
	var body vpoCallback
	if err := decodeJSON(r.Body, &body); err != nil {
		api.observeCallback("vpo", "bad_request")
		api.writeError(w, r, http.StatusBadRequest, "invalid_json", nil)
		return
	}

	update := groups.VpoUpdate{
		ExperimentID:           strings.TrimSpace(body.ExperimentID),
		Vpo:                    strings.TrimSpace(body.Vpo),
		IsFinishedSuccessfully: body.IsFinishedSuccessfully,
		ErrorMessage:           strings.TrimSpace(body.ErrorMessage),
	}
	resolution, err := api.groups.ApplyVpoUpdate(r.Context(), update)
	if err != nil {
		api.observeCallback("vpo", outcomeOf(err))
		api.writeDomainError(w, r, err)
		return
	}
	if !resolution.Applied {
		api.logger.Warn("vpo assignment failed upstream",
			"experiment_id", update.ExperimentID,
			"error_message", update.ErrorMessage,
		)
	}

	api.observeCallback("vpo", "applied")
	api.appendAudit(r, func(ctx context.Context, info groups.AuditInfo) error {
		return groups.AppendVpoAudit(ctx, api.db, info, update, resolution)
	})
	w.WriteHeader(http.StatusNoContent)
}

type resultCallback struct {
	ConditionID string             `json:"condition_id"`
	Results     *domain.BinResults `json:"results"`
}

func (api *trackerAPI) handleResultCallback(w http.ResponseWriter, r *http.Request) {
	var body resultCallback
	if err := decodeJSON(r.Body, &body); err != nil {
		api.observeCallback("result", "bad_request")
		api.writeError(w, r, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if err := api.groups.ApplyResultUpdate(r.Context(), strings.TrimSpace(body.ConditionID), body.Results); err != nil {
		api.observeCallback("result", outcomeOf(err))
		api.writeDomainError(w, r, err)
		return
	}
	api.observeCallback("result", "applied")
	w.WriteHeader(http.StatusNoContent)
}

func (api *trackerAPI) handleTopLocationCodes(w http.ResponseWriter, r *http.Request) {
	api.handleTopValues(w, r, api.stats.TopCommonLocationCodes)
}

func (api *trackerAPI) handleTopEngineeringIDs(w http.ResponseWriter, r *http.Request) {
	api.handleTopValues(w, r, api.stats.TopCommonEngineeringIDs)
}

func (api *trackerAPI) handleTopValues(
	w http.ResponseWriter,
	r *http.Request,
	query func(ctx context.Context, family string, n int) ([]stats.ValueCount, error),
) {
	family := strings.TrimSpace(r.URL.Query().Get("family"))
	if family == "" {
		api.writeError(w, r, http.StatusBadRequest, "family_required", nil)
		return
	}
	n := 10
	if raw := strings.TrimSpace(r.URL.Query().Get("n")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			api.writeError(w, r, http.StatusBadRequest, "invalid_n", nil)
			return
		}
		n = parsed
	}
	ranked, err := query(r.Context(), family, n)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	if ranked == nil {
		ranked = []stats.ValueCount{}
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"family": family,
		"values": ranked,
	})
}

// writeDomainError maps service errors onto the HTTP surface: validation
// failures carry their issues, stale replaces surface as conflicts, and
// everything unexpected stays opaque.
func (api *trackerAPI) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *groupvalidator.ValidationError
	switch {
	case errors.As(err, &verr):
		api.writeError(w, r, http.StatusUnprocessableEntity, "validation_failed", verr.Issues)
	case errors.Is(err, repo.ErrNotFound):
		api.writeError(w, r, http.StatusNotFound, "not_found", nil)
	case errors.Is(err, repo.ErrVersionConflict):
		api.writeError(w, r, http.StatusConflict, "version_conflict", nil)
	default:
		api.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error", nil)
	}
}

func (api *trackerAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *trackerAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string, issues []string) {
	body := map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	}
	if len(issues) > 0 {
		body["issues"] = issues
	}
	api.writeJSON(w, status, body)
}

func (api *trackerAPI) appendAudit(r *http.Request, append func(ctx context.Context, info groups.AuditInfo) error) {
	if api.db == nil {
		return
	}
	actor := "external-callback"
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.Subject != "" {
		actor = identity.Subject
	}
	info := groups.AuditInfo{
		Actor:     actor,
		RequestID: r.Header.Get("X-Request-Id"),
		UserAgent: r.UserAgent(),
		IP:        requestIP(r.RemoteAddr),
		Service:   "tracker",
	}
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 750*time.Millisecond)
	defer cancel()
	if err := append(auditCtx, info); err != nil {
		api.logger.Error("audit append failed", "path", r.URL.Path, "error", err)
	}
}

func (api *trackerAPI) observeCallback(kind, outcome string) {
	api.metrics.ObserveCallback(kind, outcome)
}

func (api *trackerAPI) observeReplace(err error) {
	switch {
	case err == nil:
		api.metrics.ObserveGroupReplace("ok")
	case errors.Is(err, repo.ErrVersionConflict):
		api.metrics.ObserveGroupReplace("conflict")
	default:
		api.metrics.ObserveGroupReplace("error")
	}
}

func outcomeOf(err error) string {
	var verr *groupvalidator.ValidationError
	switch {
	case errors.As(err, &verr):
		return "validation_failed"
	case errors.Is(err, repo.ErrNotFound):
		return "not_found"
	case errors.Is(err, repo.ErrVersionConflict):
		return "conflict"
	default:
		return "error"
	}
}

func decodeJSON(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func requestIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}
