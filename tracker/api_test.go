package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/waferline-labs/waferline-go/internal/domain"
	"github.com/waferline-labs/waferline-go/internal/platform/telemetry"
	"github.com/waferline-labs/waferline-go/internal/repo"
	"github.com/waferline-labs/waferline-go/internal/service/groups"
	"github.com/waferline-labs/waferline-go/internal/service/stats"
)

type memGroupRepo struct {
	groups map[string]domain.ExperimentGroup
}

func newMemGroupRepo(seed ...domain.ExperimentGroup) *memGroupRepo {
	r := &memGroupRepo{groups: map[string]domain.ExperimentGroup{}}
	for _, group := range seed {
		r.groups[group.ID] = group
	}
	return r
}

func (r *memGroupRepo) Insert(ctx context.Context, group domain.ExperimentGroup) error {
	r.groups[group.ID] = group
	return nil
}

func (r *memGroupRepo) Get(ctx context.Context, id string) (domain.ExperimentGroup, error) {
	group, ok := r.groups[id]
	if !ok {
		return domain.ExperimentGroup{}, repo.ErrNotFound
	}
	return group, nil
}

func (r *memGroupRepo) GetByCorrelationID(ctx context.Context, id string) (domain.ExperimentGroup, error) {
	for _, group := range r.groups {
		if _, ok := group.Locate(id); ok {
			return group, nil
		}
	}
	return domain.ExperimentGroup{}, repo.ErrNotFound
}

func (r *memGroupRepo) GetByExperimentID(ctx context.Context, id string) (domain.ExperimentGroup, error) {
	for _, group := range r.groups {
		if group.ExperimentByID(id) != nil {
			return group, nil
		}
	}
	return domain.ExperimentGroup{}, repo.ErrNotFound
}

func (r *memGroupRepo) Replace(ctx context.Context, group domain.ExperimentGroup) error {
	stored, ok := r.groups[group.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if group.Version != stored.Version {
		return repo.ErrVersionConflict
	}
	r.groups[group.ID] = group
	return nil
}

func (r *memGroupRepo) List(ctx context.Context, filter repo.GroupFilter) ([]domain.ExperimentGroup, error) {
	out := make([]domain.ExperimentGroup, 0, len(r.groups))
	for _, group := range r.groups {
		if filter.ProgramFamily != "" && group.TestProgram.Family != filter.ProgramFamily {
			continue
		}
		out = append(out, group)
	}
	return out, nil
}

func apiGroup() domain.ExperimentGroup {
	return domain.ExperimentGroup{
		ID:          "group-1",
		Username:    "jdoe",
		TestProgram: domain.TestProgram{Name: "TP-ICL-01", Family: "ICL"},
		Version:     1,
		Experiments: []domain.Experiment{
			{
				ID:    "exp-1",
				Vpo:   "oldVPO",
				State: domain.ExperimentStateDraftUpdateInProgress,
				Stages: []domain.Stage{
					{
						ID:   "stage-class",
						Type: domain.StageTypeClass,
						Class: &domain.ClassStageData{Conditions: []domain.Condition{
							{
								ID:            "cond-1",
								EngineeringID: "ENG-1",
								LocationCode:  "6262",
								ProcessRecord: domain.ProcessRecord{Status: domain.ProcessStatusRunning},
							},
						}},
					},
				},
			},
		},
	}
}

func newTestMux(t *testing.T, repoFake *memGroupRepo) *http.ServeMux {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := newTrackerAPI(
		logger,
		nil,
		groups.New(repoFake, nil),
		stats.New(repoFake),
		nil,
		telemetry.NewMetrics("test"),
	)
	mux := http.NewServeMux()
	api.register(mux)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Request-Id", "req-1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestStatusCallbackEndpoint(t *testing.T) {
	repoFake := newMemGroupRepo(apiGroup())
	mux := newTestMux(t, repoFake)

	rec := doJSON(t, mux, http.MethodPost, "/callbacks/status", map[string]any{
		"correlation_id": "cond-1",
		"status":         "paused",
		"comment":        "hold",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	group := repoFake.groups["group-1"]
	cond := group.Experiments[0].Stages[0].Class.Conditions[0]
	if cond.Status != domain.ProcessStatusPaused || cond.StatusChangeComment != "hold" {
		t.Fatalf("condition not updated: %+v", cond)
	}
}

func TestStatusCallbackValidation(t *testing.T) {
	mux := newTestMux(t, newMemGroupRepo(apiGroup()))

	rec := doJSON(t, mux, http.MethodPost, "/callbacks/status", map[string]any{
		"correlation_id": "cond-1",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d, want 422", rec.Code)
	}
	var body struct {
		Error  string   `json:"error"`
		Issues []string `json:"issues"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error != "validation_failed" || len(body.Issues) == 0 {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestStatusCallbackUnknownID(t *testing.T) {
	mux := newTestMux(t, newMemGroupRepo(apiGroup()))

	rec := doJSON(t, mux, http.MethodPost, "/callbacks/status", map[string]any{
		"correlation_id": "never-assigned",
		"status":         "running",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rec.Code)
	}
}

func TestVpoCallbackEndpoint(t *testing.T) {
	repoFake := newMemGroupRepo(apiGroup())
	mux := newTestMux(t, repoFake)

	rec := doJSON(t, mux, http.MethodPost, "/callbacks/vpo", map[string]any{
		"experiment_id":            "exp-1",
		"vpo":                      "newVPO",
		"is_finished_successfully": true,
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	experiment := repoFake.groups["group-1"].Experiments[0]
	if experiment.State != domain.ExperimentStateDraft || experiment.Vpo != "oldVPO" {
		t.Fatalf("in-progress settle must keep the prior vpo: %+v", experiment)
	}
}

func TestResultCallbackRequiresPayload(t *testing.T) {
	mux := newTestMux(t, newMemGroupRepo(apiGroup()))

	rec := doJSON(t, mux, http.MethodPost, "/callbacks/result", map[string]any{
		"condition_id": "cond-1",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d, want 422", rec.Code)
	}

	rec = doJSON(t, mux, http.MethodPost, "/callbacks/result", map[string]any{
		"condition_id": "cond-1",
		"results":      map[string]int{"good_bins": 100, "bad_bins": 4},
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
}

func TestCreateGroupEndpoint(t *testing.T) {
	mux := newTestMux(t, newMemGroupRepo())

	request := apiGroup()
	request.ID = ""
	request.Experiments[0].ID = ""
	request.Experiments[0].Stages[0].ID = ""
	request.Experiments[0].Stages[0].Class.Conditions[0].ID = ""

	rec := doJSON(t, mux, http.MethodPost, "/experiment-groups", request)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	var created domain.ExperimentGroup
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created group: %v", err)
	}
	if created.ID == "" || created.Experiments[0].Stages[0].Class.Conditions[0].ID == "" {
		t.Fatalf("ids not assigned: %+v", created)
	}

	// ids are server-assigned
	rec = doJSON(t, mux, http.MethodPost, "/experiment-groups", apiGroup())
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d, want 422", rec.Code)
	}
}

func TestUpdateGroupVersionConflict(t *testing.T) {
	mux := newTestMux(t, newMemGroupRepo(apiGroup()))

	stale := apiGroup()
	stale.Version = 7
	rec := doJSON(t, mux, http.MethodPut, "/experiment-groups/group-1", stale)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status=%d, want 409", rec.Code)
	}

	rec = doJSON(t, mux, http.MethodPut, "/experiment-groups/group-1", apiGroup())
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
}

func TestGetGroupEndpoint(t *testing.T) {
	mux := newTestMux(t, newMemGroupRepo(apiGroup()))

	rec := doJSON(t, mux, http.MethodGet, "/experiment-groups/group-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	rec = doJSON(t, mux, http.MethodGet, "/experiment-groups/group-404", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rec.Code)
	}
}

func TestCancelExperimentEndpoint(t *testing.T) {
	mux := newTestMux(t, newMemGroupRepo(apiGroup()))

	rec := doJSON(t, mux, http.MethodPost, "/experiments/exp-1/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	var body struct {
		CanceledRecords int `json:"canceled_records"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.CanceledRecords != 1 {
		t.Fatalf("canceled_records=%d, want 1", body.CanceledRecords)
	}
}

func TestClassificationEndpoint(t *testing.T) {
	mux := newTestMux(t, newMemGroupRepo(apiGroup()))

	rec := doJSON(t, mux, http.MethodGet, "/experiment-groups/group-1/classification", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"rolling"`) {
		t.Fatalf("body=%s, want rolling", rec.Body)
	}
}

func TestTopLocationCodesEndpoint(t *testing.T) {
	mux := newTestMux(t, newMemGroupRepo(apiGroup()))

	rec := doJSON(t, mux, http.MethodGet, "/stats/location-codes?family=ICL&n=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var body struct {
		Family string             `json:"family"`
		Values []stats.ValueCount `json:"values"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Values) != 1 || body.Values[0].Value != "6262" {
		t.Fatalf("values=%v", body.Values)
	}

	rec = doJSON(t, mux, http.MethodGet, "/stats/location-codes", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
}
