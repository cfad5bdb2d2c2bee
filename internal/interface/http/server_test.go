package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutracker/edutracker/internal/application/command"
	"github.com/edutracker/edutracker/internal/application/query"
	"github.com/edutracker/edutracker/internal/domain/reinforcement"
	"github.com/edutracker/edutracker/internal/domain/shared"
	"github.com/edutracker/edutracker/internal/domain/student"
	"github.com/edutracker/edutracker/internal/infrastructure/persistence/memory"
	"github.com/edutracker/edutracker/internal/infrastructure/persistence/repository"
	"github.com/edutracker/edutracker/pkg/logger"
)

// flakyGroups fails Save while failSave is set.
type flakyGroups struct {
	*repository.GroupRepository
	failSave atomic.Bool
}

func (g *flakyGroups) Save(ctx context.Context, grp *reinforcement.Group) error {
	if g.failSave.Load() {
		return errors.New("connection reset")
	}
	return g.GroupRepository.Save(ctx, grp)
}

type testAPI struct {
	server *Server
	repos  *repository.Set
	groups *flakyGroups
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	repos := repository.NewSet(memory.NewStore())
	groups := &flakyGroups{GroupRepository: repos.Groups}
	pub := shared.NopPublisher{}
	l := logger.Nop()

	deps := Dependencies{
		EnrollStudent:    command.NewEnrollStudentHandler(repos.Students, repos.Classes),
		DeleteStudent:    command.NewDeleteStudentHandler(repos.Students, groups, l),
		RecordEvaluation: command.NewRecordEvaluationHandler(repos.Students, pub, l),
		ClassEvaluations: command.NewRecordClassEvaluationsHandler(repos.Students, pub, l),
		CreateGroup:      command.NewCreateGroupHandler(groups, repos.Students, pub, l),
		UpdateGroup:      command.NewUpdateGroupHandler(groups, repos.Students, pub, l),
		DeleteGroup:      command.NewDeleteGroupHandler(groups, repos.Attendance, pub, l),
		RecordAttendance: command.NewRecordAttendanceHandler(groups, repos.Attendance, pub, l),
		Discharge:        command.NewDischargeStudentHandler(repos.Students, groups, repos.History, pub, l),
		RemoveFromRoster: command.NewRemoveFromRosterHandler(groups, pub, l),
		SaveCompetency:   command.NewSaveCompetencyHandler(repos.Competencies),
		SaveClass:        command.NewSaveClassHandler(repos.Classes),
		Invites:          command.NewInviteHandler(repos.Invites),

		Progress:         query.NewStudentProgressHandler(repos.Students, groups, repos.Competencies),
		Candidates:       query.NewCandidatesHandler(repos.Students, groups),
		AttendanceRate:   query.NewGetAttendanceRateHandler(repos.Attendance),
		GroupAttendance:  query.NewGroupAttendanceHandler(groups, repos.Attendance, repos.Students),
		DischargeHistory: query.NewDischargeHistoryHandler(repos.History),
		Dashboard:        query.NewDashboardHandler(repos.Students, repos.Classes, groups, repos.Attendance, repos.History),
		Catalog:          query.NewCatalogHandler(repos.Competencies, repos.Classes, repos.Invites, groups),

		Logger: l,
	}

	cfg := DefaultConfig()
	cfg.MaxRequestBytes = 4 << 10
	return &testAPI{server: NewServer(cfg, deps), repos: repos, groups: groups}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, req)

	var resp JSONResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

// data re-decodes resp.Data into a typed value.
func data[T any](t *testing.T, resp JSONResponse) T {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func (a *testAPI) enroll(t *testing.T, id, name string) {
	t.Helper()
	rec, _ := a.do(t, http.MethodPost, "/api/v1/students", map[string]any{"id": id, "name": name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (a *testAPI) createGroup(t *testing.T, members ...string) string {
	t.Helper()
	rec, resp := a.do(t, http.MethodPost, "/api/v1/groups", map[string]any{
		"name": "Reforço de Frações", "subject": "Matemática", "member_ids": members,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return data[reinforcement.Group](t, resp).ID
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestHealthAndMiddleware(t *testing.T) {
	api := newTestAPI(t)

	rec, resp := api.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, rec.Header().Get("X-Request-ID"), resp.RequestID)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec = httptest.NewRecorder()
	api.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestDeriveStandingEndpoint(t *testing.T) {
	api := newTestAPI(t)

	cases := map[string]student.Standing{
		"not_achieved": student.StandingNeedsReinforcement,
		"developing":   student.StandingDeveloping,
		"achieved":     student.StandingAdequate,
		"exceeded":     student.StandingAdequate,
	}
	for level, want := range cases {
		rec, resp := api.do(t, http.MethodGet, "/api/v1/standing?level="+level, nil)
		require.Equal(t, http.StatusOK, rec.Code, level)
		got := data[map[string]string](t, resp)
		assert.Equal(t, string(want), got["standing"], level)
		assert.NotEmpty(t, got["standing_label"])
	}

	rec, resp := api.do(t, http.MethodGet, "/api/v1/standing?level=excellent", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "validation_error", resp.Error.Code)
}

func TestRecordEvaluationFlow(t *testing.T) {
	api := newTestAPI(t)
	api.enroll(t, "s1", "Ana")

	body := map[string]any{"competency_id": "EF05MA03", "level": "not_achieved", "bimester": "B1"}
	rec, resp := api.do(t, http.MethodPost, "/api/v1/students/s1/evaluations", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got := data[map[string]any](t, resp)
	assert.Equal(t, "needs_reinforcement", got["standing"])
	assert.Equal(t, true, got["standing_changed"])

	// Same (competency, bimester) overwrites.
	body["level"] = "achieved"
	rec, resp = api.do(t, http.MethodPost, "/api/v1/students/s1/evaluations", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got = data[map[string]any](t, resp)
	assert.Equal(t, true, got["overwritten"])
	assert.Equal(t, "adequate", got["standing"])

	rec, resp = api.do(t, http.MethodGet, "/api/v1/students/s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	progress := data[map[string]any](t, resp)
	assert.Equal(t, "adequate", progress["standing"])
	assert.Len(t, progress["evaluations"], 1)
}

func TestRecordEvaluationValidation(t *testing.T) {
	api := newTestAPI(t)
	api.enroll(t, "s1", "Ana")

	rec, resp := api.do(t, http.MethodPost, "/api/v1/students/s1/evaluations", map[string]any{
		"competency_id": "EF05MA03", "level": "great",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Details, "level")

	score, maxScore := 12.0, 10.0
	rec, _ = api.do(t, http.MethodPost, "/api/v1/students/s1/evaluations", map[string]any{
		"competency_id": "EF05MA03", "level": "achieved", "score": score, "max_score": maxScore,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = api.do(t, http.MethodPost, "/api/v1/students/ghost/evaluations", map[string]any{
		"competency_id": "EF05MA03", "level": "achieved",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDecodeErrors(t *testing.T) {
	api := newTestAPI(t)

	rec, resp := api.do(t, http.MethodPost, "/api/v1/students", `{"name":"Ana","nickname":"A"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", resp.Error.Code)

	rec, resp = api.do(t, http.MethodPost, "/api/v1/students", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", resp.Error.Code)

	big := `{"name":"` + strings.Repeat("a", 8<<10) + `"}`
	rec, _ = api.do(t, http.MethodPost, "/api/v1/students", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCreateGroupValidation(t *testing.T) {
	api := newTestAPI(t)
	api.enroll(t, "s1", "Ana")

	rec, resp := api.do(t, http.MethodPost, "/api/v1/groups", map[string]any{
		"name": "G", "subject": "Matemática", "member_ids": []string{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Error.Details, "member_ids")

	rec, _ = api.do(t, http.MethodPost, "/api/v1/groups", map[string]any{
		"name": "G", "subject": "Matemática", "member_ids": []string{"s1", "ghost"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = api.do(t, http.MethodGet, "/api/v1/groups/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAttendanceEndpoints(t *testing.T) {
	api := newTestAPI(t)
	api.enroll(t, "s1", "Ana")
	api.enroll(t, "s2", "Bruno")
	gid := api.createGroup(t, "s1", "s2")

	path := "/api/v1/groups/" + gid + "/attendance/"
	rec, _ := api.do(t, http.MethodPut, path+"2024-03-04", map[string]any{"present_ids": []string{"s1"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, _ = api.do(t, http.MethodPut, path+"2024-03-11", map[string]any{"present_ids": []string{"s1"}})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Re-recording a date replaces it.
	rec, _ = api.do(t, http.MethodPut, path+"2024-03-11", map[string]any{"present_ids": []string{"s1", "s2"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := api.do(t, http.MethodGet, path+"rate/s2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rate := data[query.AttendanceRateDTO](t, resp)
	assert.Equal(t, 50, rate.Rate)
	assert.Equal(t, 2, rate.Sessions)

	rec, _ = api.do(t, http.MethodPut, path+"2024-03-18", map[string]any{"present_ids": []string{"ghost"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = api.do(t, http.MethodPut, path+"18-03-2024", map[string]any{"present_ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDischargeEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.enroll(t, "s1", "Ana")
	api.enroll(t, "s2", "Bruno")
	gid := api.createGroup(t, "s1", "s2")

	rec, resp := api.do(t, http.MethodPost, "/api/v1/groups/"+gid+"/discharges", map[string]any{
		"student_id": "s1", "final_level": "achieved",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := data[command.DischargeResult](t, resp)
	assert.True(t, res.RemovedFromRoster)
	assert.Equal(t, student.StandingAdequate, res.Standing)

	g, err := api.repos.Groups.GetByID(context.Background(), gid)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, g.MemberIDs)

	rec, resp = api.do(t, http.MethodGet, "/api/v1/history?student_id=s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, resp.Meta.Count)
}

func TestDischargeRosterRemovalPending(t *testing.T) {
	api := newTestAPI(t)
	api.enroll(t, "s1", "Ana")
	gid := api.createGroup(t, "s1")

	api.groups.failSave.Store(true)
	rec, resp := api.do(t, http.MethodPost, "/api/v1/groups/"+gid+"/discharges", map[string]any{
		"student_id": "s1", "final_level": "exceeded",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := data[map[string]any](t, resp)
	assert.Equal(t, "roster_removal", body["pending"])
	assert.Equal(t, false, body["removed_from_roster"])
	assert.Equal(t, "DELETE /api/v1/groups/"+gid+"/members/s1", body["retry"])

	// The discharge itself is durable.
	s, err := api.repos.Students.GetByID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, student.StandingAdequate, s.Standing)

	api.groups.failSave.Store(false)
	rec, resp = api.do(t, http.MethodDelete, "/api/v1/groups/"+gid+"/members/s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"removed": true}, resp.Data)
}

func TestInviteEndpointsHideTokenHash(t *testing.T) {
	api := newTestAPI(t)

	rec, resp := api.do(t, http.MethodPost, "/api/v1/invites", map[string]any{
		"email": "prof@escola.br", "role": "teacher",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "token_hash")
	created := data[map[string]any](t, resp)
	token, _ := created["token"].(string)
	require.NotEmpty(t, token)
	id := created["invite"].(map[string]any)["id"].(string)

	rec, _ = api.do(t, http.MethodPost, "/api/v1/invites/"+id+"/accept", map[string]any{"token": "wrong"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = api.do(t, http.MethodPost, "/api/v1/invites/"+id+"/accept", map[string]any{"token": token})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = api.do(t, http.MethodPost, "/api/v1/invites/"+id+"/accept", map[string]any{"token": token})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, resp = api.do(t, http.MethodGet, "/api/v1/invites", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, resp.Meta.Count)
	assert.NotContains(t, rec.Body.String(), "token_hash")
}

func TestSyncRoutesWithoutRemote(t *testing.T) {
	api := newTestAPI(t)

	rec, resp := api.do(t, http.MethodPost, "/api/v1/sync/resync", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "sync_disabled", resp.Error.Code)

	rec, _ = api.do(t, http.MethodGet, "/api/v1/sync/status", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestOptionsAndDashboard(t *testing.T) {
	api := newTestAPI(t)
	api.enroll(t, "s1", "Ana")

	rec, resp := api.do(t, http.MethodGet, "/api/v1/options", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, data[map[string]any](t, resp), "standings")

	rec, _ = api.do(t, http.MethodGet, "/api/v1/dashboard", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = api.do(t, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
