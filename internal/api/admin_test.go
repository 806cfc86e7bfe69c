package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabiprep/sabiprep/internal/admin"
	"github.com/sabiprep/sabiprep/internal/audit"
	"github.com/sabiprep/sabiprep/internal/auth"
	"github.com/sabiprep/sabiprep/internal/llm"
	"github.com/sabiprep/sabiprep/internal/question"
	"github.com/sabiprep/sabiprep/internal/review"
)

func TestQuestionCRUD(t *testing.T) {
	env := newTestEnv(t, 5)
	as := request{token: env.adminToken(t)}

	w := env.do(t, http.MethodPost, "/api/admin/questions", map[string]any{
		"subject_id":     "phy",
		"topic_id":       "motion",
		"question_text":  "Unit of force?",
		"option_a":       "Joule",
		"option_b":       "Newton",
		"option_c":       "Watt",
		"option_d":       "Pascal",
		"correct_answer": "B",
	}, as)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[question.Question](t, w)
	assert.Equal(t, question.StatusDraft, created.Status)

	w = env.do(t, http.MethodPost, "/api/admin/questions", map[string]any{"subject_id": "phy"}, as)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(t, http.MethodGet, "/api/admin/questions/"+created.ID, nil, as)
	require.Equal(t, http.StatusOK, w.Code)

	upd := created
	upd.Status = question.StatusPublished
	upd.Text = "SI unit of force?"
	w = env.do(t, http.MethodPut, "/api/admin/questions/"+created.ID, upd, as)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "SI unit of force?", decode[question.Question](t, w).Text)

	w = env.do(t, http.MethodGet, "/api/admin/questions?status=published&page_size=5", nil, as)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode[admin.Page[question.Question]](t, w)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 5, page.PageSize)

	w = env.do(t, http.MethodGet, "/api/admin/questions?page=abc", nil, as)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodDelete, "/api/admin/questions/"+created.ID, nil, as)
	assert.Equal(t, http.StatusNoContent, w.Code)
	q, err := env.store.GetQuestion(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, question.StatusArchived, q.Status)

	w = env.do(t, http.MethodGet, "/api/admin/questions/missing", nil, as)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBulkQuestions(t *testing.T) {
	env := newTestEnv(t, 5)
	as := request{token: env.adminToken(t)}
	qs := env.seedQuestions(t, 2)

	w := env.do(t, http.MethodPost, "/api/admin/questions/bulk",
		bulkRequest{Action: admin.BulkArchive, IDs: []string{qs[0].ID, qs[1].ID, "missing"}}, as)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[admin.BulkResult](t, w)
	assert.Equal(t, 3, res.Requested)
	assert.Equal(t, 2, res.Affected)

	w = env.do(t, http.MethodPost, "/api/admin/questions/bulk", bulkRequest{Action: "explode", IDs: []string{qs[0].ID}}, as)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

const importCSV = "subject_id,topic_id,question_text,option_a,option_b,option_c,option_d,correct_answer\n" +
	"phy,motion,Unit of power?,Joule,Newton,Watt,Pascal,C\n" +
	"phy,motion,Broken,Joule,Newton,Watt,Pascal,Q\n"

func TestImportQuestions(t *testing.T) {
	env := newTestEnv(t, 5)
	as := request{token: env.adminToken(t)}

	r := httptest.NewRequest(http.MethodPost, "/api/admin/questions/import", bytes.NewBufferString(importCSV))
	r.Header.Set("Content-Type", "text/csv")
	r.Header.Set("Authorization", "Bearer "+as.token)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rep := decode[admin.ImportReport](t, w)
	assert.Equal(t, 1, rep.Imported)
	assert.Equal(t, 1, rep.Failed)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "questions.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(importCSV))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r = httptest.NewRequest(http.MethodPost, "/api/admin/questions/import", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	r.Header.Set("Authorization", "Bearer "+as.token)
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[admin.ImportReport](t, w).Imported)

	entries, _, err := env.store.ListAudit(context.Background(), audit.Filter{Action: audit.ActionImportComplete})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func proposalJSON() json.RawMessage {
	return json.RawMessage(`{
		"hint1": "Think about what you breathe out.",
		"hint2": "It is produced when fuels burn.",
		"hint3": "Its molecule has one carbon and two oxygen atoms.",
		"solution": "Lime water turns milky with CO2, so the answer is B.",
		"explanation": "Calcium hydroxide reacts with CO2 to form insoluble calcium carbonate."
	}`)
}

func TestReviewWorkflow(t *testing.T) {
	env := newTestEnv(t, 5)
	as := request{token: env.adminToken(t)}
	q := env.seedQuestions(t, 1)[0]
	env.mock.AddResponse(llm.MockResponse{Content: proposalJSON()})

	w := env.do(t, http.MethodGet, "/api/admin/questions/"+q.ID+"/reviews/latest", nil, as)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/admin/questions/"+q.ID+"/reviews", nil, as)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rv := decode[review.Review](t, w)
	assert.Equal(t, review.StatusPending, rv.Status)

	w = env.do(t, http.MethodPost, "/api/admin/questions/"+q.ID+"/reviews", nil, as)
	assert.Equal(t, http.StatusConflict, w.Code, "one pending review per question")

	w = env.do(t, http.MethodGet, "/api/admin/reviews/"+rv.ID+"/diff", nil, as)
	require.Equal(t, http.StatusOK, w.Code)
	diff := decode[diffResponse](t, w)
	assert.NotEmpty(t, diff.Diff)

	w = env.do(t, http.MethodPost, "/api/admin/reviews/"+rv.ID+"/decision", review.Decision{Approved: false}, as)
	assert.Equal(t, http.StatusBadRequest, w.Code, "rejection needs a reason")

	w = env.do(t, http.MethodPost, "/api/admin/reviews/"+rv.ID+"/decision", review.Decision{Approved: true}, as)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, review.StatusApproved, decode[review.Review](t, w).Status)

	w = env.do(t, http.MethodPost, "/api/admin/reviews/"+rv.ID+"/decision", review.Decision{Approved: true}, as)
	assert.Equal(t, http.StatusConflict, w.Code)

	live, err := env.store.GetQuestion(context.Background(), q.ID)
	require.NoError(t, err)
	require.NotNil(t, live.Hints.Level1)
	assert.Equal(t, "Think about what you breathe out.", *live.Hints.Level1)

	w = env.do(t, http.MethodGet, "/api/admin/questions/"+q.ID+"/reviews", nil, as)
	require.Equal(t, http.StatusOK, w.Code)
	hist := decode[map[string][]review.Review](t, w)
	assert.Len(t, hist["items"], 1)
}

func TestReviewGenerate_ProviderDown(t *testing.T) {
	env := newTestEnv(t, 5)
	as := request{token: env.adminToken(t)}
	qs := env.seedQuestions(t, 2)

	w := env.do(t, http.MethodPost, "/api/admin/questions/"+qs[0].ID+"/reviews", nil, as)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = env.do(t, http.MethodGet, "/api/admin/questions/"+qs[0].ID+"/reviews/latest", nil, as)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, review.StatusFailed, decode[review.Review](t, w).Status)

	env.mock.AddResponse(llm.MockResponse{Content: proposalJSON()})
	w = env.do(t, http.MethodPost, "/api/admin/reviews/batch", batchRequest{QuestionIDs: []string{qs[0].ID, qs[1].ID}, BatchSize: 1}, as)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[review.BatchResult](t, w)
	assert.Equal(t, 2, res.Requested)
	assert.Equal(t, 1, res.Succeeded)
	assert.Len(t, res.Failed, 1)

	w = env.do(t, http.MethodPost, "/api/admin/reviews/batch", batchRequest{}, as)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditLogsAndUsers(t *testing.T) {
	env := newTestEnv(t, 5)
	as := request{token: env.adminToken(t)}
	ctx := context.Background()
	require.NoError(t, env.store.UpsertUser(ctx, &admin.User{ID: "student-1", Email: "s1@sabiprep.test"}))

	w := env.do(t, http.MethodPatch, "/api/admin/users/student-1/role", roleRequest{Role: auth.RoleAdmin}, as)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, auth.RoleAdmin, decode[admin.User](t, w).Role)

	w = env.do(t, http.MethodPatch, "/api/admin/users/"+env.adminID+"/role", roleRequest{Role: auth.RoleStudent}, as)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, "/api/admin/users/student-1/status", statusRequest{Status: admin.UserSuspended}, as)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, admin.UserSuspended, decode[admin.User](t, w).Status)

	w = env.do(t, http.MethodPatch, "/api/admin/users/nobody/status", statusRequest{Status: admin.UserSuspended}, as)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/admin/audit-logs?action=ROLE_CHANGE", nil, as)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode[admin.Page[audit.Entry]](t, w)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "student-1", page.Items[0].EntityID)
	assert.Equal(t, "admin", page.Items[0].Details["new_role"])
	assert.Equal(t, 50, page.PageSize)

	w = env.do(t, http.MethodGet, "/api/admin/audit-logs?page_size=1&page=2", nil, as)
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[admin.Page[audit.Entry]](t, w)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Items, 1)

	w = env.do(t, http.MethodGet, "/api/admin/audit-logs?action=NUKE", nil, as)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/admin/audit-logs?from=yesterday", nil, as)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
