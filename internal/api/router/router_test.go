package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/alumni-core/internal/alumnicsv"
	"github.com/cuongbtq/alumni-core/internal/api/handler"
	"github.com/cuongbtq/alumni-core/internal/auth"
	"github.com/cuongbtq/alumni-core/internal/email"
	"github.com/cuongbtq/alumni-core/internal/objectstore"
	"github.com/cuongbtq/alumni-core/internal/paymenttoken"
	"github.com/cuongbtq/alumni-core/internal/profile"
	"github.com/cuongbtq/alumni-core/internal/queue"
	"github.com/cuongbtq/alumni-core/internal/registration"
	"github.com/cuongbtq/alumni-core/internal/validation"
	"github.com/cuongbtq/alumni-core/internal/worker"
)

const (
	testSecret     = "test-jwt-secret"
	testCronSecret = "cron-secret"
	testKeySecret  = "rzp-key-secret"
	testHookSecret = "rzp-webhook-secret"
)

type stubCovers struct {
	err error
}

func (s stubCovers) ExtractFirstPageAsImage(context.Context, []byte, float64) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte{0xFF, 0xD8, 0xFF}, nil
}

type testEnv struct {
	t        *testing.T
	engine   *gin.Engine
	deps     *handler.Dependencies
	profiles *profile.MemoryRepository
	jobs     *queue.MemoryStore
	storage  *objectstore.MemoryStore
	payments *paymenttoken.MemoryRepository
	mailer   *email.ConsoleSender

	admin  *profile.Profile
	member *profile.Profile
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ids := registration.NewIDFormat("")
	profiles := profile.NewMemoryRepository(nil)
	jobs := queue.NewMemoryStore(nil)
	storage := objectstore.NewMemoryStore(objectstore.Config{AccountID: "acct"})
	payRepo := paymenttoken.NewMemoryRepository()
	mailer := email.NewConsoleSender(email.Config{}, log)

	processor := worker.NewProcessor(worker.ProcessorConfig{Store: jobs, WorkerID: "api-test", Logger: log})
	processor.Register(queue.TypePDFGeneration, worker.HandlerFunc(func(_ context.Context, job *queue.Job) (any, error) {
		var p registration.PDFPayload
		if err := job.DecodePayload(&p); err != nil {
			return nil, err
		}
		if p.UserID == "broken" {
			return nil, registration.ErrNotificationFailed
		}
		return registration.PDFResult{PDFURL: "https://cdn.example.com/" + p.UserID + ".pdf", EmailSent: true, UserID: p.UserID}, nil
	}))

	deps := &handler.Dependencies{
		Logger:         log,
		Jobs:           jobs,
		Processor:      processor,
		Profiles:       profiles,
		IDs:            ids,
		Registration:   registration.NewService(profiles, jobs, nil, ids, log),
		Importer:       alumnicsv.NewImporter(profiles, validation.New(ids), log),
		Payments:       paymenttoken.NewService(payRepo, profiles, paymenttoken.Config{LinkBaseURL: "https://alumni.example.com"}, log),
		Signatures:     paymenttoken.NewSignatureVerifier(testKeySecret, testHookSecret),
		Mailer:         mailer,
		Storage:        storage,
		Covers:         stubCovers{},
		Verifier:       auth.NewVerifier(testSecret, "", profiles),
		CronSecret:     testCronSecret,
		MaxUploadBytes: 32 << 20,
	}

	engine, err := SetupRouter(deps)
	require.NoError(t, err)

	env := &testEnv{
		t:        t,
		engine:   engine,
		deps:     deps,
		profiles: profiles,
		jobs:     jobs,
		storage:  storage,
		payments: payRepo,
		mailer:   mailer,
	}
	env.admin = profiles.Put(profile.Profile{FullName: "Site Admin", Email: "admin@example.com", Role: "super_admin", RegistrationID: "BGHSA-1990-00001"})
	env.member = profiles.Put(profile.Profile{FullName: "Ana Das", Email: "ana@example.com", Role: "alumni_member", RegistrationID: "BGHSA-2011-00003"})
	return env
}

func (e *testEnv) token(userID string) string {
	e.t.Helper()
	tok, err := auth.IssueToken(testSecret, "", userID, time.Hour, time.Now())
	require.NoError(e.t, err)
	return tok
}

type request struct {
	method  string
	path    string
	body    io.Reader
	headers map[string]string
	as      string
}

func (e *testEnv) do(r request) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(r.method, r.path, r.body)
	if r.body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if r.as != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(r.as))
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type formFile struct {
	field, name, contentType string
	data                     []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...formFile) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(request{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get(CorrelationIDHeader))

	env.deps.Ready = func(context.Context) error { return errors.New("db down") }
	w = env.do(request{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCorrelationIDIsEchoed(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(request{method: http.MethodGet, path: "/health", headers: map[string]string{CorrelationIDHeader: "req-42"}})
	assert.Equal(t, "req-42", w.Header().Get(CorrelationIDHeader))
}

func TestAccessControl(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		req     request
		status  int
		message string
	}{
		{
			name:    "no token",
			req:     request{method: http.MethodPost, path: "/api/v1/verification/submit", body: strings.NewReader(`{}`)},
			status:  http.StatusUnauthorized,
			message: "Unauthorized",
		},
		{
			name:    "garbage token",
			req:     request{method: http.MethodGet, path: "/api/v1/admin/jobs", headers: map[string]string{"Authorization": "Bearer nope"}},
			status:  http.StatusUnauthorized,
			message: "Unauthorized",
		},
		{
			name:    "member on admin route",
			req:     request{method: http.MethodGet, path: "/api/v1/admin/jobs", as: env.member.ID},
			status:  http.StatusForbidden,
			message: "Forbidden - Admin access required",
		},
		{
			name:    "caller without profile",
			req:     request{method: http.MethodGet, path: "/api/v1/admin/alumni-export", as: "2b7f1c9e-0000-4000-8000-000000000000"},
			status:  http.StatusForbidden,
			message: "Forbidden - Admin access required",
		},
		{
			name:    "cron route without key",
			req:     request{method: http.MethodPost, path: "/api/v1/admin/process-pdf/next"},
			status:  http.StatusUnauthorized,
			message: "Unauthorized",
		},
		{
			name:    "cron route with wrong key",
			req:     request{method: http.MethodPost, path: "/api/v1/admin/process-pdf/next", headers: map[string]string{CronKeyHeader: "guess"}},
			status:  http.StatusUnauthorized,
			message: "Unauthorized",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(tt.req)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.message, decode(t, w)["error"])
		})
	}
}

func TestCronKeyPing(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(request{method: http.MethodGet, path: "/api/v1/admin/process-pdf/next", headers: map[string]string{CronKeyHeader: testCronSecret}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["ok"])
}

func TestProcessNextPDF(t *testing.T) {
	env := newTestEnv(t)
	cron := map[string]string{CronKeyHeader: testCronSecret}

	w := env.do(request{method: http.MethodPost, path: "/api/v1/admin/process-pdf/next", headers: cron})
	assert.Equal(t, http.StatusNoContent, w.Code)

	id, err := env.jobs.AddJob(context.Background(), queue.TypePDFGeneration, registration.PDFPayload{UserID: env.member.ID})
	require.NoError(t, err)

	w = env.do(request{method: http.MethodPost, path: "/api/v1/admin/process-pdf/next", headers: cron})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, id, body["jobId"])

	job, err := env.jobs.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, job.Status)
}

func TestProcessPDF(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pending, err := env.jobs.AddJob(ctx, queue.TypePDFGeneration, registration.PDFPayload{UserID: env.member.ID})
	require.NoError(t, err)
	broken, err := env.jobs.Enqueue(ctx, queue.NewJob{Type: queue.TypePDFGeneration, Payload: registration.PDFPayload{UserID: "broken"}, MaxAttempts: 1})
	require.NoError(t, err)

	post := func(body string) *httptest.ResponseRecorder {
		return env.do(request{method: http.MethodPost, path: "/api/v1/admin/process-pdf", body: strings.NewReader(body), as: env.admin.ID})
	}

	w := post(`{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Job ID is required", decode(t, w)["error"])

	w = post(`{"jobId":"8d1f4a52-6c1e-4d7b-9a55-3f0c2b9e7a10"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Job not found", decode(t, w)["error"])

	w = post(`{"jobId":"` + pending + `"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "PDF generated and email sent successfully", body["message"])
	data := body["data"].(map[string]any)
	assert.Equal(t, env.member.ID, data["userId"])

	w = post(`{"jobId":"` + pending + `"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Job is not pending", decode(t, w)["error"])

	w = post(`{"jobId":"` + broken + `"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body = decode(t, w)
	assert.Equal(t, "Failed to send admin notification email", body["error"])
	assert.Equal(t, string(queue.StatusFailed), body["status"])
}

func TestJobRoutes(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(request{
		method: http.MethodPost,
		path:   "/api/v1/admin/jobs",
		body:   strings.NewReader(`{"job_type":"pdf_generation","payload":{"userId":"u-1"},"idempotency_key":"k-1"}`),
		as:     env.admin.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	id := created["job_id"].(string)
	assert.Equal(t, "pending", created["status"])

	// Same key resolves to the same job.
	w = env.do(request{
		method: http.MethodPost,
		path:   "/api/v1/admin/jobs",
		body:   strings.NewReader(`{"job_type":"pdf_generation","payload":{"userId":"u-1"},"idempotency_key":"k-1"}`),
		as:     env.admin.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, id, decode(t, w)["job_id"])

	w = env.do(request{method: http.MethodPost, path: "/api/v1/admin/jobs", body: strings.NewReader(`{"job_type":"  "}`), as: env.admin.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(request{method: http.MethodGet, path: "/api/v1/admin/jobs/" + id, as: env.admin.ID})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(request{method: http.MethodGet, path: "/api/v1/admin/jobs/not-a-uuid", as: env.admin.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(request{method: http.MethodGet, path: "/api/v1/admin/jobs?status=pending&page_size=10", as: env.admin.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["jobs"], 1)

	w = env.do(request{method: http.MethodGet, path: "/api/v1/admin/jobs?status=bogus", as: env.admin.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(request{method: http.MethodGet, path: "/api/v1/admin/jobs?cursor=not-base64!", as: env.admin.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(request{method: http.MethodGet, path: "/api/v1/admin/jobs/stats", as: env.admin.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["pending"])

	w = env.do(request{method: http.MethodPost, path: "/api/v1/admin/jobs/cleanup", as: env.admin.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 30, decode(t, w)["older_than_days"])
}

func TestSubmitVerification(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]any{
		"evidenceFiles": []map[string]any{{"name": "id.png", "url": "https://cdn.example.com/id.png", "size": 10, "type": "image/png"}},
	}
	w := env.do(request{method: http.MethodPost, path: "/api/v1/verification/submit", body: jsonBody(t, body), as: env.member.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, "Verification data submitted successfully", resp["message"])
	data := resp["data"].(map[string]any)
	assert.Equal(t, env.member.ID, data["user_id"])
	assert.NotEmpty(t, data["job_id"])

	stats, err := env.jobs.GetJobStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)

	w = env.do(request{method: http.MethodPost, path: "/api/v1/verification/submit", body: jsonBody(t, map[string]any{}), as: env.member.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, registration.ErrEvidenceOrReferencesRequired.Message, decode(t, w)["error"])

	// A member may not submit for someone else.
	body["userId"] = env.admin.ID
	w = env.do(request{method: http.MethodPost, path: "/api/v1/verification/submit", body: jsonBody(t, body), as: env.member.ID})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUploadEvidence(t *testing.T) {
	env := newTestEnv(t)
	png := formFile{field: "files", name: "id.png", contentType: "image/png", data: []byte("\x89PNG\r\n\x1a\nfake")}

	body, ct := multipartBody(t, nil, png, formFile{field: "files", name: "letter.pdf", contentType: "application/pdf", data: []byte("%PDF-1.4")})
	w := env.do(request{method: http.MethodPost, path: "/api/v1/uploads/evidence", body: body, headers: map[string]string{"Content-Type": ct}, as: env.member.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, "Successfully uploaded 2 file(s)", resp["message"])
	data := resp["data"].(map[string]any)
	assert.EqualValues(t, 2, data["totalFiles"])
	assert.Equal(t, 2, env.storage.Len())

	files := data["files"].([]any)
	key := files[0].(map[string]any)["key"].(string)
	assert.True(t, strings.HasPrefix(key, "evidence/"+env.member.ID+"/"), key)

	var six []formFile
	for range 6 {
		six = append(six, png)
	}
	body, ct = multipartBody(t, nil, six...)
	w = env.do(request{method: http.MethodPost, path: "/api/v1/uploads/evidence", body: body, headers: map[string]string{"Content-Type": ct}, as: env.member.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Maximum 5 files allowed", decode(t, w)["error"])

	body, ct = multipartBody(t, map[string]string{"userId": env.member.ID})
	w = env.do(request{method: http.MethodPost, path: "/api/v1/uploads/evidence", body: body, headers: map[string]string{"Content-Type": ct}, as: env.member.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No files provided", decode(t, w)["error"])
}

func TestPresignEvidence(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/v1/uploads/evidence/presign"

	w := env.do(request{method: http.MethodPost, path: path, body: jsonBody(t, map[string]any{"fileName": "id card.png"}), as: env.member.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]any)
	key := data["key"].(string)
	assert.True(t, strings.HasPrefix(key, "evidence/"+env.member.ID+"/"), key)
	assert.Contains(t, data["uploadUrl"], "expires=3600")
	assert.EqualValues(t, 3600, data["expiresIn"])
	assert.Equal(t, 0, env.storage.Len())

	w = env.do(request{method: http.MethodPost, path: path, body: jsonBody(t, map[string]any{}), as: env.member.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(request{method: http.MethodPost, path: path, body: jsonBody(t, map[string]any{"fileName": "x.png", "userId": env.admin.ID}), as: env.member.ID})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(request{method: http.MethodPost, path: path, body: jsonBody(t, map[string]any{"fileName": "x.png"})})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUploadSouvenir(t *testing.T) {
	pdf := formFile{field: "file", name: "book.pdf", contentType: "application/pdf", data: []byte("%PDF-1.4 souvenir")}

	tests := []struct {
		name    string
		fields  map[string]string
		files   []formFile
		status  int
		message string
	}{
		{name: "no file", fields: map[string]string{"year": "2020"}, status: http.StatusBadRequest, message: "No file provided"},
		{name: "no year", files: []formFile{pdf}, status: http.StatusBadRequest, message: "Year is required"},
		{name: "bad year", fields: map[string]string{"year": "1800"}, files: []formFile{pdf}, status: http.StatusBadRequest, message: "Invalid year. Must be between 1900 and 2100"},
		{
			name:    "not a pdf",
			fields:  map[string]string{"year": "2020"},
			files:   []formFile{{field: "file", name: "book.png", contentType: "image/png", data: []byte("x")}},
			status:  http.StatusBadRequest,
			message: "Only PDF files are allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			body, ct := multipartBody(t, tt.fields, tt.files...)
			w := env.do(request{method: http.MethodPost, path: "/api/v1/admin/souvenirs", body: body, headers: map[string]string{"Content-Type": ct}, as: env.admin.ID})
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.message, decode(t, w)["error"])
		})
	}

	t.Run("uploads pdf and cover", func(t *testing.T) {
		env := newTestEnv(t)
		body, ct := multipartBody(t, map[string]string{"year": "2020", "title": "Reunion"}, pdf)
		w := env.do(request{method: http.MethodPost, path: "/api/v1/admin/souvenirs", body: body, headers: map[string]string{"Content-Type": ct}, as: env.admin.ID})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		data := decode(t, w)["data"].(map[string]any)
		assert.Contains(t, data["pdf_url"], "souvenirs/2020/")
		assert.Contains(t, data["cover_image_url"], "souvenirs/2020/cover.jpg")
		_, ctype, ok := env.storage.Get("souvenirs/2020/cover.jpg")
		require.True(t, ok)
		assert.Equal(t, "image/jpeg", ctype)
	})

	t.Run("cover failure is not fatal", func(t *testing.T) {
		env := newTestEnv(t)
		env.deps.Covers = stubCovers{err: errors.New("render timed out")}
		engine, err := SetupRouter(env.deps)
		require.NoError(t, err)
		env.engine = engine

		body, ct := multipartBody(t, map[string]string{"year": "2021"}, pdf)
		w := env.do(request{method: http.MethodPost, path: "/api/v1/admin/souvenirs", body: body, headers: map[string]string{"Content-Type": ct}, as: env.admin.ID})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		data := decode(t, w)["data"].(map[string]any)
		assert.Nil(t, data["cover_image_url"])
		assert.Equal(t, 1, env.storage.Len())
	})
}

func TestPaymentTokenFlow(t *testing.T) {
	env := newTestEnv(t)
	env.payments.AddConfig(paymenttoken.PaymentConfig{ID: "cfg-1", Category: paymenttoken.CategoryRegistrationFee, Amount: 50000, Currency: "INR", IsActive: true})

	w := env.do(request{method: http.MethodPost, path: "/api/v1/payments/validate-token", body: strings.NewReader(`{}`)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]any{"valid": false, "error": "Token is required"}, decode(t, w))

	w = env.do(request{
		method: http.MethodPost,
		path:   "/api/v1/admin/payments/registration-link",
		body:   jsonBody(t, map[string]any{"userId": env.member.ID, "sendEmail": true}),
		as:     env.admin.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]any)
	token := data["token"].(string)
	assert.EqualValues(t, 50000, data["amount"])
	assert.Equal(t, true, data["emailSent"])
	assert.Equal(t, "https://alumni.example.com/payments/registration/"+token, data["paymentLink"])
	require.Len(t, env.mailer.Sent(), 1)
	assert.Equal(t, env.member.Email, env.mailer.Sent()[0].To[0].Address)

	w = env.do(request{method: http.MethodPost, path: "/api/v1/payments/validate-token", body: jsonBody(t, map[string]string{"token": token})})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	valid := decode(t, w)
	assert.Equal(t, true, valid["valid"])
	assert.Equal(t, env.member.ID, valid["userId"])

	w = env.do(request{method: http.MethodGet, path: "/api/v1/payments/registration/" + token})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(request{method: http.MethodPost, path: "/api/v1/payments/mark-token-used", body: strings.NewReader(`{"token":""}`)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]any{"success": false, "error": "Token is required"}, decode(t, w))

	w = env.do(request{method: http.MethodPost, path: "/api/v1/payments/mark-token-used", body: jsonBody(t, map[string]string{"token": token})})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Token marked as used", decode(t, w)["message"])

	w = env.do(request{method: http.MethodPost, path: "/api/v1/payments/validate-token", body: jsonBody(t, map[string]string{"token": token})})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, paymenttoken.MsgAlreadyUsed, decode(t, w)["error"])
}

func TestRegistrationLinkRejectsSettledProfile(t *testing.T) {
	env := newTestEnv(t)
	env.profiles.SetPaymentStatus(env.member.ID, profile.PaymentPaid)

	w := env.do(request{
		method: http.MethodPost,
		path:   "/api/v1/admin/payments/registration-link",
		body:   jsonBody(t, map[string]any{"userId": env.member.ID, "amount": 100}),
		as:     env.admin.ID,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, paymenttoken.MsgAlreadyPaid, decode(t, w)["error"])
}

func TestVerifySignature(t *testing.T) {
	env := newTestEnv(t)
	sig := paymenttoken.Sign(testKeySecret, []byte("order_1|pay_1"))

	w := env.do(request{method: http.MethodPost, path: "/api/v1/payments/verify-signature", body: jsonBody(t, map[string]string{
		"razorpay_order_id": "order_1", "razorpay_payment_id": "pay_1", "razorpay_signature": sig,
	})})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["success"])

	w = env.do(request{method: http.MethodPost, path: "/api/v1/payments/verify-signature", body: jsonBody(t, map[string]string{
		"razorpay_order_id": "order_1", "razorpay_payment_id": "pay_2", "razorpay_signature": sig,
	})})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(request{method: http.MethodPost, path: "/api/v1/payments/verify-signature", body: strings.NewReader(`{}`)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing required payment verification fields", decode(t, w)["message"])
}

func TestWebhook(t *testing.T) {
	env := newTestEnv(t)
	payload := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","notes":{}}}}}`)

	w := env.do(request{method: http.MethodPost, path: "/api/v1/payments/webhook", body: bytes.NewReader(payload), headers: map[string]string{"X-Razorpay-Signature": "deadbeef"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid webhook signature", decode(t, w)["error"])

	w = env.do(request{
		method:  http.MethodPost,
		path:    "/api/v1/payments/webhook",
		body:    bytes.NewReader(payload),
		headers: map[string]string{"X-Razorpay-Signature": paymenttoken.Sign(testHookSecret, payload)},
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAlumniExportAndImports(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(request{method: http.MethodGet, path: "/api/v1/admin/alumni-export", as: env.admin.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, alumnicsv.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="alumni-export-`)
	assert.True(t, strings.HasPrefix(w.Body.String(), "Old Registration Number,Registration Number,"))

	csv := strings.Join(alumnicsv.Header, ",") + "\n" +
		",BGHSA-2005-00042,new@example.com,,,Rita,,Sen,10,2005,,,,,,,,,,,FALSE,,\n"
	body, ct := multipartBody(t, nil, formFile{field: "file", name: "alumni.csv", contentType: "text/csv", data: []byte(csv)})
	w = env.do(request{method: http.MethodPost, path: "/api/v1/admin/alumni-imports", body: body, headers: map[string]string{"Content-Type": ct}, as: env.admin.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode(t, w)["data"].(map[string]any)
	assert.EqualValues(t, 1, res["created"])

	w = env.do(request{method: http.MethodGet, path: "/api/v1/admin/alumni-imports", as: env.admin.ID})
	require.Equal(t, http.StatusOK, w.Code)
	users := decode(t, w)["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "BGHSA-2005-00042", users[0].(map[string]any)["registration_id"])

	w = env.do(request{method: http.MethodGet, path: "/api/v1/admin/alumni-imports?dateFilter=yesterday", as: env.admin.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(request{method: http.MethodGet, path: "/api/v1/admin/alumni-imports?dateFilter=1999-01-01", as: env.admin.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["users"])
}

func TestAlumniExportEmpty(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	// The caller's profile lives in a separate store so the export sees no rows.
	callers := profile.NewMemoryRepository(nil)
	admin := callers.Put(profile.Profile{Role: "super_admin"})
	deps := &handler.Dependencies{
		Logger:   log,
		Profiles: profile.NewMemoryRepository(nil),
		Verifier: auth.NewVerifier(testSecret, "", callers),
	}
	engine, err := SetupRouter(deps)
	require.NoError(t, err)

	tok, err := auth.IssueToken(testSecret, "", admin.ID, time.Hour, time.Now())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/alumni-export", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No alumni data found", decode(t, w)["error"])
}
