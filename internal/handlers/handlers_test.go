package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

type handlerFixture struct {
	orders   *stubOrderService
	returns  *stubReturnService
	payments *stubPaymentService
	uploader *stubUploader
	router   chi.Router
}

func newHandlerFixture(t *testing.T, opts ...Option) *handlerFixture {
	t.Helper()

	f := &handlerFixture{
		orders:   &stubOrderService{},
		returns:  &stubReturnService{},
		payments: &stubPaymentService{},
		uploader: &stubUploader{},
	}
	webhook := NewWebhookHandlers(f.payments)
	all := []Option{
		WithOrderRoutes(NewOrderHandlers(f.orders, webhook.HandlePaymentWebhook).Routes),
		WithReturnRoutes(NewReturnHandlers(f.orders, f.returns, f.uploader).Routes),
		WithAdminRoutes(NewAdminHandlers(f.orders, f.returns).Routes),
	}
	all = append(all, opts...)
	f.router = NewRouter(all...)
	return f
}

func (f *handlerFixture) do(t *testing.T, method, target string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, body)
	req.RemoteAddr = "192.0.2.10:4321"
	if body != nil && headers["Content-Type"] == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func asUser(id string) map[string]string {
	return map[string]string{userIDHeader: id}
}

func asAdmin(id string) map[string]string {
	return map[string]string{adminIDHeader: id}
}

func jsonBody(t *testing.T, payload any) *bytes.Reader {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(raw)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return payload
}

func assertErrorEnvelope(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["error"] != code {
		t.Fatalf("error code = %v, want %q", payload["error"], code)
	}
	if int(payload["status"].(float64)) != status {
		t.Fatalf("envelope status = %v, want %d", payload["status"], status)
	}
}

type multipartBody struct {
	buf    bytes.Buffer
	writer *multipart.Writer
}

func newMultipartBody(t *testing.T, fields map[string]string) *multipartBody {
	t.Helper()
	m := &multipartBody{}
	m.writer = multipart.NewWriter(&m.buf)
	for k, v := range fields {
		if err := m.writer.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	return m
}

func (m *multipartBody) addImage(t *testing.T, filename string) {
	t.Helper()
	part, err := m.writer.CreateFormFile("images", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("fake-jpeg-bytes")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
}

func (m *multipartBody) finish(t *testing.T, headers map[string]string) (io.Reader, map[string]string) {
	t.Helper()
	if err := m.writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	merged := map[string]string{"Content-Type": m.writer.FormDataContentType()}
	for k, v := range headers {
		merged[k] = v
	}
	return &m.buf, merged
}
