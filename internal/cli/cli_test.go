package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/smallbiznis/billingportal/internal/apiclient"
	"github.com/smallbiznis/billingportal/internal/cli/credentials"
	"github.com/smallbiznis/billingportal/internal/invoice/download"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

const invoicesPayload = `[
 {"id":1,"subscriptionId":10,"amount":12.5,"description":"Gym membership","createdAt":"2024-02-01T00:00:00","pdfUrl":"#"},
 {"id":2,"subscriptionId":20,"amount":99,"description":"Streaming","createdAt":"2024-03-01T00:00:00","pdfUrl":"#"}
]`

type fakeBilling struct {
	mu          sync.Mutex
	walletCents int64
	invoices    string
	patches     []string
}

func (f *fakeBilling) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, "Bad credentials")
			return
		}
		_, _ = io.WriteString(w, "tok-abc")
	})
	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		_, _ = io.WriteString(w, `{"id":5,"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","tier":"PRO","walletCents":`+
			jsonInt(f.walletCents)+`}`)
	})
	mux.HandleFunc("PATCH /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body struct {
			WalletCents int64 `json:"walletCents"`
		}
		_ = json.Unmarshal(data, &body)
		f.mu.Lock()
		f.patches = append(f.patches, string(data))
		f.walletCents = body.WalletCents
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"id":5,"firstName":"Ada","walletCents":`+jsonInt(body.WalletCents)+`}`)
	})
	mux.HandleFunc("GET /users/{id}/invoices", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, f.invoices)
	})
	mux.HandleFunc("GET /users/{id}/invoices/{invoice}/pdf", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("invoice") == "13" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, "Invoice not found")
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="inv-`+r.PathValue("invoice")+`.pdf"`)
		_, _ = io.WriteString(w, "%PDF-1.7")
	})
	return mux
}

func jsonInt(v int64) string {
	data, _ := json.Marshal(v)
	return string(data)
}

type testEnv struct {
	t       *testing.T
	api     *fakeBilling
	cfgFile string
	store   *credentials.Store
	dir     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	for _, key := range []string{credentials.KeyToken, credentials.KeyEmail, credentials.KeyUserID} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	api := &fakeBilling{walletCents: 1250, invoices: invoicesPayload}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	credsFile := filepath.Join(dir, ".portalctl", ".env")
	cfgFile := filepath.Join(dir, "config.yaml")
	cfg := "api_base_url: " + srv.URL + "\ncredentials_file: " + credsFile + "\napi_timeout: 5s\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(cfg), 0o600))

	store, err := credentials.NewStore(credsFile)
	require.NoError(t, err)
	return &testEnv{t: t, api: api, cfgFile: cfgFile, store: store, dir: dir}
}

func (e *testEnv) signIn() {
	e.t.Helper()
	require.NoError(e.t, e.store.Save(credentials.Credentials{Token: "tok-abc", Email: "ada@example.com", UserID: 5}))
}

func (e *testEnv) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.cfgFile}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestLoginSavesCredentials(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run("ada@example.com\nsecret\n", "login", "--user", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Login successful!")

	creds, err := env.store.Load()
	require.NoError(t, err)
	assert.Equal(t, credentials.Credentials{Token: "tok-abc", Email: "ada@example.com", UserID: 5}, creds)
}

func TestLoginFailureKeepsNoCredentials(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run("", "login", "--email", "ada@example.com")
	require.Error(t, err)

	_, err = env.run("wrong\n", "login", "--email", "ada@example.com")
	require.Error(t, err)
	assert.Equal(t, "Login failed: Bad credentials", err.Error())

	creds, err := env.store.Load()
	require.NoError(t, err)
	assert.False(t, creds.LoggedIn())
}

func TestLoginValidatesInput(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run("not-an-email\nsecret\n", "login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enter a valid email address")
}

func TestRegisterValidatesPasswordLength(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run("short\n", "register", "--first-name", "Ada", "--last-name", "L", "--email", "ada@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password must be at least 8 characters")

	out, err := env.run("long-enough\n", "register", "--first-name", "Ada", "--last-name", "L", "--email", "ada@example.com", "--tier", "pro")
	require.NoError(t, err)
	assert.Contains(t, out, "Account created")
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()

	out, err := env.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out.")

	_, err = env.run("", "profile")
	assert.ErrorIs(t, err, credentials.ErrNotLoggedIn)
}

func TestProfileUsesRememberedUser(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()

	out, err := env.run("", "profile")
	require.NoError(t, err)
	assert.Contains(t, out, "Ada Lovelace")
	assert.Contains(t, out, "$12.50")

	out, err = env.run("", "--output", "json", "profile", "5")
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "$12.50", payload["wallet"])
	assert.EqualValues(t, 1250, payload["walletCents"])
}

func TestProfileRejectsBadOutput(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run("", "--output", "yaml", "profile", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output")
}

func TestTopUpWritesAbsoluteBalance(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()

	out, err := env.run("", "topup", "5", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "Wallet topped up with $10.00")
	assert.Contains(t, out, "$22.50")
	require.Len(t, env.api.patches, 1)
	assert.JSONEq(t, `{"walletCents":2250}`, env.api.patches[0])
}

func TestTopUpRejectsInvalidAmount(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()

	_, err := env.run("", "topup", "5", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount must be a number")
	assert.Empty(t, env.api.patches)
}

func TestInvoicesListSearch(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()

	out, err := env.run("", "invoices", "list", "--search", "gym")
	require.NoError(t, err)
	assert.Contains(t, out, "Gym membership")
	assert.NotContains(t, out, "Streaming")
	assert.Contains(t, out, "1 of 2 invoices")

	out, err = env.run("", "invoices", "list", "5", "--search", "zzz")
	require.NoError(t, err)
	assert.Contains(t, out, "No matching invoices")

	out, err = env.run("", "--output", "json", "invoices", "list", "5", "-s", "20")
	require.NoError(t, err)
	var payload invoiceListOutput
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, 2, payload.Total)
	assert.Equal(t, 1, payload.Shown)
	assert.Equal(t, int64(2), payload.Invoices[0].ID)
}

func TestInvoicesListEmpty(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()
	env.api.invoices = `[]`

	out, err := env.run("", "invoices", "list", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "No invoices yet")
}

func TestInvoicesDownloadFailuresAreIndependent(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()
	target := filepath.Join(env.dir, "pdfs")

	out, err := env.run("", "invoices", "download", "5", "1", "13", "2", "1", "--dir", target, "--parallel", "2")
	require.Error(t, err)
	assert.Equal(t, "1 of 3 downloads failed", err.Error())
	assert.Contains(t, out, "Download failed for invoice #13: Invoice not found")

	for _, name := range []string{"inv-1.pdf", "inv-2.pdf"} {
		data, err := os.ReadFile(filepath.Join(target, name))
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.7", string(data))
	}
}

func TestInvoicesDownloadRejectsBadID(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()

	_, err := env.run("", "invoices", "download", "5", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid invoice id "x"`)
}

type slowFetcher struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *slowFetcher) DownloadInvoicePDF(_ context.Context, _ int64, invoiceID int64) (*apiclient.PDFDocument, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	if invoiceID == 3 {
		return nil, errors.New("boom")
	}
	return &apiclient.PDFDocument{Filename: apiclient.DefaultPDFFilename(invoiceID)}, nil
}

type discardSaver struct{}

func (discardSaver) Save(_ context.Context, doc *apiclient.PDFDocument) (string, error) {
	return doc.Filename, nil
}

func TestDownloadAllBoundsParallelism(t *testing.T) {
	fetcher := &slowFetcher{}
	tracker := download.NewTracker(nil)
	d := download.NewDownloader(fetcher, tracker, nil, nil)

	results := downloadAll(context.Background(), d, 5, []int64{1, 2, 3, 4, 5}, discardSaver{}, 2)

	require.Len(t, results, 5)
	assert.LessOrEqual(t, fetcher.peak.Load(), int32(2))
	for i, r := range results {
		assert.Equal(t, int64(i+1), r.InvoiceID)
		if r.InvoiceID == 3 {
			assert.Equal(t, "boom", r.Error)
			continue
		}
		assert.Empty(t, r.Error)
		assert.Equal(t, apiclient.DefaultPDFFilename(r.InvoiceID), r.Location)
	}
	for _, s := range tracker.Snapshot() {
		assert.NotEqual(t, download.StatusDownloading, s.Status)
	}
}

func TestInvoiceIDsDropsRepeats(t *testing.T) {
	ids, err := invoiceIDs([]string{"3", "1", "3"})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, ids)
}
