package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	accountdomain "github.com/smallbiznis/billingportal/internal/account/domain"
	invoicedomain "github.com/smallbiznis/billingportal/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method        string
	Path          string
	Authorization string
	ContentType   string
	Accept        string
	Body          string
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (f *fakeAPI) record(r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		ContentType:   r.Header.Get("Content-Type"),
		Accept:        r.Header.Get("Accept"),
		Body:          string(body),
	})
	f.mu.Unlock()
}

func (f *fakeAPI) last(t *testing.T) recordedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func newServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, api
}

type observerStub struct {
	mu    sync.Mutex
	calls map[string]int
}

func (o *observerStub) ObserveRequest(op string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = map[string]int{}
	}
	o.calls[op] = status
}

func TestLoginReturnsPlainToken(t *testing.T) {
	srv, api := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "  eyJhbGciOi.token \n")
	})

	token, err := New(srv.URL, "").Login(context.Background(), "a@b.co", "pw")
	require.NoError(t, err)
	assert.Equal(t, "eyJhbGciOi.token", token)

	req := api.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/auth/login", req.Path)
	assert.Empty(t, req.Authorization, "absent token sends no header")
	assert.Equal(t, "application/json", req.ContentType)
	assert.JSONEq(t, `{"email":"a@b.co","password":"pw"}`, req.Body)
}

func TestLoginAcceptsJSONToken(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"token":"abc"}`)
	})

	token, err := New(srv.URL, "").Login(context.Background(), "a@b.co", "pw")
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}

func TestLoginEmptyToken(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := New(srv.URL, "").Login(context.Background(), "a@b.co", "pw")
	assert.ErrorIs(t, err, ErrEmptyToken)
}

func TestLoginFailureCarriesServerText(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "Invalid credentials")
	})

	_, err := New(srv.URL, "").Login(context.Background(), "a@b.co", "bad")
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid credentials", apiErr.Message)
	assert.True(t, IsUnauthorized(err))
}

func TestGenericFallbackMessage(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := New(srv.URL, "tok").GetUserProfile(context.Background(), 5)
	require.Error(t, err)
	assert.EqualError(t, err, "fetch user profile failed: 404")
	assert.True(t, IsNotFound(err))
}

func TestRegisterDefaultsAndMessageField(t *testing.T) {
	srv, api := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"Email already in use"}`)
	})

	err := New(srv.URL, "").Register(context.Background(), accountdomain.RegisterRequest{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Password:  "password1",
	})
	require.Error(t, err)
	assert.EqualError(t, err, "Email already in use")
	assert.JSONEq(t, `{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","password":"password1","bio":"","tier":"NORMAL"}`, api.last(t).Body)
}

func TestRegisterSuccessNoContent(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	err := New(srv.URL, "").Register(context.Background(), accountdomain.RegisterRequest{Email: "x@y.z"})
	assert.NoError(t, err)
}

func TestGetUserProfileSendsBearer(t *testing.T) {
	srv, api := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": 5, "firstName": "Ada", "lastName": "L", "email": "ada@example.com",
			"tier": "PRO", "walletCents": 1000, "walletDollars": 10.0,
		})
	})

	profile, err := New(srv.URL+"/", "tok-1").GetUserProfile(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), profile.WalletCents)
	assert.Equal(t, accountdomain.TierPro, profile.Tier)

	req := api.last(t)
	assert.Equal(t, "/users/5", req.Path)
	assert.Equal(t, "Bearer tok-1", req.Authorization)
	assert.Equal(t, "application/json", req.Accept)
}

func TestUpdateWalletSendsAbsoluteBalance(t *testing.T) {
	srv, api := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":5,"walletCents":1500}`)
	})

	profile, err := New(srv.URL, "tok").UpdateWallet(context.Background(), 5, 1500)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), profile.WalletCents)

	req := api.last(t)
	assert.Equal(t, http.MethodPatch, req.Method)
	assert.JSONEq(t, `{"walletCents":1500}`, req.Body)
}

func TestListInvoices(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":1,"amount":9.99,"description":"Jan"},{"id":2,"amount":5}]`)
	})

	invoices, err := New(srv.URL, "tok").ListInvoices(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.True(t, invoices[0].Has(invoicedomain.FieldDescription))
	assert.False(t, invoices[1].Has(invoicedomain.FieldDescription))
}

func TestListInvoicesNullIsEmpty(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `null`)
	})

	invoices, err := New(srv.URL, "tok").ListInvoices(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, invoices)
	assert.Empty(t, invoices)
}

func TestListInvoicesInvalidJSON(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>`)
	})

	_, err := New(srv.URL, "tok").ListInvoices(context.Background(), 5)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestDownloadInvoicePDF(t *testing.T) {
	srv, api := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="january.pdf"`)
		_, _ = io.WriteString(w, "%PDF-1.7")
	})

	obs := &observerStub{}
	doc, err := New(srv.URL, "tok", WithObserver(obs)).DownloadInvoicePDF(context.Background(), 5, 9)
	require.NoError(t, err)
	assert.Equal(t, "january.pdf", doc.Filename)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, []byte("%PDF-1.7"), doc.Data)
	assert.Equal(t, "/users/5/invoices/9/pdf", api.last(t).Path)
	assert.Equal(t, http.StatusOK, obs.calls["download_invoice_pdf"])
}

func TestDownloadInvoicePDFFallbackName(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "%PDF")
	})

	doc, err := New(srv.URL, "tok").DownloadInvoicePDF(context.Background(), 5, 9)
	require.NoError(t, err)
	assert.Equal(t, "invoice_9.pdf", doc.Filename)
}

func TestDownloadInvoicePDFRejectsOversizedBody(t *testing.T) {
	restore := maxPDFBody
	maxPDFBody = 1024
	t.Cleanup(func() { maxPDFBody = restore })

	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, strings.Repeat("x", 1025))
	})

	doc, err := New(srv.URL, "tok").DownloadInvoicePDF(context.Background(), 5, 9)
	assert.Nil(t, doc)
	assert.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestDownloadInvoicePDFAcceptsBodyAtCap(t *testing.T) {
	restore := maxPDFBody
	maxPDFBody = 1024
	t.Cleanup(func() { maxPDFBody = restore })

	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 1024))
	})

	doc, err := New(srv.URL, "tok").DownloadInvoicePDF(context.Background(), 5, 9)
	require.NoError(t, err)
	assert.Len(t, doc.Data, 1024)
}

func TestListInvoicesRejectsOversizedJSON(t *testing.T) {
	restore := maxJSONBody
	maxJSONBody = 64
	t.Cleanup(func() { maxJSONBody = restore })

	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, "["+strings.Repeat(`{"id":1},`, 20)+`{"id":2}]`)
	})

	_, err := New(srv.URL, "tok").ListInvoices(context.Background(), 5)
	assert.ErrorIs(t, err, ErrResponseTooLarge)
	assert.NotErrorIs(t, err, ErrInvalidResponse)
}

func TestDownloadInvoicePDFFailure(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "Failed to generate PDF")
	})

	doc, err := New(srv.URL, "tok").DownloadInvoicePDF(context.Background(), 5, 9)
	assert.Nil(t, doc)
	assert.EqualError(t, err, "Failed to generate PDF")
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
}

func TestContextCancellation(t *testing.T) {
	release := make(chan struct{})
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(srv.URL, "tok").GetUserProfile(ctx, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, StatusCode(err))
}
