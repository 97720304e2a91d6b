// Package apiclient talks to the remote billing API on behalf of one caller.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	accountdomain "github.com/smallbiznis/billingportal/internal/account/domain"
	invoicedomain "github.com/smallbiznis/billingportal/internal/invoice/domain"
	"github.com/smallbiznis/billingportal/internal/observability/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const DefaultTimeout = 15 * time.Second

// Response body caps. Variables so tests can lower them.
var (
	maxJSONBody int64 = 4 << 20
	maxPDFBody  int64 = 32 << 20
)

// Observer receives one callback per API call.
type Observer interface {
	ObserveRequest(operation string, status int, elapsed time.Duration)
}

type operation struct {
	name  string
	label string
}

var (
	opLogin        = operation{"login", "login"}
	opRegister     = operation{"register", "registration"}
	opGetProfile   = operation{"get_user_profile", "fetch user profile"}
	opUpdateWallet = operation{"update_wallet", "top up wallet"}
	opListInvoices = operation{"list_invoices", "fetch invoices"}
	opDownloadPDF  = operation{"download_invoice_pdf", "download invoice pdf"}
)

// PDFDocument is a downloaded invoice file.
type PDFDocument struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Client is bound to one base URL and one bearer token.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	observer Observer
	log      *zap.Logger
	tracer   trace.Tracer
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// New returns a client for baseURL. An empty token sends no Authorization header.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: DefaultTimeout},
		log:     zap.NewNop(),
		tracer:  otel.Tracer("billingportal/apiclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) HasToken() bool { return c.token != "" }

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	body := map[string]string{"email": email, "password": password}
	var raw []byte
	if err := c.do(ctx, opLogin, http.MethodPost, "/auth/login", body, "text/plain, application/json", &raw); err != nil {
		return "", err
	}
	token := parseToken(raw)
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}

// Register creates an account. Bio defaults to "" and tier to NORMAL.
func (c *Client) Register(ctx context.Context, req accountdomain.RegisterRequest) error {
	if req.Tier == "" {
		req.Tier = accountdomain.TierNormal
	}
	return c.do(ctx, opRegister, http.MethodPost, "/auth/register", req, "application/json", nil)
}

func (c *Client) GetUserProfile(ctx context.Context, userID int64) (accountdomain.UserProfile, error) {
	var out accountdomain.UserProfile
	err := c.do(ctx, opGetProfile, http.MethodGet, userPath(userID), nil, "application/json", &out)
	return out, err
}

// UpdateWallet writes an absolute wallet balance and returns the server's profile.
func (c *Client) UpdateWallet(ctx context.Context, userID, walletCents int64) (accountdomain.UserProfile, error) {
	var out accountdomain.UserProfile
	body := map[string]int64{"walletCents": walletCents}
	err := c.do(ctx, opUpdateWallet, http.MethodPatch, userPath(userID), body, "application/json", &out)
	return out, err
}

func (c *Client) ListInvoices(ctx context.Context, userID int64) ([]invoicedomain.Invoice, error) {
	var out []invoicedomain.Invoice
	if err := c.do(ctx, opListInvoices, http.MethodGet, userPath(userID)+"/invoices", nil, "application/json", &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []invoicedomain.Invoice{}
	}
	return out, nil
}

// DownloadInvoicePDF returns the invoice body as an opaque blob along with
// the filename suggested by Content-Disposition.
func (c *Client) DownloadInvoicePDF(ctx context.Context, userID, invoiceID int64) (*PDFDocument, error) {
	var doc PDFDocument
	path := userPath(userID) + "/invoices/" + strconv.FormatInt(invoiceID, 10) + "/pdf"
	if err := c.do(ctx, opDownloadPDF, http.MethodGet, path, nil, "application/pdf", &doc); err != nil {
		return nil, err
	}
	if doc.Filename == "" {
		doc.Filename = DefaultPDFFilename(invoiceID)
	}
	return &doc, nil
}

// do runs one request. out may be nil, *[]byte for a raw body, *PDFDocument,
// or any JSON target.
func (c *Client) do(ctx context.Context, op operation, method, path string, body any, accept string, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "billingapi."+op.name, trace.WithSpanKind(trace.SpanKindClient))
	start := time.Now()
	status := 0
	defer func() {
		elapsed := time.Since(start)
		if c.observer != nil {
			c.observer.ObserveRequest(op.name, status, elapsed)
		}
		span.SetAttributes(tracing.SafeAttributes(
			attribute.String("http.method", method),
			attribute.Int("http.status_code", status),
		)...)
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, op.name+" failed")
		}
		span.End()
		c.log.Debug("billing api call",
			zap.String("operation", op.name),
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", accept)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	tracing.InjectContext(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op.label, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	limit := maxJSONBody
	if _, ok := out.(*PDFDocument); ok {
		limit = maxPDFBody
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", op.label, err)
	}
	tooLarge := int64(len(data)) > limit
	if tooLarge {
		data = data[:limit]
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(op, resp.StatusCode, errorMessage(op, data))
	}
	if tooLarge {
		return fmt.Errorf("%w: %s: more than %d bytes", ErrResponseTooLarge, op.label, limit)
	}

	switch target := out.(type) {
	case nil:
		return nil
	case *[]byte:
		*target = data
		return nil
	case *PDFDocument:
		target.Data = data
		target.ContentType = resp.Header.Get("Content-Type")
		if name, ok := FilenameFromDisposition(resp.Header.Get("Content-Disposition")); ok {
			target.Filename = name
		}
		return nil
	default:
		if err := json.Unmarshal(data, target); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidResponse, op.label, err)
		}
		return nil
	}
}

// errorMessage picks the server's text. Registration failures use the
// message field of a JSON body; everything else uses the raw body.
func errorMessage(op operation, data []byte) string {
	text := strings.TrimSpace(string(data))
	if op == opRegister && strings.HasPrefix(text, "{") {
		var payload struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &payload); err == nil {
			return strings.TrimSpace(payload.Message)
		}
	}
	return text
}

// parseToken accepts a plain token, a JSON string, or {"token": "..."}.
func parseToken(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	switch {
	case strings.HasPrefix(text, `"`):
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return strings.TrimSpace(s)
		}
	case strings.HasPrefix(text, "{"):
		var payload struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(raw, &payload); err == nil {
			return strings.TrimSpace(payload.Token)
		}
	}
	return text
}

func userPath(userID int64) string {
	return "/users/" + strconv.FormatInt(userID, 10)
}
