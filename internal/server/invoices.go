package server

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/billingportal/internal/apiclient"
	"github.com/smallbiznis/billingportal/internal/auth/session"
	invoicedomain "github.com/smallbiznis/billingportal/internal/invoice/domain"
	"github.com/smallbiznis/billingportal/internal/invoice/download"
	"github.com/smallbiznis/billingportal/internal/invoice/filter"
	"github.com/smallbiznis/billingportal/internal/invoice/format"
	"github.com/smallbiznis/billingportal/internal/invoice/table"
	"github.com/smallbiznis/billingportal/internal/observability/logger"
)

type invoiceCell struct {
	Text     string
	IsAction bool
}

type invoiceRow struct {
	InvoiceID   int64
	Label       string
	Busy        bool
	Failed      bool
	DownloadURL string
	Cells       []invoiceCell
}

type invoicesPage struct {
	Layout    Layout
	UserID    int64
	Query     string
	State     string
	Total     int
	Shown     int
	Columns   []table.Column
	Rows      []invoiceRow
	BusyLabel string
	// DownloadsURL is polled by the page while a row is busy.
	DownloadsURL string
}

const (
	invoiceStateResults    = "results"
	invoiceStateNoInvoices = "no_invoices"
	invoiceStateNoMatches  = "no_matches"
)

// ListInvoices renders the user's invoices narrowed by ?q=.
func (s *Server) ListInvoices(c *gin.Context) {
	userID, err := int64Param(c, "id")
	if err != nil {
		s.renderError(c, err)
		return
	}
	sess := currentSession(c)
	query := c.Query("q")

	invoices, err := s.apiFor(sess).ListInvoices(c.Request.Context(), userID)
	if err != nil {
		s.handleAPIError(c, err)
		return
	}

	view := filter.NewView(invoices, query)
	tbl := table.Build(view.Invoices, s.formatter())
	tracker := s.downloads.For(userID)

	rows := make([]invoiceRow, 0, len(tbl.Rows))
	for _, row := range tbl.Rows {
		state := tracker.State(row.InvoiceID)
		out := invoiceRow{
			InvoiceID:   row.InvoiceID,
			Label:       format.InvoiceLabel(row.InvoiceID),
			Busy:        state.Status == download.StatusDownloading,
			Failed:      state.Status == download.StatusError,
			DownloadURL: invoicePDFPath(userID, row.InvoiceID, query),
			Cells:       make([]invoiceCell, 0, len(row.Cells)),
		}
		for _, cell := range row.Cells {
			out.Cells = append(out.Cells, invoiceCell{Text: cell.Text, IsAction: cell.Column.IsAction()})
		}
		rows = append(rows, out)
	}

	s.renderPage(c, http.StatusOK, viewInvoices, invoicesPage{
		Layout:       s.layoutFor(c, "Invoices"),
		UserID:       userID,
		Query:        query,
		State:        invoiceState(view.State()),
		Total:        view.Total,
		Shown:        len(view.Invoices),
		Columns:      tbl.Columns,
		Rows:         rows,
		BusyLabel:    s.display.Get().BusyLabel,
		DownloadsURL: "/api" + userPath(userID) + "/invoices/downloads",
	})
}

// DownloadInvoice streams one invoice PDF as an attachment. The row is busy
// in the user's tracker until the response is written; failures come back to
// the invoice list as a notice.
func (s *Server) DownloadInvoice(c *gin.Context) {
	userID, err := int64Param(c, "id")
	if err != nil {
		s.renderError(c, err)
		return
	}
	invoiceID, err := int64Param(c, "invoiceId")
	if err != nil {
		s.renderError(c, err)
		return
	}
	sess := currentSession(c)
	ctx := c.Request.Context()

	downloader := download.NewUserDownloader(
		s.apiFor(sess),
		s.downloads,
		userID,
		logger.FromContext(ctx),
		s.obsMetrics,
	)
	_, err = downloader.Download(ctx, userID, invoiceID, attachmentSaver{c: c})
	if err == nil {
		return
	}

	_ = c.Error(err)
	if apiclient.StatusCode(err) == http.StatusUnauthorized {
		s.handleAPIError(c, err)
		return
	}

	label := format.InvoiceLabel(invoiceID)
	message := "Download failed for invoice " + label + ": " + downloadFailureMessage(err)
	s.redirectWithFlash(c, sess, session.FlashError, message, invoicesPath(userID, c.Query("q")))
}

// ListDownloadStates reports the download state machine of every tracked row.
func (s *Server) ListDownloadStates(c *gin.Context) {
	userID, err := int64Param(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": s.downloads.For(userID).Snapshot()})
}

// attachmentSaver writes the document straight into the response.
type attachmentSaver struct {
	c *gin.Context
}

func (a attachmentSaver) Save(_ context.Context, doc *apiclient.PDFDocument) (string, error) {
	contentType := strings.TrimSpace(doc.ContentType)
	if contentType == "" {
		contentType = "application/pdf"
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename})
	if disposition == "" {
		return "", errors.New("invalid attachment filename")
	}
	a.c.Header("Content-Disposition", disposition)
	a.c.Header("Cache-Control", "no-store")
	a.c.Data(http.StatusOK, contentType, doc.Data)
	return doc.Filename, nil
}

func downloadFailureMessage(err error) string {
	if errors.Is(err, invoicedomain.ErrDownloadInProgress) {
		return "already downloading"
	}
	_, payload := mapError(err)
	return payload.Message
}

func invoiceState(state filter.State) string {
	switch state {
	case filter.StateNoInvoices:
		return invoiceStateNoInvoices
	case filter.StateNoMatches:
		return invoiceStateNoMatches
	default:
		return invoiceStateResults
	}
}

func invoicesPath(userID int64, query string) string {
	path := userPath(userID) + "/invoices"
	if query != "" {
		path += "?q=" + url.QueryEscape(query)
	}
	return path
}

func invoicePDFPath(userID, invoiceID int64, query string) string {
	path := userPath(userID) + "/invoices/" + strconv.FormatInt(invoiceID, 10) + "/pdf"
	if query != "" {
		path += "?q=" + url.QueryEscape(query)
	}
	return path
}
