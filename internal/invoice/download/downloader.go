package download

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/smallbiznis/billingportal/internal/apiclient"
	"go.uber.org/zap"
)

// Fetcher retrieves the PDF of one invoice.
type Fetcher interface {
	DownloadInvoicePDF(ctx context.Context, userID, invoiceID int64) (*apiclient.PDFDocument, error)
}

// Saver persists a fetched document and returns where it went.
type Saver interface {
	Save(ctx context.Context, doc *apiclient.PDFDocument) (string, error)
}

// Recorder counts download outcomes.
type Recorder interface {
	RecordInvoiceDownload(ctx context.Context, outcome string)
}

// rowGate moves one row into downloading and back out.
type rowGate interface {
	Begin(invoiceID int64) error
	End(invoiceID int64, err error)
}

// userGate routes a user's rows through the Registry.
type userGate struct {
	reg    *Registry
	userID int64
}

func (g userGate) Begin(invoiceID int64) error { return g.reg.Begin(g.userID, invoiceID) }

func (g userGate) End(invoiceID int64, err error) { g.reg.End(g.userID, invoiceID, err) }

// Downloader runs fetch-and-save for a row under its Tracker.
type Downloader struct {
	fetcher  Fetcher
	gate     rowGate
	tracker  func() *Tracker
	log      *zap.Logger
	recorder Recorder
}

func NewDownloader(fetcher Fetcher, tracker *Tracker, log *zap.Logger, recorder Recorder) *Downloader {
	d := newDownloader(fetcher, log, recorder)
	d.gate = tracker
	d.tracker = func() *Tracker { return tracker }
	return d
}

// NewUserDownloader tracks rows in the user's Registry entry.
func NewUserDownloader(fetcher Fetcher, reg *Registry, userID int64, log *zap.Logger, recorder Recorder) *Downloader {
	d := newDownloader(fetcher, log, recorder)
	d.gate = userGate{reg: reg, userID: userID}
	d.tracker = func() *Tracker { return reg.For(userID) }
	return d
}

func newDownloader(fetcher Fetcher, log *zap.Logger, recorder Recorder) *Downloader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Downloader{fetcher: fetcher, log: log, recorder: recorder}
}

func (d *Downloader) Tracker() *Tracker {
	return d.tracker()
}

// Download fetches the invoice PDF and hands it to saver. The row is busy for
// the whole call and released on every path.
func (d *Downloader) Download(ctx context.Context, userID, invoiceID int64, saver Saver) (location string, err error) {
	if err := d.gate.Begin(invoiceID); err != nil {
		return "", err
	}
	defer func() {
		d.gate.End(invoiceID, err)
		d.record(ctx, err)
	}()

	doc, err := d.fetcher.DownloadInvoicePDF(ctx, userID, invoiceID)
	if err != nil {
		d.log.Warn("invoice download failed",
			zap.Int64("user_id", userID),
			zap.Int64("invoice_id", invoiceID),
			zap.Error(err),
		)
		return "", err
	}

	location, err = saver.Save(ctx, doc)
	if err != nil {
		d.log.Warn("invoice save failed",
			zap.Int64("invoice_id", invoiceID),
			zap.String("filename", doc.Filename),
			zap.Error(err),
		)
		return "", err
	}

	d.log.Debug("invoice downloaded",
		zap.Int64("invoice_id", invoiceID),
		zap.String("location", location),
		zap.Int("bytes", len(doc.Data)),
	)
	return location, nil
}

func (d *Downloader) record(ctx context.Context, err error) {
	if d.recorder == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	d.recorder.RecordInvoiceDownload(ctx, outcome)
}

// DirSaver writes documents into a directory under their suggested filename.
// It never replaces an existing file: a taken name gets a numeric suffix,
// so concurrent downloads that suggest the same name keep both documents.
type DirSaver struct {
	Dir string
}

const maxNameAttempts = 100

func (s DirSaver) Save(_ context.Context, doc *apiclient.PDFDocument) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	name := filepath.Base(doc.Filename)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		name = "invoice.pdf"
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := range maxNameAttempts {
		candidate := name
		if n > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, n, ext)
		}
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", path, err)
		}
		if err := writeAndClose(f, doc.Data); err != nil {
			return "", err
		}
		return path, nil
	}
	return "", fmt.Errorf("save %s: %d files with that name already exist", name, maxNameAttempts)
}

func writeAndClose(f *os.File, data []byte) error {
	_, err := f.Write(data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return fmt.Errorf("write %s: %w", f.Name(), err)
	}
	return nil
}
