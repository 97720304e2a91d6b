package domain

import "errors"

var (
	ErrInvoiceNotFound    = errors.New("invoice not found")
	ErrDownloadInProgress = errors.New("download already in progress")
)
