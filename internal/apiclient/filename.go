package apiclient

import (
	"mime"
	"strconv"
	"strings"
)

// DefaultPDFFilename is used when the response names no file.
func DefaultPDFFilename(invoiceID int64) string {
	return "invoice_" + strconv.FormatInt(invoiceID, 10) + ".pdf"
}

// FilenameFromDisposition extracts a safe base filename from a
// Content-Disposition header. filename* (RFC 5987) wins over filename.
func FilenameFromDisposition(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return "", false
	}
	name := baseName(params["filename"])
	if name == "" {
		return "", false
	}
	return name, true
}

func baseName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	switch name {
	case "", ".", "..":
		return ""
	}
	return name
}
