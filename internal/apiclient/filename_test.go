package apiclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilenameFromDisposition(t *testing.T) {
	cases := []struct {
		header string
		want   string
		ok     bool
	}{
		{`attachment; filename="invoice_12.pdf"`, "invoice_12.pdf", true},
		{`attachment; filename=plain.pdf`, "plain.pdf", true},
		{`attachment; filename*=UTF-8''r%C3%A9sum%C3%A9.pdf`, "résumé.pdf", true},
		{`attachment; filename="fallback.pdf"; filename*=UTF-8''preferred.pdf`, "preferred.pdf", true},
		{`attachment; filename="../../etc/passwd"`, "passwd", true},
		{`attachment; filename="C:\\temp\\doc.pdf"`, "doc.pdf", true},
		{`attachment`, "", false},
		{`attachment; filename=".."`, "", false},
		{``, "", false},
		{`;;;`, "", false},
	}
	for _, tc := range cases {
		got, ok := FilenameFromDisposition(tc.header)
		assert.Equal(t, tc.ok, ok, tc.header)
		assert.Equal(t, tc.want, got, tc.header)
	}
}

func TestDefaultPDFFilename(t *testing.T) {
	assert.Equal(t, "invoice_42.pdf", DefaultPDFFilename(42))
}
