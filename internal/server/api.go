package server

import (
	"context"

	accountdomain "github.com/smallbiznis/billingportal/internal/account/domain"
	"github.com/smallbiznis/billingportal/internal/apiclient"
	invoicedomain "github.com/smallbiznis/billingportal/internal/invoice/domain"
)

// PortalAPI is the slice of the billing API the portal pages use.
// *apiclient.Client satisfies it.
type PortalAPI interface {
	Login(ctx context.Context, email, password string) (string, error)
	Register(ctx context.Context, req accountdomain.RegisterRequest) error
	GetUserProfile(ctx context.Context, userID int64) (accountdomain.UserProfile, error)
	UpdateWallet(ctx context.Context, userID, walletCents int64) (accountdomain.UserProfile, error)
	ListInvoices(ctx context.Context, userID int64) ([]invoicedomain.Invoice, error)
	DownloadInvoicePDF(ctx context.Context, userID, invoiceID int64) (*apiclient.PDFDocument, error)
}

var _ PortalAPI = (*apiclient.Client)(nil)
