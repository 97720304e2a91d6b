package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
	"github.com/smallbiznis/billingportal/internal/cli/browse"
	invoicedomain "github.com/smallbiznis/billingportal/internal/invoice/domain"
	"github.com/smallbiznis/billingportal/internal/invoice/download"
	"github.com/smallbiznis/billingportal/internal/invoice/filter"
	"github.com/smallbiznis/billingportal/internal/invoice/format"
	"github.com/smallbiznis/billingportal/internal/invoice/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const defaultParallel = 4

func newInvoicesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "invoices",
		Aliases: []string{"invoice"},
		Short:   "List, download and browse invoices",
	}
	cmd.AddCommand(newInvoicesListCmd(a))
	cmd.AddCommand(newInvoicesDownloadCmd(a))
	cmd.AddCommand(newInvoicesBrowseCmd(a))
	return cmd
}

type invoiceListOutput struct {
	Query    string                  `json:"query,omitempty"`
	Total    int                     `json:"total"`
	Shown    int                     `json:"shown"`
	Invoices []invoicedomain.Invoice `json:"invoices"`
}

func newInvoicesListCmd(a *app) *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "list [userId]",
		Short: "List a user's invoices",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, creds, err := a.authed()
			if err != nil {
				return err
			}
			userID, err := userIDArg(args, creds)
			if err != nil {
				return err
			}

			invoices, err := api.ListInvoices(cmd.Context(), userID)
			if err != nil {
				return err
			}
			view := filter.NewView(invoices, search)

			out := cmd.OutOrStdout()
			if a.jsonOutput() {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(invoiceListOutput{
					Query:    view.Query,
					Total:    view.Total,
					Shown:    len(view.Invoices),
					Invoices: view.Invoices,
				})
			}
			renderInvoiceList(out, view, a.formatter())
			return nil
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "only show invoices matching this text")
	return cmd
}

func renderInvoiceList(w io.Writer, view filter.View, f format.Formatter) {
	switch view.State() {
	case filter.StateNoInvoices:
		mutedColor.Fprintln(w, "No invoices yet")
		return
	case filter.StateNoMatches:
		mutedColor.Fprintf(w, "No matching invoices for %q (0 of %d)\n", view.Query, view.Total)
		return
	}

	tbl := table.Build(view.Invoices, f)
	headers := make([]string, len(tbl.Columns))
	for i, col := range tbl.Columns {
		headers[i] = col.Label
	}
	rows := make([][]string, 0, len(tbl.Rows))
	for _, row := range tbl.Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = cell.Text
			if cell.Column.IsAction() {
				cells[i] = fmt.Sprintf("invoices download %d", row.InvoiceID)
			}
		}
		rows = append(rows, cells)
	}

	t := ltable.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(w, t.String())

	if view.Query != "" {
		mutedColor.Fprintf(w, "%d of %d invoices\n", len(view.Invoices), view.Total)
	}
}

type downloadResult struct {
	InvoiceID int64  `json:"invoiceId"`
	Location  string `json:"location,omitempty"`
	Error     string `json:"error,omitempty"`
}

func newInvoicesDownloadCmd(a *app) *cobra.Command {
	var (
		dir      string
		parallel int
	)

	cmd := &cobra.Command{
		Use:     "download <userId> <invoiceId>...",
		Short:   "Save invoice PDFs to a directory",
		Example: `  portalctl invoices download 42 1001 1002 --dir ./invoices`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID("user id", args[0])
			if err != nil {
				return err
			}
			ids, err := invoiceIDs(args[1:])
			if err != nil {
				return err
			}
			api, _, err := a.authed()
			if err != nil {
				return err
			}

			d := download.NewDownloader(api, download.NewTracker(nil), a.log, nil)
			results := downloadAll(cmd.Context(), d, userID, ids, download.DirSaver{Dir: dir}, parallel)

			out := cmd.OutOrStdout()
			if a.jsonOutput() {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			}

			failed := 0
			for _, r := range results {
				label := format.InvoiceLabel(r.InvoiceID)
				if r.Error != "" {
					failed++
					if !a.jsonOutput() {
						failure(out, "Download failed for invoice %s: %s", label, r.Error)
					}
					continue
				}
				if !a.jsonOutput() {
					success(out, "Saved invoice %s to %s", label, r.Location)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d downloads failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "directory to save PDFs in")
	cmd.Flags().IntVar(&parallel, "parallel", defaultParallel, "downloads to run at once")
	return cmd
}

// downloadAll runs one download per id, at most parallel at a time. Every id
// is attempted; a failure never cancels the others. Results keep the order
// of ids.
func downloadAll(ctx context.Context, d *download.Downloader, userID int64, ids []int64, saver download.Saver, parallel int) []downloadResult {
	if parallel < 1 {
		parallel = 1
	}
	results := make([]downloadResult, len(ids))

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, id := range ids {
		g.Go(func() error {
			location, err := d.Download(ctx, userID, id, saver)
			results[i] = downloadResult{InvoiceID: id, Location: location}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// invoiceIDs parses ids and drops repeats, keeping first-seen order.
func invoiceIDs(args []string) ([]int64, error) {
	seen := make(map[int64]struct{}, len(args))
	ids := make([]int64, 0, len(args))
	for _, raw := range args {
		id, err := parseID("invoice id", raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func newInvoicesBrowseCmd(a *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "browse [userId]",
		Short: "Browse, search and download invoices interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, creds, err := a.authed()
			if err != nil {
				return err
			}
			userID, err := userIDArg(args, creds)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			model := browse.New(ctx, browse.Options{
				UserID:    userID,
				Lister:    api,
				Fetcher:   api,
				Tracker:   download.NewTracker(nil),
				Saver:     download.DirSaver{Dir: dir},
				Formatter: a.formatter(),
				BusyLabel: a.settings.Display.BusyLabel,
			})
			return browse.Run(ctx, model)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "directory to save PDFs in")
	return cmd
}
