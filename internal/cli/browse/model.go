// Package browse is the interactive invoice table of portalctl.
package browse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	invoicedomain "github.com/smallbiznis/billingportal/internal/invoice/domain"
	"github.com/smallbiznis/billingportal/internal/invoice/download"
	"github.com/smallbiznis/billingportal/internal/invoice/filter"
	"github.com/smallbiznis/billingportal/internal/invoice/format"
	"github.com/smallbiznis/billingportal/internal/invoice/table"
)

// Lister fetches the invoices of one user.
type Lister interface {
	ListInvoices(ctx context.Context, userID int64) ([]invoicedomain.Invoice, error)
}

type invoicesMsg struct {
	invoices []invoicedomain.Invoice
	err      error
}

type downloadDoneMsg struct {
	invoiceID int64
	location  string
	err       error
}

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Download key.Binding
	Search   key.Binding
	Refresh  key.Binding
	Back     key.Binding
	Quit     key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Download, k.Search, k.Refresh, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp(), {k.Back}}
}

var keys = keyMap{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Download: key.NewBinding(key.WithKeys("enter", "d"), key.WithHelp("enter", "download")),
	Search:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "done searching")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#bbbbbb"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff")).Background(lipgloss.Color("#3C3C6E"))
	busyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#828282")).Italic(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5fd787"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#828282"))
)

const downloadLabel = "Download"

// Options configures a Model.
type Options struct {
	UserID    int64
	Lister    Lister
	Fetcher   download.Fetcher
	Tracker   *download.Tracker
	Saver     download.Saver
	Formatter format.Formatter
	BusyLabel string
	Recorder  download.Recorder
}

// Model lists a user's invoices, narrows them with a search box and downloads
// the selected row. Downloads run as commands; any number may be in flight,
// one per invoice id.
type Model struct {
	ctx        context.Context
	userID     int64
	lister     Lister
	downloader *download.Downloader
	saver      download.Saver
	formatter  format.Formatter
	busyLabel  string

	search  textinput.Model
	help    help.Model
	all     []invoicedomain.Invoice
	view    filter.View
	table   table.Table
	cursor  int
	loading bool
	err     error
	status  string
	pending map[int64]bool
}

func New(ctx context.Context, opts Options) *Model {
	search := textinput.New()
	search.Prompt = "Search: "
	search.Placeholder = "description, subscription or invoice id"
	search.CharLimit = 64

	busy := strings.TrimSpace(opts.BusyLabel)
	if busy == "" {
		busy = "Downloading..."
	}
	tracker := opts.Tracker
	if tracker == nil {
		tracker = download.NewTracker(nil)
	}

	return &Model{
		ctx:        ctx,
		userID:     opts.UserID,
		lister:     opts.Lister,
		downloader: download.NewDownloader(opts.Fetcher, tracker, nil, opts.Recorder),
		saver:      opts.Saver,
		formatter:  opts.Formatter,
		busyLabel:  busy,
		search:     search,
		help:       help.New(),
		loading:    true,
		pending:    make(map[int64]bool),
	}
}

func (m *Model) Init() tea.Cmd {
	return m.load()
}

func (m *Model) load() tea.Cmd {
	ctx, lister, userID := m.ctx, m.lister, m.userID
	return func() tea.Msg {
		invoices, err := lister.ListInvoices(ctx, userID)
		return invoicesMsg{invoices: invoices, err: err}
	}
}

func (m *Model) download(invoiceID int64) tea.Cmd {
	ctx, d, saver, userID := m.ctx, m.downloader, m.saver, m.userID
	return func() tea.Msg {
		location, err := d.Download(ctx, userID, invoiceID, saver)
		return downloadDoneMsg{invoiceID: invoiceID, location: location, err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil

	case invoicesMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.all = msg.invoices
		}
		m.refilter()
		return m, nil

	case downloadDoneMsg:
		delete(m.pending, msg.invoiceID)
		label := format.InvoiceLabel(msg.invoiceID)
		if msg.err != nil {
			m.status = ""
			m.err = fmt.Errorf("download failed for invoice %s: %w", label, msg.err)
			return m, nil
		}
		m.err = nil
		m.status = fmt.Sprintf("Saved invoice %s to %s", label, msg.location)
		return m, nil

	case tea.KeyMsg:
		if m.search.Focused() {
			return m.updateSearch(msg)
		}
		return m.updateList(msg)
	}

	if m.search.Focused() {
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		return m, tea.Quit
	case key.Matches(msg, keys.Back), msg.Type == tea.KeyEnter:
		m.search.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.refilter()
	return m, cmd
}

func (m *Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Search):
		return m, m.search.Focus()
	case key.Matches(msg, keys.Back):
		m.search.SetValue("")
		m.refilter()
	case key.Matches(msg, keys.Refresh):
		m.loading = true
		m.status = ""
		m.err = nil
		return m, m.load()
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.table.Rows)-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.Download):
		return m.startDownload()
	}
	return m, nil
}

func (m *Model) startDownload() (tea.Model, tea.Cmd) {
	if m.loading || len(m.table.Rows) == 0 {
		return m, nil
	}
	id := m.table.Rows[m.cursor].InvoiceID
	if m.busy(id) {
		m.err = fmt.Errorf("invoice %s: %w", format.InvoiceLabel(id), invoicedomain.ErrDownloadInProgress)
		return m, nil
	}
	m.pending[id] = true
	m.err = nil
	m.status = ""
	return m, m.download(id)
}

// busy covers the gap between dispatching a download and its Begin.
func (m *Model) busy(invoiceID int64) bool {
	return m.pending[invoiceID] || m.downloader.Tracker().Busy(invoiceID)
}

func (m *Model) refilter() {
	m.view = filter.NewView(m.all, m.search.Value())
	m.table = table.Build(m.view.Invoices, m.formatter)
	if m.cursor >= len(m.table.Rows) {
		m.cursor = max(len(m.table.Rows)-1, 0)
	}
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Invoices for user %d", m.userID)))
	b.WriteString("\n\n")
	b.WriteString(m.search.View())
	b.WriteString("\n\n")

	switch {
	case m.loading:
		b.WriteString(mutedStyle.Render("Loading invoices..."))
		b.WriteString("\n")
	case m.err != nil && len(m.all) == 0:
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	default:
		b.WriteString(m.viewTable())
	}

	if m.status != "" {
		b.WriteString("\n" + successStyle.Render(m.status) + "\n")
	}
	if m.err != nil && len(m.all) > 0 {
		b.WriteString("\n" + errorStyle.Render("Error: "+m.err.Error()) + "\n")
	}
	b.WriteString("\n" + m.help.View(keys))
	return b.String()
}

func (m *Model) viewTable() string {
	switch m.view.State() {
	case filter.StateNoInvoices:
		return mutedStyle.Render("No invoices yet") + "\n"
	case filter.StateNoMatches:
		return mutedStyle.Render(fmt.Sprintf("No matching invoices (0 of %d)", m.view.Total)) + "\n"
	}

	widths := m.columnWidths()
	var b strings.Builder

	header := make([]string, len(m.table.Columns))
	for i, col := range m.table.Columns {
		header[i] = lipgloss.NewStyle().Width(widths[i]).Render(col.Label)
	}
	b.WriteString("  " + headerStyle.Render(strings.Join(header, "  ")) + "\n")

	tracker := m.downloader.Tracker()
	for r, row := range m.table.Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			text := cell.Text
			if cell.Column.IsAction() {
				text = m.actionText(row.InvoiceID)
			}
			cells[i] = lipgloss.NewStyle().Width(widths[i]).Render(text)
		}
		line := strings.Join(cells, "  ")
		if r == m.cursor {
			b.WriteString("> " + selectedStyle.Render(line))
		} else {
			b.WriteString("  " + line)
		}
		if state := tracker.State(row.InvoiceID); state.Status == download.StatusError {
			b.WriteString("  " + errorStyle.Render("last download failed"))
		}
		b.WriteString("\n")
	}

	if m.view.Query != "" {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("%d of %d invoices", len(m.view.Invoices), m.view.Total)) + "\n")
	}
	return b.String()
}

func (m *Model) actionText(invoiceID int64) string {
	if m.busy(invoiceID) {
		return busyStyle.Render(m.busyLabel)
	}
	return downloadLabel
}

func (m *Model) columnWidths() []int {
	widths := make([]int, len(m.table.Columns))
	for i, col := range m.table.Columns {
		widths[i] = lipgloss.Width(col.Label)
		if col.IsAction() {
			widths[i] = max(widths[i], lipgloss.Width(downloadLabel), lipgloss.Width(m.busyLabel))
		}
	}
	for _, row := range m.table.Rows {
		for i, cell := range row.Cells {
			widths[i] = max(widths[i], lipgloss.Width(cell.Text))
		}
	}
	return widths
}

// Run drives the model until the user quits or ctx is cancelled.
func Run(ctx context.Context, m *Model) error {
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
