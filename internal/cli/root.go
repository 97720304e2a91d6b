// Package cli implements portalctl, the terminal client of the billing portal.
package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/smallbiznis/billingportal/internal/apiclient"
	"github.com/smallbiznis/billingportal/internal/cli/credentials"
	"github.com/smallbiznis/billingportal/internal/config"
	"github.com/smallbiznis/billingportal/internal/invoice/format"
	"github.com/smallbiznis/billingportal/internal/observability/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// settings is the resolved configuration of one invocation.
type settings struct {
	APIBaseURL      string
	APITimeout      time.Duration
	CredentialsFile string
	Display         config.DisplayConfig
}

// app carries what every subcommand needs. It is filled in by the root's
// PersistentPreRunE.
type app struct {
	cfgFile string
	output  string
	verbose bool

	v        *viper.Viper
	settings settings
	log      *zap.Logger
	store    *credentials.Store
}

// NewRootCmd returns the root command for portalctl.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "portalctl",
		Short:         "Billing portal from the terminal",
		Long:          "portalctl signs in to the billing API, shows your profile and wallet, tops the wallet up and lists or downloads invoices.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.portalctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.output, "output", outputText, "output format: json|text")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().String("api-url", "", "billing API base URL")
	_ = a.v.BindPFlag("api_base_url", rootCmd.PersistentFlags().Lookup("api-url"))

	rootCmd.AddCommand(newLoginCmd(a))
	rootCmd.AddCommand(newLogoutCmd(a))
	rootCmd.AddCommand(newRegisterCmd(a))
	rootCmd.AddCommand(newProfileCmd(a))
	rootCmd.AddCommand(newTopUpCmd(a))
	rootCmd.AddCommand(newInvoicesCmd(a))

	return rootCmd
}

func (a *app) init() error {
	switch a.output {
	case outputText, outputJSON:
	default:
		return fmt.Errorf("unsupported output %q: use json or text", a.output)
	}

	if err := a.readConfig(); err != nil {
		return err
	}

	log, err := logger.NewCLI(a.verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.log = log

	store, err := credentials.NewStore(a.settings.CredentialsFile)
	if err != nil {
		return err
	}
	a.store = store
	return nil
}

func (a *app) readConfig() error {
	v := a.v
	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".portalctl"))
			v.SetConfigName("config")
		}
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PORTALCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := config.DefaultDisplayConfig()
	v.SetDefault("api_base_url", config.DefaultAPIBaseURL)
	v.SetDefault("api_timeout", apiclient.DefaultTimeout)
	v.SetDefault("credentials_file", "")
	v.SetDefault("display.date_layout", defaults.DateLayout)
	v.SetDefault("display.currency", defaults.Currency)
	v.SetDefault("display.busy_label", defaults.BusyLabel)

	if err := v.ReadInConfig(); err != nil {
		// Missing default config is fine; an explicit --config must exist.
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	var display config.DisplayConfig
	if err := v.UnmarshalKey("display", &display); err != nil {
		return fmt.Errorf("decode display config: %w", err)
	}

	a.settings = settings{
		APIBaseURL:      strings.TrimRight(strings.TrimSpace(v.GetString("api_base_url")), "/"),
		APITimeout:      v.GetDuration("api_timeout"),
		CredentialsFile: strings.TrimSpace(v.GetString("credentials_file")),
		Display:         config.NewStaticDisplayConfigHolder(display).Get(),
	}
	if a.settings.APIBaseURL == "" {
		a.settings.APIBaseURL = config.DefaultAPIBaseURL
	}
	return nil
}

func (a *app) client(token string) *apiclient.Client {
	timeout := a.settings.APITimeout
	if timeout <= 0 {
		timeout = apiclient.DefaultTimeout
	}
	return apiclient.New(a.settings.APIBaseURL, token,
		apiclient.WithHTTPClient(&http.Client{Timeout: timeout}),
		apiclient.WithLogger(a.log),
	)
}

// authed returns a client for the stored login.
func (a *app) authed() (*apiclient.Client, credentials.Credentials, error) {
	creds, err := a.store.Require()
	if err != nil {
		return nil, credentials.Credentials{}, err
	}
	return a.client(creds.Token), creds, nil
}

func (a *app) formatter() format.Formatter {
	return format.New(a.settings.Display.DateLayout, a.settings.Display.Currency)
}

func (a *app) jsonOutput() bool {
	return a.output == outputJSON
}

// userIDArg resolves the user id positional argument, falling back to the
// one remembered at login.
func userIDArg(args []string, creds credentials.Credentials) (int64, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return parseID("user id", args[0])
	}
	if creds.UserID > 0 {
		return creds.UserID, nil
	}
	return 0, errors.New("user id required: pass it as an argument or log in with --user")
}

func parseID(what, raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", what, raw)
	}
	return id, nil
}

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	labelColor   = color.New(color.FgCyan)
	mutedColor   = color.New(color.Faint)
)

func success(w io.Writer, msg string, args ...any) {
	successColor.Fprintf(w, msg+"\n", args...)
}

func failure(w io.Writer, msg string, args ...any) {
	errorColor.Fprintf(w, msg+"\n", args...)
}

func field(w io.Writer, label, value string) {
	labelColor.Fprintf(w, "%-10s", label+":")
	fmt.Fprintf(w, " %s\n", value)
}
