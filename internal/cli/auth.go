package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	accountdomain "github.com/smallbiznis/billingportal/internal/account/domain"
	"github.com/smallbiznis/billingportal/internal/auth/session"
	"github.com/smallbiznis/billingportal/internal/cli/credentials"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type loginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type registerInput struct {
	FirstName string `validate:"required"`
	LastName  string `validate:"required"`
	Email     string `validate:"required,email"`
	Password  string `validate:"required,min=8"`
	Tier      string `validate:"omitempty,oneof=NORMAL CORE PRO"`
}

var inputLabels = map[string]string{
	"FirstName": "first name",
	"LastName":  "last name",
	"Email":     "email",
	"Password":  "password",
	"Tier":      "tier",
}

// inputError turns validator failures into one readable line.
func inputError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		label := inputLabels[fe.Field()]
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, label+" is required")
		case "email":
			msgs = append(msgs, "enter a valid email address")
		case "min":
			msgs = append(msgs, label+" must be at least "+fe.Param()+" characters")
		case "oneof":
			msgs = append(msgs, label+" must be one of "+strings.ReplaceAll(fe.Param(), " ", ", "))
		default:
			msgs = append(msgs, label+" is invalid")
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func newLoginCmd(a *app) *cobra.Command {
	var (
		email  string
		userID int64
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the billing API",
		Long: `Sign in with your email and password.

The token is stored in ~/.portalctl/.env and never appears in shell history.
Pass --user to remember your user id for commands that need one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := newPrompter(cmd)
			var in loginInput
			var err error
			if in.Email, err = p.valueOrPrompt(email, "Email"); err != nil {
				return err
			}
			if in.Password, err = p.secret("Password"); err != nil {
				return err
			}
			if err := validate.Struct(in); err != nil {
				return inputError(err)
			}
			if userID < 0 {
				return fmt.Errorf("invalid user id %d", userID)
			}

			token, err := a.client("").Login(cmd.Context(), in.Email, in.Password)
			if err != nil {
				return fmt.Errorf("Login failed: %w", err)
			}

			if userID == 0 {
				if claims, ok := session.ReadClaims(token); ok {
					userID = claims.UserID
				}
			}
			creds := credentials.Credentials{Token: token, Email: in.Email, UserID: userID}
			if err := a.store.Save(creds); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}
			a.log.Debug("credentials saved", zap.String("path", a.store.Path), zap.Int64("user_id", userID))

			out := cmd.OutOrStdout()
			success(out, "Login successful!")
			if userID == 0 {
				mutedColor.Fprintln(out, "No user id known yet; pass it to profile, topup and invoices.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email (prompted when empty)")
	cmd.Flags().Int64Var(&userID, "user", 0, "your user id")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.store.Clear(); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func newRegisterCmd(a *app) *cobra.Command {
	var in registerInput
	var bio string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := newPrompter(cmd)
			var err error
			if in.FirstName, err = p.valueOrPrompt(in.FirstName, "First name"); err != nil {
				return err
			}
			if in.LastName, err = p.valueOrPrompt(in.LastName, "Last name"); err != nil {
				return err
			}
			if in.Email, err = p.valueOrPrompt(in.Email, "Email"); err != nil {
				return err
			}
			if in.Password, err = p.secret("Password"); err != nil {
				return err
			}
			in.Tier = strings.ToUpper(strings.TrimSpace(in.Tier))
			if err := validate.Struct(in); err != nil {
				return inputError(err)
			}
			tier, err := accountdomain.ParseTier(in.Tier)
			if err != nil {
				return err
			}

			req := accountdomain.RegisterRequest{
				FirstName: in.FirstName,
				LastName:  in.LastName,
				Email:     in.Email,
				Password:  in.Password,
				Bio:       bio,
				Tier:      tier,
			}
			if err := a.client("").Register(cmd.Context(), req); err != nil {
				return fmt.Errorf("Registration failed: %w", err)
			}
			success(cmd.OutOrStdout(), "Account created. Run 'portalctl login' to sign in.")
			return nil
		},
	}

	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&in.Email, "email", "", "account email")
	cmd.Flags().StringVar(&bio, "bio", "", "short bio")
	cmd.Flags().StringVar(&in.Tier, "tier", string(accountdomain.TierNormal), "tier: NORMAL, CORE or PRO")
	return cmd
}
