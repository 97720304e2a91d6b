package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	accountdomain "github.com/smallbiznis/billingportal/internal/account/domain"
	walletservice "github.com/smallbiznis/billingportal/internal/wallet/service"
	"github.com/spf13/cobra"
)

type profileOutput struct {
	accountdomain.UserProfile
	Wallet string `json:"wallet"`
}

func newProfileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "profile [userId]",
		Short: "Show a user's profile and wallet balance",
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

			profile, err := api.GetUserProfile(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return a.printProfile(cmd.OutOrStdout(), profile)
		},
	}
}

func newTopUpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "topup <userId> <amount>",
		Short:   "Add a dollar amount to a user's wallet",
		Example: `  portalctl topup 42 12.50`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID("user id", args[0])
			if err != nil {
				return err
			}
			raw := args[1]
			if _, err := walletservice.ParseAmountCents(raw); err != nil {
				return err
			}
			api, _, err := a.authed()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			profile, err := api.GetUserProfile(ctx, userID)
			if err != nil {
				return fmt.Errorf("Top-Up Failed: %w", err)
			}

			svc := walletservice.NewService(a.log, nil)
			result, err := svc.TopUp(ctx, api, &profile, raw)
			if err != nil {
				return fmt.Errorf("Top-Up Failed: %w", err)
			}

			f := a.formatter()
			out := cmd.OutOrStdout()
			if a.jsonOutput() {
				return a.printProfile(out, result.Profile)
			}
			success(out, "Wallet topped up with %s", f.Cents(result.Proposal.AmountCents))
			field(out, "Balance", f.Cents(result.Profile.WalletCents))
			return nil
		},
	}
}

func (a *app) printProfile(w io.Writer, profile accountdomain.UserProfile) error {
	wallet := a.formatter().Cents(profile.WalletCents)
	if a.jsonOutput() {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(profileOutput{UserProfile: profile, Wallet: wallet})
	}

	field(w, "Name", profile.FullName())
	field(w, "Email", profile.Email)
	tier := string(profile.Tier)
	if !profile.Tier.Known() {
		tier += " (unknown tier)"
	}
	field(w, "Tier", tier)
	field(w, "Wallet", wallet)
	field(w, "User ID", strconv.FormatInt(profile.ID, 10))
	return nil
}
