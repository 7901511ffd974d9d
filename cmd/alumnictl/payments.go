package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/alumni-core/internal/bootstrap"
	"github.com/cuongbtq/alumni-core/internal/paymenttoken"
)

func paymentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payments",
		Short: "Manage registration payment links",
	}
	cmd.AddCommand(paymentsLinkCmd())
	cmd.AddCommand(paymentsValidateCmd())
	return cmd
}

func paymentsLinkCmd() *cobra.Command {
	var (
		userID   string
		amount   int64
		currency string
	)

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Issue a single-use registration payment link for a user",
		Long: `Issue a single-use registration payment link for a user.

Without --amount the active registration_fee payment config decides the
amount and currency.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			stores := bootstrap.NewStores(e.db, e.logger.Logger)
			payments := bootstrap.NewPaymentService(e.cfg, stores, e.logger.Logger)

			user, err := stores.Profiles.GetByID(ctx, userID)
			if err != nil {
				return fmt.Errorf("failed to load profile: %w", err)
			}
			if user.PaymentStatus.Settled() {
				return errors.New(paymenttoken.MsgAlreadyPaid)
			}

			currency = strings.ToUpper(currency)
			configID := ""
			if amount == 0 {
				fee, err := payments.GetActivePaymentConfig(ctx, paymenttoken.CategoryRegistrationFee)
				if err != nil {
					return fmt.Errorf("failed to load registration fee: %w", err)
				}
				amount, configID = fee.Amount, fee.ID
				if currency == "" {
					currency = fee.Currency
				}
			}

			issued, err := payments.CreateRegistrationPaymentLink(ctx, user.ID, amount, currency, configID)
			if err != nil {
				return fmt.Errorf("failed to create payment link: %w", err)
			}
			return printJSON(cmd, issued)
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "profile id (required)")
	cmd.Flags().Int64VarP(&amount, "amount", "a", 0, "amount in minor units")
	cmd.Flags().StringVar(&currency, "currency", "", "ISO currency code")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func paymentsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <token>",
		Short: "Check whether a payment token can still be used",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			stores := bootstrap.NewStores(e.db, e.logger.Logger)
			payments := bootstrap.NewPaymentService(e.cfg, stores, e.logger.Logger)

			v, err := payments.ValidatePaymentToken(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to validate token: %w", err)
			}
			return printJSON(cmd, v)
		},
	}
}
