package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/fatflowers/paycoord/internal/app/service/checkout"
	"github.com/fatflowers/paycoord/internal/purchase"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show provider readiness and the purchase in flight",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var st checkout.Status
			if err := client.Do(cmd.Context(), http.MethodGet, "/api/v1/purchase/status", nil, &st); err != nil {
				return err
			}
			return printJSON(cmd, st)
		},
	}
}

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Configure the payment providers from the service config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var st checkout.Status
			if err := client.Do(cmd.Context(), http.MethodPost, "/api/v1/purchase/setup", nil, &st); err != nil {
				return err
			}
			return printJSON(cmd, st)
		},
	}
}

// start <product>: run a purchase and wait for the device to complete it.
func startCmd() *cobra.Command {
	var (
		description  string
		amount       int64
		subscription bool
		finish       bool
	)
	cmd := &cobra.Command{
		Use:   "start <product>",
		Short: "Start a purchase for a catalog item or store product id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &checkout.StartRequest{ProductID: args[0], Description: description}
			if cmd.Flags().Changed("amount") {
				req.Amount = &amount
			}
			if cmd.Flags().Changed("subscription") {
				req.IsSubscription = &subscription
			}

			var res purchase.Result
			if err := client.Do(cmd.Context(), http.MethodPost, "/api/v1/purchase/start", req, &res); err != nil {
				return err
			}
			if err := printJSON(cmd, res); err != nil {
				return err
			}
			if !finish {
				return nil
			}
			return client.Do(cmd.Context(), http.MethodPost, "/api/v1/purchase/finish", &res, nil)
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "line item shown on the payment sheet")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount in minor currency units, overrides the catalog")
	cmd.Flags().BoolVar(&subscription, "subscription", false, "request a subscription instead of a one-off purchase")
	cmd.Flags().BoolVar(&finish, "finish", false, "acknowledge the purchase right away")
	return cmd
}

// finish [file]: acknowledge the purchase in flight, or the result stored in file.
func finishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "finish [result.json]",
		Short: "Finish the current purchase or an unfinished one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res *purchase.Result
			if len(args) == 1 {
				raw, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				res = &purchase.Result{}
				if err := json.Unmarshal(raw, res); err != nil {
					return fmt.Errorf("invalid result file: %w", err)
				}
			}
			var in any
			if res != nil {
				in = res
			}
			if err := client.Do(cmd.Context(), http.MethodPost, "/api/v1/purchase/finish", in, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "finished")
			return nil
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Abandon the purchase in flight",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Do(cmd.Context(), http.MethodPost, "/api/v1/purchase/reset", nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "reset")
			return nil
		},
	}
}

func unfinishedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unfinished",
		Short: "List purchases confirmed by the store but never finished",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var items []*purchase.Unfinished
			if err := client.Do(cmd.Context(), http.MethodGet, "/api/v1/purchase/unfinished", nil, &items); err != nil {
				return err
			}
			return printJSON(cmd, items)
		},
	}
}

func catalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Show the configured catalog and store prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cat checkout.Catalog
			if err := client.Do(cmd.Context(), http.MethodGet, "/api/v1/purchase/catalog", nil, &cat); err != nil {
				return err
			}
			return printJSON(cmd, cat)
		},
	}
}
