package commands

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/fatflowers/paycoord/internal/app/service/eventlog"
	"github.com/fatflowers/paycoord/pkg/types"
)

func eventsCmd() *cobra.Command {
	var (
		event     string
		provider  string
		productID string
		traceID   string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Search recorded purchase progress events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &eventlog.SearchRequest{Limit: limit}
			for field, value := range map[string]string{
				"event":      event,
				"provider":   provider,
				"product_id": productID,
				"trace_id":   traceID,
			} {
				if value != "" {
					req.Filters = append(req.Filters, types.CommonFilter{Field: field, Operator: types.CommonFilterOperatorEq, Values: []any{value}})
				}
			}

			var res eventlog.SearchResponse
			if err := client.Do(cmd.Context(), http.MethodPost, "/api/v1/purchase/events/search", req, &res); err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&event, "event", "", "event name, e.g. payment_completed")
	cmd.Flags().StringVar(&provider, "provider", "", "inapp or wallet")
	cmd.Flags().StringVar(&productID, "product", "", "store product id")
	cmd.Flags().StringVar(&traceID, "trace", "", "request trace id")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of events")
	return cmd
}
