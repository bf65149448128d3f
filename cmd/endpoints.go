package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xrdtools/catalog/internal/xroad"
)

// newEndpointsCmd lists the endpoints of one REST service.
func newEndpointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "endpoints <service>",
		Short: "Lists the endpoints of one REST service",
		Long: `Fetches the OpenAPI description of the given 5-part service and prints
one "VERB path" line per endpoint, with the summary when present.`,
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			clientID, err := rt.clientParts()
			if err != nil {
				return err
			}
			service, err := parseRESTService(args[0])
			if err != nil {
				return err
			}
			doc, err := rt.client.OpenAPI(cmd.Context(), rt.cfg.XRoad.ServerURL, clientID, service)
			if err != nil {
				return err
			}
			endpoints, err := xroad.OpenAPIEndpoints(doc)
			if err != nil {
				return err
			}
			for _, ep := range endpoints {
				if ep.Summary != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\t%s\n", ep.Verb, ep.Path, ep.Summary)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ep.Verb, ep.Path)
			}
			return nil
		},
	}
	return cmd
}
