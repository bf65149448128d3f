package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xrdtools/catalog/internal/xroad"
)

// newOpenAPICmd fetches one OpenAPI description.
func newOpenAPICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "openapi <service>",
		Short: "Prints the OpenAPI description of one REST service",
		Long: `Fetches the OpenAPI description of the given service through the
getOpenAPI meta-service and prints it to stdout. The service is a
percent-encoded 5-part identifier
"INST/CLASS/CODE/SUBSYSTEM/SERVICE".`,
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
			fmt.Fprintln(cmd.OutOrStdout(), doc)
			return nil
		},
	}
	return cmd
}

func parseRESTService(id string) (xroad.RESTMethod, error) {
	parts, err := xroad.ParseIdentifier(id)
	if err != nil {
		return xroad.RESTMethod{}, fmt.Errorf("parse service identifier: %w", err)
	}
	return xroad.RESTMethodFromParts(parts)
}
