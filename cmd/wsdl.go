package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xrdtools/catalog/internal/xroad"
)

// newWSDLCmd fetches one WSDL document.
func newWSDLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wsdl <service>",
		Short: "Prints the WSDL of one SOAP service",
		Long: `Fetches the WSDL of the given service through the getWsdl meta-service
and prints it to stdout. The service is a percent-encoded 6-part
identifier "INST/CLASS/CODE/SUBSYSTEM/SERVICE/VERSION"; the version part
may be empty.`,
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
			parts, err := xroad.ParseIdentifier(args[0])
			if err != nil {
				return fmt.Errorf("parse service identifier: %w", err)
			}
			service, err := xroad.MethodFromParts(parts)
			if err != nil {
				return err
			}
			doc, err := rt.client.WSDL(cmd.Context(), rt.cfg.XRoad.ServerURL, clientID, service)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), doc)
			return nil
		},
	}
	return cmd
}
