package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xrdtools/catalog/internal/xroad"
)

// newMethodsCmd lists the services a producer offers.
func newMethodsCmd() *cobra.Command {
	var (
		allowed bool
		rest    bool
	)
	cmd := &cobra.Command{
		Use:   "methods <producer>",
		Short: "Lists services of one producer subsystem",
		Long: `Queries the listMethods (or allowedMethods) meta-service of the given
producer and prints one full service identifier per line. The producer is
a percent-encoded 4-part subsystem identifier, e.g.
"INST/CLASS/CODE/SUBSYSTEM".`,
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
			producer, err := xroad.ParseIdentifier(args[0])
			if err != nil {
				return fmt.Errorf("parse producer identifier: %w", err)
			}
			service := xroad.ServiceListMethods
			if allowed {
				service = xroad.ServiceAllowedMethods
			}

			if rest {
				methods, err := rt.client.MethodsRest(cmd.Context(), rt.cfg.XRoad.ServerURL, clientID, producer, service)
				if err != nil {
					return err
				}
				for _, m := range methods {
					fmt.Fprintln(cmd.OutOrStdout(), m.String())
				}
				return nil
			}

			methods, err := rt.client.Methods(cmd.Context(), rt.cfg.XRoad.ServerURL, clientID, producer, service)
			if err != nil {
				return err
			}
			for _, m := range methods {
				fmt.Fprintln(cmd.OutOrStdout(), m.String())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&allowed, "allowed", false, "query allowedMethods instead of listMethods")
	cmd.Flags().BoolVar(&rest, "rest", false, "use the REST meta-service variant")
	return cmd
}
