package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xrdtools/catalog/internal/xroad"
)

// newSubsystemsCmd lists subsystems from the directory document.
func newSubsystemsCmd() *cobra.Command {
	var (
		registered  bool
		withServer  bool
		memberNames bool
	)
	cmd := &cobra.Command{
		Use:   "subsystems",
		Short: "Lists subsystems of the instance",
		Long: `Downloads the directory document and prints one subsystem identifier
per line. --registered keeps only subsystems attached to a security
server; --with-server appends the owning server's coordinates;
--member-names appends the owning member's name.`,
		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			idx, err := rt.fetchDirectory(cmd.Context())
			if err != nil {
				return err
			}

			if withServer {
				rows, err := idx.SubsystemsWithServer()
				if err != nil {
					return err
				}
				for _, row := range rows {
					fields := row.Subsystem.Parts()
					if row.Server != nil {
						fields = append(fields,
							row.Server.OwnerInstance, row.Server.OwnerClass,
							row.Server.OwnerCode, row.Server.ServerCode,
							row.Server.Address)
					}
					fmt.Fprintln(cmd.OutOrStdout(), strings.Join(fields, "\t"))
				}
				return nil
			}

			subs := idx.Subsystems()
			if registered {
				subs = idx.RegisteredSubsystems()
			}
			for _, sub := range subs {
				if memberNames {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", sub.String(), sub.MemberName)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), sub.String())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&registered, "registered", false, "only subsystems attached to a security server")
	cmd.Flags().BoolVar(&withServer, "with-server", false, "one row per owning security server")
	cmd.Flags().BoolVar(&memberNames, "member-names", false, "append the owning member's name")
	return cmd
}

// newServersCmd lists security servers from the directory document.
func newServersCmd() *cobra.Command {
	var ips bool
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Lists security servers of the instance",
		Long: `Downloads the directory document and prints one security server
identifier per line. --ips prints the resolved gateway addresses
instead; addresses that do not resolve are skipped.`,
		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			idx, err := rt.fetchDirectory(cmd.Context())
			if err != nil {
				return err
			}

			if ips {
				for _, ip := range idx.ServerIPs(cmd.Context()) {
					fmt.Fprintln(cmd.OutOrStdout(), ip)
				}
				return nil
			}

			servers, err := idx.Servers()
			if err != nil {
				return err
			}
			for _, srv := range servers {
				fmt.Fprintln(cmd.OutOrStdout(), xroad.Identifier([]string{
					srv.OwnerInstance, srv.OwnerClass, srv.OwnerCode, srv.ServerCode,
				}))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&ips, "ips", false, "print resolved gateway addresses")
	return cmd
}

// newMembersCmd lists members from the directory document.
func newMembersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "Lists members of the instance",
		Args:  cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			idx, err := rt.fetchDirectory(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range idx.Members() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", xroad.Identifier(m.Parts()), m.Name)
			}
			return nil
		},
	}
	return cmd
}
