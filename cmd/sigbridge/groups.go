package main

import (
	"fmt"

	"github.com/spf13/cobra"

	transport "sigbridge/internal/signal"
)

// groupsCmd manages chat groups over the REST surface. The socket
// protocol has no group operations, so the command requires rest mode.
func groupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Manage chat groups",
	}

	newTransport := func() (*transport.RESTTransport, error) {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		if cfg.Signal.Mode != "rest" {
			return nil, fmt.Errorf("group management needs signal.mode=rest, configured mode is %q", cfg.Signal.Mode)
		}
		return transport.NewRESTTransport(cfg.Signal.URL, cfg.Signal.Account, logger), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the groups the account belongs to",
		RunE: func(cmd *cobra.Command, args []string) error {
			chat, err := newTransport()
			if err != nil {
				return err
			}
			groups, err := chat.ListGroups(cmd.Context())
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				fmt.Println("no groups")
				return nil
			}
			for _, g := range groups {
				fmt.Printf("%s  %s (%d members)\n", g.ID, g.Name, len(g.Members))
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "create <name> <member>...",
		Short: "Create a group with the given members",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chat, err := newTransport()
			if err != nil {
				return err
			}
			id, err := chat.CreateGroup(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "invite <groupId>",
		Short: "Add the account's contacts to an existing group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chat, err := newTransport()
			if err != nil {
				return err
			}
			return chat.InviteToGroup(cmd.Context(), args[0])
		},
	})
	return cmd
}
