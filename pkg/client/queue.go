package client

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newQueueCommand(get func() *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "queue",
		Short:       "Inspect writes waiting for the backend",
		Annotations: noCatchUp,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every queued write in replay order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actions, err := get().Queue.List(cmd.Context())
			if err != nil {
				return err
			}
			return printActions(cmd.OutOrStdout(), actions)
		},
	}

	abandoned := &cobra.Command{
		Use:   "abandoned",
		Short: "List writes that ran out of replay attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actions, err := get().Queue.Abandoned(cmd.Context())
			if err != nil {
				return err
			}
			return printActions(cmd.OutOrStdout(), actions)
		},
	}

	requeue := &cobra.Command{
		Use:   "requeue <id>",
		Short: "Give an abandoned write a fresh set of attempts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			if err := get().Queue.Requeue(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "#%d is pending again\n", id)
			return nil
		},
	}

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every queued write without sending it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("queued writes would be lost, pass --yes to confirm")
			}
			if err := get().Queue.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Queue cleared")
			return nil
		},
	}
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm")

	cmd.AddCommand(list, abandoned, requeue, clearCmd)
	return cmd
}
