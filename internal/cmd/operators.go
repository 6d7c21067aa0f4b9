package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hostdesk/hostdesk-cli/internal/cache"
)

func newOperatorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "operators",
		Aliases: []string{"operator", "op"},
		Short:   "Manage operators",
	}

	cmd.AddCommand(newOperatorsListCmd())
	cmd.AddCommand(newOperatorsMeCmd())

	return cmd
}

func newOperatorsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List operators on the account",
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}

			operators, err := client.Operators().List(cmd.Context())
			if err != nil {
				return err
			}

			cache.NewStore(resolveCacheDir(), "operators", client.BaseURL, client.AccountID).Put(operators)

			if isJSON(cmd) {
				return printJSON(cmd, operators)
			}

			if len(operators) == 0 {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No operators found")
				return nil
			}

			w := newTabWriterFromCmd(cmd)
			defer func() { _ = w.Flush() }()
			_, _ = fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE\tAVAILABILITY")
			for _, o := range operators {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", o.ID, o.Name, o.Email, o.Role, o.Availability)
			}
			return nil
		}),
	}

	return cmd
}

func newOperatorsMeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "me",
		Short: "Show the operator the current token belongs to",
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}

			me, err := client.Operators().Me(cmd.Context())
			if err != nil {
				return err
			}

			if isJSON(cmd) {
				return printJSON(cmd, me)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> (id %d, %s)\n", me.Name, me.Email, me.ID, me.Role)
			return nil
		}),
	}

	return cmd
}
