package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hostdesk/hostdesk-cli/internal/cache"
)

func newDepartmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "departments",
		Aliases: []string{"department", "dep"},
		Short:   "Manage departments",
	}

	cmd.AddCommand(newDepartmentsListCmd())

	return cmd
}

func newDepartmentsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List departments",
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}

			departments, err := client.Departments().List(cmd.Context())
			if err != nil {
				return err
			}

			// Refresh the name-resolution cache as a side effect.
			cache.NewStore(resolveCacheDir(), "departments", client.BaseURL, client.AccountID).Put(departments)

			if isJSON(cmd) {
				return printJSON(cmd, departments)
			}

			if len(departments) == 0 {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No departments found")
				return nil
			}

			w := newTabWriterFromCmd(cmd)
			defer func() { _ = w.Flush() }()
			_, _ = fmt.Fprintln(w, "ID\tNAME\tSLUG\tONLINE")
			for _, d := range departments {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", d.ID, d.Name, d.Slug, d.OnlineOperators)
			}
			return nil
		}),
	}

	return cmd
}
