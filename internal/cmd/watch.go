package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hostdesk/hostdesk-cli/internal/api"
	"github.com/hostdesk/hostdesk-cli/internal/notify"
	"github.com/hostdesk/hostdesk-cli/internal/operator"
	"github.com/hostdesk/hostdesk-cli/internal/outfmt"
)

func newWatchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:     "watch <ticket-id>",
		Aliases: []string{"w"},
		Short:   "Stream a ticket's replies read-only",
		Long: strings.TrimSpace(`
Print a ticket's thread and keep printing new replies as they arrive,
until interrupted. No presence is signaled and nothing is sent, so a
pipeline can watch a ticket without appearing as a viewing operator.

With -o jsonl each reply is emitted as one JSON object per line.
`),
		Args: cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			id, err := parsePositiveIntArg(args[0], "ticket ID")
			if err != nil {
				return err
			}

			client, err := getClient()
			if err != nil {
				return err
			}

			ticket, err := client.Tickets().Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			watcher := operator.NewWatcher(client.Tickets(), *ticket, 0, notify.NopSound{}, operator.Options{
				Interval: interval,
			})

			out := cmd.OutOrStdout()
			jsonl := outfmt.IsJSON(cmd.Context())
			var emit func([]api.Reply)
			if jsonl {
				enc := json.NewEncoder(out)
				seen := make(map[int]bool)
				emit = func(replies []api.Reply) {
					for _, r := range replies {
						if seen[r.ID] {
							continue
						}
						seen[r.ID] = true
						_ = enc.Encode(r)
					}
				}
			} else {
				_, _ = fmt.Fprintf(out, "-- Ticket #%d: %s [%s] --\n", ticket.ID, ticket.Subject, ticket.Status)
				printer := newThreadPrinter(out, false)
				emit = printer.printNew
			}

			emit(watcher.Replies())
			watcher.OnUpdate(func() {
				emit(watcher.Replies())
			})

			return watcher.Run(cmd.Context())
		}),
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval (default 5s)")
	flagAlias(cmd.Flags(), "interval", "iv")

	return cmd
}
