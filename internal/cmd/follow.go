package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hostdesk/hostdesk-cli/internal/notify"
	"github.com/hostdesk/hostdesk-cli/internal/operator"
)

func newFollowCmd() *cobra.Command {
	var (
		interval time.Duration
		silent   bool
	)

	cmd := &cobra.Command{
		Use:     "follow <ticket-id>",
		Aliases: []string{"f"},
		Short:   "Follow a ticket as an operator and reply live",
		Long: strings.TrimSpace(`
Open an interactive operator console on one ticket. New guest replies
are printed as they arrive; typed lines are sent as replies.

Inside the console:
  /note <text>   post an internal note (hidden from the guest)
  /exit          leave the console
`),
		Args: cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			if flags.NoInput {
				return fmt.Errorf("follow is interactive and cannot run with --no-input; use watch instead")
			}

			id, err := parsePositiveIntArg(args[0], "ticket ID")
			if err != nil {
				return err
			}

			client, err := getClient()
			if err != nil {
				return err
			}

			me, err := client.Operators().Me(cmd.Context())
			if err != nil {
				return err
			}
			ticket, err := client.Tickets().Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			var sound notify.SoundPlayer = bellSound{out: cmd.ErrOrStderr()}
			if silent {
				sound = notify.NopSound{}
			}

			watcher := operator.NewWatcher(client.Tickets(), *ticket, me.ID, sound, operator.Options{
				Interval: interval,
				Presence: true,
			})

			out := cmd.OutOrStdout()
			printer := newThreadPrinter(out, false)
			_, _ = fmt.Fprintf(out, "-- Ticket #%d: %s [%s] --\n", ticket.ID, ticket.Subject, ticket.Status)
			printer.printNew(watcher.Replies())
			watcher.OnUpdate(func() {
				printer.printNew(watcher.Replies())
			})

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			done := make(chan struct{})
			go func() {
				defer close(done)
				_ = watcher.Run(runCtx)
			}()
			defer func() {
				watcher.MarkRead(context.Background())
				cancel()
				<-done
			}()

			in := bufio.NewReader(cmd.InOrStdin())
			for {
				line, err := in.ReadString('\n')
				if err != nil {
					if errors.Is(err, io.EOF) {
						return nil
					}
					return err
				}
				line = strings.TrimSpace(line)

				internal := false
				switch {
				case line == "":
					continue
				case line == "/exit":
					return nil
				case strings.HasPrefix(line, "/note "):
					internal = true
					line = strings.TrimSpace(strings.TrimPrefix(line, "/note "))
					if line == "" {
						continue
					}
				}

				if err := watcher.Send(cmd.Context(), line, internal); err != nil {
					_, _ = fmt.Fprintf(out, "Send failed: %s\n", err)
				}
			}
		}),
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval (default 5s)")
	cmd.Flags().BoolVar(&silent, "no-sound", false, "Disable the terminal bell on new replies")
	flagAlias(cmd.Flags(), "interval", "iv")

	return cmd
}
