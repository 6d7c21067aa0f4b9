package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hostdesk/hostdesk-cli/internal/api"
	"github.com/hostdesk/hostdesk-cli/internal/validation"
)

func newTicketsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tickets",
		Aliases: []string{"ticket", "t"},
		Short:   "Manage support tickets",
		Long:    "List, inspect, and act on support tickets in your HostDesk account",
	}

	cmd.AddCommand(newTicketsListCmd())
	cmd.AddCommand(newTicketsShowCmd())
	cmd.AddCommand(newTicketsCreateCmd())
	cmd.AddCommand(newTicketsReplyCmd())
	cmd.AddCommand(newTicketsCloseCmd())
	cmd.AddCommand(newTicketsAssignCmd())

	return cmd
}

func newTicketsListCmd() *cobra.Command {
	var (
		status     string
		department string
		assignee   string
		page       int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tickets",
		Example: strings.TrimSpace(`
  # Open tickets in the billing department
  hostdesk tickets list --status open --department billing

  # Tickets assigned to an operator, as JSON
  hostdesk tickets list --assignee "Dana" -o json
`),
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}

			opts := api.ListTicketsOptions{Page: page}
			if status != "" {
				normalized, err := validateStatusWithAll(status)
				if err != nil {
					return err
				}
				if normalized != "all" {
					opts.Status = normalized
				}
			}
			if department != "" {
				id, err := resolveDepartmentArg(cmd, client, department)
				if err != nil {
					return err
				}
				opts.DepartmentID = id
			}
			if assignee != "" {
				id, err := resolveOperatorArg(cmd, client, assignee)
				if err != nil {
					return err
				}
				opts.AssigneeID = id
			}

			tickets, err := client.Tickets().List(cmd.Context(), opts)
			if err != nil {
				return err
			}

			if isJSON(cmd) {
				return printJSON(cmd, tickets)
			}

			if len(tickets) == 0 {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No tickets found")
				return nil
			}

			w := newTabWriterFromCmd(cmd)
			defer func() { _ = w.Flush() }()
			_, _ = fmt.Fprintln(w, "ID\tSUBJECT\tSTATUS\tPRIORITY\tGUEST\tLAST_REPLY")
			for _, t := range tickets {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					t.ID,
					t.Subject,
					t.Status,
					t.Priority,
					t.GuestName,
					formatUnix(t.LastReplyAt, timeLayoutShort),
				)
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status: open|awaiting_reply|answered|on_hold|closed|all")
	cmd.Flags().StringVarP(&department, "department", "d", "", "Filter by department (ID or name)")
	cmd.Flags().StringVarP(&assignee, "assignee", "a", "", "Filter by assigned operator (ID or name)")
	cmd.Flags().IntVarP(&page, "page", "p", 0, "Page number")
	flagAlias(cmd.Flags(), "status", "st")
	flagAlias(cmd.Flags(), "department", "dep")
	flagAlias(cmd.Flags(), "assignee", "as")

	return cmd
}

func newTicketsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "show <id>",
		Aliases: []string{"get", "g"},
		Short:   "Show a ticket with its full reply thread",
		Args:    cobra.ExactArgs(1),
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

			if isJSON(cmd) {
				return printJSON(cmd, ticket)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Ticket #%d: %s\n", ticket.ID, ticket.Subject)
			_, _ = fmt.Fprintf(out, "Status: %s\n", ticket.Status)
			if ticket.Priority != "" {
				_, _ = fmt.Fprintf(out, "Priority: %s\n", ticket.Priority)
			}
			if ticket.GuestName != "" {
				_, _ = fmt.Fprintf(out, "Guest: %s\n", ticket.GuestName)
			}
			if ticket.AssigneeID != 0 {
				_, _ = fmt.Fprintf(out, "Assignee: %d\n", ticket.AssigneeID)
			}
			_, _ = fmt.Fprintln(out)
			for _, r := range ticket.Replies {
				printReply(cmd, r)
			}
			return nil
		}),
	}

	return cmd
}

// printReply renders one reply line in thread order.
func printReply(cmd *cobra.Command, r api.Reply) {
	out := cmd.OutOrStdout()
	author := r.AuthorName
	if author == "" {
		author = r.AuthorType
	}
	marker := ""
	if r.Internal {
		marker = " [internal]"
	}
	_, _ = fmt.Fprintf(out, "[%s] %s%s: %s\n", formatUnix(r.CreatedAt, timeLayoutShort), author, marker, r.Body)
	for _, a := range r.Attachments {
		_, _ = fmt.Fprintf(out, "    attachment: %s %s\n", a.FileName, a.URL)
	}
}

func newTicketsCreateCmd() *cobra.Command {
	var (
		department string
		subject    string
		body       string
		priority   string
		guestID    int
	)

	cmd := &cobra.Command{
		Use:     "create",
		Aliases: []string{"mk"},
		Short:   "Open a ticket on a guest's behalf",
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			if err := validation.ValidateSubject(subject); err != nil {
				return err
			}
			if err := validation.ValidateReplyBody(body); err != nil {
				return err
			}
			if guestID <= 0 {
				return fmt.Errorf("--guest-id must be a positive integer")
			}
			if priority != "" {
				normalized, err := normalizeEnum("priority", priority, api.TicketPriorities)
				if err != nil {
					return err
				}
				priority = normalized
			}

			client, err := getClient()
			if err != nil {
				return err
			}

			departmentID := 0
			if department != "" {
				departmentID, err = resolveDepartmentArg(cmd, client, department)
				if err != nil {
					return err
				}
			}

			ticket, err := client.Tickets().Create(cmd.Context(), api.CreateTicketRequest{
				DepartmentID: departmentID,
				Subject:      subject,
				Body:         body,
				Priority:     priority,
				GuestID:      guestID,
			})
			if err != nil {
				return err
			}

			if isJSON(cmd) {
				return printJSON(cmd, ticket)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created ticket #%d: %s\n", ticket.ID, ticket.Subject)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&department, "department", "d", "", "Department (ID or name)")
	cmd.Flags().StringVar(&subject, "subject", "", "Ticket subject (required)")
	cmd.Flags().StringVarP(&body, "body", "m", "", "Opening message body (required)")
	cmd.Flags().StringVar(&priority, "priority", "", "Priority: low|normal|high|urgent")
	cmd.Flags().IntVar(&guestID, "guest-id", 0, "Guest the ticket belongs to (required)")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("body")
	_ = cmd.MarkFlagRequired("guest-id")
	flagAlias(cmd.Flags(), "department", "dep")
	flagAlias(cmd.Flags(), "subject", "su")
	flagAlias(cmd.Flags(), "guest-id", "gid")

	return cmd
}

func newTicketsReplyCmd() *cobra.Command {
	var (
		body     string
		internal bool
	)

	cmd := &cobra.Command{
		Use:     "reply <id>",
		Aliases: []string{"re"},
		Short:   "Reply to a ticket",
		Long:    "Post an operator reply, or an internal note visible only to operators.",
		Args:    cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			id, err := parsePositiveIntArg(args[0], "ticket ID")
			if err != nil {
				return err
			}
			if err := validation.ValidateReplyBody(body); err != nil {
				return err
			}

			client, err := getClient()
			if err != nil {
				return err
			}

			reply, err := client.Tickets().Reply(cmd.Context(), id, api.ReplyRequest{
				Body:     body,
				Internal: internal,
			})
			if err != nil {
				return err
			}

			if isJSON(cmd) {
				return printJSON(cmd, reply)
			}
			kind := "Reply"
			if internal {
				kind = "Internal note"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s #%d posted on ticket #%d\n", kind, reply.ID, id)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&body, "body", "m", "", "Reply body (required)")
	cmd.Flags().BoolVarP(&internal, "internal", "i", false, "Post as an internal note (hidden from the guest)")
	_ = cmd.MarkFlagRequired("body")
	flagAlias(cmd.Flags(), "internal", "note")

	return cmd
}

func newTicketsCloseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close <id>",
		Short: "Close a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			id, err := parsePositiveIntArg(args[0], "ticket ID")
			if err != nil {
				return err
			}

			client, err := getClient()
			if err != nil {
				return err
			}

			ticket, err := client.Tickets().UpdateStatus(cmd.Context(), id, api.StatusClosed)
			if err != nil {
				return err
			}

			if isJSON(cmd) {
				return printJSON(cmd, ticket)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Closed ticket #%d\n", id)
			return nil
		}),
	}

	return cmd
}

func newTicketsAssignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign <id> <operator>",
		Short: "Assign a ticket to an operator",
		Long:  "Assign a ticket to an operator by ID or name (fuzzy matched).",
		Args:  cobra.ExactArgs(2),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			id, err := parsePositiveIntArg(args[0], "ticket ID")
			if err != nil {
				return err
			}

			client, err := getClient()
			if err != nil {
				return err
			}

			operatorID, err := resolveOperatorArg(cmd, client, args[1])
			if err != nil {
				return err
			}

			if err := client.Tickets().Assign(cmd.Context(), id, operatorID); err != nil {
				return err
			}

			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{"ticket_id": id, "assignee_id": operatorID})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Assigned ticket #%d to operator %d\n", id, operatorID)
			return nil
		}),
	}

	return cmd
}
