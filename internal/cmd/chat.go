package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/hostdesk/hostdesk-cli/internal/api"
	"github.com/hostdesk/hostdesk-cli/internal/config"
	"github.com/hostdesk/hostdesk-cli/internal/flow"
	"github.com/hostdesk/hostdesk-cli/internal/identity"
	"github.com/hostdesk/hostdesk-cli/internal/notify"
	"github.com/hostdesk/hostdesk-cli/internal/push"
	"github.com/hostdesk/hostdesk-cli/internal/session"
	"github.com/hostdesk/hostdesk-cli/internal/validation"
)

// errChatExit unwinds the widget loop when the guest types /exit.
var errChatExit = errors.New("chat exited")

// bellSound rings the terminal bell for incoming replies.
type bellSound struct {
	out io.Writer
}

func (b bellSound) Play(string) error {
	_, err := fmt.Fprint(b.out, "\a")
	return err
}

func newChatCmd() *cobra.Command {
	var (
		baseURL string
		forget  bool
		silent  bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with support as a guest",
		Long: strings.TrimSpace(`
Open the guest chat widget against a HostDesk server. Identity is
remembered in the system keychain between runs.

Inside a ticket thread:
  /back   return to the ticket list
  /mute   toggle the new-reply sound
  /exit   quit the widget
`),
		Example: strings.TrimSpace(`
  hostdesk chat --base-url https://support.example.com
`),
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			if flags.NoInput {
				return fmt.Errorf("chat is interactive and cannot run with --no-input")
			}

			resolved, err := config.ResolvePortalBaseURL(baseURL)
			if err != nil {
				return err
			}

			resolver := identity.NewResolver(resolved)
			if forget {
				if err := resolver.Forget(); err != nil {
					return fmt.Errorf("forgetting stored identity: %w", err)
				}
				printIfNotQuiet(cmd, "Stored identity removed\n")
			}

			var sound notify.SoundPlayer = bellSound{out: cmd.ErrOrStderr()}
			if silent {
				sound = notify.NopSound{}
			}

			w := &chatWidget{
				cmd:      cmd,
				in:       bufio.NewReader(cmd.InOrStdin()),
				out:      cmd.OutOrStdout(),
				baseURL:  resolved,
				resolver: resolver,
				machine:  flow.NewMachine(),
				notifier: notify.New(sound, api.AuthorGuest),
			}
			if err := w.run(cmd.Context()); err != nil && !errors.Is(err, errChatExit) {
				return err
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&baseURL, "base-url", "u", "", "HostDesk server URL (default $HOSTDESK_BASE_URL)")
	cmd.Flags().BoolVar(&forget, "forget", false, "Discard the stored identity before starting")
	cmd.Flags().BoolVar(&silent, "no-sound", false, "Disable the terminal bell on new replies")
	flagAlias(cmd.Flags(), "base-url", "bu")

	return cmd
}

// chatWidget walks the guest through identify, ticket list, compose, and
// chat views, one prompt at a time.
type chatWidget struct {
	cmd      *cobra.Command
	in       *bufio.Reader
	out      io.Writer
	baseURL  string
	resolver *identity.Resolver
	machine  *flow.Machine
	notifier *notify.Notifier

	session config.GuestSession
	tickets []api.Ticket
	active  api.Ticket
}

func (w *chatWidget) run(ctx context.Context) error {
	res, err := w.resolver.Resolve(ctx)
	if err != nil {
		return err
	}
	w.applyResolution(res)

	switch {
	case res.Outcome == identity.OutcomeUnidentified:
		_, _ = w.machine.Fire(flow.EventSessionInvalid)
	case len(res.Tickets) > 0:
		_, _ = w.machine.Fire(flow.EventSessionValid)
		if res.Session.Name != "" {
			fmt.Fprintf(w.out, "Welcome back, %s\n", res.Session.Name)
		}
	default:
		_, _ = w.machine.Fire(flow.EventSessionEmpty)
		if res.Degraded {
			fmt.Fprintln(w.out, "Server unreachable, your tickets will appear once it recovers")
		}
	}

	for {
		var err error
		switch w.machine.Current() {
		case flow.StateIdentify:
			err = w.identifyView(ctx)
		case flow.StateComposeTicket:
			err = w.composeView(ctx)
		case flow.StateTicketList:
			err = w.listView(ctx)
		case flow.StateChatting:
			err = w.chatView(ctx)
		default:
			return fmt.Errorf("unexpected widget state %q", w.machine.Current())
		}
		if err != nil {
			return err
		}
	}
}

func (w *chatWidget) applyResolution(res identity.Resolution) {
	w.session = res.Session
	w.tickets = res.Tickets
}

func (w *chatWidget) portal() api.GuestService {
	return api.NewClientPortal(w.baseURL, w.session.Token).Guest()
}

// prompt reads one trimmed line, translating EOF into /exit.
func (w *chatWidget) prompt(label string) (string, error) {
	fmt.Fprint(w.out, label)
	line, err := w.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", errChatExit
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (w *chatWidget) identifyView(ctx context.Context) error {
	fmt.Fprintln(w.out, "Tell us who you are to start chatting.")
	for {
		name, err := w.prompt("Name: ")
		if err != nil {
			return err
		}
		email, err := w.prompt("Email: ")
		if err != nil {
			return err
		}
		phone, err := w.prompt("Phone (optional): ")
		if err != nil {
			return err
		}

		res, err := w.resolver.Identify(ctx, name, email, phone)
		if err != nil {
			fmt.Fprintf(w.out, "Could not identify: %s\n", err)
			continue
		}
		w.applyResolution(res)
		if len(res.Tickets) > 0 {
			_, _ = w.machine.Fire(flow.EventIdentifiedWithTickets)
		} else {
			_, _ = w.machine.Fire(flow.EventIdentified)
		}
		return nil
	}
}

func (w *chatWidget) composeView(ctx context.Context) error {
	portal := w.portal()

	departments, err := portal.ListDepartments(ctx)
	if err != nil {
		if api.IsCredentialRejected(err) {
			return w.credentialRevoked()
		}
		return err
	}

	fmt.Fprintln(w.out, "Start a new ticket. Type /back for your tickets, /exit to quit.")
	departmentID := 0
	if len(departments) > 0 {
		for _, d := range departments {
			fmt.Fprintf(w.out, "  %d. %s\n", d.ID, d.Name)
		}
		for {
			answer, err := w.prompt("Department: ")
			if err != nil {
				return err
			}
			if done, err := w.navCommand(answer); done {
				return err
			}
			departmentID, err = matchDepartment(answer, departments)
			if err != nil {
				fmt.Fprintln(w.out, err)
				continue
			}
			break
		}
	}

	subject, done, err := w.promptValidated("Subject: ", validation.ValidateSubject)
	if done || err != nil {
		return err
	}
	body, done, err := w.promptValidated("Message: ", validation.ValidateReplyBody)
	if done || err != nil {
		return err
	}

	var created *api.Ticket
	err = w.machine.Attempt(flow.EventTicketCreated, func() error {
		t, err := portal.CreateTicket(ctx, api.CreateTicketRequest{
			DepartmentID: departmentID,
			Subject:      subject,
			Body:         body,
		})
		if err != nil {
			return err
		}
		created = t
		return nil
	})
	if err != nil {
		if api.IsCredentialRejected(err) {
			return w.credentialRevoked()
		}
		fmt.Fprintf(w.out, "Could not create ticket: %s\n", err)
		return nil
	}

	w.active = *created
	w.tickets = append([]api.Ticket{*created}, w.tickets...)
	fmt.Fprintf(w.out, "Ticket #%d opened\n", created.ID)
	return nil
}

func (w *chatWidget) listView(ctx context.Context) error {
	if len(w.tickets) == 0 {
		_, _ = w.machine.Fire(flow.EventCompose)
		return nil
	}

	fmt.Fprintln(w.out, "Your tickets:")
	for i, t := range w.tickets {
		unread := ""
		if n := w.notifier.Unread(t.ID); n > 0 {
			unread = fmt.Sprintf(" (%d new)", n)
		}
		fmt.Fprintf(w.out, "  %d. [%s] %s%s\n", i+1, t.Status, t.Subject, unread)
	}

	for {
		answer, err := w.prompt("Open ticket number, or \"new\": ")
		if err != nil {
			return err
		}
		if done, err := w.navCommand(answer); done {
			return err
		}
		if strings.EqualFold(answer, "new") {
			_, _ = w.machine.Fire(flow.EventCompose)
			return nil
		}
		idx, err := strconv.Atoi(answer)
		if err != nil || idx < 1 || idx > len(w.tickets) {
			fmt.Fprintf(w.out, "Pick 1-%d or \"new\"\n", len(w.tickets))
			continue
		}

		portal := w.portal()
		full, err := portal.GetTicket(ctx, w.tickets[idx-1].ID)
		if err != nil {
			if api.IsCredentialRejected(err) {
				return w.credentialRevoked()
			}
			fmt.Fprintf(w.out, "Could not open ticket: %s\n", err)
			continue
		}
		w.active = *full
		_, _ = w.machine.Fire(flow.EventOpenTicket)
		return nil
	}
}

// chatView runs one ticket thread: background sync plus a send prompt.
func (w *chatWidget) chatView(ctx context.Context) error {
	portal := w.portal()
	streamToken := w.session.StreamToken
	baseURL := w.baseURL
	dial := func(ctx context.Context) (session.Streamer, error) {
		url, err := push.StreamURL(baseURL, streamToken)
		if err != nil {
			return nil, err
		}
		return push.Connect(ctx, url)
	}

	sess := session.New(portal, dial, w.notifier, w.active, session.Options{})
	w.notifier.SetActive(w.active.ID)
	w.notifier.SetFocused(true)

	printer := newThreadPrinter(w.out, true)
	fmt.Fprintf(w.out, "-- Ticket #%d: %s --\n", w.active.ID, w.active.Subject)
	printer.printNew(sess.Replies())
	sess.OnUpdate(func() {
		printer.printNew(sess.Replies())
	})
	sess.OnTyping(func(author string) {
		fmt.Fprintf(w.out, "%s is typing...\n", author)
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sess.Run(runCtx)
	}()
	defer func() {
		sess.MarkViewed(context.Background())
		w.notifier.SetActive(0)
		cancel()
		<-done
	}()

	muted := false
	for {
		line, err := w.prompt("> ")
		if err != nil {
			return err
		}
		switch {
		case line == "":
			continue
		case line == "/back":
			w.active = sess.Ticket()
			w.refreshListEntry(w.active)
			_, _ = w.machine.Fire(flow.EventBack)
			return nil
		case line == "/exit":
			return errChatExit
		case line == "/mute":
			muted = !muted
			w.notifier.SetMuted(muted)
			if muted {
				fmt.Fprintln(w.out, "Sound muted")
			} else {
				fmt.Fprintln(w.out, "Sound on")
			}
			continue
		}

		if err := sess.Send(ctx, line); err != nil {
			if api.IsCredentialRejected(err) {
				return w.credentialRevoked()
			}
			if errors.Is(err, session.ErrTicketClosed) {
				fmt.Fprintln(w.out, "This ticket is closed. Type /back to start a new one.")
				fmt.Fprintf(w.out, "Unsent: %s\n", line)
				continue
			}
			if errors.Is(err, session.ErrTicketOnHold) {
				fmt.Fprintln(w.out, "This ticket is on hold. Sending resumes when an operator releases it.")
				fmt.Fprintf(w.out, "Unsent: %s\n", line)
				continue
			}
			fmt.Fprintf(w.out, "Send failed: %s\n", err)
			fmt.Fprintf(w.out, "Unsent: %s\n", line)
		}
	}
}

// refreshListEntry keeps the cached list row in step with the live view.
func (w *chatWidget) refreshListEntry(t api.Ticket) {
	for i := range w.tickets {
		if w.tickets[i].ID == t.ID {
			w.tickets[i] = t
			return
		}
	}
}

// promptValidated re-prompts until the input passes validate or the
// guest navigates away. done mirrors navCommand's contract.
func (w *chatWidget) promptValidated(label string, validate func(string) error) (value string, done bool, err error) {
	for {
		answer, err := w.prompt(label)
		if err != nil {
			return "", true, err
		}
		if done, err := w.navCommand(answer); done {
			return "", true, err
		}
		if err := validate(answer); err != nil {
			fmt.Fprintln(w.out, err)
			continue
		}
		return answer, false, nil
	}
}

// navCommand handles /back and /exit inside form prompts. Returns true
// when the current view should stop.
func (w *chatWidget) navCommand(line string) (bool, error) {
	switch line {
	case "/back":
		if w.machine.Can(flow.EventBack) {
			_, _ = w.machine.Fire(flow.EventBack)
		}
		return true, nil
	case "/exit":
		return true, errChatExit
	}
	return false, nil
}

// credentialRevoked drops the dead credential and sends the widget back
// to the identify form.
func (w *chatWidget) credentialRevoked() error {
	fmt.Fprintln(w.out, "Your session expired, please identify again.")
	_ = w.resolver.Forget()
	w.session = config.GuestSession{}
	w.tickets = nil
	_, _ = w.machine.Fire(flow.EventCredentialRevoked)
	return nil
}

// matchDepartment accepts a department by ID or case-insensitive name.
func matchDepartment(input string, departments []api.Department) (int, error) {
	if id, err := strconv.Atoi(input); err == nil {
		for _, d := range departments {
			if d.ID == id {
				return d.ID, nil
			}
		}
		return 0, fmt.Errorf("no department with ID %d", id)
	}
	for _, d := range departments {
		if strings.EqualFold(d.Name, input) || strings.EqualFold(d.Slug, input) {
			return d.ID, nil
		}
	}
	return 0, fmt.Errorf("no department named %q", input)
}

// threadPrinter prints replies exactly once, in thread order.
type threadPrinter struct {
	mu        sync.Mutex
	out       io.Writer
	guestView bool
	seen      map[int]bool
}

func newThreadPrinter(out io.Writer, guestView bool) *threadPrinter {
	return &threadPrinter{out: out, guestView: guestView, seen: make(map[int]bool)}
}

func (p *threadPrinter) printNew(replies []api.Reply) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range replies {
		if p.seen[r.ID] {
			continue
		}
		p.seen[r.ID] = true
		if r.Internal && p.guestView {
			continue
		}
		author := r.AuthorName
		if author == "" {
			author = r.AuthorType
		}
		marker := ""
		if r.Internal {
			marker = " [internal]"
		}
		fmt.Fprintf(p.out, "[%s] %s%s: %s\n", formatUnix(r.CreatedAt, timeLayoutShort), author, marker, r.Body)
		for _, a := range r.Attachments {
			fmt.Fprintf(p.out, "    attachment: %s %s\n", a.FileName, a.URL)
		}
	}
}
