package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hostdesk/hostdesk-cli/internal/api"
	"github.com/hostdesk/hostdesk-cli/internal/cache"
	"github.com/hostdesk/hostdesk-cli/internal/iocontext"
	"github.com/hostdesk/hostdesk-cli/internal/outfmt"
	"github.com/hostdesk/hostdesk-cli/internal/resolve"
)

// getJQQuery returns the jq query from --jq or --query flags.
// --jq takes precedence over --query for consistency with gh CLI.
func getJQQuery() string {
	if flags.JQ != "" {
		return flags.JQ
	}
	return flags.Query
}

// getClient creates an operator API client from stored credentials
func getClient() (*api.Client, error) {
	return newClientFactory().operator()
}

// getPortalClient creates a client portal API instance, allowing an
// optional server URL override
func getPortalClient(baseURLOverride, sessionToken string) (*api.Client, error) {
	return newClientFactory().portal(baseURLOverride, sessionToken)
}

// newTabWriter creates a tabwriter for text output
func newTabWriter(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}

func newTabWriterFromCmd(cmd *cobra.Command) *tabwriter.Writer {
	ioStreams := iocontext.GetIO(cmd.Context())
	return newTabWriter(ioStreams.Out)
}

// printJSON outputs data as JSON with optional query filtering
func printJSON(cmd *cobra.Command, v any) error {
	ioStreams := iocontext.GetIO(cmd.Context())
	query := outfmt.GetQuery(cmd.Context())
	compact := outfmt.IsCompact(cmd.Context())
	return outfmt.WriteJSONFiltered(ioStreams.Out, v, query, compact)
}

// printJSONErr writes a JSON value to stderr.
func printJSONErr(cmd *cobra.Command, v any) error {
	ioStreams := iocontext.GetIO(cmd.Context())
	return outfmt.WriteJSON(ioStreams.ErrOut, v)
}

// isJSON checks if the command context wants JSON output
func isJSON(cmd *cobra.Command) bool {
	return outfmt.IsJSON(cmd.Context())
}

// printIfNotQuiet prints to stdout only if not in quiet mode
func printIfNotQuiet(cmd *cobra.Command, format string, args ...any) {
	if !flags.Quiet {
		ioStreams := iocontext.GetIO(cmd.Context())
		_, _ = fmt.Fprintf(ioStreams.Out, format, args...)
	}
}

// normalizeEnum normalizes and validates a flag value against a list of valid enum values.
// It lowercases and trims the input, then tries exact match followed by unique prefix match.
func normalizeEnum(flagName, input string, valid []string) (string, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return "", api.NewValidationError(flagName, input, valid)
	}

	for _, v := range valid {
		if input == v {
			return v, nil
		}
	}

	var matches []string
	for _, v := range valid {
		if strings.HasPrefix(v, input) {
			matches = append(matches, v)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", api.NewValidationError(flagName, input, valid)
	default:
		return "", fmt.Errorf("ambiguous %s %q: matches %s", flagName, input, strings.Join(matches, ", "))
	}
}

// validateStatus validates and normalizes a ticket status value
func validateStatus(status string) (string, error) {
	return normalizeEnum("status", status, api.TicketStatuses)
}

// validateStatusWithAll validates a ticket status filter, including "all"
func validateStatusWithAll(status string) (string, error) {
	return normalizeEnum("status", status, append([]string{"all"}, api.TicketStatuses...))
}

// parsePositiveIntArg parses a positive integer arg, accepting the common
// "#123" shorthand.
func parsePositiveIntArg(input string, label string) (int, error) {
	input = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), "#"))
	if input == "" {
		return 0, fmt.Errorf("invalid %s: empty input", label)
	}
	id, err := strconv.Atoi(input)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not a number", label, input)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", label)
	}
	return id, nil
}

// aliasBridgeValue wraps a pflag.Value so that Set() on the alias also
// marks the canonical flag as Changed. This lets aliases satisfy Cobra's
// MarkFlagRequired check transparently.
type aliasBridgeValue struct {
	pflag.Value
	canonical *pflag.Flag
}

func (v *aliasBridgeValue) Set(s string) error {
	if err := v.Value.Set(s); err != nil {
		return err
	}
	v.canonical.Changed = true
	return nil
}

// flagAlias registers a hidden alias for an existing flag.
// Both flags share the same underlying Value, so setting either one sets both.
// The alias is annotated so flagOrAliasChanged() can detect it.
func flagAlias(fs *pflag.FlagSet, name, alias string) {
	f := fs.Lookup(name)
	if f == nil {
		panic(fmt.Sprintf("flagAlias: flag %q not found", name))
	}
	a := *f // shallow copy — shares the Value interface
	a.Name = alias
	a.Shorthand = ""
	a.Usage = ""
	a.Hidden = true
	a.Value = &aliasBridgeValue{Value: f.Value, canonical: f}
	newAnn := map[string][]string{"alias-of": {name}}
	for k, v := range f.Annotations {
		if k == cobra.BashCompOneRequiredFlag {
			continue
		}
		newAnn[k] = v
	}
	a.Annotations = newAnn
	fs.AddFlag(&a)
}

// flagOrAliasChanged returns true if the named flag or any of its
// hidden aliases was explicitly set by the user.
func flagOrAliasChanged(cmd *cobra.Command, name string) bool {
	if cmd.Flags().Changed(name) {
		return true
	}
	if cmd.InheritedFlags().Changed(name) {
		return true
	}

	aliasChanged := func(fs *pflag.FlagSet) bool {
		found := false
		fs.VisitAll(func(f *pflag.Flag) {
			if found {
				return
			}
			if ann, ok := f.Annotations["alias-of"]; ok && len(ann) > 0 && ann[0] == name {
				if fs.Changed(f.Name) {
					found = true
				}
			}
		})
		return found
	}

	return aliasChanged(cmd.Flags()) || aliasChanged(cmd.InheritedFlags())
}

// errAlreadyHandled is a sentinel error indicating the error was already printed to stderr.
// Commands using RunE return this to signal Cobra that an error occurred (for exit code)
// without Cobra printing it again (since SilenceErrors is true on root command).
var errAlreadyHandled = errors.New("error already handled")

type handledError struct {
	err      error
	exitCode int
}

func (e *handledError) Error() string {
	return e.err.Error()
}

func (e *handledError) Unwrap() error {
	return errAlreadyHandled
}

func (e *handledError) ExitCode() int {
	return e.exitCode
}

// RunE wraps a command function with enhanced error handling
func RunE(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if err != nil {
			if isJSON(cmd) {
				if structured := api.StructuredErrorFromError(err); structured != nil {
					_ = printJSONErr(cmd, structured)
				}
			} else {
				_, _ = fmt.Fprint(cmd.ErrOrStderr(), HandleError(err))
			}
			// Return a handled error so tests can still inspect the original message.
			return &handledError{err: err, exitCode: ExitCode(err)}
		}
		return nil
	}
}

func resolveCacheDir() string {
	if dir := os.Getenv("HOSTDESK_CACHE_DIR"); dir != "" {
		return dir
	}
	dir, err := cache.DefaultDir()
	if err != nil {
		return ""
	}
	return dir
}

// resolveDepartmentArg resolves a department flag value to a numeric ID.
// Accepts a numeric ID or a department name (fuzzy match, cached).
func resolveDepartmentArg(cmd *cobra.Command, client *api.Client, arg string) (int, error) {
	if id, err := strconv.Atoi(strings.TrimSpace(arg)); err == nil && id > 0 {
		return id, nil
	}

	dir := resolveCacheDir()
	var departments []api.Department

	if dir != "" {
		store := cache.NewStore(dir, "departments", client.BaseURL, client.AccountID)
		if store.Get(&departments) {
			if id, err := resolve.DepartmentArg(arg, departments); err == nil {
				return id, nil
			}
			// Cache might be stale, fall through to API.
		}
	}

	var err error
	departments, err = client.Departments().List(cmd.Context())
	if err != nil {
		return 0, fmt.Errorf("failed to list departments: %w", err)
	}

	if dir != "" {
		store := cache.NewStore(dir, "departments", client.BaseURL, client.AccountID)
		store.Put(departments)
	}

	return resolve.DepartmentArg(arg, departments)
}

// resolveOperatorArg resolves an operator flag value to a numeric ID.
// Accepts a numeric ID or an operator name (fuzzy match, cached).
func resolveOperatorArg(cmd *cobra.Command, client *api.Client, arg string) (int, error) {
	if id, err := strconv.Atoi(strings.TrimSpace(arg)); err == nil && id > 0 {
		return id, nil
	}

	dir := resolveCacheDir()
	var operators []api.Operator

	if dir != "" {
		store := cache.NewStore(dir, "operators", client.BaseURL, client.AccountID)
		if store.Get(&operators) {
			if id, err := resolve.OperatorArg(arg, operators); err == nil {
				return id, nil
			}
		}
	}

	var err error
	operators, err = client.Operators().List(cmd.Context())
	if err != nil {
		return 0, fmt.Errorf("failed to list operators: %w", err)
	}

	if dir != "" {
		store := cache.NewStore(dir, "operators", client.BaseURL, client.AccountID)
		store.Put(operators)
	}

	return resolve.OperatorArg(arg, operators)
}

const (
	timeLayout      = "2006-01-02 15:04:05"
	timeLayoutShort = "2006-01-02 15:04"
)

func formatUnix(ts api.FlexInt, layout string) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(int64(ts), 0).Format(layout)
}

// maskToken masks a token for display, showing only first and last 4 characters
func maskToken(token string) string {
	if len(token) < 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}
