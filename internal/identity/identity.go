// Package identity resolves who the chat widget is talking as before any
// view renders.
//
// A stored session credential is verified against the portal on every
// boot. Only an explicit 401/403 discards it; transport failures keep
// the credential and degrade to an empty ticket list, so a flaky network
// never forces a guest to re-identify.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/hostdesk/hostdesk-cli/internal/api"
	"github.com/hostdesk/hostdesk-cli/internal/config"
	"github.com/hostdesk/hostdesk-cli/internal/validation"
)

// Outcome classifies a resolution.
type Outcome string

const (
	// OutcomeSession means a stored credential is (still) usable.
	OutcomeSession Outcome = "session"
	// OutcomeUnidentified means the guest must identify before chatting.
	OutcomeUnidentified Outcome = "unidentified"
)

// Resolution is the result of resolving identity at boot.
type Resolution struct {
	Outcome Outcome
	Session config.GuestSession
	Tickets []api.Ticket
	// Degraded is set when the credential could not be verified or the
	// ticket list could not be fetched for transport reasons. The
	// credential is kept; Tickets is empty.
	Degraded bool
}

// PortalAPI is the slice of the client portal the resolver needs.
type PortalAPI interface {
	Verify(ctx context.Context) (*api.GuestSession, error)
	ListTickets(ctx context.Context) ([]api.Ticket, error)
	Register(ctx context.Context, req api.RegisterGuestRequest) (*api.GuestSession, error)
}

// SessionStore persists guest credentials between runs.
type SessionStore interface {
	Load(baseURL string) (config.GuestSession, error)
	Save(session config.GuestSession) error
	Delete(baseURL string) error
}

// KeyringStore is the default SessionStore backed by the OS keychain.
type KeyringStore struct{}

func (KeyringStore) Load(baseURL string) (config.GuestSession, error) {
	return config.LoadGuestSession(baseURL)
}

func (KeyringStore) Save(session config.GuestSession) error {
	return config.SaveGuestSession(session)
}

func (KeyringStore) Delete(baseURL string) error {
	return config.DeleteGuestSession(baseURL)
}

// Resolver resolves and establishes guest identity for one server.
type Resolver struct {
	baseURL   string
	store     SessionStore
	newPortal func(baseURL, sessionToken string) PortalAPI
}

// NewResolver creates a Resolver for the given server.
func NewResolver(baseURL string) *Resolver {
	return &Resolver{
		baseURL: baseURL,
		store:   KeyringStore{},
		newPortal: func(baseURL, sessionToken string) PortalAPI {
			return api.NewClientPortal(baseURL, sessionToken).Guest()
		},
	}
}

// NewResolverWith creates a Resolver with injected dependencies for tests.
func NewResolverWith(baseURL string, store SessionStore, newPortal func(baseURL, sessionToken string) PortalAPI) *Resolver {
	return &Resolver{baseURL: baseURL, store: store, newPortal: newPortal}
}

// Resolve checks the stored credential and prefetches the guest's
// tickets. It never returns an error for a merely unreachable server;
// that is a degraded resolution, not a failure.
func (r *Resolver) Resolve(ctx context.Context) (Resolution, error) {
	session, err := r.store.Load(r.baseURL)
	if err != nil {
		if errors.Is(err, config.ErrNoGuestSession) {
			return Resolution{Outcome: OutcomeUnidentified}, nil
		}
		return Resolution{}, fmt.Errorf("loading guest session: %w", err)
	}

	portal := r.newPortal(r.baseURL, session.Token)
	verified, err := portal.Verify(ctx)
	if err != nil {
		if api.IsCredentialRejected(err) {
			// The server no longer honors this credential. Drop it so the
			// next boot goes straight to identify.
			_ = r.store.Delete(r.baseURL)
			return Resolution{Outcome: OutcomeUnidentified}, nil
		}
		return Resolution{Outcome: OutcomeSession, Session: session, Degraded: true}, nil
	}

	// The server may rotate the stream token between sessions; persist
	// whatever it reports now.
	session = mergeVerified(session, verified)
	_ = r.store.Save(session)

	tickets, err := portal.ListTickets(ctx)
	if err != nil {
		return Resolution{Outcome: OutcomeSession, Session: session, Degraded: true}, nil
	}
	return Resolution{Outcome: OutcomeSession, Session: session, Tickets: tickets}, nil
}

// Identify registers the guest with the portal and persists the minted
// credential. Phone is optional and never validated beyond being passed
// through. Validation failures and server rejections are returned to
// the caller so the identify form can surface them.
func (r *Resolver) Identify(ctx context.Context, name, email, phone string) (Resolution, error) {
	if name == "" {
		return Resolution{}, fmt.Errorf("name is required")
	}
	if err := validation.ValidateName(name); err != nil {
		return Resolution{}, err
	}
	if email == "" {
		return Resolution{}, fmt.Errorf("email is required")
	}
	if err := validation.ValidateEmail(email); err != nil {
		return Resolution{}, err
	}

	portal := r.newPortal(r.baseURL, "")
	minted, err := portal.Register(ctx, api.RegisterGuestRequest{Name: name, Email: email, Phone: phone})
	if err != nil {
		return Resolution{}, fmt.Errorf("registering guest: %w", err)
	}

	session := config.GuestSession{
		BaseURL:     r.baseURL,
		GuestID:     minted.GuestID,
		Name:        minted.Name,
		Email:       minted.Email,
		Phone:       phone,
		Token:       minted.Token,
		StreamToken: minted.StreamToken,
	}
	if err := r.store.Save(session); err != nil {
		return Resolution{}, fmt.Errorf("saving guest session: %w", err)
	}

	// A returning guest identified by the same email may already have
	// tickets; fetch them so the widget can land on the list.
	authed := r.newPortal(r.baseURL, session.Token)
	tickets, err := authed.ListTickets(ctx)
	if err != nil {
		return Resolution{Outcome: OutcomeSession, Session: session, Degraded: true}, nil
	}
	return Resolution{Outcome: OutcomeSession, Session: session, Tickets: tickets}, nil
}

// Forget discards the stored credential for this server.
func (r *Resolver) Forget() error {
	return r.store.Delete(r.baseURL)
}

func mergeVerified(session config.GuestSession, verified *api.GuestSession) config.GuestSession {
	if verified == nil {
		return session
	}
	if verified.GuestID != 0 {
		session.GuestID = verified.GuestID
	}
	if verified.Name != "" {
		session.Name = verified.Name
	}
	if verified.Email != "" {
		session.Email = verified.Email
	}
	if verified.StreamToken != "" {
		session.StreamToken = verified.StreamToken
	}
	return session
}
