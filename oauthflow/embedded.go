package oauthflow

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/smartpc-cloud/desktop-auth/token"
)

// DefaultEmbeddedTimeout bounds the embedded flow's total wait.
const DefaultEmbeddedTimeout = 5 * time.Minute

// EmbeddedFlow drives the authorization-code exchange through an embedded
// web surface. The surface calls InterceptNavigation for every navigation
// event it dispatches; the flow cancels navigation to the callback URI (the
// callback host is never meant to be loaded as a page) and Wait resolves
// the outcome.
type EmbeddedFlow struct {
	core        *core
	redirectURI *url.URL
	timeout     time.Duration

	callbacks chan url.Values
	once      sync.Once
}

// NewEmbeddedFlow initialises the embedded-surface strategy for the fixed
// redirect URI registered with the provider.
func NewEmbeddedFlow(cfg Config, redirectURI string, tokens *token.Manager, options ...FlowOption) (*EmbeddedFlow, error) {
	parsed, err := url.Parse(redirectURI)
	if err != nil || parsed.Scheme == "" {
		return nil, errors.New("[NewEmbeddedFlow] a valid redirect URI is required")
	}

	s := applyOptions(options)
	flowCore, err := newCore(cfg, redirectURI, tokens, s)
	if err != nil {
		return nil, errors.Wrap(err, "[NewEmbeddedFlow] newCore")
	}

	timeout := s.timeout
	if timeout <= 0 {
		timeout = DefaultEmbeddedTimeout
	}

	return &EmbeddedFlow{
		core:        flowCore,
		redirectURI: parsed,
		timeout:     timeout,
		callbacks:   make(chan url.Values, 1),
	}, nil
}

// AuthorizeURL returns the URL the surface must navigate to.
func (f *EmbeddedFlow) AuthorizeURL(provider Provider) string {
	return f.core.authorizeURL(provider)
}

// InterceptNavigation reports whether the surface must cancel the
// navigation. Only the registered callback URI is intercepted. It is called
// synchronously from the surface's navigation event; the first interception
// wins, later ones are still cancelled but ignored.
func (f *EmbeddedFlow) InterceptNavigation(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != f.redirectURI.Scheme || u.Host != f.redirectURI.Host || u.Path != f.redirectURI.Path {
		return false
	}
	query := u.Query()
	f.once.Do(func() {
		f.callbacks <- query
	})
	return true
}

// Wait blocks until the intercepted callback arrives, the overall ceiling
// elapses, or ctx is cancelled, then resolves the flow.
func (f *EmbeddedFlow) Wait(ctx context.Context) Result {
	timer := time.NewTimer(f.timeout)
	defer timer.Stop()

	select {
	case query := <-f.callbacks:
		return f.core.resolveCallback(ctx, query)
	case <-timer.C:
		return Result{Error: "timed out waiting for sign-in"}
	case <-ctx.Done():
		return Result{Error: "sign-in cancelled"}
	}
}
