package oauthflow

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/smartpc-cloud/desktop-auth/token"
)

// CallbackPath is the single path the loopback listener accepts.
const CallbackPath = "/callback"

const confirmationPage = `<!DOCTYPE html>
<html>
<head><title>Sign-in complete</title></head>
<body>
<p>Sign-in complete. You can close this window and return to the application.</p>
</body>
</html>`

// BrowserFlow drives the authorization-code exchange through the system
// browser and a one-shot loopback callback listener on a fixed port. The
// port must exactly match the redirect URI registered with the provider.
type BrowserFlow struct {
	core    *core
	port    int
	openURL func(string) error
}

// NewBrowserFlow initialises the browser strategy for the fixed callback
// port registered with the provider.
func NewBrowserFlow(cfg Config, port int, tokens *token.Manager, options ...FlowOption) (*BrowserFlow, error) {
	if port <= 0 {
		return nil, errors.New("[NewBrowserFlow] a fixed callback port is required")
	}

	s := applyOptions(options)
	flowCore, err := newCore(cfg, fmt.Sprintf("http://localhost:%d%s", port, CallbackPath), tokens, s)
	if err != nil {
		return nil, errors.Wrap(err, "[NewBrowserFlow] newCore")
	}

	openURL := s.openURL
	if openURL == nil {
		openURL = openBrowser
	}
	return &BrowserFlow{core: flowCore, port: port, openURL: openURL}, nil
}

// Run executes one flow: it binds the loopback listener, presents the
// authorize URL and blocks until the redirect arrives or ctx is cancelled.
// The listener is always closed, on every path, so a later flow can re-bind
// the fixed port.
func (f *BrowserFlow) Run(ctx context.Context, provider Provider) Result {
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", f.port))
	if err != nil {
		log.Err(err).Int("port", f.port).Msg("oauthflow: failed to bind callback listener")
		return Result{Error: fmt.Sprintf("cannot bind callback port %d", f.port)}
	}

	callbacks := make(chan url.Values, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(confirmationPage))
		select {
		case callbacks <- r.URL.Query():
		default: // exactly one callback per flow
		}
	})

	server := &http.Server{Handler: mux}
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			log.Err(serveErr).Msg("oauthflow: callback listener stopped unexpectedly")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			_ = server.Close()
		}
	}()

	if err := f.openURL(f.core.authorizeURL(provider)); err != nil {
		log.Err(err).Msg("oauthflow: failed to open browser")
		return Result{Error: "failed to open browser"}
	}

	select {
	case query := <-callbacks:
		return f.core.resolveCallback(ctx, query)
	case <-ctx.Done():
		return Result{Error: "sign-in cancelled"}
	}
}

func openBrowser(rawURL string) error {
	switch runtime.GOOS {
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL).Start()
	case "darwin":
		return exec.Command("open", rawURL).Start()
	}
	return exec.Command("xdg-open", rawURL).Start()
}
