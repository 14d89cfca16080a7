// authctl is a diagnostic command line for the desktop-auth library. It
// exercises sign-in (including MFA and new-password challenges), session
// status, token refresh and sign-out against a real identity provider,
// standing in for the desktop UI during development.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/smartpc-cloud/desktop-auth/cognito"
	"github.com/smartpc-cloud/desktop-auth/credstore"
	"github.com/smartpc-cloud/desktop-auth/token"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("authctl failed")
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	endpoint := flag.String("endpoint", os.Getenv("SMARTPC_AUTH_ENDPOINT"), "identity provider endpoint URL")
	clientID := flag.String("client-id", os.Getenv("SMARTPC_AUTH_CLIENT_ID"), "app client id")
	debugLog := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debugLog {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	displayAppName("authctl")

	store, err := credstore.Open()
	if err != nil {
		return errors.Wrap(err, "[run] credstore.Open")
	}
	tokens, err := token.NewManager(store)
	if err != nil {
		return errors.Wrap(err, "[run] token.NewManager")
	}

	switch flag.Arg(0) {
	case "signin":
		client, err := newClient(*endpoint, *clientID, tokens)
		if err != nil {
			return err
		}
		return signIn(client)
	case "refresh":
		client, err := newClient(*endpoint, *clientID, tokens)
		if err != nil {
			return err
		}
		return refresh(client, tokens)
	case "signout":
		client, err := newClient(*endpoint, *clientID, tokens)
		if err != nil {
			return err
		}
		client.SignOut()
		fmt.Println("signed out")
		return nil
	case "status":
		return status(tokens)
	}

	fmt.Println("usage: authctl [-endpoint URL] [-client-id ID] [-debug] signin|status|refresh|signout")
	return nil
}

func newClient(endpoint, clientID string, tokens *token.Manager) (*cognito.Client, error) {
	client, err := cognito.New(cognito.Config{Endpoint: endpoint, ClientID: clientID}, tokens)
	if err != nil {
		return nil, errors.Wrap(err, "[newClient] cognito.New")
	}
	return client, nil
}

func signIn(client *cognito.Client) error {
	reader := bufio.NewReader(os.Stdin)
	email := prompt(reader, "email: ")
	password := prompt(reader, "password: ")

	ctx := context.Background()
	result := client.SignIn(ctx, email, password)

	if result.RequiresMFA {
		code := prompt(reader, fmt.Sprintf("%s code: ", result.MFAType))
		if result.MFAType == cognito.MFATypeTOTP {
			result = client.ConfirmMFATOTP(ctx, code, result.Session, email)
		} else {
			result = client.ConfirmMFAEmail(ctx, code, result.Session, email)
		}
	} else if result.RequiresNewPassword {
		newPassword := prompt(reader, "new password: ")
		result = client.NewPasswordChallenge(ctx, newPassword, result.Session, email)
	}

	if !result.Success {
		return errors.Errorf("[signIn] %s (%s)", result.Error, result.ErrorKind)
	}
	fmt.Println("signed in")
	return nil
}

func refresh(client *cognito.Client, tokens *token.Manager) error {
	refreshToken, ok := tokens.RefreshToken()
	if !ok {
		return errors.New("[refresh] no refresh token stored, sign in first")
	}
	result := client.RefreshTokens(context.Background(), refreshToken)
	if !result.Success {
		return errors.Errorf("[refresh] %s (%s)", result.Error, result.ErrorKind)
	}
	fmt.Println("tokens refreshed")
	return nil
}

func status(tokens *token.Manager) error {
	if !tokens.IsAuthenticated() {
		fmt.Println("not signed in")
		return nil
	}
	if email, ok := tokens.UserEmail(); ok {
		fmt.Printf("signed in as %s\n", email)
	} else {
		fmt.Println("signed in")
	}
	return nil
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func displayAppName(appName string) {
	myFigure := figure.NewFigure(appName, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
