// Package auth drives the browser-approval login handshake: register an
// approval request, send the user to the approval page, poll for the
// outcome under a bounded attempt budget, and persist the resulting
// credential.
package auth

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aarushk09/edpear-sdk/client"
	"github.com/aarushk09/edpear-sdk/config"
	"github.com/aarushk09/edpear-sdk/internal/browser"
)

// Polling policy: up to DefaultMaxAttempts status checks spaced
// DefaultPollInterval apart, roughly a ten-minute ceiling.
const (
	DefaultMaxAttempts  = 200
	DefaultPollInterval = 3 * time.Second
)

// ErrExpired reports that the server declared the approval request's
// lifetime elapsed. Distinct from ErrTimedOut: the request died server-side,
// not because this client gave up.
var ErrExpired = errors.New("login request expired before it was approved; run 'edpear login' to start a new one")

// ErrTimedOut reports that the client exhausted its polling budget while
// the request was still pending.
var ErrTimedOut = errors.New("timed out waiting for browser approval; run 'edpear login' to try again")

// State is the controller's position in the handshake.
type State int

const (
	NotStarted State = iota
	Initiated
	Polling
	Completed
	Expired
	TimedOut
	Failed
)

// Session is the transient record of one approval handshake. It lives only
// for the duration of a single login invocation and is never persisted.
type Session struct {
	RequestID    string
	ApprovalURL  string
	Status       string
	AttemptsUsed int
	AttemptsMax  int
}

// Controller runs the login state machine. MaxAttempts, PollInterval, and
// OpenURL are policy knobs; tests replace sleep to run without wall-clock
// delay.
type Controller struct {
	Client       *client.Client
	MaxAttempts  int
	PollInterval time.Duration
	OpenURL      func(string) error
	Out          io.Writer

	state   State
	session Session
	sleep   func(time.Duration)
}

// NewController creates a login controller with the default polling policy.
// The client must hold no token; every call in the handshake is
// unauthenticated.
func NewController(c *client.Client) *Controller {
	return &Controller{
		Client:       c,
		MaxAttempts:  DefaultMaxAttempts,
		PollInterval: DefaultPollInterval,
		OpenURL:      browser.Open,
		Out:          os.Stderr,
		state:        NotStarted,
		sleep:        time.Sleep,
	}
}

// State returns the controller's current state.
func (ct *Controller) State() State { return ct.state }

// Session returns a snapshot of the in-flight handshake.
func (ct *Controller) Session() Session { return ct.session }

// Login runs the handshake to a terminal state. On success the token and
// profile are written to the credential store and the profile is returned.
// Terminal failures are distinguishable: an initiation failure wraps the
// underlying error, a server-declared expiry is ErrExpired, and an
// exhausted polling budget is ErrTimedOut.
func (ct *Controller) Login() (*config.User, error) {
	initResp, err := ct.Client.InitLogin()
	if err != nil {
		ct.state = Failed
		return nil, fmt.Errorf("could not start login: %w", err)
	}
	ct.state = Initiated
	ct.session = Session{
		RequestID:   initResp.RequestID,
		ApprovalURL: initResp.URL,
		Status:      client.StatusPending,
		AttemptsMax: ct.MaxAttempts,
	}

	// The URL is always printed: if the browser fails to open, the user
	// copies it by hand and the handshake proceeds unchanged.
	fmt.Fprintf(ct.Out, "Opening browser to approve this login:\n  %s\n", initResp.URL)
	if ct.OpenURL != nil {
		if err := ct.OpenURL(initResp.URL); err != nil {
			fmt.Fprintf(ct.Out, "! Could not open browser automatically; visit the URL above.\n")
		}
	}
	fmt.Fprintf(ct.Out, "Waiting for approval...\n")

	ct.state = Polling
	for attempt := 1; attempt <= ct.MaxAttempts; attempt++ {
		ct.session.AttemptsUsed = attempt

		status, err := ct.Client.LoginStatus(initResp.RequestID)
		if err == nil {
			ct.session.Status = status.Status
			switch {
			case status.Status == client.StatusCompleted && status.CLIToken != "":
				ct.state = Completed
				return status.User, ct.persist(status.CLIToken, status.User)
			case status.Status == client.StatusExpired:
				ct.state = Expired
				return nil, ErrExpired
			}
		}
		// A failed or still-pending poll consumes the attempt and the
		// loop carries on; one flaky check must not abort an approval
		// the user is in the middle of granting.

		if attempt < ct.MaxAttempts {
			ct.sleep(ct.PollInterval)
		}
	}

	ct.state = TimedOut
	return nil, ErrTimedOut
}

func (ct *Controller) persist(token string, user *config.User) error {
	cred := config.Load()
	cred.Token = token
	cred.User = user
	if err := config.Save(cred); err != nil {
		return fmt.Errorf("logged in, but saving the credential failed: %w", err)
	}
	return nil
}
