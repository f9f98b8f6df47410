// Package saucetest provides fakes for exercising package sauce without a
// network connection.
package saucetest

import (
	"fmt"
	"os"
	"testing"

	"github.com/tebeka/selenium"
)

// Env is a complete, valid Sauce Labs environment.
var Env = map[string]string{
	"SAUCE_USERNAME":         "alice",
	"SAUCE_APIKEY":           "key123",
	"SAUCE_SELENIUM_VERSION": "2.45",
	"SAUCE_BROWSER_VERSION":  "42",
	"SAUCE_OS":               "WIN8",
}

// SetEnv sets every variable in env for the duration of the test. A variable
// whose value is the empty string is unset instead.
func SetEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
		if v == "" {
			if err := os.Unsetenv(k); err != nil {
				t.Fatalf("os.Unsetenv(%q) returned error: %v", k, err)
			}
		}
	}
}

// Call is one invocation of Remote.New.
type Call struct {
	Capabilities selenium.Capabilities
	Executor     string
}

// Remote stands in for selenium.NewRemote. It records its calls and hands
// out WebDriver fakes.
type Remote struct {
	Calls []Call
	// Err, if set, is returned from every call.
	Err error
}

// New has the signature of selenium.NewRemote.
func (r *Remote) New(caps selenium.Capabilities, executor string) (selenium.WebDriver, error) {
	r.Calls = append(r.Calls, Call{Capabilities: caps, Executor: executor})
	if r.Err != nil {
		return nil, r.Err
	}
	return &WebDriver{ID: fmt.Sprintf("session-%d", len(r.Calls))}, nil
}

// WebDriver implements the session bookkeeping part of selenium.WebDriver.
// Any other method panics.
type WebDriver struct {
	selenium.WebDriver

	ID    string
	Ended bool
}

// SessionID returns the fake session ID.
func (wd *WebDriver) SessionID() string { return wd.ID }

// Quit marks the session as ended.
func (wd *WebDriver) Quit() error {
	wd.Ended = true
	return nil
}
