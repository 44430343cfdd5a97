package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/civiclens/fetch"
)

func run(ctx context.Context, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func billsServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func TestFeedPrintsTitles(t *testing.T) {
	srv := billsServer(t, `{"bills":[{"title":"Clean Air Act"},{"number":"HB 12"}]}`)

	stdout, stderr, err := run(context.Background(),
		"feed", "--endpoint", "dead="+deadURL(t), "--endpoint", "live="+srv.URL, "--log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, "1. Clean Air Act\n2. Untitled Bill\n", stdout)
	assert.Contains(t, stderr, "dead:connection")
	assert.Contains(t, stderr, "answered by live")
}

func TestFeedEmpty(t *testing.T) {
	srv := billsServer(t, `{"bills":null}`)
	stdout, _, err := run(context.Background(), "feed", "--endpoint", srv.URL, "--log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, "No bills found.\n", stdout)
}

func TestFeedUnreachableExitCode(t *testing.T) {
	_, stderr, err := run(context.Background(),
		"feed", "--endpoint", "A="+deadURL(t), "--timeout", "500ms", "--metrics", "--log-level", "error")
	require.Error(t, err)
	assert.ErrorIs(t, err, fetch.ErrUnreachable)
	assert.Equal(t, ExitUnreachable, ExitCode(err))
	assert.Contains(t, stderr, fetch.UnreachableMessage)
	assert.Contains(t, stderr, "civiclens_fetch_unreachable_total 1")
}

func TestFeedRejectsBadEndpoint(t *testing.T) {
	_, _, err := run(context.Background(), "feed", "--endpoint", "ftp://example.com")
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestConfigPrintsYAML(t *testing.T) {
	t.Setenv("CIVICLENS_FETCH_ITEMS_FIELD", "results")
	stdout, _, err := run(context.Background(), "config")
	require.NoError(t, err)
	assert.Contains(t, stdout, "items_field: results")
	assert.Contains(t, stdout, "fallback: /")
}

func TestConfigMissingFile(t *testing.T) {
	_, _, err := run(context.Background(), "config", "--config", "/nonexistent/civiclens.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestWatchRedirectsAnonymousUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	stdout, _, err := run(ctx, "watch", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, stdout, "phase=anonymous")
	assert.Contains(t, stdout, "nav    replace /")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitInterrupted, ExitCode(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.Equal(t, ExitUnreachable, ExitCode(&ExitError{Code: ExitUnreachable, Err: fetch.ErrUnreachable}))
}
