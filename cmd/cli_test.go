package cmd

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/habedi/wanderlist/pkg/clierr"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCreateRootCmd checks that the root command has the expected use string,
// subcommands, and a replaced help command.
func TestCreateRootCmd(t *testing.T) {
	rootCmd, _ := newRootCmd()
	if rootCmd.Use != "wanderlist" {
		t.Errorf("expected root command use to be 'wanderlist', got: %s", rootCmd.Use)
	}

	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		// Verify that the default help command is replaced (i.e. no subcommand with Use "help")
		if cmd.Use == "help" {
			t.Error("expected help command to be replaced, but found a subcommand with use 'help'")
		}
		names[cmd.Name()] = true
	}
	for _, want := range []string{"login", "logout", "status", "serve", "version", "get", "post", "put", "patch", "delete", "head", "options"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func cliArgs(api *fakeAPI, dbPath string, args ...string) []string {
	return append([]string{"--base-url", api.baseURL(), "--token-url", api.tokenURL(), "--storage", "sqlite", "--db-path", dbPath}, args...)
}

func TestCLI_SessionLifecycle(t *testing.T) {
	t.Setenv("WANDERLIST_HOME", t.TempDir())
	api := newFakeAPI(t)
	dbPath := filepath.Join(t.TempDir(), "session.db")

	_, err := runCLI(t, "", cliArgs(api, dbPath, "get", "/trips")...)
	require.Error(t, err)
	assert.Equal(t, 3, clierr.ExitCode(err), "protected commands need a session")
	assert.Contains(t, err.Error(), "Not logged in")

	out, err := runCLI(t, "ana\ns3cret\n", cliArgs(api, dbPath, "login")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Login was successful.")

	out, err = runCLI(t, "", cliArgs(api, dbPath, "status")...)
	require.NoError(t, err)
	assert.Contains(t, out, "authenticated")
	assert.NotContains(t, out, "unauthenticated")
	assert.Contains(t, out, "ana")
	assert.Contains(t, out, "wanderlist-test")

	out, err = runCLI(t, "", cliArgs(api, dbPath, "get", "/trips")...)
	require.NoError(t, err)
	assert.Contains(t, out, `"path":"/v1/trips"`)

	api.expireAll()
	out, err = runCLI(t, "", cliArgs(api, dbPath, "get", "--threads", "3", "/trips/1", "/trips/2", "/trips/3")...)
	require.NoError(t, err)
	assert.Equal(t, int32(1), api.refreshCalls.Load(), "concurrent requests share one refresh")
	for _, path := range []string{"/trips/1", "/trips/2", "/trips/3"} {
		assert.Contains(t, out, "==> "+path+" <==")
		assert.Contains(t, out, `"path":"/v1`+path+`"`)
	}
	assert.Less(t, strings.Index(out, "==> /trips/1"), strings.Index(out, "==> /trips/3"), "results keep argument order")

	out, err = runCLI(t, "", cliArgs(api, dbPath, "post", "/trips", "--data", `{"city":"porto"}`)...)
	require.NoError(t, err)
	assert.Contains(t, out, `"method":"POST"`)
	assert.Contains(t, out, `porto`)

	out, err = runCLI(t, "", cliArgs(api, dbPath, "logout")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out.")

	out, err = runCLI(t, "", cliArgs(api, dbPath, "status")...)
	require.NoError(t, err)
	assert.Contains(t, out, "unauthenticated")
}

func TestCLI_ValidationErrors(t *testing.T) {
	t.Setenv("WANDERLIST_HOME", t.TempDir())
	api := newFakeAPI(t)
	dbPath := filepath.Join(t.TempDir(), "session.db")

	_, err := runCLI(t, "ana\ns3cret\n", cliArgs(api, dbPath, "login")...)
	require.NoError(t, err)

	tests := []struct {
		name string
		args []string
	}{
		{"bad json body", []string{"post", "/trips", "--data", "{bad"}},
		{"too many threads", []string{"get", "--threads", "50", "/a", "/b"}},
		{"bad path", []string{"delete", "ftp://example.com/x"}},
		{"missing data file", []string{"put", "/trips/1", "--data-file", filepath.Join(t.TempDir(), "nope.json")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, "", cliArgs(api, dbPath, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, 2, clierr.ExitCode(err))
		})
	}
}

func TestCLI_LoginRejected(t *testing.T) {
	t.Setenv("WANDERLIST_HOME", t.TempDir())
	api := newFakeAPI(t)
	dbPath := filepath.Join(t.TempDir(), "session.db")

	_, err := runCLI(t, "ana\nwrong\n", cliArgs(api, dbPath, "login")...)
	require.Error(t, err)
	assert.Equal(t, 3, clierr.ExitCode(err))

	_, err = runCLI(t, "\n\n", cliArgs(api, dbPath, "login")...)
	require.Error(t, err)
	assert.Equal(t, 2, clierr.ExitCode(err))
}

func TestCLI_ExpiredSessionAfterRevokedRefresh(t *testing.T) {
	t.Setenv("WANDERLIST_HOME", t.TempDir())
	api := newFakeAPI(t)
	a := newTestApp(t, api)

	require.NoError(t, a.client.Login(t.Context(), "ana", "s3cret"))
	api.expireAll()
	// Swap the refresh credential for one the server does not know.
	token := a.store.Get()
	token.RefreshToken = "revoked"
	require.NoError(t, a.store.Set(t.Context(), *token))

	_, err := a.client.Get(t.Context(), "/trips")
	cliErr := requestError(err)
	assert.Equal(t, 3, clierr.ExitCode(cliErr))
	assert.Contains(t, cliErr.Error(), "Session expired")
	assert.Nil(t, a.store.Get())
}

func TestCLI_InvalidConfig(t *testing.T) {
	t.Setenv("WANDERLIST_HOME", t.TempDir())
	_, err := runCLI(t, "", "--storage", "etcd", "status")
	require.Error(t, err)
	assert.Equal(t, 2, clierr.ExitCode(err))
	assert.Contains(t, err.Error(), "storage")
}

// TestExecuteFailure runs a subprocess where the root command's RunE is overridden
// to always return an error. In that case Execute (or a call to Execute-like behavior)
// should call os.Exit(1). We capture the exit code via os/exec.
func TestExecuteFailure(t *testing.T) {
	// If this is the child process, override the command to simulate failure.
	if os.Getenv("TEST_EXECUTE_FAILURE") == "1" {
		rootCmd, _ := newRootCmd()
		rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
			return errors.New("dummy failure")
		}
		rootCmd.SetArgs([]string{})
		if err := rootCmd.Execute(); err != nil {
			os.Exit(clierr.ExitCode(err))
		}
		return
	}

	// In the parent process, run this test in a subprocess.
	cmd := exec.Command(os.Args[0], "-test.run=TestExecuteFailure")
	cmd.Env = append(os.Environ(), "TEST_EXECUTE_FAILURE=1", "WANDERLIST_HOME="+t.TempDir(), "WANDERLIST_STORAGE=memory")
	err := cmd.Run()
	if exitError, ok := err.(*exec.ExitError); ok {
		if exitError.ExitCode() != 1 {
			t.Fatalf("expected exit code 1, got %d", exitError.ExitCode())
		}
	} else if err == nil {
		t.Fatalf("expected an exit error, but command succeeded")
	} else {
		t.Fatalf("unexpected error: %v", err)
	}
}
