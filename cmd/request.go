package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/habedi/wanderlist/client"
	"github.com/habedi/wanderlist/guard"
	"github.com/habedi/wanderlist/pkg/clierr"
	"github.com/habedi/wanderlist/pkg/pool"
	"github.com/habedi/wanderlist/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// requireSession is the CLI form of the route guard: a protected command
// only runs for a definitely authenticated session, otherwise the user is
// sent to the login command.
func requireSession(a *app) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var err error
		guard.Route(a.client.AuthState(), guard.NavigatorFunc(func(string) {
			err = clierr.New(clierr.Auth, "Not logged in. Please run `wanderlist login` first.", nil)
		}), nil)
		return err
	}
}

func requestCmds(a *app) []*cobra.Command {
	return []*cobra.Command{
		getCmd(a),
		bodylessCmd(a, http.MethodDelete, "Send a DELETE request"),
		bodylessCmd(a, http.MethodHead, "Send a HEAD request and show the response headers"),
		bodylessCmd(a, http.MethodOptions, "Send an OPTIONS request"),
		bodyCmd(a, http.MethodPost, "Send a POST request with a JSON body"),
		bodyCmd(a, http.MethodPut, "Send a PUT request with a JSON body"),
		bodyCmd(a, http.MethodPatch, "Send a PATCH request with a JSON body"),
	}
}

// getCmd fetches one or more paths; several paths are fetched concurrently.
func getCmd(a *app) *cobra.Command {
	var numThreads int

	cmd := &cobra.Command{
		Use:     "get <path> [path...]",
		Short:   "Send GET requests and print the response bodies",
		Args:    cobra.MinimumNArgs(1),
		PreRunE: requireSession(a),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateThreadCount(numThreads); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			for _, path := range args {
				if err := validation.ValidatePath(path); err != nil {
					return clierr.New(clierr.Validation, err.Error(), err)
				}
			}
			if len(args) == 1 {
				resp, err := a.client.Get(cmd.Context(), args[0])
				if err != nil {
					return requestError(err)
				}
				printResponse(cmd.OutOrStdout(), http.MethodGet, resp)
				return nil
			}
			return fetchAll(cmd, a.client, args, numThreads)
		},
	}

	cmd.Flags().IntVarP(&numThreads, "threads", "t", 5, "Number of requests to run concurrently [1-20]")

	return cmd
}

func fetchAll(cmd *cobra.Command, c *client.Client, paths []string, numThreads int) error {
	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("Fetching..."),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionClearOnFinish(),
	)

	results := pool.Map(cmd.Context(), paths, numThreads, func(ctx context.Context, path string) (*client.Response, error) {
		defer func() { _ = bar.Add(1) }()
		resp, err := c.Get(ctx, path)
		if err != nil {
			log.Info().Err(err).Str("path", path).Msg("Failed to fetch path")
		}
		return resp, err
	})
	_ = bar.Finish()

	out := cmd.OutOrStdout()
	var firstErr error
	for i, r := range results {
		fmt.Fprintf(out, "==> %s <==\n", paths[i])
		if r.Err != nil {
			fmt.Fprintf(out, "error: %v\n", r.Err)
			if firstErr == nil {
				firstErr = r.Err
			}
			continue
		}
		printResponse(out, http.MethodGet, r.Value)
	}
	if failed := len(pool.Errors(results)); failed > 0 {
		cmd.PrintErrf("%d of %d requests failed.\n", failed, len(paths))
	}
	if firstErr != nil {
		return requestError(firstErr)
	}
	return nil
}

func bodylessCmd(a *app, method, short string) *cobra.Command {
	return &cobra.Command{
		Use:     strings.ToLower(method) + " <path>",
		Short:   short,
		Args:    cobra.ExactArgs(1),
		PreRunE: requireSession(a),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidatePath(args[0]); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			resp, err := a.client.Do(cmd.Context(), method, args[0], nil)
			if err != nil {
				return requestError(err)
			}
			printResponse(cmd.OutOrStdout(), method, resp)
			return nil
		},
	}
}

func bodyCmd(a *app, method, short string) *cobra.Command {
	var data, dataFile string

	cmd := &cobra.Command{
		Use:     strings.ToLower(method) + " <path>",
		Short:   short,
		Args:    cobra.ExactArgs(1),
		PreRunE: requireSession(a),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidatePath(args[0]); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			body, err := readRequestBody(cmd, data, dataFile)
			if err != nil {
				return err
			}
			if err := validation.ValidateJSONBody(body); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			if len(body) == 0 {
				body = nil
			}
			resp, err := a.client.Do(cmd.Context(), method, args[0], body)
			if err != nil {
				return requestError(err)
			}
			printResponse(cmd.OutOrStdout(), method, resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "Request body")
	cmd.Flags().StringVarP(&dataFile, "data-file", "f", "", "Read the request body from a file, or - for stdin")
	cmd.MarkFlagsMutuallyExclusive("data", "data-file")

	return cmd
}

func readRequestBody(cmd *cobra.Command, data, dataFile string) ([]byte, error) {
	switch dataFile {
	case "":
		return []byte(data), nil
	case "-":
		body, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, clierr.New(clierr.Internal, "Failed to read request body from stdin", err)
		}
		return body, nil
	default:
		body, err := os.ReadFile(dataFile)
		if err != nil {
			return nil, clierr.New(clierr.Validation, fmt.Sprintf("Failed to read %s", dataFile), err)
		}
		return body, nil
	}
}

func printResponse(w io.Writer, method string, resp *client.Response) {
	if method != http.MethodHead {
		_, _ = w.Write(resp.Body)
		if len(resp.Body) > 0 && resp.Body[len(resp.Body)-1] != '\n' {
			fmt.Fprintln(w)
		}
		return
	}
	fmt.Fprintf(w, "%d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	keys := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %s\n", k, strings.Join(resp.Header[k], ", "))
	}
}
