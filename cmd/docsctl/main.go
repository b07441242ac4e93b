// Package main implements docsctl, a small CLI for driving the dashboard's
// generation endpoint from a terminal.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/betterdocs/dashboard/internal/stream"
)

var (
	serverURL string
	owner     string
	docType   string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docsctl",
		Short: "Client for the better-docs dashboard",
		Long: `docsctl talks to a running dashboard instance. Its generate command
opens the event stream and renders progress as frames arrive.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "dashboard base URL")
	cmd.PersistentFlags().StringVar(&owner, "owner", "", "owner identity (enables persistence)")
	cmd.AddCommand(newGenerateCmd())
	return cmd
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <repo-url>",
		Short: "Generate documentation for a repository",
		Args:  cobra.ExactArgs(1),
		RunE:  runGenerate,
	}
	cmd.Flags().StringVar(&docType, "doc-type", "", "documentation type hint")
	return cmd
}

func runGenerate(cmd *cobra.Command, args []string) error {
	body, err := json.Marshal(map[string]string{
		"repoUrl": args[0],
		"docType": docType,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(
		cmd.Context(),
		http.MethodPost,
		strings.TrimRight(serverURL, "/")+"/api/generate",
		bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if owner != "" {
		req.Header.Set("X-Owner-Identity", owner)
	}

	consumer := stream.NewConsumer()
	consumer.OnProgress = func(percent int, message string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%3d%% %s\n", percent, message)
	}
	consumer.OnSaved = func(slug string) {
		fmt.Fprintf(cmd.OutOrStdout(), "saved as %s\n", slug)
	}
	consumer.Begin()

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		consumer.FailRequest(err.Error())
		return fmt.Errorf("call dashboard: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		// JSON fallback path: print the mirrored object as-is.
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			consumer.FailRequest(err.Error())
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			consumer.FailRequest(fmt.Sprintf("status %d", resp.StatusCode))
			return fmt.Errorf("generation failed: %s", strings.TrimSpace(string(raw)))
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(raw)))
		return nil
	}

	consumer.StreamStarted()
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			consumer.Feed(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				consumer.FailRequest(err.Error())
				return fmt.Errorf("read stream: %w", err)
			}
			break
		}
	}
	consumer.Close()

	switch consumer.CurrentState() {
	case stream.StateFailed:
		return fmt.Errorf("generation failed: %s", consumer.FailureMessage())
	case stream.StateCompleted:
		if consumer.Result() == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "stream ended with no result")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "generation complete")
		if !consumer.Persisted() && owner != "" {
			fmt.Fprintln(cmd.OutOrStdout(), "warning: result was not persisted")
		}
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
