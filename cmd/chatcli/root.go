package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"property-chatbot-api/models"
	"property-chatbot-api/pkg/citations"
	"property-chatbot-api/pkg/client"
)

type rootOptions struct {
	baseURL string
	apiKey  string
	timeout time.Duration
}

func (o *rootOptions) client() *client.Client {
	c := client.New(o.baseURL, o.apiKey)
	c.HTTP.Timeout = o.timeout
	return c
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "chatcli",
		Short:        "Ask the property management assistant questions",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", envOr("CHATBOT_BASE_URL", client.DefaultBaseURL), "API base URL")
	cmd.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("CHATBOT_API_KEY"), "API key sent as X-API-Key")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")

	cmd.AddCommand(
		newHealthCmd(opts),
		newAskCmd(opts),
		newUploadCmd(opts),
		newCleanupCmd(opts),
		newReplCmd(opts),
	)
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the API is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := opts.client().Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h.Status)
			return nil
		},
	}
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Ask one question and print the answer with its sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Chat(cmd.Context(), strings.Join(args, " "), sessionID)
			if err != nil {
				return err
			}
			printAnswer(cmd.OutOrStdout(), resp.Response, resp.Sources)
			fmt.Fprintf(cmd.OutOrStdout(), "\nsession: %s\n", resp.SessionID)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to continue")
	return cmd
}

func newUploadCmd(opts *rootOptions) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document into a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := uploadFile(cmd.Context(), opts.client(), sessionID, args[0])
			if err != nil {
				return err
			}
			printUpload(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to upload into")
	return cmd
}

func newCleanupCmd(opts *rootOptions) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete a session's uploaded documents and history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := opts.client().Cleanup(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d files deleted)\n", resp.Message, resp.FilesDeleted)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to clean up")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func uploadFile(ctx context.Context, c *client.Client, sessionID, path string) (*models.UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return c.Upload(ctx, sessionID, filepath.Base(path), f)
}

func printUpload(w io.Writer, resp *models.UploadResponse) {
	fmt.Fprintf(w, "%s\n  %s: %d pages, %d characters\n  session: %s\n",
		resp.Message, resp.Filename, resp.PagesExtracted, resp.TextLength, resp.SessionID)
}

// printAnswer prints the answer with normalized citation markers and lists
// the cited sources below it.
func printAnswer(w io.Writer, text string, sources []citations.Source) {
	var b strings.Builder
	for _, f := range citations.Fragments(text) {
		if f.Kind == citations.FragmentCitation && f.Citation != nil {
			b.WriteString(f.Citation.Label())
			continue
		}
		b.WriteString(f.Text)
	}
	fmt.Fprintln(w, b.String())

	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for _, s := range sources {
		line := fmt.Sprintf("  [%d] %s", s.CitationNumber, s.Filename)
		if s.DownloadURL != "" {
			line += "\n      " + s.DownloadURL
		}
		fmt.Fprintln(w, line)
	}
}
