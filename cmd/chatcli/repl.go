package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"property-chatbot-api/pkg/client"
)

const replHelp = `Commands:
  /upload <path>  attach a document to this conversation
  /copy <n>       copy answer n without citation markers
  /files          list uploaded documents
  /reset          start a new conversation
  /quit           clean up and exit`

func newReplCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conv := client.NewConversation(opts.client())
			r := &repl{conv: conv, out: cmd.OutOrStdout(), timeout: opts.timeout}

			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				conv.Close(ctx)
			}()
			return r.run(cmd.Context(), cmd.InOrStdin())
		},
	}
}

type repl struct {
	conv    *client.Conversation
	out     io.Writer
	timeout time.Duration
	// answers maps the number shown to the user onto the message index.
	answers []int
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintf(r.out, "Property assistant (session %s)\n%s\n\n", r.conv.SessionID(), replHelp)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(ctx, line); quit {
				return nil
			}
			continue
		}
		r.ask(ctx, line)
	}
}

func (r *repl) ask(ctx context.Context, text string) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg, err := r.conv.Send(ctx, text)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n\n", err)
		return
	}
	if msg == nil {
		return
	}
	r.answers = append(r.answers, len(r.conv.Messages())-1)
	fmt.Fprintf(r.out, "\n(%d) ", len(r.answers))
	printAnswer(r.out, msg.Content, msg.Sources)
	fmt.Fprintln(r.out)
}

func (r *repl) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, replHelp)
	case "/upload":
		r.upload(ctx, arg)
	case "/copy":
		r.copy(arg)
	case "/files":
		files := r.conv.Uploads()
		if len(files) == 0 {
			fmt.Fprintln(r.out, "No documents uploaded.")
		}
		for _, f := range files {
			fmt.Fprintf(r.out, "  %s (%d pages, %d bytes)\n", f.Filename, f.Pages, f.Size)
		}
		fmt.Fprintf(r.out, "%d uploads remaining\n", r.conv.UploadsRemaining())
	case "/reset":
		if err := r.conv.Reset(ctx); err != nil {
			fmt.Fprintf(r.out, "cleanup failed: %v\n", err)
		}
		r.answers = nil
		fmt.Fprintf(r.out, "New conversation (session %s)\n", r.conv.SessionID())
	default:
		fmt.Fprintf(r.out, "unknown command %s\n%s\n", name, replHelp)
	}
	return false
}

func (r *repl) upload(ctx context.Context, path string) {
	if path == "" {
		fmt.Fprintln(r.out, "usage: /upload <path>")
		return
	}
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	up, err := r.conv.Upload(ctx, filepath.Base(path), info.Size(), f)
	switch {
	case errors.Is(err, client.ErrUploadLimit):
		fmt.Fprintf(r.out, "Maximum %d files per conversation reached\n", client.MaxUploads)
	case errors.Is(err, client.ErrUploadTooLarge):
		fmt.Fprintf(r.out, "File exceeds maximum size of %dMB\n", client.MaxUploadBytes>>20)
	case err != nil:
		fmt.Fprintf(r.out, "Error: %v\n", err)
	default:
		fmt.Fprintf(r.out, "Uploaded %s (%d pages). Ask away.\n", up.Filename, up.Pages)
	}
}

func (r *repl) copy(arg string) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(r.answers) {
		fmt.Fprintf(r.out, "usage: /copy <1-%d>\n", len(r.answers))
		return
	}
	text, err := r.conv.CopyText(r.answers[n-1])
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	if err := clipboard.WriteAll(text); err != nil {
		// no clipboard on headless hosts
		fmt.Fprintln(r.out, text)
		return
	}
	fmt.Fprintln(r.out, "Copied.")
}
