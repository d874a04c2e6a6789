package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/tradejournal/internal/auth"
	"github.com/MarcoPoloResearchLab/tradejournal/internal/editor"
	"github.com/MarcoPoloResearchLab/tradejournal/internal/journal"
	"github.com/MarcoPoloResearchLab/tradejournal/internal/session"
	"github.com/spf13/cobra"
)

type noteOptions struct {
	userID  string
	date    string
	account string
	draft   bool
}

// pendingScheduler holds the latest autosave until Flush so a one-shot
// command can persist a draft without waiting out the delay.
type pendingScheduler struct {
	mu      sync.Mutex
	pending *pendingCall
}

type pendingCall struct {
	scheduler *pendingScheduler
	fn        func()
	stopped   bool
}

func (s *pendingScheduler) AfterFunc(_ time.Duration, fn func()) session.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := &pendingCall{scheduler: s, fn: fn}
	s.pending = call
	return call
}

func (s *pendingScheduler) Flush() {
	s.mu.Lock()
	call := s.pending
	s.pending = nil
	if call == nil || call.stopped {
		s.mu.Unlock()
		return
	}
	call.stopped = true
	s.mu.Unlock()
	call.fn()
}

func (c *pendingCall) Stop() bool {
	c.scheduler.mu.Lock()
	defer c.scheduler.mu.Unlock()
	if c.stopped {
		return false
	}
	c.stopped = true
	return true
}

func newNoteCommand() *cobra.Command {
	options := &noteOptions{}
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Edit a journal entry from the command line",
	}
	cmd.PersistentFlags().StringVar(&options.userID, "user", "", "Owner of the entry")
	cmd.PersistentFlags().StringVar(&options.date, "date", "", "Entry date (YYYY-MM-DD)")
	cmd.PersistentFlags().StringVar(&options.account, "account", "", "Account identifier")

	cmd.AddCommand(
		newNoteShowCommand(options),
		newNoteWriteCommand(options),
		newNoteFormatCommand(options),
		newNoteAttachCommand(options),
		newNoteMoveCommand(options),
		newNoteCaptionCommand(options),
		newNoteDetachCommand(options),
		newNoteDeleteCommand(options),
		newNoteDraftsCommand(),
	)
	return cmd
}

// withSession loads the entry into an editor session, runs fn and reports the
// session's recorded failures.
func withSession(cmd *cobra.Command, options *noteOptions, fn func(ctx context.Context, editorSession *session.Session, scheduler *pendingScheduler) error) error {
	ctx := cmd.Context()
	key, err := journal.NewEntryKey(options.date, options.account)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck

	userID, err := rt.users.Resolve(ctx, auth.SessionClaims{UserID: options.userID})
	if err != nil {
		return err
	}

	scheduler := &pendingScheduler{}
	editorSession, err := session.New(session.Config{
		Key:           key,
		Remote:        rt.journal.ForUser(userID),
		Drafts:        rt.drafts,
		Policy:        rt.uploadPolicy(),
		AutosaveDelay: rt.config.AutosaveDelay,
		Scheduler:     scheduler,
		Logger:        rt.logger,
	})
	if err != nil {
		return err
	}
	defer editorSession.Close()

	if err := editorSession.Load(ctx); err != nil {
		return err
	}
	runErr := fn(ctx, editorSession, scheduler)
	for _, failure := range editorSession.Errors() {
		fmt.Fprintln(cmd.ErrOrStderr(), "error:", failure)
	}
	return runErr
}

// persist saves the buffer, or only flushes the pending draft when --draft is set.
func persist(ctx context.Context, options *noteOptions, editorSession *session.Session, scheduler *pendingScheduler) error {
	if options.draft {
		scheduler.Flush()
		return nil
	}
	return editorSession.Save(ctx)
}

func printSession(out io.Writer, editorSession *session.Session) {
	fmt.Fprintf(out, "entry %s (%s)\n", editorSession.Key(), editorSession.State())
	if editorSession.DraftRestored() {
		fmt.Fprintln(out, "restored from local draft")
	}
	fmt.Fprintln(out, editorSession.Content())
	for _, attachment := range editorSession.Attachments() {
		fmt.Fprintf(out, "[%d] %s %s %q\n", attachment.Order, attachment.AttachmentID, attachment.URL, attachment.Caption)
	}
}

func newNoteShowCommand(options *noteOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the entry, restoring a local draft when the entry is empty",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, options, func(_ context.Context, editorSession *session.Session, _ *pendingScheduler) error {
				printSession(cmd.OutOrStdout(), editorSession)
				return nil
			})
		},
	}
}

func newNoteWriteCommand(options *noteOptions) *cobra.Command {
	var (
		content string
		path    string
	)
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Replace the entry content",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path != "" {
				data, err := readInput(cmd, path)
				if err != nil {
					return err
				}
				content = string(data)
			}
			return withSession(cmd, options, func(ctx context.Context, editorSession *session.Session, scheduler *pendingScheduler) error {
				if err := editorSession.OnBufferChange(content); err != nil {
					return err
				}
				if err := persist(ctx, options, editorSession, scheduler); err != nil {
					return err
				}
				printSession(cmd.OutOrStdout(), editorSession)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "New entry content")
	cmd.Flags().StringVar(&path, "file", "", "Read content from a file, - for stdin")
	cmd.Flags().BoolVar(&options.draft, "draft", false, "Keep the change as a local draft only")
	return cmd
}

func newNoteFormatCommand(options *noteOptions) *cobra.Command {
	var start, end int
	cmd := &cobra.Command{
		Use:   "format ACTION",
		Short: "Apply a toolbar action (bold, italic, strike, code, highlight, color:#hex, h1-h3, bullet, numbered, quote)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := editor.ParseAction(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, options, func(ctx context.Context, editorSession *session.Session, scheduler *pendingScheduler) error {
				editorSession.SetSelection(start, end)
				selection, err := editorSession.ApplyToolbarAction(action)
				if err != nil {
					return err
				}
				if err := persist(ctx, options, editorSession, scheduler); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "selection %d..%d\n", selection.Start, selection.End)
				fmt.Fprintln(cmd.OutOrStdout(), editorSession.Content())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&start, "start", 0, "Selection start offset in characters")
	cmd.Flags().IntVar(&end, "end", 0, "Selection end offset in characters")
	cmd.Flags().BoolVar(&options.draft, "draft", false, "Keep the change as a local draft only")
	return cmd
}

func newNoteAttachCommand(options *noteOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "attach FILE...",
		Short: "Upload images in the given order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uploads := make([]journal.Upload, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				uploads = append(uploads, journal.Upload{Filename: filepath.Base(path), Data: data})
			}
			return withSession(cmd, options, func(ctx context.Context, editorSession *session.Session, _ *pendingScheduler) error {
				_, err := editorSession.UploadAll(ctx, uploads)
				printSession(cmd.OutOrStdout(), editorSession)
				return err
			})
		},
	}
}

func newNoteMoveCommand(options *noteOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move ATTACHMENT_ID up|down",
		Short: "Swap an attachment with its neighbour",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			direction, err := session.ParseDirection(args[1])
			if err != nil {
				return err
			}
			return withSession(cmd, options, func(ctx context.Context, editorSession *session.Session, _ *pendingScheduler) error {
				if err := editorSession.Reorder(ctx, args[0], direction); err != nil {
					return err
				}
				printSession(cmd.OutOrStdout(), editorSession)
				return nil
			})
		},
	}
}

func newNoteCaptionCommand(options *noteOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "caption ATTACHMENT_ID TEXT",
		Short: "Set an attachment caption",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, options, func(ctx context.Context, editorSession *session.Session, _ *pendingScheduler) error {
				return editorSession.Caption(ctx, args[0], args[1])
			})
		},
	}
}

func newNoteDetachCommand(options *noteOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detach ATTACHMENT_ID",
		Short: "Remove an attachment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, options, func(ctx context.Context, editorSession *session.Session, _ *pendingScheduler) error {
				return editorSession.Remove(ctx, args[0])
			})
		},
	}
}

func newNoteDeleteCommand(options *noteOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete the entry, its attachments and its local draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, options, func(ctx context.Context, editorSession *session.Session, _ *pendingScheduler) error {
				return editorSession.Delete(ctx)
			})
		},
	}
}

func newNoteDraftsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drafts",
		Short: "List unsaved local drafts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close() //nolint:errcheck

			pending, err := rt.drafts.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, draft := range pending {
				firstLine, _, _ := strings.Cut(draft.Content, "\n")
				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s\t%s\t%s\n",
					draft.EntryDate, draft.AccountID,
					time.Unix(draft.UpdatedAtSeconds, 0).UTC().Format(time.RFC3339),
					firstLine)
			}
			return nil
		},
	}
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
