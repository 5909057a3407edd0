package main

import (
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iris-ai/iris-go/internal/attach"
	"github.com/iris-ai/iris-go/internal/chat"
	"github.com/iris-ai/iris-go/internal/nav"
	"github.com/iris-ai/iris-go/internal/session"
)

func newChatCmd() *cobra.Command {
	var (
		modeFlag    string
		modelFlag   string
		agentFlag   string
		fileFlags   []string
		dirFlag     string
		contextMgr  bool
	)

	cmd := &cobra.Command{
		Use:   "chat [prompt...]",
		Short: "Submit a chat turn",
		Long: `Submit a chat turn to the Iris backend.

Modes:
  quick     one-shot answer, no thread
  adaptive  the server decides whether agent work is needed (default)
  execute   full agent run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			env, err := prepareRuntimeEnv(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			turn := chat.Turn{
				Prompt:         strings.Join(args, " "),
				Mode:           chat.Mode(modeFlag),
				ContextManager: contextMgr,
			}
			if agentFlag != "" || env.Config.DefaultAgent != "" {
				want := agentFlag
				if want == "" {
					want = env.Config.DefaultAgent
				}
				id, err := env.Agents.Resolve(want)
				if err != nil {
					return err
				}
				turn.AgentID = id
			}
			turn.Attachments, err = gatherAttachments(fileFlags, dirFlag)
			if err != nil {
				return err
			}

			// Watch staged files so an edit between staging and submit
			// invalidates the captured payload.
			queue, watcher, err := watchStaged(turn.Attachments)
			if err != nil {
				return err
			}
			if watcher != nil {
				defer watcher.Close()
			}

			out := cmd.OutOrStdout()
			sessions := env.Sessions
			printer := &streamPrinter{out: out}

			ctrl := chat.NewController(chat.Deps{
				API:      env.Client,
				Sessions: sessions,
				Navigator: nav.NavigatorFunc(func(i nav.Intent) error {
					fmt.Fprintf(out, "\nthread %s\n", i.URL())
					sessions.Subscribe(session.Key(i.ProjectID, i.ThreadID), printer)
					return nil
				}),
				Prefs:   env.Prefs,
				History: env.Archive,
				Hooks: chat.Hooks{
					OnFastResponse: func(r chat.FastResponse) {
						if r.Mode == chat.ModeQuick {
							fmt.Fprintln(out, r.Answer)
							return
						}
						if r.AutoEscalate {
							fmt.Fprintln(out, "(escalating to agent run)")
						}
					},
				},
				DefaultModel: pickModel(modelFlag, env.Config.DefaultModel),
			})

			if modeFlag != "" {
				// An explicit mode choice becomes the new default.
				if err := ctrl.SetPreferredMode(ctx, chat.Mode(modeFlag)); err != nil {
					cmd.PrintErrf("warning: could not save mode preference: %v\n", err)
				}
			}

			if err := refreshStale(queue, turn.Attachments); err != nil {
				return err
			}

			handle, err := ctrl.Submit(ctx, turn, chat.SubmitOptions{ModelName: modelFlag})
			if err != nil {
				return err
			}

			go func() {
				<-ctx.Done()
				handle.Abort()
			}()
			if err := handle.Wait(); err != nil {
				return err
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "", "Routing mode: quick, adaptive or execute (default: last used)")
	cmd.Flags().StringVar(&modelFlag, "model", "", "Model name override")
	cmd.Flags().StringVarP(&agentFlag, "agent", "a", "", "Agent id or name")
	cmd.Flags().StringArrayVarP(&fileFlags, "file", "f", nil, "Attach a file (repeatable)")
	cmd.Flags().StringVar(&dirFlag, "dir", "", "Attach a directory tree, honoring .gitignore")
	cmd.Flags().BoolVar(&contextMgr, "context-manager", false, "Enable the server-side context manager")
	return cmd
}

func pickModel(flag, configured string) string {
	if flag != "" {
		return flag
	}
	return configured
}

func gatherAttachments(files []string, dir string) ([]attach.Attachment, error) {
	var atts []attach.Attachment
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", path, err)
		}
		atts = append(atts, attach.Attachment{
			Name:      filepath.Base(path),
			MimeType:  mime.TypeByExtension(filepath.Ext(path)),
			LocalPath: path,
			Data:      data,
			State:     attach.StateUploaded,
		})
	}
	if dir != "" {
		collected, err := attach.CollectDir(dir)
		if err != nil {
			return nil, err
		}
		atts = append(atts, collected...)
	}
	return atts, nil
}

// watchStaged puts locally staged attachments under an upload queue and a
// filesystem watcher. Returns (nil, nil, nil) when nothing is staged.
func watchStaged(atts []attach.Attachment) (*attach.Queue, *attach.Watcher, error) {
	var staged []string
	for _, a := range atts {
		if a.LocalPath != "" {
			staged = append(staged, a.LocalPath)
		}
	}
	if len(staged) == 0 {
		return nil, nil, nil
	}

	queue := attach.NewQueue()
	watcher, err := attach.NewWatcher(queue)
	if err != nil {
		return nil, nil, err
	}
	for _, path := range staged {
		queue.Set(path, attach.StateUploaded)
		if err := watcher.Watch(path); err != nil {
			watcher.Close()
			return nil, nil, err
		}
	}
	watcher.Start()
	return queue, watcher, nil
}

// refreshStale re-reads any staged file the watcher flipped back to pending
// so the submitted payload matches what is on disk.
func refreshStale(queue *attach.Queue, atts []attach.Attachment) error {
	if queue == nil {
		return nil
	}
	for i := range atts {
		a := &atts[i]
		if a.LocalPath == "" || queue.Get(a.LocalPath) == attach.StateUploaded {
			continue
		}
		data, err := os.ReadFile(a.LocalPath)
		if err != nil {
			return fmt.Errorf("re-read changed attachment %s: %w", a.LocalPath, err)
		}
		a.Data = data
		queue.Set(a.LocalPath, attach.StateUploaded)
	}
	return nil
}

// streamPrinter renders session fragments as they arrive.
type streamPrinter struct {
	out io.Writer
}

func (p *streamPrinter) OnFragment(_ string, f session.Fragment) {
	switch f.Kind {
	case session.FragmentText:
		fmt.Fprint(p.out, f.Text)
	case session.FragmentTool:
		fmt.Fprintf(p.out, "\n[tool: %s]\n", f.ToolName)
	}
}

func (p *streamPrinter) OnStatusChange(_ string, s session.Status) {
	if s == session.StatusFailed {
		fmt.Fprint(p.out, "\n(run failed)\n")
	}
}
