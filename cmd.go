package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"earshot/analysis"
	"earshot/archive"
	"earshot/clipboard"
	"earshot/credential"
	"earshot/doctor"
	"earshot/encoder"
	"earshot/export"
	"earshot/gemini"
	"earshot/log"
	"earshot/recorder"
	"earshot/toc"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	idStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	countStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	dateStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

var errArchiveUnavailable = errors.New("session archive unavailable")

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "earshot",
		Short: "Record a conversation with a live, topic-indexed table of contents",
		Long: `earshot records a conversation, transcribes it live and keeps a
timestamped table of contents as the topic changes.

Quick Start:
  earshot                          # interactive recorder
  earshot key set                  # store the GEMINI_API_KEY
  earshot sessions list            # past sessions
  earshot analyze rec.flac --copy  # report for a recording`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(g.logPath)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(g, false)
		},
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default is the platform config dir)")
	root.PersistentFlags().StringVar(&g.logPath, "logpath", "", "log directory")
	root.PersistentFlags().StringVar(&g.device, "device", "", "capture device name")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newRunCmd(g), newKeyCmd(g), newSessionsCmd(g), newAnalyzeCmd(g), newDoctorCmd(g))
	return root
}

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		headless bool
		wav      string
		offline  bool
		setup    bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the recorder",
		Long: `Start the recorder. With --headless, commands are read from stdin one
per line (START, FINAL <text>, STOP, ...) and events are printed to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if headless {
				return runTestMode(g, wav, offline, cmd.InOrStdin(), cmd.OutOrStdout())
			}
			return runTUI(g, setup)
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "scripted mode without a terminal UI")
	cmd.Flags().StringVar(&wav, "wav", "", "feed this WAV file as microphone input (headless)")
	cmd.Flags().BoolVar(&offline, "offline", false, "use canned model replies instead of the API (headless)")
	cmd.Flags().BoolVar(&setup, "setup", false, "pick the microphone interactively")
	return cmd
}

func newKeyCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the stored " + credential.KeyName,
	}

	set := &cobra.Command{
		Use:   "set [value]",
		Short: "Store the API key (read from stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value string
			if len(args) == 1 {
				value = args[0]
			} else {
				v, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				value = v
			}
			value = strings.TrimSpace(value)
			if value == "" {
				return errors.New("empty key")
			}
			return withCredentials(g, func(s credential.Store) error {
				if err := s.Set(cmd.Context(), credential.KeyName, value); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s %s\n", credential.KeyName, credential.Mask(value))
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the masked key and where it comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCredentials(g, func(s credential.Store) error {
				v, err := credential.Resolve(cmd.Context(), s)
				if errors.Is(err, credential.ErrNotFound) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is not set\n", credential.KeyName)
					return nil
				}
				if err != nil {
					return err
				}
				source := "store"
				if strings.TrimSpace(os.Getenv(credential.KeyName)) != "" {
					source = "environment"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", credential.KeyName, credential.Mask(v), source)
				return nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCredentials(g, func(s credential.Store) error {
				if err := s.Clear(cmd.Context(), credential.KeyName); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", credential.KeyName)
				return nil
			})
		},
	}

	cmd.AddCommand(set, show, clearCmd)
	return cmd
}

func withCredentials(g *globalFlags, fn func(credential.Store) error) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	s, err := openCredentials(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// readSecret reads one line, without echo when in is a terminal.
func readSecret(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(prompt, "%s: ", credential.KeyName)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read key: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read key: %w", err)
	}
	return line, nil
}

func withArchive(g *globalFlags, fn func(*archive.Store) error) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	s, err := archive.Open(archive.DefaultPath(cfg.DataDir))
	if err != nil {
		return fmt.Errorf("%w: %w", errArchiveUnavailable, err)
	}
	defer s.Close()
	return fn(s)
}

func newSessionsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"ls"},
		Short:   "Browse recorded sessions",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(g, func(s *archive.Store) error {
				sessions, err := s.Sessions(cmd.Context(), limit)
				if err != nil {
					return err
				}
				printSessions(cmd.OutOrStdout(), sessions)
				return nil
			})
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "maximum sessions to show")

	var format string
	tocCmd := &cobra.Command{
		Use:   "toc <id>",
		Short: "Print a session's table of contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ex, err := toc.NewExporter(format)
			if err != nil {
				return err
			}
			return withArchive(g, func(s *archive.Store) error {
				sess, err := s.Session(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				snap, err := s.TOC(cmd.Context(), sess.ID)
				if err != nil {
					return err
				}
				return ex.Export(snap, cmd.OutOrStdout())
			})
		},
	}
	tocCmd.Flags().StringVarP(&format, "format", "f", "txt", "txt, md, json or yaml")

	transcript := &cobra.Command{
		Use:   "transcript <id>",
		Short: "Print a session's final utterances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(g, func(s *archive.Store) error {
				sess, err := s.Session(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				utts, err := s.Utterances(cmd.Context(), sess.ID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, u := range utts {
					fmt.Fprintf(out, "%s  %s\n", toc.FormatRelative(u.At.Sub(sess.StartedAt)), u.Text)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(list, tocCmd, transcript)
	return cmd
}

func printSessions(out io.Writer, sessions []archive.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, headerStyle.Render("No sessions recorded yet"))
		return
	}
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d session(s)", len(sessions))))

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tLENGTH\tUTTERANCES\tTOPICS\tSTATUS")
	for _, s := range sessions {
		length := "-"
		if s.EndedAt != nil {
			length = toc.FormatRelative(s.EndedAt.Sub(s.StartedAt))
		}
		status := s.Status
		if status == "" {
			status = "recording"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			idStyle.Render(shortID(s.ID)),
			dateStyle.Render(s.StartedAt.Local().Format("2006-01-02 15:04")),
			length,
			countStyle.Render(fmt.Sprint(s.Utterances)),
			s.Topics,
			status,
		)
	}
	w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newAnalyzeCmd(g *globalFlags) *cobra.Command {
	var (
		sessionID string
		copyOut   bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <recording>",
		Short: "Write an analysis report for a saved recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(g)
			if err != nil {
				return err
			}
			defer e.Close()

			blob, err := loadRecording(args[0])
			if err != nil {
				return err
			}
			start := time.Now()
			var transcript []string
			if sessionID != "" {
				if e.arch == nil {
					return errArchiveUnavailable
				}
				sess, err := e.arch.Session(cmd.Context(), sessionID)
				if err != nil {
					return err
				}
				utts, err := e.arch.Utterances(cmd.Context(), sess.ID)
				if err != nil {
					return err
				}
				for _, u := range utts {
					transcript = append(transcript, u.Text)
				}
				sessionID, start = sess.ID, sess.StartedAt
			}

			rep, err := analyzeRecording(cmd.Context(), e, blob, transcript)
			if err != nil {
				return err
			}
			path, err := export.WriteReport(e.files, start, rep.HTML)
			if err != nil {
				return err
			}
			if sessionID != "" {
				if _, err := e.arch.SaveReport(cmd.Context(), sessionID, rep.Model, rep.HTML); err != nil {
					log.Warnf("archive report: %v", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "report from %s saved to %s\n", rep.Model, path)
			if copyOut {
				if err := clipboard.CopyReport(rep.HTML); err != nil {
					return fmt.Errorf("copy report: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "copied to clipboard")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "include this archived session's transcript")
	cmd.Flags().BoolVarP(&copyOut, "copy", "c", false, "copy the report text to the clipboard")
	return cmd
}

func loadRecording(path string) (recorder.Blob, error) {
	f, ok := encoder.ByExt(filepath.Ext(path))
	if !ok {
		return recorder.Blob{}, fmt.Errorf("%s: unsupported recording type", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return recorder.Blob{}, err
	}
	return recorder.Blob{Data: data, MIMEType: f.MIMEType, Ext: f.Ext}, nil
}

func analyzeRecording(ctx context.Context, e *env, blob recorder.Blob, transcript []string) (analysis.Report, error) {
	key, err := credential.Resolve(ctx, e.creds)
	if err != nil {
		return analysis.Report{}, fmt.Errorf("%s: %w", credential.KeyName, err)
	}
	model, err := gemini.New(ctx, gemini.Options{APIKey: key})
	if err != nil {
		return analysis.Report{}, err
	}
	opts := e.sessionOptions().Analysis
	// A standalone recording may have no transcript at all.
	opts.MinUtterances = 0
	return analysis.New(model, opts).Analyze(ctx, blob, transcript)
}

func newDoctorCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, key, microphone and model access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(g)
			if err != nil {
				return err
			}
			defer e.Close()
			if code := doctor.Run(doctor.Options{Config: e.cfg, Credentials: e.creds}); code != 0 {
				return errors.New("some checks failed")
			}
			return nil
		},
	}
}
