package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sdgteacher/sdgchat/internal/capture"
	"github.com/sdgteacher/sdgchat/internal/chat"
	"github.com/sdgteacher/sdgchat/internal/memory"
)

const replHelp = `Commands:
  /mode [sustainability|personal-assistant]  show or switch persona
  /user <name>                               select a profile
  /logout                                    forget the active profile
  /photo <image-file>                        stage a still frame
  /video <media-file> [context]              stage a recording
  /upload <file>                             stage an image or video file
  /clear                                     discard staged media
  /send                                      send staged media without text
  /mic <audio-file>                          transcribe and send a voice note
  /history                                   reload both conversations
  /memory                                    show environment memory
  /quit                                      leave
Anything else is sent as a message, with staged media attached.`

// sendAndPrint sends one turn and prints the reply, or the apology on failure.
func sendAndPrint(ctx context.Context, a *app, text string, media *capture.Media) error {
	return sendTo(ctx, os.Stdout, a, text, media)
}

func sendTo(ctx context.Context, out io.Writer, a *app, text string, media *capture.Media) error {
	reply, err := a.chat.SendMessage(ctx, text, media)
	if errors.Is(err, chat.ErrEmptyMessage) {
		return err
	}

	entries := a.chat.Transcript()
	if len(entries) > 0 {
		fmt.Fprintln(out, formatEntry(entries[len(entries)-1]))
	}
	if err != nil {
		return fmt.Errorf("chat request failed: %w", err)
	}

	if o := reply.Observation; o != nil {
		note := fmt.Sprintf("remembered %s observation", o.Type)
		if o.IsTour {
			note = render(tourStyle, "room tour") + " " + note
		}
		if len(o.Items) > 0 {
			note += ": " + strings.Join(o.Items, ", ")
		}
		fmt.Fprintln(out, render(timestampStyle, note))
	}
	return nil
}

// repl runs the interactive loop until /quit, EOF or ctx is done.
type repl struct {
	a      *app
	out    io.Writer
	staged *capture.Media
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64<<10), 1<<20)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(r.out, r.prompt())
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := r.handle(ctx, strings.TrimSpace(line))
			if err != nil {
				printError("%v", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func (r *repl) prompt() string {
	who := r.a.chat.Username()
	if who == "" {
		who = "guest"
	}
	p := fmt.Sprintf("%s@%s", who, r.a.chat.Mode())
	if r.staged != nil {
		p += " [" + r.staged.Type + "]"
	}
	return render(labelStyle, p+"> ")
}

func (r *repl) handle(ctx context.Context, line string) (quit bool, err error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		media := r.staged
		r.staged = nil
		return false, sendTo(ctx, r.out, r.a, line, media)
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, replHelp)
	case "/mode":
		if rest == "" {
			fmt.Fprintln(r.out, r.a.chat.Mode())
			return false, nil
		}
		return false, r.a.chat.SetMode(rest)
	case "/user":
		if rest == "" {
			return false, fmt.Errorf("usage: /user <name>")
		}
		p, err := r.a.chat.StartSession(ctx, rest)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "Profile %s (session %d)\n", p.Username, p.SessionsCount)
	case "/logout":
		return false, r.a.chat.EndSession()
	case "/photo":
		m, err := capturePhoto(ctx, newCamera(rest, ""))
		if err != nil {
			return false, err
		}
		r.staged = &m
	case "/video":
		path, videoContext, _ := strings.Cut(rest, " ")
		m, err := captureVideo(ctx, newCamera("", path), 0, strings.TrimSpace(videoContext))
		if err != nil {
			return false, err
		}
		r.staged = &m
	case "/upload":
		m, err := uploadMedia(newCamera("", ""), rest)
		if err != nil {
			return false, err
		}
		r.staged = &m
	case "/clear":
		r.staged = nil
	case "/send":
		if r.staged == nil {
			return false, fmt.Errorf("nothing staged")
		}
		media := r.staged
		r.staged = nil
		return false, sendTo(ctx, r.out, r.a, "", media)
	case "/mic":
		res, err := transcribeFile(ctx, r.a.chat, rest)
		if err != nil {
			return false, err
		}
		if res.EnvironmentalContext != "" {
			fmt.Fprintln(r.out, render(timestampStyle, "heard: "+res.EnvironmentalContext))
		}
		if res.Text == "" {
			return false, nil
		}
		fmt.Fprintln(r.out, formatEntry(chat.Entry{Role: chat.RoleUser, Text: res.Text}))
		media := r.staged
		r.staged = nil
		return false, sendTo(ctx, r.out, r.a, res.Text, media)
	case "/history":
		if _, err := r.a.chat.LoadHistory(ctx, r.a.chat.Username()); err != nil {
			return false, err
		}
		for _, e := range r.a.chat.Transcript() {
			fmt.Fprintln(r.out, formatEntry(e))
		}
	case "/memory":
		mem, err := r.a.chat.Memory()
		if err != nil {
			return false, err
		}
		for _, l := range memory.FormatForBackend(mem, nowFunc()) {
			fmt.Fprintln(r.out, l)
		}
	default:
		return false, fmt.Errorf("unknown command %s, try /help", cmd)
	}
	return false, nil
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
			if err := a.chat.SetMode(mode); err != nil {
				return err
			}
		}

		if username := a.chat.Username(); username != "" {
			if _, err := a.chat.LoadHistory(ctx, username); err != nil {
				printWarning("could not load history: %v", err)
			}
			printEntries(a.chat.Transcript())

			if watch, _ := cmd.Flags().GetBool("locket"); watch {
				p := locketPoller(a, username)
				p.OnChange = func(connected bool) {
					printStatus("Locket", "%s", connectedLabel(connected))
				}
				go p.Run(ctx)
			}
		}

		printStep("Session %s, type /help for commands", a.chat.SessionID())
		r := &repl{a: a, out: os.Stdout}
		return r.run(ctx, os.Stdin)
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send a single message",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
			if err := a.chat.SetMode(mode); err != nil {
				return err
			}
		}
		return sendAndPrint(ctx, a, strings.Join(args, " "), nil)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the merged conversation history of the active profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		username := a.chat.Username()
		if username == "" {
			return fmt.Errorf("no active profile; pass --user or run sdgchat login")
		}
		if _, err := a.chat.LoadHistory(ctx, username); err != nil {
			return err
		}
		entries := a.chat.Transcript()
		if len(entries) == 0 {
			printWarning("No messages for %s", username)
			return nil
		}
		printEntries(entries)
		return nil
	},
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <audio-file>",
	Short: "Transcribe an audio file with environment memory as context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := transcribeFile(ctx, a.chat, args[0])
		if err != nil {
			return err
		}
		fmt.Println(res.Text)
		if res.EnvironmentalContext != "" {
			printStatus("Environment", "%s", res.EnvironmentalContext)
		}
		return nil
	},
}

func init() {
	chatCmd.Flags().String("mode", "", "conversation mode to start in")
	chatCmd.Flags().Bool("locket", false, "report locket connection changes")
	sendCmd.Flags().String("mode", "", "conversation mode for this message")
}
