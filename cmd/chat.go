package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/assistant"
	"github.com/spigell/career-assistant/internal/logger"
	"github.com/spigell/career-assistant/internal/textextract"
)

const (
	CommandUpload = "/upload"
	CommandState  = "/state"
	CommandCoach  = "/coach"
	CommandNew    = "/new"
	CommandExit   = "/exit"
	CommandHelp   = "/help"
	PromptBack    = "back"
)

var errExit = errors.New("exit requested")

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation with the assistant",
	Run: func(cmd *cobra.Command, _ []string) {
		chat(cmd)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("resume", "r", "", "upload this résumé before the first message")
	chatCmd.Flags().StringP("session", "s", "", "session id to use (default is a random one)")
}

func chat(cmd *cobra.Command) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the career assistant", zap.String("version", version))

	service, cleanup, err := newService(ctx, config, logger)
	if err != nil {
		logger.Fatal("creating the assistant", zap.Error(err))
	}
	defer cleanup()

	r := &repl{service: service, logger: logger}
	r.sessionID, _ = cmd.Flags().GetString("session")

	if resume, _ := cmd.Flags().GetString("resume"); resume != "" {
		if err := r.upload(ctx, resume); err != nil {
			logger.Error("uploading résumé", zap.Error(err))
		}
	}

	fmt.Println("Type a message, or /help for commands.")
	for {
		input := promptui.Prompt{Label: "you"}
		line, err := input.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				return
			}
			logger.Fatal("reading input", zap.Error(err))
		}

		if err := r.handle(ctx, strings.TrimSpace(line)); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Error("handling command", zap.Error(err))
		}
	}
}

type repl struct {
	service   *assistant.Service
	sessionID string
	logger    *zap.Logger
}

func (r *repl) handle(ctx context.Context, line string) error {
	if line == "" {
		return nil
	}

	command, arg, _ := strings.Cut(line, " ")
	switch command {
	case CommandExit:
		return errExit
	case CommandHelp:
		fmt.Printf("%s <path>  upload a résumé (PDF, DOCX, DOC, RTF, ODT or text)\n", CommandUpload)
		fmt.Printf("%s         show the session state\n", CommandState)
		fmt.Printf("%s         pick a listed posting to prepare an interview for\n", CommandCoach)
		fmt.Printf("%s           start a new session\n", CommandNew)
		fmt.Printf("%s          quit\n", CommandExit)
		return nil
	case CommandUpload:
		return r.upload(ctx, strings.TrimSpace(arg))
	case CommandState:
		return r.state()
	case CommandCoach:
		return r.coach(ctx)
	case CommandNew:
		if r.sessionID != "" {
			if err := r.service.Reset(ctx, r.sessionID); err != nil {
				return fmt.Errorf("reset session: %w", err)
			}
		}
		r.sessionID = ""
		fmt.Println("Started a new session.")
		return nil
	}

	r.say(ctx, line, nil)
	return nil
}

func (r *repl) say(ctx context.Context, text string, doc *textextract.Document) {
	resp := r.service.HandleTurn(ctx, r.sessionID, text, doc)
	r.sessionID = resp.SessionID
	fmt.Printf("\n%s\n\n", resp.Text)
}

func (r *repl) upload(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("usage: %s <path>", CommandUpload)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() > textextract.MaxSize {
		return fmt.Errorf("%s is larger than %d MB", path, textextract.MaxSize>>20)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	r.logger.Debug("uploading document", zap.String("path", path), zap.Int64("size", info.Size()))
	r.say(ctx, "", &textextract.Document{Name: filepath.Base(path), Data: data})
	return nil
}

func (r *repl) state() error {
	snap, ok := r.service.Snapshot(r.sessionID)
	if !ok {
		fmt.Println("No conversation yet.")
		return nil
	}

	// transcript is long and already on screen
	snap.History = nil
	pretty, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}

func (r *repl) coach(ctx context.Context) error {
	snap, ok := r.service.Snapshot(r.sessionID)
	if !ok || snap.LastResults.Len() == 0 {
		fmt.Println("There are no listed postings. Search for jobs first.")
		return nil
	}

	items := make([]string, 0, snap.LastResults.Len()+1)
	for i, res := range snap.LastResults.Results {
		items = append(items, fmt.Sprintf("#%d %s", i+1, res.Posting.String()))
	}

	postingPrompt := promptui.Select{
		Label: "Choose a posting and press ENTER",
		Items: append(items, PromptBack),
	}
	idx, selected, err := postingPrompt.Run()
	if err != nil {
		return err
	}
	if selected == PromptBack {
		return nil
	}

	r.say(ctx, fmt.Sprintf("prepare me for an interview for #%d", idx+1), nil)
	return nil
}
