package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"

	"github.com/stefanclaw/clawbridge/internal/assistant"
	"github.com/stefanclaw/clawbridge/internal/bridge"
	"github.com/stefanclaw/clawbridge/internal/channel"
	"github.com/stefanclaw/clawbridge/internal/config"
	"github.com/stefanclaw/clawbridge/internal/enrich"
	"github.com/stefanclaw/clawbridge/internal/extract"
	"github.com/stefanclaw/clawbridge/internal/fetcher"
	"github.com/stefanclaw/clawbridge/internal/history"
	"github.com/stefanclaw/clawbridge/internal/logging"
	"github.com/stefanclaw/clawbridge/internal/record"
	"github.com/stefanclaw/clawbridge/internal/telegram"
	"github.com/stefanclaw/clawbridge/internal/update"
	"github.com/stefanclaw/clawbridge/internal/vision"
)

var version = "dev"

func main() {
	// .env next to the binary or cwd; missing file is fine
	_ = godotenv.Load()

	var onceMode bool
	filteredArgs := []string{os.Args[0]}
	for i := 1; i < len(os.Args); i++ {
		if os.Args[i] == "--once" {
			onceMode = true
		} else {
			filteredArgs = append(filteredArgs, os.Args[i])
		}
	}
	os.Args = filteredArgs

	if !onceMode && len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v":
			fmt.Printf("clawbridge %s\n", version)
			return
		case "--help", "-h":
			printHelp()
			return
		case "--update":
			runUpdate()
			return
		}
	}

	if onceMode {
		message := strings.Join(os.Args[1:], " ")
		if err := runOnce(message); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, logFile, err := logging.Setup(config.LogDir(), false)
	if err != nil {
		return err
	}
	defer logFile.Close()

	log.Info().Str("version", version).Msg("starting clawbridge")

	if version != "dev" {
		go notifyNewVersion(log)
	}

	cleanupCron, err := logging.ScheduleCleanup(config.LogDir(), cfg.Logs.RetentionDays, log)
	if err != nil {
		return err
	}
	defer cleanupCron.Stop()

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN not set — configure it in .env or the environment")
	}

	br, err := buildBridge(cfg, log)
	if err != nil {
		return err
	}

	var ch channel.Channel = telegram.NewPoller(
		telegram.NewClient(token),
		br,
		time.Duration(cfg.Telegram.PollTimeout)*time.Second,
		log,
	)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		log.Info().Str("signal", s.String()).Str("channel", ch.Name()).Msg("shutting down")
		_ = ch.Stop()
	}()

	return ch.Start()
}

// runOnce processes one message from args or stdin and prints the reply, no
// Telegram involved. Useful for smoke-testing the pipeline.
func runOnce(message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		message = strings.TrimSpace(strings.Join(lines, "\n"))
	}
	if message == "" {
		return fmt.Errorf("no message provided — pass it as arguments or pipe to stdin")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, logFile, err := logging.Setup(config.LogDir(), false)
	if err != nil {
		return err
	}
	defer logFile.Close()

	br, err := buildBridge(cfg, log)
	if err != nil {
		return err
	}

	reply, status := br.HandleMessage(context.Background(), 0, message)
	if status != "" {
		fmt.Println(status)
		fmt.Println()
	}
	fmt.Println(reply)
	return nil
}

func loadConfig() (config.Config, error) {
	if config.IsFirstRun() {
		if err := config.Save(config.Defaults()); err != nil {
			return config.Config{}, fmt.Errorf("writing initial config: %w", err)
		}
		fmt.Printf("Created default config at %s\n", config.ConfigFile())
	}
	cfg, err := config.Load()
	if err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// buildBridge probes capabilities and wires the full pipeline.
func buildBridge(cfg config.Config, log zerolog.Logger) (*bridge.Bridge, error) {
	apiKey := os.Getenv("LLM_API_KEY")
	_, ytdlpErr := exec.LookPath("yt-dlp")

	caps := config.Capabilities{
		Vision:  cfg.Vision.Enabled && apiKey != "",
		Extract: cfg.Extract.Enabled && apiKey != "",
		YtDlp:   ytdlpErr == nil,
	}
	log.Info().
		Bool("vision", caps.Vision).
		Bool("extract", caps.Extract).
		Bool("ytdlp", caps.YtDlp).
		Msg("capabilities probed")

	var llmClient *openai.Client
	if apiKey != "" {
		c := openai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(cfg.LLM.BaseURL))
		llmClient = &c
	}

	fetchOpts := fetcher.Options{
		Timeout:   time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
		MaxImages: cfg.Vision.MaxImages,
		UserAgent: cfg.Fetch.UserAgent,
	}

	var visionClient *openai.Client
	if caps.Vision {
		visionClient = llmClient
	}
	analyzer := vision.New(visionClient, vision.Config{
		Enabled:   caps.Vision,
		Model:     cfg.Vision.Model,
		MaxImages: cfg.Vision.MaxImages,
		Timeout:   time.Duration(cfg.Vision.TimeoutSeconds) * time.Second,
		UserAgent: cfg.Fetch.UserAgent,
	}, log)

	var extractClient *openai.Client
	if caps.Extract {
		extractClient = llmClient
	}
	enhancer := extract.New(extractClient, cfg.Extract.Model, log)

	pre := enrich.New(
		fetcher.NewFxTwitter(fetchOpts, log),
		fetcher.NewYtDlp(caps.YtDlp, fetchOpts, log),
		fetcher.NewScraper(fetchOpts, log),
		analyzer,
		enhancer,
		log,
	)

	cliPath := assistant.FindCLI(cfg.Assistant.CLIPath)
	if cliPath == "" {
		return nil, fmt.Errorf("claude CLI not found — install Claude Code or set CLAUDE_CLI_PATH")
	}
	log.Info().Str("path", cliPath).Msg("claude CLI found")

	workDir := cfg.Assistant.WorkingDir
	if workDir == "" {
		workDir = config.DefaultWorkingDir()
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating working dir: %w", err)
	}

	runner := assistant.New(assistant.Options{
		CLIPath:        cliPath,
		WorkingDir:     workDir,
		Timeout:        time.Duration(cfg.Assistant.TimeoutSeconds) * time.Second,
		AllowDangerous: cfg.Assistant.AllowDangerous,
		MaxOutputChars: cfg.Assistant.MaxOutputChars,
	}, log)

	hist, err := history.Load(config.HistoryFile(), cfg.History.MaxRounds)
	if err != nil {
		log.Warn().Err(err).Msg("loading history failed, starting fresh")
	}

	return bridge.New(bridge.Options{
		AllowedUserIDs: cfg.Telegram.AllowedUserIDs,
		MaxRounds:      cfg.History.MaxRounds,
		WorkingDir:     workDir,
		LogDir:         config.LogDir(),
		HistoryPath:    config.HistoryFile(),
		RetentionDays:  cfg.Logs.RetentionDays,
		AllowDangerous: cfg.Assistant.AllowDangerous,
		Caps:           caps,
	}, hist, pre, runner, record.New(config.FetchOutputDir()), enhancer, log), nil
}

// notifyNewVersion logs when a newer release exists. Best-effort; failures
// (offline, rate-limited) stay out of the user's way.
func notifyNewVersion(log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res, err := update.Check(ctx, version)
	if err != nil {
		log.Debug().Err(err).Msg("update check failed")
		return
	}
	if res.UpdateAvailable {
		log.Info().Str("latest", res.LatestVersion).Msg("new version available, run clawbridge --update")
	}
}

func runUpdate() {
	if version == "dev" {
		fmt.Println("Auto-update is not available for development builds.")
		return
	}
	fmt.Println("Checking for updates...")
	res, err := update.Apply(context.Background(), version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Update failed: %v\n", err)
		os.Exit(1)
	}
	if res.Applied {
		fmt.Printf("Updated to v%s. Restart clawbridge to use the new version.\n", res.LatestVersion)
	} else {
		fmt.Println("Already running the latest version.")
	}
}

func printHelp() {
	fmt.Printf(`clawbridge %s — Telegram bridge to the Claude Code CLI

Usage:
  clawbridge              Start the Telegram bot
  clawbridge --once MSG   Process one message and print the reply (no Telegram)
  clawbridge --version    Show version
  clawbridge --update     Self-update to the latest release
  clawbridge --help       Show this help

Environment:
  TELEGRAM_BOT_TOKEN      Bot token (required for bot mode)
  ALLOWED_USER_ID         Comma-separated allowed Telegram user IDs
  LLM_API_KEY             API key for image analysis and structured extraction
  CLAUDE_CLI_PATH         Path to the claude binary
  CLAWBRIDGE_CONFIG_DIR   Config directory (default ~/.config/clawbridge)

Config file: %s
`, version, config.ConfigFile())
}
