// Command apnsend sends test push notifications to every device registered
// for a bundle id, resolving targets from the live registry API or from a
// local snapshot file.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/magnolialogic/go-apns-server/internal/dispatcher"
	"github.com/magnolialogic/go-apns-server/internal/platform/apns"
	"github.com/magnolialogic/go-apns-server/pkg/dispatch"
)

// appConfig mirrors app.yaml: APNs credentials plus the registry location.
type appConfig struct {
	BundleID        string `yaml:"bundle-id"`
	APIURL          string `yaml:"api-url"`
	AuthKeyID       string `yaml:"auth-key"`
	AuthKeyFilename string `yaml:"auth-key-filename"`
	TeamID          string `yaml:"team-id"`
	CertFilename    string `yaml:"cert-filename"`
	CertPassword    string `yaml:"cert-password"`
	TokensPath      string `yaml:"tokens-path"`
}

type sendFlags struct {
	configPath  string
	title       string
	body        string
	badge       int
	silent      bool
	background  map[string]string
	production  bool
	useSnapshot bool
	cleanup     bool
	concurrency int
	timeout     time.Duration
}

// sandbox reports the APNs environment to push to. Test pushes go to the
// sandbox unless production is asked for explicitly.
func (f sendFlags) sandbox() bool { return !f.production }

func main() {
	rootCmd, _ := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() (*cobra.Command, *sendFlags) {
	flags := &sendFlags{}

	rootCmd := &cobra.Command{
		Use:   "apnsend",
		Short: "Send test push notifications to your registered iOS devices",
		Long: `apnsend builds one APNs payload and pushes it to every device token
registered for the configured bundle id.

Targets come from the registry service API by default, or from a local
tokens.yaml snapshot with --yaml. Credentials, bundle id, and the API
location are read from app.yaml.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSend(cmd, *flags)
		},
	}

	rootCmd.Flags().StringVar(&flags.configPath, "config", "app.yaml", "Path to the app config file")
	rootCmd.Flags().StringVar(&flags.title, "title", "Title", "Alert title text")
	rootCmd.Flags().StringVar(&flags.body, "body", "Body", "Alert body text")
	rootCmd.Flags().IntVar(&flags.badge, "badge", 0, "Number to set in app icon badge")
	rootCmd.Flags().BoolVar(&flags.silent, "silent", false, "Do not play sound")
	rootCmd.Flags().StringToStringVar(&flags.background, "background", nil, "Deliver key=value data silently in the background")
	rootCmd.Flags().BoolVar(&flags.production, "prod", false, "Use the production APNs environment (sandbox by default)")
	rootCmd.Flags().BoolVar(&flags.useSnapshot, "yaml", false, "Use device tokens from the local snapshot instead of the registry API")
	rootCmd.Flags().BoolVar(&flags.cleanup, "cleanup", false, "Delete tokens APNs reports as dead from the registry")
	rootCmd.Flags().IntVar(&flags.concurrency, "concurrency", 4, "Maximum concurrent pushes")
	rootCmd.Flags().DurationVar(&flags.timeout, "timeout", 10*time.Second, "Per-push timeout")

	return rootCmd, flags
}

func runSend(cmd *cobra.Command, flags sendFlags) error {
	ctx := cmd.Context()
	logger := newLogger()

	cfg, err := loadAppConfig(flags.configPath)
	if err != nil {
		return err
	}

	payload, err := buildPayload(flags)
	if err != nil {
		return err
	}

	// Target resolution: live API or local snapshot.
	var source dispatch.Source
	var client *dispatcher.Client
	if flags.useSnapshot {
		source = dispatcher.NewSnapshotSource(cfg.TokensPath)
	} else {
		client = dispatcher.NewClient(cfg.APIURL, flags.timeout)
		source = dispatcher.NewAPISource(client)
	}

	targets, err := source.Resolve(ctx, cfg.BundleID)
	if err != nil {
		return fmt.Errorf("resolve targets for %s: %w", cfg.BundleID, err)
	}

	sender, err := apns.NewSender(apns.Credentials{
		KeyPath:      cfg.AuthKeyFilename,
		KeyID:        cfg.AuthKeyID,
		TeamID:       cfg.TeamID,
		CertPath:     cfg.CertFilename,
		CertPassword: cfg.CertPassword,
	}, cfg.BundleID, flags.sandbox(), flags.timeout, logger)
	if err != nil {
		return err
	}

	report, err := dispatcher.New(sender, flags.concurrency, logger).Dispatch(ctx, payload, targets)
	if err != nil {
		return err
	}

	for _, result := range report.Results {
		switch result.Outcome {
		case dispatch.OutcomeAccepted:
			fmt.Printf("%s: accepted\n", result.Token)
		case dispatch.OutcomeRejected:
			fmt.Printf("%s: rejected (%s)\n", result.Token, result.Reason)
		default:
			fmt.Printf("%s: transport error (%v)\n", result.Token, result.Err)
		}
	}
	fmt.Println(report.Summary())

	if invalid := report.InvalidTokens(); flags.cleanup && len(invalid) > 0 {
		if client == nil {
			logger.Warn("Cannot clean up invalid tokens from a snapshot run; skipping")
		} else {
			for _, token := range invalid {
				if err := client.DeleteToken(ctx, token); err != nil {
					logger.Warn("Failed to delete invalid token", "token", token, "err", err)
					continue
				}
				fmt.Printf("%s: removed from registry\n", token)
			}
		}
	}

	if report.Failed() {
		return fmt.Errorf("delivery incomplete: %s", report.Summary())
	}
	return nil
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		level = slog.LevelDebug
	case "info", "INFO":
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadAppConfig(path string) (appConfig, error) {
	cfg := appConfig{TokensPath: "tokens.yaml"}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read app config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse app config %s: %w", path, err)
	}
	if cfg.BundleID == "" {
		return cfg, fmt.Errorf("app config %s: bundle-id is required", path)
	}
	return cfg, nil
}

func buildPayload(flags sendFlags) (dispatch.Payload, error) {
	if len(flags.background) > 0 {
		data := make(map[string]any, len(flags.background))
		for k, v := range flags.background {
			data[k] = v
		}
		return dispatch.NewBackground(data)
	}
	return dispatch.NewAlert(flags.title, flags.body, !flags.silent, flags.badge)
}
