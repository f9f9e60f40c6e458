/*
Package cmd provides the CLI commands for smtp-send.
*/
package cmd

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sethvargo/go-githubactions"
	"github.com/spf13/cobra"

	"github.com/shineum/smtp-send-lite/internal/config"
	"github.com/shineum/smtp-send-lite/internal/mailer"
)

// inputUsage describes each action input on the command line.
var inputUsage = map[string]string{
	"server_address": "SMTP server host",
	"server_port":    "SMTP server port (default 465 when secure, else 587)",
	"secure":         "use implicit TLS (true/false)",
	"username":       "SMTP account username, also the From address",
	"password":       "SMTP account password",
	"connection_url": "smtp:// or smtp+starttls:// URL overriding the server settings",
	"subject":        "message subject",
	"from":           "sender display name or full address",
	"to":             "comma-separated recipients",
	"body":           "plain text body or file://path",
	"html_body":      "HTML body or file://path",
	"cc":             "comma-separated Cc recipients",
	"bcc":            "comma-separated Bcc recipients",
	"reply_to":       "comma-separated Reply-To addresses",
	"in_reply_to":    "Message-Id of the message being replied to",
	"attachments":    "comma-separated glob patterns of files to attach",
	"ignore_cert":    "skip server certificate verification (true/false)",
	"priority":       "high, normal or low",
}

// Env is the process environment as seen by the command.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string
}

// NewRootCommand returns the smtp-send command tree.
func NewRootCommand(env Env) *cobra.Command {
	if env.Stdout == nil {
		env.Stdout = os.Stdout
	}
	if env.Stderr == nil {
		env.Stderr = os.Stderr
	}
	if env.Getenv == nil {
		env.Getenv = os.Getenv
	}

	var (
		cfgFile string
		dryRun  bool
		flags   config.Config
	)

	rootCmd := &cobra.Command{
		Use:   "smtp-send",
		Short: "Send one email over SMTP, SES, Microsoft Graph or stdout",
		Long: `smtp-send sends a single email and exits.

Inputs come from an optional config file, INPUT_<NAME> environment
variables as set by GitHub Actions, and command-line flags, in
increasing precedence.

Example:
  smtp-send --server-address smtp.example.com --username ci@example.com \
    --password "$SMTP_PASSWORD" --subject "Build finished" \
    --from "CI Bot" --to dev@example.com --body "All green."
  smtp-send -c mail.yaml --dry-run`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dryRun {
				flags.Provider = config.ProviderStdout
			}
			return send(cmd.Context(), env, config.Options{
				File:   cfgFile,
				Getenv: env.Getenv,
				Flags:  &flags,
			})
		},
	}
	rootCmd.SetOut(env.Stdout)
	rootCmd.SetErr(env.Stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "YAML or TOML config file")
	pf.StringVar(&flags.Logging.Level, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.Logging.Format, "log-format", "", "log format: json, text")

	f := rootCmd.Flags()
	for _, name := range config.InputNames() {
		f.StringVar(flags.Inputs.Input(name), flagName(name), "", inputUsage[name])
	}
	f.StringVar(&flags.Provider, "provider", "", "delivery provider: smtp, ses, graph, stdout")
	f.BoolVar(&dryRun, "dry-run", false, "print the message instead of sending it")
	f.StringVar(&flags.DKIM.KeyFile, "dkim-key-file", "", "PEM private key for DKIM signing")
	f.StringVar(&flags.DKIM.Domain, "dkim-domain", "", "DKIM signing domain")
	f.StringVar(&flags.DKIM.Selector, "dkim-selector", "", "DKIM selector (default \"default\")")

	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// Execute runs the root command against the process environment.
func Execute(ctx context.Context) error {
	return NewRootCommand(Env{}).ExecuteContext(ctx)
}

func send(ctx context.Context, env Env, opts config.Options) error {
	inActions := env.Getenv("GITHUB_ACTIONS") == "true"
	action := githubactions.New(
		githubactions.WithWriter(env.Stdout),
		githubactions.WithGetenv(env.Getenv),
	)

	cfg, err := config.Load(opts)
	if err != nil {
		return report(action, inActions, err)
	}

	setupLogger(env.Stdout, env.Stderr, cfg.Logging)

	if inActions && cfg.Inputs.Password != "" {
		action.AddMask(cfg.Inputs.Password)
	}

	if _, err := mailer.Run(ctx, cfg, mailer.Options{Reporter: action, Stdout: env.Stdout}); err != nil {
		return report(action, inActions, err)
	}
	return nil
}

// report annotates err for GitHub Actions and returns it unchanged.
func report(action *githubactions.Action, inActions bool, err error) error {
	if inActions {
		action.Errorf("%s", err)
	}
	return err
}

func flagName(input string) string {
	return strings.ReplaceAll(input, "_", "-")
}
