package mailer

import (
	"context"
	"io"
	"log/slog"

	"github.com/shineum/smtp-send-lite/internal/compose"
	"github.com/shineum/smtp-send-lite/internal/config"
	"github.com/shineum/smtp-send-lite/internal/connection"
	"github.com/shineum/smtp-send-lite/internal/provider"
	"github.com/shineum/smtp-send-lite/internal/provider/graph"
	"github.com/shineum/smtp-send-lite/internal/provider/ses"
	"github.com/shineum/smtp-send-lite/internal/provider/smtp"
	"github.com/shineum/smtp-send-lite/internal/provider/stdout"
)

// NewProvider returns the email delivery provider selected by cfg.Provider.
// conn is only used by the SMTP provider; signer may be nil.
func NewProvider(ctx context.Context, cfg *config.Config, conn connection.Config, signer *compose.Signer, out io.Writer) (provider.Provider, error) {
	switch cfg.Provider {
	case config.ProviderSES:
		slog.Info("using AWS SES provider", "region", cfg.SES.Region)
		p, err := ses.New(ctx, ses.SESProviderConfig{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Signer:          signer,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.ProviderGraph:
		slog.Info("using Microsoft Graph provider", "sender", cfg.Graph.Sender)
		return graph.New(graph.GraphProviderConfig{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			Sender:       cfg.Graph.Sender,
		}), nil
	case config.ProviderStdout:
		slog.Info("using stdout provider (dry run)")
		return stdout.NewWithWriter(out), nil
	default:
		slog.Info("using SMTP provider", "server", conn.Addr(), "secure", conn.Secure, "dkim", signer != nil)
		return smtp.New(smtp.Config{
			Connection: conn,
			IgnoreCert: cfg.Inputs.IgnoreCert == "true",
			Signer:     signer,
		}), nil
	}
}
