package steps

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/securenotes/provisioner/config"
	"github.com/securenotes/provisioner/hostinfo"
	"github.com/securenotes/provisioner/interfaces"
)

// Summary prints the human-readable completion banner. Purely informational;
// it never affects the exit status.
type Summary struct {
	cfg      *config.Config
	resolver interfaces.PublicIPResolver
	out      io.Writer
	log      *slog.Logger
}

func NewSummary(cfg *config.Config, resolver interfaces.PublicIPResolver, out io.Writer, log *slog.Logger) *Summary {
	return &Summary{cfg: cfg, resolver: resolver, out: out, log: log}
}

func (s *Summary) Name() string { return "summary" }

func (s *Summary) Run(ctx context.Context) error {
	fmt.Fprint(s.out, RenderSummary(s.cfg, s.resolver.PublicIP(ctx)))
	return nil
}

// RenderSummary builds the banner text. publicIP may be empty; the
// placeholder is substituted for display.
func RenderSummary(cfg *config.Config, publicIP string) string {
	if publicIP == "" {
		publicIP = hostinfo.IPPlaceholder
	}

	appURL := "http://" + publicIP
	if cfg.HasDomain() && cfg.DomainLooksValid() {
		appURL = "https://" + cfg.DomainName
	}

	var b strings.Builder
	b.WriteString("\n==========================================================\n")
	b.WriteString("  Secure Notes deployment complete\n")
	b.WriteString("==========================================================\n\n")
	fmt.Fprintf(&b, "  Application URL:  %s\n", appURL)
	fmt.Fprintf(&b, "  Server address:   %s\n", publicIP)
	fmt.Fprintf(&b, "  Install path:     %s\n", cfg.InstallPath)
	fmt.Fprintf(&b, "  Service:          %s\n\n", cfg.ServiceName)

	if cfg.GeneratedSecret {
		b.WriteString("  A SECRET_KEY was generated for this deployment. It was\n")
		b.WriteString("  logged above once and written to the env file; capture it\n")
		b.WriteString("  now if you plan to redeploy with the same key.\n\n")
	}

	b.WriteString("  Management commands:\n")
	fmt.Fprintf(&b, "    %s-restart   restart app and proxy\n", cfg.AppName)
	fmt.Fprintf(&b, "    %s-logs      follow application logs\n", cfg.AppName)
	fmt.Fprintf(&b, "    %s-status    service status and health probe\n", cfg.AppName)
	b.WriteString("\n==========================================================\n")
	return b.String()
}
