package steps

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/securenotes/provisioner/config"
	"github.com/securenotes/provisioner/dnscheck"
	"github.com/securenotes/provisioner/interfaces"
	"github.com/securenotes/provisioner/pipeline"
)

// IssueCertificate obtains a TLS certificate for the configured domain and
// registers daily renewal. Two skip states exist: the sentinel domain
// ("localhost"/unset) and a syntactically invalid domain (no dot). Both log
// a warning and leave the deployment HTTP-only.
//
// Issuance failure is also a warning, not an abort: the proxy site is
// already valid for port 80, so a transient ACME failure should not block
// starting the application. Re-running the pipeline retries issuance.
type IssueCertificate struct {
	cfg      *config.Config
	runner   interfaces.CommandRunner
	resolver interfaces.PublicIPResolver
	log      *slog.Logger

	// RenewCronPath is overridable for tests.
	RenewCronPath string

	// nameserver for the preflight lookup; empty selects the system resolver.
	nameserver string
}

func NewIssueCertificate(cfg *config.Config, runner interfaces.CommandRunner, resolver interfaces.PublicIPResolver, log *slog.Logger) *IssueCertificate {
	return &IssueCertificate{
		cfg:           cfg,
		runner:        runner,
		resolver:      resolver,
		log:           log,
		RenewCronPath: "/etc/cron.d/" + cfg.AppName + "-renew",
	}
}

func (s *IssueCertificate) Name() string { return "issue-certificate" }

func (s *IssueCertificate) Run(ctx context.Context) error {
	if !s.cfg.HasDomain() {
		return pipeline.Warnf("no domain configured, skipping TLS setup (set DOMAIN_NAME to enable HTTPS)")
	}
	if !s.cfg.DomainLooksValid() {
		return pipeline.Warnf("domain %q does not look like a DNS name, skipping TLS setup", s.cfg.DomainName)
	}

	s.preflightDNS(ctx)

	s.log.Info("Requesting certificate", "domain", s.cfg.DomainName)
	err := s.runner.Run(ctx, "certbot",
		"--nginx",
		"-d", s.cfg.DomainName,
		"--non-interactive",
		"--agree-tos",
		"--register-unsafely-without-email",
		"--redirect")
	if err != nil {
		return pipeline.Warnf("certificate issuance failed, continuing HTTP-only (re-run to retry): %v", err)
	}

	if err := s.writeRenewalCron(); err != nil {
		return err
	}

	s.log.Info("Certificate installed, HTTP now redirects to HTTPS", "domain", s.cfg.DomainName)
	return nil
}

// preflightDNS warns when the domain does not point at this host. certbot
// would fail the HTTP challenge anyway; the early warning names the cause.
func (s *IssueCertificate) preflightDNS(ctx context.Context) {
	ns := s.nameserver
	if ns == "" {
		resolved, err := dnscheck.SystemNameserver(dnscheck.DefaultResolverConfig)
		if err != nil {
			s.log.Debug("Could not determine system nameserver, skipping DNS preflight", "err", err)
			return
		}
		ns = resolved
	}

	hostIP := s.resolver.PublicIP(ctx)
	if err := dnscheck.VerifyPointsTo(s.cfg.DomainName, hostIP, ns); err != nil {
		s.log.Warn("DNS preflight failed, certificate issuance will likely fail", "err", err)
	}
}

// writeRenewalCron registers the daily renewal job. Overwrite-idempotent:
// re-runs never accumulate duplicate entries.
func (s *IssueCertificate) writeRenewalCron() error {
	cron := "0 3 * * * root certbot renew --quiet --deploy-hook 'systemctl reload nginx'\n"
	if err := os.WriteFile(s.RenewCronPath, []byte(cron), 0644); err != nil {
		return fmt.Errorf("could not register renewal job: %w", err)
	}
	s.log.Info("Registered daily certificate renewal", "path", s.RenewCronPath)
	return nil
}
