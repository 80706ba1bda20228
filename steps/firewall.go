package steps

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/securenotes/provisioner/interfaces"
)

// firewallRules are the rules the deployment needs: management SSH plus the
// reverse proxy's HTTP and HTTPS ports. The application port itself stays
// loopback-only and never appears here.
var firewallRules = []string{"OpenSSH", "80/tcp", "443/tcp"}

// ConfigureFirewall reconciles ufw towards the desired state instead of
// resetting it: default policies are set idempotently and each required rule
// is added only when missing, so rules unrelated to this deployment survive
// a re-run.
type ConfigureFirewall struct {
	runner interfaces.CommandRunner
	log    *slog.Logger
}

func NewConfigureFirewall(runner interfaces.CommandRunner, log *slog.Logger) *ConfigureFirewall {
	return &ConfigureFirewall{runner: runner, log: log}
}

func (s *ConfigureFirewall) Name() string { return "configure-firewall" }

func (s *ConfigureFirewall) Run(ctx context.Context) error {
	if err := s.runner.Run(ctx, "ufw", "default", "deny", "incoming"); err != nil {
		return fmt.Errorf("could not set default incoming policy: %w", err)
	}
	if err := s.runner.Run(ctx, "ufw", "default", "allow", "outgoing"); err != nil {
		return fmt.Errorf("could not set default outgoing policy: %w", err)
	}

	status, err := s.runner.Output(ctx, "ufw", "status")
	if err != nil {
		return fmt.Errorf("could not read firewall status: %w", err)
	}

	for _, rule := range firewallRules {
		if ruleListed(status, rule) {
			s.log.Debug("Firewall rule already present", "rule", rule)
			continue
		}
		s.log.Info("Allowing", "rule", rule)
		if err := s.runner.Run(ctx, "ufw", "allow", rule); err != nil {
			return fmt.Errorf("could not allow %s: %w", rule, err)
		}
	}

	if !strings.Contains(status, "Status: active") {
		s.log.Info("Enabling firewall")
		if err := s.runner.Run(ctx, "ufw", "--force", "enable"); err != nil {
			return fmt.Errorf("could not enable firewall: %w", err)
		}
	}
	return nil
}

// ruleListed scans `ufw status` output for an ALLOW line matching the rule.
func ruleListed(status, rule string) bool {
	for _, line := range strings.Split(status, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == rule && strings.HasPrefix(fields[1], "ALLOW") {
			return true
		}
	}
	return false
}
