package steps

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/template"

	"github.com/securenotes/provisioner/config"
	"github.com/securenotes/provisioner/interfaces"
)

// siteTemplate is the reverse proxy site: forwarded-header propagation, a
// quiet /health location, response security headers, gzip for common text
// types, long-lived static caching and favicon 404 suppression. certbot
// rewrites this file in place when it installs TLS.
var siteTemplate = template.Must(template.New("site").Parse(`server {
    listen 80;
    server_name {{.Domain}};

    add_header X-Content-Type-Options "nosniff" always;
    add_header X-Frame-Options "DENY" always;
    add_header X-XSS-Protection "1; mode=block" always;
    add_header Referrer-Policy "strict-origin-when-cross-origin" always;

    gzip on;
    gzip_types text/plain text/css application/json application/javascript text/xml application/xml;

    location / {
        proxy_pass http://127.0.0.1:{{.Port}};
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
    }

    location /health {
        proxy_pass http://127.0.0.1:{{.Port}}/health;
        access_log off;
    }

    location /static/ {
        alias {{.InstallPath}}/static/;
        expires 30d;
        add_header Cache-Control "public";
    }

    location = /favicon.ico {
        access_log off;
        log_not_found off;
    }
}
`))

type siteParams struct {
	Domain      string
	Port        int
	InstallPath string
}

// ConfigureProxy removes the distribution default site, renders and enables
// the application site, and validates the result with nginx -t. A syntax
// failure is fatal: restarting nginx on a broken config would silently break
// all routing.
type ConfigureProxy struct {
	cfg    *config.Config
	runner interfaces.CommandRunner
	log    *slog.Logger

	// Directories are overridable for tests.
	SitesAvailable string
	SitesEnabled   string
}

func NewConfigureProxy(cfg *config.Config, runner interfaces.CommandRunner, log *slog.Logger) *ConfigureProxy {
	return &ConfigureProxy{
		cfg:            cfg,
		runner:         runner,
		log:            log,
		SitesAvailable: "/etc/nginx/sites-available",
		SitesEnabled:   "/etc/nginx/sites-enabled",
	}
}

func (s *ConfigureProxy) Name() string { return "configure-proxy" }

func (s *ConfigureProxy) Run(ctx context.Context) error {
	// The default site and ours are mutually exclusive on port 80.
	defaultSite := filepath.Join(s.SitesEnabled, "default")
	if err := os.Remove(defaultSite); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not remove default site: %w", err)
	}

	site, err := RenderProxySite(s.cfg)
	if err != nil {
		return err
	}

	available := filepath.Join(s.SitesAvailable, s.cfg.AppName)
	s.log.Info("Writing reverse proxy site", "path", available, "domain", s.cfg.DomainName)
	if err := os.WriteFile(available, []byte(site), 0644); err != nil {
		return fmt.Errorf("could not write site config: %w", err)
	}

	enabled := filepath.Join(s.SitesEnabled, s.cfg.AppName)
	if err := os.Remove(enabled); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not refresh site symlink: %w", err)
	}
	if err := os.Symlink(available, enabled); err != nil {
		return fmt.Errorf("could not enable site: %w", err)
	}

	if err := s.runner.Run(ctx, "nginx", "-t"); err != nil {
		return fmt.Errorf("proxy config validation failed: %w", err)
	}
	return nil
}

// RenderProxySite produces the site file content. The sentinel domain
// renders as server_name localhost, listening on port 80 only.
func RenderProxySite(cfg *config.Config) (string, error) {
	var buf bytes.Buffer
	err := siteTemplate.Execute(&buf, siteParams{
		Domain:      cfg.DomainName,
		Port:        cfg.AppPort,
		InstallPath: cfg.InstallPath,
	})
	if err != nil {
		return "", fmt.Errorf("could not render proxy site: %w", err)
	}
	return buf.String(), nil
}
