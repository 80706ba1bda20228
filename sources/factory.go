// Package sources materializes the application tree from a location URI.
// The factory dispatches on the URI scheme:
//
//   - file:// - copy from a local checkout (the default, file://.)
//   - git://, git+https:// - shallow clone via the git CLI
//   - s3://   - download a .tar.gz bundle from S3 or a compatible store
//   - ipfs:// - fetch a directory from an IPFS node
package sources

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/securenotes/provisioner/interfaces"
)

// Factory creates source fetchers from location URIs.
type Factory struct {
	log    *slog.Logger
	runner interfaces.CommandRunner
}

// NewFactory creates a fetcher factory. The command runner is used by
// schemes that shell out (git).
func NewFactory(log *slog.Logger, runner interfaces.CommandRunner) *Factory {
	return &Factory{log: log, runner: runner}
}

// FetcherFor creates a fetcher for the given location URI. Returns
// interfaces.ErrUnsupportedScheme for unknown schemes.
func (f *Factory) FetcherFor(locationURI string) (interfaces.SourceFetcher, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("invalid source URI %q: %w", locationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file", "":
		return f.createFileFetcher(u)
	case "git", "git+https", "git+ssh":
		return f.createGitFetcher(u)
	case "s3":
		return f.createS3Fetcher(u)
	case "ipfs":
		return f.createIPFSFetcher(u)
	default:
		return nil, fmt.Errorf("%w: %s", interfaces.ErrUnsupportedScheme, u.Scheme)
	}
}

// createFileFetcher handles file:///absolute/path and file://./relative.
func (f *Factory) createFileFetcher(u *url.URL) (interfaces.SourceFetcher, error) {
	path := u.Path
	if u.Host != "" {
		path = u.Host + path
	}
	if u.Opaque != "" {
		path = u.Opaque
	}
	if path == "" {
		path = "."
	}
	return NewFileFetcher(path, f.log), nil
}

// createGitFetcher handles git+https://host/owner/repo.git?ref=main.
// The bare git:// scheme is passed through to the git protocol.
func (f *Factory) createGitFetcher(u *url.URL) (interfaces.SourceFetcher, error) {
	remote := u.String()
	ref := u.Query().Get("ref")

	switch u.Scheme {
	case "git+https", "git+ssh":
		stripped := *u
		stripped.Scheme = strings.TrimPrefix(u.Scheme, "git+")
		stripped.RawQuery = ""
		remote = stripped.String()
	default:
		bare := *u
		bare.RawQuery = ""
		remote = bare.String()
	}

	return NewGitFetcher(remote, ref, f.runner, f.log), nil
}

// createS3Fetcher handles s3://bucket/path/to/bundle.tar.gz?region=eu-west-1.
func (f *Factory) createS3Fetcher(u *url.URL) (interfaces.SourceFetcher, error) {
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("invalid s3 source URI, expected s3://bucket/key.tar.gz")
	}

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1"
	}
	endpoint := query.Get("endpoint")

	return NewS3Fetcher(bucket, key, region, endpoint, f.log)
}

// createIPFSFetcher handles ipfs://host:port/CID.
func (f *Factory) createIPFSFetcher(u *url.URL) (interfaces.SourceFetcher, error) {
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "5001"
	}
	cid := strings.Trim(u.Path, "/")
	if cid == "" {
		return nil, fmt.Errorf("invalid ipfs source URI, expected ipfs://host:port/CID")
	}
	return NewIPFSFetcher(host, port, cid, f.log), nil
}
