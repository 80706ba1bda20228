package sources

import (
	"context"
	"fmt"
	"log/slog"

	shell "github.com/ipfs/go-ipfs-api"
)

// IPFSFetcher fetches a pinned application directory from an IPFS node.
type IPFSFetcher struct {
	shell *shell.Shell
	host  string
	port  string
	cid   string
	log   *slog.Logger
}

// NewIPFSFetcher creates a fetcher for ipfs://host:port/CID.
func NewIPFSFetcher(host, port, cid string, log *slog.Logger) *IPFSFetcher {
	apiURL := fmt.Sprintf("%s:%s", host, port)
	return &IPFSFetcher{
		shell: shell.NewShell(apiURL),
		host:  host,
		port:  port,
		cid:   cid,
		log:   log,
	}
}

// Fetch retrieves the directory content into dstDir.
func (f *IPFSFetcher) Fetch(ctx context.Context, dstDir string) error {
	if !f.shell.IsUp() {
		return fmt.Errorf("ipfs node %s:%s is not reachable", f.host, f.port)
	}

	f.log.Info("Fetching application source from IPFS", "cid", f.cid)
	if err := f.shell.Get(f.cid, dstDir); err != nil {
		return fmt.Errorf("ipfs get %s: %w", f.cid, err)
	}
	return nil
}

func (f *IPFSFetcher) Name() string {
	return fmt.Sprintf("ipfs-%s", f.cid)
}
