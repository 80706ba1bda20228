package steps

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/securenotes/provisioner/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunner records every command invocation and serves scripted outputs
// and failures keyed by the full command line.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	outputs map[string]string
	fail    map[string]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		outputs: map[string]string{},
		fail:    map[string]error{},
	}
}

func cmdline(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}

func (r *fakeRunner) record(line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, line)
	return r.fail[line]
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	return r.record(cmdline(name, args))
}

func (r *fakeRunner) RunAs(ctx context.Context, user string, name string, args ...string) error {
	return r.record(user + "> " + cmdline(name, args))
}

func (r *fakeRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	line := cmdline(name, args)
	if err := r.record(line); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outputs[line], nil
}

func (r *fakeRunner) called(line string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c == line {
			return true
		}
	}
	return false
}

func (r *fakeRunner) calledPrefix(prefix string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// fakeResolver implements interfaces.PublicIPResolver.
type fakeResolver struct {
	ip string
}

func (f *fakeResolver) PublicIP(ctx context.Context) string { return f.ip }

func testConfig() *config.Config {
	cfg, err := config.Load(config.Inputs{
		MongoURI:    "mongodb://localhost/notes",
		SecretKey:   "test-key",
		InstallPath: "/opt/secure-notes",
	})
	if err != nil {
		panic(err)
	}
	return cfg
}
