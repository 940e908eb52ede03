package testenv

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gti/penpot-e2e/internal/poll"
)

// StubService is a running cmd/mailstub subprocess.
type StubService struct {
	// URL is the base URL of the stub, suitable for MAILBOX_API_URL.
	URL string

	// Port is the port the stub listens on.
	Port int

	// Token is the bearer token the stub requires, possibly empty.
	Token string

	// CoverageDir receives coverage data on graceful shutdown when the
	// binary was built with -cover. Empty otherwise.
	CoverageDir string

	// Process is the underlying OS process.
	Process *os.Process

	cmd *exec.Cmd
}

// ServiceConfig holds configuration for starting the stub.
type ServiceConfig struct {
	// Token is the bearer token clients must present (empty leaves the stub open).
	Token string

	// Port is the port to listen on (0 for random available port).
	Port int

	// BinaryPath is the compiled stub binary. If empty, ./cmd/mailstub is built.
	BinaryPath string

	// WorkingDir is the project root. Found from go.mod when empty.
	WorkingDir string

	// CoverageDir, when set, builds the stub with -cover and points GOCOVERDIR at it.
	CoverageDir string

	// ReadyTimeout bounds the wait for /healthz (default 30s).
	ReadyTimeout time.Duration
}

// DefaultServiceConfig returns default stub configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Token:        "test-stub-token",
		Port:         0, // Random port
		CoverageDir:  os.Getenv("E2E_COVERDIR"),
		ReadyTimeout: 30 * time.Second,
	}
}

// StartStub builds and starts the mailbox stub as a subprocess and waits for
// it to answer /healthz.
//
//	svc, cleanup, err := StartStub(ctx, DefaultServiceConfig(), log)
//	if err != nil {
//	    return err
//	}
//	defer cleanup()
func StartStub(ctx context.Context, cfg ServiceConfig, log *zap.Logger) (*StubService, func(), error) {
	port := cfg.Port
	if port == 0 {
		var err error
		port, err = findAvailablePort()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to find available port: %w", err)
		}
	}

	workDir := cfg.WorkingDir
	if workDir == "" {
		var err error
		workDir, err = findProjectRoot()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to find project root: %w", err)
		}
	}

	binaryPath := cfg.BinaryPath
	if binaryPath == "" {
		var err error
		binaryPath, err = buildStub(ctx, workDir, cfg.CoverageDir != "")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build stub: %w", err)
		}
	}

	env := append(os.Environ(),
		fmt.Sprintf("MAILSTUB_PORT=%d", port),
		"MAILSTUB_TOKEN="+cfg.Token,
	)
	if cfg.CoverageDir != "" {
		if err := os.MkdirAll(cfg.CoverageDir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create coverage dir: %w", err)
		}
		env = append(env, "GOCOVERDIR="+cfg.CoverageDir)
	}

	// Not tied to ctx: the stub outlives Setup and is stopped by cleanup.
	cmd := exec.Command(binaryPath)
	cmd.Dir = workDir
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	// Set process group for clean termination
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start stub: %w", err)
	}

	svc := &StubService{
		URL:         fmt.Sprintf("http://localhost:%d", port),
		Port:        port,
		Token:       cfg.Token,
		CoverageDir: cfg.CoverageDir,
		Process:     cmd.Process,
		cmd:         cmd,
	}

	timeout := cfg.ReadyTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if err := waitForService(ctx, svc.URL, timeout, log); err != nil {
		_ = svc.Stop()
		return nil, nil, fmt.Errorf("stub failed to become ready: %w", err)
	}

	cleanup := func() {
		_ = svc.Stop()
	}

	return svc, cleanup, nil
}

// Stop sends SIGTERM so coverage data is flushed, and kills the stub if it
// has not exited after 10 seconds.
func (s *StubService) Stop() error {
	if s.Process == nil {
		return nil
	}

	if err := s.Process.Signal(syscall.SIGTERM); err != nil {
		_ = s.Process.Kill()
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Process.Wait()
		done <- err
	}()

	select {
	case <-done:
		return nil
	case <-time.After(10 * time.Second):
		_ = s.Process.Kill()
		return fmt.Errorf("stub shutdown timeout, coverage may be incomplete")
	}
}

// CoverageFiles returns the coverage data files written by the stub.
func (s *StubService) CoverageFiles() ([]string, error) {
	if s.CoverageDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(s.CoverageDir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, filepath.Join(s.CoverageDir, entry.Name()))
		}
	}
	return files, nil
}

// findAvailablePort finds a random available TCP port.
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, err
	}
	defer func() { _ = listener.Close() }()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// findProjectRoot finds the project root by looking for go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// buildStub compiles cmd/mailstub into tmp/, optionally with coverage instrumentation.
func buildStub(ctx context.Context, workDir string, cover bool) (string, error) {
	binaryPath := filepath.Join(workDir, "tmp", "e2e-mailstub")
	args := []string{"build", "-o", binaryPath}
	if cover {
		binaryPath += "-cover"
		args = []string{"build", "-cover", "-o", binaryPath}
	}
	args = append(args, "./cmd/mailstub")

	if err := os.MkdirAll(filepath.Join(workDir, "tmp"), 0755); err != nil {
		return "", fmt.Errorf("failed to create tmp dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Dir = workDir
	cmd.Env = os.Environ()

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to build: %w\nOutput: %s", err, output)
	}

	return binaryPath, nil
}

// waitForService polls url/healthz until it answers 200 or timeout passes.
func waitForService(ctx context.Context, url string, timeout time.Duration, log *zap.Logger) error {
	client := &http.Client{Timeout: 2 * time.Second}

	_, _, err := poll.Until(ctx, poll.Config{
		Timeout:  timeout,
		Interval: 100 * time.Millisecond,
		Log:      log,
		Subject:  url + "/healthz",
	}, func(ctx context.Context) (struct{}, bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/healthz", nil)
		if err != nil {
			return struct{}{}, false, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return struct{}{}, false, err
		}
		_ = resp.Body.Close()
		return struct{}{}, resp.StatusCode == http.StatusOK, nil
	})
	return err
}
