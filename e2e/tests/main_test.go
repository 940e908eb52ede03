//go:build e2e

// Package tests contains the end-to-end scenarios run against a Penpot instance.
//
// They are excluded from regular unit test runs. Run with:
//
//	go test -tags=e2e ./e2e/tests/...
//
// E2E_START_STUB=true reads mail from a locally started stub instead of Gmail,
// and E2E_START_LEDGER=true records billing fixtures in a PostgreSQL container.
package tests

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/gti/penpot-e2e/e2e/testenv"
)

// env is the shared test environment for all scenarios.
var env *testenv.TestEnv

func TestMain(m *testing.M) {
	cfg := testenv.DefaultConfig()
	if cfg.StartLedger && !isDockerAvailable() {
		fmt.Println("SKIP: Docker is not available, skipping E2E tests")
		os.Exit(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	var err error
	env, err = testenv.Setup(ctx, cfg)
	if err != nil {
		fmt.Printf("Failed to setup E2E environment: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	env.Teardown()

	os.Exit(code)
}

// isDockerAvailable checks if Docker daemon is running.
func isDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run() == nil
}
