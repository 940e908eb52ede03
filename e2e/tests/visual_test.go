//go:build e2e

package tests

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gti/penpot-e2e/e2e/helpers"
	"github.com/gti/penpot-e2e/e2e/testenv"
)

// loginTolerance allows for font antialiasing differences between hosts.
const loginTolerance = 0.01

// TestLoginPageScreenshot compares the logged-out login page with its golden
// image. Set E2E_UPDATE_GOLDEN=true to record a new one.
func TestLoginPageScreenshot(t *testing.T) {
	// A fresh browser, so no test's session cookies are set.
	b, err := helpers.NewBrowser(testenv.DefaultConfig().Browser)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.Navigate(env.Config.BaseURL+"/#/auth/login"))
	require.NoError(t, b.Wait("form"))

	res, err := b.MatchesGolden("testdata/golden/login.png", loginTolerance)
	if errors.Is(err, helpers.ErrNoGolden) {
		t.Skipf("%v; record it with E2E_UPDATE_GOLDEN=true", err)
	}
	require.NoError(t, err)
	require.Truef(t, res.Match, "login page differs from golden in %d of %d pixels (%.4f)",
		res.DiffPixels, res.TotalPixels, res.Ratio)
}
