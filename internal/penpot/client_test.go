package penpot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakePenpot answers the handful of commands the client uses and requires the
// auth-token cookie on everything but login.
func fakePenpot(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie("auth-token"); err != nil || c.Value != "tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"type":"authentication","code":"authentication-required"}`))
				return
			}
			h(w, r)
		}
	}

	mux.HandleFunc("/api/rpc/command/login-with-password", func(w http.ResponseWriter, r *http.Request) {
		var params map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		if params["password"] != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"type":"validation","code":"wrong-credentials","hint":"wrong credentials"}`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "auth-token", Value: "tok-1", Path: "/"})
		_, _ = w.Write([]byte(`{"id":"7f3c","email":"` + params["email"] + `","fullname":"QA Bot"}`))
	})
	mux.HandleFunc("/api/rpc/command/get-profile", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"7f3c","email":"qa@example.com","fullname":"QA Bot"}`))
	}))
	mux.HandleFunc("/api/rpc/command/create-team", authed(func(w http.ResponseWriter, r *http.Request) {
		var params map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		_, _ = w.Write([]byte(`{"id":"team-1","name":"` + params["name"] + `"}`))
	}))
	mux.HandleFunc("/api/rpc/command/create-team-invitations", authed(func(w http.ResponseWriter, r *http.Request) {
		var params struct {
			TeamID string   `json:"teamId"`
			Emails []string `json:"emails"`
			Role   string   `json:"role"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, "team-1", params.TeamID)
		assert.Equal(t, []string{"qa+x@example.com"}, params.Emails)
		assert.Equal(t, RoleEditor, params.Role)
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("/api/rpc/command/delete-team", authed(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestResolveProfileIDKeepsSession(t *testing.T) {
	ctx := context.Background()
	srv := fakePenpot(t)
	c, err := NewClient(srv.URL+"/", zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, srv.URL, c.BaseURL())
	assert.Empty(t, c.Cookies())

	_, err = c.GetProfile(ctx)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, http.StatusUnauthorized, rpcErr.StatusCode)
	assert.Equal(t, "authentication-required", rpcErr.Code)

	id, err := c.ResolveProfileID(ctx, "qa@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "7f3c", id)
	require.Len(t, c.Cookies(), 1)
	assert.Equal(t, "auth-token", c.Cookies()[0].Name)

	p, err := c.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "QA Bot", p.Fullname)
}

func TestResolveProfileIDWrongPassword(t *testing.T) {
	srv := fakePenpot(t)
	c, err := NewClient(srv.URL, nil)
	require.NoError(t, err)

	_, err = c.ResolveProfileID(context.Background(), "qa@example.com", "nope")

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "wrong-credentials", rpcErr.Code)
	assert.Contains(t, err.Error(), "wrong credentials")
}

func TestTeamInvitation(t *testing.T) {
	ctx := context.Background()
	srv := fakePenpot(t)
	c, err := NewClient(srv.URL, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = c.ResolveProfileID(ctx, "qa@example.com", "secret")
	require.NoError(t, err)

	team, err := c.CreateTeam(ctx, "QA")
	require.NoError(t, err)
	assert.Equal(t, "team-1", team.ID)

	require.NoError(t, c.InviteToTeam(ctx, team.ID, []string{"qa+x@example.com"}, RoleEditor))
	require.NoError(t, c.DeleteTeam(ctx, team.ID))
}

func TestCallNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, nil)
	require.NoError(t, err)

	err = c.Call(context.Background(), "get-profile", nil, nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, http.StatusBadGateway, rpcErr.StatusCode)
	assert.Equal(t, "bad gateway", rpcErr.Hint)
}
