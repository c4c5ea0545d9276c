package panel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key")
}

func TestUnconfiguredClient(t *testing.T) {
	client := NewClient("", "")
	_, err := client.ListNodes(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	require.False(t, client.Configured())
}

func TestCreateUserDecodesEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/application/users", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"user","attributes":{"id":42,"username":"steve","email":"steve@example.com"}}`))
	})

	user, err := client.CreateUser(context.Background(), CreateUserInput{Email: "steve@example.com", Username: "steve"})
	require.NoError(t, err)
	require.Equal(t, int64(42), user.ID)
	require.Equal(t, "steve", user.Username)
}

func TestCreateUserDecodesBareObject(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7,"username":"alex","email":"alex@example.com"}`))
	})

	user, err := client.CreateUser(context.Background(), CreateUserInput{Email: "alex@example.com", Username: "alex"})
	require.NoError(t, err)
	require.Equal(t, int64(7), user.ID)
}

func TestFindUserByEmail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"object":"user","attributes":{"id":1,"email":"other@example.com"}},
			{"object":"user","attributes":{"id":2,"email":"found@example.com","username":"found"}}
		]}`))
	})

	user, err := client.FindUserByEmail(context.Background(), "found@example.com")
	require.NoError(t, err)
	require.Equal(t, int64(2), user.ID)

	_, err = client.FindUserByEmail(context.Background(), "missing@example.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFindUserByEmailEscapesFilter(t *testing.T) {
	const email = "dev+mc@example.com"
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// A raw + would decode server-side as a space and miss the user.
		require.Equal(t, email, r.URL.Query().Get("filter[email]"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"object":"user","attributes":{"id":9,"email":"dev+mc@example.com","username":"dev"}}
		]}`))
	})

	user, err := client.FindUserByEmail(context.Background(), email)
	require.NoError(t, err)
	require.Equal(t, int64(9), user.ID)
}

func TestListAllocations(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/application/nodes/3/allocations", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"object":"allocation","attributes":{"id":10,"ip":"10.0.0.1","port":25565,"assigned":true}},
			{"object":"allocation","attributes":{"id":11,"ip":"10.0.0.1","port":25566,"assigned":false}}
		]}`))
	})

	allocations, err := client.ListAllocations(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	require.True(t, allocations[0].Assigned)
	require.Equal(t, int64(11), allocations[1].ID)
}

func TestJSONErrorBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":[{"code":"ValidationException","detail":"The email has already been taken."}]}`))
	})

	_, err := client.CreateUser(context.Background(), CreateUserInput{Email: "dup@example.com"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	require.Equal(t, "ValidationException", apiErr.Code)
	require.Contains(t, apiErr.Detail, "already been taken")
}

func TestHTMLErrorBodyReducedToTitle(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html><head><title>502 Bad Gateway</title></head><body>nginx</body></html>"))
	})

	err := client.SuspendServer(context.Background(), 9)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadGateway, apiErr.Status)
	require.Equal(t, "502 Bad Gateway", apiErr.Detail)
}

func TestSuspendUnsuspendPaths(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.SuspendServer(context.Background(), 5))
	require.NoError(t, client.UnsuspendServer(context.Background(), 5))
	require.NoError(t, client.DeleteServer(context.Background(), 5))
	require.Equal(t, []string{
		"POST /api/application/servers/5/suspend",
		"POST /api/application/servers/5/unsuspend",
		"DELETE /api/application/servers/5",
	}, paths)
}

func TestGeneratePassword(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 16; i++ {
		pw, err := GeneratePassword()
		require.NoError(t, err)
		require.Len(t, pw, 12)
		for _, r := range pw {
			require.True(t, strings.ContainsRune(passwordCharset, r))
		}
		seen[pw] = true
	}
	require.Greater(t, len(seen), 1)
}
