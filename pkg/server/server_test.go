package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/doccache/pkg/doccache"
)

// upstream is a scripted GraphQL endpoint that counts the requests it sees.
type upstream struct {
	calls    int
	response string
	status   int
}

func (u *upstream) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u.calls++
		status := u.status
		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, u.response)
	}
}

// testProxy builds a proxy in front of the scripted upstream, returning the
// proxy handler and the cache behind it.
func testProxy(t *testing.T, u *upstream) (http.Handler, *doccache.DocumentCache) {
	t.Helper()

	upstreamSrv := httptest.NewServer(u.handler())
	t.Cleanup(upstreamSrv.Close)

	cache := doccache.New(nil)
	cfg := DefaultConfig()
	cfg.UpstreamURL = upstreamSrv.URL

	srv, err := New(cache, cfg, log.New(io.Discard, "", 0))
	require.NoError(t, err)

	return srv.Handler(), cache
}

// postGraphQL issues a GraphQL request against the proxy handler.
func postGraphQL(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresUpstream(t *testing.T) {
	_, err := New(doccache.New(nil), DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrNoUpstream)
}

func TestGraphQL_MissThenHit(t *testing.T) {
	u := &upstream{response: `{"data":{"jobs":[{"id":"1"}]}}`}
	handler, _ := testProxy(t, u)

	body := `{"query":"query Jobs($id: ID!) { jobs(id: $id) { id } }","variables":{"id":"1"}}`

	first := postGraphQL(t, handler, body)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	assert.Equal(t, 1, u.calls)

	second := postGraphQL(t, handler, body)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, 1, u.calls, "hit must not reach the upstream")

	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.Equal(t, map[string]any{"jobs": []any{map[string]any{"id": "1"}}}, resp.Data)
}

func TestGraphQL_DifferentVariablesMissSeparately(t *testing.T) {
	u := &upstream{response: `{"data":{"jobs":[]}}`}
	handler, _ := testProxy(t, u)

	q := `query Jobs($id: ID!) { jobs(id: $id) { id } }`
	first := postGraphQL(t, handler, `{"query":"`+q+`","variables":{"id":"1"}}`)
	second := postGraphQL(t, handler, `{"query":"`+q+`","variables":{"id":"2"}}`)

	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	assert.Equal(t, "MISS", second.Header().Get("X-Cache"))
	assert.Equal(t, 2, u.calls)
}

func TestGraphQL_MutationBypasses(t *testing.T) {
	u := &upstream{response: `{"data":{"createJob":{"id":"9"}}}`}
	handler, cache := testProxy(t, u)

	body := `{"query":"mutation { createJob { id } }"}`

	first := postGraphQL(t, handler, body)
	second := postGraphQL(t, handler, body)

	assert.Equal(t, "BYPASS", first.Header().Get("X-Cache"))
	assert.Equal(t, "BYPASS", second.Header().Get("X-Cache"))
	assert.Equal(t, 2, u.calls, "mutations always reach the upstream")
	assert.Zero(t, cache.Stats().Writes)
}

func TestGraphQL_UpstreamErrorsNotCached(t *testing.T) {
	u := &upstream{response: `{"errors":[{"message":"boom"}]}`}
	handler, cache := testProxy(t, u)

	body := `{"query":"query { jobs { id } }"}`

	first := postGraphQL(t, handler, body)
	second := postGraphQL(t, handler, body)

	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	assert.Equal(t, "MISS", second.Header().Get("X-Cache"))
	assert.Equal(t, 2, u.calls)
	assert.Zero(t, cache.Stats().Writes)
}

func TestGraphQL_BadRequests(t *testing.T) {
	handler, _ := testProxy(t, &upstream{response: `{}`})

	t.Run("malformed JSON body", func(t *testing.T) {
		rec := postGraphQL(t, handler, `{`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed query", func(t *testing.T) {
		rec := postGraphQL(t, handler, `{"query":"query {"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ambiguous operation", func(t *testing.T) {
		rec := postGraphQL(t, handler, `{"query":"query A { a { id } } query B { b { id } }"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("GET not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestGraphQL_NamedOperationSelection(t *testing.T) {
	u := &upstream{response: `{"data":{"a":[]}}`}
	handler, _ := testProxy(t, u)

	body := `{"query":"query A { a { id } } mutation B { b { id } }","operationName":"B"}`
	rec := postGraphQL(t, handler, body)

	// The named operation is a mutation, so the request bypasses the cache.
	assert.Equal(t, "BYPASS", rec.Header().Get("X-Cache"))
}

func TestSnapshot_TransferBetweenInstances(t *testing.T) {
	u := &upstream{response: `{"data":{"jobs":[{"id":"1"}]}}`}
	source, _ := testProxy(t, u)

	// Warm the source cache.
	body := `{"query":"query { jobs { id } }"}`
	postGraphQL(t, source, body)

	// Extract from the source...
	req := httptest.NewRequest(http.MethodGet, "/snapshot", nil)
	rec := httptest.NewRecorder()
	source.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	snapBody := rec.Body.Bytes()

	// ...restore into a second instance in front of an upstream that must
	// never be reached.
	coldUpstream := &upstream{response: `{"data":null}`}
	target, _ := testProxy(t, coldUpstream)

	putReq := httptest.NewRequest(http.MethodPut, "/snapshot", bytes.NewReader(snapBody))
	putRec := httptest.NewRecorder()
	target.ServeHTTP(putRec, putReq)
	require.Equal(t, http.StatusNoContent, putRec.Code)

	hit := postGraphQL(t, target, body)
	assert.Equal(t, "HIT", hit.Header().Get("X-Cache"))
	assert.Zero(t, coldUpstream.calls)
}

func TestSnapshot_RejectsMalformed(t *testing.T) {
	handler, _ := testProxy(t, &upstream{response: `{}`})

	req := httptest.NewRequest(http.MethodPut, "/snapshot", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	u := &upstream{response: `{"data":{"jobs":[]}}`}
	handler, _ := testProxy(t, u)

	postGraphQL(t, handler, `{"query":"query { jobs { id } }"}`) // miss + write
	postGraphQL(t, handler, `{"query":"query { jobs { id } }"}`) // hit

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var health struct {
		Status  string            `json:"status"`
		Variant string            `json:"variant"`
		Stats   map[string]uint64 `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))

	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, doccache.DefaultVariant, health.Variant)
	assert.Equal(t, uint64(1), health.Stats["hits"])
	assert.Equal(t, uint64(1), health.Stats["writes"])
}
