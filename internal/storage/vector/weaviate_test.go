package vector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// weaviateStub answers the REST and GraphQL calls the client makes and
// remembers the last GraphQL query it saw.
type weaviateStub struct {
	mu    sync.Mutex
	query string
	body  string
}

func (s *weaviateStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/v1/meta":
		fmt.Fprint(w, `{"version":"1.25.0"}`)
	case "/v1/graphql":
		b, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.query = string(b)
		body := s.body
		s.mu.Unlock()
		fmt.Fprint(w, body)
	default:
		fmt.Fprint(w, `{}`)
	}
}

func (s *weaviateStub) lastQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

func TestWeaviate_SearchConvertsCertaintyAndRanks(t *testing.T) {
	older := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	newer := older.Add(30 * time.Minute)
	stub := &weaviateStub{body: fmt.Sprintf(`{"data":{"Get":{"BioRecord":[
		{"recordId":"a","createdAt":"%d","_additional":{"certainty":0.75}},
		{"recordId":"b","createdAt":"%d","_additional":{"certainty":1.0}},
		{"recordId":"c","createdAt":"%d","_additional":{"certainty":0.75}},
		{"createdAt":"%d","_additional":{"certainty":0.9}}
	]}}}`, older.UnixNano(), older.UnixNano(), newer.UnixNano(), newer.UnixNano())}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	w, err := NewWeaviate(srv.URL, "BioRecord")
	require.NoError(t, err)

	matches, err := w.Search(context.Background(), []float32{0.5, 0.25}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "b", matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	// equal scores put the newer record first
	assert.Equal(t, "c", matches[1].ID)
	assert.InDelta(t, 0.5, matches[1].Score, 1e-9)
	assert.True(t, matches[1].CreatedAt.Equal(newer))

	q := stub.lastQuery()
	assert.Contains(t, q, "nearVector")
	assert.Contains(t, q, "BioRecord")
	assert.Regexp(t, `limit:\s*2\b`, q)
}

func TestWeaviate_SearchSurfacesGraphQLErrors(t *testing.T) {
	stub := &weaviateStub{body: `{"errors":[{"message":"class BioRecord not found"}]}`}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	w, err := NewWeaviate(srv.URL, "BioRecord")
	require.NoError(t, err)

	_, err = w.Search(context.Background(), []float32{1}, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	matches, err := w.Search(context.Background(), []float32{1}, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
