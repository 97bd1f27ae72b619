package livefeed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMetrics struct {
	ok, failed atomic.Int32
}

func (m *countingMetrics) StationFetchInc(ok bool) {
	if ok {
		m.ok.Add(1)
	} else {
		m.failed.Add(1)
	}
}

func newStationServer(t *testing.T, inFlight *atomic.Int32, maxInFlight *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		code := strings.TrimPrefix(r.URL.Path, "/stations/")
		switch code {
		case "BAD":
			http.Error(w, "nope", http.StatusInternalServerError)
		case "BRK":
			fmt.Fprint(w, "{not json")
		default:
			fmt.Fprintf(w, `{"platforms":[[{"Direction":"Plentzia","Wagons":5,"Estimated":3}],[{"Direction":"Etxebarri","Estimated":7},{"Direction":"","Estimated":1},{"Direction":"Basauri"}]]}`)
		}
	}))
}

func TestFetchStation(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	srv := newStationServer(t, &inFlight, &maxInFlight)
	defer srv.Close()

	c := NewClient(Config{URLTemplate: srv.URL + "/stations/{code}"}, nil, nil)
	entries, err := c.FetchStation(context.Background(), "ABA")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Plentzia", entries[0].Destination)
	assert.Equal(t, 3, entries[0].Minutes)
	require.NotNil(t, entries[0].Length)
	assert.Equal(t, 5, *entries[0].Length)
	assert.Equal(t, "Etxebarri", entries[1].Destination)
	assert.Nil(t, entries[1].Length)

	_, err = c.FetchStation(context.Background(), "BAD")
	assert.ErrorContains(t, err, "status 500")
	_, err = c.FetchStation(context.Background(), "BRK")
	assert.ErrorContains(t, err, "decode station BRK")
}

func TestFetchAll(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	srv := newStationServer(t, &inFlight, &maxInFlight)
	defer srv.Close()

	m := &countingMetrics{}
	c := NewClient(Config{URLTemplate: srv.URL + "/stations/{code}", BatchSize: 2, BatchPause: time.Millisecond}, nil, m)

	codes := []string{"ABA", "BAD", "CAS", "ABA", "DEU", "", "BRK", "ETX"}
	got := c.FetchAll(context.Background(), codes)

	assert.Len(t, got, 4)
	for _, code := range []string{"ABA", "CAS", "DEU", "ETX"} {
		assert.Contains(t, got, code)
	}
	assert.NotContains(t, got, "BAD")
	assert.NotContains(t, got, "BRK")
	assert.LessOrEqual(t, maxInFlight.Load(), int32(2))
	assert.Equal(t, int32(4), m.ok.Load())
	assert.Equal(t, int32(2), m.failed.Load())
}

func TestFetchAllCancelled(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	srv := newStationServer(t, &inFlight, &maxInFlight)
	defer srv.Close()

	c := NewClient(Config{URLTemplate: srv.URL + "/stations/{code}", BatchSize: 1, BatchPause: time.Hour}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	var got map[string][]Entry
	go func() {
		defer wg.Done()
		got = c.FetchAll(ctx, []string{"ABA", "CAS"})
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()
	wg.Wait()
	assert.Len(t, got, 1)
}
