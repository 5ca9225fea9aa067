package csvfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macross/internal/model"
)

const sample = `100,10.5,0.1
160,11,2
160,11.5,1

220,12,0.5
400,9,1
`

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trades.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRead_WindowIsExclusiveFromAndStopsAfterTo(t *testing.T) {
	ticks, err := Read(context.Background(), strings.NewReader(sample), 100, 200)
	require.NoError(t, err)
	// 100 is not > from; 220 is the first trade at/after to and is kept
	assert.Equal(t, []model.Tick{{Time: 160, Price: 11}, {Time: 160, Price: 11.5}, {Time: 220, Price: 12}}, ticks)

	all, err := Read(context.Background(), strings.NewReader(sample), 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestRead_HeaderAndFloatTimes(t *testing.T) {
	body := "unixtime,price,amount\n1700000000.75,37000,1\n"
	ticks, err := Read(context.Background(), strings.NewReader(body), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []model.Tick{{Time: 1700000000, Price: 37000}}, ticks)
}

func TestRead_MalformedPrice(t *testing.T) {
	_, err := Read(context.Background(), strings.NewReader("100,abc,1\n"), 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestReader_InclusiveRange(t *testing.T) {
	r, err := Open(writeFile(t, sample))
	require.NoError(t, err)
	defer r.Close()

	ticks, err := r.ReadTicks(context.Background(), 160, 220)
	require.NoError(t, err)
	require.Len(t, ticks, 3)
	assert.Equal(t, int64(160), ticks[0].Time)
	assert.Equal(t, int64(220), ticks[2].Time)
}

func TestOpen_EmptyFile(t *testing.T) {
	_, err := Open(writeFile(t, ""))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestLookback(t *testing.T) {
	assert.Equal(t, int64(10_000-3600*40), Lookback(10_000, 3600, 40))
}

func TestCheckOrder(t *testing.T) {
	body := "100,1,1\n90,1,1\n95,1,1\n80,1,1\n200,1,1\n"
	var found []Disorder
	n, err := CheckOrder(context.Background(), strings.NewReader(body), func(d Disorder) { found = append(found, d) })
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.Len(t, found, 2)
	assert.Equal(t, Disorder{Line: 2, Previous: 100, Current: 90}, found[0])
	assert.Equal(t, Disorder{Line: 4, Previous: 95, Current: 80}, found[1])
}

func TestLastTime(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("1700000000,37000.123456,0.5\n")
	}
	b.WriteString("1700000999,37001,0.1\n")

	ts, err := LastTime(writeFile(t, b.String()))
	require.NoError(t, err)
	assert.Equal(t, int64(1700000999), ts)

	ts, err = LastTime(writeFile(t, "5,1,1"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), ts)
}

func TestWriteThenRead(t *testing.T) {
	var b strings.Builder
	in := []model.Tick{{Time: 1, Price: 1.25}, {Time: 2, Price: 30000}}
	require.NoError(t, Write(&b, in))
	assert.Equal(t, "1,1.25\n2,30000\n", b.String())
}

func TestFetcher_SkipsRepeatedFirstTrade(t *testing.T) {
	var gotStart string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStart = r.URL.Query().Get("start")
		w.Write([]byte("500,10,1\n510,11,1\n520,12,1\n"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL + "/v1/trades.csv?symbol=btceUSD")
	ticks, err := f.Since(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, "500", gotStart)
	assert.Equal(t, []model.Tick{{Time: 510, Price: 11}, {Time: 520, Price: 12}}, ticks)
}

func TestFetcher_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewFetcher(srv.URL).Since(context.Background(), 1)
	assert.Error(t, err)
}
