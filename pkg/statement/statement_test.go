package statement

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurifrl/cicsync/pkg/endpoint"
	"github.com/yurifrl/cicsync/pkg/outcome"
	"github.com/yurifrl/cicsync/pkg/workbook"
)

type decoderFunc func([]byte) (*workbook.Workbook, error)

func (f decoderFunc) Decode(data []byte) (*workbook.Workbook, error) { return f(data) }

func newFetcher(t *testing.T, h http.HandlerFunc, dec workbook.Decoder) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	logger := log.New(io.Discard)
	resolver, err := endpoint.New(logger, srv.URL, "fr")
	require.NoError(t, err)
	return New(logger, srv.Client(), resolver, dec)
}

func TestFetch(t *testing.T) {
	payload := []byte{0xd0, 0xcf, 0x11, 0xe0, 0x00, 0x01}
	var got []byte
	f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fr/banque/compte/routetelechargement.asp", r.URL.Path)
		assert.Equal(t, "XL", r.URL.Query().Get("formatTelechargement"))
		assert.Equal(t, "all", r.URL.Query().Get("compte"))
		assert.Equal(t, "identity", r.Header.Get("Accept-Encoding"))
		w.Header().Set("Content-Type", "application/vnd.ms-excel")
		_, _ = w.Write(payload)
	}, decoderFunc(func(data []byte) (*workbook.Workbook, error) {
		got = data
		return workbook.FromRows([]string{"Comptes"}, map[string]workbook.Sheet{"Comptes": {"a"}}), nil
	}))

	wb, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, []string{"Comptes"}, wb.SheetNames)
}

func TestFetchVendorDown(t *testing.T) {
	f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, decoderFunc(func([]byte) (*workbook.Workbook, error) {
		t.Fatal("decoder must not be called")
		return nil, nil
	}))

	_, err := f.Fetch(context.Background())
	assert.ErrorIs(t, err, outcome.ErrVendorDown)
}

func TestFetchClientError(t *testing.T) {
	f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, nil)

	_, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, outcome.ErrVendorDown))
}

func TestFetchDecodeError(t *testing.T) {
	boom := errors.New("not a workbook")
	f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}, decoderFunc(func([]byte) (*workbook.Workbook, error) { return nil, boom }))

	_, err := f.Fetch(context.Background())
	assert.ErrorIs(t, err, boom)
}
