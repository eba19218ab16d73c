// Package statement downloads the spreadsheet export of every account.
package statement

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/cicsync/pkg/endpoint"
	"github.com/yurifrl/cicsync/pkg/outcome"
	"github.com/yurifrl/cicsync/pkg/workbook"
)

// Fetcher needs a client carrying an authenticated session.
type Fetcher struct {
	logger   *log.Logger
	client   *http.Client
	resolver *endpoint.Resolver
	decoder  workbook.Decoder
}

func New(logger *log.Logger, client *http.Client, resolver *endpoint.Resolver, decoder workbook.Decoder) *Fetcher {
	return &Fetcher{
		logger:   logger,
		client:   client,
		resolver: resolver,
		decoder:  decoder,
	}
}

// Download returns the raw export.
func (f *Fetcher) Download(ctx context.Context) ([]byte, error) {
	target, err := f.resolver.URL(endpoint.StatementDownload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	// an explicit encoding keeps the transport from gunzipping the binary payload
	req.Header.Set("Accept-Encoding", "identity")

	f.logger.Info("downloading statement")
	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", outcome.ErrVendorDown, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		f.logger.Error("portal unavailable", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: statement download returned %d", outcome.ErrVendorDown, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("statement download: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read statement: %v", outcome.ErrVendorDown, err)
	}
	f.logger.Debug("statement downloaded", "bytes", len(data), "content_type", resp.Header.Get("Content-Type"))
	return data, nil
}

// Fetch downloads and decodes the export.
func (f *Fetcher) Fetch(ctx context.Context) (*workbook.Workbook, error) {
	data, err := f.Download(ctx)
	if err != nil {
		return nil, err
	}
	wb, err := f.decoder.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode statement: %w", err)
	}
	f.logger.Debug("statement decoded", "sheets", len(wb.SheetNames))
	return wb, nil
}
