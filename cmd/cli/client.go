package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/iho/saleledger/internal/adapter/http/middleware"
)

// apiClient talks to the saleledger HTTP API.
type apiClient struct {
	http    *http.Client
	out     io.Writer
	baseURL string
	actor   string
}

func newAPIClient(baseURL, actor string, timeout time.Duration, out io.Writer) *apiClient {
	return &apiClient{
		http:    &http.Client{Timeout: timeout},
		out:     out,
		baseURL: baseURL,
		actor:   actor,
	}
}

// apiError is a non-2xx answer from the server.
type apiError struct {
	Body   string
	Status int
}

func (e *apiError) Error() string {
	return fmt.Sprintf("request failed (status %d): %s", e.Status, e.Body)
}

// do sends body as JSON and pretty-prints the response to the client's output.
func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, body any) error {
	raw, err := c.fetch(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		_, err = c.out.Write(raw)
		return err
	}

	pretty.WriteByte('\n')
	_, err = pretty.WriteTo(c.out)

	return err
}

// export reads a report and prints it as JSON or, through conv, as CSV.
func (c *apiClient) export(ctx context.Context, path string, query url.Values, format string, conv csvExport) error {
	switch format {
	case formatJSON:
		return c.do(ctx, http.MethodGet, path, query, nil)
	case formatCSV:
	default:
		return fmt.Errorf("%w: %q", errBadFormat, format)
	}

	raw, err := c.fetch(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}

	records, err := conv(raw)
	if err != nil {
		return err
	}

	return csv.NewWriter(c.out).WriteAll(records)
}

// fetch performs the request and returns the body of a 2xx response.
func (c *apiClient) fetch(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.actor != "" {
		req.Header.Set(middleware.ActorHeader, c.actor)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apiError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
	}

	return raw, nil
}
