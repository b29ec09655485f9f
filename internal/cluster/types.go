package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pingcap/errors"
)

type NodeInfo struct {
	ID        string `json:"id"`
	Addr      string `json:"addr"`
	StartCode string `json:"start_code,omitempty"`
}

// Location returns the server instance this node is running as.
func (n NodeInfo) Location() ServerLocation {
	return ServerLocation{Addr: n.Addr, StartCode: n.StartCode}
}

// ServerLocation identifies one running server instance. A server restarted
// on the same address gets a new StartCode, so two locations are only equal
// when they name the same process lifetime.
type ServerLocation struct {
	Addr      string `json:"addr"`
	StartCode string `json:"start_code"`
}

func (l ServerLocation) String() string {
	return l.Addr + "," + l.StartCode
}

type RegisterRequest struct {
	Node    NodeInfo `json:"node"`
	Regions []string `json:"regions,omitempty"`
}

type AssignRequest struct {
	Region string `json:"region"`
	NodeID string `json:"node_id"`
}

// CatalogRow is one entry of a catalog region. Rows of the root region
// describe meta regions; rows of a meta region describe user regions.
type CatalogRow struct {
	Region    string `json:"region"`
	Table     string `json:"table"`
	StartKey  string `json:"start_key"`
	EndKey    string `json:"end_key"`
	Server    string `json:"server,omitempty"`
	StartCode string `json:"start_code,omitempty"`
	Offline   bool   `json:"offline,omitempty"`
}

// RowsResponse is returned by a region server for GET /regions/{name}/rows.
type RowsResponse struct {
	Region    string       `json:"region"`
	StartCode string       `json:"start_code"`
	Rows      []CatalogRow `json:"rows"`
}

// StatusError reports a non-2xx answer from a remote server.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %s: %d", e.URL, e.Code)
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return errors.Trace(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return errors.Trace(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &StatusError{URL: url, Code: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	return errors.Trace(json.NewDecoder(resp.Body).Decode(out))
}

// GetJSON fetches url and decodes the JSON body into out. Transport failures
// are returned unwrapped so callers can tell them apart from decode errors.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Trace(err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &StatusError{URL: url, Code: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &DecodeError{URL: url, Err: err}
	}
	return nil
}

// DecodeError wraps a malformed response body.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
