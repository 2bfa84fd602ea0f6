package anaplan

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/warp/planning-engine/planning"
)

const (
	DefaultAuthURL = "https://auth.anaplan.com/token/authenticate"
	DefaultAPIBase = "https://api.anaplan.com/2/0"
	DefaultTimeout = 60 * time.Second

	authPurpose = "planning-ux"
)

var tracer = otel.Tracer("planning-engine/anaplan")

// =============================================================================
// CLIENT - Thin REST client, one bounded call per method
// =============================================================================

// client issues authenticated calls to the platform API. Every call gets its
// own timeout derived from the caller's context; nothing is retried.
type client struct {
	http    *http.Client
	apiBase string
	authURL string
	timeout time.Duration
}

func (c *client) getJSON(ctx context.Context, token, path string, out any) error {
	body, err := c.do(ctx, token, http.MethodGet, path, nil, "application/json")
	if err != nil {
		return err
	}
	return decode(path, body, out)
}

func (c *client) postJSON(ctx context.Context, token, path string, in, out any) error {
	body, err := c.do(ctx, token, http.MethodPost, path, in, "application/json")
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decode(path, body, out)
}

func (c *client) getRaw(ctx context.Context, token, path string) (string, error) {
	body, err := c.do(ctx, token, http.MethodGet, path, nil, "text/csv")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *client) do(ctx context.Context, token, method, path string, in any, accept string) ([]byte, error) {
	op := method + " " + path
	header := http.Header{}
	header.Set("Authorization", "AnaplanAuthToken "+token)
	header.Set("Accept", accept)
	return c.send(ctx, op, method, c.apiBase+path, header, in)
}

// authenticate exchanges email/password for a token at the auth endpoint.
func (c *client) authenticate(ctx context.Context, email, password string) (string, error) {
	const op = "authenticate"
	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(email+":"+password)))
	header.Set("Accept", "application/json")

	body, err := c.send(ctx, op, http.MethodPost, c.authURL, header, map[string]string{"purpose": authPurpose})
	if err != nil {
		return "", err
	}
	var resp authResponse
	if err := decode(op, body, &resp); err != nil {
		return "", err
	}
	if resp.TokenInfo.TokenValue == "" {
		return "", planning.Upstream(op, nil, "authentication returned no token")
	}
	return resp.TokenInfo.TokenValue, nil
}

func (c *client) send(ctx context.Context, op, method, target string, header http.Header, in any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "anaplan."+strings.ToLower(method),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("anaplan.op", op),
		),
	)
	defer span.End()

	fail := func(err error, msg string) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		return err
	}

	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fail(err, "encode body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fail(planning.Upstream(op, err, "build request"), "build request")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fail(planning.Upstream(op, err, "request failed"), "transport")
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fail(planning.Upstream(op, nil, "failed: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)), "status")
	}

	body := io.Reader(resp.Body)
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fail(planning.Upstream(op, err, "invalid gzip body"), "gzip")
		}
		defer gz.Close()
		body = gz
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fail(planning.Upstream(op, err, "read body"), "read")
	}
	return data, nil
}

func decode(op string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return planning.Upstream(op, err, "malformed payload")
	}
	return nil
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type namedRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type authResponse struct {
	TokenInfo struct {
		TokenValue string `json:"tokenValue"`
	} `json:"tokenInfo"`
}

type workspacesResponse struct {
	Workspaces []namedRef `json:"workspaces"`
}

type modelsResponse struct {
	Models []namedRef `json:"models"`
}

type listsResponse struct {
	Lists []struct {
		ID     string    `json:"id"`
		Name   string    `json:"name"`
		Parent *namedRef `json:"parent"`
	} `json:"lists"`
}

type listItemsResponse struct {
	ListItems []struct {
		ID     string    `json:"id"`
		Name   string    `json:"name"`
		Parent *namedRef `json:"parent"`
	} `json:"listItems"`
}

type modulesResponse struct {
	Modules []struct {
		ID         string     `json:"id"`
		Name       string     `json:"name"`
		Dimensions []namedRef `json:"dimensions"`
	} `json:"modules"`
}

type lineItemsResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Format  string `json:"format"`
		Formula any    `json:"formula"`
	} `json:"items"`
}

type versionsResponse struct {
	Versions []namedRef `json:"versions"`
}

type exportResponse struct {
	ExportMetadata struct {
		ExportID string `json:"exportId"`
	} `json:"exportMetadata"`
}

type chunksResponse struct {
	Chunks []struct {
		ID string `json:"id"`
	} `json:"chunks"`
}

type importResponse struct {
	Imports []struct {
		ID string `json:"id"`
	} `json:"imports"`
}

func refID(r *namedRef) string {
	if r == nil {
		return ""
	}
	return r.ID
}

// mapFormat converts an upstream format name to a line item format.
func mapFormat(format string) planning.Format {
	f := strings.ToLower(format)
	switch {
	case strings.Contains(f, "currency"), strings.Contains(f, "money"):
		return planning.FormatCurrency
	case strings.Contains(f, "percent"):
		return planning.FormatPercentage
	case strings.Contains(f, "number"), strings.Contains(f, "decimal"), strings.Contains(f, "integer"):
		return planning.FormatNumber
	}
	return planning.FormatText
}

// hasFormula reports whether an upstream formula field is set.
func hasFormula(formula any) bool {
	switch f := formula.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(f) != ""
	case bool:
		return f
	default:
		return true
	}
}

// pathf formats an API path, escaping every string argument as a path segment.
func pathf(format string, args ...any) string {
	escaped := make([]any, len(args))
	for i, a := range args {
		if s, ok := a.(string); ok {
			a = url.PathEscape(s)
		}
		escaped[i] = a
	}
	return fmt.Sprintf(format, escaped...)
}
