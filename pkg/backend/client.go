// Package backend is the HTTP client of the back-office REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/wurt83ow/backoffice-client/pkg/appcontext"
	"github.com/wurt83ow/backoffice-client/pkg/models"
)

// ErrNetworkUnavailable is returned when the request never got a response.
var ErrNetworkUnavailable = errors.New("network unavailable")

// ErrRequestNotSent is wrapped together with ErrNetworkUnavailable when the
// connection could not be established, so the backend cannot have seen the
// request. Without it a write may or may not have been applied.
var ErrRequestNotSent = errors.New("request not sent")

// ActionHeader carries the name of the user action behind a write.
const ActionHeader = "X-Backoffice-Action"

// StatusError is a response the backend rejected with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *StatusError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("server returned status: %s", e.Status)
	}
	return fmt.Sprintf("server returned status: %s: %s", e.Status, strings.TrimSpace(string(e.Body)))
}

// RequestEditorFn  is the function signature for the RequestEditor callback function
type RequestEditorFn func(ctx context.Context, req *http.Request) error

// Doer performs HTTP requests.
//
// The standard http.Client implements this interface.
type HttpRequestDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the back-office API.
type Client struct {
	// The endpoint of the server, with scheme, e.g. https://backoffice.example.com/api.
	// Request paths are appended to it.
	Server string

	// Doer for performing requests, typically a *http.Client with any
	// customized settings, such as certificate chains.
	Client HttpRequestDoer

	// A list of callbacks for modifying requests which are generated before sending over
	// the network.
	RequestEditors []RequestEditorFn
}

// ClientOption allows setting custom parameters during construction
type ClientOption func(*Client) error

// Creates a new Client, with reasonable defaults
func NewClient(server string, opts ...ClientOption) (*Client, error) {
	client := Client{
		Server: server,
	}
	for _, o := range opts {
		if err := o(&client); err != nil {
			return nil, err
		}
	}
	// ensure the server URL always has a trailing slash
	if !strings.HasSuffix(client.Server, "/") {
		client.Server += "/"
	}
	if client.Client == nil {
		client.Client = &http.Client{}
	}
	return &client, nil
}

// WithHTTPClient allows overriding the default Doer, which is
// automatically created using http.Client. This is useful for tests.
func WithHTTPClient(doer HttpRequestDoer) ClientOption {
	return func(c *Client) error {
		c.Client = doer
		return nil
	}
}

// WithRequestEditorFn allows setting up a callback function, which will be
// called right before sending the request. This can be used to mutate the request.
func WithRequestEditorFn(fn RequestEditorFn) ClientOption {
	return func(c *Client) error {
		c.RequestEditors = append(c.RequestEditors, fn)
		return nil
	}
}

// BearerTokenEditor sets the Authorization header from the stored session token.
func BearerTokenEditor(token func() string) RequestEditorFn {
	return func(ctx context.Context, req *http.Request) error {
		if token == nil {
			return nil
		}
		if token := token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return nil
	}
}

// ActionNameEditor tags requests with the action name stored in the context.
func ActionNameEditor() RequestEditorFn {
	return func(ctx context.Context, req *http.Request) error {
		if action := appcontext.GetActionName(ctx); action != "" {
			req.Header.Set(ActionHeader, action)
		}
		return nil
	}
}

// Request describes one call. Endpoint is a path relative to the server,
// optionally with a query string.
type Request struct {
	Method         string
	Endpoint       string
	Payload        json.RawMessage
	Attachments    []models.Attachment
	IdempotencyKey string
}

// Send performs the request and returns the response body.
// Attachments switch the body to multipart/form-data.
func (c *Client) Send(ctx context.Context, r Request, reqEditors ...RequestEditorFn) (json.RawMessage, error) {
	var (
		body        io.Reader
		contentType string
	)
	switch {
	case len(r.Attachments) > 0:
		buf, ct, err := EncodeMultipart(r.Payload, r.Attachments)
		if err != nil {
			return nil, err
		}
		body, contentType = buf, ct
	case len(r.Payload) > 0:
		body, contentType = bytes.NewReader(r.Payload), "application/json"
	}

	req, err := newRequest(ctx, c.Server, r.Method, r.Endpoint, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Add("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if r.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", r.IdempotencyKey)
	}
	if err := c.applyEditors(ctx, req, reqEditors); err != nil {
		return nil, err
	}
	return c.do(req)
}

// GetJSON fetches endpoint and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, endpoint string, out interface{}, reqEditors ...RequestEditorFn) error {
	body, err := c.Send(ctx, Request{Method: http.MethodGet, Endpoint: endpoint}, reqEditors...)
	if err != nil {
		return err
	}
	return Decode(body, out)
}

// Health checks that the backend answers.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.Send(ctx, Request{Method: http.MethodGet, Endpoint: HealthPath})
	return err
}

// Decode unmarshals a response body, treating an empty body as no data.
func Decode(body json.RawMessage, out interface{}) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func newRequest(ctx context.Context, server, method, endpoint string, body io.Reader) (*http.Request, error) {
	serverURL, err := url.Parse(server)
	if err != nil {
		return nil, err
	}

	operationPath := endpoint
	if operationPath == "" || operationPath[0] != '/' {
		operationPath = "/" + operationPath
	}
	operationPath = "." + operationPath

	queryURL, err := serverURL.Parse(operationPath)
	if err != nil {
		return nil, err
	}

	return http.NewRequestWithContext(ctx, method, queryURL.String(), body)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.Client.Do(req)
	if err != nil {
		if notSent(err) {
			return nil, fmt.Errorf("%w: %w: %w", ErrNetworkUnavailable, ErrRequestNotSent, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrNetworkUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: body}
	}
	return body, nil
}

// notSent reports whether err happened while dialing, before any byte of
// the request left the client.
func notSent(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func (c *Client) applyEditors(ctx context.Context, req *http.Request, additionalEditors []RequestEditorFn) error {
	for _, r := range c.RequestEditors {
		if err := r(ctx, req); err != nil {
			return err
		}
	}
	for _, r := range additionalEditors {
		if err := r(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// EncodeMultipart builds a multipart body: the JSON payload goes into the
// "data" field and every attachment becomes a file part.
func EncodeMultipart(payload json.RawMessage, attachments []models.Attachment) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	if len(payload) > 0 {
		if err := w.WriteField("data", string(payload)); err != nil {
			return nil, "", err
		}
	}
	for _, att := range attachments {
		if att.Data == nil {
			return nil, "", fmt.Errorf("attachment %s has no content", att.FileName)
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, att.Field, att.FileName))
		ct := att.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(att.Data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}
