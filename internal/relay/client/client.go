// Package client relays a materialized document and its questions to the
// answering service in a single HTTP call.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay/materializer"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/resilience"
)

const (
	maxResponseBytes = 32 << 20
	maxErrorBytes    = 64 << 10
	maxDetailText    = 4 << 10
)

// StatusError is a non-2xx reply from the answering service.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("answering service returned %d", e.StatusCode)
}

// Client posts documents to one configured endpoint. It never retries.
type Client struct {
	url     string
	token   string
	timeout time.Duration
	http    *http.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBreaker guards every call with cb.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

func New(cfg config.RelayConfig, opts ...Option) *Client {
	c := &Client{
		url:     cfg.URL,
		token:   cfg.Token,
		timeout: cfg.Timeout,
		http:    http.DefaultClient,
		logger:  logger.WithComponent("relay-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Relay sends doc and questions downstream and normalizes the reply. Every
// failure is reported as a RelayFailed error whose detail is the upstream
// body (parsed JSON when possible) or the transport error text.
func (c *Client) Relay(ctx context.Context, doc *materializer.Document, questions []string) (*relay.Response, error) {
	var body []byte
	call := func() error {
		var err error
		body, err = c.post(ctx, doc, questions)
		if err != nil && ctx.Err() != nil {
			// The caller gave up; the answering service may be healthy.
			return resilience.Neutral(err)
		}
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		log := logger.FromContext(ctx)
		if ctx.Err() != nil {
			log.Warn("relay abandoned by caller", "url", c.url, "error", err)
			return nil, apperrors.RelayFailed(failureDetail(err))
		}
		log.Error("relay failed",
			"component", "relay-client",
			"url", c.url,
			"reference", doc.IsReference(),
			"error", err,
		)
		return nil, apperrors.RelayFailed(failureDetail(err))
	}

	resp := Normalize(body)
	return &resp, nil
}

func (c *Client) post(ctx context.Context, doc *materializer.Document, questions []string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var (
		reqBody     io.Reader
		contentType string
		writerDone  chan error
		pipeReader  *io.PipeReader
	)
	if doc.IsReference() {
		payload, err := json.Marshal(jsonRequest{Documents: doc.Reference, Questions: questions})
		if err != nil {
			return nil, fmt.Errorf("encoding relay request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
		contentType = "application/json"
	} else {
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		contentType = mw.FormDataContentType()
		writerDone = make(chan error, 1)
		go func() {
			err := writeMultipart(mw, doc, questions)
			pw.CloseWithError(err)
			writerDone <- err
		}()
		reqBody = pr
		pipeReader = pr
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, reqBody)
	if err != nil {
		if pipeReader != nil {
			pipeReader.Close()
			<-writerDone
		}
		return nil, fmt.Errorf("building relay request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if pipeReader != nil {
		// The document body must not be read after Relay returns.
		pipeReader.Close()
		<-writerDone
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: b}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading relay response: %w", err)
	}
	return b, nil
}

type jsonRequest struct {
	Documents string   `json:"documents"`
	Questions []string `json:"questions"`
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeMultipart(mw *multipart.Writer, doc *materializer.Document, questions []string) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(doc.OriginName)))
	ct := doc.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, doc.Body); err != nil {
		return fmt.Errorf("streaming document: %w", err)
	}
	query, err := json.Marshal(questions)
	if err != nil {
		return err
	}
	if err := mw.WriteField("query", string(query)); err != nil {
		return err
	}
	return mw.Close()
}

// failureDetail picks the most useful description of a relay failure for
// the client: the upstream JSON body, its text, or the error itself.
func failureDetail(err error) any {
	var se *StatusError
	if errors.As(err, &se) {
		trimmed := bytes.TrimSpace(se.Body)
		var parsed any
		if len(trimmed) > 0 && json.Unmarshal(trimmed, &parsed) == nil {
			return parsed
		}
		if len(trimmed) > 0 {
			text := string(trimmed)
			if len(text) > maxDetailText {
				text = text[:maxDetailText]
			}
			return text
		}
		return se.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "answering service did not respond in time"
	}
	return err.Error()
}
