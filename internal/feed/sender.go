// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/adaptorlib/internal/adaptorerr"
)

// Decision is returned by an ErrorHandler to tell Send how to proceed
// after a single POST attempt.
type Decision int

const (
	// Retry asks Send to retry the attempt per the backoff policy.
	Retry Decision = iota
	// AbortPush stops the whole push immediately, returning the error.
	AbortPush
	// ContinueSkip treats the attempt as done (neither success nor a
	// reason to abort) and returns nil to the caller.
	ContinueSkip
)

// ErrorHandler is consulted after every send attempt that did not
// succeed outright, so callers can customize retry/abort policy (for
// instance, aborting on the first permanent 4xx but retrying on
// connection resets).
type ErrorHandler func(err error, attempt int) Decision

// DefaultErrorHandler retries transient errors up to the backoff
// policy's own limits and aborts on anything else.
func DefaultErrorHandler(err error, attempt int) Decision {
	if errors.Is(err, adaptorerr.ErrTransientIO) {
		return Retry
	}
	return AbortPush
}

// Sender posts composed feed bodies to an Appliance's xmlfeed endpoint.
type Sender struct {
	ApplianceURL string
	Datasource   string
	HTTPClient   *http.Client
	ErrorHandler ErrorHandler

	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewSender constructs a Sender with a default HTTP client and a
// circuit breaker that trips after 5 consecutive failures and probes
// again after 30s, grounded on the same gobreaker settings shape used
// elsewhere in the corpus for outbound-call protection.
func NewSender(applianceURL, datasource string) *Sender {
	s := &Sender{
		ApplianceURL: applianceURL,
		Datasource:   datasource,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		ErrorHandler: DefaultErrorHandler,
	}
	s.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "feed-sender",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return s
}

// Send posts blob as a multipart/form-data body to the Appliance's
// xmlfeed endpoint, retrying transient failures with exponential
// backoff (1s initial, factor 2, 30s cap, 5 attempts) and short-
// circuiting through a circuit breaker once the Appliance has been
// down long enough to exhaust several pushes' worth of retries.
func (s *Sender) Send(ctx context.Context, blob []byte) error {
	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.sendWithRetry(ctx, blob)
	})
	return err
}

func (s *Sender) sendWithRetry(ctx context.Context, blob []byte) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		err := s.postOnce(ctx, blob)
		if err == nil {
			return nil
		}

		handler := s.ErrorHandler
		if handler == nil {
			handler = DefaultErrorHandler
		}
		switch handler(err, attempt) {
		case ContinueSkip:
			return nil
		case AbortPush:
			return backoff.Permanent(err)
		default:
			return err
		}
	}

	return backoff.Retry(op, backoff.WithMaxRetries(backoff.WithContext(bo, ctx), 4))
}

func (s *Sender) postOnce(ctx context.Context, blob []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("data", "feed.xml")
	if err != nil {
		return fmt.Errorf("%w: build multipart body: %v", adaptorerr.ErrPermanentIO, err)
	}
	if _, err := part.Write(blob); err != nil {
		return fmt.Errorf("%w: write multipart body: %v", adaptorerr.ErrPermanentIO, err)
	}
	if err := mw.WriteField("datasource", s.Datasource); err != nil {
		return fmt.Errorf("%w: write datasource field: %v", adaptorerr.ErrPermanentIO, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("%w: close multipart writer: %v", adaptorerr.ErrPermanentIO, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.ApplianceURL+"/xmlfeed", &body)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", adaptorerr.ErrPermanentIO, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", adaptorerr.ErrTransientIO, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: appliance returned %d", adaptorerr.ErrTransientIO, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: appliance returned %d", adaptorerr.ErrPermanentIO, resp.StatusCode)
	}
	return nil
}
