package publish

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/grafana/dskit/backoff"
	"github.com/klauspost/compress/gzip"

	"github.com/xraph/pulse/errs"
	"github.com/xraph/pulse/log"
	"github.com/xraph/pulse/meter"
)

// validationResponse is the structured error report the aggregation service
// returns for partially or fully rejected payloads.
type validationResponse struct {
	Type       string   `json:"type"`
	ErrorCount int      `json:"errorCount"`
	Message    []string `json:"message"`
}

// sendOutcome classifies one POST attempt.
type sendOutcome int

const (
	sendOK sendOutcome = iota
	sendRetryable
	sendFatal
)

// sendBatch encodes, compresses, and posts one batch, retrying with
// exponential backoff on the retryable failures. POST is not idempotent, so
// only connect (dial) failures, 429, and 503 are retried; a generic read timeout is
// treated as fatal to avoid duplicate submission. Exhausted or fatal batches
// are dropped and counted.
func (r *Reporter) sendBatch(batch []outbound) {
	body, kept, err := EncodeBatch(batch)
	if err != nil {
		r.stats.recordError(err)
		r.log.Error("batch encoding failed", log.Err(err))

		return
	}

	if kept == 0 {
		return
	}

	compressed, err := compress(body)
	if err != nil {
		r.stats.recordError(err)
		r.log.Error("batch compression failed", log.Err(err))

		return
	}

	requestID := uuid.NewString()

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(r.cfg.MaxAttempts+1)*(r.cfg.ReadTimeout+r.cfg.Step))
	defer cancel()

	b := backoff.New(ctx, backoff.Config{
		MinBackoff: r.cfg.InitialBackoff,
		MaxBackoff: r.cfg.Step,
		MaxRetries: r.cfg.MaxAttempts,
	})

	for b.Ongoing() {
		r.stats.attempts.Add(1)

		outcome, attemptErr := r.post(compressed, requestID, kept)
		if outcome == sendOK {
			r.stats.recordSend(kept, int64(len(compressed)), time.UnixMilli(r.clock.WallTime()))

			return
		}

		r.stats.recordError(attemptErr)

		if outcome == sendFatal {
			if errs.Is(attemptErr, errs.CodePublishValidation) {
				// Already counted under the validation drop counters.
				return
			}

			break
		}

		r.stats.retries.Add(1)
		b.Wait()
	}

	r.stats.droppedHTTP.Add(int64(kept))
	r.droppedHTTP.Add(float64(kept))
	r.log.Warn("batch dropped after send failures",
		log.Int("measurements", kept), log.String("requestId", requestID))
}

// post performs a single attempt.
func (r *Reporter) post(payload []byte, requestID string, kept int) (sendOutcome, error) {
	req, err := http.NewRequest(http.MethodPost, r.cfg.URI, bytes.NewReader(payload))
	if err != nil {
		return sendFatal, errs.Wrap(errs.CodePublishHTTP, "building request", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := r.client.Do(req)
	if err != nil {
		if isConnectError(err) {
			return sendRetryable, errs.Wrap(errs.CodePublishHTTP, "connect failed", err)
		}

		return sendFatal, errs.Wrap(errs.CodePublishHTTP, "send failed", err)
	}

	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	r.recordClockSkew(resp)

	switch {
	case resp.StatusCode == http.StatusOK:
		return sendOK, nil
	case resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusBadRequest:
		// Structured validation feedback; never retried.
		r.handleValidationErrors(resp, kept)

		if resp.StatusCode == http.StatusAccepted {
			return sendOK, nil
		}

		return sendFatal, errs.New(errs.CodePublishValidation, "payload rejected by aggregator")
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return sendRetryable, errs.Newf(errs.CodePublishHTTP, "aggregator returned %d", resp.StatusCode)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return sendOK, nil
	default:
		return sendFatal, errs.Newf(errs.CodePublishHTTP, "aggregator returned %d", resp.StatusCode)
	}
}

// handleValidationErrors logs the server's rejection report and counts the
// drops keyed by category.
func (r *Reporter) handleValidationErrors(resp *http.Response, kept int) {
	var v validationResponse
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		r.log.Warn("unparseable validation response", log.Err(err))

		return
	}

	count := v.ErrorCount
	if count == 0 && resp.StatusCode == http.StatusBadRequest {
		count = kept
	}

	category := v.Type
	if category == "" {
		category = "unknown"
	}

	r.stats.droppedValidation.Add(int64(count))
	r.registry.Counter(meter.NewId("pulse.publish.dropped.validation",
		map[string]string{"category": category})).Add(float64(count))

	for _, msg := range v.Message {
		r.log.Warn("aggregator validation error",
			log.String("category", category), log.String("message", msg))
	}
}

// recordClockSkew compares the server Date header against the local clock
// and records the signed delta into the timer matching its sign. A missing
// header is skipped.
func (r *Reporter) recordClockSkew(resp *http.Response) {
	dateStr := resp.Header.Get("Date")
	if dateStr == "" {
		r.log.Debug("response missing Date header, skipping skew sample")

		return
	}

	serverTime, err := http.ParseTime(dateStr)
	if err != nil {
		r.log.Debug("unparseable Date header", log.Err(err))

		return
	}

	delta := r.clock.WallTime() - serverTime.UnixMilli()

	if delta >= 0 {
		r.skewFast.Record(time.Duration(delta) * time.Millisecond)
	} else {
		r.skewSlow.Record(time.Duration(-delta) * time.Millisecond)
	}
}

// isConnectError reports whether err happened before the request reached the
// server, making a POST retry safe.
func isConnectError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}

	return false
}

func compress(body []byte) ([]byte, error) {
	var buf bytes.Buffer

	zw, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "creating gzip writer", err)
	}

	if _, err := zw.Write(body); err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "compressing payload", err)
	}

	if err := zw.Close(); err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "flushing gzip writer", err)
	}

	return buf.Bytes(), nil
}
