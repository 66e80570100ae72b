// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transport

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"iter"
	"net/http"

	"github.com/AleutianAI/AleutianKnowledge/pkg/apierrors"
)

// maxLineBytes bounds a single NDJSON line (large document chunks).
const maxLineBytes = 4 * 1024 * 1024

// LineStream is a consumed-once NDJSON response. Not safe for
// concurrent use: one consumer per stream. Close is idempotent and
// must be called on every exit path; Lines closes on exhaustion.
type LineStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	closed  bool
}

// newLineStream wraps a streaming response body.
func newLineStream(body io.ReadCloser) *LineStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &LineStream{body: body, scanner: scanner}
}

// Close releases the underlying connection.
func (s *LineStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

// Lines yields each non-empty NDJSON line. Iteration stops on the
// first error; the error is yielded with a nil line. The stream is
// closed when the sequence ends, whether by exhaustion or early
// break.
func (s *LineStream) Lines() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		defer s.Close()
		for s.scanner.Scan() {
			line := bytes.TrimSpace(s.scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			// The scanner reuses its buffer; hand out a copy.
			out := make([]byte, len(line))
			copy(out, line)
			if !yield(out, nil) {
				return
			}
		}
		if err := s.scanner.Err(); err != nil {
			yield(nil, apierrors.Wrap(
				apierrors.New(apierrors.KindTransient, "stream interrupted"), err))
		}
	}
}

// PostStream issues a POST and hands the response body back as an
// NDJSON line stream. The caller owns the stream and must drain or
// close it. Retries apply only up to the first byte of the response;
// a broken stream mid-consumption surfaces on the iterator.
func (c *Client) PostStream(ctx context.Context, rawURL string, body any, opt *RequestOptions) (*LineStream, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	fullURL, err := appendParams(rawURL, opt)
	if err != nil {
		return nil, err
	}

	token := ""
	if opt == nil || !opt.NoAuth {
		token, err = c.token(ctx, opt)
		if err != nil {
			return nil, err
		}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	// No per-call timeout context here: a stream lives as long as the
	// consumer reads. Callers bound it with their own context.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, reader)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Validation("building request for %s", fullURL), err)
	}
	c.setHeaders(req, "application/json", token, opt)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.envelope(http.MethodPost, fullURL, payload, opt, 0, "network failure", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, snippetLimit))
		resp.Body.Close()
		svcErr := apierrors.FromResponse(http.MethodPost, fullURL, resp.StatusCode, string(snippet))
		svcErr.PayloadDigest = payloadDigest(payload)
		return nil, svcErr
	}
	return newLineStream(resp.Body), nil
}
