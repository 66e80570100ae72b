// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ink is the ink service client. It sends Universal Ink
// Model byte streams and receives either enriched UIM bytes or an
// exported rendering (PNG, JPG, SVG, PDF).
package ink

import (
	"context"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianKnowledge/datatypes"
	"github.com/AleutianAI/AleutianKnowledge/pkg/apierrors"
	"github.com/AleutianAI/AleutianKnowledge/transport"
)

var tracer = otel.Tracer("aleutian.knowledge.ink")

// uimContentType is the media type of Universal Ink Model payloads.
const uimContentType = "application/vnd.wacom.uim"

// ExportFormat selects the rendering produced by ExportUIM.
type ExportFormat string

const (
	ExportPNG       ExportFormat = "png"
	ExportJPG       ExportFormat = "jpg"
	ExportSVG       ExportFormat = "svg"
	ExportPDFVector ExportFormat = "pdf-vector"
	ExportPDFRaster ExportFormat = "pdf-raster"
)

// TextDirection is the writing orientation for handwriting
// recognition. Only meaningful for Japanese.
type TextDirection string

const (
	DirectionHorizontal TextDirection = "horizontal"
	DirectionVertical   TextDirection = "vertical"
)

// Client talks to one ink service instance. Safe for concurrent use.
type Client struct {
	tp      *transport.Client
	baseURL string
}

// New binds an ink client to a service URL.
func New(tp *transport.Client, serviceURL string) *Client {
	return &Client{tp: tp, baseURL: strings.TrimSuffix(serviceURL, "/")}
}

func (c *Client) inkURL(segments ...string) string {
	return c.baseURL + "/" + strings.Join(segments, "/") + "/"
}

func (c *Client) start(ctx context.Context, op string) (context.Context, traceSpan) {
	ctx, span := tracer.Start(ctx, "ink."+op)
	return ctx, traceSpan{span}
}

// localeParams validates the locale and the orientation rule and
// builds the query. A text direction is permitted only for ja_JP.
func localeParams(locale datatypes.LocaleCode, direction TextDirection) (url.Values, error) {
	if !datatypes.IsSupportedLocale(locale) {
		return nil, apierrors.Validation("unsupported locale %q", locale)
	}
	params := url.Values{"locale": {string(locale)}}
	if direction != "" {
		if locale != datatypes.JaJP {
			return nil, apierrors.Validation("text direction is only supported for %s", datatypes.JaJP)
		}
		params.Set("textDirection", string(direction))
	}
	return params, nil
}

// post sends UIM bytes and returns the raw response body.
func (c *Client) post(ctx context.Context, op, endpoint string, uim []byte, params url.Values) ([]byte, error) {
	ctx, span := c.start(ctx, op)
	defer span.End()

	if len(uim) == 0 {
		return nil, apierrors.Validation("UIM payload must not be empty")
	}
	resp, err := c.tp.PostBytes(ctx, endpoint, uim, uimContentType, &transport.RequestOptions{Params: params})
	if err != nil {
		return nil, span.fail(err)
	}
	span.ok(attribute.Int("kg.response_bytes", len(resp.Body)))
	return resp.Body, nil
}

// EnrichUIMNER runs named-entity linking over the recognized text of
// the UIM document and returns the enriched UIM bytes.
func (c *Client) EnrichUIMNER(ctx context.Context, uim []byte, locale datatypes.LocaleCode) ([]byte, error) {
	params, err := localeParams(locale, "")
	if err != nil {
		return nil, err
	}
	return c.post(ctx, "EnrichUIMNER", c.inkURL("ner", "enrich-uim"), uim, params)
}

// EnrichUIMInkToText runs handwriting recognition and returns the
// enriched UIM bytes. Direction may be set for ja_JP only.
func (c *Client) EnrichUIMInkToText(ctx context.Context, uim []byte, locale datatypes.LocaleCode, direction TextDirection) ([]byte, error) {
	params, err := localeParams(locale, direction)
	if err != nil {
		return nil, err
	}
	return c.post(ctx, "EnrichUIMInkToText", c.inkURL("ink-to-text", "enrich-uim"), uim, params)
}

// UIMToText runs handwriting recognition and returns the enriched
// UIM bytes carrying the recognition result.
func (c *Client) UIMToText(ctx context.Context, uim []byte, locale datatypes.LocaleCode, direction TextDirection) ([]byte, error) {
	params, err := localeParams(locale, direction)
	if err != nil {
		return nil, err
	}
	return c.post(ctx, "UIMToText", c.inkURL("ink-to-text", "uim-to-text"), uim, params)
}

// UIMToTextPlain runs handwriting recognition and returns the
// recognized text as a plain string.
func (c *Client) UIMToTextPlain(ctx context.Context, uim []byte, locale datatypes.LocaleCode, direction TextDirection) (string, error) {
	params, err := localeParams(locale, direction)
	if err != nil {
		return "", err
	}
	params.Set("plain", "true")
	body, err := c.post(ctx, "UIMToTextPlain", c.inkURL("ink-to-text", "uim-to-text"), uim, params)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// EnrichUIMMath runs math recognition and returns the enriched UIM
// bytes.
func (c *Client) EnrichUIMMath(ctx context.Context, uim []byte, locale datatypes.LocaleCode) ([]byte, error) {
	params, err := localeParams(locale, "")
	if err != nil {
		return nil, err
	}
	return c.post(ctx, "EnrichUIMMath", c.inkURL("ink-to-math", "enrich-uim"), uim, params)
}

// EnrichUIMInkToX runs the full Ink-to-X enrichment pipeline and
// returns the enriched UIM bytes.
func (c *Client) EnrichUIMInkToX(ctx context.Context, uim []byte, locale datatypes.LocaleCode) ([]byte, error) {
	params, err := localeParams(locale, "")
	if err != nil {
		return nil, err
	}
	return c.post(ctx, "EnrichUIMInkToX", c.inkURL("ink-to-x", "enrich-uim"), uim, params)
}

// ExportUIM renders the UIM document into the given format and
// returns the rendering bytes.
func (c *Client) ExportUIM(ctx context.Context, uim []byte, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportPNG, ExportJPG, ExportSVG, ExportPDFVector, ExportPDFRaster:
	default:
		return nil, apierrors.Validation("unknown export format %q", format)
	}
	params := url.Values{"format": {string(format)}}
	return c.post(ctx, "ExportUIM", c.inkURL("conversion", "export-uim"), uim, params)
}

// UIMToPDF renders the UIM document as a vector PDF.
func (c *Client) UIMToPDF(ctx context.Context, uim []byte) ([]byte, error) {
	return c.post(ctx, "UIMToPDF", c.inkURL("conversion", "uim-to-pdf"), uim, nil)
}

type traceSpan struct {
	trace.Span
}

func (s traceSpan) fail(err error) error {
	s.RecordError(err)
	s.SetStatus(codes.Error, err.Error())
	return err
}

func (s traceSpan) ok(attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		s.SetAttributes(attrs...)
	}
	s.SetStatus(codes.Ok, "")
}
