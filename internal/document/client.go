package document

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrUnauthorized = errors.New("document api: unauthorized")
	ErrForbidden    = errors.New("document api: forbidden")
)

var pdfMagic = []byte("%PDF")

// TextExtractor turns binary document bytes (PDF) into text. The real
// extraction engine lives behind this boundary.
type TextExtractor interface {
	ExtractText(data []byte) (string, error)
}

// ClientConfig holds document API connection settings.
type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client fetches document versions from the document API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	extractor  TextExtractor
	logger     zerolog.Logger
}

// NewClient creates a document API client. extractor may be nil, in which
// case PDF binaries degrade to a summary placeholder.
func NewClient(cfg ClientConfig, extractor TextExtractor, logger zerolog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		extractor:  extractor,
		logger:     logger,
	}
}

// versionResponse is the document API reply shape. Content arrives either as
// top-level base64 binaries or nested under document.
type versionResponse struct {
	Binaries []string `json:"binaries"`
	Document struct {
		Data     string   `json:"data"`
		Binaries []string `json:"binaries"`
	} `json:"document"`
}

// FetchVersionText retrieves one document version and returns its textual
// content. Non-2xx statuses map to distinguished errors for 401/403/404.
func (c *Client) FetchVersionText(ctx context.Context, documentID, versionID string) (Document, error) {
	url := fmt.Sprintf("%s/documents/%s/versions/%s", c.baseURL, documentID, versionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Document{}, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("fetching document version: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return Document{}, ErrUnauthorized
	case http.StatusForbidden:
		return Document{}, ErrForbidden
	case http.StatusNotFound:
		return Document{}, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return Document{}, fmt.Errorf("document api: status %d: %s", resp.StatusCode, string(body))
	}

	var vr versionResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return Document{}, fmt.Errorf("decoding document response: %w", err)
	}

	name := fmt.Sprintf("%s@%s", documentID, versionID)
	doc := Document{Name: name, Body: c.contentFrom(vr)}
	if doc.Body == "" {
		return Document{}, fmt.Errorf("document version %s has no readable content", name)
	}
	return doc, nil
}

// contentFrom picks the first usable content source: top-level binaries,
// nested document data, then nested binaries.
func (c *Client) contentFrom(vr versionResponse) string {
	for _, b := range vr.Binaries {
		if text := c.decodeBinary(b); text != "" {
			return text
		}
	}
	if vr.Document.Data != "" {
		return vr.Document.Data
	}
	for _, b := range vr.Document.Binaries {
		if text := c.decodeBinary(b); text != "" {
			return text
		}
	}
	return ""
}

// decodeBinary base64-decodes one binary entry. PDF payloads go through the
// extractor; other payloads are used directly when they are valid text.
func (c *Client) decodeBinary(encoded string) string {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		c.logger.Warn().Err(err).Msg("skipping undecodable document binary")
		return ""
	}

	if bytes.HasPrefix(data, pdfMagic) {
		if c.extractor != nil {
			text, err := c.extractor.ExtractText(data)
			if err == nil && strings.TrimSpace(text) != "" {
				return text
			}
			c.logger.Warn().Err(err).Msg("pdf text extraction failed")
		}
		return fmt.Sprintf("[PDF document: %d bytes - text not extracted]", len(data))
	}

	if utf8.Valid(data) {
		return string(data)
	}
	return fmt.Sprintf("[Binary document: %d bytes]", len(data))
}
