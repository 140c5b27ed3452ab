// Package recognize handles communication with the external recognition
// service. Both endpoints return the RecognitionResult union; transport and
// parse failures are classified locally and never escape as raw errors.
package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/conceptmap-ai/digitizer/internal/domain"
	"github.com/conceptmap-ai/digitizer/internal/observability"
)

// Config holds recognition service settings.
type Config struct {
	BaseURL      string
	ProcessPath  string
	GeneratePath string
	Timeout      time.Duration
}

// Client talks to the recognition service.
type Client struct {
	httpClient  *http.Client
	processURL  string
	generateURL string
	logger      *observability.Logger
}

// NewClient creates a recognition client.
func NewClient(cfg Config, logger *observability.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	process := cfg.ProcessPath
	if process == "" {
		process = "/process-drawing"
	}
	generate := cfg.GeneratePath
	if generate == "" {
		generate = "/generate"
	}
	base := strings.TrimSuffix(cfg.BaseURL, "/")

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		processURL:  base + process,
		generateURL: base + generate,
		logger:      logger.WithComponent("recognize"),
	}
}

// drawingRequest is the primary endpoint's request body. The format flags
// assert that the payload is an opaque PNG and must not be transcoded to a
// lossy format; the backend has historically mishandled transparent or
// recompressed input.
type drawingRequest struct {
	ImageContent          string `json:"imageContent"`
	ImageBase64           string `json:"imageBase64"`
	Format                string `json:"format"`
	PreventJpegConversion bool   `json:"preventJpegConversion"`
	ImageHasAlpha         bool   `json:"imageHasAlpha"`
	OutputFormat          string `json:"outputFormat"`
	PreserveFormat        bool   `json:"preserveFormat"`
}

// textRequest is the secondary text-to-graph endpoint's request body.
type textRequest struct {
	Text    string `json:"text"`
	MapType string `json:"mapType"`
}

// envelope is the loosely-typed response shape shared by both endpoints.
// Concepts and relationships are decoded entry by entry so one malformed
// element does not discard the rest.
type envelope struct {
	Error         string            `json:"error"`
	RawText       string            `json:"raw_text"`
	Concepts      []json.RawMessage `json:"concepts"`
	Relationships []json.RawMessage `json:"relationships"`
	Structure     *structurePayload `json:"structure"`
}

type conceptPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type relationshipPayload struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

type structurePayload struct {
	Type string `json:"type"`
	Root string `json:"root"`
}

// Recognize sends the normalized image to the primary endpoint and
// classifies the response.
func (c *Client) Recognize(ctx context.Context, img domain.RasterImage) domain.RecognitionResult {
	body := drawingRequest{
		ImageContent:          img.DataURI(),
		ImageBase64:           img.Base64(),
		Format:                "png",
		PreventJpegConversion: true,
		ImageHasAlpha:         false,
		OutputFormat:          "png",
		PreserveFormat:        true,
	}

	c.logger.Info().Int("width", img.Width).Int("height", img.Height).Msg("sending drawing for recognition")
	return c.post(ctx, c.processURL, body)
}

// GenerateFromText routes raw recognized text through the text-to-graph
// endpoint.
func (c *Client) GenerateFromText(ctx context.Context, text, mapType string) domain.RecognitionResult {
	c.logger.Info().Int("text_len", len(text)).Msg("sending recognized text for graph generation")
	return c.post(ctx, c.generateURL, textRequest{Text: text, MapType: mapType})
}

// post performs a JSON POST and classifies the response. All failures are
// converted to domain.Failure; this method never returns an error.
func (c *Client) post(ctx context.Context, url string, body any) domain.RecognitionResult {
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.Failure{Message: "marshal request: " + err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return domain.Failure{Message: "build request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Failure{Message: "request failed: " + err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Failure{Message: "read response: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("recognition endpoint returned non-2xx")
		return domain.Failure{Message: strings.TrimSpace(string(raw))}
	}

	return classify(raw)
}

// classify resolves a 2xx response body into the result union.
func classify(raw []byte) domain.RecognitionResult {
	if len(bytes.TrimSpace(raw)) == 0 {
		return domain.Failure{Message: "empty response"}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.Failure{Message: "malformed response: " + err.Error()}
	}

	concepts := decodeConcepts(env.Concepts)
	rawText := strings.TrimSpace(env.RawText)

	// The service reports "read the text, could not infer structure" as an
	// error accompanied by raw_text; that combination is a text-only result
	// the controller can still recover, not a failure.
	if len(concepts) == 0 {
		if rawText != "" {
			return domain.TextOnlyResult{RawText: rawText}
		}
		if env.Error != "" {
			return domain.Failure{Message: env.Error}
		}
		return domain.Failure{Message: "response contained no concepts and no recognized text"}
	}

	if env.Error != "" && rawText == "" {
		return domain.Failure{Message: env.Error}
	}

	res := domain.StructuredResult{
		Concepts:      concepts,
		Relationships: decodeRelationships(env.Relationships),
		RawText:       rawText,
	}
	if env.Structure != nil {
		res.Structure = &domain.StructureHint{
			Type: env.Structure.Type,
			Root: env.Structure.Root,
		}
	}
	return res
}

// decodeConcepts decodes concept entries, discarding malformed ones.
func decodeConcepts(entries []json.RawMessage) []domain.Concept {
	concepts := make([]domain.Concept, 0, len(entries))
	for _, entry := range entries {
		var p conceptPayload
		if err := json.Unmarshal(entry, &p); err != nil {
			continue
		}
		if p.ID == "" && p.Name == "" && p.Description == "" {
			continue
		}
		concepts = append(concepts, domain.Concept{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
		})
	}
	return concepts
}

// decodeRelationships decodes relationship entries, discarding malformed
// ones.
func decodeRelationships(entries []json.RawMessage) []domain.Relationship {
	rels := make([]domain.Relationship, 0, len(entries))
	for _, entry := range entries {
		var p relationshipPayload
		if err := json.Unmarshal(entry, &p); err != nil {
			continue
		}
		if p.Source == "" && p.Target == "" {
			continue
		}
		rels = append(rels, domain.Relationship{
			Source: p.Source,
			Target: p.Target,
			Label:  p.Label,
		})
	}
	return rels
}
