package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("morningcoach.llm")

// statusError is a non-200 answer from a REST backend.
type statusError struct {
	Backend Backend
	Status  int
	Body    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Backend, e.Status, e.Body)
}

// startChatSpan opens the span shared by every backend's Chat.
func startChatSpan(ctx context.Context, backend Backend, model string, messages int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "llm.Chat", trace.WithAttributes(
		attribute.String("llm.backend", string(backend)),
		attribute.String("llm.model", model),
		attribute.Int("llm.num_messages", messages),
	))
}

// failSpan records err on span and returns it.
func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// postJSON sends in as a JSON POST and decodes a 200 answer into out.
// Other statuses come back as *statusError.
func postJSON(ctx context.Context, hc *http.Client, backend Backend, url string, headers map[string]string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", backend, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", backend, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s request to %s failed: %w", backend, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", backend, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &statusError{Backend: backend, Status: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", backend, err)
	}
	return nil
}
