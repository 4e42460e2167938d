package upstream

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// CodeTokenInvalid is the vendor envelope code for an expired or unknown access token.
const CodeTokenInvalid = 1600001

var rateLimitMarkers = []string{"qps limit", "too much request", "rate limit"}

// Outcome classifies an upstream answer.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRateLimited
	OutcomeTokenInvalid
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeTokenInvalid:
		return "token_invalid"
	default:
		return "error"
	}
}

// Envelope is the vendor's standard response wrapper.
type Envelope struct {
	Code    int             `json:"code"`
	Result  bool            `json:"result"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Response is an upstream answer parsed once at the transport boundary. Body
// is always valid JSON and is what the proxy relays to callers.
type Response struct {
	Status   int
	Body     json.RawMessage
	Envelope Envelope
	Outcome  Outcome
}

// ParseResponse classifies a raw upstream answer. Bodies that are not JSON
// are wrapped as {"message": text}.
func ParseResponse(status int, raw []byte) *Response {
	body := bytes.TrimSpace(raw)
	if !json.Valid(body) || len(body) == 0 {
		wrapped, _ := json.Marshal(map[string]string{"message": string(raw)})
		body = wrapped
	}

	r := &Response{Status: status, Body: json.RawMessage(body)}
	// Non-object JSON leaves the envelope zero valued.
	_ = json.Unmarshal(body, &r.Envelope)
	r.Outcome = classify(r)
	return r
}

func classify(r *Response) Outcome {
	if r.Status == http.StatusTooManyRequests || isRateLimitMessage(r.Envelope.Message) {
		return OutcomeRateLimited
	}
	if r.Status == http.StatusUnauthorized || r.Envelope.Code == CodeTokenInvalid {
		return OutcomeTokenInvalid
	}
	if r.Status < 200 || r.Status > 299 {
		return OutcomeError
	}
	return OutcomeOK
}

func isRateLimitMessage(message string) bool {
	if message == "" {
		return false
	}
	m := strings.ToLower(message)
	for _, marker := range rateLimitMarkers {
		if strings.Contains(m, marker) {
			return true
		}
	}
	return false
}

// Succeeded reports a 200 whose envelope carries result=true and a data payload.
func (r *Response) Succeeded() bool {
	return r.Status == http.StatusOK && r.Envelope.Result && hasData(r.Envelope.Data)
}

// DecodeData unmarshals the envelope's data payload into v.
func (r *Response) DecodeData(v any) error {
	if !hasData(r.Envelope.Data) {
		return errors.New("response has no data")
	}
	return errors.Wrap(json.Unmarshal(r.Envelope.Data, v), "decode upstream data")
}

func hasData(data json.RawMessage) bool {
	return len(data) > 0 && !bytes.Equal(data, []byte("null"))
}
