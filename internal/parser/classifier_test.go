package parser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gikundiro/fanpay-backend/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClassifier(url string) *OpenAIClassifier {
	return NewOpenAIClassifier(config.ParserConfig{
		ClassifierURL:    url,
		ClassifierAPIKey: "sk-test",
		ClassifierModel:  "gpt-4o-mini",
		HTTPTimeout:      time.Second,
	})
}

func TestOpenAIClassifierDecodesStructuredOutput(t *testing.T) {
	var got responsesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		output := `{"amount":15000,"currency":"RWF","payer_mask":"*********456","ref":"TX1","confidence":0.88}`
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": []any{map[string]any{
				"content": []any{map[string]any{"type": "output_text", "text": output}},
			}},
		})
	}))
	defer srv.Close()

	res, err := newTestClassifier(srv.URL).Classify(context.Background(), ClassifyRequest{Text: "You have received 15,000 RWF", Prompt: "custom"})
	require.NoError(t, err)
	require.NotNil(t, res.Amount)
	assert.Equal(t, int64(15000), *res.Amount)
	assert.Equal(t, "TX1", res.Reference)
	assert.InDelta(t, 0.88, res.Confidence, 0.0001)
	assert.Equal(t, "gpt-4o-mini", res.Model)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, "json_schema", got.Text.Format.Type)
	require.Len(t, got.Input, 2)
	assert.Equal(t, "custom", got.Input[0].Content)
}

func TestOpenAIClassifierErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer srv.Close()

	_, err := newTestClassifier(srv.URL).Classify(context.Background(), ClassifyRequest{Text: "x"})
	require.ErrorContains(t, err, "overloaded")

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"output":[]}`))
	}))
	defer empty.Close()
	_, err = newTestClassifier(empty.URL).Classify(context.Background(), ClassifyRequest{Text: "x"})
	require.ErrorContains(t, err, "no output")

	_, err = NewOpenAIClassifier(config.ParserConfig{ClassifierURL: empty.URL}).Classify(context.Background(), ClassifyRequest{Text: "x"})
	require.ErrorContains(t, err, "api key")
}
