package advisory

import (
	"encoding/json"
	"fmt"

	"unitrader/internal/pkg/jsonutil"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// recommendationSchema pins the structural contract of the oracle response.
// Extra keys are tolerated; wrong types and out-of-range values are not.
const recommendationSchema = `{
  "type": "object",
  "required": ["action", "confidence"],
  "properties": {
    "action": {"type": "string"},
    "confidence": {"type": "integer", "minimum": 0, "maximum": 100},
    "rationale": {"type": "string"}
  }
}`

var compiledSchema = jsonschema.MustCompileString("recommendation.json", recommendationSchema)

// parseRecommendation turns raw oracle output into a validated
// Recommendation. It never guesses: any structural or range violation is an
// error and the caller falls back to WAIT.
func parseRecommendation(raw string) (Recommendation, error) {
	payload, ok := jsonutil.ExtractObject(raw)
	if !ok {
		return Recommendation{}, fmt.Errorf("no JSON object in oracle output")
	}
	if !gjson.Valid(payload) {
		return Recommendation{}, fmt.Errorf("oracle output is not well-formed JSON")
	}

	var generic any
	if err := json.Unmarshal([]byte(payload), &generic); err != nil {
		return Recommendation{}, err
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return Recommendation{}, fmt.Errorf("oracle output schema: %w", err)
	}

	parsed := gjson.Parse(payload)
	action, ok := ParseAction(parsed.Get("action").String())
	if !ok {
		return Recommendation{}, fmt.Errorf("invalid action %q", parsed.Get("action").String())
	}
	confidence := int(parsed.Get("confidence").Int())
	if confidence < 0 || confidence > 100 {
		return Recommendation{}, fmt.Errorf("confidence %d out of range", confidence)
	}
	return Recommendation{
		Action:     action,
		Confidence: confidence,
		Rationale:  parsed.Get("rationale").String(),
	}, nil
}
