package models

import "encoding/json"

// AskRequest is the JSON body of POST /api/ask.
type AskRequest struct {
	DatasetID string `json:"dataset_id"`
	Question  string `json:"question"`
}

// AnswerResult is the 2xx body of POST /api/ask.
type AnswerResult struct {
	Answer     string           `json:"answer"`
	Figure     *Figure          `json:"figure,omitempty"`
	AggPreview []map[string]any `json:"agg_preview,omitempty"`

	SuggestedQuestions []string `json:"suggested_questions,omitempty"`
	ChartError         string   `json:"chart_error,omitempty"`
	LLMError           string   `json:"llm_error,omitempty"`
}

// Figure is a plot specification in the {data, layout} shape. Both halves are
// kept as raw JSON so the browser receives exactly what the backend sent.
type Figure struct {
	Data   json.RawMessage `json:"data"`
	Layout json.RawMessage `json:"layout,omitempty"`
}

// Empty reports whether the figure carries no traces.
func (f *Figure) Empty() bool {
	if f == nil || len(f.Data) == 0 {
		return true
	}
	s := string(f.Data)
	return s == "null" || s == "[]"
}
