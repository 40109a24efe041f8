package models

// GenerationMode selects the request shape and backend endpoint. The mode is
// the single discriminant; it is never inferred from other fields.
type GenerationMode string

const (
	ModeTopic          GenerationMode = "topic"
	ModePaper          GenerationMode = "paper"
	ModeKeyword        GenerationMode = "keyword"
	ModeCurrentAffairs GenerationMode = "current_affairs"
)

// GenerationRequest describes one generation call. It exists only for the
// duration of a single orchestrator cycle and is never persisted.
type GenerationRequest struct {
	Mode              GenerationMode `json:"mode"`
	Subject           string         `json:"subject,omitempty"`
	Topic             string         `json:"topic,omitempty"`
	Keyword           string         `json:"keyword,omitempty"`
	QuestionCount     int            `json:"question_count,omitempty"`
	UseCurrentAffairs bool           `json:"use_current_affairs,omitempty"`
	NewsSource        string         `json:"news_source,omitempty"`
	ModelID           string         `json:"model,omitempty"`
}

// Question is one generated question in an ordered result set.
type Question struct {
	ID            string `json:"id"`
	Text          string `json:"question"`
	ThinkingTrace string `json:"thinking,omitempty"`
}

// GenerationResult is the ordered output of one successful generation call.
// The backend produces fresh content per call; identical requests are not
// idempotent.
type GenerationResult struct {
	Questions     []Question `json:"questions"`
	QuestionCount int        `json:"question_count"`
}
