// Package relay defines the request, response and event types shared by the
// document relay pipeline.
package relay

import "time"

// Strategy names how a document reference becomes something the answering
// service can consume.
type Strategy string

const (
	StrategyUpload      Strategy = "upload"
	StrategyFetch       Strategy = "fetch"
	StrategyPassthrough Strategy = "passthrough"
)

// Upload is a document received in the request body.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Reference points at the request's document: exactly one of Upload or URL
// is set on a valid reference.
type Reference struct {
	Upload *Upload
	URL    string
}

// IsUpload reports whether the reference carries document bytes.
func (r Reference) IsUpload() bool {
	return r.Upload != nil
}

// IsEmpty reports whether no document was supplied.
func (r Reference) IsEmpty() bool {
	return r.Upload == nil && r.URL == ""
}

// Request is one validated run request.
type Request struct {
	RequestID string
	Reference Reference
	Questions []string
}

// Response is the normalized answer set returned to the client. The number
// of answers is not required to match the number of questions.
type Response struct {
	Answers         []string `json:"answers"`
	RelevantClauses []string `json:"relevant_clauses,omitempty"`
}

// Run outcomes recorded on events and metrics.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeCached  = "cached"
)

// RunEvent is published to Kafka after every run.
type RunEvent struct {
	RequestID     string           `json:"request_id"`
	Strategy      Strategy         `json:"strategy"`
	Document      string           `json:"document"`
	QuestionCount int              `json:"question_count"`
	AnswerCount   int              `json:"answer_count"`
	Outcome       string           `json:"outcome"`
	Error         string           `json:"error,omitempty"`
	DurationMs    int64            `json:"duration_ms"`
	Stages        map[string]int64 `json:"stages_ms,omitempty"`
	FinishedAt    time.Time        `json:"finished_at"`
}
