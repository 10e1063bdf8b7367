package client

import (
	"encoding/json"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay"
)

// Normalize extracts answers and relevant clauses from the answering
// service's reply. A missing field, a field of the wrong type or an
// unparseable body all yield empty slices; nothing here fails the request.
func Normalize(body []byte) relay.Response {
	resp := relay.Response{Answers: []string{}, RelevantClauses: []string{}}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return resp
	}
	resp.Answers = stringSlice(fields["answers"])
	resp.RelevantClauses = stringSlice(fields["relevant_clauses"])
	return resp
}

func stringSlice(raw json.RawMessage) []string {
	var out []string
	if len(raw) == 0 || json.Unmarshal(raw, &out) != nil || out == nil {
		return []string{}
	}
	return out
}
