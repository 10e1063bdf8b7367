// Package validator checks run requests before any document is
// materialized: the question list and the presence and shape of the
// document reference.
package validator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/errors"
)

const (
	msgInvalidJSON  = "Questions must be a valid JSON array string"
	msgNotArray     = "Questions must be an array with at least one question"
	msgNoDocument   = "Please upload a PDF or DOCX file or provide a documents URL"
	maxURLLogLength = 256
)

// ParseQuestions decodes the questions field of a JSON body. The field may
// be an array or a string holding a JSON array. An absent field is treated
// like an empty array.
func ParseQuestions(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, apperrors.InvalidQuestionsFormat(msgNotArray)
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, apperrors.InvalidQuestionsFormat(msgInvalidJSON)
		}
		return ParseQuestionsString(s)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, apperrors.InvalidQuestionsFormat(msgInvalidJSON)
	}
	return questionList(v)
}

// ParseQuestionsString decodes a form value holding a JSON array of
// questions.
func ParseQuestionsString(s string) ([]string, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, apperrors.InvalidQuestionsFormat(msgInvalidJSON)
	}
	return questionList(v)
}

func questionList(v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return nil, apperrors.InvalidQuestionsFormat(msgNotArray)
	}
	questions := make([]string, 0, len(items))
	for i, item := range items {
		q, ok := item.(string)
		if !ok {
			return nil, apperrors.InvalidQuestionFormat(i)
		}
		q = strings.TrimSpace(q)
		if q == "" {
			return nil, apperrors.InvalidQuestionFormat(i)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// Validate checks a fully assembled request: a document reference must be
// present, URL references must be absolute http(s) URLs, and at least one
// question must remain.
func Validate(req *relay.Request) error {
	if req.Reference.IsEmpty() {
		return apperrors.MissingDocument(msgNoDocument)
	}
	if !req.Reference.IsUpload() {
		if err := validateURL(req.Reference.URL); err != nil {
			return err
		}
	}
	if len(req.Questions) == 0 {
		return apperrors.InvalidQuestionsFormat(msgNotArray)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		shown := raw
		if len(shown) > maxURLLogLength {
			shown = shown[:maxURLLogLength] + "..."
		}
		return apperrors.MissingDocument(fmt.Sprintf("Document URL %q is not an absolute http or https URL", shown))
	}
	return nil
}

// CheckFile enforces the extension allow-list (case-insensitive) and the
// size limit on an uploaded document. The extension is checked first. An
// empty allow-list accepts any name and a zero MaxBytes any size.
func CheckFile(name string, size int64, limits config.UploadConfig) error {
	if len(limits.AllowedExtensions) > 0 {
		ext := strings.ToLower(filepath.Ext(name))
		allowed := false
		for _, a := range limits.AllowedExtensions {
			if strings.EqualFold(a, ext) {
				allowed = true
				break
			}
		}
		if !allowed || ext == "" {
			return apperrors.UnsupportedFileType(allowedMessage(limits.AllowedExtensions))
		}
	}
	if limits.MaxBytes > 0 && size > limits.MaxBytes {
		return apperrors.PayloadTooLarge(limits.MaxBytes)
	}
	return nil
}

// allowedMessage renders e.g. "Only PDF and DOCX files are allowed".
func allowedMessage(exts []string) string {
	names := make([]string, 0, len(exts))
	for _, e := range exts {
		names = append(names, strings.ToUpper(strings.TrimPrefix(e, ".")))
	}
	switch len(names) {
	case 1:
		return fmt.Sprintf("Only %s files are allowed", names[0])
	default:
		return fmt.Sprintf("Only %s and %s files are allowed",
			strings.Join(names[:len(names)-1], ", "), names[len(names)-1])
	}
}
