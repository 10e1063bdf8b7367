package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay/validator"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/logger"
	pkgmw "github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/middleware"
)

// runFields are the raw inputs of a run request before validation.
type runFields struct {
	upload       *relay.Upload
	documents    string
	questions    json.RawMessage
	questionsStr *string
}

// Run accepts a document (multipart file or URL) plus questions and returns
// the answering service's answers.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	req, err := h.parseRunRequest(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if req.Reference.IsUpload() {
		log.Info("processing file",
			"file", req.Reference.Upload.Name,
			"size", len(req.Reference.Upload.Data),
			"questions", len(req.Questions),
		)
	} else {
		log.Info("processing document url",
			"url", req.Reference.URL,
			"questions", len(req.Questions),
		)
	}

	if h.pipeline == nil {
		h.acknowledge(w, req)
		return
	}

	resp, err := h.pipeline.Run(ctx, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// acknowledge answers in intake mode, when no answering service is
// configured.
func (h *Handler) acknowledge(w http.ResponseWriter, req *relay.Request) {
	info := map[string]any{"name": req.Reference.URL, "size": 0, "type": ""}
	if up := req.Reference.Upload; up != nil {
		info = map[string]any{"name": up.Name, "size": len(up.Data), "type": up.ContentType}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"message":        "Request received successfully",
		"requestId":      req.RequestID,
		"fileInfo":       info,
		"questionsCount": len(req.Questions),
		"status":         "pending_processing",
	})
}

// parseRunRequest reads either encoding of a run request and validates it.
// The document reference is checked before the questions.
func (h *Handler) parseRunRequest(w http.ResponseWriter, r *http.Request) (*relay.Request, error) {
	limitBody(w, r, h.limits)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	var fields runFields
	switch mediaType {
	case "multipart/form-data":
		fields, err = h.readRunMultipart(r)
	case "application/json":
		fields, err = readRunJSON(r)
	default:
		err = apperrors.InvalidRequest("Content-Type must be multipart/form-data or application/json")
	}
	if err != nil {
		return nil, err
	}

	req := &relay.Request{
		RequestID: requestID(r),
		Reference: relay.Reference{Upload: fields.upload, URL: strings.TrimSpace(fields.documents)},
	}
	if req.Reference.IsUpload() {
		req.Reference.URL = ""
	}
	if req.Reference.IsEmpty() {
		return nil, apperrors.MissingDocument("Please upload a PDF or DOCX file or provide a documents URL")
	}

	if fields.questionsStr != nil {
		req.Questions, err = validator.ParseQuestionsString(*fields.questionsStr)
	} else {
		req.Questions, err = validator.ParseQuestions(fields.questions)
	}
	if err != nil {
		return nil, err
	}
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	return req, nil
}

func (h *Handler) readRunMultipart(r *http.Request) (runFields, error) {
	var fields runFields
	mr, err := r.MultipartReader()
	if err != nil {
		return fields, apperrors.InvalidRequest("Malformed multipart body")
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return fields, nil
		}
		if err != nil {
			return fields, bodyError(err, h.limits.MaxBytes)
		}

		switch part.FormName() {
		case "file":
			up, err := readFilePart(part, h.limits)
			if err != nil {
				part.Close()
				return fields, err
			}
			fields.upload = up
		case "questions":
			s, err := readField(part)
			if err != nil {
				return fields, bodyError(err, h.limits.MaxBytes)
			}
			fields.questionsStr = &s
		case "documents":
			s, err := readField(part)
			if err != nil {
				return fields, bodyError(err, h.limits.MaxBytes)
			}
			fields.documents = s
		}
		part.Close()
	}
}

// readFilePart checks the file's extension before reading it, then reads at
// most one byte over the size limit.
func readFilePart(part *multipart.Part, limits config.UploadConfig) (*relay.Upload, error) {
	name := part.FileName()
	if name == "" {
		return nil, apperrors.MissingDocument("Please upload a PDF or DOCX file")
	}
	if err := validator.CheckFile(name, 0, limits); err != nil {
		return nil, err
	}
	var src io.Reader = part
	if limits.MaxBytes > 0 {
		src = io.LimitReader(part, limits.MaxBytes+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, bodyError(err, limits.MaxBytes)
	}
	if err := validator.CheckFile(name, int64(len(data)), limits); err != nil {
		return nil, err
	}
	return &relay.Upload{Name: name, ContentType: part.Header.Get("Content-Type"), Data: data}, nil
}

func readRunJSON(r *http.Request) (runFields, error) {
	var body struct {
		Documents string          `json:"documents"`
		Questions json.RawMessage `json:"questions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return runFields{}, apperrors.PayloadTooLarge(tooLarge.Limit)
		}
		return runFields{}, apperrors.InvalidRequest("Request body must be a JSON object with documents and questions")
	}
	return runFields{documents: body.Documents, questions: body.Questions}, nil
}

func readField(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxFieldBytes))
	return string(b), err
}

// bodyError maps a failure while reading the request body.
func bodyError(err error, limit int64) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.PayloadTooLarge(limit)
	}
	return apperrors.InvalidRequest("Malformed multipart body")
}

func requestID(r *http.Request) string {
	if id := logger.RequestID(r.Context()); id != "" {
		return id
	}
	return pkgmw.NewRequestID()
}
