package materializer

import (
	"bytes"
	"context"
	"mime"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay/validator"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/errors"
)

// Upload serves documents sent in the request body. It never touches disk.
type Upload struct {
	limits config.UploadConfig
}

func NewUpload(limits config.UploadConfig) *Upload {
	return &Upload{limits: limits}
}

func (u *Upload) Strategy() relay.Strategy {
	return relay.StrategyUpload
}

func (u *Upload) Materialize(_ context.Context, ref relay.Reference) (*Document, error) {
	if ref.Upload == nil {
		return nil, apperrors.MissingDocument("Please upload a PDF or DOCX file")
	}
	up := ref.Upload
	if err := validator.CheckFile(up.Name, int64(len(up.Data)), u.limits); err != nil {
		return nil, err
	}
	return &Document{
		Body:        bytes.NewReader(up.Data),
		ContentType: contentType(up.ContentType, up.Name),
		SizeBytes:   int64(len(up.Data)),
		OriginName:  filepath.Base(up.Name),
	}, nil
}

// contentType keeps a declared type and falls back to the extension.
func contentType(declared, name string) string {
	if declared != "" {
		return declared
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
