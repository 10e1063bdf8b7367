package materializer

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay"
	apperrors "github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/errors"
)

// Passthrough hands the URL to the answering service untouched.
type Passthrough struct{}

func NewPassthrough() *Passthrough {
	return &Passthrough{}
}

func (p *Passthrough) Strategy() relay.Strategy {
	return relay.StrategyPassthrough
}

func (p *Passthrough) Materialize(_ context.Context, ref relay.Reference) (*Document, error) {
	if ref.URL == "" {
		return nil, apperrors.MissingDocument("Please provide a documents URL")
	}
	return &Document{
		Reference:  ref.URL,
		OriginName: ref.URL,
	}, nil
}
