package pipeline

import (
	"context"

	"github.com/couchcryptid/fishtank-etl/internal/domain"
)

// TagTransformer implements Transformer using domain.ParseTagPosition.
type TagTransformer struct{}

// NewTransformer creates a TagTransformer.
func NewTransformer() *TagTransformer {
	return &TagTransformer{}
}

func (t *TagTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.TagPosition, error) {
	return domain.ParseTagPosition(raw)
}
