package platform

import (
	"context"
	"net/url"

	"github.com/valyala/fasthttp"

	"github.com/Noofbiz/labelbowl/entities"
)

// Annotations implements entities.AnnotationsRepository.
type Annotations struct {
	client *Client
}

var _ entities.AnnotationsRepository = (*Annotations)(nil)

// Sidecar returns the raw annotation JSON of an item, in the same shape the
// download writes to json/.
func (r *Annotations) Sidecar(ctx context.Context, itemID string) ([]byte, error) {
	return r.client.do(ctx, fasthttp.MethodGet, "/items/"+url.PathEscape(itemID)+"/annotations", nil, nil)
}

// List returns the parsed annotations of an item.
func (r *Annotations) List(ctx context.Context, itemID string) ([]entities.Annotation, error) {
	data, err := r.Sidecar(ctx, itemID)
	if err != nil {
		return nil, err
	}
	_, annotations, err := entities.ParseAnnotationSidecar(data)
	return annotations, err
}
