package platform

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/Noofbiz/labelbowl/entities"
)

// Datasets resolves dataset entities.
type Datasets struct {
	client *Client
}

type datasetJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	OntologyID string `json:"ontologyId"`
}

// Get fetches a dataset and its ontology and binds it to the items
// repository of the client.
func (r *Datasets) Get(ctx context.Context, datasetID string) (*entities.Dataset, error) {
	var dj datasetJSON
	if err := r.client.getJSON(ctx, "/datasets/"+url.PathEscape(datasetID), nil, &dj); err != nil {
		return nil, err
	}

	var ontology *entities.Ontology
	if dj.OntologyID != "" {
		data, err := r.client.do(ctx, fasthttp.MethodGet, "/ontologies/"+url.PathEscape(dj.OntologyID), nil, nil)
		if err != nil {
			return nil, errors.WithMessagef(err, "fetching ontology of dataset %q", dj.Name)
		}
		if ontology, err = entities.OntologyFromJSON(data); err != nil {
			return nil, err
		}
	}
	return entities.NewDataset(dj.ID, dj.Name, ontology, r.client.Items), nil
}

// List returns the ids and names of every dataset.
func (r *Datasets) List(ctx context.Context) (map[string]string, error) {
	var list []datasetJSON
	if err := r.client.getJSON(ctx, "/datasets", nil, &list); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(list))
	for _, d := range list {
		out[d.ID] = d.Name
	}
	return out, nil
}
