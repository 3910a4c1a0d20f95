package entities

import (
	"context"

	"github.com/pkg/errors"
)

// Dataset is a platform dataset: a collection of items sharing an ontology.
type Dataset struct {
	ID   string
	Name string

	ontology *Ontology
	items    ItemsRepository
}

// NewDataset builds a dataset bound to its ontology and items repository.
func NewDataset(id, name string, ontology *Ontology, items ItemsRepository) *Dataset {
	if ontology == nil {
		ontology = NewOntology("")
	}
	return &Dataset{ID: id, Name: name, ontology: ontology, items: items}
}

// Ontology returns the dataset label taxonomy.
func (d *Dataset) Ontology() *Ontology { return d.ontology }

// Items returns the items repository of the dataset.
func (d *Dataset) Items() ItemsRepository { return d.items }

// InstanceMap returns the label to numeric id mapping of the ontology.
func (d *Dataset) InstanceMap() map[string]int { return d.ontology.InstanceMap() }

// SetInstanceMap overrides the ontology label mapping.
func (d *Dataset) SetInstanceMap(m map[string]int) { d.ontology.SetInstanceMap(m) }

// DatasetName implements the generator source contract.
func (d *Dataset) DatasetName() string { return d.Name }

// DatasetID implements the generator source contract.
func (d *Dataset) DatasetID() string { return d.ID }

// Download bulk-downloads the dataset items matching filters into localPath.
func (d *Dataset) Download(ctx context.Context, filters *Filters, localPath string, options []ViewAnnotationOption) (*Manifest, error) {
	if d.items == nil {
		return nil, errors.Errorf("dataset %q has no items repository", d.ID)
	}
	return d.items.DownloadDataset(ctx, d, filters, localPath, options)
}

// ListItems returns the dataset items matching filters.
func (d *Dataset) ListItems(ctx context.Context, filters *Filters) ([]*Item, error) {
	if d.items == nil {
		return nil, errors.Errorf("dataset %q has no items repository", d.ID)
	}
	return d.items.List(ctx, d, filters)
}
