package entities

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// ItemType discriminates the two item shapes.
type ItemType string

const (
	ItemTypeDir  ItemType = "dir"
	ItemTypeFile ItemType = "file"
)

// Item is a platform file or directory.
//
// File items carry size, mimetype, dimensions and an annotation link; the
// fields are left at their zero value (or nil) for directories. The owning
// dataset and the repositories operations delegate to are fixed at
// construction.
type Item struct {
	ID              string
	Filename        string
	Name            string
	URL             string
	Type            ItemType
	Metadata        map[string]any
	System          map[string]any
	Annotated       *bool
	AnnotationsLink string
	Stream          string
	Thumbnail       string
	Mimetype        string
	Size            *int64
	Width           *int
	Height          *int

	dataset *Dataset
	repos   Repositories
}

// NewItem builds an item from its decoded JSON representation.
func NewItem(doc map[string]any, dataset *Dataset, repos Repositories) (*Item, error) {
	typ, _ := doc["type"].(string)
	item := &Item{
		ID:       stringField(doc, "id"),
		Filename: stringField(doc, "filename"),
		Name:     stringField(doc, "name"),
		URL:      stringField(doc, "url"),
		Type:     ItemType(typ),
		dataset:  dataset,
		repos:    repos,
	}
	if md, ok := doc["metadata"].(map[string]any); ok {
		item.Metadata = md
	}
	switch item.Type {
	case ItemTypeDir:
		return item, nil
	case ItemTypeFile:
		if v, ok := doc["annotated"].(bool); ok {
			item.Annotated = &v
		}
		item.AnnotationsLink = stringField(doc, "annotations")
		item.Stream = stringField(doc, "stream")
		item.Thumbnail = stringField(doc, "thumbnail")
		system, ok := item.Metadata["system"].(map[string]any)
		if !ok {
			return nil, errors.Errorf("file item %q has no metadata.system", item.ID)
		}
		item.System = system
		mimetype, ok := system["mimetype"].(string)
		if !ok {
			return nil, errors.Errorf("file item %q has no metadata.system.mimetype", item.ID)
		}
		item.Mimetype = mimetype
		size, ok := number(system["size"])
		if !ok {
			return nil, errors.Errorf("file item %q has no metadata.system.size", item.ID)
		}
		s := int64(size)
		item.Size = &s
		if h, ok := number(system["height"]); ok {
			v := int(h)
			item.Height = &v
		}
		if w, ok := number(system["width"]); ok {
			v := int(w)
			item.Width = &v
		}
		return item, nil
	}
	return nil, NewPlatformError("404", "Unknown item type: %s", typ)
}

// ItemFromJSON decodes a platform item record.
func ItemFromJSON(data []byte, dataset *Dataset, repos Repositories) (*Item, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decoding item")
	}
	return NewItem(doc, dataset, repos)
}

// ToJSON returns the platform representation of the item.
func (i *Item) ToJSON() (map[string]any, error) {
	doc := map[string]any{
		"id":       i.ID,
		"filename": i.Filename,
		"type":     string(i.Type),
		"metadata": i.Metadata,
		"name":     i.Name,
		"url":      i.URL,
	}
	switch i.Type {
	case ItemTypeDir:
		return doc, nil
	case ItemTypeFile:
		if i.Annotated != nil {
			doc["annotated"] = *i.Annotated
		} else {
			doc["annotated"] = nil
		}
		doc["thumbnail"] = i.Thumbnail
		doc["stream"] = i.Stream
		doc["annotations"] = i.AnnotationsLink
		return doc, nil
	}
	return nil, NewPlatformError("404", "Unknown item type: %s", i.Type)
}

// MarshalJSON implements json.Marshaler.
func (i *Item) MarshalJSON() ([]byte, error) {
	doc, err := i.ToJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// Dataset returns the dataset owning the item (may be nil).
func (i *Item) Dataset() *Dataset { return i.dataset }

// Annotations returns the annotation repository bound at construction.
func (i *Item) Annotations() AnnotationsRepository { return i.repos.Annotations }

// ListAnnotations fetches the item's annotations.
func (i *Item) ListAnnotations(ctx context.Context) ([]Annotation, error) {
	if i.repos.Annotations == nil {
		return nil, errors.Errorf("item %q has no annotations repository", i.ID)
	}
	return i.repos.Annotations.List(ctx, i.ID)
}

// SetMetadata replaces the item metadata locally. Call Update to push it.
func (i *Item) SetMetadata(metadata map[string]any) {
	i.Metadata = metadata
}

// Download saves the item binary and the requested annotation renders
// under localPath.
func (i *Item) Download(ctx context.Context, localPath string, options []ViewAnnotationOption) (string, error) {
	if err := i.requireItems(); err != nil {
		return "", err
	}
	return i.repos.Items.Download(ctx, i, localPath, options)
}

// Delete removes the item from the platform.
func (i *Item) Delete(ctx context.Context) error {
	if err := i.requireItems(); err != nil {
		return err
	}
	return i.repos.Items.Delete(ctx, i.ID)
}

// Update pushes the item's metadata. With systemMetadata set, the system
// section is updated as well.
func (i *Item) Update(ctx context.Context, systemMetadata bool) (*Item, error) {
	if err := i.requireItems(); err != nil {
		return nil, err
	}
	return i.repos.Items.Update(ctx, i, systemMetadata)
}

func (i *Item) requireItems() error {
	if i.repos.Items == nil {
		return errors.Errorf("item %q has no items repository", i.ID)
	}
	return nil
}

func stringField(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
