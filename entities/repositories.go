package entities

import "context"

// ItemsRepository performs item operations against the platform.
type ItemsRepository interface {
	// Get fetches one item by id. The result has no owning dataset.
	Get(ctx context.Context, itemID string) (*Item, error)
	// List returns the items of dataset matching filters, each bound to
	// dataset.
	List(ctx context.Context, dataset *Dataset, filters *Filters) ([]*Item, error)
	Delete(ctx context.Context, itemID string) error
	Update(ctx context.Context, item *Item, systemMetadata bool) (*Item, error)
	// Download saves an item's binary (and the requested annotation renders)
	// under localPath and returns the path of the saved binary.
	Download(ctx context.Context, item *Item, localPath string, options []ViewAnnotationOption) (string, error)
	// DownloadDataset bulk-downloads every item matching filters into the
	// items/ json/ instance/ layout rooted at localPath.
	DownloadDataset(ctx context.Context, dataset *Dataset, filters *Filters, localPath string, options []ViewAnnotationOption) (*Manifest, error)
}

// AnnotationsRepository reads the annotations of an item.
type AnnotationsRepository interface {
	List(ctx context.Context, itemID string) ([]Annotation, error)
	Sidecar(ctx context.Context, itemID string) ([]byte, error)
}

// Repositories bundles the collaborators an Item delegates to.
type Repositories struct {
	Items       ItemsRepository
	Annotations AnnotationsRepository
}

// ManifestEntry describes one downloaded item.
type ManifestEntry struct {
	ItemID         string `json:"itemId"`
	ImagePath      string `json:"imagePath"`
	AnnotationPath string `json:"annotationPath,omitempty"`
	InstancePath   string `json:"instancePath,omitempty"`
}

// Manifest is the result of a bulk download.
type Manifest struct {
	LocalPath string          `json:"localPath"`
	Entries   []ManifestEntry `json:"entries"`
}
