package platform

import (
	"context"
	"net/url"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"

	"github.com/Noofbiz/labelbowl/entities"
)

// Items implements entities.ItemsRepository.
type Items struct {
	client *Client
}

var _ entities.ItemsRepository = (*Items)(nil)

type itemsPage struct {
	Items       []json.RawMessage `json:"items"`
	HasNextPage bool              `json:"hasNextPage"`
}

// Get fetches one item. The item is not bound to a dataset; list it through
// its dataset to get the back-reference.
func (r *Items) Get(ctx context.Context, itemID string) (*entities.Item, error) {
	data, err := r.client.do(ctx, fasthttp.MethodGet, "/items/"+url.PathEscape(itemID), nil, nil)
	if err != nil {
		return nil, err
	}
	return entities.ItemFromJSON(data, nil, r.client.Repositories())
}

// List returns every item of the dataset matching filters, following pages
// until the platform reports no more. A nil filters lists files only. Items
// are bound to dataset.
func (r *Items) List(ctx context.Context, dataset *entities.Dataset, filters *entities.Filters) ([]*entities.Item, error) {
	if filters == nil {
		filters = entities.NewFilters()
	}
	query := *filters
	path := "/datasets/" + url.PathEscape(dataset.ID) + "/items/query"

	var items []*entities.Item
	for {
		data, err := r.client.do(ctx, fasthttp.MethodPost, path, nil, query)
		if err != nil {
			return nil, err
		}
		var page itemsPage
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, errors.Wrapf(err, "decoding items page %d", query.Page)
		}
		for _, raw := range page.Items {
			item, err := entities.ItemFromJSON(raw, dataset, r.client.Repositories())
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if !page.HasNextPage {
			return items, nil
		}
		query.Page++
	}
}

// Delete removes the item.
func (r *Items) Delete(ctx context.Context, itemID string) error {
	_, err := r.client.do(ctx, fasthttp.MethodDelete, "/items/"+url.PathEscape(itemID), nil, nil)
	return err
}

// Update pushes the item representation and returns the platform's copy.
func (r *Items) Update(ctx context.Context, item *entities.Item, systemMetadata bool) (*entities.Item, error) {
	var query url.Values
	if systemMetadata {
		query = url.Values{"system": {"true"}}
	}
	doc, err := item.ToJSON()
	if err != nil {
		return nil, err
	}
	data, err := r.client.do(ctx, fasthttp.MethodPatch, "/items/"+url.PathEscape(item.ID), query, doc)
	if err != nil {
		return nil, err
	}
	return entities.ItemFromJSON(data, item.Dataset(), r.client.Repositories())
}

// Download writes the item binary to items/<filename> under localPath, the
// annotation sidecar to json/<name>.json when ViewAnnotationJSON is requested
// and each other render to <option>/<name>.png. It returns the binary path.
func (r *Items) Download(ctx context.Context, item *entities.Item, localPath string, options []entities.ViewAnnotationOption) (string, error) {
	entry, err := r.download(ctx, item, localPath, options)
	return entry.ImagePath, err
}

func (r *Items) download(ctx context.Context, item *entities.Item, localPath string, options []entities.ViewAnnotationOption) (entities.ManifestEntry, error) {
	entry := entities.ManifestEntry{ItemID: item.ID}
	if item.Type != entities.ItemTypeFile {
		return entry, errors.Errorf("item %q is a %s, only files can be downloaded", item.ID, item.Type)
	}
	itemPath := "/items/" + url.PathEscape(item.ID)

	data, err := r.client.do(ctx, fasthttp.MethodGet, itemPath+"/stream", nil, nil)
	if err != nil {
		return entry, errors.WithMessagef(err, "downloading %s", item.Filename)
	}
	entry.ImagePath = entities.ItemPath(localPath, item.Filename)
	if err := r.write(entry.ImagePath, data); err != nil {
		return entry, err
	}

	for _, option := range options {
		switch option {
		case entities.ViewAnnotationJSON:
			sidecar, err := r.client.Annotations.Sidecar(ctx, item.ID)
			if err != nil {
				return entry, errors.WithMessagef(err, "downloading annotations of %s", item.Filename)
			}
			entry.AnnotationPath = entities.AnnotationPath(localPath, item.Filename)
			if err := r.write(entry.AnnotationPath, sidecar); err != nil {
				return entry, err
			}
		default:
			render, err := r.client.do(ctx, fasthttp.MethodGet, itemPath+"/annotations/"+string(option), nil, nil)
			if entities.IsNotFound(err) {
				// Items without annotations have no render.
				log.WithFields(logrus.Fields{"item": item.ID, "option": option}).Debug("no annotation render")
				continue
			}
			if err != nil {
				return entry, errors.WithMessagef(err, "downloading %s render of %s", option, item.Filename)
			}
			p := entities.RenderPath(localPath, item.Filename, option)
			if err := r.write(p, render); err != nil {
				return entry, err
			}
			if option == entities.ViewAnnotationInstance {
				entry.InstancePath = p
			}
		}
	}
	return entry, nil
}

// DownloadDataset lists the dataset items matching filters and downloads
// them with at most Config.DownloadWorkers concurrent items. Manifest entries
// keep the listing order.
func (r *Items) DownloadDataset(ctx context.Context, dataset *entities.Dataset, filters *entities.Filters, localPath string, options []entities.ViewAnnotationOption) (*entities.Manifest, error) {
	items, err := r.List(ctx, dataset, filters)
	if err != nil {
		return nil, errors.WithMessagef(err, "listing items of dataset %q", dataset.ID)
	}

	files := make([]*entities.Item, 0, len(items))
	var total int64
	for _, item := range items {
		if item.Type != entities.ItemTypeFile {
			continue
		}
		files = append(files, item)
		if item.Size != nil {
			total += *item.Size
		}
	}
	log.WithFields(logrus.Fields{
		"dataset": dataset.ID,
		"items":   len(files),
		"size":    humanize.Bytes(uint64(total)),
		"path":    localPath,
	}).Info("downloading dataset")

	entries := make([]entities.ManifestEntry, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.client.cfg.DownloadWorkers)
	for i, item := range files {
		g.Go(func() error {
			entry, err := r.download(gctx, item, localPath, options)
			if err != nil {
				return err
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &entities.Manifest{LocalPath: localPath, Entries: entries}, nil
}

func (r *Items) write(path string, data []byte) error {
	fs := r.client.cfg.Fs
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating directory for %s", path)
	}
	return errors.Wrapf(afero.WriteFile(fs, path, data, 0o644), "writing %s", path)
}
