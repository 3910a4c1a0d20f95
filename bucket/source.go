// Package bucket serves a dataset export that already sits in an
// S3-compatible bucket.
//
// The bucket prefix holds the same layout a platform download produces:
//
//	<prefix>/items/<path>.<ext>
//	<prefix>/json/<path>.json
//	<prefix>/instance/<path>.png
//	<prefix>/ontology.json        (optional)
//
// Source mirrors the requested parts of it onto a local filesystem, which
// makes it usable wherever a platform dataset is.
package bucket

import (
	"context"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/Noofbiz/labelbowl/entities"
)

var log = logrus.WithField("pkg", "bucket")

const ontologyKey = "ontology.json"

// Source is a dataset stored under a bucket prefix.
type Source struct {
	client  *minio.Client
	bucket  string
	prefix  string
	name    string
	fs      afero.Fs
	workers int

	mu     sync.RWMutex
	labels map[string]int
}

// Option configures a Source.
type Option func(*Source)

// WithFs sets the filesystem downloads are written to (default: OS).
func WithFs(fs afero.Fs) Option {
	return func(s *Source) { s.fs = fs }
}

// WithWorkers bounds concurrent object downloads (default 16).
func WithWorkers(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithName sets the dataset name (default: last element of the prefix, or
// the bucket name for an empty prefix).
func WithName(name string) Option {
	return func(s *Source) { s.name = name }
}

// NewSource returns a Source for bucketName/prefix. When labels is nil the
// label map is read from <prefix>/ontology.json.
func NewSource(ctx context.Context, client *minio.Client, bucketName, prefix string, labels map[string]int, opts ...Option) (*Source, error) {
	s := &Source{
		client:  client,
		bucket:  bucketName,
		prefix:  strings.Trim(prefix, "/"),
		fs:      afero.NewOsFs(),
		workers: 16,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.name == "" {
		s.name = s.bucket
		if s.prefix != "" {
			s.name = path.Base(s.prefix)
		}
	}
	if labels == nil {
		ontology, err := s.readOntology(ctx)
		if err != nil {
			return nil, err
		}
		labels = ontology.InstanceMap()
	}
	s.SetInstanceMap(labels)
	return s, nil
}

func (s *Source) readOntology(ctx context.Context) (*entities.Ontology, error) {
	key := objectKey(s.prefix, ontologyKey)
	data, err := s.get(ctx, key)
	if err != nil {
		return nil, errors.WithMessagef(err, "reading s3://%s/%s", s.bucket, key)
	}
	return entities.OntologyFromJSON(data)
}

// DatasetName returns the dataset name.
func (s *Source) DatasetName() string { return s.name }

// DatasetID returns "<bucket>/<prefix>".
func (s *Source) DatasetID() string { return s.bucket + "/" + s.prefix }

// InstanceMap returns a copy of the label to id map.
func (s *Source) InstanceMap() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.labels))
	for k, v := range s.labels {
		out[k] = v
	}
	return out
}

// SetInstanceMap replaces the label to id map.
func (s *Source) SetInstanceMap(m map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels = make(map[string]int, len(m))
	for k, v := range m {
		s.labels[k] = v
	}
}

// Download mirrors every item under the prefix that matches filters, plus the
// sidecars and renders selected by options, into localPath. Filters are
// evaluated against {"type": "file", "filename": ..., "name": ...}.
func (s *Source) Download(ctx context.Context, filters *entities.Filters, localPath string, options []entities.ViewAnnotationOption) (*entities.Manifest, error) {
	itemsPrefix := objectKey(s.prefix, entities.ItemsDirName) + "/"
	var filenames []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: itemsPrefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrapf(obj.Err, "listing s3://%s/%s", s.bucket, itemsPrefix)
		}
		filename := "/" + strings.TrimPrefix(obj.Key, itemsPrefix)
		doc := map[string]any{"type": string(entities.ItemTypeFile), "filename": filename, "name": path.Base(filename)}
		if strings.HasSuffix(obj.Key, "/") || !filters.Match(doc) {
			continue
		}
		filenames = append(filenames, filename)
	}
	sort.Strings(filenames)
	log.WithFields(logrus.Fields{"bucket": s.bucket, "prefix": s.prefix, "items": len(filenames)}).Info("mirroring dataset")

	entries := make([]entities.ManifestEntry, len(filenames))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, filename := range filenames {
		g.Go(func() error {
			entry, err := s.downloadItem(gctx, filename, localPath, options)
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

func (s *Source) downloadItem(ctx context.Context, filename, localPath string, options []entities.ViewAnnotationOption) (entities.ManifestEntry, error) {
	entry := entities.ManifestEntry{ItemID: filename, ImagePath: entities.ItemPath(localPath, filename)}
	if err := s.mirror(ctx, itemKey(s.prefix, filename), entry.ImagePath); err != nil {
		return entry, err
	}
	for _, option := range options {
		switch option {
		case entities.ViewAnnotationJSON:
			p := entities.AnnotationPath(localPath, filename)
			err := s.mirror(ctx, sidecarKey(s.prefix, filename), p)
			if isNotFound(err) {
				continue
			}
			if err != nil {
				return entry, err
			}
			entry.AnnotationPath = p
			if data, err := afero.ReadFile(s.fs, p); err == nil {
				if id, _, err := entities.ParseAnnotationSidecar(data); err == nil && id != "" {
					entry.ItemID = id
				}
			}
		default:
			p := entities.RenderPath(localPath, filename, option)
			err := s.mirror(ctx, renderKey(s.prefix, filename, option), p)
			if isNotFound(err) {
				continue
			}
			if err != nil {
				return entry, err
			}
			if option == entities.ViewAnnotationInstance {
				entry.InstancePath = p
			}
		}
	}
	return entry, nil
}

// mirror copies one object to dst on the local filesystem.
func (s *Source) mirror(ctx context.Context, key, dst string) error {
	data, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, "creating directory for %s", dst)
	}
	return errors.Wrapf(afero.WriteFile(s.fs, dst, data, 0o644), "writing %s", dst)
}

func (s *Source) get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	// GetObject is lazy; missing keys surface on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	code := minio.ToErrorResponse(errors.Cause(err)).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func objectKey(prefix string, parts ...string) string {
	return path.Join(append([]string{prefix}, parts...)...)
}

func itemKey(prefix, filename string) string {
	return objectKey(prefix, entities.ItemsDirName, strings.TrimPrefix(filename, "/"))
}

func sidecarKey(prefix, filename string) string {
	return objectKey(prefix, entities.JSONDirName, swapExt(strings.TrimPrefix(filename, "/"), ".json"))
}

func renderKey(prefix, filename string, option entities.ViewAnnotationOption) string {
	return objectKey(prefix, string(option), swapExt(strings.TrimPrefix(filename, "/"), ".png"))
}

func swapExt(p, ext string) string {
	return strings.TrimSuffix(p, path.Ext(p)) + ext
}
