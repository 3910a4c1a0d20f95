// Package platformtest provides an in-memory platform API for tests and
// demos. It serves the same routes the platform package calls.
package platformtest

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"

	"github.com/Noofbiz/labelbowl/entities"
)

type dataset struct {
	ID         string
	Name       string
	OntologyID string
	itemIDs    []string
}

type item struct {
	datasetID string
	doc       map[string]any
	content   []byte
	sidecar   []byte
	renders   map[entities.ViewAnnotationOption][]byte
}

// Server is a fake platform. The zero value is not usable; call NewServer.
type Server struct {
	// Token, when set, is required as a bearer token on every request.
	Token string

	mu         sync.RWMutex
	router     chi.Router
	datasets   map[string]*dataset
	ontologies map[string]*entities.Ontology
	items      map[string]*item

	streams atomic.Int64
}

// NewServer returns an empty fake platform.
func NewServer() *Server {
	s := &Server{
		router:     chi.NewRouter(),
		datasets:   make(map[string]*dataset),
		ontologies: make(map[string]*entities.Ontology),
		items:      make(map[string]*item),
	}
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.authenticate)
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// StreamRequests returns how many item binaries were served.
func (s *Server) StreamRequests() int64 {
	return s.streams.Load()
}

func (s *Server) setupRoutes() {
	s.router.Get("/datasets", s.handleListDatasets)
	s.router.Get("/datasets/{id}", s.handleGetDataset)
	s.router.Post("/datasets/{id}/items/query", s.handleQueryItems)
	s.router.Get("/ontologies/{id}", s.handleGetOntology)

	s.router.Route("/items/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetItem)
		r.Delete("/", s.handleDeleteItem)
		r.Patch("/", s.handleUpdateItem)
		r.Get("/stream", s.handleStream)
		r.Get("/annotations", s.handleAnnotations)
		r.Get("/annotations/{option}", s.handleRender)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AddDataset creates a dataset whose ontology holds labels (numbered from 1
// in order) and returns its id.
func (s *Server) AddDataset(name string, labels ...string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ontologyLabels := make([]entities.Label, len(labels))
	for i, l := range labels {
		ontologyLabels[i] = entities.Label{Tag: l}
	}
	ontology := entities.NewOntology(uuid.NewString(), ontologyLabels...)
	s.ontologies[ontology.ID] = ontology

	d := &dataset{ID: uuid.NewString(), Name: name, OntologyID: ontology.ID}
	s.datasets[d.ID] = d
	return d.ID
}

// AddItem stores a file item with its annotations and optional annotation
// renders (e.g. the instance mask PNG) and returns its id. Dimensions and
// mimetype are read from content when it is a decodable image.
func (s *Server) AddItem(datasetID, filename string, content []byte, annotations []entities.Annotation, renders map[entities.ViewAnnotationOption][]byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.datasets[datasetID]
	if !ok {
		return "", errors.Errorf("unknown dataset %q", datasetID)
	}
	id := uuid.NewString()
	filename = path.Clean("/" + filename)

	sidecar, err := entities.MarshalAnnotations(id, filename, annotations)
	if err != nil {
		return "", err
	}

	system := map[string]any{
		"mimetype": http.DetectContentType(content),
		"size":     len(content),
	}
	if cfg, format, err := image.DecodeConfig(bytes.NewReader(content)); err == nil {
		system["mimetype"] = "image/" + format
		system["width"] = cfg.Width
		system["height"] = cfg.Height
	}
	itemURL := "/items/" + id
	doc := map[string]any{
		"id":          id,
		"filename":    filename,
		"name":        path.Base(filename),
		"url":         itemURL,
		"type":        string(entities.ItemTypeFile),
		"annotated":   len(annotations) > 0,
		"annotations": itemURL + "/annotations",
		"stream":      itemURL + "/stream",
		"thumbnail":   itemURL + "/thumbnail",
		"metadata":    map[string]any{"system": system, "user": map[string]any{}},
	}
	s.items[id] = &item{datasetID: datasetID, doc: doc, content: content, sidecar: sidecar, renders: renders}
	d.itemIDs = append(d.itemIDs, id)
	return id, nil
}

// AddDir stores a directory item and returns its id.
func (s *Server) AddDir(datasetID, filename string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.datasets[datasetID]
	if !ok {
		return "", errors.Errorf("unknown dataset %q", datasetID)
	}
	id := uuid.NewString()
	filename = path.Clean("/" + filename)
	s.items[id] = &item{datasetID: datasetID, doc: map[string]any{
		"id":       id,
		"filename": filename,
		"name":     path.Base(filename),
		"url":      "/items/" + id,
		"type":     string(entities.ItemTypeDir),
		"metadata": map[string]any{},
	}}
	d.itemIDs = append(d.itemIDs, id)
	return id, nil
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]map[string]string, 0, len(s.datasets))
	for _, d := range s.datasets {
		list = append(list, datasetJSON(d))
	}
	sort.Slice(list, func(i, j int) bool { return list[i]["name"] < list[j]["name"] })
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.datasets[chi.URLParam(r, "id")]
	if !ok {
		respondError(w, http.StatusNotFound, "dataset not found")
		return
	}
	respondJSON(w, http.StatusOK, datasetJSON(d))
}

func (s *Server) handleGetOntology(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.ontologies[chi.URLParam(r, "id")]
	if !ok {
		respondError(w, http.StatusNotFound, "ontology not found")
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (s *Server) handleQueryItems(w http.ResponseWriter, r *http.Request) {
	var filters entities.Filters
	if err := json.NewDecoder(r.Body).Decode(&filters); err != nil {
		respondError(w, http.StatusBadRequest, "invalid filters")
		return
	}
	if filters.PageSize <= 0 {
		filters.PageSize = 1000
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.datasets[chi.URLParam(r, "id")]
	if !ok {
		respondError(w, http.StatusNotFound, "dataset not found")
		return
	}
	var matched []map[string]any
	for _, id := range d.itemIDs {
		if doc := s.items[id].doc; filters.Match(doc) {
			matched = append(matched, doc)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i]["filename"].(string) < matched[j]["filename"].(string)
	})

	start := min(filters.Page*filters.PageSize, len(matched))
	end := min(start+filters.PageSize, len(matched))
	respondJSON(w, http.StatusOK, map[string]any{
		"items":           matched[start:end],
		"hasNextPage":     end < len(matched),
		"totalItemsCount": len(matched),
	})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[chi.URLParam(r, "id")]
	if !ok {
		respondError(w, http.StatusNotFound, "item not found")
		return
	}
	respondJSON(w, http.StatusOK, it.doc)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "id")
	it, ok := s.items[id]
	if !ok {
		respondError(w, http.StatusNotFound, "item not found")
		return
	}
	delete(s.items, id)
	if d, ok := s.datasets[it.datasetID]; ok {
		for i, other := range d.itemIDs {
			if other == id {
				d.itemIDs = append(d.itemIDs[:i], d.itemIDs[i+1:]...)
				break
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateItem replaces the item metadata. The system section is only
// taken from the request when ?system=true.
func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var update map[string]any
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, "invalid item")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[chi.URLParam(r, "id")]
	if !ok {
		respondError(w, http.StatusNotFound, "item not found")
		return
	}
	metadata, _ := update["metadata"].(map[string]any)
	if metadata == nil {
		metadata = map[string]any{}
	}
	old, _ := it.doc["metadata"].(map[string]any)
	if r.URL.Query().Get("system") != "true" || metadata["system"] == nil {
		if system, ok := old["system"]; ok {
			metadata["system"] = system
		}
	}
	it.doc["metadata"] = metadata
	respondJSON(w, http.StatusOK, it.doc)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	it, ok := s.items[chi.URLParam(r, "id")]
	var mimetype string
	if ok {
		metadata, _ := it.doc["metadata"].(map[string]any)
		system, _ := metadata["system"].(map[string]any)
		mimetype, _ = system["mimetype"].(string)
	}
	s.mu.RUnlock()
	if !ok || it.content == nil {
		respondError(w, http.StatusNotFound, "item not found")
		return
	}
	s.streams.Add(1)
	if mimetype != "" {
		w.Header().Set("Content-Type", mimetype)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(it.content)
}

func (s *Server) handleAnnotations(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	it, ok := s.items[chi.URLParam(r, "id")]
	s.mu.RUnlock()
	if !ok || it.sidecar == nil {
		respondError(w, http.StatusNotFound, "item not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(it.sidecar)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	it, ok := s.items[chi.URLParam(r, "id")]
	s.mu.RUnlock()
	if !ok {
		respondError(w, http.StatusNotFound, "item not found")
		return
	}
	option := entities.ViewAnnotationOption(strings.ToLower(chi.URLParam(r, "option")))
	render, ok := it.renders[option]
	if !ok {
		respondError(w, http.StatusNotFound, "no "+string(option)+" render")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(render)
}

func datasetJSON(d *dataset) map[string]string {
	return map[string]string{"id": d.ID, "name": d.Name, "ontologyId": d.OntologyID}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
