package entities

import (
	"sync"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// Label is one entry of an ontology's taxonomy.
type Label struct {
	Tag   string `json:"tag"`
	Color string `json:"color,omitempty"`
}

// Ontology is the label taxonomy of a dataset.
type Ontology struct {
	ID     string
	Labels []Label

	mu          sync.RWMutex
	instanceMap map[string]int
}

type ontologyJSON struct {
	ID    string  `json:"id"`
	Roots []Label `json:"roots"`
}

// NewOntology builds an ontology from its label list.
func NewOntology(id string, labels ...Label) *Ontology {
	return &Ontology{ID: id, Labels: labels}
}

// OntologyFromJSON decodes the platform ontology representation.
func OntologyFromJSON(data []byte) (*Ontology, error) {
	var oj ontologyJSON
	if err := json.Unmarshal(data, &oj); err != nil {
		return nil, errors.Wrap(err, "decoding ontology")
	}
	return NewOntology(oj.ID, oj.Roots...), nil
}

// MarshalJSON implements json.Marshaler.
func (o *Ontology) MarshalJSON() ([]byte, error) {
	return json.Marshal(ontologyJSON{ID: o.ID, Roots: o.Labels})
}

// InstanceMap returns a copy of the label to numeric id mapping. Unless
// overridden with SetInstanceMap, labels are numbered from 1 in taxonomy
// order (0 is background).
func (o *Ontology) InstanceMap() map[string]int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]int)
	if o.instanceMap != nil {
		for k, v := range o.instanceMap {
			out[k] = v
		}
		return out
	}
	for i, l := range o.Labels {
		out[l.Tag] = i + 1
	}
	return out
}

// SetInstanceMap overrides the label to id mapping.
func (o *Ontology) SetInstanceMap(m map[string]int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.instanceMap = make(map[string]int, len(m))
	for k, v := range m {
		o.instanceMap[k] = v
	}
}

// Color returns the display color of a label, or "" if unknown.
func (o *Ontology) Color(tag string) string {
	for _, l := range o.Labels {
		if l.Tag == tag {
			return l.Color
		}
	}
	return ""
}
