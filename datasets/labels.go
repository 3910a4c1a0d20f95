package datasets

import (
	"sort"

	"github.com/pkg/errors"
)

// LabelMap holds the two inverse label mappings. Both directions are built
// together so they never drift apart.
type LabelMap struct {
	labelToID map[string]int
	idToLabel map[int]string
}

// NewLabelMap builds a LabelMap from a label to id mapping. Ids must be
// unique.
func NewLabelMap(labelToID map[string]int) (*LabelMap, error) {
	m := &LabelMap{
		labelToID: make(map[string]int, len(labelToID)),
		idToLabel: make(map[int]string, len(labelToID)),
	}
	for label, id := range labelToID {
		if other, ok := m.idToLabel[id]; ok {
			return nil, errors.Errorf("labels %q and %q share id %d", other, label, id)
		}
		m.labelToID[label] = id
		m.idToLabel[id] = label
	}
	return m, nil
}

// LabelMapFromIDs builds a LabelMap from an id to label mapping. Labels must
// be unique.
func LabelMapFromIDs(idToLabel map[int]string) (*LabelMap, error) {
	labelToID := make(map[string]int, len(idToLabel))
	for id, label := range idToLabel {
		if other, ok := labelToID[label]; ok {
			return nil, errors.Errorf("ids %d and %d share label %q", other, id, label)
		}
		labelToID[label] = id
	}
	return NewLabelMap(labelToID)
}

// ID returns the id of label.
func (m *LabelMap) ID(label string) (int, bool) {
	id, ok := m.labelToID[label]
	return id, ok
}

// Label returns the label of id.
func (m *LabelMap) Label(id int) (string, bool) {
	l, ok := m.idToLabel[id]
	return l, ok
}

// Len returns the number of labels.
func (m *LabelMap) Len() int { return len(m.labelToID) }

// LabelToID returns a copy of the label to id mapping.
func (m *LabelMap) LabelToID() map[string]int {
	out := make(map[string]int, len(m.labelToID))
	for k, v := range m.labelToID {
		out[k] = v
	}
	return out
}

// IDToLabel returns a copy of the id to label mapping.
func (m *LabelMap) IDToLabel() map[int]string {
	out := make(map[int]string, len(m.idToLabel))
	for k, v := range m.idToLabel {
		out[k] = v
	}
	return out
}

// Labels returns the labels sorted by id.
func (m *LabelMap) Labels() []string {
	ids := make([]int, 0, len(m.idToLabel))
	for id := range m.idToLabel {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = m.idToLabel[id]
	}
	return out
}
