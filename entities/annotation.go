package entities

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/png"
	"math"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// AnnotationType is the geometric type tag of an annotation.
type AnnotationType string

const (
	AnnotationNone           AnnotationType = ""
	AnnotationClassification AnnotationType = "class"
	AnnotationBox            AnnotationType = "box"
	AnnotationSegmentation   AnnotationType = "binary"
	AnnotationPolygon        AnnotationType = "segment"
	AnnotationPoint          AnnotationType = "point"
	AnnotationPolyline       AnnotationType = "polyline"
	AnnotationEllipse        AnnotationType = "ellipse"
)

// ParseAnnotationType validates a type tag.
func ParseAnnotationType(s string) (AnnotationType, error) {
	switch t := AnnotationType(s); t {
	case AnnotationNone, AnnotationClassification, AnnotationBox, AnnotationSegmentation, AnnotationPolygon,
		AnnotationPoint, AnnotationPolyline, AnnotationEllipse:
		return t, nil
	}
	return AnnotationNone, errors.Wrapf(ErrUnsupportedType, "%q", s)
}

func (t AnnotationType) String() string {
	if t == AnnotationNone {
		return "none"
	}
	return string(t)
}

// ViewAnnotationOption selects which annotation renders a download produces.
type ViewAnnotationOption string

const (
	ViewAnnotationJSON     ViewAnnotationOption = "json"
	ViewAnnotationInstance ViewAnnotationOption = "instance"
	ViewAnnotationMask     ViewAnnotationOption = "mask"
	ViewAnnotationImgMask  ViewAnnotationOption = "img_mask"
)

// Point is a 2D coordinate in image pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Annotation is a single labeled region (or tag) attached to an item.
//
// Left, Top, Right and Bottom are the bounding box of the geometry. For
// classifications they are all zero.
type Annotation struct {
	ID       string
	Type     AnnotationType
	Label    string
	Left     float64
	Top      float64
	Right    float64
	Bottom   float64
	Points   []Point
	Metadata map[string]any
}

// IsModelGenerated reports whether the annotation was produced by a model
// rather than a human, signalled by a metadata.user.model entry.
func (a Annotation) IsModelGenerated() bool {
	user, ok := a.Metadata["user"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = user["model"]
	return ok
}

// Box returns the bounding box as left, top, right, bottom.
func (a Annotation) Box() [4]float64 {
	return [4]float64{a.Left, a.Top, a.Right, a.Bottom}
}

type sidecarJSON struct {
	ID          string           `json:"id"`
	LegacyID    string           `json:"_id"`
	Filename    string           `json:"filename"`
	Annotations []annotationJSON `json:"annotations"`
}

type annotationJSON struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Label       string          `json:"label"`
	Coordinates json.RawMessage `json:"coordinates"`
	Metadata    map[string]any  `json:"metadata"`
}

// ParseAnnotationSidecar parses the per-item annotation JSON written next to
// downloaded items. It returns the item id (from "id" or "_id") and the typed
// annotations. Types without a geometry decoder (points, ellipses, ...) are
// kept with whatever points could be read and zero bounds.
func ParseAnnotationSidecar(data []byte) (string, []Annotation, error) {
	var sc sidecarJSON
	if err := json.Unmarshal(data, &sc); err != nil {
		return "", nil, errors.Wrap(err, "decoding annotation sidecar")
	}
	itemID := sc.ID
	if itemID == "" {
		itemID = sc.LegacyID
	}
	annotations := make([]Annotation, 0, len(sc.Annotations))
	for i, raw := range sc.Annotations {
		a, err := raw.toAnnotation()
		if err != nil {
			return itemID, nil, errors.WithMessagef(err, "annotation %d of item %q", i, itemID)
		}
		annotations = append(annotations, a)
	}
	return itemID, annotations, nil
}

func (raw annotationJSON) toAnnotation() (Annotation, error) {
	a := Annotation{
		ID:       raw.ID,
		Type:     AnnotationType(raw.Type),
		Label:    raw.Label,
		Metadata: raw.Metadata,
	}
	switch a.Type {
	case AnnotationClassification:
		return a, nil
	case AnnotationBox:
		points, err := decodePoints(raw.Coordinates)
		if err != nil {
			return a, err
		}
		if len(points) < 2 {
			return a, errors.Errorf("box needs 2 points, got %d", len(points))
		}
		a.Points = points[:2]
		a.Left, a.Top, a.Right, a.Bottom = bounds(a.Points)
		return a, nil
	case AnnotationPolygon:
		points, err := decodePoints(raw.Coordinates)
		if err != nil {
			return a, err
		}
		a.Points = points
		a.Left, a.Top, a.Right, a.Bottom = bounds(points)
		return a, nil
	case AnnotationSegmentation:
		var dataURL string
		if err := json.Unmarshal(raw.Coordinates, &dataURL); err != nil {
			return a, errors.Wrap(err, "binary coordinates must be a PNG data URL")
		}
		l, t, r, b, err := maskBounds(dataURL)
		if err != nil {
			return a, err
		}
		a.Left, a.Top, a.Right, a.Bottom = l, t, r, b
		return a, nil
	}
	if len(raw.Coordinates) > 0 {
		a.Points, _ = decodePoints(raw.Coordinates)
	}
	return a, nil
}

// decodePoints accepts both a flat point list and the nested
// list-of-contours form used by polygons, flattening the latter.
func decodePoints(raw json.RawMessage) ([]Point, error) {
	var flat []Point
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat, nil
	}
	var nested [][]Point
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, errors.Wrap(err, "decoding coordinates")
	}
	var points []Point
	for _, contour := range nested {
		points = append(points, contour...)
	}
	return points, nil
}

func bounds(points []Point) (left, top, right, bottom float64) {
	if len(points) == 0 {
		return 0, 0, 0, 0
	}
	left, top = math.Inf(1), math.Inf(1)
	right, bottom = math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		left = math.Min(left, p.X)
		top = math.Min(top, p.Y)
		right = math.Max(right, p.X)
		bottom = math.Max(bottom, p.Y)
	}
	return left, top, right, bottom
}

// maskBounds decodes a base64 PNG (optionally a data URL) and returns the
// bounding box of its non-black pixels.
func maskBounds(dataURL string) (left, top, right, bottom float64, err error) {
	if i := strings.Index(dataURL, ","); strings.HasPrefix(dataURL, "data:") && i >= 0 {
		dataURL = dataURL[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(dataURL)
	if err != nil {
		return 0, 0, 0, 0, errors.Wrap(err, "decoding binary mask")
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return 0, 0, 0, 0, errors.Wrap(err, "decoding binary mask image")
	}
	b := img.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, -1, -1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r|g|bl == 0 {
				continue
			}
			minX, minY = min(minX, x), min(minY, y)
			maxX, maxY = max(maxX, x), max(maxY, y)
		}
	}
	if maxX < 0 {
		return 0, 0, 0, 0, nil
	}
	return float64(minX), float64(minY), float64(maxX), float64(maxY), nil
}

// MarshalAnnotations renders annotations back into the sidecar JSON shape.
func MarshalAnnotations(itemID, filename string, annotations []Annotation) ([]byte, error) {
	out := map[string]any{
		"id":       itemID,
		"filename": filename,
	}
	list := make([]map[string]any, 0, len(annotations))
	for _, a := range annotations {
		entry := map[string]any{
			"id":    a.ID,
			"type":  string(a.Type),
			"label": a.Label,
		}
		if a.Metadata != nil {
			entry["metadata"] = a.Metadata
		}
		switch a.Type {
		case AnnotationBox:
			entry["coordinates"] = []Point{{X: a.Left, Y: a.Top}, {X: a.Right, Y: a.Bottom}}
		case AnnotationPolygon:
			entry["coordinates"] = [][]Point{a.Points}
		case AnnotationClassification:
			entry["coordinates"] = []Point{}
		default:
			return nil, errors.Wrapf(ErrUnsupportedType, "cannot marshal %q", a.Type)
		}
		list = append(list, entry)
	}
	out["annotations"] = list
	return json.Marshal(out)
}
