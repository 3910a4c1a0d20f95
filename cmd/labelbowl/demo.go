package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"net/http/httptest"

	"github.com/google/uuid"
	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/llgcode/draw2d/draw2dkit"

	"github.com/Noofbiz/labelbowl/entities"
	"github.com/Noofbiz/labelbowl/platformtest"
)

const (
	demoItems  = 24
	demoWidth  = 96
	demoHeight = 64
)

type demoPlatform struct {
	*httptest.Server
	Token     string
	DatasetID string
}

// startDemo serves a fake platform with one dataset of generated images:
// squares and circles, each annotated with a box, a polygon and a class tag.
// Squares outnumber circles so balancing has work to do.
func startDemo() (*demoPlatform, error) {
	fake := platformtest.NewServer()
	fake.Token = uuid.NewString()
	id := fake.AddDataset("demo-shapes", "square", "circle")

	rng := rand.New(rand.NewSource(1))
	for i := range demoItems {
		label := "square"
		if i%3 == 0 {
			label = "circle"
		}
		content, annotations, err := demoImage(rng, label)
		if err != nil {
			return nil, err
		}
		if _, err := fake.AddItem(id, fmt.Sprintf("/shapes/%s_%02d.png", label, i), content, annotations, nil); err != nil {
			return nil, err
		}
	}
	return &demoPlatform{Server: httptest.NewServer(fake), Token: fake.Token, DatasetID: id}, nil
}

func demoImage(rng *rand.Rand, label string) ([]byte, []entities.Annotation, error) {
	img := image.NewRGBA(image.Rect(0, 0, demoWidth, demoHeight))
	gc := draw2dimg.NewGraphicContext(img)
	gc.SetFillColor(color.RGBA{R: 240, G: 240, B: 235, A: 255})
	draw2dkit.Rectangle(gc, 0, 0, demoWidth, demoHeight)
	gc.Fill()

	size := 12 + rng.Float64()*16
	left := rng.Float64() * (demoWidth - size)
	top := rng.Float64() * (demoHeight - size)
	right, bottom := left+size, top+size

	gc.SetFillColor(color.RGBA{R: uint8(rng.Intn(200)), G: 80, B: uint8(rng.Intn(200)), A: 255})
	if label == "circle" {
		draw2dkit.Circle(gc, left+size/2, top+size/2, size/2)
	} else {
		draw2dkit.Rectangle(gc, left, top, right, bottom)
	}
	gc.Fill()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, nil, err
	}
	corners := []entities.Point{{X: left, Y: top}, {X: right, Y: top}, {X: right, Y: bottom}, {X: left, Y: bottom}}
	return buf.Bytes(), []entities.Annotation{
		{ID: uuid.NewString(), Type: entities.AnnotationBox, Label: label, Left: left, Top: top, Right: right, Bottom: bottom},
		{ID: uuid.NewString(), Type: entities.AnnotationPolygon, Label: label, Points: corners},
		{ID: uuid.NewString(), Type: entities.AnnotationClassification, Label: label},
	}, nil
}
