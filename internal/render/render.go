// Package render draws feedback overlays onto frames.
package render

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"gocv.io/x/gocv"

	"github.com/ayusman/squatcoach/internal/feedback"
)

var (
	infoColor    = color.RGBA{R: 40, G: 200, B: 90, A: 255}
	warningColor = color.RGBA{R: 255, G: 190, B: 0, A: 255}
	badColor     = color.RGBA{R: 230, G: 40, B: 40, A: 255}
	textColor    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	panelColor   = color.RGBA{R: 20, G: 20, B: 20, A: 255}
)

const (
	fontFace      = gocv.FontHersheySimplex
	lineThickness = 3
	markerRadius  = 6
	panelPadding  = 8
)

// SeverityColor returns the draw color for s.
func SeverityColor(s feedback.Severity) color.RGBA {
	switch s {
	case feedback.Bad:
		return badColor
	case feedback.Warning:
		return warningColor
	default:
		return infoColor
	}
}

// Draw renders fb onto img in place.
func Draw(img *gocv.Mat, fb feedback.Feedback) {
	ov := fb.Overlay

	for _, s := range ov.Segments {
		gocv.Line(img, s.From, s.To, SeverityColor(s.Severity), lineThickness)
	}
	for _, m := range ov.Markers {
		gocv.Circle(img, m.At, markerRadius, SeverityColor(m.Severity), -1)
		gocv.Circle(img, m.At, markerRadius, textColor, 1)
	}
	for _, l := range ov.Labels {
		gocv.PutText(img, l.Text, l.At, fontFace, 0.6, SeverityColor(l.Severity), 2)
	}

	drawPanel(img, image.Pt(panelPadding, panelPadding), []string{
		fmt.Sprintf("CORRECT: %d", ov.Counters.Correct),
		fmt.Sprintf("INCORRECT: %d", ov.Counters.Incorrect),
		fmt.Sprintf("PHASE: %s", strings.ToUpper(ov.Phase)),
	}, panelColor)

	drawMessages(img, fb.Messages)
}

// drawPanel writes lines top-down in a filled box anchored at origin.
func drawPanel(img *gocv.Mat, origin image.Point, lines []string, bg color.RGBA) {
	const scale, thickness = 0.6, 2

	width, height := 0, 0
	for _, line := range lines {
		size := gocv.GetTextSize(line, fontFace, scale, thickness)
		width = max(width, size.X)
		height = max(height, size.Y)
	}
	step := height + panelPadding

	box := image.Rect(origin.X, origin.Y, origin.X+width+2*panelPadding, origin.Y+step*len(lines)+panelPadding)
	gocv.Rectangle(img, box, bg, -1)

	for i, line := range lines {
		at := image.Pt(origin.X+panelPadding, origin.Y+step*(i+1))
		gocv.PutText(img, line, at, fontFace, scale, textColor, thickness)
	}
}

// drawMessages stacks cue banners at the right edge, most severe first.
func drawMessages(img *gocv.Mat, msgs []feedback.Message) {
	const scale, thickness = 0.7, 2

	y := panelPadding
	for _, m := range msgs {
		size := gocv.GetTextSize(m.Text, fontFace, scale, thickness)
		x := max(panelPadding, img.Cols()-size.X-3*panelPadding)

		box := image.Rect(x-panelPadding, y, x+size.X+panelPadding, y+size.Y+2*panelPadding)
		gocv.Rectangle(img, box, SeverityColor(m.Severity), -1)
		gocv.PutText(img, m.Text, image.Pt(x, y+size.Y+panelPadding), fontFace, scale, textColor, thickness)

		y = box.Max.Y + panelPadding/2
	}
}
