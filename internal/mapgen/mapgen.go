// Package mapgen renders a player's path through a scene graph as a
// printable PDF: one stop per visited scene, joined in visit order.
package mapgen

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf/v2"

	"novel/internal/game"
)

const (
	pageW     = 595
	pageH     = 842
	margin    = 40
	sceneSize = 56.0
	pathStep  = 90.0
	perRow    = 5
	fontSize  = 8
	titleSize = 16
	labelSize = 7
)

var ErrEmptyGraph = errors.New("mapgen: empty scene graph")

type stopKind int

const (
	kindPlain stopKind = iota
	kindCharacter
	kindAutonext
	kindEnding
)

type stop struct {
	id         string
	kind       stopKind
	background string
	statChoice bool
	paidChoice bool
	missing    bool
}

func classify(g game.Graph, id string) stop {
	st := stop{id: id}
	sc, ok := g.Scene(id)
	if !ok {
		st.missing = true
		return st
	}
	st.background = sc.Background
	switch {
	case sc.Character != nil:
		st.kind = kindCharacter
	case len(sc.Choices) == 0 && sc.Autonext != "":
		st.kind = kindAutonext
	case len(sc.Choices) == 0:
		st.kind = kindEnding
	}
	for _, ch := range sc.Choices {
		if ch.Stat != "" {
			st.statChoice = true
		}
		if ch.CostValue() > 0 {
			st.paidChoice = true
		}
	}
	return st
}

// Generate returns PDF bytes for the journey through visited. If visited is
// empty, currentID is the only stop. When assetsDir holds
// backgrounds/<background> (optionally with .png or .jpg appended), that
// image is used as the stop's thumbnail.
func Generate(g game.Graph, visited []string, currentID, title, assetsDir string) ([]byte, error) {
	if len(g) == 0 {
		return nil, ErrEmptyGraph
	}
	path := visited
	if len(path) == 0 {
		path = []string{currentID}
	}
	stops := make([]stop, 0, len(path))
	for _, id := range path {
		stops = append(stops, classify(g, id))
	}

	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, 0)

	x0 := float64(margin) + sceneSize
	y0 := float64(margin) + 100
	rowsPerPage := int((pageH - y0 - margin - sceneSize) / pathStep)
	perPage := rowsPerPage * perRow

	for pageStart := 0; pageStart < len(stops); pageStart += perPage {
		end := min(pageStart+perPage, len(stops))
		page := stops[pageStart:end]
		startPage(pdf, title, pageStart == 0, len(g), len(stops))

		// Serpentine layout so the path zig-zags down the page.
		positions := make([][2]float64, len(page))
		for i := range page {
			row := i / perRow
			col := i % perRow
			if row%2 == 1 {
				col = perRow - 1 - col
			}
			positions[i][0] = x0 + float64(col)*pathStep
			positions[i][1] = y0 + float64(row)*pathStep
		}

		pdf.SetDrawColor(150, 40, 90)
		pdf.SetLineWidth(2)
		pdf.SetDashPattern([]float64{10, 6}, 0)
		for i := 0; i < len(positions)-1; i++ {
			pdf.Line(positions[i][0], positions[i][1], positions[i+1][0], positions[i+1][1])
		}
		pdf.SetDashPattern([]float64{}, 0)
		pdf.SetLineWidth(1)

		for i, st := range page {
			x, y := positions[i][0], positions[i][1]
			isCurrent := st.id == currentID
			drawStop(pdf, x, y, st, isCurrent, thumbnail(assetsDir, st.background))
			drawLabel(pdf, x, y, st.id, isCurrent)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func startPage(pdf *gofpdf.Fpdf, title string, first bool, scenes, visited int) {
	pdf.AddPage()
	pdf.SetFillColor(250, 246, 238)
	pdf.Rect(0, 0, pageW, pageH, "F")
	drawFrame(pdf)

	pdf.SetTextColor(60, 40, 60)
	pdf.SetFont("Helvetica", "B", titleSize)
	pdf.SetXY(margin+10, margin+10)
	pdf.CellFormat(pageW-2*margin-20, 18, "Your Story So Far", "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", fontSize)
	if title != "" {
		pdf.SetXY(margin+10, margin+30)
		pdf.CellFormat(pageW-2*margin-20, 10, title, "", 0, "L", false, 0, "")
	}
	if first {
		pdf.SetXY(margin+10, margin+42)
		pdf.CellFormat(pageW-2*margin-20, 10,
			pluralize(visited, "scene")+" visited of "+pluralize(scenes, "scene"), "", 0, "L", false, 0, "")
		drawLegend(pdf, pageW-margin-150, margin+14)
	}
}

func pluralize(n int, word string) string {
	s := strconv.Itoa(n) + " " + word
	if n != 1 {
		s += "s"
	}
	return s
}

// drawFrame draws a thin double border around the page.
func drawFrame(pdf *gofpdf.Fpdf) {
	pdf.SetDrawColor(60, 40, 60)
	pdf.SetLineWidth(2)
	pdf.Rect(margin, margin, pageW-2*margin, pageH-2*margin, "D")
	pdf.SetLineWidth(0.5)
	pdf.Rect(margin+4, margin+4, pageW-2*margin-8, pageH-2*margin-8, "D")
	pdf.SetLineWidth(1)
}

func drawLegend(pdf *gofpdf.Fpdf, x, y float64) {
	pdf.SetFont("Helvetica", "", labelSize)
	pdf.SetTextColor(60, 40, 60)
	rows := []struct {
		label string
		draw  func(x, y float64)
	}{
		{"character on stage", func(x, y float64) { drawCharacter(pdf, x, y, 6) }},
		{"continues by itself", func(x, y float64) { drawArrow(pdf, x, y, 6) }},
		{"ending", func(x, y float64) { drawEnding(pdf, x, y, 6) }},
		{"choice shapes a stat", func(x, y float64) { drawStatMark(pdf, x, y) }},
		{"choice has a cost", func(x, y float64) { drawCoin(pdf, x, y) }},
	}
	for i, r := range rows {
		cy := y + float64(i)*11
		pdf.SetDrawColor(0, 0, 0)
		r.draw(x, cy)
		pdf.SetXY(x+10, cy-4)
		pdf.CellFormat(130, 8, r.label, "", 0, "L", false, 0, "")
	}
	pdf.SetFont("Helvetica", "", fontSize)
}

func drawLabel(pdf *gofpdf.Fpdf, x, y float64, id string, isCurrent bool) {
	label := strings.ToUpper(strings.ReplaceAll(id, "_", " "))
	if len(label) > 18 {
		label = label[:15] + "..."
	}
	pdf.SetFont("Helvetica", "B", labelSize)
	pdf.SetTextColor(40, 25, 40)
	pdf.SetXY(x-sceneSize/2-8, y+sceneSize/2+4)
	pdf.CellFormat(sceneSize+16, 10, label, "", 0, "C", false, 0, "")
	if isCurrent {
		pdf.SetFont("Helvetica", "I", 7)
		pdf.SetXY(x-sceneSize/2, y+sceneSize/2+14)
		pdf.CellFormat(sceneSize, 8, "You are here", "", 0, "C", false, 0, "")
	}
	pdf.SetFont("Helvetica", "", fontSize)
}

// thumbnail returns the background image for a stop, or "" if none exists.
func thumbnail(assetsDir, background string) string {
	if assetsDir == "" || background == "" {
		return ""
	}
	name := filepath.Base(filepath.Clean(background))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	base := filepath.Join(assetsDir, "backgrounds", name)
	for _, p := range []string{base, base + ".png", base + ".jpg", base + ".jpeg"} {
		if !hasImageExt(p) {
			continue
		}
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}

func hasImageExt(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

func drawStop(pdf *gofpdf.Fpdf, x, y float64, st stop, isCurrent bool, image string) {
	r := sceneSize / 2.0
	if isCurrent {
		pdf.SetDrawColor(150, 40, 90)
		pdf.SetLineWidth(2)
		pdf.Circle(x, y, r+4.0, "D")
		pdf.SetLineWidth(1)
	}
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(1.2)
	pdf.SetFillColor(255, 255, 255)
	pdf.Circle(x, y, r, "FD")

	if image != "" {
		side := r * 1.2
		pdf.ImageOptions(image, x-side/2, y-side/2, side, side, false, gofpdf.ImageOptions{ReadDpi: false}, 0, "")
		if pdf.Err() {
			// An unreadable thumbnail must not spoil the whole map.
			pdf.ClearError()
		}
	}

	switch {
	case st.missing:
		drawMissing(pdf, x, y, r)
	case st.kind == kindCharacter:
		drawCharacter(pdf, x, y, r*0.6)
	case st.kind == kindAutonext:
		drawArrow(pdf, x, y, r*0.5)
	case st.kind == kindEnding:
		drawEnding(pdf, x, y, r*0.5)
	case image == "":
		pdf.Circle(x, y, r*0.3, "D")
	}
	if st.statChoice {
		drawStatMark(pdf, x+r*0.75, y-r*0.75)
	}
	if st.paidChoice {
		drawCoin(pdf, x-r*0.75, y-r*0.75)
	}
	pdf.SetLineWidth(1)
}

// drawCharacter draws a head-and-shoulders silhouette of height about 2s.
func drawCharacter(pdf *gofpdf.Fpdf, x, y, s float64) {
	pdf.Circle(x, y-s*0.4, s*0.4, "D")
	pdf.Arc(x, y+s, s*0.8, s*0.8, 0, 180, 360, "D")
}

func drawArrow(pdf *gofpdf.Fpdf, x, y, s float64) {
	pdf.Line(x-s, y, x+s, y)
	pdf.Line(x+s, y, x+s*0.5, y-s*0.5)
	pdf.Line(x+s, y, x+s*0.5, y+s*0.5)
}

// drawEnding draws a five-point star.
func drawEnding(pdf *gofpdf.Fpdf, x, y, s float64) {
	pts := make([]gofpdf.PointType, 0, 10)
	for i := 0; i < 10; i++ {
		rad := s
		if i%2 == 1 {
			rad = s * 0.45
		}
		a := float64(i)*math.Pi/5 - math.Pi/2
		pts = append(pts, gofpdf.PointType{X: x + rad*math.Cos(a), Y: y + rad*math.Sin(a)})
	}
	pdf.Polygon(pts, "D")
}

func drawMissing(pdf *gofpdf.Fpdf, x, y, r float64) {
	pdf.SetDrawColor(180, 40, 40)
	pdf.SetLineWidth(1.5)
	pdf.Line(x-r*0.4, y-r*0.4, x+r*0.4, y+r*0.4)
	pdf.Line(x-r*0.4, y+r*0.4, x+r*0.4, y-r*0.4)
	pdf.SetDrawColor(0, 0, 0)
}

func drawStatMark(pdf *gofpdf.Fpdf, x, y float64) {
	const d = 4.0
	pdf.Polygon([]gofpdf.PointType{{X: x, Y: y - d}, {X: x + d, Y: y}, {X: x, Y: y + d}, {X: x - d, Y: y}}, "D")
}

func drawCoin(pdf *gofpdf.Fpdf, x, y float64) {
	pdf.Circle(x, y, 4, "D")
	pdf.Circle(x, y, 2, "D")
}
