// Package render draws leaderboard cards as PNG images.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/fixed"
)

const (
	scale        = 2
	cardWidth    = 360
	headerHeight = 44
	rowHeight    = 22
	padding      = 14
	handleChars  = 28

	// MaxRows caps the card; longer boards are cut after this many entries.
	MaxRows = 20
)

var (
	titleColor  = color.RGBA{0xff, 0xff, 0xff, 0xff}
	textColor   = color.RGBA{0xe5, 0xe7, 0xeb, 0xff}
	mutedColor  = color.RGBA{0x9c, 0xa3, 0xaf, 0xff}
	podiumColor = []color.RGBA{
		{0xfb, 0xbf, 0x24, 0xff},
		{0xd1, 0xd5, 0xdb, 0xff},
		{0xf5, 0x9e, 0x0b, 0xff},
	}
)

type Row struct {
	Rank   int
	Handle string
	Value  string
}

// LeaderboardPNG renders title and rows (at most MaxRows) into a PNG.
// Text uses the built-in 7x13 bitmap face, so it should be ASCII.
func LeaderboardPNG(title string, rows []Row) ([]byte, error) {
	if len(rows) > MaxRows {
		rows = rows[:MaxRows]
	}
	slots := len(rows)
	if slots == 0 {
		slots = 1
	}
	logicalH := headerHeight + padding + slots*rowHeight + padding

	img := image.NewRGBA(image.Rect(0, 0, cardWidth*scale, logicalH*scale))
	if err := drawBackground(img, slots); err != nil {
		return nil, err
	}

	text := image.NewRGBA(image.Rect(0, 0, cardWidth, logicalH))
	d := &font.Drawer{Dst: text, Src: image.NewUniform(titleColor), Face: basicfont.Face7x13}
	d.Dot = fixed.P(padding, headerHeight/2+5)
	d.DrawString(strings.ToUpper(strings.TrimSpace(title)))

	if len(rows) == 0 {
		d.Src = image.NewUniform(mutedColor)
		d.Dot = fixed.P(padding+8, headerHeight+padding+15)
		d.DrawString("no entries yet")
	}
	for i, row := range rows {
		baseline := headerHeight + padding + i*rowHeight + 15
		clr := textColor
		if row.Rank >= 1 && row.Rank <= len(podiumColor) {
			clr = podiumColor[row.Rank-1]
		}
		d.Src = image.NewUniform(clr)
		d.Dot = fixed.P(padding+8, baseline)
		d.DrawString(fmt.Sprintf("%2d.", row.Rank))

		d.Src = image.NewUniform(textColor)
		d.Dot = fixed.P(padding+44, baseline)
		d.DrawString(clip(row.Handle, handleChars))

		w := d.MeasureString(row.Value).Round()
		d.Dot = fixed.P(cardWidth-padding-8-w, baseline)
		d.DrawString(row.Value)
	}

	xdraw.NearestNeighbor.Scale(img, img.Bounds(), text, text.Bounds(), xdraw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawBackground(dst *image.RGBA, slots int) error {
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	icon, err := oksvg.ReadIconStream(strings.NewReader(backgroundSVG(w, h, slots)))
	if err != nil {
		return fmt.Errorf("parse card svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))
	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	raster := rasterx.NewDasher(w, h, scanner)
	icon.Draw(raster, 1.0)
	return nil
}

func backgroundSVG(w, h, slots int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, w, h, w, h)
	b.WriteString(`<defs><linearGradient id="bg" x1="0" y1="0" x2="0" y2="1">`)
	b.WriteString(`<stop offset="0" stop-color="#1f2937"/><stop offset="1" stop-color="#0f172a"/>`)
	b.WriteString(`</linearGradient></defs>`)
	fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="%d" rx="%d" fill="url(#bg)"/>`, w, h, 12*scale)
	fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="%d" rx="%d" fill="#2563eb"/>`, w, headerHeight*scale, 12*scale)
	fmt.Fprintf(&b, `<rect x="0" y="%d" width="%d" height="%d" fill="#2563eb"/>`, headerHeight*scale/2, w, headerHeight*scale/2)
	for i := 0; i < slots; i += 2 {
		y := (headerHeight + padding + i*rowHeight) * scale
		fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" rx="%d" fill="#ffffff" fill-opacity="0.06"/>`,
			padding*scale, y, w-2*padding*scale, (rowHeight-2)*scale, 4*scale)
	}
	b.WriteString(`</svg>`)
	return b.String()
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "~"
}
