package ingestion_engine

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/markdave123-py/pawls/internal/core/document"
)

// Word is a run of glyphs shown next to each other on one baseline.
type Word struct {
	Text string
	Box  document.Box
}

const maxFormDepth = 8

type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

func translate(tx, ty float64) matrix { return matrix{1, 0, 0, 1, tx, ty} }

// mul returns m x n.
func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return x*m[0] + y*m[2] + m[4], x*m[1] + y*m[3] + m[5]
}

func matrixOf(v pdf.Value) (matrix, bool) {
	if v.Len() != 6 {
		return matrix{}, false
	}
	var m matrix
	for i := range m {
		m[i] = v.Index(i).Float64()
	}
	return m, true
}

// font wraps a font resource with what glyph placement needs: the code
// length, a decoder to unicode and the advance widths.
type font struct {
	pdf.Font
	enc       pdf.TextEncoding
	composite bool
	scale     float64 // glyph space to text space
	cidWidths map[int]float64
	dw        float64
}

func loadFont(v pdf.Value) *font {
	f := &font{Font: pdf.Font{V: v}, scale: 0.001}
	f.enc = f.Encoder()

	switch v.Key("Subtype").Name() {
	case "Type3":
		if m, ok := matrixOf(v.Key("FontMatrix")); ok {
			f.scale = m[0]
		}
	case "Type0":
		f.composite = true
		f.dw = 1000
		f.cidWidths = make(map[int]float64)

		cid := v.Key("DescendantFonts").Index(0)
		if dw := cid.Key("DW"); isNumber(dw) {
			f.dw = dw.Float64()
		}
		// W holds either "c [w1 w2 ...]" or "cFirst cLast w" groups.
		w := cid.Key("W")
		for i := 0; i+1 < w.Len(); {
			first := int(w.Index(i).Float64())
			next := w.Index(i + 1)
			if next.Kind() == pdf.Array {
				for j := 0; j < next.Len(); j++ {
					f.cidWidths[first+j] = next.Index(j).Float64()
				}
				i += 2
				continue
			}
			last, width := int(next.Float64()), w.Index(i+2).Float64()
			for c := first; c <= last && c <= 0xffff; c++ {
				f.cidWidths[c] = width
			}
			i += 3
		}
	}
	return f
}

// codes splits a shown string into character codes.
func (f *font) codes(s string) []string {
	n := 1
	if f.composite {
		n = 2
	}
	out := make([]string, 0, len(s)/n)
	for len(s) >= n {
		out = append(out, s[:n])
		s = s[n:]
	}
	return out
}

// advance returns the horizontal advance of code in text space units.
func (f *font) advance(code string) float64 {
	if f.composite {
		cid := int(code[0])<<8 | int(code[1])
		if w, ok := f.cidWidths[cid]; ok {
			return w * f.scale
		}
		return f.dw * f.scale
	}
	c := int(code[0])
	if w := f.Width(c); w > 0 {
		return w * f.scale
	}
	// The standard 14 fonts may come without /Widths.
	if c == ' ' {
		return 0.25
	}
	return 0.5
}

func isNumber(v pdf.Value) bool {
	return v.Kind() == pdf.Integer || v.Kind() == pdf.Real
}

// scope is a resource dictionary with its loaded fonts.
type scope struct {
	res   pdf.Value
	fonts map[string]*font
}

func newScope(res pdf.Value) *scope {
	return &scope{res: res, fonts: make(map[string]*font)}
}

func (s *scope) font(name string) *font {
	f, ok := s.fonts[name]
	if !ok {
		f = loadFont(s.res.Key("Font").Key(name))
		s.fonts[name] = f
	}
	return f
}

// graphicsState is the part of the graphics state that places glyphs.
type graphicsState struct {
	ctm       matrix
	font      *font
	size      float64
	charSpace float64
	wordSpace float64
	hscale    float64
	leading   float64
	rise      float64
}

type walker struct {
	originX, originY float64
	pageHeight       float64

	gs      graphicsState
	stack   []graphicsState
	tm, tlm matrix

	cur   strings.Builder
	left  float64
	right float64
	base  float64
	size  float64

	words []Word
}

// PageWords walks the content of page num (1-based) of r, following form
// XObjects, and returns its words in content order with boxes in top-left
// page coordinates. A malformed content stream stops the walk; the words
// found before it are returned with the error.
func PageWords(r *pdf.Reader, num int, pageHeight float64) (words []Word, err error) {
	page := r.Page(num)
	if page.V.IsNull() {
		return nil, fmt.Errorf("page %d not found", num)
	}

	w := &walker{pageHeight: pageHeight, tm: identity, tlm: identity}
	w.gs = graphicsState{ctm: identity, hscale: 1, font: loadFont(pdf.Value{})}
	if box := page.MediaBox(); box.Len() == 4 {
		w.originX, w.originY = box.Index(0).Float64(), box.Index(1).Float64()
	}

	defer func() {
		if rec := recover(); rec != nil {
			w.flush()
			words, err = w.words, fmt.Errorf("page %d content: %v", num, rec)
		}
	}()

	contents := page.V.Key("Contents")
	if contents.IsNull() {
		return nil, nil
	}
	w.run(contents, newScope(page.Resources()), 0)
	w.flush()
	return w.words, nil
}

func (w *walker) run(content pdf.Value, sc *scope, depth int) {
	pdf.Interpret(content, func(stk *pdf.Stack, op string) {
		args := make([]pdf.Value, stk.Len())
		for i := len(args) - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}
		w.do(sc, depth, op, args)
	})
}

func nums(args []pdf.Value, n int) ([]float64, bool) {
	if len(args) < n {
		return nil, false
	}
	out := make([]float64, n)
	for i, a := range args[len(args)-n:] {
		if !isNumber(a) {
			return nil, false
		}
		out[i] = a.Float64()
	}
	return out, true
}

func lastString(args []pdf.Value) (string, bool) {
	if len(args) == 0 || args[len(args)-1].Kind() != pdf.String {
		return "", false
	}
	return args[len(args)-1].RawString(), true
}

func (w *walker) do(sc *scope, depth int, op string, args []pdf.Value) {
	gs := &w.gs
	switch op {
	case "q":
		w.stack = append(w.stack, w.gs)
	case "Q":
		if n := len(w.stack); n > 0 {
			w.gs = w.stack[n-1]
			w.stack = w.stack[:n-1]
		}
	case "cm":
		if v, ok := nums(args, 6); ok {
			gs.ctm = matrix{v[0], v[1], v[2], v[3], v[4], v[5]}.mul(gs.ctm)
		}
	case "BT":
		w.tm, w.tlm = identity, identity
	case "ET":
		w.flush()
	case "Tf":
		if len(args) == 2 {
			gs.font = sc.font(args[0].Name())
			gs.size = args[1].Float64()
		}
	case "Tc":
		if v, ok := nums(args, 1); ok {
			gs.charSpace = v[0]
		}
	case "Tw":
		if v, ok := nums(args, 1); ok {
			gs.wordSpace = v[0]
		}
	case "Tz":
		if v, ok := nums(args, 1); ok {
			gs.hscale = v[0] / 100
		}
	case "TL":
		if v, ok := nums(args, 1); ok {
			gs.leading = v[0]
		}
	case "Ts":
		if v, ok := nums(args, 1); ok {
			gs.rise = v[0]
		}
	case "Td":
		if v, ok := nums(args, 2); ok {
			w.moveLine(v[0], v[1])
		}
	case "TD":
		if v, ok := nums(args, 2); ok {
			gs.leading = -v[1]
			w.moveLine(v[0], v[1])
		}
	case "Tm":
		if v, ok := nums(args, 6); ok {
			w.tm = matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
			w.tlm = w.tm
		}
	case "T*":
		w.moveLine(0, -gs.leading)
	case "Tj":
		if s, ok := lastString(args); ok {
			w.show(s)
		}
	case "'":
		w.moveLine(0, -gs.leading)
		if s, ok := lastString(args); ok {
			w.show(s)
		}
	case "\"":
		if len(args) == 3 {
			if v, ok := nums(args[:2], 2); ok {
				gs.wordSpace, gs.charSpace = v[0], v[1]
			}
		}
		w.moveLine(0, -gs.leading)
		if s, ok := lastString(args); ok {
			w.show(s)
		}
	case "TJ":
		if len(args) == 0 || args[len(args)-1].Kind() != pdf.Array {
			return
		}
		arr := args[len(args)-1]
		for i := 0; i < arr.Len(); i++ {
			item := arr.Index(i)
			switch {
			case item.Kind() == pdf.String:
				w.show(item.RawString())
			case isNumber(item):
				tx := -item.Float64() / 1000 * gs.size * gs.hscale
				w.tm = translate(tx, 0).mul(w.tm)
			}
		}
	case "Do":
		if len(args) == 0 || depth >= maxFormDepth {
			return
		}
		w.form(sc, args[len(args)-1].Name(), depth)
	}
}

// form runs a form XObject in its own graphics and resource scope.
func (w *walker) form(sc *scope, name string, depth int) {
	xo := sc.res.Key("XObject").Key(name)
	if xo.Kind() != pdf.Stream || xo.Key("Subtype").Name() != "Form" {
		return
	}

	saved, depthBefore := w.gs, len(w.stack)
	tm, tlm := w.tm, w.tlm
	defer func() {
		w.gs, w.stack = saved, w.stack[:depthBefore]
		w.tm, w.tlm = tm, tlm
	}()

	if m, ok := matrixOf(xo.Key("Matrix")); ok {
		w.gs.ctm = m.mul(w.gs.ctm)
	}
	inner := sc
	if res := xo.Key("Resources"); !res.IsNull() {
		inner = newScope(res)
	}
	w.run(xo, inner, depth+1)
}

func (w *walker) moveLine(tx, ty float64) {
	w.tlm = translate(tx, ty).mul(w.tlm)
	w.tm = w.tlm
}

func (w *walker) show(s string) {
	gs := &w.gs
	f := gs.font
	for _, code := range f.codes(s) {
		w0 := f.advance(code)
		m := w.tm.mul(gs.ctm)
		x0, y0 := m.apply(0, gs.rise)
		x1, _ := m.apply(w0*gs.size*gs.hscale, gs.rise)
		size := math.Abs(gs.size) * math.Hypot(m[2], m[3])

		var text strings.Builder
		space := false
		for _, r := range f.enc.Decode(code) {
			switch {
			case unicode.IsSpace(r):
				space = true
			case unicode.IsPrint(r):
				text.WriteRune(r)
			}
		}
		if space {
			w.flush()
		}
		if text.Len() > 0 {
			w.addGlyph(text.String(), math.Min(x0, x1), math.Max(x0, x1), y0, size)
		}

		tx := w0*gs.size + gs.charSpace
		if !f.composite && code == " " {
			tx += gs.wordSpace
		}
		w.tm = translate(tx*gs.hscale, 0).mul(w.tm)
	}
}

func (w *walker) addGlyph(s string, x0, x1, y, size float64) {
	if w.cur.Len() > 0 {
		em := math.Max(w.size, size)
		if math.Abs(y-w.base) > em/2 || x0-w.right > em*0.2 || x0 < w.left-em/2 {
			w.flush()
		}
	}
	if w.cur.Len() == 0 {
		w.left, w.right, w.base, w.size = x0, x1, y, size
	}
	w.cur.WriteString(s)
	w.right = math.Max(w.right, x1)
	w.size = math.Max(w.size, size)
}

func (w *walker) flush() {
	if w.cur.Len() == 0 {
		return
	}
	base := w.base - w.originY
	w.words = append(w.words, Word{
		Text: w.cur.String(),
		Box: document.Box{
			Left:   w.left - w.originX,
			Top:    w.pageHeight - (base + 0.75*w.size),
			Right:  w.right - w.originX,
			Bottom: w.pageHeight - (base - 0.25*w.size),
		},
	})
	w.cur.Reset()
}
