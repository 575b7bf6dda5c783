package ingestion_engine

import (
	"bytes"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ledongthuc/pdf"
)

func wordTexts(words []Word) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, w.Text)
	}
	return out
}

func openPDF(t *testing.T, raw []byte) *pdf.Reader {
	t.Helper()
	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	return r
}

func contentWords(t *testing.T, content string, pageHeight float64) []Word {
	t.Helper()
	words, err := PageWords(openPDF(t, buildPDF(content)), 1, pageHeight)
	if err != nil {
		t.Fatalf("PageWords: %v", err)
	}
	return words
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

const toUnicodeCMap = `/CIDInit /ProcSet findresource begin
12 dict begin
begincmap
1 begincodespacerange
<0000> <FFFF>
endcodespacerange
4 beginbfchar
<0037> <0054>
<0048> <0065>
<0056> <0073>
<0057> <0074>
endbfchar
endcmap
CMapName currentdict /CMap defineresource pop
end
end`

func TestPageWords(t *testing.T) {
	t.Run("simple show", func(t *testing.T) {
		words := contentWords(t, "BT /F1 12 Tf 72 700 Td (Hello World) Tj ET", 792)
		if diff := cmp.Diff([]string{"Hello", "World"}, wordTexts(words)); diff != "" {
			t.Fatalf("words mismatch (-want +got):\n%s", diff)
		}
		hello := words[0].Box
		if hello.Left != 72 || hello.Top != 83 || hello.Bottom != 95 {
			t.Errorf("Hello box = %+v, want left 72 top 83 bottom 95", hello)
		}
		if hello.Right <= hello.Left {
			t.Errorf("Hello box has no width: %+v", hello)
		}
		world := words[1].Box
		if world.Left <= hello.Right {
			t.Errorf("World (%v) should start after Hello ends (%v)", world.Left, hello.Right)
		}
		if world.Top != hello.Top {
			t.Errorf("same line words have different tops: %v vs %v", world.Top, hello.Top)
		}
	})

	t.Run("TJ kerning joins, large gaps split", func(t *testing.T) {
		words := contentWords(t, "BT /F1 10 Tf 1 0 0 1 50 600 Tm [(Ab) -50 (cd) -600 (ef)] TJ ET", 792)
		if diff := cmp.Diff([]string{"Abcd", "ef"}, wordTexts(words)); diff != "" {
			t.Errorf("words mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("line moves", func(t *testing.T) {
		words := contentWords(t, "BT /F1 10 Tf 12 TL 50 600 Td (one) Tj T* (two) Tj (three) ' ET", 792)
		if diff := cmp.Diff([]string{"one", "two", "three"}, wordTexts(words)); diff != "" {
			t.Fatalf("words mismatch (-want +got):\n%s", diff)
		}
		if got, want := words[1].Box.Top-words[0].Box.Top, 12.0; got != want {
			t.Errorf("second line offset = %v, want %v", got, want)
		}
		if got, want := words[2].Box.Top-words[1].Box.Top, 12.0; got != want {
			t.Errorf("third line offset = %v, want %v", got, want)
		}
	})

	t.Run("ctm scales text", func(t *testing.T) {
		words := contentWords(t, "q 2 0 0 2 0 0 cm BT /F1 10 Tf 10 10 Td (Big) Tj ET Q BT /F1 10 Tf 10 10 Td (Small) Tj ET", 500)
		if diff := cmp.Diff([]string{"Big", "Small"}, wordTexts(words)); diff != "" {
			t.Fatalf("words mismatch (-want +got):\n%s", diff)
		}
		big, small := words[0].Box, words[1].Box
		if big.Left != 20 || small.Left != 10 {
			t.Errorf("lefts = %v, %v; want 20, 10", big.Left, small.Left)
		}
		if gotBig, gotSmall := big.Bottom-big.Top, small.Bottom-small.Top; gotBig != 2*gotSmall {
			t.Errorf("heights = %v, %v; want the first twice the second", gotBig, gotSmall)
		}
	})

	t.Run("escapes and hex strings", func(t *testing.T) {
		content := `BT /F1 10 Tf 10 700 Td (a\(b\)c\\d\101) Tj 0 -20 Td <48692021> Tj ET`
		words := contentWords(t, content, 792)
		if diff := cmp.Diff([]string{`a(b)c\dA`, "Hi", "!"}, wordTexts(words)); diff != "" {
			t.Errorf("words mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("comments and marked content", func(t *testing.T) {
		content := "% a comment (not text) Tj\n/P << /MCID 0 >> BDC BT /F1 10 Tf 5 5 Td (kept) Tj ET EMC"
		if diff := cmp.Diff([]string{"kept"}, wordTexts(contentWords(t, content, 100))); diff != "" {
			t.Errorf("words mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("no text", func(t *testing.T) {
		if words := contentWords(t, "0 0 m 100 100 l S", 792); len(words) != 0 {
			t.Errorf("expected no words, got %v", wordTexts(words))
		}
	})

	t.Run("composite font decoded through ToUnicode", func(t *testing.T) {
		raw := assemblePDF(
			"<< /Type /Catalog /Pages 2 0 R >>",
			"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
			streamObj("", "BT /F1 12 Tf 72 700 Td <0037004800560057> Tj ET"),
			"<< /Type /Font /Subtype /Type0 /BaseFont /ABCDEF+Serif /Encoding /Identity-H /DescendantFonts [6 0 R] /ToUnicode 7 0 R >>",
			"<< /Type /Font /Subtype /CIDFontType2 /BaseFont /ABCDEF+Serif /CIDSystemInfo << /Registry (Adobe) /Ordering (Identity) /Supplement 0 >> /DW 1000 /W [55 [610] 72 [556] 86 87 400] >>",
			streamObj("", toUnicodeCMap),
		)
		words, err := PageWords(openPDF(t, raw), 1, 792)
		if err != nil {
			t.Fatalf("PageWords: %v", err)
		}
		if diff := cmp.Diff([]string{"Test"}, wordTexts(words)); diff != "" {
			t.Fatalf("words mismatch (-want +got):\n%s", diff)
		}
		// 610 + 556 + 400 + 400 thousandths of a 12pt em.
		if box := words[0].Box; box.Left != 72 || !near(box.Right, 72+1.966*12) {
			t.Errorf("Test box = %+v, want left 72 right %v", box, 72+1.966*12)
		}
	})

	t.Run("simple font with differences and widths", func(t *testing.T) {
		raw := assemblePDF(
			"<< /Type /Catalog /Pages 2 0 R >>",
			"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
			streamObj("", "BT /F1 10 Tf 100 500 Td <01020304> Tj ET"),
			"<< /Type /Font /Subtype /Type1 /BaseFont /Custom /FirstChar 1 /LastChar 4 /Widths [610 556 400 400] /Encoding << /Type /Encoding /Differences [1 /T /e /s /t] >> >>",
		)
		words, err := PageWords(openPDF(t, raw), 1, 792)
		if err != nil {
			t.Fatalf("PageWords: %v", err)
		}
		if diff := cmp.Diff([]string{"Test"}, wordTexts(words)); diff != "" {
			t.Fatalf("words mismatch (-want +got):\n%s", diff)
		}
		if box := words[0].Box; !near(box.Right, 100+1.966*10) {
			t.Errorf("Test box = %+v, want right %v", box, 100+1.966*10)
		}
	})

	t.Run("form xobject text", func(t *testing.T) {
		raw := assemblePDF(
			"<< /Type /Catalog /Pages 2 0 R >>",
			"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> /XObject << /Fm0 6 0 R >> >> /Contents 4 0 R >>",
			streamObj("", "q 1 0 0 1 0 0 cm /Fm0 Do Q BT /F1 12 Tf 72 100 Td (After) Tj ET"),
			"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
			streamObj("/Type /XObject /Subtype /Form /BBox [0 0 612 792] /Matrix [1 0 0 1 10 20] /Resources << /Font << /F2 5 0 R >> >>",
				"BT /F2 12 Tf 72 700 Td (Inside) Tj ET"),
		)
		words, err := PageWords(openPDF(t, raw), 1, 792)
		if err != nil {
			t.Fatalf("PageWords: %v", err)
		}
		if diff := cmp.Diff([]string{"Inside", "After"}, wordTexts(words)); diff != "" {
			t.Fatalf("words mismatch (-want +got):\n%s", diff)
		}
		if inside := words[0].Box; inside.Left != 82 || inside.Top != 63 {
			t.Errorf("Inside box = %+v, want left 82 top 63", inside)
		}
		if after := words[1].Box; after.Left != 72 || after.Top != 683 {
			t.Errorf("After box = %+v, want left 72 top 683", after)
		}
	})

	t.Run("unreadable content stream", func(t *testing.T) {
		raw := assemblePDF(
			"<< /Type /Catalog /Pages 2 0 R >>",
			"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R >>",
			streamObj("/Filter /NoSuchDecode", "BT (x) Tj ET"),
		)
		if _, err := PageWords(openPDF(t, raw), 1, 792); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("missing page", func(t *testing.T) {
		if _, err := PageWords(openPDF(t, buildPDF("")), 2, 792); err == nil {
			t.Fatal("expected an error")
		}
	})
}
