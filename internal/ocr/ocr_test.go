package ocr

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/invoicehub/invoice-rpa/internal/common"
)

// stubRunner replays canned engine output. The TSV invocation is recognized
// by its trailing "tsv" config argument.
type stubRunner struct {
	text   string
	tsv    string
	err    error
	stderr string

	calls [][]string
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, append([]string{name}, args...))
	if s.err != nil {
		return nil, []byte(s.stderr), s.err
	}
	if len(args) > 0 && args[len(args)-1] == "tsv" {
		return []byte(s.tsv), nil, nil
	}
	return []byte(s.text), nil, nil
}

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t600\t800\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t100\t200\t80\t20\t95.5\tFattura\n" +
	"5\t1\t1\t1\t1\t2\t190\t200\t90\t20\t84.5\t2024/001\n" +
	"5\t1\t1\t1\t2\t1\t100\t230\t40\t20\t0\t \n"

func testImage() *image.Gray {
	return image.NewGray(image.Rect(0, 0, 8, 8))
}

func TestExtract(t *testing.T) {
	stub := &stubRunner{text: "Fattura 2024/001\r\n\r\n\r\n\r\nTotale:   100", tsv: sampleTSV}
	e := NewExtractor(Config{}, nil)
	e.runner = stub

	res, err := e.Extract(context.Background(), testImage())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if got, want := res.Text, "Fattura 2024/001\n\nTotale: 100"; got != want {
		t.Errorf("Text = %q, want %q", got, want)
	}
	if len(res.Words) != 2 {
		t.Fatalf("Words = %d, want 2 (structural and zero-conf rows skipped)", len(res.Words))
	}
	if got, want := res.Confidence, (95.5+84.5)/2; got != want {
		t.Errorf("Confidence = %.2f, want %.2f", got, want)
	}

	w := res.Words[1]
	if w.Text != "2024/001" || w.Confidence != 84.5 {
		t.Errorf("word = %+v", w)
	}
	if w.BBox != (BBox{X: 190, Y: 200, W: 90, H: 20}) {
		t.Errorf("bbox = %+v", w.BBox)
	}
	if w.Block != 1 || w.Line != 1 {
		t.Errorf("layout = block %d line %d", w.Block, w.Line)
	}
	if len(stub.calls) != 2 {
		t.Errorf("engine invoked %d times, want 2 (text + tsv)", len(stub.calls))
	}
}

func TestExtractEngineFailure(t *testing.T) {
	stub := &stubRunner{err: errors.New("exit status 1"), stderr: "Error opening data file"}
	e := NewExtractor(Config{}, nil)
	e.runner = stub

	_, err := e.Extract(context.Background(), testImage())
	if !errors.Is(err, common.ErrOCREngine) {
		t.Fatalf("err = %v, want ErrOCREngine", err)
	}
	if !strings.Contains(err.Error(), "Error opening data file") {
		t.Errorf("stderr not surfaced: %v", err)
	}
}

func TestArgs(t *testing.T) {
	e := NewExtractor(Config{Language: "ita", PSM: 4, OEM: 1}, nil)
	got := strings.Join(e.args("/tmp/in.png"), " ")
	want := "/tmp/in.png stdout -l ita --psm 4 --oem 1"
	if got != want {
		t.Errorf("args = %q, want %q", got, want)
	}

	e = NewExtractor(Config{TessdataDir: "/opt/tessdata"}, nil)
	got = strings.Join(e.args("in.png"), " ")
	if !strings.Contains(got, "--tessdata-dir /opt/tessdata") {
		t.Errorf("tessdata dir missing from args: %q", got)
	}
	if !strings.Contains(got, "-l ita+eng") {
		t.Errorf("default language missing: %q", got)
	}
}

func TestParseTSVShortRows(t *testing.T) {
	out := "header\nonly\tthree\tcols\n"
	if words := parseTSV([]byte(out)); len(words) != 0 {
		t.Errorf("short rows should be skipped, got %v", words)
	}
}

func TestMeanConfidenceEmpty(t *testing.T) {
	if got := meanConfidence(nil); got != 0 {
		t.Errorf("meanConfidence(nil) = %.2f, want 0", got)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"a\r\nb", "a\nb"},
		{"a\t\tb", "a b"},
		{"a    b", "a b"},
		{"a\n\n\n\n\nb", "a\n\nb"},
		{"____\nkeep\n----", "keep"},
		{"  padded  \n", "padded"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
