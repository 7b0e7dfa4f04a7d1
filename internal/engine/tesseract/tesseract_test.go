package tesseract

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"go-ocr-throughput/internal/engine"
)

// ensureTesseractAvailable checks that the tesseract binary is reachable.
func ensureTesseractAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

func writeTextImage(t *testing.T, dir, name, text string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 240, 80))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, 50),
	}
	d.DrawString(text)

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestTesseractLanguage(t *testing.T) {
	tests := map[string]string{
		"en":      "eng",
		"EN":      "eng",
		"":        "eng",
		"ch":      "chi_sim",
		"deu":     "deu",
		"eng+fra": "eng+fra",
	}
	for in, want := range tests {
		assert.Equal(t, want, TesseractLanguage(in), "locale %q", in)
	}
}

func TestRegistered(t *testing.T) {
	f, err := engine.Lookup(Backend)
	require.NoError(t, err)
	assert.NotNil(t, f)
}

func TestEngineRecognize(t *testing.T) {
	ensureTesseractAvailable(t)

	path := writeTextImage(t, t.TempDir(), "hello.png", "Hello OCR")

	rec, err := New(engine.Options{Language: "en", AngleCorrection: true})
	require.NoError(t, err)
	defer rec.Close()

	out, err := rec.Recognize(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, out.Path)
	assert.Contains(t, strings.ToLower(out.Text), "hello")
}

func TestEngineRecognizeMissingImage(t *testing.T) {
	ensureTesseractAvailable(t)

	rec, err := New(engine.Options{Language: "en"})
	require.NoError(t, err)
	defer rec.Close()

	_, err = rec.Recognize(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
}

func TestEngineRecognizeCanceled(t *testing.T) {
	ensureTesseractAvailable(t)

	rec, err := New(engine.Options{Language: "en"})
	require.NoError(t, err)
	defer rec.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rec.Recognize(ctx, "unused.png")
	assert.ErrorIs(t, err, context.Canceled)
}
