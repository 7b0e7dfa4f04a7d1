// Package tesseract registers a gosseract-backed engine under the name
// "tesseract". Import it for its side effect:
//
//	import _ "go-ocr-throughput/internal/engine/tesseract"
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"

	"go-ocr-throughput/internal/engine"
)

// Backend is the registry name of this engine
const Backend = "tesseract"

func init() {
	engine.Register(Backend, New)
}

// languages maps two-letter locale codes to tesseract trained-data names.
// Anything else is passed through unchanged.
var languages = map[string]string{
	"en": "eng",
	"de": "deu",
	"fr": "fra",
	"es": "spa",
	"it": "ita",
	"pt": "por",
	"nl": "nld",
	"ru": "rus",
	"ja": "jpn",
	"ko": "kor",
	"ch": "chi_sim",
	"zh": "chi_sim",
}

// Engine holds one tesseract API handle. It is not safe for concurrent use.
type Engine struct {
	client   *gosseract.Client
	language string
}

// New loads the model for opts.Language and runs a warm-up recognition so the
// load cost is paid here and not on the first job.
func New(opts engine.Options) (engine.Recognizer, error) {
	c := gosseract.NewClient()
	lang := TesseractLanguage(opts.Language)

	if opts.TessdataPrefix != "" {
		if err := c.SetTessdataPrefix(opts.TessdataPrefix); err != nil {
			c.Close()
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := c.SetLanguage(lang); err != nil {
		c.Close()
		return nil, fmt.Errorf("set language %s: %w", lang, err)
	}
	mode := gosseract.PSM_AUTO
	if opts.AngleCorrection {
		// orientation and script detection rotates skewed text before recognition
		mode = gosseract.PSM_AUTO_OSD
	}
	if err := c.SetPageSegMode(mode); err != nil {
		c.Close()
		return nil, fmt.Errorf("set page segmentation mode: %w", err)
	}

	if err := warmUp(c); err != nil {
		c.Close()
		return nil, err
	}
	return &Engine{client: c, language: lang}, nil
}

func (e *Engine) Name() string { return Backend }

// Recognize runs OCR on the image at path
func (e *Engine) Recognize(ctx context.Context, path string) (engine.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return engine.Outcome{}, err
	}
	start := time.Now()
	if err := e.client.SetImage(path); err != nil {
		return engine.Outcome{}, fmt.Errorf("set image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return engine.Outcome{}, fmt.Errorf("recognize text: %w", err)
	}
	return engine.Outcome{
		Path:       path,
		Text:       strings.TrimSpace(text),
		Confidence: e.meanConfidence(),
		Duration:   time.Since(start),
	}, nil
}

func (e *Engine) Close() error {
	return e.client.Close()
}

func (e *Engine) meanConfidence() float64 {
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100.0
	}
	return sum / float64(len(boxes))
}

// TesseractLanguage converts a locale code into a trained-data name
func TesseractLanguage(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if lang, ok := languages[locale]; ok {
		return lang
	}
	if locale == "" {
		return "eng"
	}
	return locale
}

// warmUp forces tesseract to initialize by recognizing a small blank image
func warmUp(c *gosseract.Client) error {
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode warm-up image: %w", err)
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return fmt.Errorf("set warm-up image: %w", err)
	}
	if _, err := c.Text(); err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	return nil
}
