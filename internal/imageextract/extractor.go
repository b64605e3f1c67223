/**
 * Image Extractor.
 *
 * Rasterizes selected pages to an output directory, optionally enriching
 * each image with OCR text. Page rendering is grounded on go-fitz (a MuPDF
 * binding that renders directly to an image.Image); the engine itself
 * encodes and writes the file so format/quality are always under its
 * control, matching the "engine encodes, library only rasterizes"
 * collaborator contract.
 */

package imageextract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/google/uuid"

	"github.com/nexusdoc/docengine/internal/errs"
	"github.com/nexusdoc/docengine/internal/logging"
)

// Format is the output raster format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatTIFF Format = "tiff"
)

// ExtractedImage describes one rasterized page image.
type ExtractedImage struct {
	Page             int
	ImageNumber      int
	Format           Format
	Width            int
	Height           int
	ByteSize         int64
	DPI              int
	ExtractionMethod string
	StorageID        string
	OCRText          string
}

// Options configures a single extraction run.
type Options struct {
	Pages     []int // empty means "all pages"
	DPI       int
	Format    Format
	Quality   int
	MaxWidth  int
	MaxHeight int
	EnableOCR bool
	OCRLang   string
}

func (o Options) withDefaults() Options {
	if o.DPI == 0 {
		o.DPI = 150
	}
	if o.Format == "" {
		o.Format = FormatPNG
	}
	if o.Quality == 0 {
		o.Quality = 90
	}
	return o
}

// Storage persists a raster image's bytes, returning a storage id.
type Storage interface {
	Save(ctx context.Context, data []byte, fileName string) (string, error)
}

const maxConsecutiveFailures = 5

// Extractor rasterizes PDF pages and optionally enriches them with OCR.
type Extractor struct {
	outputDir     string
	storage       Storage
	tesseractPath string
	logger        *logging.Logger

	mu            sync.Mutex
	ocrDisabled   bool
}

// New creates an Extractor. tesseractPath is the binary name or path passed
// to exec.LookPath/exec.Command.
func New(outputDir string, storage Storage, tesseractPath string, logger *logging.Logger) *Extractor {
	if tesseractPath == "" {
		tesseractPath = "tesseract"
	}
	return &Extractor{
		outputDir:     outputDir,
		storage:       storage,
		tesseractPath: tesseractPath,
		logger:        logger,
	}
}

// clampDPIWarn warns when outside 72-600 but never rejects the request.
func clampDPIWarn(dpi int, logger *logging.Logger) int {
	if dpi < 72 || dpi > 600 {
		if logger != nil {
			logger.Warn("dpi outside recommended range", "dpi", dpi)
		}
	}
	return dpi
}

// Extract rasterizes the requested pages of the PDF at pdfPath.
func (ex *Extractor) Extract(ctx context.Context, pdfPath string, opts Options) ([]ExtractedImage, error) {
	opts = opts.withDefaults()
	clampDPIWarn(opts.DPI, ex.logger)

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf for rasterization: %w", err)
	}
	defer doc.Close()

	pages := opts.Pages
	if len(pages) == 0 {
		for i := 0; i < doc.NumPage(); i++ {
			pages = append(pages, i)
		}
	}

	if err := os.MkdirAll(ex.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	var results []ExtractedImage
	consecutiveFailures := 0

	for imgNum, pageIdx := range pages {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		img, method, err := ex.renderPageWithRetry(doc, pageIdx, opts)
		if err != nil {
			consecutiveFailures++
			if ex.logger != nil {
				ex.logger.Warn("page rasterization failed", "page", pageIdx, "error", err)
			}
			if consecutiveFailures >= maxConsecutiveFailures {
				if ex.logger != nil {
					ex.logger.Error("image extraction aborting further pages after consecutive failures, returning images extracted so far",
						"code", string(errs.ImageExtractionAborted), "consecutiveFailures", consecutiveFailures)
				}
				return results, nil
			}
			continue
		}
		consecutiveFailures = 0

		extracted, err := ex.persistImage(ctx, img, pageIdx, imgNum, opts, method)
		if err != nil {
			if ex.logger != nil {
				ex.logger.Warn("failed to persist extracted image", "page", pageIdx, "error", err)
			}
			continue
		}

		if opts.EnableOCR && !ex.ocrDisabledNow() {
			text, err := ex.runOCR(ctx, extracted.tmpPath, opts.OCRLang)
			if err != nil {
				if isOCRBinaryMissing(err) {
					ex.disableOCR()
					if ex.logger != nil {
						ex.logger.Warn("ocr binary not found, disabling ocr for process lifetime")
					}
				} else if ex.logger != nil {
					ex.logger.Warn("ocr failed for page", "page", pageIdx, "error", err)
				}
			} else {
				extracted.image.OCRText = text
			}
		}

		os.Remove(extracted.tmpPath)
		results = append(results, extracted.image)
	}

	return results, nil
}

type persistedImage struct {
	image   ExtractedImage
	tmpPath string
}

// renderPageWithRetry renders at the requested DPI first, then retries once
// at min(DPI, 96) if the first attempt fails (a page with a pathological
// embedded resource can exhaust MuPDF's renderer at high DPI but succeed at
// a coarser one).
func (ex *Extractor) renderPageWithRetry(doc *fitz.Document, pageIdx int, opts Options) (image.Image, string, error) {
	img, err := doc.ImageDPI(pageIdx, float64(opts.DPI))
	if err == nil {
		return img, "direct", nil
	}

	reducedDPI := opts.DPI
	if reducedDPI > 96 {
		reducedDPI = 96
	}

	img, err = doc.ImageDPI(pageIdx, float64(reducedDPI))
	if err != nil {
		return nil, "", fmt.Errorf("rasterization retry failed: %w", err)
	}
	return img, "retry-reduced", nil
}

func (ex *Extractor) persistImage(ctx context.Context, img image.Image, page, imgNum int, opts Options, method string) (*persistedImage, error) {
	img = downscaleToFit(img, opts.MaxWidth, opts.MaxHeight)
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	id := uuid.New().String()
	ext := string(opts.Format)
	if ext == string(FormatJPEG) {
		ext = "jpg"
	}
	tmpPath := filepath.Join(ex.outputDir, fmt.Sprintf("%s.%s", id, ext))

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp image file: %w", err)
	}

	var encodeErr error
	switch opts.Format {
	case FormatJPEG:
		encodeErr = jpeg.Encode(f, img, &jpeg.Options{Quality: opts.Quality})
	default:
		encodeErr = png.Encode(f, img)
	}
	f.Close()
	if encodeErr != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to encode image: %w", encodeErr)
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to read encoded image: %w", err)
	}

	storageID := ""
	if ex.storage != nil {
		storageID, err = ex.storage.Save(ctx, data, filepath.Base(tmpPath))
		if err != nil {
			os.Remove(tmpPath)
			return nil, fmt.Errorf("failed to persist image: %w", err)
		}
	}

	return &persistedImage{
		image: ExtractedImage{
			Page:             page + 1,
			ImageNumber:      imgNum + 1,
			Format:           opts.Format,
			Width:            width,
			Height:           height,
			ByteSize:         int64(len(data)),
			DPI:              opts.DPI,
			ExtractionMethod: method,
			StorageID:        storageID,
		},
		tmpPath: tmpPath,
	}, nil
}

// downscaleToFit nearest-neighbor resamples img so it fits within maxW x
// maxH, preserving aspect ratio. A zero bound disables that dimension's
// limit. No-op when img already fits.
func downscaleToFit(img image.Image, maxW, maxH int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if (maxW <= 0 || w <= maxW) && (maxH <= 0 || h <= maxH) {
		return img
	}

	scale := 1.0
	if maxW > 0 {
		if s := float64(maxW) / float64(w); s < scale {
			scale = s
		}
	}
	if maxH > 0 {
		if s := float64(maxH) / float64(h); s < scale {
			scale = s
		}
	}

	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	for y := 0; y < newH; y++ {
		srcY := bounds.Min.Y + y*h/newH
		for x := 0; x < newW; x++ {
			srcX := bounds.Min.X + x*w/newW
			dst.Set(x, y, img.At(srcX, srcY))
		}
	}
	return dst
}

func (ex *Extractor) ocrDisabledNow() bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.ocrDisabled
}

func (ex *Extractor) disableOCR() {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.ocrDisabled = true
}

// runOCR invokes the external OCR binary: tesseract <in> <outBase> -l <lang> --dpi 150
func (ex *Extractor) runOCR(ctx context.Context, imagePath, lang string) (string, error) {
	if lang == "" {
		lang = "eng"
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	outBase := strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + "-ocr"
	cmd := exec.CommandContext(ctx, ex.tesseractPath, imagePath, outBase, "-l", lang, "--dpi", "150")
	if err := cmd.Run(); err != nil {
		return "", err
	}

	textPath := outBase + ".txt"
	defer os.Remove(textPath)
	data, err := os.ReadFile(textPath)
	if err != nil {
		return "", fmt.Errorf("failed to read ocr output: %w", err)
	}
	return string(data), nil
}

func isOCRBinaryMissing(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr.Err, exec.ErrNotFound) || errors.Is(pathErr.Err, os.ErrNotExist)
	}
	return errors.Is(err, exec.ErrNotFound)
}
