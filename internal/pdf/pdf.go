// Package pdf pulls page images out of scanned invoice PDFs. Scanned fiscal
// documents embed one raster per page; pdfcpu extracts them to a temp
// directory which is read back and ordered by page.
package pdf

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Page holds the raster images embedded in one PDF page, in extraction
// order. Scanned invoices normally carry exactly one.
type Page struct {
	Number int
	Images []image.Image
}

// PageImages extracts the embedded images of every page, sorted by page
// number. Pages without raster content are absent from the result.
func PageImages(filename string) ([]Page, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("pdf file: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "nfscan-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	if err := api.ExtractImagesFile(filename, tempDir, nil, nil); err != nil {
		return nil, fmt.Errorf("extract page images: %w", err)
	}

	byPage := make(map[int][]image.Image)
	err = filepath.Walk(tempDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		pageNum, err := pageNumber(info.Name())
		if err != nil {
			return nil
		}
		img, err := loadImage(path)
		if err != nil {
			// An undecodable embedded object is not a page scan.
			return nil
		}
		byPage[pageNum] = append(byPage[pageNum], img)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect page images: %w", err)
	}

	pages := make([]Page, 0, len(byPage))
	for num, imgs := range byPage {
		pages = append(pages, Page{Number: num, Images: imgs})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	return img, err
}

// pageNumber parses the page index from pdfcpu's output naming,
// page_<num>_image_<idx>.<ext>.
func pageNumber(filename string) (int, error) {
	if !strings.HasPrefix(filename, "page_") {
		return 0, errors.New("not a page image")
	}
	parts := strings.Split(filename, "_")
	if len(parts) < 2 {
		return 0, errors.New("unexpected filename")
	}
	return strconv.Atoi(parts[1])
}
