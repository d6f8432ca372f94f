package pdf

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageNumber(t *testing.T) {
	n, err := pageNumber("page_1_image_1.png")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = pageNumber("page_12_image_3.jpg")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	_, err = pageNumber("thumbnail.png")
	assert.Error(t, err)

	_, err = pageNumber("page_abc_image_1.png")
	assert.Error(t, err)
}

func TestPageImagesMissingFile(t *testing.T) {
	_, err := PageImages("/nonexistent/invoice.pdf")
	require.Error(t, err)
}

func TestPageImagesNotAPDF(t *testing.T) {
	path := t.TempDir() + "/bogus.pdf"
	require.NoError(t, os.WriteFile(path, []byte("not a pdf"), 0o600))

	_, err := PageImages(path)
	assert.Error(t, err)
}
