package preprocess

import "image"

// CLAHE applies contrast-limited adaptive histogram equalization.
// The image is divided into tiles-per-axis regions; each tile's histogram is
// clipped at clipLimit times the uniform bin height before building its
// equalization mapping, and per-pixel values are bilinearly interpolated
// between the mappings of the four surrounding tile centers.
func CLAHE(img *image.NRGBA, clipLimit float64, tiles int) *image.NRGBA {
	plane, w, h := grayPlane(img)
	if w == 0 || h == 0 || tiles <= 0 {
		return img
	}
	if tiles > w {
		tiles = w
	}
	if tiles > h {
		tiles = h
	}

	tileW := (w + tiles - 1) / tiles
	tileH := (h + tiles - 1) / tiles

	// Per-tile equalization lookup tables.
	luts := make([][256]uint8, tiles*tiles)
	for ty := range tiles {
		for tx := range tiles {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := minInt(x0+tileW, w), minInt(y0+tileH, h)
			luts[ty*tiles+tx] = tileLUT(plane, w, x0, y0, x1, y1, clipLimit)
		}
	}

	out := make([]uint8, w*h)
	for y := range h {
		// Position relative to tile centers.
		fy := (float64(y)+0.5)/float64(tileH) - 0.5
		ty0 := int(fy)
		if fy < 0 {
			ty0 = -1
		}
		ty1 := ty0 + 1
		wy := fy - float64(ty0)
		ty0c, ty1c := clampTile(ty0, tiles), clampTile(ty1, tiles)

		for x := range w {
			fx := (float64(x)+0.5)/float64(tileW) - 0.5
			tx0 := int(fx)
			if fx < 0 {
				tx0 = -1
			}
			tx1 := tx0 + 1
			wx := fx - float64(tx0)
			tx0c, tx1c := clampTile(tx0, tiles), clampTile(tx1, tiles)

			v := plane[y*w+x]
			top := (1-wx)*float64(luts[ty0c*tiles+tx0c][v]) + wx*float64(luts[ty0c*tiles+tx1c][v])
			bot := (1-wx)*float64(luts[ty1c*tiles+tx0c][v]) + wx*float64(luts[ty1c*tiles+tx1c][v])
			out[y*w+x] = clampU8((1-wy)*top + wy*bot)
		}
	}
	return planeToImage(out, w, h)
}

// tileLUT builds the clipped-histogram equalization mapping for one tile.
func tileLUT(plane []uint8, stride, x0, y0, x1, y1 int, clipLimit float64) [256]uint8 {
	var hist [256]int
	count := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[plane[y*stride+x]]++
			count++
		}
	}

	var lut [256]uint8
	if count == 0 {
		for i := range lut {
			lut[i] = uint8(i)
		}
		return lut
	}

	// Clip and redistribute the excess uniformly.
	limit := int(clipLimit * float64(count) / 256.0)
	if limit < 1 {
		limit = 1
	}
	excess := 0
	for i := range hist {
		if hist[i] > limit {
			excess += hist[i] - limit
			hist[i] = limit
		}
	}
	share := excess / 256
	for i := range hist {
		hist[i] += share
	}

	// Cumulative distribution to mapping.
	cum := 0
	scale := 255.0 / float64(count)
	for i := range hist {
		cum += hist[i]
		lut[i] = clampU8(float64(cum) * scale)
	}
	return lut
}

func clampTile(t, tiles int) int {
	if t < 0 {
		return 0
	}
	if t >= tiles {
		return tiles - 1
	}
	return t
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
