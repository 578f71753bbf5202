package spindle

// Mask is a binary foreground/background image
type Mask struct {
	Rows int
	Cols int
	Pix  []bool
}

// NewMask allocates empty (all background) mask
func NewMask(rows, cols int) *Mask {
	return &Mask{
		Rows: rows,
		Cols: cols,
		Pix:  make([]bool, rows*cols),
	}
}

// At returns true if pixel (row, col) is foreground
func (m *Mask) At(row, col int) bool {
	return m.Pix[row*m.Cols+col]
}

// Set marks pixel (row, col)
func (m *Mask) Set(row, col int, value bool) {
	m.Pix[row*m.Cols+col] = value
}

// Count returns number of foreground pixels
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

// fillHoles turns every background region which is not 4-connected to the
// image border into foreground
func fillHoles(m *Mask) {
	reachable := make([]bool, len(m.Pix))
	queue := make([]int, 0, 2*(m.Rows+m.Cols))
	visit := func(idx int) {
		if m.Pix[idx] || reachable[idx] {
			return
		}
		reachable[idx] = true
		queue = append(queue, idx)
	}
	for col := 0; col < m.Cols; col++ {
		visit(col)
		visit((m.Rows-1)*m.Cols + col)
	}
	for row := 0; row < m.Rows; row++ {
		visit(row * m.Cols)
		visit(row*m.Cols + m.Cols - 1)
	}
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		forEachNeighbour4(idx/m.Cols, idx%m.Cols, m.Rows, m.Cols, visit)
	}
	for idx := range m.Pix {
		if !m.Pix[idx] && !reachable[idx] {
			m.Pix[idx] = true
		}
	}
}

// labelComponents assigns 1-based labels to 4-connected foreground components.
// Labels follow raster order of each component's first pixel.
// Returns label image (0 is background) and pixel count per label (index 0 unused).
func labelComponents(m *Mask) ([]int, []int) {
	labels := make([]int, len(m.Pix))
	sizes := []int{0}
	queue := make([]int, 0, 64)
	current := 0
	for start := range m.Pix {
		if !m.Pix[start] || labels[start] != 0 {
			continue
		}
		current++
		size := 0
		labels[start] = current
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			size++
			forEachNeighbour4(idx/m.Cols, idx%m.Cols, m.Rows, m.Cols, func(nIdx int) {
				if m.Pix[nIdx] && labels[nIdx] == 0 {
					labels[nIdx] = current
					queue = append(queue, nIdx)
				}
			})
		}
		sizes = append(sizes, size)
	}
	return labels, sizes
}

// removeSmallObjects clears connected components with less than minArea pixels
func removeSmallObjects(m *Mask, minArea int) {
	if minArea <= 1 {
		return
	}
	labels, sizes := labelComponents(m)
	for idx, label := range labels {
		if label != 0 && sizes[label] < minArea {
			m.Pix[idx] = false
		}
	}
}
