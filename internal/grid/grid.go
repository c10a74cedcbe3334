// Package grid creates the cells of the table map from its configured
// shape.  It runs once at startup (or from the migrate command) and is
// the only writer of cells besides the reservation engine.
package grid

import (
	"context"
	"fmt"
	"log"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/repository"
)

// Position is a zero-based (row, col) pair.
type Position struct {
	Row int `yaml:"row" json:"row"`
	Col int `yaml:"col" json:"col"`
}

// Layout is the configured grid shape.  Placeholders are positions inside
// Rows x Cols that never get a cell (aisles, stage, pillars).
type Layout struct {
	Rows         int
	Cols         int
	Placeholders []Position
}

// Validate checks dimensions and that every placeholder is on the grid.
func (l Layout) Validate() error {
	if l.Rows < 1 || l.Cols < 1 {
		return fmt.Errorf("grid: rows and cols must be >= 1, got %dx%d", l.Rows, l.Cols)
	}
	for _, p := range l.Placeholders {
		if p.Row < 0 || p.Row >= l.Rows || p.Col < 0 || p.Col >= l.Cols {
			return fmt.Errorf("grid: placeholder (%d,%d) outside %dx%d grid", p.Row, p.Col, l.Rows, l.Cols)
		}
	}
	return nil
}

// Positions returns every position of the layout that is not a
// placeholder, in row-major order.
func Positions(l Layout) []Position {
	skip := make(map[Position]bool, len(l.Placeholders))
	for _, p := range l.Placeholders {
		skip[p] = true
	}
	out := make([]Position, 0, l.Rows*l.Cols)
	for r := 0; r < l.Rows; r++ {
		for c := 0; c < l.Cols; c++ {
			if p := (Position{r, c}); !skip[p] {
				out = append(out, p)
			}
		}
	}
	return out
}

// columnLetters converts a zero-based column index to A..Z, AA, AB, ...
func columnLetters(i int) string {
	if i < 0 {
		return ""
	}
	res := []rune{}
	for {
		res = append(res, rune('A'+i%26))
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	for j, k := 0, len(res)-1; j < k; j, k = j+1, k-1 {
		res[j], res[k] = res[k], res[j]
	}
	return string(res)
}

// Label returns the display name of a cell: column letters, a dash and
// the one-based row padded to two digits, e.g. (0,0) -> "A-01",
// (9,2) -> "C-10".
func Label(row, col int) string {
	return fmt.Sprintf("%s-%02d", columnLetters(col), row+1)
}

// Seed creates the free cells of l when the grid is empty and then names
// any unnamed cell.  Existing labels are never changed, so running Seed
// again is a no-op.
func Seed(ctx context.Context, cells *repository.CellRepo, l Layout) error {
	if err := l.Validate(); err != nil {
		return err
	}
	n, err := cells.Count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		ps := Positions(l)
		batch := make([]model.Cell, len(ps))
		for i, p := range ps {
			batch[i] = model.Cell{Row: p.Row, Col: p.Col, Status: model.StatusFree, Label: Label(p.Row, p.Col)}
		}
		if err := cells.BulkInsert(ctx, batch); err != nil {
			return err
		}
		log.Printf("grid: created %d cells (%dx%d, %d placeholders)", len(batch), l.Rows, l.Cols, len(l.Placeholders))
	} else {
		log.Printf("grid: %d cells already exist", n)
	}

	all, err := cells.ListAll(ctx)
	if err != nil {
		return err
	}
	named := 0
	for _, c := range all {
		if c.Label != "" {
			continue
		}
		ok, err := cells.AssignLabel(ctx, c.ID, Label(c.Row, c.Col))
		if err != nil {
			return err
		}
		if ok {
			named++
		}
	}
	if named > 0 {
		log.Printf("grid: named %d cells", named)
	}
	return nil
}
