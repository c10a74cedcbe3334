package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/table-reservation/internal/database"
	"github.com/iliyamo/table-reservation/internal/model"
)

// CellRepo encapsulates database operations for the `cells` table (the
// grid store).  Uniqueness of (row_idx, col_idx) and the ownership
// invariant are enforced by the schema, not only here.
type CellRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewCellRepo constructs a CellRepo given a DB handle and its dialect.
func NewCellRepo(db *sql.DB, d database.Dialect) *CellRepo {
	return &CellRepo{db: db, dialect: d}
}

// CellFilter selects cells for ListTx and UpdateManyTx.  Nil or empty
// fields do not constrain the selection.
type CellFilter struct {
	Owner  *model.AccountID
	Status *model.OccupancyStatus
	IDs    []uint64
}

func (f CellFilter) empty() bool {
	return f.Owner == nil && f.Status == nil && len(f.IDs) == 0
}

func (f CellFilter) where() (string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.Owner != nil {
		conds = append(conds, "owner_account = ?")
		args = append(args, string(*f.Owner))
	}
	if f.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*f.Status))
	}
	if len(f.IDs) > 0 {
		conds = append(conds, "id IN ("+strings.TrimSuffix(strings.Repeat("?,", len(f.IDs)), ",")+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Ownership replaces both ownership columns of a cell.  A zero value
// clears them.
type Ownership struct {
	SeatType *model.SeatType
	Owner    *model.AccountID
}

// CellPatch describes a state change.  When Ownership is nil the owner
// and seat type are left untouched (e.g. held -> purchased).
type CellPatch struct {
	Status    model.OccupancyStatus
	Ownership *Ownership
}

// FreePatch returns the patch that releases a cell.
func FreePatch() CellPatch {
	return CellPatch{Status: model.StatusFree, Ownership: &Ownership{}}
}

// ClaimPatch returns the patch that gives a cell to owner.
func ClaimPatch(status model.OccupancyStatus, seat model.SeatType, owner model.AccountID) CellPatch {
	return CellPatch{Status: status, Ownership: &Ownership{SeatType: model.SeatTypePtr(seat), Owner: model.AccountPtr(owner)}}
}

func (p CellPatch) set() (string, []interface{}) {
	cols := []string{"status = ?"}
	args := []interface{}{string(p.Status)}
	if p.Ownership != nil {
		cols = append(cols, "seat_type = ?", "owner_account = ?")
		args = append(args, nullSeat(p.Ownership.SeatType), nullAccount(p.Ownership.Owner))
	}
	return strings.Join(cols, ", "), args
}

const cellColumns = `id, row_idx, col_idx, status, seat_type, owner_account, label`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCell(s rowScanner) (model.Cell, error) {
	var (
		c      model.Cell
		status string
		seat   sql.NullString
		owner  sql.NullString
	)
	if err := s.Scan(&c.ID, &c.Row, &c.Col, &status, &seat, &owner, &c.Label); err != nil {
		return model.Cell{}, err
	}
	c.Status = model.OccupancyStatus(status)
	if seat.Valid {
		c.SeatType = model.SeatTypePtr(model.SeatType(seat.String))
	}
	if owner.Valid {
		c.Owner = model.AccountPtr(model.AccountID(owner.String))
	}
	return c, nil
}

func nullSeat(s *model.SeatType) interface{} {
	if s == nil {
		return nil
	}
	return string(*s)
}

func nullAccount(a *model.AccountID) interface{} {
	if a == nil {
		return nil
	}
	return string(*a)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Get fetches the cell at (row, col).  ErrNotFound is returned when the
// position has no cell (e.g. a placeholder).
func (r *CellRepo) Get(ctx context.Context, row, col int) (model.Cell, error) {
	return r.get(ctx, r.db, row, col, "")
}

// GetTx is like Get but reads through tx and locks the row until the
// transaction ends.
func (r *CellRepo) GetTx(ctx context.Context, tx *sql.Tx, row, col int) (model.Cell, error) {
	return r.get(ctx, tx, row, col, r.dialect.LockSuffix())
}

func (r *CellRepo) get(ctx context.Context, q queryer, row, col int, lock string) (model.Cell, error) {
	c, err := scanCell(q.QueryRowContext(ctx,
		"SELECT "+cellColumns+" FROM cells WHERE row_idx = ? AND col_idx = ? LIMIT 1"+lock, row, col))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Cell{}, ErrNotFound
	}
	if err != nil {
		return model.Cell{}, Classify(err)
	}
	return c, nil
}

// ListAll returns every cell ordered by row then column.
func (r *CellRepo) ListAll(ctx context.Context) ([]model.Cell, error) {
	return r.list(ctx, r.db, CellFilter{}, "")
}

// ListAllTx is like ListAll but reads through tx without locking.
func (r *CellRepo) ListAllTx(ctx context.Context, tx *sql.Tx) ([]model.Cell, error) {
	return r.list(ctx, tx, CellFilter{}, "")
}

// ListTx returns the cells matching f and locks them for the rest of the
// transaction.
func (r *CellRepo) ListTx(ctx context.Context, tx *sql.Tx, f CellFilter) ([]model.Cell, error) {
	return r.list(ctx, tx, f, r.dialect.LockSuffix())
}

func (r *CellRepo) list(ctx context.Context, q queryer, f CellFilter, lock string) ([]model.Cell, error) {
	where, args := f.where()
	rows, err := q.QueryContext(ctx, "SELECT "+cellColumns+" FROM cells"+where+" ORDER BY row_idx, col_idx"+lock, args...)
	if err != nil {
		return nil, Classify(err)
	}
	defer rows.Close()
	cells := []model.Cell{}
	for rows.Next() {
		c, err := scanCell(rows)
		if err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, Classify(err)
	}
	return cells, nil
}

// Count returns the number of cells on the grid.
func (r *CellRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cells").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// bulkChunk bounds the number of rows per INSERT so the placeholder count
// stays well below the engines' limits.
const bulkChunk = 200

// BulkInsert inserts the given cells in a single transaction.  If any
// (row, col) already exists the whole insert fails with ErrDuplicateCell
// and nothing is written.  ID fields of the passed cells are ignored.
func (r *CellRepo) BulkInsert(ctx context.Context, cells []model.Cell) error {
	if len(cells) == 0 {
		return nil
	}
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		for start := 0; start < len(cells); start += bulkChunk {
			end := start + bulkChunk
			if end > len(cells) {
				end = len(cells)
			}
			query := `INSERT INTO cells (row_idx, col_idx, status, seat_type, owner_account, label) VALUES `
			args := make([]interface{}, 0, (end-start)*6)
			for i, c := range cells[start:end] {
				if i > 0 {
					query += ","
				}
				query += "(?, ?, ?, ?, ?, ?)"
				status := c.Status
				if status == "" {
					status = model.StatusFree
				}
				args = append(args, c.Row, c.Col, string(status), nullSeat(c.SeatType), nullAccount(c.Owner), c.Label)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				if isDuplicate(err) {
					return fmt.Errorf("%w: %v", ErrDuplicateCell, err)
				}
				return Classify(err)
			}
		}
		return nil
	})
}

// UpdateManyTx applies patch to every cell matching f inside the caller's
// transaction and returns the number of rows changed.  An empty filter is
// rejected so a programming error cannot rewrite the whole grid.
func (r *CellRepo) UpdateManyTx(ctx context.Context, tx *sql.Tx, f CellFilter, p CellPatch) (int64, error) {
	if f.empty() {
		return 0, errors.New("update cells: empty filter")
	}
	set, args := p.set()
	where, wargs := f.where()
	res, err := tx.ExecContext(ctx, "UPDATE cells SET "+set+where, append(args, wargs...)...)
	if err != nil {
		return 0, Classify(err)
	}
	return res.RowsAffected()
}

// CompareAndSetTx applies patch to cur only if the stored row still has
// the status, owner and seat type that were read.  Zero affected rows
// means another writer got there first and ErrConflict is returned.
func (r *CellRepo) CompareAndSetTx(ctx context.Context, tx *sql.Tx, cur model.Cell, p CellPatch) error {
	set, args := p.set()
	owner, seat := nullAccount(cur.Owner), nullSeat(cur.SeatType)
	args = append(args, cur.ID, string(cur.Status), owner, owner, seat, seat)
	res, err := tx.ExecContext(ctx, "UPDATE cells SET "+set+
		` WHERE id = ? AND status = ?
		   AND (owner_account = ? OR (owner_account IS NULL AND ? IS NULL))
		   AND (seat_type = ? OR (seat_type IS NULL AND ? IS NULL))`, args...)
	if err != nil {
		return Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// AssignLabel sets the label of a cell that does not have one yet.  It
// returns false when the cell already carries a label; labels never
// change once assigned.
func (r *CellRepo) AssignLabel(ctx context.Context, id uint64, label string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE cells SET label = ? WHERE id = ? AND label = ''`, label, id)
	if err != nil {
		return false, Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
