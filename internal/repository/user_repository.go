package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// NewUser carries the registration input.  Password is plain text and is
// hashed before it reaches the database.
type NewUser struct {
	FullName string
	Account  model.AccountID
	Email    string
	Password string
	Role     string
}

// CreateTx inserts user inside tx and returns its ID.  The caller creates
// the matching ledger in the same transaction.
func (r *UserRepo) CreateTx(ctx context.Context, tx *sql.Tx, u NewUser, cost int) (uint64, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	hash, err := utils.HashPassword(u.Password, cost)
	if err != nil {
		return 0, err
	}
	role := u.Role
	if role == "" {
		role = model.RoleUser
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (full_name, account_id, email, password_hash, role) VALUES (?,?,?,?,?)",
		strings.TrimSpace(u.FullName), string(u.Account), email, hash, role)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrAccountExists
		}
		return 0, Classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

const userColumns = "id,full_name,account_id,email,password_hash,role,created_at"

func scanUser(s rowScanner) (model.User, error) {
	var (
		u   model.User
		acc string
	)
	err := s.Scan(&u.ID, &u.FullName, &acc, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	u.Account = model.AccountID(acc)
	return u, err
}

// GetByAccount fetches a user by household account id.
func (r *UserRepo) GetByAccount(ctx context.Context, account model.AccountID) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE account_id=? LIMIT 1", string(account)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// SetRole changes the role of the user owning account.
func (r *UserRepo) SetRole(ctx context.Context, account model.AccountID, role string) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET role=? WHERE account_id=?", role, string(account))
	if err != nil {
		return Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
