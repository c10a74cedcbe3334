package model

import "time"

// User represents a registered person as stored in the `users` table.
// A user belongs to exactly one household account; the account is the
// unit that owns cells and credits.
//
// Fields:
//  ID           – primary key identifier of the user.
//  FullName     – display name.
//  Account      – unique household identifier.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – ADMIN or USER.
//  CreatedAt    – timestamp of creation.
type User struct {
    ID           uint64    // users.id
    FullName     string    // users.full_name
    Account      AccountID // users.account_id
    Email        string    // users.email
    PasswordHash string    // users.password_hash
    Role         string    // users.role
    CreatedAt    time.Time // users.created_at
}

const (
    RoleAdmin = "ADMIN"
    RoleUser  = "USER"
)
