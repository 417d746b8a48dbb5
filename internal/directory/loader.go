// Package directory loads the employee roster the auth service validates
// against. The roster is read once at startup; if it is missing or
// unreadable the loader degrades to a single seed admin account instead of
// blocking the console.
package directory

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"cnc-operator-console/internal/model"
)

const (
	SeedAdminUsername = "admin"
	seedAdminPassword = "admin123"
)

var (
	adminPermissions = []string{"read", "write", "delete", "manage_users", "emergency_stop", "system_config"}
	userPermissions  = []string{"read", "operate_machine", "basic_reports"}
)

// Record is one raw roster entry as the directory supplies it. The password
// field may be plaintext or an existing bcrypt hash.
type Record struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Department string `json:"department"`
	Password   string `json:"password"`
}

type Loader struct {
	path string
}

func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load reads the roster file and derives each account's permission set from
// its role. Any failure to read or parse the roster falls back to the seed
// admin; Load never fails.
func (l *Loader) Load() []model.Account {
	records, err := l.read()
	if err != nil {
		slog.Warn("employee directory unavailable, using seed admin", "path", l.path, "error", err)
		return SeedAccounts()
	}

	accounts := make([]model.Account, 0, len(records))
	for _, record := range records {
		account, err := toAccount(record)
		if err != nil {
			slog.Warn("skipping invalid roster record", "username", record.Username, "error", err)
			continue
		}
		accounts = append(accounts, account)
	}

	if len(accounts) == 0 {
		slog.Warn("employee directory empty, using seed admin", "path", l.path)
		return SeedAccounts()
	}

	slog.Info("employee directory loaded", "accounts", len(accounts))
	return accounts
}

func (l *Loader) read() ([]Record, error) {
	if strings.TrimSpace(l.path) == "" {
		return nil, fmt.Errorf("roster path not configured")
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	return records, nil
}

func toAccount(record Record) (model.Account, error) {
	username := strings.ToLower(strings.TrimSpace(record.Username))
	if username == "" {
		return model.Account{}, fmt.Errorf("missing username")
	}

	role := model.Role(strings.ToLower(strings.TrimSpace(record.Role)))
	if !role.Valid() {
		role = model.RoleUser
	}

	hash, err := passwordHash(record.Password)
	if err != nil {
		return model.Account{}, err
	}

	return model.Account{
		ID:           record.ID,
		Username:     username,
		Email:        record.Email,
		Role:         role,
		Department:   record.Department,
		Permissions:  PermissionsForRole(role),
		Active:       true,
		PasswordHash: hash,
	}, nil
}

// passwordHash accepts either a plaintext roster password (hashed here) or
// a pre-hashed bcrypt value, detected by prefix.
func passwordHash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("missing password")
	}
	if strings.HasPrefix(password, "$2a$") || strings.HasPrefix(password, "$2b$") || strings.HasPrefix(password, "$2y$") {
		return password, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return "", fmt.Errorf("hash roster password: %w", err)
	}
	return string(hash), nil
}

// PermissionsForRole derives the fixed permission set granted to a role.
func PermissionsForRole(role model.Role) []string {
	if role == model.RoleAdmin {
		return append([]string(nil), adminPermissions...)
	}
	return append([]string(nil), userPermissions...)
}

// SeedAccounts is the fallback roster: one admin with full permissions.
func SeedAccounts() []model.Account {
	hash, err := bcrypt.GenerateFromPassword([]byte(seedAdminPassword), 12)
	if err != nil {
		// bcrypt only fails on invalid cost; this input is fixed.
		panic(fmt.Sprintf("seed admin hash: %v", err))
	}

	return []model.Account{{
		ID:           "seed-admin",
		Username:     SeedAdminUsername,
		Email:        "admin@localhost",
		Role:         model.RoleAdmin,
		Department:   "operations",
		Permissions:  PermissionsForRole(model.RoleAdmin),
		Active:       true,
		PasswordHash: string(hash),
	}}
}
