// Package testutil provides the fixtures shared by the test suites.
package testutil

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/manabi/core"
	"github.com/trezcool/manabi/core/material"
	"github.com/trezcool/manabi/core/user"
	logsvc "github.com/trezcool/manabi/services/logger"
	"github.com/trezcool/manabi/storage/database"
)

// PrepareDB opens a fresh, migrated, in-memory sqlite3 database, closed at the end of the test.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conf := core.NewTestConfig()
	conf.Database.Path = "file:" + uuid.New().String() + "?mode=memory&cache=shared"

	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, conf); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

// NewLogger returns a logger that discards everything.
func NewLogger() core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), core.NewTestConfig())
}

// NewValidator returns a validator with all the app validators registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := core.Now()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateMaterial creates a material owned by owner; a template if owner is nil.
func CreateMaterial(t *testing.T, repo material.Repository, title string, owner *user.User) material.Material {
	t.Helper()

	now := core.Now()
	m := material.Material{Title: title, IsTemplate: owner == nil, CreatedAt: now, UpdatedAt: now}
	if owner != nil {
		m.OwnerID = owner.ID
		m.LastUpdatedByID = owner.ID
	}
	m, err := repo.CreateMaterial(context.Background(), m)
	if err != nil {
		t.Fatalf("CreateMaterial() failed: %v", err)
	}
	return m
}

// CreateNode inserts a node as is, bypassing the hierarchy checks.
func CreateNode(t *testing.T, repo material.Repository, m material.Material, parentID, title string, order int) material.Node {
	t.Helper()

	now := core.Now()
	n := material.Node{
		MaterialID: m.ID,
		ParentID:   parentID,
		Title:      title,
		Order:      order,
		OwnerID:    m.OwnerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	n, err := repo.CreateNode(context.Background(), n)
	if err != nil {
		t.Fatalf("CreateNode() failed: %v", err)
	}
	return n
}
