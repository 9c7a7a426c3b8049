package tenancy

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

func TestMembershipRepositoryRoles(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewMembershipRepository(db)
	userID := uuid.New()
	tenantID := uuid.New()

	mock.ExpectQuery("SELECT roles FROM tenant_memberships").
		WithArgs(userID, tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"roles"}).AddRow(pq.StringArray{"agent", "supervisor"}))

	roles, err := repo.Roles(context.Background(), userID, tenantID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roles) != 2 || roles[0] != "agent" || roles[1] != "supervisor" {
		t.Fatalf("unexpected roles: %v", roles)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMembershipRepositoryNoRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewMembershipRepository(db)
	userID := uuid.New()
	tenantID := uuid.New()

	mock.ExpectQuery("SELECT roles FROM tenant_memberships").
		WithArgs(userID, tenantID).
		WillReturnError(sql.ErrNoRows)

	_, err = repo.Roles(context.Background(), userID, tenantID)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
