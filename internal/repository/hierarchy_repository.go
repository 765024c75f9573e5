package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/outlet-feedback/internal/domain"
)

// OutletRepository reads outlets. Outlets are maintained by the import tooling.
type OutletRepository interface {
	GetByCode(ctx context.Context, code string) (*domain.Outlet, error)
	// List returns all outlets when codes is nil, otherwise only the given codes.
	List(ctx context.Context, codes []string) ([]domain.Outlet, error)
}

// AssignmentRepository reads hierarchy assignment edges.
type AssignmentRepository interface {
	OutletsForUser(ctx context.Context, username string, role domain.Role) ([]string, error)
	// UsernamesForOutlet returns usernames ordered ascending.
	UsernamesForOutlet(ctx context.Context, outletCode string, role domain.Role) ([]string, error)
	Exists(ctx context.Context, edge domain.AssignmentEdge) (bool, error)
}

// OfficerRepository reads registered hierarchy accounts.
type OfficerRepository interface {
	// FindByOutletAndRole returns the account registered at an outlet under role,
	// lowest username first when several exist.
	FindByOutletAndRole(ctx context.Context, outletCode string, role domain.Role) (*domain.Officer, error)
	ListByUsernames(ctx context.Context, usernames []string) ([]domain.Officer, error)
}

type outletRepository struct {
	pool *pgxpool.Pool
}

// NewOutletRepository instantiates repository.
func NewOutletRepository(pool *pgxpool.Pool) OutletRepository {
	return &outletRepository{pool: pool}
}

func (r *outletRepository) GetByCode(ctx context.Context, code string) (*domain.Outlet, error) {
	const query = `SELECT ro_code, name, city, COALESCE(region,'') FROM branch WHERE ro_code=$1`
	var outlet domain.Outlet
	if err := r.pool.QueryRow(ctx, query, code).Scan(&outlet.Code, &outlet.Name, &outlet.City, &outlet.Region); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &outlet, nil
}

func (r *outletRepository) List(ctx context.Context, codes []string) ([]domain.Outlet, error) {
	query := `SELECT ro_code, name, city, COALESCE(region,'') FROM branch`
	args := []any{}
	if codes != nil {
		if len(codes) == 0 {
			return []domain.Outlet{}, nil
		}
		query += ` WHERE ro_code = ANY($1)`
		args = append(args, codes)
	}
	query += ` ORDER BY ro_code ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Outlet{}
	for rows.Next() {
		var outlet domain.Outlet
		if err := rows.Scan(&outlet.Code, &outlet.Name, &outlet.City, &outlet.Region); err != nil {
			return nil, err
		}
		result = append(result, outlet)
	}
	return result, rows.Err()
}

type assignmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssignmentRepository instantiates repository.
func NewAssignmentRepository(pool *pgxpool.Pool) AssignmentRepository {
	return &assignmentRepository{pool: pool}
}

func (r *assignmentRepository) OutletsForUser(ctx context.Context, username string, role domain.Role) ([]string, error) {
	const query = `SELECT ro_code FROM user_ro_mapping WHERE username=$1 AND role=$2 ORDER BY ro_code ASC`
	return r.collectStrings(ctx, query, username, role)
}

func (r *assignmentRepository) UsernamesForOutlet(ctx context.Context, outletCode string, role domain.Role) ([]string, error) {
	const query = `SELECT username FROM user_ro_mapping WHERE ro_code=$1 AND role=$2 ORDER BY username ASC`
	return r.collectStrings(ctx, query, outletCode, role)
}

func (r *assignmentRepository) Exists(ctx context.Context, edge domain.AssignmentEdge) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM user_ro_mapping WHERE username=$1 AND role=$2 AND ro_code=$3)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, edge.Username, edge.Role, edge.OutletCode).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *assignmentRepository) collectStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []string{}
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		result = append(result, value)
	}
	return result, rows.Err()
}

type officerRepository struct {
	pool *pgxpool.Pool
}

// NewOfficerRepository instantiates repository.
func NewOfficerRepository(pool *pgxpool.Pool) OfficerRepository {
	return &officerRepository{pool: pool}
}

const officerColumns = `username, COALESCE(full_name,''), role, COALESCE(branch_code,''), COALESCE(city,''), is_active`

func (r *officerRepository) FindByOutletAndRole(ctx context.Context, outletCode string, role domain.Role) (*domain.Officer, error) {
	query := `SELECT ` + officerColumns + ` FROM admin_users WHERE branch_code=$1 AND role=$2 ORDER BY username ASC LIMIT 1`
	var officer domain.Officer
	if err := r.pool.QueryRow(ctx, query, outletCode, role).Scan(
		&officer.Username,
		&officer.FullName,
		&officer.Role,
		&officer.HomeOutlet,
		&officer.City,
		&officer.Active,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &officer, nil
}

func (r *officerRepository) ListByUsernames(ctx context.Context, usernames []string) ([]domain.Officer, error) {
	if len(usernames) == 0 {
		return []domain.Officer{}, nil
	}
	query := `SELECT ` + officerColumns + ` FROM admin_users WHERE username = ANY($1) ORDER BY username ASC`
	rows, err := r.pool.Query(ctx, query, usernames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Officer{}
	for rows.Next() {
		var officer domain.Officer
		if err := rows.Scan(
			&officer.Username,
			&officer.FullName,
			&officer.Role,
			&officer.HomeOutlet,
			&officer.City,
			&officer.Active,
		); err != nil {
			return nil, err
		}
		result = append(result, officer)
	}
	return result, rows.Err()
}
