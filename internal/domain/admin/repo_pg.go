package admin

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicapi/clinic/internal/platform/apperr"
	"github.com/clinicapi/clinic/internal/platform/db"
	"github.com/clinicapi/clinic/internal/platform/policy"
)

// -- User Repository --

const userColumns = `u.id, u.full_name, u.username, u.email, u.password_hash, u.roles, u.created_at, u.updated_at`

var userScope = policy.Columns{Subject: "u.id"}

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func userError(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, "app_user_email_key"):
		return apperr.Conflict("email is already registered")
	case db.IsUniqueViolation(err, "app_user_username_key"):
		return apperr.Conflict("username is already taken")
	}
	return db.Translate(err, "user")
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	query, args, err := db.PSQL.Insert("app_user").
		Columns("id", "full_name", "username", "email", "password_hash", "roles").
		Values(u.ID, u.FullName, u.Username, u.Email, u.PasswordHash, u.roleNames()).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user: %w", err)
	}
	return userError(db.Conn(ctx, r.pool).QueryRow(ctx, query, args...).Scan(&u.CreatedAt, &u.UpdatedAt))
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.getOne(ctx, sq.Expr("u.id = ?", id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getOne(ctx, sq.Expr("lower(u.email) = ?", normalizeEmail(email)))
}

func (r *userRepoPG) getOne(ctx context.Context, where sq.Sqlizer) (*User, error) {
	query, args, err := db.PSQL.Select(userColumns).From("app_user u").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user: %w", err)
	}
	u, err := scanUser(db.Conn(ctx, r.pool).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, userError(err)
	}
	return u, nil
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	query, args, err := db.PSQL.Update("app_user").
		Set("full_name", u.FullName).
		Set("username", u.Username).
		Set("email", u.Email).
		Set("password_hash", u.PasswordHash).
		Set("roles", u.roleNames()).
		Set("updated_at", sq.Expr("NOW()")).
		Where("id = ?", u.ID).
		Suffix("RETURNING updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user: %w", err)
	}
	return userError(db.Conn(ctx, r.pool).QueryRow(ctx, query, args...).Scan(&u.UpdatedAt))
}

func (r *userRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM app_user WHERE id = $1`, id)
	if err != nil {
		return userError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

func (r *userRepoPG) List(ctx context.Context, scope policy.Scope, limit, offset int) ([]*User, int, error) {
	q := db.Conn(ctx, r.pool)

	total, err := db.Count(ctx, q, scope.Apply(db.PSQL.Select("count(*)").From("app_user u"), userScope))
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	query, args, err := scope.Apply(db.PSQL.Select(userColumns).From("app_user u"), userScope).
		OrderBy("u.username").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list users: %w", err)
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []*User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var roles []string
	if err := row.Scan(&u.ID, &u.FullName, &u.Username, &u.Email, &u.PasswordHash, &roles, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Roles = parseRoles(roles)
	return &u, nil
}

// -- Department Repository --

const deptColumns = `d.id, d.name, d.created_at, d.updated_at`

type deptRepoPG struct {
	pool *pgxpool.Pool
}

func NewDepartmentRepo(pool *pgxpool.Pool) DepartmentRepository {
	return &deptRepoPG{pool: pool}
}

func deptError(err error, name string) error {
	if db.IsUniqueViolation(err, "department_name_key") {
		return apperr.Conflict("department %q already exists", name)
	}
	return db.Translate(err, "department")
}

func (r *deptRepoPG) Create(ctx context.Context, d *Department) error {
	d.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO department (id, name) VALUES ($1, $2) RETURNING created_at, updated_at`,
		d.ID, d.Name,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return deptError(err, d.Name)
	}
	return nil
}

func (r *deptRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Department, error) {
	d, err := scanDept(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+deptColumns+` FROM department d WHERE d.id = $1`, id))
	if err != nil {
		return nil, deptError(err, "")
	}
	return d, nil
}

func (r *deptRepoPG) Update(ctx context.Context, d *Department) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`UPDATE department SET name = $2, updated_at = NOW() WHERE id = $1 RETURNING updated_at`,
		d.ID, d.Name,
	).Scan(&d.UpdatedAt)
	if err != nil {
		return deptError(err, d.Name)
	}
	return nil
}

func (r *deptRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM department WHERE id = $1`, id)
	if err != nil {
		return deptError(err, "")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("department not found")
	}
	return nil
}

func (r *deptRepoPG) List(ctx context.Context, scope policy.Scope, limit, offset int) ([]*Department, int, error) {
	q := db.Conn(ctx, r.pool)
	cols := policy.Columns{}

	total, err := db.Count(ctx, q, scope.Apply(db.PSQL.Select("count(*)").From("department d"), cols))
	if err != nil {
		return nil, 0, fmt.Errorf("count departments: %w", err)
	}

	query, args, err := scope.Apply(db.PSQL.Select(deptColumns).From("department d"), cols).
		OrderBy("lower(d.name)").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list departments: %w", err)
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()

	depts := []*Department{}
	for rows.Next() {
		d, err := scanDept(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan department: %w", err)
		}
		depts = append(depts, d)
	}
	return depts, total, rows.Err()
}

func scanDept(row pgx.Row) (*Department, error) {
	var d Department
	if err := row.Scan(&d.ID, &d.Name, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
