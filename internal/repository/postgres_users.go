package repository

import (
	"context"
	"database/sql"
	"fmt"

	"meatchain/internal/domain"
	"meatchain/internal/tenancy"
)

// PostgresUsersRepository 全局用户Repository实现
// users 表不挂行级策略：身份全局唯一，租户归属由 tenant_users 表达
type PostgresUsersRepository struct {
	db *sql.DB
}

// NewPostgresUsersRepository 创建用户Repository
func NewPostgresUsersRepository(db *sql.DB) *PostgresUsersRepository {
	return &PostgresUsersRepository{db: db}
}

// 确保实现了接口
var _ UsersRepository = (*PostgresUsersRepository)(nil)

// GetUser 根据user_id获取用户
func (r *PostgresUsersRepository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	q := tenancy.Querier(ctx, r.db)
	var u domain.User
	err := q.QueryRowContext(ctx,
		`SELECT
			user_id::text,
			email,
			password_hash,
			COALESCE(full_name, '') as full_name,
			COALESCE(status, 'active') as status,
			created_at,
			last_login_at
		 FROM users
		 WHERE user_id = $1::uuid`,
		userID,
	).Scan(&u.UserID, &u.Email, &u.PasswordHash, &u.FullName, &u.Status, &u.CreatedAt, &u.LastLoginAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &u, nil
}

// GetUserByEmail 根据email获取用户（大小写不敏感，登录/兑换入口）
func (r *PostgresUsersRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	q := tenancy.Querier(ctx, r.db)
	var u domain.User
	err := q.QueryRowContext(ctx,
		`SELECT
			user_id::text,
			email,
			password_hash,
			COALESCE(full_name, '') as full_name,
			COALESCE(status, 'active') as status,
			created_at,
			last_login_at
		 FROM users
		 WHERE lower(email) = lower($1)`,
		email,
	).Scan(&u.UserID, &u.Email, &u.PasswordHash, &u.FullName, &u.Status, &u.CreatedAt, &u.LastLoginAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return &u, nil
}

// CreateUser 创建用户（password_hash 由 service 层先算好；email 重复报唯一冲突）
func (r *PostgresUsersRepository) CreateUser(ctx context.Context, u *domain.User) (string, error) {
	if u == nil {
		return "", fmt.Errorf("user is required")
	}
	if u.Email == "" {
		return "", fmt.Errorf("email is required")
	}
	if u.PasswordHash == "" {
		return "", fmt.Errorf("password_hash is required")
	}

	status := u.Status
	if status == "" {
		status = domain.UserStatusActive
	}

	q := tenancy.Querier(ctx, r.db)
	var userID string
	err := q.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash, full_name, status)
		 VALUES (lower($1), $2, NULLIF($3, ''), $4)
		 RETURNING user_id::text`,
		u.Email, u.PasswordHash, u.FullName, status,
	).Scan(&userID)
	if err != nil {
		if IsUniqueViolation(err) {
			return "", err
		}
		return "", fmt.Errorf("failed to create user: %w", err)
	}

	return userID, nil
}

// TouchLastLogin 刷新最近登录时间（失败不致命，调用方只记日志）
func (r *PostgresUsersRepository) TouchLastLogin(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}

	q := tenancy.Querier(ctx, r.db)
	_, err := q.ExecContext(ctx,
		`UPDATE users SET last_login_at = now() WHERE user_id = $1::uuid`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch last login: %w", err)
	}

	return nil
}
