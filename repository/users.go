package repository

import (
	"fmt"

	"github.com/rewardhub/backend/repository/models"
)

// UserFilter narrows ListUsers.
type UserFilter struct {
	Role            string
	WalletConnected *bool
	Page            int
	Limit           int
}

// CreateUser inserts a new account. The caller is responsible for hashing
// the password first.
func (r *Repository) CreateUser(user *models.User) *RepositoryError {
	if err := r.db.Create(user).Error; err != nil {
		return wrapDBError(err, "user does not exist")
	}
	return nil
}

// GetUserByID fetches one user.
func (r *Repository) GetUserByID(id string) (*models.User, *RepositoryError) {
	var user models.User
	if err := r.db.Where("user_id = ?", id).First(&user).Error; err != nil {
		return nil, wrapDBError(err, fmt.Sprintf("user %s does not exist", id))
	}
	return &user, nil
}

// GetUserByEmail fetches one user by unique email.
func (r *Repository) GetUserByEmail(email string) (*models.User, *RepositoryError) {
	var user models.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, wrapDBError(err, fmt.Sprintf("no user with email %s", email))
	}
	return &user, nil
}

// ListUsers returns a filtered, paginated page plus the unpaginated total.
func (r *Repository) ListUsers(filter UserFilter) ([]models.User, int64, *RepositoryError) {
	q := r.db.Model(&models.User{})
	if filter.Role != "" {
		q = q.Where("role = ?", filter.Role)
	}
	if filter.WalletConnected != nil {
		q = q.Where("wallet_connected = ?", *filter.WalletConnected)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, wrapDBError(err, "")
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	var users []models.User
	err := q.Order("created_at desc").Offset((page - 1) * limit).Limit(limit).Find(&users).Error
	if err != nil {
		return nil, 0, wrapDBError(err, "")
	}
	return users, total, nil
}

// UpdateUser persists mutated fields of an already-loaded user.
func (r *Repository) UpdateUser(user *models.User) *RepositoryError {
	if err := r.db.Save(user).Error; err != nil {
		return wrapDBError(err, fmt.Sprintf("user %s does not exist", user.ID))
	}
	return nil
}

// DeleteUser removes an account. Self-deletion is forbidden.
func (r *Repository) DeleteUser(id, requestedBy string) *RepositoryError {
	if id == requestedBy {
		return &RepositoryError{Code: CodeValidation, Message: "cannot delete your own account"}
	}
	res := r.db.Where("user_id = ?", id).Delete(&models.User{})
	if res.Error != nil {
		return wrapDBError(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return &RepositoryError{Code: CodeNotFound, Message: fmt.Sprintf("user %s does not exist", id)}
	}
	return nil
}

// WalletStudents returns every student with a linked wallet, for the
// dashboard balance fan-out.
func (r *Repository) WalletStudents() ([]models.User, *RepositoryError) {
	var students []models.User
	err := r.db.
		Where("role = ? AND wallet_connected = ? AND wallet_address IS NOT NULL", models.RoleStudent, true).
		Find(&students).Error
	if err != nil {
		return nil, wrapDBError(err, "")
	}
	return students, nil
}

// CountUsersByRole counts accounts holding one role.
func (r *Repository) CountUsersByRole(role string) (int64, *RepositoryError) {
	var n int64
	if err := r.db.Model(&models.User{}).Where("role = ?", role).Count(&n).Error; err != nil {
		return 0, wrapDBError(err, "")
	}
	return n, nil
}

// CountStudentsWithoutWallet counts students who never linked a wallet.
func (r *Repository) CountStudentsWithoutWallet() (int64, *RepositoryError) {
	var n int64
	err := r.db.Model(&models.User{}).
		Where("role = ? AND wallet_connected = ?", models.RoleStudent, false).
		Count(&n).Error
	if err != nil {
		return 0, wrapDBError(err, "")
	}
	return n, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return page, limit
}
