package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/rewardhub/backend/repository/models"
)

// AwardFilter narrows ListAwards.
type AwardFilter struct {
	StudentID     string
	AchievementID string
	Status        string
}

func awardPreloads(q *gorm.DB) *gorm.DB {
	return q.Preload("Student").Preload("Achievement").Preload("Awarder")
}

// FindActiveAward returns the pending or confirmed award for a
// (student, achievement) pair, if any. Failed awards never match, so a retry
// after failure passes this guard.
func (r *Repository) FindActiveAward(studentID, achievementID string) (*models.StudentAward, *RepositoryError) {
	var award models.StudentAward
	err := r.db.
		Where("student_id = ? AND achievement_id = ? AND status IN ?",
			studentID, achievementID,
			[]string{models.AwardStatusPending, models.AwardStatusConfirmed}).
		First(&award).Error
	if err != nil {
		repoErr := wrapDBError(err, "no active award")
		if repoErr.Code == CodeNotFound {
			return nil, nil
		}
		return nil, repoErr
	}
	return &award, nil
}

// CreatePendingAward writes the durable intent row before any ledger call.
// A concurrent duplicate loses the race at the partial unique index and maps
// to CONFLICT.
func (r *Repository) CreatePendingAward(award *models.StudentAward) *RepositoryError {
	award.Status = models.AwardStatusPending
	award.TxHash = nil
	if err := r.db.Create(award).Error; err != nil {
		return wrapDBError(err, "")
	}
	return nil
}

// ResolveAward moves a pending award to a terminal status. Terminal rows
// never transition again.
func (r *Repository) ResolveAward(id, status string, txHash *string) *RepositoryError {
	if status != models.AwardStatusConfirmed && status != models.AwardStatusFailed {
		return &RepositoryError{Code: CodeValidation, Message: fmt.Sprintf("invalid terminal status %q", status)}
	}
	res := r.db.Model(&models.StudentAward{}).
		Where("award_id = ? AND status = ?", id, models.AwardStatusPending).
		Updates(map[string]any{"status": status, "tx_hash": txHash})
	if res.Error != nil {
		return wrapDBError(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return &RepositoryError{
			Code:    CodeInvalidState,
			Message: "award is not pending",
			Detail:  fmt.Sprintf("award %s has already been resolved or does not exist", id),
		}
	}
	return nil
}

// GetAward fetches one award with student, achievement and awarder resolved.
func (r *Repository) GetAward(id string) (*models.StudentAward, *RepositoryError) {
	var award models.StudentAward
	if err := awardPreloads(r.db).Where("award_id = ?", id).First(&award).Error; err != nil {
		return nil, wrapDBError(err, fmt.Sprintf("award %s does not exist", id))
	}
	return &award, nil
}

// ListAwards returns filtered awards, newest first.
func (r *Repository) ListAwards(filter AwardFilter) ([]models.StudentAward, *RepositoryError) {
	q := r.db.Model(&models.StudentAward{})
	if filter.StudentID != "" {
		q = q.Where("student_id = ?", filter.StudentID)
	}
	if filter.AchievementID != "" {
		q = q.Where("achievement_id = ?", filter.AchievementID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	var awards []models.StudentAward
	if err := awardPreloads(q).Order("created_at desc").Find(&awards).Error; err != nil {
		return nil, wrapDBError(err, "")
	}
	return awards, nil
}

// DeleteAward removes the database record only. A confirmed on-chain mint is
// irreversible and is deliberately left untouched.
func (r *Repository) DeleteAward(id string) *RepositoryError {
	res := r.db.Where("award_id = ?", id).Delete(&models.StudentAward{})
	if res.Error != nil {
		return wrapDBError(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return &RepositoryError{Code: CodeNotFound, Message: fmt.Sprintf("award %s does not exist", id)}
	}
	return nil
}

// ConfirmedRewardSum totals the token rewards of a student's confirmed
// awards.
func (r *Repository) ConfirmedRewardSum(studentID string) (int64, *RepositoryError) {
	var sum int64
	err := r.db.Model(&models.StudentAward{}).
		Joins("JOIN achievements ON achievements.achievement_id = student_awards.achievement_id").
		Where("student_awards.student_id = ? AND student_awards.status = ?", studentID, models.AwardStatusConfirmed).
		Select("COALESCE(SUM(achievements.token_reward), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, wrapDBError(err, "")
	}
	return sum, nil
}

// StalePendingAwards returns pending rows older than maxAge, for the
// reconciliation sweep.
func (r *Repository) StalePendingAwards(maxAge time.Duration) ([]models.StudentAward, *RepositoryError) {
	cutoff := time.Now().Add(-maxAge)
	var awards []models.StudentAward
	err := r.db.
		Where("status = ? AND created_at < ?", models.AwardStatusPending, cutoff).
		Find(&awards).Error
	if err != nil {
		return nil, wrapDBError(err, "")
	}
	return awards, nil
}
