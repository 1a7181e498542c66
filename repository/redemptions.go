package repository

import (
	"fmt"

	"github.com/rewardhub/backend/repository/models"
)

// CreateRedemption records one redemption outcome, approved or failed.
func (r *Repository) CreateRedemption(red *models.Redemption) *RepositoryError {
	if err := r.db.Create(red).Error; err != nil {
		return wrapDBError(err, "")
	}
	return nil
}

// GetRedemption fetches one redemption with student and reward resolved.
func (r *Repository) GetRedemption(id string) (*models.Redemption, *RepositoryError) {
	var red models.Redemption
	err := r.db.Preload("Student").Preload("Reward").
		Where("redemption_id = ?", id).First(&red).Error
	if err != nil {
		return nil, wrapDBError(err, fmt.Sprintf("redemption %s does not exist", id))
	}
	return &red, nil
}

// ListRedemptionsByStudent returns one student's redemptions, newest first.
func (r *Repository) ListRedemptionsByStudent(studentID string) ([]models.Redemption, *RepositoryError) {
	var reds []models.Redemption
	err := r.db.Preload("Reward").
		Where("student_id = ?", studentID).
		Order("created_at desc").Find(&reds).Error
	if err != nil {
		return nil, wrapDBError(err, "")
	}
	return reds, nil
}

// ListRedemptions returns every redemption, newest first.
func (r *Repository) ListRedemptions() ([]models.Redemption, *RepositoryError) {
	var reds []models.Redemption
	err := r.db.Preload("Student").Preload("Reward").
		Order("created_at desc").Find(&reds).Error
	if err != nil {
		return nil, wrapDBError(err, "")
	}
	return reds, nil
}

// ApprovedCostSum totals the token cost of a student's approved redemptions.
// Rejected and failed rows never reduce spendable balance.
func (r *Repository) ApprovedCostSum(studentID string) (int64, *RepositoryError) {
	var sum int64
	err := r.db.Model(&models.Redemption{}).
		Joins("JOIN rewards ON rewards.reward_id = redemptions.reward_id").
		Where("redemptions.student_id = ? AND redemptions.status = ?", studentID, models.RedemptionStatusApproved).
		Select("COALESCE(SUM(rewards.token_cost), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, wrapDBError(err, "")
	}
	return sum, nil
}

// TotalTokensRedeemed totals the cost of every approved redemption, for the
// dashboard.
func (r *Repository) TotalTokensRedeemed() (int64, *RepositoryError) {
	var sum int64
	err := r.db.Model(&models.Redemption{}).
		Joins("JOIN rewards ON rewards.reward_id = redemptions.reward_id").
		Where("redemptions.status = ?", models.RedemptionStatusApproved).
		Select("COALESCE(SUM(rewards.token_cost), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, wrapDBError(err, "")
	}
	return sum, nil
}
