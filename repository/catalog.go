package repository

import (
	"fmt"

	"github.com/rewardhub/backend/repository/models"
)

// CatalogFilter narrows achievement and reward listings.
type CatalogFilter struct {
	OnChainCreated *bool
	Page           int
	Limit          int
}

// CreateAchievement inserts a catalog entry; duplicate titles conflict.
func (r *Repository) CreateAchievement(a *models.Achievement) *RepositoryError {
	var existing models.Achievement
	if err := r.db.Where("title = ?", a.Title).First(&existing).Error; err == nil {
		return &RepositoryError{Code: CodeConflict, Message: "achievement with this title already exists"}
	}
	if err := r.db.Create(a).Error; err != nil {
		return wrapDBError(err, "")
	}
	return nil
}

// GetAchievement fetches one catalog entry with its creator.
func (r *Repository) GetAchievement(id string) (*models.Achievement, *RepositoryError) {
	var a models.Achievement
	if err := r.db.Preload("Creator").Where("achievement_id = ?", id).First(&a).Error; err != nil {
		return nil, wrapDBError(err, fmt.Sprintf("achievement %s does not exist", id))
	}
	return &a, nil
}

// ListAchievements returns a filtered page plus the unpaginated total.
func (r *Repository) ListAchievements(filter CatalogFilter) ([]models.Achievement, int64, *RepositoryError) {
	q := r.db.Model(&models.Achievement{})
	if filter.OnChainCreated != nil {
		q = q.Where("on_chain_created = ?", *filter.OnChainCreated)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, wrapDBError(err, "")
	}
	page, limit := normalizePage(filter.Page, filter.Limit)
	var out []models.Achievement
	err := q.Preload("Creator").Order("created_at desc").
		Offset((page - 1) * limit).Limit(limit).Find(&out).Error
	if err != nil {
		return nil, 0, wrapDBError(err, "")
	}
	return out, total, nil
}

// UpdateAchievement persists mutated fields of a loaded entry.
func (r *Repository) UpdateAchievement(a *models.Achievement) *RepositoryError {
	if err := r.db.Save(a).Error; err != nil {
		return wrapDBError(err, fmt.Sprintf("achievement %s does not exist", a.ID))
	}
	return nil
}

// DeleteAchievement removes the database row. On-chain deactivation is the
// workflow's responsibility; the ledger entry is never deleted.
func (r *Repository) DeleteAchievement(id string) *RepositoryError {
	res := r.db.Where("achievement_id = ?", id).Delete(&models.Achievement{})
	if res.Error != nil {
		return wrapDBError(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return &RepositoryError{Code: CodeNotFound, Message: fmt.Sprintf("achievement %s does not exist", id)}
	}
	return nil
}

// CreateReward inserts a perk; duplicate titles conflict.
func (r *Repository) CreateReward(rw *models.Reward) *RepositoryError {
	var existing models.Reward
	if err := r.db.Where("title = ?", rw.Title).First(&existing).Error; err == nil {
		return &RepositoryError{Code: CodeConflict, Message: "perk with this title already exists"}
	}
	if err := r.db.Create(rw).Error; err != nil {
		return wrapDBError(err, "")
	}
	return nil
}

// GetReward fetches one perk with its creator.
func (r *Repository) GetReward(id string) (*models.Reward, *RepositoryError) {
	var rw models.Reward
	if err := r.db.Preload("Creator").Where("reward_id = ?", id).First(&rw).Error; err != nil {
		return nil, wrapDBError(err, fmt.Sprintf("perk %s does not exist", id))
	}
	return &rw, nil
}

// ListRewards returns a filtered page plus the unpaginated total.
func (r *Repository) ListRewards(filter CatalogFilter) ([]models.Reward, int64, *RepositoryError) {
	q := r.db.Model(&models.Reward{})
	if filter.OnChainCreated != nil {
		q = q.Where("on_chain_created = ?", *filter.OnChainCreated)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, wrapDBError(err, "")
	}
	page, limit := normalizePage(filter.Page, filter.Limit)
	var out []models.Reward
	err := q.Preload("Creator").Order("created_at desc").
		Offset((page - 1) * limit).Limit(limit).Find(&out).Error
	if err != nil {
		return nil, 0, wrapDBError(err, "")
	}
	return out, total, nil
}

// UpdateReward persists mutated fields of a loaded perk.
func (r *Repository) UpdateReward(rw *models.Reward) *RepositoryError {
	if err := r.db.Save(rw).Error; err != nil {
		return wrapDBError(err, fmt.Sprintf("perk %s does not exist", rw.ID))
	}
	return nil
}

// DeleteReward removes the database row.
func (r *Repository) DeleteReward(id string) *RepositoryError {
	res := r.db.Where("reward_id = ?", id).Delete(&models.Reward{})
	if res.Error != nil {
		return wrapDBError(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return &RepositoryError{Code: CodeNotFound, Message: fmt.Sprintf("perk %s does not exist", id)}
	}
	return nil
}

// CountAchievements counts catalog entries.
func (r *Repository) CountAchievements() (int64, *RepositoryError) {
	var n int64
	if err := r.db.Model(&models.Achievement{}).Count(&n).Error; err != nil {
		return 0, wrapDBError(err, "")
	}
	return n, nil
}

// CountRewards counts perks.
func (r *Repository) CountRewards() (int64, *RepositoryError) {
	var n int64
	if err := r.db.Model(&models.Reward{}).Count(&n).Error; err != nil {
		return 0, wrapDBError(err, "")
	}
	return n, nil
}
