package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rewardhub/backend/ledger"
	"github.com/rewardhub/backend/repository"
	"github.com/rewardhub/backend/repository/models"
)

type catalogEntryRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	TokenAmount *int64 `json:"tokenAmount" binding:"required"`
	SyncOnChain *bool  `json:"syncOnChain"`
}

func (req *catalogEntryRequest) wantsSync() bool {
	return req.SyncOnChain == nil || *req.SyncOnChain
}

func catalogFilterFromQuery(c *gin.Context) repository.CatalogFilter {
	filter := repository.CatalogFilter{}
	filter.Page, filter.Limit = pageParams(c)
	if v := c.Query("onChainCreated"); v != "" {
		mirrored := v == "true"
		filter.OnChainCreated = &mirrored
	}
	return filter
}

// --- achievements ---

// handleCreateAchievement creates the database entry and, unless the caller
// opts out with syncOnChain=false, mirrors it on the ledger. A ledger
// failure leaves the entry with onChainCreated=false and a warning; the
// award workflow bootstraps missing mirrors on first use.
func (ws *WebServer) handleCreateAchievement(c *gin.Context) {
	var req catalogEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid achievement payload: "+err.Error())
		return
	}
	if *req.TokenAmount < 0 {
		badRequest(c, "tokenAmount must be non-negative")
		return
	}

	creator := ws.currentUser(c)
	a := &models.Achievement{
		Title:       req.Title,
		Description: req.Description,
		TokenReward: *req.TokenAmount,
		CreatedBy:   &creator.ID,
	}
	if repoErr := ws.repo.CreateAchievement(a); repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}

	resp := gin.H{"msg": "achievement created", "achievement": a}
	if req.wantsSync() {
		txHash, err := ws.gateway.AddCatalogEntry(c.Request.Context(), ledger.KindAchievement, a.Title, a.TokenReward)
		if err != nil {
			ws.logger.Warn("achievement created in database only", "title", a.Title, "err", err)
			resp["warning"] = "achievement saved, but on-chain creation failed: " + err.Error()
		} else {
			a.OnChainCreated = true
			a.OnChainTx = &txHash
			if repoErr := ws.repo.UpdateAchievement(a); repoErr != nil {
				ws.logger.Error("failed to record on-chain tx for achievement", "title", a.Title, "err", repoErr)
			}
		}
	}
	c.JSON(http.StatusCreated, resp)
}

func (ws *WebServer) handleListAchievements(c *gin.Context) {
	achievements, total, repoErr := ws.repo.ListAchievements(catalogFilterFromQuery(c))
	if repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"achievements": achievements, "total": total})
}

func (ws *WebServer) handleGetAchievement(c *gin.Context) {
	a, repoErr := ws.repo.GetAchievement(c.Param("id"))
	if repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"achievement": a})
}

type catalogUpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	TokenAmount *int64  `json:"tokenAmount"`
}

// handleUpdateAchievement persists field changes and, when the entry is
// already mirrored and the title or amount changed, pushes the same change
// on-chain keyed by the previous title.
func (ws *WebServer) handleUpdateAchievement(c *gin.Context) {
	a, repoErr := ws.repo.GetAchievement(c.Param("id"))
	if repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}

	var req catalogUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid achievement payload: "+err.Error())
		return
	}

	oldTitle := a.Title
	chainDirty := false
	if req.Title != nil && *req.Title != a.Title {
		a.Title = *req.Title
		chainDirty = true
	}
	if req.Description != nil {
		a.Description = *req.Description
	}
	if req.TokenAmount != nil && *req.TokenAmount != a.TokenReward {
		if *req.TokenAmount < 0 {
			badRequest(c, "tokenAmount must be non-negative")
			return
		}
		a.TokenReward = *req.TokenAmount
		chainDirty = true
	}

	if repoErr := ws.repo.UpdateAchievement(a); repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}

	resp := gin.H{"msg": "achievement updated", "achievement": a}
	if chainDirty && a.OnChainCreated {
		txHash, err := ws.gateway.UpdateCatalogEntry(c.Request.Context(), ledger.KindAchievement, oldTitle, a.Title, a.TokenReward)
		if err != nil {
			ws.logger.Warn("achievement updated in database only", "title", a.Title, "err", err)
			resp["warning"] = "achievement saved, but on-chain update failed: " + err.Error()
		} else {
			now := time.Now()
			a.OnChainUpdateTx = &txHash
			a.OnChainUpdatedAt = &now
			if repoErr := ws.repo.UpdateAchievement(a); repoErr != nil {
				ws.logger.Error("failed to record on-chain update tx", "title", a.Title, "err", repoErr)
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

// handleDeleteAchievement deactivates the on-chain mirror before deleting
// the database row. The ledger entry itself is permanent; deactivation only
// stops future grants.
func (ws *WebServer) handleDeleteAchievement(c *gin.Context) {
	a, repoErr := ws.repo.GetAchievement(c.Param("id"))
	if repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}

	resp := gin.H{"msg": "achievement deleted"}
	if a.OnChainCreated {
		if _, err := ws.gateway.DeactivateCatalogEntry(c.Request.Context(), ledger.KindAchievement, a.Title); err != nil {
			ws.logger.Warn("on-chain deactivation failed", "title", a.Title, "err", err)
			resp["warning"] = "deleted from database, but on-chain deactivation failed: " + err.Error()
		}
	}
	if repoErr := ws.repo.DeleteAchievement(a.ID); repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// --- perks ---

func (ws *WebServer) handleCreatePerk(c *gin.Context) {
	var req catalogEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid perk payload: "+err.Error())
		return
	}
	if *req.TokenAmount < 0 {
		badRequest(c, "tokenAmount must be non-negative")
		return
	}

	creator := ws.currentUser(c)
	rw := &models.Reward{
		Title:       req.Title,
		Description: req.Description,
		TokenCost:   *req.TokenAmount,
		CreatedBy:   &creator.ID,
	}
	if repoErr := ws.repo.CreateReward(rw); repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}

	resp := gin.H{"msg": "perk created", "perk": rw}
	if req.wantsSync() {
		txHash, err := ws.gateway.AddCatalogEntry(c.Request.Context(), ledger.KindPerk, rw.Title, rw.TokenCost)
		if err != nil {
			ws.logger.Warn("perk created in database only", "title", rw.Title, "err", err)
			resp["warning"] = "perk saved, but on-chain creation failed: " + err.Error()
		} else {
			rw.OnChainCreated = true
			rw.OnChainTx = &txHash
			if repoErr := ws.repo.UpdateReward(rw); repoErr != nil {
				ws.logger.Error("failed to record on-chain tx for perk", "title", rw.Title, "err", repoErr)
			}
		}
	}
	c.JSON(http.StatusCreated, resp)
}

func (ws *WebServer) handleListPerks(c *gin.Context) {
	perks, total, repoErr := ws.repo.ListRewards(catalogFilterFromQuery(c))
	if repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"perks": perks, "total": total})
}

func (ws *WebServer) handleGetPerk(c *gin.Context) {
	rw, repoErr := ws.repo.GetReward(c.Param("id"))
	if repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"perk": rw})
}

func (ws *WebServer) handleUpdatePerk(c *gin.Context) {
	rw, repoErr := ws.repo.GetReward(c.Param("id"))
	if repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}

	var req catalogUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid perk payload: "+err.Error())
		return
	}

	oldTitle := rw.Title
	chainDirty := false
	if req.Title != nil && *req.Title != rw.Title {
		rw.Title = *req.Title
		chainDirty = true
	}
	if req.Description != nil {
		rw.Description = *req.Description
	}
	if req.TokenAmount != nil && *req.TokenAmount != rw.TokenCost {
		if *req.TokenAmount < 0 {
			badRequest(c, "tokenAmount must be non-negative")
			return
		}
		rw.TokenCost = *req.TokenAmount
		chainDirty = true
	}

	if repoErr := ws.repo.UpdateReward(rw); repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}

	resp := gin.H{"msg": "perk updated", "perk": rw}
	if chainDirty && rw.OnChainCreated {
		txHash, err := ws.gateway.UpdateCatalogEntry(c.Request.Context(), ledger.KindPerk, oldTitle, rw.Title, rw.TokenCost)
		if err != nil {
			ws.logger.Warn("perk updated in database only", "title", rw.Title, "err", err)
			resp["warning"] = "perk saved, but on-chain update failed: " + err.Error()
		} else {
			now := time.Now()
			rw.OnChainUpdateTx = &txHash
			rw.OnChainUpdatedAt = &now
			if repoErr := ws.repo.UpdateReward(rw); repoErr != nil {
				ws.logger.Error("failed to record on-chain update tx", "title", rw.Title, "err", repoErr)
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (ws *WebServer) handleDeletePerk(c *gin.Context) {
	rw, repoErr := ws.repo.GetReward(c.Param("id"))
	if repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}

	resp := gin.H{"msg": "perk deleted"}
	if rw.OnChainCreated {
		if _, err := ws.gateway.DeactivateCatalogEntry(c.Request.Context(), ledger.KindPerk, rw.Title); err != nil {
			ws.logger.Warn("on-chain deactivation failed", "title", rw.Title, "err", err)
			resp["warning"] = "deleted from database, but on-chain deactivation failed: " + err.Error()
		}
	}
	if repoErr := ws.repo.DeleteReward(rw.ID); repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}
	c.JSON(http.StatusOK, resp)
}
