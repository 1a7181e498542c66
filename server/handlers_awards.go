package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rewardhub/backend/repository"
	"github.com/rewardhub/backend/repository/models"
	"github.com/rewardhub/backend/workflow"
)

type awardRequest struct {
	StudentID     string `json:"studentId" binding:"required"`
	AchievementID string `json:"achievementId" binding:"required"`
}

// handleAwardAchievement runs the award workflow. Precondition failures map
// through the repository error codes; a ledger failure answers 500 but with
// the persisted failed record attached, so the caller can see exactly what
// state the award landed in.
func (ws *WebServer) handleAwardAchievement(c *gin.Context) {
	var req awardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "studentId and achievementId are required")
		return
	}

	outcome, repoErr := ws.awards.Award(c.Request.Context(), workflow.AwardRequest{
		StudentID:     req.StudentID,
		AchievementID: req.AchievementID,
		AwardedBy:     ws.currentUser(c).ID,
	})
	if repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}

	if outcome.LedgerErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"msg":    "achievement could not be granted on-chain",
			"detail": outcome.LedgerErr.Error(),
			"award":  outcome.Award,
		})
		return
	}

	// Reload with associations so the response carries the student and
	// achievement, not just their ids.
	award, lookupErr := ws.repo.GetAward(outcome.Award.ID)
	if lookupErr != nil {
		award = outcome.Award
	}
	c.JSON(http.StatusCreated, gin.H{
		"msg":           "achievement awarded successfully",
		"award":         award,
		"txHash":        outcome.Award.TxHash,
		"tokensAwarded": outcome.TokensAwarded,
		"studentWallet": outcome.StudentWallet,
	})
}

func (ws *WebServer) handleListAwards(c *gin.Context) {
	filter := repository.AwardFilter{
		StudentID:     c.Query("studentId"),
		AchievementID: c.Query("achievementId"),
		Status:        c.Query("status"),
	}
	// Students see only their own records regardless of query filters.
	if user := ws.currentUser(c); user.Role == models.RoleStudent {
		filter.StudentID = user.ID
	}
	awards, repoErr := ws.repo.ListAwards(filter)
	if repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"awards": awards, "total": len(awards)})
}

func (ws *WebServer) handleMyAwards(c *gin.Context) {
	user := ws.currentUser(c)
	awards, repoErr := ws.repo.ListAwards(repository.AwardFilter{
		StudentID: user.ID,
		Status:    models.AwardStatusConfirmed,
	})
	if repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}

	var totalTokens int64
	for _, a := range awards {
		if a.Achievement != nil {
			totalTokens += a.Achievement.TokenReward
		}
	}
	c.JSON(http.StatusOK, gin.H{"awards": awards, "totalTokens": totalTokens})
}

func (ws *WebServer) handleStudentAwards(c *gin.Context) {
	studentID := c.Param("studentId")
	if user := ws.currentUser(c); user.Role == models.RoleStudent && user.ID != studentID {
		c.JSON(http.StatusForbidden, gin.H{"msg": "students may only view their own awards"})
		return
	}
	awards, repoErr := ws.repo.ListAwards(repository.AwardFilter{
		StudentID: studentID,
	})
	if repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"awards": awards})
}

func (ws *WebServer) handleGetAward(c *gin.Context) {
	award, repoErr := ws.repo.GetAward(c.Param("id"))
	if repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}
	if user := ws.currentUser(c); user.Role == models.RoleStudent && award.StudentID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"msg": "students may only view their own awards"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"award": award})
}

// handleDeleteAward removes the database record only. Minted tokens stay
// with the student; the ledger has no delete.
func (ws *WebServer) handleDeleteAward(c *gin.Context) {
	if repoErr := ws.repo.DeleteAward(c.Param("id")); repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"msg":  "award record deleted",
		"note": "tokens already granted on-chain are not reclaimed",
	})
}
