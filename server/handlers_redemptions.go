package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rewardhub/backend/repository/models"
)

type redeemRequest struct {
	RewardID string `json:"rewardId" binding:"required"`
}

// handleRedeem spends tokens for a perk under the caller's own wallet. A
// ledger failure answers 500 with the persisted failed record attached, the
// same shape the award endpoint uses.
func (ws *WebServer) handleRedeem(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "rewardId is required")
		return
	}

	outcome, repoErr := ws.redemptions.Redeem(c.Request.Context(), ws.currentUser(c), req.RewardID)
	if repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}

	if outcome.LedgerErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"msg":        "redemption could not be executed on-chain",
			"detail":     outcome.LedgerErr.Error(),
			"redemption": outcome.Redemption,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"msg":              "reward redeemed successfully",
		"redemption":       outcome.Redemption,
		"txHash":           outcome.Redemption.TxHash,
		"remainingBalance": outcome.RemainingBalance,
	})
}

// handleStudentRedemptions lists one student's history. Students may only
// read their own; staff may read anyone's.
func (ws *WebServer) handleStudentRedemptions(c *gin.Context) {
	studentID := c.Param("studentId")
	user := ws.currentUser(c)
	if user.Role == models.RoleStudent && user.ID != studentID {
		c.JSON(http.StatusForbidden, gin.H{"msg": "students may only view their own redemptions"})
		return
	}

	redemptions, repoErr := ws.repo.ListRedemptionsByStudent(studentID)
	if repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}

	balance, repoErr := ws.redemptions.SpendableBalance(studentID)
	if repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redemptions": redemptions, "spendableBalance": balance})
}

func (ws *WebServer) handleListRedemptions(c *gin.Context) {
	redemptions, repoErr := ws.repo.ListRedemptions()
	if repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redemptions": redemptions, "total": len(redemptions)})
}
