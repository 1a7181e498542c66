package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/rewardhub/backend/metrics"
	"github.com/rewardhub/backend/repository/models"
)

const ctxUserKey = "currentUser"

// Capability names one authorized operation. Handlers declare the
// capability they need; roles map to capability sets in one place instead of
// ad hoc role comparisons in every handler.
type Capability string

const (
	CapManageUsers        Capability = "manage_users"
	CapManageCatalog      Capability = "manage_catalog"
	CapListStudents       Capability = "list_students"
	CapAwardAchievements  Capability = "award_achievements"
	CapDeleteAwards       Capability = "delete_awards"
	CapViewDashboard      Capability = "view_dashboard"
	CapRedeemRewards      Capability = "redeem_rewards"
	CapViewAllRedemptions Capability = "view_all_redemptions"
)

var roleCapabilities = map[string]map[Capability]bool{
	models.RoleAdmin: {
		CapManageUsers:        true,
		CapManageCatalog:      true,
		CapListStudents:       true,
		CapAwardAchievements:  true,
		CapDeleteAwards:       true,
		CapViewDashboard:      true,
		CapViewAllRedemptions: true,
	},
	models.RoleFaculty: {
		CapListStudents:      true,
		CapAwardAchievements: true,
	},
	models.RoleStudent: {
		CapRedeemRewards: true,
	},
}

// RoleHasCapability reports whether a role grants one capability.
func RoleHasCapability(role string, capability Capability) bool {
	return roleCapabilities[role][capability]
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// authRequired verifies the bearer token and loads the account it names.
func (ws *WebServer) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"msg": "access denied: no token provided, use 'Bearer <token>'",
			})
			return
		}

		var claims tokenClaims
		_, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), &claims,
			func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(ws.auth.JWTSecret), nil
			})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid or expired token"})
			return
		}

		user, repoErr := ws.repo.GetUserByID(claims.Subject)
		if repoErr != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "user not found, token may be stale"})
			return
		}

		c.Set(ctxUserKey, user)
		c.Next()
	}
}

// authorize is the single authorization gate: the operation declares a
// capability and the current role either has it or the request ends here.
func (ws *WebServer) authorize(capability Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := ws.currentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"msg": "authorize must run after authRequired",
			})
			return
		}
		if !RoleHasCapability(user.Role, capability) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"msg": fmt.Sprintf("access denied: role %s lacks capability %s", user.Role, capability),
			})
			return
		}
		c.Next()
	}
}

// walletRequired gates endpoints that execute under the user's wallet.
func (ws *WebServer) walletRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := ws.currentUser(c)
		if user == nil || !user.HasWallet() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"msg":    "wallet not connected",
				"action": "connect_wallet",
			})
			return
		}
		c.Next()
	}
}

func (ws *WebServer) currentUser(c *gin.Context) *models.User {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

func (ws *WebServer) countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
