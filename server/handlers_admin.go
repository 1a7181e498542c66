package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rewardhub/backend/repository"
	"github.com/rewardhub/backend/repository/models"
)

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	return page, limit
}

// handleListStudents serves the roster faculty pick award recipients from.
func (ws *WebServer) handleListStudents(c *gin.Context) {
	filter := repository.UserFilter{Role: models.RoleStudent}
	filter.Page, filter.Limit = pageParams(c)
	if v := c.Query("walletConnected"); v != "" {
		connected := v == "true"
		filter.WalletConnected = &connected
	}

	students, total, repoErr := ws.repo.ListUsers(filter)
	if repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students, "total": total})
}

type createUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required"`
}

func (ws *WebServer) handleCreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid user payload: "+err.Error())
		return
	}
	if !models.ValidRole(req.Role) {
		badRequest(c, "invalid role: "+req.Role)
		return
	}

	hashed, err := hashPassword(req.Password)
	if err != nil {
		ws.respondError(c, err)
		return
	}
	user := &models.User{
		Name:     req.Name,
		Email:    strings.ToLower(req.Email),
		Password: hashed,
		Role:     req.Role,
	}
	if repoErr := ws.repo.CreateUser(user); repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"msg": "user created", "user": user})
}

func (ws *WebServer) handleListUsers(c *gin.Context) {
	filter := repository.UserFilter{Role: c.Query("role")}
	filter.Page, filter.Limit = pageParams(c)

	users, total, repoErr := ws.repo.ListUsers(filter)
	if repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": total})
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	Password *string `json:"password"`
}

func (ws *WebServer) handleUpdateUser(c *gin.Context) {
	user, repoErr := ws.repo.GetUserByID(c.Param("id"))
	if repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid user payload: "+err.Error())
		return
	}
	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Email != nil {
		user.Email = strings.ToLower(*req.Email)
	}
	if req.Role != nil {
		if !models.ValidRole(*req.Role) {
			badRequest(c, "invalid role: "+*req.Role)
			return
		}
		user.Role = *req.Role
	}
	if req.Password != nil {
		hashed, err := hashPassword(*req.Password)
		if err != nil {
			ws.respondError(c, err)
			return
		}
		user.Password = hashed
	}

	if repoErr := ws.repo.UpdateUser(user); repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "user updated", "user": user})
}

func (ws *WebServer) handleDeleteUser(c *gin.Context) {
	if repoErr := ws.repo.DeleteUser(c.Param("id"), ws.currentUser(c).ID); repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "user deleted"})
}

func (ws *WebServer) handleDashboardStats(c *gin.Context) {
	stats, repoErr := ws.dashboard.Stats(c.Request.Context())
	if repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}
	c.JSON(http.StatusOK, stats)
}
