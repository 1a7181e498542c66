package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rewardhub/backend/repository"
)

// statusForCode maps repository error codes to HTTP statuses.
func statusForCode(code string) int {
	switch code {
	case repository.CodeNotFound:
		return http.StatusNotFound
	case repository.CodeConflict:
		return http.StatusConflict
	case repository.CodeUnauthorized:
		return http.StatusForbidden
	case repository.CodeValidation, repository.CodeInsufficientBalance, repository.CodeInvalidState:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes a repository error as JSON, falling back to a plain
// 500 for anything that is not a *repository.RepositoryError.
func (ws *WebServer) respondError(c *gin.Context, err error) {
	var repoErr *repository.RepositoryError
	if !errors.As(err, &repoErr) {
		ws.logger.Error("unhandled error", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "internal server error"})
		return
	}

	body := gin.H{"msg": repoErr.Message, "code": repoErr.Code}
	if repoErr.Detail != "" {
		body["detail"] = repoErr.Detail
	}
	c.JSON(statusForCode(repoErr.Code), body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"msg": msg})
}
