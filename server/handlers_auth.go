package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"

	"github.com/rewardhub/backend/repository/models"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role"`
}

func (ws *WebServer) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid registration payload: "+err.Error())
		return
	}

	role := req.Role
	if role == "" {
		role = models.RoleStudent
	}
	if !models.ValidRole(role) {
		badRequest(c, "invalid role: "+role)
		return
	}
	// Privileged accounts come from the admin user endpoints, never from
	// open registration.
	if role == models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"msg": "admin accounts cannot self-register"})
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
		Role:     role,
	}
	if repoErr := ws.repo.CreateUser(user); repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}

	token, err := ws.issueToken(user)
	if err != nil {
		ws.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"msg": "registration successful", "token": token, "user": user})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (ws *WebServer) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}

	user, repoErr := ws.repo.GetUserByEmail(strings.ToLower(req.Email))
	if repoErr != nil || !checkPassword(user.Password, req.Password) {
		// Same answer whether the account or the password is wrong.
		c.JSON(http.StatusUnauthorized, gin.H{"msg": "invalid email or password"})
		return
	}

	token, err := ws.issueToken(user)
	if err != nil {
		ws.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "login successful", "token": token, "user": user})
}

func (ws *WebServer) handleProfile(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": ws.currentUser(c)})
}

// handleWalletNonce issues the random challenge the wallet must sign to
// prove ownership of the address it claims.
func (ws *WebServer) handleWalletNonce(c *gin.Context) {
	user := ws.currentUser(c)

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		ws.respondError(c, err)
		return
	}
	nonce := hex.EncodeToString(buf)

	user.WalletNonce = &nonce
	if repoErr := ws.repo.UpdateUser(user); repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"nonce":   nonce,
		"message": walletChallenge(nonce),
	})
}

func walletChallenge(nonce string) string {
	return fmt.Sprintf("Link this wallet to your campus rewards account.\nNonce: %s", nonce)
}

type walletVerifyRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required"`
	Signature     string `json:"signature" binding:"required"`
}

// handleWalletVerify recovers the signer of the personal-sign challenge and,
// when it matches the claimed address, links the wallet to the account. The
// on-chain student registration afterwards is best effort; a registration
// failure surfaces as a warning, not an error, because the link itself is a
// database fact.
func (ws *WebServer) handleWalletVerify(c *gin.Context) {
	var req walletVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "walletAddress and signature are required")
		return
	}
	if !common.IsHexAddress(req.WalletAddress) {
		badRequest(c, "invalid wallet address format")
		return
	}

	user := ws.currentUser(c)
	if user.WalletNonce == nil {
		badRequest(c, "no pending challenge, request a nonce first")
		return
	}

	recovered, err := recoverSigner(walletChallenge(*user.WalletNonce), req.Signature)
	if err != nil {
		badRequest(c, "signature could not be verified: "+err.Error())
		return
	}
	if !strings.EqualFold(recovered.Hex(), req.WalletAddress) {
		c.JSON(http.StatusUnauthorized, gin.H{"msg": "signature does not match the claimed wallet"})
		return
	}

	addr := strings.ToLower(req.WalletAddress)
	user.WalletAddress = &addr
	user.WalletConnected = true
	user.WalletNonce = nil
	if repoErr := ws.repo.UpdateUser(user); repoErr != nil {
		ws.respondError(c, repoErr)
		return
	}

	resp := gin.H{"msg": "wallet connected", "user": user}
	if user.Role == models.RoleStudent {
		if txHash, err := ws.gateway.RegisterStudent(c.Request.Context(), addr); err != nil {
			ws.logger.Warn("on-chain student registration failed", "wallet", addr, "err", err)
			resp["warning"] = "wallet linked, but on-chain registration failed: " + err.Error()
		} else {
			resp["registrationTx"] = txHash
		}
	}
	c.JSON(http.StatusOK, resp)
}

func recoverSigner(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("malformed signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}
	// personal_sign sets V to 27/28; go-ethereum expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// handleWalletBalance reads a single wallet's token balance off the ledger.
func (ws *WebServer) handleWalletBalance(c *gin.Context) {
	wallet := c.Param("wallet")
	if !common.IsHexAddress(wallet) {
		badRequest(c, "invalid wallet address format")
		return
	}

	balance, err := ws.gateway.GetBalance(c.Request.Context(), wallet)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"msg": "ledger read failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet": strings.ToLower(wallet), "balance": balance})
}
