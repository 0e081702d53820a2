package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/errors"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/pkg/logger"
	"github.com/gin-gonic/gin"
)

const (
	SignatureHeader = "X-Alchemy-Signature"
	maxBodyBytes    = 50 << 20
)

var errSignatureMismatch = stderrors.New("signature mismatch")

func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err
			switch e := err.(type) {
			case *errors.DatabaseError:
				logger.Error("Database error: %v", e)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			case *errors.EthereumError:
				logger.Error("Ethereum error: %v", e)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Ethereum service unavailable"})
			case *errors.APIError:
				if e.StatusCode >= http.StatusInternalServerError {
					logger.Error("API error: %v", e)
				} else {
					logger.Warn("API error: %v", e)
				}
				c.JSON(e.StatusCode, gin.H{"error": e.Message})
			default:
				logger.Error("Unexpected error: %v", e)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
			c.Abort()
		}
	}
}

// ValidSignature reports whether signature is the hex HMAC-SHA256 of body under signingKey.
func ValidSignature(body []byte, signature, signingKey string) bool {
	mac := hmac.New(sha256.New, []byte(signingKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// SignatureMiddleware buffers the raw body and rejects requests whose
// X-Alchemy-Signature does not match. An empty key disables the check.
func SignatureMiddleware(signingKey string) gin.HandlerFunc {
	if signingKey == "" {
		logger.Warn("Webhook signing key is empty; signatures will not be checked")
	}
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
		if err != nil {
			c.Error(&errors.APIError{StatusCode: http.StatusBadRequest, Message: "Failed to read request body", Err: err})
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if signingKey != "" && !ValidSignature(body, c.GetHeader(SignatureHeader), signingKey) {
			c.Error(&errors.APIError{
				StatusCode: http.StatusForbidden,
				Message:    "Signature validation failed, unauthorized!",
				Err:        errSignatureMismatch,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
