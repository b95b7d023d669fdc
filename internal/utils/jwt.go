package utils

import (
	"errors" // Error values
	"time"   // Time for token expiration

	"github.com/golang-jwt/jwt/v5" // JWT library
)

// MaxTokenLifetime caps a token regardless of how often its session is refreshed
const MaxTokenLifetime = 12 * time.Hour

// JWT Claims
type Claims struct {
	AdminID              uint   `json:"admin_id"` // Custom claim for admin ID
	SessionID            string `json:"sid"`      // Server-side session the token is bound to
	jwt.RegisteredClaims        // Standard JWT claims
}

// GenerateJWT creates a JWT token for a given admin session
func GenerateJWT(adminID uint, sessionID, secret string, now time.Time) (string, error) {
	// Set token claims
	claims := Claims{
		AdminID:   adminID,   // Custom claim for admin ID
		SessionID: sessionID, // Session bound to the token
		// Standard claims
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			ExpiresAt: jwt.NewNumericDate(now.Add(MaxTokenLifetime)), // Hard upper bound, the session TTL is the real expiry
			IssuedAt:  jwt.NewNumericDate(now),                       // Issued at current time
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims) // Create token with claims
	return token.SignedString([]byte(secret))                  // Sign the token with the secret
}

// ParseJWT parses and validates a JWT token string
func ParseJWT(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil // Return the secret key for validation
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	// Check for parsing errors
	if err != nil {
		return nil, err // Return error if parsing fails
	}
	// Validate token and extract claims
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		if claims.SessionID == "" {
			return nil, errors.New("token is not bound to a session")
		}
		return claims, nil // Return claims if valid
	}
	// Return error if token is invalid
	return nil, jwt.ErrSignatureInvalid
}
