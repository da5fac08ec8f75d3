package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/chain"
)

// accessLog is a structured zap access log middleware, one line per
// request: method, path, status, latency.
func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// peerAuth verifies the request carries an HS256 bearer token signed with
// signingKey, and that the token's issuer endpoint is a current member of
// the replica set of every wallet walletsOf extracts from the request. On
// success, the verified issuer endpoint is stashed in the gin context under
// peerEndpointContextKey for handlers that need it (BuildExport's internal
// peer check wants the authenticated identity, not a client-supplied query
// parameter).
const peerEndpointContextKey = "creatornode_peer_endpoint"

func peerAuth(signingKey []byte, chainClient chain.IChainClient, peers PeerACL, walletsOf func(*gin.Context) []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope("unauthorized", "missing bearer token"))
			return
		}
		raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return signingKey, nil
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope("unauthorized", "invalid bearer token: "+err.Error()))
			return
		}

		issuer, _ := claims["iss"].(string)
		if issuer == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope("unauthorized", "token carries no issuer"))
			return
		}

		if peers.blacklisted(issuer) {
			c.AbortWithStatusJSON(http.StatusForbidden, envelope("not_a_peer", issuer+" is blacklisted"))
			return
		}

		if !peers.whitelisted(issuer) {
			for _, wallet := range walletsOf(c) {
				if !isReplicaSetMember(chainClient, wallet, issuer) {
					c.AbortWithStatusJSON(http.StatusForbidden, envelope("not_a_peer", issuer+" is not in the replica set for "+wallet))
					return
				}
			}
		}

		c.Set(peerEndpointContextKey, issuer)
		c.Next()
	}
}

// PeerACL overrides replica-set membership checks with operator-configured
// peer lists: a blacklisted endpoint is rejected outright, a whitelisted one
// skips the chain lookup entirely (useful against a chain client that's
// still resolving during Identity Bootstrap, or in local development with
// internal/chain's fake).
type PeerACL struct {
	Whitelist []string
	Blacklist []string
}

func (p PeerACL) whitelisted(endpoint string) bool { return containsEndpoint(p.Whitelist, endpoint) }
func (p PeerACL) blacklisted(endpoint string) bool { return containsEndpoint(p.Blacklist, endpoint) }

func containsEndpoint(list []string, endpoint string) bool {
	for _, e := range list {
		if e == endpoint {
			return true
		}
	}
	return false
}

func isReplicaSetMember(chainClient chain.IChainClient, wallet, endpoint string) bool {
	rs, err := chainClient.GetReplicaSet(wallet)
	if err != nil {
		return false
	}
	spID, err := chainClient.ResolveSPID(endpoint)
	if err != nil || spID == 0 {
		return false
	}
	return spID == rs.PrimaryID || spID == rs.Secondary1ID || spID == rs.Secondary2ID
}
