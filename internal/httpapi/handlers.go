package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"cloudcall-platform/internal/auth"
	"cloudcall-platform/internal/calls"
	"cloudcall-platform/internal/directory"
	"cloudcall-platform/internal/messaging"
	"cloudcall-platform/internal/numbers"
	"cloudcall-platform/internal/rbac"
	"cloudcall-platform/internal/reporting"
	"cloudcall-platform/internal/telephony"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth     *auth.Manager
	Numbers  *numbers.Service
	Calls    *calls.Service
	Messages *messaging.Service
	Reports  *reporting.Service

	// Gateway serves provider inventory searches; purchases still go through
	// the numbers service.
	Gateway telephony.Gateway
}

// writeError maps service sentinels onto HTTP statuses. Unknown errors are
// 500 with a generic body; details stay in the logs.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, numbers.ErrNotFound),
		errors.Is(err, calls.ErrNotFound),
		errors.Is(err, messaging.ErrNotFound),
		errors.Is(err, directory.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, numbers.ErrPermissionDenied):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, numbers.ErrInvalidConfig),
		errors.Is(err, messaging.ErrEmptyBody),
		errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrAlreadyTerminal):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call already ended"})
	default:
		var ge *telephony.GatewayError
		if errors.As(err, &ge) {
			if ge.Temporary {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "telephony provider unavailable"})
			} else {
				c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "telephony provider rejected the request"})
			}
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func identity(c *gin.Context) (orgID, userID string, ok bool) {
	orgID, err := auth.OrgID(c.Request.Context())
	if err != nil || orgID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "org_id required"})
		return "", "", false
	}
	userID, err = auth.UserID(c.Request.Context())
	if err != nil || userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return "", "", false
	}
	return orgID, userID, true
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.OrgID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, org_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.OrgID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Numbers ---

func (h Handlers) PurchaseNumber(c *gin.Context) {
	orgID, userID, ok := identity(c)
	if !ok {
		return
	}
	var req numbers.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	n, err := h.Numbers.Purchase(c.Request.Context(), orgID, userID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

func (h Handlers) ListNumbers(c *gin.Context) {
	orgID, _, ok := identity(c)
	if !ok {
		return
	}
	ns, err := h.Numbers.List(c.Request.Context(), orgID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"numbers": ns})
}

func (h Handlers) GetNumber(c *gin.Context) {
	orgID, _, ok := identity(c)
	if !ok {
		return
	}
	n, err := h.Numbers.Get(c.Request.Context(), orgID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h Handlers) UpdateNumberRouting(c *gin.Context) {
	orgID, _, ok := identity(c)
	if !ok {
		return
	}
	var cfg numbers.RoutingConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	n, err := h.Numbers.UpdateRouting(c.Request.Context(), orgID, c.Param("id"), cfg)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h Handlers) UpdateNumberSMS(c *gin.Context) {
	orgID, _, ok := identity(c)
	if !ok {
		return
	}
	var cfg numbers.SMSConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	n, err := h.Numbers.UpdateSMSConfig(c.Request.Context(), orgID, c.Param("id"), cfg)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h Handlers) SearchAvailableNumbers(c *gin.Context) {
	if _, _, ok := identity(c); !ok {
		return
	}
	q := telephony.NumberSearchQuery{
		Country:  c.DefaultQuery("country", "US"),
		AreaCode: c.Query("area_code"),
		Contains: c.Query("contains"),
		Limit:    20,
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be 1-100"})
			return
		}
		q.Limit = n
	}
	ns, err := h.Gateway.SearchAvailableNumbers(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"numbers": ns})
}

func (h Handlers) ReleaseNumber(c *gin.Context) {
	orgID, _, ok := identity(c)
	if !ok {
		return
	}
	if err := h.Numbers.Release(c.Request.Context(), orgID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Calls ---

func (h Handlers) InitiateCall(c *gin.Context) {
	orgID, userID, ok := identity(c)
	if !ok {
		return
	}
	var req calls.InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.NumberID == "" || req.To == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "number_id and to required"})
		return
	}
	call, err := h.Calls.Initiate(c.Request.Context(), orgID, userID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, call)
}

func (h Handlers) GetCall(c *gin.Context) {
	orgID, _, ok := identity(c)
	if !ok {
		return
	}
	call, err := h.Calls.Get(c.Request.Context(), orgID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

func (h Handlers) ListCalls(c *gin.Context) {
	orgID, _, ok := identity(c)
	if !ok {
		return
	}
	q := calls.ListQuery{
		OrgID:  orgID,
		UserID: c.Query("user_id"),
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		q.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		q.To = t
	}
	out, err := h.Calls.List(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": out})
}

func (h Handlers) EndCall(c *gin.Context) {
	orgID, _, ok := identity(c)
	if !ok {
		return
	}
	call, err := h.Calls.End(c.Request.Context(), orgID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

// --- Messages ---

func (h Handlers) SendMessage(c *gin.Context) {
	orgID, userID, ok := identity(c)
	if !ok {
		return
	}
	var req messaging.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.NumberID == "" || req.To == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "number_id and to required"})
		return
	}
	m, err := h.Messages.Send(c.Request.Context(), orgID, userID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h Handlers) GetMessage(c *gin.Context) {
	orgID, _, ok := identity(c)
	if !ok {
		return
	}
	m, err := h.Messages.Get(c.Request.Context(), orgID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h Handlers) ListConversations(c *gin.Context) {
	orgID, _, ok := identity(c)
	if !ok {
		return
	}
	convs, err := h.Messages.Conversations(c.Request.Context(), orgID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (h Handlers) GetConversationMessages(c *gin.Context) {
	orgID, _, ok := identity(c)
	if !ok {
		return
	}
	own := c.Query("own_number")
	external := c.Query("external_number")
	if own == "" || external == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "own_number and external_number required"})
		return
	}
	msgs, err := h.Messages.ConversationMessages(c.Request.Context(), orgID, own, external,
		intQuery(c, "limit", 50), intQuery(c, "offset", 0))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type markReadRequest struct {
	OwnNumber      string `json:"own_number"`
	ExternalNumber string `json:"external_number"`
}

func (h Handlers) MarkConversationRead(c *gin.Context) {
	orgID, userID, ok := identity(c)
	if !ok {
		return
	}
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.OwnNumber == "" || req.ExternalNumber == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "own_number and external_number required"})
		return
	}
	n, err := h.Messages.MarkConversationRead(c.Request.Context(), orgID, userID, req.OwnNumber, req.ExternalNumber)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

// --- Reports ---

func (h Handlers) CallsSummary(c *gin.Context) {
	orgID, _, ok := identity(c)
	if !ok {
		return
	}
	r, ok := parseRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		OrgID:    orgID,
		Range:    r,
		NumberID: c.Query("number_id"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) MessagesSummary(c *gin.Context) {
	orgID, _, ok := identity(c)
	if !ok {
		return
	}
	r, ok := parseRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.MessagesSummary(c.Request.Context(), reporting.MessagesSummaryRequest{
		OrgID:    orgID,
		Range:    r,
		NumberID: c.Query("number_id"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func parseRange(c *gin.Context) (reporting.TimeRange, bool) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
		return reporting.TimeRange{}, false
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
		return reporting.TimeRange{}, false
	}
	return reporting.TimeRange{From: from, To: to}, true
}

func intQuery(c *gin.Context, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// Convenience middleware bundles.

func RequireOrgAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireOrg(), rbac.RequireAnyRole(roles...)}
}
