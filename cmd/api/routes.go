package main

import (
	"database/sql"
	"net/http"
	"time"

	"cloudcall-platform/internal/auth"
	"cloudcall-platform/internal/httpapi"
	"cloudcall-platform/internal/rbac"
	"cloudcall-platform/internal/telephony"
	"cloudcall-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	AuthMW   gin.HandlerFunc
	Handlers httpapi.Handlers
	Webhooks telephony.WebhookHandler
	Gateway  telephony.Gateway
	DB       *sql.DB
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), deps.DB, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "gateway": deps.Gateway.Name()})
	})

	// Provider webhooks (public).
	// NOTE: These endpoints should be protected by Twilio signature validation
	// in production.
	{
		r.POST("/webhooks/voice", deps.Webhooks.HandleInboundVoice)
		r.POST("/webhooks/voice/status", deps.Webhooks.HandleVoiceStatus)
		r.POST("/webhooks/voice/dial-result", deps.Webhooks.HandleDialResult)
		r.POST("/webhooks/voice/ivr/:id", deps.Webhooks.HandleIVRDigit)
		r.POST("/webhooks/voice/voicemail", deps.Webhooks.HandleVoicemailRecording)
		r.POST("/webhooks/sms", deps.Webhooks.HandleInboundSMS)
		r.POST("/webhooks/sms/status", deps.Webhooks.HandleSMSStatus)
	}

	h := deps.Handlers

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(deps.AuthMW)
	v1.Use(rbac.RequireOrg())
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			oid, _ := auth.OrgID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"user_id": uid, "org_id": oid, "role": role})
		})

		// NUMBERS routes. Inventory changes are admin territory; reads are open
		// to any org member.
		nums := v1.Group("/numbers")
		{
			nums.GET("", h.ListNumbers)
			nums.GET("/:id", h.GetNumber)

			manage := nums.Group("")
			manage.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAdmin))
			{
				manage.GET("/available", h.SearchAvailableNumbers)
				manage.POST("", h.PurchaseNumber)
				manage.PUT("/:id/routing", h.UpdateNumberRouting)
				manage.PUT("/:id/sms", h.UpdateNumberSMS)
				manage.DELETE("/:id", h.ReleaseNumber)
			}
		}

		// CALLS routes
		callsGroup := v1.Group("/calls")
		callsGroup.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAdmin, rbac.RoleAgent))
		{
			callsGroup.POST("", h.InitiateCall)
			callsGroup.GET("", h.ListCalls)
			callsGroup.GET("/:id", h.GetCall)
			callsGroup.POST("/:id/end", h.EndCall)
		}

		// MESSAGES routes
		msgs := v1.Group("/messages")
		msgs.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAdmin, rbac.RoleAgent))
		{
			msgs.POST("", h.SendMessage)
			msgs.GET("/conversations", h.ListConversations)
			msgs.GET("/:id", h.GetMessage)
			msgs.GET("/conversation", h.GetConversationMessages)
			msgs.POST("/conversation/read", h.MarkConversationRead)
		}

		// REPORTS routes
		reports := v1.Group("/reports")
		reports.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAdmin, rbac.RoleAnalyst))
		{
			reports.GET("/calls", h.CallsSummary)
			reports.GET("/messages", h.MessagesSummary)
		}
	}
}
