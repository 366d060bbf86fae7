package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zawnaing-2024/vmaster/internal/api/middleware"
	"github.com/zawnaing-2024/vmaster/internal/core"
	"github.com/zawnaing-2024/vmaster/internal/provisioning"
)

// MobileAccount is what the client app needs to connect. Only the fields of
// the account's backend kind are set.
type MobileAccount struct {
	ID               string                `json:"id"`
	Kind             core.BackendKind      `json:"kind"`
	Server           string                `json:"server"`
	Host             string                `json:"host"`
	Port             int                   `json:"port"`
	ExpiresAt        *time.Time            `json:"expires_at"`
	ExpirationStatus core.ExpirationStatus `json:"expiration_status"`

	AccessURL  string `json:"access_url,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	UUID       string `json:"uuid,omitempty"`
	ConfigBlob string `json:"config_blob,omitempty"`
}

func newMobileAccount(v provisioning.AccountView) MobileAccount {
	m := MobileAccount{
		ID:               v.ID,
		Kind:             v.BackendKind,
		Server:           v.BackendName,
		Host:             v.BackendHost,
		Port:             v.BackendPort,
		ExpiresAt:        v.ExpiresAt,
		ExpirationStatus: v.ExpirationStatus,
	}

	switch v.BackendKind {
	case core.KindProxyAPI:
		m.AccessURL = v.AccessURL
	case core.KindAuthTunnel:
		m.Username = v.Username
		m.Password = v.Password
	case core.KindRelay:
		m.UUID = v.UUID
		m.ConfigBlob = v.ConfigBlob
	}
	return m
}

func (h *Handler) MobileAccounts(c *gin.Context) {
	actor := middleware.Actor(c)

	views, err := h.engine.ListActiveForEndUser(c.Request.Context(), actor.ID)
	if err != nil {
		h.respondError(c, err, "Failed to list mobile accounts", nil)
		return
	}

	accounts := make([]MobileAccount, 0, len(views))
	for _, v := range views {
		accounts = append(accounts, newMobileAccount(v))
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

func (h *Handler) ReportUsage(c *gin.Context) {
	actor := middleware.Actor(c)

	if err := h.engine.ReportUsage(c.Request.Context(), actor.ID, c.Param("id")); err != nil {
		h.respondError(c, err, "Failed to report usage", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Usage recorded"})
}
