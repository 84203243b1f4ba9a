package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/model"
)

// PriorityService is the call-order management surface of the recipient
// resolver.
type PriorityService interface {
	GetPriorities(ctx context.Context, channel model.ChannelType, companyID string) ([]*model.PriorityEntry, error)
	Up(ctx context.Context, channel model.ChannelType, companyID, entryID string) error
	Down(ctx context.Context, channel model.ChannelType, companyID, entryID string) error
	Activate(ctx context.Context, entryID string, enabled bool) error
}

type PriorityAPI struct {
	Resolver PriorityService
}

func RegisterPriorityRoutes(router *gin.Engine, api *PriorityAPI) {
	router.GET("/alert/priority/:type", api.List)
	router.POST("/alert/priority/:type/:id/up", api.Up)
	router.POST("/alert/priority/:type/:id/down", api.Down)
	router.POST("/alert/priority/:type/:id/enable", api.Enable)
	router.POST("/alert/priority/:type/:id/disable", api.Disable)
}

type priorityUser struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
}

type priorityItem struct {
	ID       string        `json:"id"`
	Priority int           `json:"priority"`
	Enabled  bool          `json:"enabled"`
	User     *priorityUser `json:"user,omitempty"`
}

func (api *PriorityAPI) List(c *gin.Context) {
	channel, ok := parseChannel(c)
	if !ok {
		return
	}
	companyID := c.Query("company_id")
	if companyID == "" {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_PARAMETER", "company_id is required"))
		return
	}

	entries, err := api.Resolver.GetPriorities(c.Request.Context(), channel, companyID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_ERROR", err.Error()))
		return
	}

	items := make([]priorityItem, 0, len(entries))
	for _, entry := range entries {
		item := priorityItem{ID: entry.ID, Priority: entry.Priority, Enabled: entry.Enabled}
		if entry.User != nil {
			item.User = &priorityUser{
				ID:        entry.User.ID,
				FirstName: entry.User.FirstName,
				LastName:  entry.User.LastName,
				Email:     entry.User.Email,
				Phone:     entry.User.Phone,
				Role:      string(entry.User.Role),
			}
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type priorityMoveRequest struct {
	CompanyID string `json:"company_id"`
}

func (api *PriorityAPI) Up(c *gin.Context) {
	api.move(c, api.Resolver.Up)
}

func (api *PriorityAPI) Down(c *gin.Context) {
	api.move(c, api.Resolver.Down)
}

func (api *PriorityAPI) move(c *gin.Context, move func(ctx context.Context, channel model.ChannelType, companyID, entryID string) error) {
	channel, ok := parseChannel(c)
	if !ok {
		return
	}

	var req priorityMoveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CompanyID == "" {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_PARAMETER", "company_id is required"))
		return
	}

	if err := move(c.Request.Context(), channel, req.CompanyID, c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_ERROR", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (api *PriorityAPI) Enable(c *gin.Context) {
	api.activate(c, true)
}

func (api *PriorityAPI) Disable(c *gin.Context) {
	api.activate(c, false)
}

func (api *PriorityAPI) activate(c *gin.Context, enabled bool) {
	if _, ok := parseChannel(c); !ok {
		return
	}
	if err := api.Resolver.Activate(c.Request.Context(), c.Param("id"), enabled); err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_ERROR", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func parseChannel(c *gin.Context) (model.ChannelType, bool) {
	switch c.Param("type") {
	case "voice":
		return model.ChannelVoice, true
	case "sms":
		return model.ChannelSMS, true
	case "email":
		return model.ChannelEmail, true
	default:
		c.JSON(http.StatusBadRequest, errorBody("INVALID_PARAMETER", "type must be voice, sms or email"))
		return "", false
	}
}
