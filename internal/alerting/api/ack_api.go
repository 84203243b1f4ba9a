package api

import (
	"context"
	"encoding/xml"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	adb "github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/database"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/model"
)

// AlertAcker marks alert records as acknowledged, one method per channel.
type AlertAcker interface {
	AcknowledgeByCallSID(ctx context.Context, sid, userID string) (*adb.AckResult, error)
	AcknowledgeBySMSCode(ctx context.Context, code, userID string) (*adb.AckResult, error)
	AcknowledgeByEmailCode(ctx context.Context, code, userID string) (*adb.AckResult, error)
}

// UserDirectory resolves users for acknowledgment attribution.
type UserDirectory interface {
	UserByPhone(ctx context.Context, phone string) (*model.User, error)
	UserByID(ctx context.Context, id string) (*model.User, error)
}

type AckAPI struct {
	Alerts  AlertAcker
	Users   UserDirectory
	APIBase string
}

// RegisterAckRoutes wires the voice provider webhooks and the SMS/email
// confirmation endpoints. The /public routes are called by the telephony
// provider and carry no session.
func RegisterAckRoutes(router *gin.Engine, api *AckAPI) {
	router.GET("/public/alert/config", api.VoiceConfig)
	router.POST("/public/alert/confirm", api.VoiceConfirm)
	router.POST("/alert/confirm/sms", api.SMSConfirm)
	router.POST("/alert/confirm/email", api.EmailConfirm)
}

// TwiML response document read back to the telephony provider.
type voiceResponse struct {
	XMLName xml.Name    `xml:"Response"`
	Say     []string    `xml:"Say"`
	Gather  *gatherVerb `xml:"Gather,omitempty"`
}

type gatherVerb struct {
	Input  string `xml:"input,attr"`
	Action string `xml:"action,attr"`
	Method string `xml:"method,attr"`
	Say    string `xml:"Say"`
}

// VoiceConfig builds the spoken alert message for an outbound call. The
// provider fetches this URL when the callee answers.
func (api *AckAPI) VoiceConfig(c *gin.Context) {
	alertType := c.Query("type")
	sensorName := c.Query("sensor_name")
	sensorValue := c.Query("sensor_value")
	isAdmin := c.Query("is_admin") != ""

	var text string
	switch alertType {
	case "warning", "normal":
		text = "Warning! This is a Viking SCADA Alert, " + sensorName + " has reached " + sensorValue
	case "danger":
		text = "Danger! This is a Viking SCADA Alert, " + sensorName + " has reached " + sensorValue
	case "bitmask":
		bit := c.Query("bit")
		if bit == "" {
			bit = "0"
		}
		text = "Warning! This is a Viking SCADA Alert, " + sensorName + " On/Off Bit " + bit + " is in an " + sensorValue + " State"
	}
	if text == "" {
		c.String(http.StatusOK, "")
		return
	}

	resp := voiceResponse{Say: []string{text}}
	if isAdmin {
		resp.Say = append(resp.Say, "This alert has not been acknowledged.")
	} else {
		resp.Gather = &gatherVerb{
			Input:  "dtmf speech",
			Action: api.APIBase + "/public/alert/confirm",
			Method: http.MethodPost,
			Say:    "To confirm receipt of the notification, press or say 1. To exit, press #.",
		}
	}
	writeTwiML(c, resp)
}

// VoiceConfirm is the provider's gather callback. The record is resolved by
// call SID; attribution matches the called number against the roster and is
// best-effort.
func (api *AckAPI) VoiceConfirm(c *gin.Context) {
	ctx := c.Request.Context()

	if sid := c.PostForm("CallSid"); sid != "" {
		var userID string
		called := strings.TrimPrefix(c.PostForm("Called"), "+")
		if called != "" {
			user, err := api.Users.UserByPhone(ctx, called)
			if err != nil {
				log.Error().Err(err).Str("called", called).Msg("caller attribution lookup failed")
			} else if user != nil {
				userID = user.ID
			}
		}
		if _, err := api.Alerts.AcknowledgeByCallSID(ctx, sid, userID); err != nil {
			log.Error().Err(err).Str("call_sid", sid).Msg("voice acknowledgment failed")
		}
	}

	writeTwiML(c, voiceResponse{Say: []string{"Thank you for acknowledging the alert."}})
}

type confirmRequest struct {
	Code string `json:"code"`
}

// SMSConfirm acknowledges an alert by its SMS reply code.
func (api *AckAPI) SMSConfirm(c *gin.Context) {
	api.confirmByCode(c, api.Alerts.AcknowledgeBySMSCode)
}

// EmailConfirm acknowledges an alert by its email link code.
func (api *AckAPI) EmailConfirm(c *gin.Context) {
	api.confirmByCode(c, api.Alerts.AcknowledgeByEmailCode)
}

func (api *AckAPI) confirmByCode(c *gin.Context, ack func(ctx context.Context, code, userID string) (*adb.AckResult, error)) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		c.JSON(http.StatusNotFound, errorBody("NOT_FOUND", "alert not found"))
		return
	}

	ctx := c.Request.Context()
	result, err := ack(ctx, req.Code, c.GetString("userID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_ERROR", err.Error()))
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, errorBody("NOT_FOUND", "alert not found"))
		return
	}

	if !result.Won {
		// somebody got there first: report who acknowledged it
		resp := gin.H{"ok": false}
		if result.ReadBy != "" {
			user, err := api.Users.UserByID(ctx, result.ReadBy)
			if err != nil {
				log.Error().Err(err).Str("user_id", result.ReadBy).Msg("acknowledger lookup failed")
			} else if user != nil {
				resp["first_name"] = user.FirstName
				resp["last_name"] = user.LastName
				resp["email"] = user.Email
			}
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func writeTwiML(c *gin.Context, resp voiceResponse) {
	body, err := xml.Marshal(resp)
	if err != nil {
		c.String(http.StatusInternalServerError, "")
		return
	}
	c.Data(http.StatusOK, "text/xml", append([]byte(xml.Header), body...))
}

func errorBody(code, message string) map[string]any {
	return map[string]any{"error": map[string]any{"code": code, "message": message}}
}
