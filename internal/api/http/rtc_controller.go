package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
)

// RTCController hands browsers the ICE servers to use for peer connections.
// Offers, answers and candidates themselves travel over the room websocket.
type RTCController struct {
	iceServers []webrtc.ICEServer
}

func NewRTCController(stunServers []string) *RTCController {
	servers := make([]webrtc.ICEServer, 0, len(stunServers))
	for _, u := range stunServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	return &RTCController{iceServers: servers}
}

func (c *RTCController) Config(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"ice_servers":          c.iceServers,
		"ice_transport_policy": webrtc.ICETransportPolicyAll.String(),
	})
}
