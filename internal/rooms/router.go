package rooms

import (
	"github.com/gin-gonic/gin"
)

// SetupRoomRoutes registers the public room catalogue and the admin write
// route. Admin middleware is supplied by the caller.
func SetupRoomRoutes(public *gin.RouterGroup, admin *gin.RouterGroup, controller *Controller) {
	public.GET("/rooms", controller.ListRooms)       // GET /api/v1/rooms
	public.GET("/rooms/:roomId", controller.GetRoom) // GET /api/v1/rooms/:roomId
	admin.POST("/rooms", controller.CreateRoom)      // POST /api/v1/admin/rooms
}
