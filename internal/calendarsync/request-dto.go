package calendarsync

type CreateSourceRequest struct {
	RoomID  string `json:"room_id" binding:"required,max=64"`
	URL     string `json:"url" binding:"required,url,max=2048"`
	Origin  string `json:"origin" binding:"required,max=64"`
	Enabled *bool  `json:"enabled"`
}

type ListSourcesQuery struct {
	RoomID string `form:"room"`
}
