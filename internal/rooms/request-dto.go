package rooms

type CreateRoomRequest struct {
	ID          string `json:"id" binding:"required,max=64"`
	Name        string `json:"name" binding:"required,max=255"`
	Capacity    int    `json:"capacity" binding:"omitempty,min=1,max=20"`
	NightlyRate int64  `json:"nightly_rate" binding:"required,min=1"`
	Currency    string `json:"currency" binding:"omitempty,len=3,alpha"`
}
