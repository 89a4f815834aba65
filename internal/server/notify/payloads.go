package notify

// StatusPayload is carried by upload_status events.
type StatusPayload struct {
	Message  string `json:"message"`
	Category string `json:"category"`
}

// AddedPayload is carried by music_added events.
type AddedPayload struct {
	NewIDs []int64 `json:"new_ids"`
}

// RemovedPayload is carried by remove_music_items_batch events.
type RemovedPayload struct {
	MusicIDs   []int64 `json:"music_ids"`
	TotalAfter int64   `json:"total_music_count_after"`
}
