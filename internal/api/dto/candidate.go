package dto

type CandidateRequest struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Categories  []string `json:"categories"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	PriceTier   int      `json:"price_tier"`
	Rating      float64  `json:"rating"`
	RatingCount int      `json:"rating_count"`
	Similarity  *float64 `json:"similarity"`
	// Congestion holds 24 hourly values in [0,100].
	Congestion []float64 `json:"congestion"`
	// CloseTime is "HH:MM"; hours past 23 mean closing after midnight.
	CloseTime string `json:"close_time"`
}

type PreferencesRequest struct {
	Budget     float64 `json:"budget"`
	Atmosphere string  `json:"atmosphere"`
}

type WeightsRequest struct {
	Price      float64 `json:"price"`
	Rating     float64 `json:"rating"`
	Congestion float64 `json:"congestion"`
	Similarity float64 `json:"similarity"`
}
