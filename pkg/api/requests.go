package api

// SubmitTopicsRequest is the body of POST /api/v1/topics.
type SubmitTopicsRequest struct {
	Titles []string `json:"titles" binding:"required"`
}

// GenerateRequest is the body of POST /api/v1/topics/:id/generate.
type GenerateRequest struct {
	Platform string `json:"platform" binding:"required"`
	Format   string `json:"format"`
}
