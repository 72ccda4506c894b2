package analysis

// FieldMapping names the dataset columns the analyses read. Datasets from
// different exporters use different headers; the mapping decouples the
// computations from any one of them.
type FieldMapping struct {
	UserID         string `json:"user_id"`
	Gender         string `json:"gender"`
	Nickname       string `json:"nickname"`
	Province       string `json:"province"`
	City           string `json:"city"`
	PostCount      string `json:"post_count"`
	FollowingCount string `json:"following_count"`
	FollowersCount string `json:"followers_count"`
	PublishTime    string `json:"publish_time"`
	Content        string `json:"content"`
	RepostCount    string `json:"repost_count"`
	CommentCount   string `json:"comment_count"`
	LikeCount      string `json:"like_count"`
}

// DefaultFieldMapping matches the standard export header.
func DefaultFieldMapping() FieldMapping {
	return FieldMapping{
		UserID:         "user_id",
		Gender:         "gender",
		Nickname:       "nickname",
		Province:       "province",
		City:           "city",
		PostCount:      "post_count",
		FollowingCount: "following_count",
		FollowersCount: "followers_count",
		PublishTime:    "publish_time",
		Content:        "content",
		RepostCount:    "repost_count",
		CommentCount:   "comment_count",
		LikeCount:      "like_count",
	}
}
