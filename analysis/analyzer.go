// Package analysis implements the dashboard's behavioral computations over
// loaded datasets: per-user engagement aggregates, posting-time activity
// profiles, and standardized activity scores. Every computation runs
// through the gate, so results are memoized by dataset content and
// parameters, and concurrent requests collapse into one execution.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/behaviorlab/datakit/fingerprint"
	"github.com/behaviorlab/datakit/gate"
	"github.com/behaviorlab/datakit/table"
)

// Cached result lifetimes, matched to how often the dashboards refresh.
const (
	userStatsTTL = time.Hour
	activityTTL  = 30 * time.Minute
)

// ErrColumnMissing is wrapped with the column name when a mapped column is
// absent from the dataset.
var ErrColumnMissing = errors.New("analysis: mapped column missing from dataset")

// ErrNoTable is returned when a handle has no resident table, i.e. the
// dataset was loaded in chunked mode.
var ErrNoTable = errors.New("analysis: dataset handle has no resident table")

// Config wires an Analyzer.
type Config struct {
	// Gate memoizes computation results. Required.
	Gate *gate.Gate
	// Fields maps logical fields to dataset columns.
	// Defaults to DefaultFieldMapping.
	Fields FieldMapping
	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// Analyzer runs the behavioral computations.
type Analyzer struct {
	gate   *gate.Gate
	fields FieldMapping
	logger *slog.Logger
}

// New creates an analyzer.
func New(cfg Config) *Analyzer {
	fields := cfg.Fields
	if fields == (FieldMapping{}) {
		fields = DefaultFieldMapping()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Analyzer{gate: cfg.Gate, fields: fields, logger: logger}
}

// UserAggregate summarizes one user's posts.
type UserAggregate struct {
	UserID   string `json:"user_id"`
	Gender   string `json:"gender,omitempty"`
	Province string `json:"province,omitempty"`

	Posts int64 `json:"posts"`

	RepostSum  int64   `json:"repost_sum"`
	RepostMean float64 `json:"repost_mean"`
	RepostMax  int64   `json:"repost_max"`

	CommentSum  int64   `json:"comment_sum"`
	CommentMean float64 `json:"comment_mean"`
	CommentMax  int64   `json:"comment_max"`

	LikeSum  int64   `json:"like_sum"`
	LikeMean float64 `json:"like_mean"`
	LikeMax  int64   `json:"like_max"`

	FirstPost time.Time `json:"first_post"`
	LastPost  time.Time `json:"last_post"`
}

// UserStats is the per-user aggregation result.
type UserStats struct {
	TotalUsers int             `json:"total_users"`
	TotalPosts int64           `json:"total_posts"`
	ByGender   map[string]int  `json:"by_gender,omitempty"`
	Users      []UserAggregate `json:"users"`
}

// UserStats aggregates the dataset by user: post counts, engagement sums,
// means and maxima, posting span, and the gender breakdown. Users are
// ordered by total posts, descending.
func (a *Analyzer) UserStats(ctx context.Context, h *table.DatasetHandle) (UserStats, error) {
	req := gate.Request{
		DatasetDigest: h.Digest,
		ComputationID: "user_stats",
		TTL:           userStatsTTL,
	}
	return gate.Do(ctx, a.gate, req, func(ctx context.Context) (UserStats, error) {
		return a.computeUserStats(h)
	})
}

func (a *Analyzer) computeUserStats(h *table.DatasetHandle) (UserStats, error) {
	tbl := h.Table
	if tbl == nil {
		return UserStats{}, ErrNoTable
	}
	userCol, err := requireColumn(tbl, a.fields.UserID)
	if err != nil {
		return UserStats{}, err
	}

	genderCol, _ := tbl.Column(a.fields.Gender)
	provinceCol, _ := tbl.Column(a.fields.Province)
	timeCol, _ := tbl.Column(a.fields.PublishTime)
	repostCol, _ := tbl.Column(a.fields.RepostCount)
	commentCol, _ := tbl.Column(a.fields.CommentCount)
	likeCol, _ := tbl.Column(a.fields.LikeCount)

	byUser := make(map[string]*UserAggregate)
	var order []string
	for i := 0; i < tbl.NumRows(); i++ {
		id := stringAt(userCol, i)
		if id == "" {
			continue
		}
		agg, ok := byUser[id]
		if !ok {
			agg = &UserAggregate{
				UserID:   id,
				Gender:   stringAt(genderCol, i),
				Province: stringAt(provinceCol, i),
			}
			byUser[id] = agg
			order = append(order, id)
		}
		agg.Posts++

		addMetric(repostCol, i, &agg.RepostSum, &agg.RepostMax)
		addMetric(commentCol, i, &agg.CommentSum, &agg.CommentMax)
		addMetric(likeCol, i, &agg.LikeSum, &agg.LikeMax)

		if timeCol != nil {
			if ts, ok := timeCol.Time(i); ok {
				if agg.FirstPost.IsZero() || ts.Before(agg.FirstPost) {
					agg.FirstPost = ts
				}
				if ts.After(agg.LastPost) {
					agg.LastPost = ts
				}
			}
		}
	}

	stats := UserStats{
		TotalUsers: len(byUser),
		ByGender:   make(map[string]int),
		Users:      make([]UserAggregate, 0, len(byUser)),
	}
	for _, id := range order {
		agg := byUser[id]
		if agg.Posts > 0 {
			agg.RepostMean = float64(agg.RepostSum) / float64(agg.Posts)
			agg.CommentMean = float64(agg.CommentSum) / float64(agg.Posts)
			agg.LikeMean = float64(agg.LikeSum) / float64(agg.Posts)
		}
		stats.TotalPosts += agg.Posts
		if agg.Gender != "" {
			stats.ByGender[agg.Gender]++
		}
		stats.Users = append(stats.Users, *agg)
	}
	sort.SliceStable(stats.Users, func(i, j int) bool {
		return stats.Users[i].Posts > stats.Users[j].Posts
	})
	return stats, nil
}

// ActivityProfile is the posting-time breakdown of a dataset.
type ActivityProfile struct {
	// ByHour counts posts per hour of day, index 0-23.
	ByHour [24]int64 `json:"by_hour"`
	// ByWeekday counts posts per weekday, index 0=Monday through 6=Sunday.
	ByWeekday [7]int64 `json:"by_weekday"`
	// ByMonth counts posts per month, index 0=January.
	ByMonth [12]int64 `json:"by_month"`
	// WeekendShare is the fraction of posts made on Saturday or Sunday.
	WeekendShare float64 `json:"weekend_share"`
	// Timed is the number of rows with a parseable publish time.
	Timed int64 `json:"timed"`
}

// ActivityProfile computes when users post: hour-of-day, weekday, and
// month histograms plus the weekend share.
func (a *Analyzer) ActivityProfile(ctx context.Context, h *table.DatasetHandle) (ActivityProfile, error) {
	req := gate.Request{
		DatasetDigest: h.Digest,
		ComputationID: "activity_profile",
		TTL:           activityTTL,
	}
	return gate.Do(ctx, a.gate, req, func(ctx context.Context) (ActivityProfile, error) {
		return a.computeActivityProfile(h)
	})
}

func (a *Analyzer) computeActivityProfile(h *table.DatasetHandle) (ActivityProfile, error) {
	tbl := h.Table
	if tbl == nil {
		return ActivityProfile{}, ErrNoTable
	}
	timeCol, err := requireColumn(tbl, a.fields.PublishTime)
	if err != nil {
		return ActivityProfile{}, err
	}

	var p ActivityProfile
	var weekend int64
	for i := 0; i < tbl.NumRows(); i++ {
		ts, ok := timeCol.Time(i)
		if !ok {
			continue
		}
		p.Timed++
		p.ByHour[ts.Hour()]++
		wd := mondayIndexed(ts.Weekday())
		p.ByWeekday[wd]++
		p.ByMonth[int(ts.Month())-1]++
		if wd >= 5 {
			weekend++
		}
	}
	if p.Timed > 0 {
		p.WeekendShare = float64(weekend) / float64(p.Timed)
	}
	return p, nil
}

// mondayIndexed maps time.Weekday (Sunday=0) to a Monday=0 index, so the
// two weekend days sit at positions 5 and 6.
func mondayIndexed(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// ActivityScore ranks one user by standardized engagement.
type ActivityScore struct {
	UserID string  `json:"user_id"`
	Score  float64 `json:"score"`
}

// ActivityScores standardizes each user's engagement features to z-scores
// and averages them into one activity score. Only the top n users are
// returned; n <= 0 returns everyone.
func (a *Analyzer) ActivityScores(ctx context.Context, h *table.DatasetHandle, n int) ([]ActivityScore, error) {
	req := gate.Request{
		DatasetDigest: h.Digest,
		ComputationID: "activity_scores",
		Params:        fingerprint.Params{"top_n": n},
		TTL:           userStatsTTL,
	}
	return gate.Do(ctx, a.gate, req, func(ctx context.Context) ([]ActivityScore, error) {
		return a.computeActivityScores(h, n)
	})
}

func (a *Analyzer) computeActivityScores(h *table.DatasetHandle, n int) ([]ActivityScore, error) {
	stats, err := a.computeUserStats(h)
	if err != nil {
		return nil, err
	}
	if len(stats.Users) == 0 {
		return []ActivityScore{}, nil
	}

	features := [][]float64{
		userFeature(stats.Users, func(u UserAggregate) float64 { return float64(u.Posts) }),
		userFeature(stats.Users, func(u UserAggregate) float64 { return float64(u.RepostSum) }),
		userFeature(stats.Users, func(u UserAggregate) float64 { return float64(u.CommentSum) }),
		userFeature(stats.Users, func(u UserAggregate) float64 { return float64(u.LikeSum) }),
	}
	for _, f := range features {
		standardize(f)
	}

	scores := make([]ActivityScore, len(stats.Users))
	for i, u := range stats.Users {
		var sum float64
		for _, f := range features {
			sum += f[i]
		}
		scores[i] = ActivityScore{UserID: u.UserID, Score: sum / float64(len(features))}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })

	if n > 0 && n < len(scores) {
		scores = scores[:n]
	}
	return scores, nil
}

func userFeature(users []UserAggregate, get func(UserAggregate) float64) []float64 {
	out := make([]float64, len(users))
	for i, u := range users {
		out[i] = get(u)
	}
	return out
}

// standardize converts values to z-scores in place. A zero-variance
// feature contributes nothing to anyone's score.
func standardize(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x
	}
	mean := sum / float64(len(v))

	var varsum float64
	for _, x := range v {
		d := x - mean
		varsum += d * d
	}
	std := math.Sqrt(varsum / float64(len(v)))
	if std == 0 {
		for i := range v {
			v[i] = 0
		}
		return
	}
	for i := range v {
		v[i] = (v[i] - mean) / std
	}
}

func requireColumn(tbl *table.Table, name string) (*table.Column, error) {
	col, ok := tbl.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnMissing, name)
	}
	return col, nil
}

// stringAt reads a textual value, tolerating numeric id columns.
func stringAt(c *table.Column, i int) string {
	if c == nil {
		return ""
	}
	if s, ok := c.String(i); ok {
		return s
	}
	if v := c.Value(i); v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func addMetric(c *table.Column, i int, sum *int64, max *int64) {
	if c == nil {
		return
	}
	v, ok := c.Float(i)
	if !ok {
		return
	}
	n := int64(v)
	*sum += n
	if n > *max {
		*max = n
	}
}
