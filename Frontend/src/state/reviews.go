package state

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/ahinestrog/bookshop/common"
)

var errInvalidRating = errors.New("state: rating must be between 1 and 5")

// Stats summarizes the loaded reviews of one book. Histogram always has the
// keys 1 through 5.
type Stats struct {
	Average   float64
	Total     int
	Histogram map[int]int
}

type SortOrder int

const (
	SortNewest SortOrder = iota
	SortOldest
	SortHighest
	SortLowest
	SortHelpful
)

// Reviews keeps the fetched reviews per book, in fetch order. It does not
// enforce one review per user; callers check HasUserReviewed first.
type Reviews struct {
	opts   options
	remote RemoteReviews

	op sync.Mutex

	mu     sync.RWMutex
	byBook map[int64][]common.Review
	busy   int
}

func NewReviews(remote RemoteReviews, opts ...Option) *Reviews {
	return &Reviews{
		opts:   buildOptions(opts),
		remote: remote,
		byBook: map[int64][]common.Review{},
	}
}

func (r *Reviews) begin() {
	r.op.Lock()
	r.mu.Lock()
	r.busy++
	r.mu.Unlock()
}

func (r *Reviews) end() {
	r.mu.Lock()
	r.busy--
	r.mu.Unlock()
	r.op.Unlock()
}

func (r *Reviews) fail(op string, err error) Result {
	res := Failed(err)
	r.opts.log.Warn().Err(err).Str("op", op).Str("kind", res.Kind.String()).Msg("review operation failed")
	return res
}

// Load replaces the reviews of bookID with the remote list.
func (r *Reviews) Load(ctx context.Context, bookID int64) Result {
	if r.remote == nil {
		return r.fail("load", errNoRemote)
	}
	r.begin()
	defer r.end()
	list, err := r.remote.List(ctx, bookID)
	if err != nil {
		return r.fail("load", err)
	}
	r.mu.Lock()
	r.byBook[bookID] = cloneReviews(list)
	r.mu.Unlock()
	return succeeded()
}

func validRating(n int) bool { return n >= 1 && n <= 5 }

func (r *Reviews) Create(ctx context.Context, bookID int64, in common.ReviewInput) Result {
	if !validRating(in.Rating) {
		return invalid(errInvalidRating, "Rating must be between 1 and 5 stars.")
	}
	if r.remote == nil {
		return r.fail("create", errNoRemote)
	}
	r.begin()
	defer r.end()
	rev, err := r.remote.Create(ctx, bookID, in)
	if err != nil {
		return r.fail("create", err)
	}
	if rev.BookID == 0 {
		rev.BookID = bookID
	}
	r.mu.Lock()
	r.byBook[rev.BookID] = append(r.byBook[rev.BookID], rev)
	r.mu.Unlock()
	return succeeded()
}

func (r *Reviews) Update(ctx context.Context, reviewID string, in common.ReviewInput) Result {
	if !validRating(in.Rating) {
		return invalid(errInvalidRating, "Rating must be between 1 and 5 stars.")
	}
	if r.remote == nil {
		return r.fail("update", errNoRemote)
	}
	r.begin()
	defer r.end()
	rev, err := r.remote.Update(ctx, reviewID, in)
	if err != nil {
		return r.fail("update", err)
	}
	r.replace(rev)
	return succeeded()
}

func (r *Reviews) MarkHelpful(ctx context.Context, reviewID string) Result {
	if r.remote == nil {
		return r.fail("helpful", errNoRemote)
	}
	r.begin()
	defer r.end()
	rev, err := r.remote.MarkHelpful(ctx, reviewID)
	if err != nil {
		return r.fail("helpful", err)
	}
	r.replace(rev)
	return succeeded()
}

func (r *Reviews) Delete(ctx context.Context, reviewID string) Result {
	if r.remote == nil {
		return r.fail("delete", errNoRemote)
	}
	r.begin()
	defer r.end()
	if err := r.remote.Delete(ctx, reviewID); err != nil {
		return r.fail("delete", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for book, list := range r.byBook {
		out := list[:0]
		for _, rev := range list {
			if rev.ID != reviewID {
				out = append(out, rev)
			}
		}
		r.byBook[book] = out
	}
	return succeeded()
}

// replace swaps the stored copy of rev in place, keeping its position.
func (r *Reviews) replace(rev common.Review) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for book, list := range r.byBook {
		for i := range list {
			if list[i].ID == rev.ID {
				r.byBook[book][i] = rev
				return
			}
		}
	}
}

// List returns the reviews of bookID in fetch order.
func (r *Reviews) List(bookID int64) []common.Review {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneReviews(r.byBook[bookID])
}

// Sorted returns a sorted copy; the stored order is unchanged.
func (r *Reviews) Sorted(bookID int64, order SortOrder) []common.Review {
	out := r.List(bookID)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch order {
		case SortOldest:
			return a.CreatedAt.Before(b.CreatedAt)
		case SortHighest:
			return a.Rating > b.Rating
		case SortLowest:
			return a.Rating < b.Rating
		case SortHelpful:
			return a.Helpful > b.Helpful
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
	return out
}

func (r *Reviews) RatingStats(bookID int64) Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := Stats{Histogram: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}
	list := r.byBook[bookID]
	if len(list) == 0 {
		return st
	}
	sum := 0
	for _, rev := range list {
		// fuera de rango: no cuenta ni en el promedio ni en el histograma
		if !validRating(rev.Rating) {
			continue
		}
		sum += rev.Rating
		st.Histogram[rev.Rating]++
		st.Total++
	}
	if st.Total > 0 {
		st.Average = math.Round(float64(sum)/float64(st.Total)*10) / 10
	}
	return st
}

func (r *Reviews) HasUserReviewed(bookID, userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rev := range r.byBook[bookID] {
		if rev.UserID == userID {
			return true
		}
	}
	return false
}

func (r *Reviews) Busy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.busy > 0
}

func cloneReviews(src []common.Review) []common.Review {
	out := make([]common.Review, len(src))
	copy(out, src)
	return out
}
