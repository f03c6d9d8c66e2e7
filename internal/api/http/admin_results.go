package http

import (
	"math"
	"net/http"
	"strconv"

	"github.com/mind-engage/testportal/internal/store"
)

// GET /api/admin/results[?student_id=]
func ResultsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sid int64
		if v := r.URL.Query().Get("student_id"); v != "" {
			sid, _ = strconv.ParseInt(v, 10, 64)
		}
		results, err := s.ListResults(r.Context(), sid)
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, http.StatusOK, envelope{"results": results})
	}
}

// GET /api/admin/ranking orders students with at least one result by
// average score. No results yields an empty list, not an error.
func RankingHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rank, err := s.Ranking(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		for i := range rank {
			rank[i].AvgScore = math.Round(rank[i].AvgScore*10) / 10
		}
		writeOK(w, http.StatusOK, envelope{"ranking": rank})
	}
}

// GET /api/admin/activity[?limit=]
func ActivityHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntDefault(r.URL.Query().Get("limit"), store.DefaultActivityLimit)
		acts, err := s.ListActivity(r.Context(), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, http.StatusOK, envelope{"activity": acts})
	}
}
