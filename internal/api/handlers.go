package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/plates-cli/internal/model"
)

const (
	defaultTopN = 10
	maxTopN     = 1000
)

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

type countResponse struct {
	TotalRecords int64 `json:"total_records"`
}

func (s *Server) getCount(w http.ResponseWriter, r *http.Request) error {
	total, err := s.q.TotalRecordCount(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, countResponse{TotalRecords: total})
	return nil
}

type segmentResponse struct {
	model.SegmentStatistic
	OneIn *float64 `json:"one_in,omitempty"`
}

func (s *Server) getSegment(w http.ResponseWriter, r *http.Request) error {
	raw := chi.URLParam(r, "value")
	v, err := strconv.Atoi(raw)
	if err != nil {
		return badRequest("value must be an integer: %q", raw)
	}

	stat, err := s.q.Check(r.Context(), v)
	if err != nil {
		return err
	}

	resp := segmentResponse{SegmentStatistic: stat}
	if n, ok := stat.OneIn(); ok {
		resp.OneIn = &n
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

type topResponse struct {
	Order  string               `json:"order"`
	Values []model.SegmentCount `json:"values"`
}

func (s *Server) getTop(w http.ResponseWriter, r *http.Request) error {
	n := defaultTopN
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxTopN {
			return badRequest("n must be an integer between 1 and %d", maxTopN)
		}
		n = parsed
	}

	order := r.URL.Query().Get("order")
	var rarest bool
	switch order {
	case "", "common":
		order = "common"
	case "rarest":
		rarest = true
	default:
		return badRequest("order must be %q or %q", "common", "rarest")
	}

	values, err := s.q.Leaderboard(r.Context(), n, rarest)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, topResponse{Order: order, Values: values})
	return nil
}
