package timezones

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/goliatone/go-schemaform/pkg/model"
)

// HandlerConfig configures Handler.
type HandlerConfig struct {
	Zones       []string
	SearchParam string
	LimitParam  string
	// Guard rejects a request with 403 when it returns an error.
	Guard func(r *http.Request) error
}

type optionsResponse struct {
	Data []model.Option `json:"data"`
}

// Handler serves GET and HEAD requests with {"data": [{"value", "label"}]}.
// Query parameters q and limit filter the result unless renamed in cfg.
func Handler(cfg HandlerConfig) http.Handler {
	if cfg.SearchParam == "" {
		cfg.SearchParam = "q"
	}
	if cfg.LimitParam == "" {
		cfg.LimitParam = "limit"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", http.MethodGet+", "+http.MethodHead)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		if cfg.Guard != nil {
			if err := cfg.Guard(r); err != nil {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
		}

		zones := cfg.Zones
		if zones == nil {
			loaded, err := DefaultZones()
			if err != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			zones = loaded
		}

		query := r.URL.Query()
		limit, _ := strconv.Atoi(query.Get(cfg.LimitParam))
		results := Options(zones, query.Get(cfg.SearchParam), limit)
		if results == nil {
			results = []model.Option{}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		_ = json.NewEncoder(w).Encode(optionsResponse{Data: results})
	})
}
