package export

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/airbusgeo/lulc-exporter/catalog/entities"
	"github.com/airbusgeo/lulc-exporter/service/log"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (e *Exporter) AddHandler(r *mux.Router) {
	r.HandleFunc("/export", e.ExportHandler).Methods("POST")
}

// ExportHandler runs the pipeline for the posted AreaToExport and returns the
// uris of the stored products
func (e *Exporter) ExportHandler(w http.ResponseWriter, req *http.Request) {
	area := entities.AreaToExport{}
	if err := json.NewDecoder(req.Body).Decode(&area); err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "decode area: %v", err)
		return
	}

	ctx := log.With(req.Context(), zap.String("aoi", area.AOIID))
	uris, err := e.ExportArea(ctx, area)
	if err != nil {
		log.Logger(ctx).Error("ExportArea", zap.Error(err))
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Products []string `json:"products"`
	}{Products: uris})
}
