package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/kallsyms/nexrad-ingest/archive2"
	"github.com/kallsyms/nexrad-ingest/internal/manager"
	"github.com/kallsyms/nexrad-ingest/internal/objectstore"
	"github.com/kallsyms/nexrad-ingest/internal/radarsite"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveFlags struct {
	Addr          string
	RadarID       string
	Lat, Lon, Alt float64
	TDWR          bool
	ArchiveBucket string
	ChunkedBucket string
	Level3Bucket  string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the Radar Product Manager as an HTTP service (spec.md section 4.7)",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.Addr, "addr", "0.0.0.0:8081", "listen address")
	f.StringVar(&serveFlags.RadarID, "radar-id", "", "radar site id, e.g. KMPX (required)")
	f.Float64Var(&serveFlags.Lat, "lat", 0, "radar site latitude")
	f.Float64Var(&serveFlags.Lon, "lon", 0, "radar site longitude")
	f.Float64Var(&serveFlags.Alt, "alt", 0, "radar site altitude (meters)")
	f.BoolVar(&serveFlags.TDWR, "tdwr", false, "site is a TDWR (skips coordinate table precompute)")
	f.StringVar(&serveFlags.ArchiveBucket, "archive-bucket", "noaa-nexrad-level2", "Level-2 archive bucket")
	f.StringVar(&serveFlags.ChunkedBucket, "chunked-bucket", "unidata-nexrad-level2-chunks", "Level-2 chunked (realtime) bucket")
	f.StringVar(&serveFlags.Level3Bucket, "level3-bucket", "gcp-public-data-nexrad-l3-realtime", "Level-3 bucket")
	serveCmd.MarkFlagRequired("radar-id")
}

// apiServer holds the one manager this process serves. A production
// deployment runs one nexrad-ingest process per radar id (spec.md section
// 4.7: "one instance per radar id"); serving multiple sites from one
// process is a matter of routing /radar/{id}/... to multiple managers,
// which Instance already supports.
type apiServer struct {
	mgr *manager.RadarProductManager
}

func runServe(cmd *cobra.Command, args []string) error {
	site := radarsite.Site{
		ID:        serveFlags.RadarID,
		Latitude:  serveFlags.Lat,
		Longitude: serveFlags.Lon,
		Altitude:  serveFlags.Alt,
	}
	if serveFlags.TDWR {
		site.Type = radarsite.SiteTDWR
	}

	s3Client, err := objectstore.NewS3Client("us-east-1")
	if err != nil {
		return err
	}
	gcsClient, err := objectstore.NewGCSClient(context.Background())
	if err != nil {
		return err
	}

	mgr := manager.Instance(site, s3Client, serveFlags.ArchiveBucket, s3Client, serveFlags.ChunkedBucket, gcsClient, serveFlags.Level3Bucket, onDataReloaded)
	if err := mgr.Initialize(context.Background()); err != nil {
		return err
	}

	api := &apiServer{mgr: mgr}

	r := mux.NewRouter()
	r.HandleFunc("/radar/{id}/level2/{moment}/{elevation}/{time}", api.getLevel2Data).Methods("GET")
	r.HandleFunc("/radar/{id}/level3/{product}/{time}", api.getLevel3Product).Methods("GET")
	r.HandleFunc("/radar/{id}/volume-times/{time}", api.getActiveVolumeTimes).Methods("GET")

	srv := &http.Server{
		Addr:         serveFlags.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	logrus.WithField("addr", serveFlags.Addr).Info("nexrad-ingest serving")
	return srv.ListenAndServe()
}

func onDataReloaded(e manager.Event) {
	logrus.WithFields(logrus.Fields{"radar": e.RadarID, "product": e.Product, "time": e.Time}).Debug("data reloaded")
}

// parseRequestTime parses the {time} path segment: either "latest" (the
// epoch sentinel, spec.md section 9) or RFC3339.
func parseRequestTime(s string) (time.Time, error) {
	if s == "latest" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func (a *apiServer) getLevel2Data(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if vars["id"] != a.mgr.RadarID {
		http.Error(w, "unknown radar id", http.StatusNotFound)
		return
	}

	elevation, err := strconv.ParseFloat(vars["elevation"], 32)
	if err != nil {
		http.Error(w, "invalid elevation", http.StatusBadRequest)
		return
	}
	t, err := parseRequestTime(vars["time"])
	if err != nil {
		http.Error(w, "invalid time", http.StatusBadRequest)
		return
	}

	result, err := a.mgr.GetLevel2Data(r.Context(), archive2.DataBlockType(vars["moment"]), float32(elevation), t)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":          result.Status.String(),
		"elevation_angle": result.ElevationAngle,
		"all_cuts":        result.AllCuts,
		"found_time":      result.FoundTime,
		"radial_count":    len(result.Scan),
	})
}

func (a *apiServer) getLevel3Product(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if vars["id"] != a.mgr.RadarID {
		http.Error(w, "unknown radar id", http.StatusNotFound)
		return
	}

	t, err := parseRequestTime(vars["time"])
	if err != nil {
		http.Error(w, "invalid time", http.StatusBadRequest)
		return
	}

	rec, status, err := a.mgr.GetLevel3ProductRecord(r.Context(), vars["product"], t)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{"status": status.String()}
	if rec != nil {
		resp["time"] = rec.Time
		resp["bytes"] = len(rec.Level3Data)
	}
	json.NewEncoder(w).Encode(resp)
}

func (a *apiServer) getActiveVolumeTimes(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if vars["id"] != a.mgr.RadarID {
		http.Error(w, "unknown radar id", http.StatusNotFound)
		return
	}

	t, err := parseRequestTime(vars["time"])
	if err != nil {
		http.Error(w, "invalid time", http.StatusBadRequest)
		return
	}

	times, err := a.mgr.GetActiveVolumeTimes(r.Context(), t)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]time.Time, 0, len(times))
	for t := range times {
		out = append(out, t)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
