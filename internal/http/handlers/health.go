package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "queue": a.Queue != nil}
	if a.Planner != nil {
		body["products"] = a.Planner.Catalog().Products()
	}
	a.json(w, http.StatusOK, body)
}
