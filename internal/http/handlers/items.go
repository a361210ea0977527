package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"genstudio/pkg/zip"
)

func (a *App) GetItem(w http.ResponseWriter, r *http.Request) {
	rec, err := a.Items.Item(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "stage"), chi.URLParam(r, "itemID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, rec)
}

func (a *App) ListItems(w http.ResponseWriter, r *http.Request) {
	recs, err := a.Items.ListStage(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "stage"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": recs})
}

// ExportStage streams a zip of every persisted output of a project stage.
func (a *App) ExportStage(w http.ResponseWriter, r *http.Request) {
	projectID, stage := chi.URLParam(r, "projectID"), chi.URLParam(r, "stage")
	assets, err := a.Items.Export(r.Context(), projectID, stage, a.Blobs)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s-%s.zip", projectID, stage))
	if err := zip.Write(w, assets); err != nil {
		a.Logger.Error().Err(err).Str("project_id", projectID).Str("stage", stage).Msg("export failed")
	}
}
