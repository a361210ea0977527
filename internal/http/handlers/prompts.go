package handlers

import (
	"context"
	"maps"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"genstudio/internal/adaptor"
	"genstudio/internal/domain"
	"genstudio/internal/domain/jsoncfg"
	"genstudio/internal/middleware"
	"genstudio/internal/resolver"
)

type fragmentRequest struct {
	Role string `json:"role" validate:"required,oneof=system user"`
	Text string `json:"text" validate:"required"`
}

type modelRequest struct {
	AdaptorID string `json:"adaptorId" validate:"required"`
	ModelID   string `json:"modelId"`
}

func (m *modelRequest) config(source domain.ModelSource) *domain.ModelConfig {
	if m == nil {
		return nil
	}
	return &domain.ModelConfig{AdaptorID: m.AdaptorID, ModelID: m.ModelID, Source: source}
}

type templateRequest struct {
	StageType string            `json:"stageType" validate:"required"`
	PromptID  string            `json:"promptId" validate:"required"`
	Fragments []fragmentRequest `json:"fragments" validate:"required,min=1,dive"`
	Variables map[string]string `json:"variables"`
	Model     *modelRequest     `json:"model" validate:"omitempty"`
}

func (t templateRequest) template() domain.PromptTemplate {
	tpl := domain.PromptTemplate{
		StageType: t.StageType,
		PromptID:  t.PromptID,
		Variables: t.Variables,
		Model:     t.Model.config(""),
	}
	for _, f := range t.Fragments {
		tpl.Fragments = append(tpl.Fragments, domain.PromptFragment{Role: domain.FragmentRole(f.Role), Text: f.Text})
	}
	return tpl
}

// readTemplate decodes a template body; path parameters win over the body.
func (a *App) readTemplate(r *http.Request) (domain.PromptTemplate, error) {
	var req templateRequest
	if err := a.read(r, &req); err != nil {
		return domain.PromptTemplate{}, err
	}
	if v := chi.URLParam(r, "stageType"); v != "" {
		req.StageType = v
	}
	if v := chi.URLParam(r, "promptID"); v != "" {
		req.PromptID = v
	}
	if err := a.check(&req); err != nil {
		return domain.PromptTemplate{}, err
	}
	return req.template(), nil
}

// ResolvePrompt returns the effective template for a stage capability,
// honouring the project override when projectId is given.
func (a *App) ResolvePrompt(w http.ResponseWriter, r *http.Request) {
	capability := domain.ParseCapability(chi.URLParam(r, "promptID"))
	if capability == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "unsupported capability")
		return
	}
	ref, err := a.Resolver.ResolvePrompt(r.Context(), chi.URLParam(r, "stageType"), capability, r.URL.Query().Get("projectId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, ref)
}

func (a *App) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := a.readTemplate(r)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	saved, err := a.Editor.AddTemplate(r.Context(), tpl)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, saved)
}

func (a *App) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := a.readTemplate(r)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	saved, err := a.Editor.UpdateTemplate(r.Context(), tpl)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, saved)
}

func (a *App) SaveOverride(w http.ResponseWriter, r *http.Request) {
	tpl, err := a.readTemplate(r)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	saved, err := a.Editor.SaveOverride(r.Context(), chi.URLParam(r, "projectID"), tpl)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, saved)
}

func (a *App) DeleteOverride(w http.ResponseWriter, r *http.Request) {
	err := a.Editor.DeleteOverride(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "stageType"), chi.URLParam(r, "promptID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SaveModelConfig stores the project's model choice for a stage capability.
func (a *App) SaveModelConfig(w http.ResponseWriter, r *http.Request) {
	capability := domain.ParseCapability(chi.URLParam(r, "capability"))
	if capability == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "unsupported capability")
		return
	}
	var req modelRequest
	if err := a.decode(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	cfg := domain.ProjectModelConfig{
		ProjectID:  chi.URLParam(r, "projectID"),
		StageType:  chi.URLParam(r, "stageType"),
		Capability: capability,
		Model:      *req.config(domain.ModelSourceProject),
	}
	if err := a.Editor.SaveModelConfig(r.Context(), cfg); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, cfg)
}

func (a *App) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := a.Templates.Versions(r.Context(), chi.URLParam(r, "stageType"), chi.URLParam(r, "promptID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"versions": versions})
}

type createVersionRequest struct {
	Note string `json:"note" validate:"max=500"`
}

func (a *App) CreateVersion(w http.ResponseWriter, r *http.Request) {
	var req createVersionRequest
	if r.ContentLength != 0 {
		if err := a.decode(r, &req); err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
	}
	v, err := a.Editor.CreateVersion(r.Context(), chi.URLParam(r, "stageType"), chi.URLParam(r, "promptID"), req.Note)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, v)
}

func (a *App) ActivateVersion(w http.ResponseWriter, r *http.Request) {
	version, ok := a.versionParam(w, r)
	if !ok {
		return
	}
	tpl, err := a.Editor.ActivateVersion(r.Context(), chi.URLParam(r, "stageType"), chi.URLParam(r, "promptID"), version)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, tpl)
}

func (a *App) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	version, ok := a.versionParam(w, r)
	if !ok {
		return
	}
	if err := a.Editor.DeleteVersion(r.Context(), chi.URLParam(r, "stageType"), chi.URLParam(r, "promptID"), version); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) versionParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || v < 1 {
		a.error(w, http.StatusBadRequest, "bad_request", "version must be a positive integer")
		return 0, false
	}
	return v, true
}

// InvalidateCache drops every cached prompt and model resolution.
func (a *App) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	a.Resolver.InvalidateCache()
	w.WriteHeader(http.StatusNoContent)
}

type promptTestRequest struct {
	StageType  string         `json:"stageType" validate:"required"`
	Capability string         `json:"capability" validate:"required,oneof=text image video"`
	PromptID   string         `json:"promptId"`
	ProjectID  string         `json:"projectId"`
	Variables  map[string]any `json:"variables"`
	Options    map[string]any `json:"options"`
	Model      *modelRequest  `json:"model" validate:"required"`
}

type promptTestResponse struct {
	Template *resolver.ResolvedTemplateRef `json:"template"`
	Prompt   domain.ResolvedPrompt         `json:"prompt"`
	Result   *domain.JobResult             `json:"result"`
}

// TestPrompt renders a template and runs it once against an explicitly chosen
// model. Nothing is persisted.
func (a *App) TestPrompt(w http.ResponseWriter, r *http.Request) {
	var req promptTestRequest
	if err := a.decode(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	capability := domain.Capability(req.Capability)
	promptID := req.PromptID
	if promptID == "" {
		promptID = capability.String()
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.PromptTestTimeout)
	defer cancel()

	ref, err := a.Resolver.Prompts.ResolveID(ctx, req.StageType, promptID, req.ProjectID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	handle, err := a.Resolver.Models.ResolveFor(ctx, req.ProjectID, req.StageType, promptID, capability, req.Model.config(domain.ModelSourceExplicit))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	vars := maps.Clone(req.Variables)
	if vars == nil {
		vars = make(map[string]any)
	}
	if _, ok := vars["locale"]; !ok {
		vars["locale"] = locale
	}
	opts := jsoncfg.OptionsFromInput(req.Options)
	opts.Normalize(locale)
	if err := opts.Validate(); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	prompt := ref.Render(vars)
	res, err := handle.Generate(ctx, capability, adaptor.Request{Prompt: prompt, Options: opts})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, promptTestResponse{Template: ref, Prompt: prompt, Result: res})
}
