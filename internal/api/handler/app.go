package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/homedock/internal/api/request"
	"github.com/edvin/homedock/internal/api/response"
	"github.com/edvin/homedock/internal/compose"
	"github.com/edvin/homedock/internal/deploy"
	"github.com/edvin/homedock/internal/model"
)

type Deployer interface {
	Deploy(ctx context.Context, req model.DeployRequest) (model.DeployResult, error)
}

type AppLister interface {
	List(ctx context.Context) ([]model.InstalledApp, error)
}

type App struct {
	deployer Deployer
	apps     AppLister
}

func NewApp(deployer Deployer, apps AppLister) *App {
	return &App{deployer: deployer, apps: apps}
}

// Deploy runs a deploy attempt and answers when it has finished. Progress
// is observed through the state stream.
func (h *App) Deploy(w http.ResponseWriter, r *http.Request) {
	var req request.DeployApp
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Image pulls outlast the server write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("failed to clear write deadline")
	}

	res, err := h.deployer.Deploy(r.Context(), req.ToModel())
	switch {
	case errors.Is(err, deploy.ErrDeployInProgress):
		response.WriteJSON(w, http.StatusConflict, res)
	case err != nil:
		response.WriteJSON(w, http.StatusUnprocessableEntity, res)
	default:
		response.WriteJSON(w, http.StatusOK, res)
	}
}

type convertResponse struct {
	Success bool   `json:"success"`
	YAML    string `json:"yaml,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *App) Convert(w http.ResponseWriter, r *http.Request) {
	var req request.ConvertRun
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := compose.ConvertRunCommand(req.Command)
	if err != nil {
		response.WriteJSON(w, http.StatusUnprocessableEntity, convertResponse{Error: err.Error()})
		return
	}
	response.WriteJSON(w, http.StatusOK, convertResponse{Success: true, YAML: out})
}

func (h *App) List(w http.ResponseWriter, r *http.Request) {
	apps, err := h.apps.List(r.Context())
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if apps == nil {
		apps = []model.InstalledApp{}
	}
	response.WriteJSON(w, http.StatusOK, apps)
}
