package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/menu_agent/internal/snapshot"
	"github.com/dgnsrekt/menu_agent/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Service interface {
	StartCapture(ctx context.Context, storeURL string) (types.CaptureRun, error)
	ListCaptures(ctx context.Context) ([]types.CaptureRun, error)
	GetCapture(ctx context.Context, id string) (types.CaptureRun, error)
	GetCaptureItems(ctx context.Context, id string) ([]types.MenuItemRecord, error)
	ListSnapshots(ctx context.Context) ([]snapshot.Meta, error)
	GetSnapshot(ctx context.Context, id string) (snapshot.Meta, error)
	ReadSnapshotImage(ctx context.Context, id string) ([]byte, string, error)
}

type captureIDInput struct {
	ID string `path:"id" doc:"Capture run ID"`
}

type captureOutput struct {
	Body types.CaptureRun
}

func NewServer(svc Service) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Menu Agent Controller API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	registerHealthHandlers(api)
	registerCaptureHandlers(api, svc)
	registerSnapshotHandlers(api, svc)

	return router
}

func registerHealthHandlers(api huma.API) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})
}

func registerCaptureHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "start-capture", Method: http.MethodPost, Path: "/api/v1/captures", Summary: "Start a menu capture run", Tags: []string{"Captures"}, DefaultStatus: http.StatusAccepted},
		func(ctx context.Context, input *struct {
			Body struct {
				StoreURL string `json:"store_url,omitempty" doc:"Store page URL. Defaults to MENU_STORE_URL."`
			}
		}) (*captureOutput, error) {
			run, err := svc.StartCapture(ctx, input.Body.StoreURL)
			if err != nil {
				return nil, mapErr(err)
			}
			return &captureOutput{Body: run}, nil
		})

	type listCapturesOutput struct {
		Body struct {
			Captures []types.CaptureRun `json:"captures"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-captures", Method: http.MethodGet, Path: "/api/v1/captures", Summary: "List capture runs, newest first", Tags: []string{"Captures"}},
		func(ctx context.Context, input *struct{}) (*listCapturesOutput, error) {
			runs, err := svc.ListCaptures(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listCapturesOutput{}
			out.Body.Captures = runs
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-capture", Method: http.MethodGet, Path: "/api/v1/captures/{id}", Summary: "Get capture run status", Tags: []string{"Captures"}},
		func(ctx context.Context, input *captureIDInput) (*captureOutput, error) {
			run, err := svc.GetCapture(ctx, input.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &captureOutput{Body: run}, nil
		})

	type itemsOutput struct {
		Body []map[string]json.RawMessage
	}
	huma.Register(api, huma.Operation{OperationID: "get-capture-items", Method: http.MethodGet, Path: "/api/v1/captures/{id}/items", Summary: "Get captured menu items as [{name: item}]", Tags: []string{"Captures"}},
		func(ctx context.Context, input *captureIDInput) (*itemsOutput, error) {
			records, err := svc.GetCaptureItems(ctx, input.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &itemsOutput{Body: make([]map[string]json.RawMessage, 0, len(records))}
			for _, rec := range records {
				out.Body = append(out.Body, map[string]json.RawMessage{rec.Name: rec.Payload})
			}
			return out, nil
		})
}

func registerSnapshotHandlers(api huma.API, svc Service) {
	type listSnapshotsOutput struct {
		Body struct {
			Snapshots []snapshot.Meta `json:"snapshots"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-snapshots", Method: http.MethodGet, Path: "/api/v1/snapshots", Summary: "List failure screenshots", Tags: []string{"Snapshots"}},
		func(ctx context.Context, input *struct{}) (*listSnapshotsOutput, error) {
			metas, err := svc.ListSnapshots(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listSnapshotsOutput{}
			out.Body.Snapshots = metas
			if out.Body.Snapshots == nil {
				out.Body.Snapshots = []snapshot.Meta{}
			}
			return out, nil
		})

	type snapshotIDInput struct {
		SnapshotID string `path:"snapshot_id"`
	}
	type getSnapshotOutput struct {
		Body snapshot.Meta
	}
	huma.Register(api, huma.Operation{OperationID: "get-snapshot-metadata", Method: http.MethodGet, Path: "/api/v1/snapshots/{snapshot_id}/metadata", Summary: "Get failure screenshot metadata", Tags: []string{"Snapshots"}},
		func(ctx context.Context, input *snapshotIDInput) (*getSnapshotOutput, error) {
			meta, err := svc.GetSnapshot(ctx, input.SnapshotID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &getSnapshotOutput{Body: meta}, nil
		})

	type snapshotImageOutput struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-snapshot-image",
		Method:      http.MethodGet,
		Path:        "/api/v1/snapshots/{snapshot_id}/image",
		Summary:     "Get failure screenshot image",
		Tags:        []string{"Snapshots"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Snapshot image",
				Content: map[string]*huma.MediaType{
					"image/png": {
						Schema: &huma.Schema{Type: "string", Format: "binary"},
					},
				},
			},
		},
	}, func(ctx context.Context, input *snapshotIDInput) (*snapshotImageOutput, error) {
		data, format, err := svc.ReadSnapshotImage(ctx, input.SnapshotID)
		if err != nil {
			return nil, mapErr(err)
		}
		ct := "image/png"
		if format == "jpeg" {
			ct = "image/jpeg"
		}
		return &snapshotImageOutput{ContentType: ct, Body: data}, nil
	})
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *types.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case types.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case types.CodeRunNotFound, types.CodeSnapshotNotFound:
			return huma.Error404NotFound(coded.Message)
		case types.CodeRunActive:
			return huma.Error409Conflict(coded.Message)
		case types.CodeSessionProvision:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
