package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bulutsoft-dev/Transmind-PI/internal/api/models"
	"github.com/bulutsoft-dev/Transmind-PI/internal/capture"
	"github.com/bulutsoft-dev/Transmind-PI/internal/registry"
)

type deviceInput struct {
	ID string `path:"id" example:"lab_rpi_1" doc:"Device identifier"`
}

func (s *Server) deviceData(d registry.Device, active string) models.DeviceData {
	return models.DeviceData{
		Device:    d,
		StreamURL: registry.StreamURL(d),
		Active:    d.ID == active,
	}
}

func (s *Server) registerDeviceRoutes() {
	s.registerCaptureDeviceRoutes()

	reg := s.options.Registry
	if reg == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List every registered streaming node",
		Tags:        []string{"devices"},
	}, func(_ context.Context, _ *struct{}) (*models.DeviceListResponse, error) {
		active := reg.ActiveID()
		devices := reg.List()
		data := make([]models.DeviceData, len(devices))
		for i, d := range devices {
			data[i] = s.deviceData(d, active)
		}
		return &models.DeviceListResponse{
			Body: models.DeviceListData{
				Devices: data,
				Active:  active,
				Count:   len(data),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-active-device",
		Method:      http.MethodGet,
		Path:        "/api/devices/active",
		Summary:     "Active Device",
		Description: "Get the device this node streams for",
		Tags:        []string{"devices"},
		Errors:      []int{404},
	}, func(_ context.Context, _ *struct{}) (*models.DeviceResponse, error) {
		d, err := reg.Active()
		if err != nil {
			return nil, mapRegistryError(err)
		}
		return &models.DeviceResponse{Body: s.deviceData(d, d.ID)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-device",
		Method:      http.MethodGet,
		Path:        "/api/devices/{id}",
		Summary:     "Get Device",
		Description: "Get one registered device",
		Tags:        []string{"devices"},
		Errors:      []int{404},
	}, func(_ context.Context, input *deviceInput) (*models.DeviceResponse, error) {
		d, err := reg.Get(input.ID)
		if err != nil {
			return nil, mapRegistryError(err)
		}
		return &models.DeviceResponse{Body: s.deviceData(d, reg.ActiveID())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "redirect-device-stream",
		Method:        http.MethodGet,
		Path:          "/devices/{id}/stream",
		Summary:       "Device Stream",
		Description:   "Redirect to the MJPEG endpoint of a registered device",
		Tags:          []string{"devices"},
		DefaultStatus: http.StatusFound,
		Errors:      []int{404},
	}, func(_ context.Context, input *deviceInput) (*models.DeviceStreamRedirect, error) {
		d, err := reg.Get(input.ID)
		if err != nil {
			return nil, mapRegistryError(err)
		}
		url := registry.StreamURL(d)
		if url == "" {
			return nil, huma.Error404NotFound("device " + d.ID + " has no stream endpoint")
		}
		return &models.DeviceStreamRedirect{Status: http.StatusFound, Location: url}, nil
	})
}

func (s *Server) registerCaptureDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-capture-devices",
		Method:      http.MethodGet,
		Path:        "/api/capture/devices",
		Summary:     "List Capture Devices",
		Description: "List local Video4Linux nodes and whether they offer MJPEG",
		Tags:        []string{"devices"},
		Errors:      []int{500, 501},
	}, func(_ context.Context, _ *struct{}) (*models.CaptureDeviceListResponse, error) {
		devices, err := capture.ListDevices()
		if err != nil {
			if errors.Is(err, capture.ErrUnsupported) {
				return nil, huma.Error501NotImplemented(err.Error())
			}
			return nil, huma.Error500InternalServerError("failed to list capture devices", err)
		}
		return &models.CaptureDeviceListResponse{
			Body: models.CaptureDeviceListData{
				Devices: devices,
				Count:   len(devices),
			},
		}, nil
	})
}

func mapRegistryError(err error) error {
	if errors.Is(err, registry.ErrNotFound) {
		return huma.Error404NotFound(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}
