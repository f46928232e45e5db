package main

import (
	"encoding/json"
	"net/http"

	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/CamberLoid/Chimata-Payroll/internal/restfulpayload"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var errNoPrincipal = errors.New("missing or malformed " + restfulpayload.PrincipalHeader + " header")

func (a *App) HandleNotFound(w http.ResponseWriter, req *http.Request) {
	a.returnFailure(w, req, errors.New("function not found: "+req.RequestURI), http.StatusNotFound)
}

// Generic failure
func (a *App) returnFailure(w http.ResponseWriter, req *http.Request, err error, statusCode int) {
	respJSON, _ := json.Marshal(restfulpayload.Response{
		Status: restfulpayload.StatusFailed,
		Err:    err.Error(),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(respJSON)
	if statusCode >= http.StatusInternalServerError {
		a.Logger.Error("request failed", "uri", req.RequestURI, "status", statusCode, "err", err)
	} else {
		a.Logger.Warn("request rejected", "uri", req.RequestURI, "status", statusCode, "err", err)
	}
}

func (a *App) returnSuccess(w http.ResponseWriter, req *http.Request, data any) {
	resp := restfulpayload.Response{Status: restfulpayload.StatusOK}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			a.returnFailure(w, req, err, http.StatusInternalServerError)
			return
		}
		resp.Data = raw
	}
	respJSON, _ := json.Marshal(resp)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(respJSON)
	a.Logger.Info("Proceeded request", "uri", req.RequestURI)
}

// principalOf 读取调用者身份
func principalOf(req *http.Request) (uuid.UUID, error) {
	p, err := uuid.Parse(req.Header.Get(restfulpayload.PrincipalHeader))
	if err != nil || p == uuid.Nil {
		return uuid.Nil, errNoPrincipal
	}
	return p, nil
}

// handle 完成解码、身份读取和错误映射，fn 返回的数据写入响应的 data 字段
func handle[T any](a *App, w http.ResponseWriter, req *http.Request, fn func(caller uuid.UUID, body T) (any, error)) {
	a.Logger.Debug("New incoming request", "uri", req.RequestURI)
	if req.Method != http.MethodPost {
		a.returnFailure(w, req, errors.Errorf("method %s not allowed", req.Method), http.StatusMethodNotAllowed)
		return
	}
	caller, err := principalOf(req)
	if err != nil {
		a.returnFailure(w, req, err, http.StatusUnauthorized)
		return
	}

	var body T
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		a.returnFailure(w, req, errors.Wrap(payroll.ErrInvalidParameters, err.Error()), http.StatusBadRequest)
		return
	}

	data, err := fn(caller, body)
	if err != nil {
		a.returnFailure(w, req, err, statusCodeOf(err))
		return
	}
	a.returnSuccess(w, req, data)
}

// Handle /version request
func (a *App) HandlerVersion(w http.ResponseWriter, req *http.Request) {
	a.returnSuccess(w, req, map[string]string{"version": ConfigVersion})
}
