package shelly

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

const ERR_CODE_INVALID_ARGUMENT = -103

func (f *Frontend) registerHTTPRoutes(e *echo.Echo) {
	e.GET("/shelly", f.DeviceInfoHandler)
	e.GET("/rpc/:method", f.MethodHandler)
	e.POST("/rpc", f.EnvelopeHandler)
}

func (f *Frontend) DeviceInfoHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, NewDeviceInfo(f.identity))
}

// MethodHandler answers GET /rpc/{method} with the bare result. Query
// arguments become the call params.
func (f *Frontend) MethodHandler(c echo.Context) error {
	method := c.Param("method")
	params, err := queryParams(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, RPCError{Code: ERR_CODE_INVALID_ARGUMENT, Message: err.Error()})
	}
	result, err := f.dispatcher.Call(c.Request().Context(), method, params)
	if err != nil {
		if errors.Is(err, ErrMethodNotFound) {
			return c.JSON(http.StatusNotFound, MethodNotFound(method))
		}
		f.logger.Sugar().Errorf("shelly: %s failed: %v", method, err)
		return c.JSON(http.StatusInternalServerError, RPCError{Code: -1, Message: err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

// EnvelopeHandler answers POST /rpc with a full response frame.
func (f *Frontend) EnvelopeHandler(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxFrameSize))
	if err != nil {
		return err
	}
	req, err := ParseRequest(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, Response{
			Src:   f.dispatcher.DeviceID(),
			Error: &RPCError{Code: ERR_CODE_INVALID_ARGUMENT, Message: err.Error()},
		})
	}
	resp := f.dispatcher.Handle(c.Request().Context(), req)
	if resp.Error != nil && resp.Error.Code == ERR_CODE_METHOD_NOT_FOUND {
		return c.JSON(http.StatusNotFound, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// queryParams turns ?id=0&name=x into {"id":0,"name":"x"}. Values that are
// valid JSON keep their type.
func queryParams(c echo.Context) (json.RawMessage, error) {
	values := c.QueryParams()
	if len(values) == 0 {
		return nil, nil
	}
	params := make(map[string]json.RawMessage, len(values))
	for key, vals := range values {
		v := vals[len(vals)-1]
		if json.Valid([]byte(v)) {
			params[key] = json.RawMessage(v)
			continue
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		params[key] = encoded
	}
	return json.Marshal(params)
}
