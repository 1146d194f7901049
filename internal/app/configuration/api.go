package configuration

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/contractkit/pactmock/internal/app/httpresponse"
	"github.com/contractkit/pactmock/internal/app/pactmock"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// ServeAdminAPI starts the management API used in standalone mode: callers
// post a pact document to spin up a mock server, query its match state, have
// the pact written and shut the server down again.
func ServeAdminAPI(config pactmock.Config) *echo.Echo {
	adminServer := echo.New()
	adminServer.HideBanner = true

	api := adminAPI{config: config}

	adminServer.GET("/ready", api.readyHandler)
	adminServer.POST("/mockservers", api.createHandler)
	adminServer.GET("/mockservers", api.listHandler)
	adminServer.GET("/mockservers/:id/matched", api.matchedHandler)
	adminServer.GET("/mockservers/:id/mismatches", api.mismatchesHandler)
	adminServer.GET("/mockservers/:id/logs", api.logsHandler)
	adminServer.POST("/mockservers/:id/pact", api.writePactHandler)
	adminServer.DELETE("/mockservers/:id", api.deleteHandler)

	go func() {
		address := fmt.Sprintf(":%d", config.AdminPort)
		if err := adminServer.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	return adminServer
}

type adminAPI struct {
	config pactmock.Config
}

func (a adminAPI) readyHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (a adminAPI) createHandler(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to read pact document. %s", err.Error()))
	}

	pact, err := pactmock.LoadPactFile(data)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to load pact document. %s", err.Error()))
	}

	port := 0
	if raw := c.QueryParam("port"); raw != "" {
		port, err = strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, httpresponse.Errorf("invalid port %q", raw))
		}
	}
	addr := fmt.Sprintf("%s:%d", a.config.BindHost, port)

	managed, err := StartMockServer(pact, addr, a.config.TransportConfig())
	if err != nil {
		return c.JSON(http.StatusConflict, httpresponse.Errorf("unable to start mock server. %s", err.Error()))
	}

	log.Infof("started mock server %s for %s/%s", managed.ID, pact.Consumer, pact.Provider)
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"id":   managed.ID,
		"port": managed.Server.Port(),
		"url":  managed.Server.URL(),
	})
}

func (a adminAPI) listHandler(c echo.Context) error {
	out := make([]map[string]interface{}, 0)
	for _, managed := range Servers() {
		out = append(out, map[string]interface{}{
			"id":       managed.ID,
			"port":     managed.Server.Port(),
			"matched":  managed.Server.Matched(),
			"requests": managed.Server.RequestCount(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (a adminAPI) matchedHandler(c echo.Context) error {
	managed, ok := LoadServer(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, httpresponse.Errorf("unknown mock server %q", c.Param("id")))
	}
	return c.JSON(http.StatusOK, map[string]bool{"matched": managed.Server.Matched()})
}

func (a adminAPI) mismatchesHandler(c echo.Context) error {
	managed, ok := LoadServer(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, httpresponse.Errorf("unknown mock server %q", c.Param("id")))
	}
	report, err := managed.Server.MismatchesJSON()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.Error(err.Error()))
	}
	return c.JSONBlob(http.StatusOK, report)
}

func (a adminAPI) logsHandler(c echo.Context) error {
	managed, ok := LoadServer(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, httpresponse.Errorf("unknown mock server %q", c.Param("id")))
	}
	return c.JSON(http.StatusOK, map[string][]string{"logs": managed.Server.Logs()})
}

func (a adminAPI) writePactHandler(c echo.Context) error {
	managed, ok := LoadServer(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, httpresponse.Errorf("unknown mock server %q", c.Param("id")))
	}

	dir := c.QueryParam("dir")
	if dir == "" {
		dir = a.config.PactDir
	}
	overwrite := c.QueryParam("overwrite") == "true"

	server := managed.Server
	err := pactmock.WritePactFile(server.Pact(), server.MatchedInteractions(), dir, overwrite)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.Errorf("unable to write pact file. %s", err.Error()))
	}
	return c.NoContent(http.StatusCreated)
}

func (a adminAPI) deleteHandler(c echo.Context) error {
	if err := ShutdownServer(c.Param("id")); err != nil {
		return c.JSON(http.StatusNotFound, httpresponse.Error(err.Error()))
	}
	return c.NoContent(http.StatusNoContent)
}
