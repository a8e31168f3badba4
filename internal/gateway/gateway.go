// Package gateway exposes a hub's Config and State regions over HTTP.
package gateway

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/thermoctl/internal/auth"
	"github.com/danmuck/thermoctl/internal/memory"
	"github.com/danmuck/thermoctl/internal/observability"
	"github.com/danmuck/thermoctl/internal/thermo"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var ErrBadIndex = errors.New("gateway: index must be a number")

// Device is what the gateway needs from a session.
type Device interface {
	memory.Backend
	Uptime(ctx context.Context) (uint32, error)
}

type Gateway struct {
	ID       string
	Addr     string
	Appeared time.Time

	dev    Device
	config *thermo.Config
	state  *thermo.State
	router *gin.Engine
	now    func() time.Time
	writes auth.Validator
}

func New(id, addr string, dev Device, corsOrigins []string) (*Gateway, error) {
	cfg, err := thermo.NewConfig(dev)
	if err != nil {
		return nil, err
	}
	st, err := thermo.NewState(dev)
	if err != nil {
		return nil, err
	}

	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.GatewayRequests(id, log.Logger, dev.Epoch))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST", "PUT"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	return &Gateway{
		ID:       id,
		Addr:     addr,
		Appeared: time.Now(),
		dev:      dev,
		config:   cfg,
		state:    st,
		router:   r,
		now:      time.Now,
	}, nil
}

func (g *Gateway) HTTPRouter() *gin.Engine {
	return g.router
}

// RequireToken guards the routes that write to the hub. It must be called
// before RegisterRoutes.
func (g *Gateway) RequireToken(v auth.Validator) {
	g.writes = v
}

func (g *Gateway) RegisterRoutes() {
	r := g.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(g.Appeared).String(),
			"service": g.ID,
			"epoch":   g.dev.Epoch(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/uptime", g.getUptime)
	r.GET("/config", g.getConfig)
	r.GET("/config/nodes/:index", g.getConfigNode)
	r.GET("/config/channels/:index", g.getConfigChannel)
	r.GET("/state/nodes/:index", g.getStateNode)
	r.GET("/state/channels/:index", g.getStateChannel)

	w := r.Group("/")
	if g.writes != nil {
		w.Use(auth.Bearer(g.writes))
	}
	w.PUT("/config/nodes/:index/name", g.putNodeName)
	w.POST("/clock/sync", g.postClockSync)
}

// Serve runs the HTTP server until ctx ends.
func (g *Gateway) Serve(ctx context.Context) error {
	g.RegisterRoutes()
	srv := &http.Server{Addr: g.Addr, Handler: g.router}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info().Str("addr", g.Addr).Str("gateway", g.ID).Msg("gateway: serving")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) getUptime(c *gin.Context) {
	up, err := g.dev.Uptime(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uptime": up})
}

func (g *Gateway) getConfig(c *gin.Context) {
	h, err := g.config.Header(c.Request.Context(), useCache(c))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h)
}

func (g *Gateway) getConfigNode(c *gin.Context) {
	i, ok := index(c)
	if !ok {
		return
	}
	node, err := g.config.Node(i)
	if err != nil {
		g.fail(c, err)
		return
	}
	info, err := node.Info(c.Request.Context(), useCache(c))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

type nameRequest struct {
	Name string `json:"name" binding:"required"`
}

func (g *Gateway) putNodeName(c *gin.Context) {
	i, ok := index(c)
	if !ok {
		return
	}
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	node, err := g.config.Node(i)
	if err != nil {
		g.fail(c, err)
		return
	}
	if err := node.Name.Set(c.Request.Context(), req.Name, false); err != nil {
		g.fail(c, err)
		return
	}
	log.Info().Int("node", i).Str("name", node.Name.Peek()).Msg("gateway: node renamed")
	c.JSON(http.StatusOK, gin.H{"name": node.Name.Peek()})
}

func (g *Gateway) getConfigChannel(c *gin.Context) {
	i, ok := index(c)
	if !ok {
		return
	}
	ch, err := g.config.Channel(i)
	if err != nil {
		g.fail(c, err)
		return
	}
	info, err := ch.Info(c.Request.Context(), useCache(c))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

type nodeReading struct {
	LastUpdate  *time.Time `json:"last_update"`
	Uptime      uint32     `json:"uptime"`
	Temperature *float64   `json:"temperature"`
	Voltage     *float64   `json:"voltage"`
	Battery     *int       `json:"battery"`
}

func (g *Gateway) getStateNode(c *gin.Context) {
	i, ok := index(c)
	if !ok {
		return
	}
	r, err := g.state.Reading(c.Request.Context(), i, useCache(c))
	if err != nil {
		g.fail(c, err)
		return
	}
	out := nodeReading{
		Uptime:      r.Uptime,
		Temperature: number(r.Temperature),
		Voltage:     number(r.Voltage),
	}
	if !r.LastUpdate.IsZero() {
		out.LastUpdate = &r.LastUpdate
	}
	if out.Voltage != nil {
		level := r.Battery()
		out.Battery = &level
	}
	c.JSON(http.StatusOK, out)
}

func (g *Gateway) getStateChannel(c *gin.Context) {
	i, ok := index(c)
	if !ok {
		return
	}
	r, err := g.state.ChannelReading(c.Request.Context(), i, useCache(c))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"temperature": number(r.Temperature)})
}

func (g *Gateway) postClockSync(c *gin.Context) {
	shift, err := thermo.SyncClock(c.Request.Context(), g.dev, g.state, g.now())
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"time_shift": shift})
}

// fail maps layout errors to 404 and everything else to 502.
func (g *Gateway) fail(c *gin.Context, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, thermo.ErrIndex) {
		status = http.StatusNotFound
	} else {
		log.Error().Str("gateway", g.ID).Str("path", c.FullPath()).Err(err).Msg("gateway: device request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func index(c *gin.Context) (int, bool) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrBadIndex.Error()})
		return 0, false
	}
	return i, true
}

func useCache(c *gin.Context) bool {
	return observability.CacheMode(c.Query("cache")) == "cached"
}

// number maps the no-value NaN onto JSON null.
func number(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
