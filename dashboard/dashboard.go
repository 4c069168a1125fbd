// Package dashboard serves the status UI, JSON status API, health endpoint
// and Prometheus metrics while queuewatch runs in serve mode.
package dashboard

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/contrib/fiberzerolog"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/template/html/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/queuewatch/queuewatch/config"
	"github.com/queuewatch/queuewatch/history"
	"github.com/queuewatch/queuewatch/models"
)

//go:embed views/*
var viewsfs embed.FS

type Dashboard struct {
	app     *fiber.App
	store   models.RegistryStore
	history *history.Recorder

	cfg config.DashboardConfig

	mu   sync.RWMutex
	last models.CheckResult
}

func NewDashboard(store models.RegistryStore, recorder *history.Recorder, cfg config.DashboardConfig) *Dashboard {
	fs2, err := fs.Sub(viewsfs, "views")
	if err != nil {
		log.Fatal().Err(err).Send()
	}
	engine := html.NewFileSystem(http.FS(fs2), ".html")

	engine.AddFunc("since", func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return time.Since(t).Truncate(time.Second).String()
	})

	app := fiber.New(fiber.Config{
		Views:                 engine,
		DisableStartupMessage: true,
	})

	app.Use(fiberzerolog.New(fiberzerolog.Config{
		Logger: &log.Logger,
	}))

	if cfg.User != "" && cfg.Pass != "" {
		app.Use(basicauth.New(basicauth.Config{
			Users: map[string]string{
				cfg.User: cfg.Pass,
			},
		}))
	}

	d := &Dashboard{
		app:     app,
		store:   store,
		history: recorder,
		cfg:     cfg,
	}

	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())

	app.Get("/", d.Status)
	app.Get("/api/status", d.StatusJSON)
	app.Get("/api/history", d.History)
	app.Get("/healthz", d.Health)
	app.Get("/metrics", func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	})

	return d
}

func (d *Dashboard) Start() error {
	if !d.cfg.Enabled {
		return nil
	}

	fmt.Printf("Dashboard: http://localhost:%d\n", d.cfg.Port)
	return d.app.Listen(fmt.Sprintf(":%d", d.cfg.Port))
}

func (d *Dashboard) Stop() error {
	if d.cfg.Enabled {
		return d.app.Shutdown()
	}

	return nil
}

// SetResult publishes the latest run outcome to the UI.
func (d *Dashboard) SetResult(result models.CheckResult) {
	d.mu.Lock()
	d.last = result
	d.mu.Unlock()
}

func (d *Dashboard) lastResult() models.CheckResult {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

type queueRow struct {
	Name           string
	LastValue      int64
	LastDecreaseAt time.Time
	Alerted        string
}

func (d *Dashboard) queueRows() ([]queueRow, error) {
	registry, err := d.store.Load()
	if err != nil {
		return nil, err
	}

	last := d.lastResult()

	rows := make([]queueRow, 0, len(registry))
	for name, state := range registry {
		row := queueRow{
			Name:           name,
			LastValue:      state.LastValue,
			LastDecreaseAt: state.LastDecreaseAt,
		}
		if _, ok := last.Critical[name]; ok {
			row.Alerted = models.SeverityCritical.String()
		} else if _, ok := last.Warning[name]; ok {
			row.Alerted = models.SeverityWarning.String()
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })

	return rows, nil
}

func (d *Dashboard) Status(c *fiber.Ctx) error {
	rows, err := d.queueRows()

	return c.Render("status", fiber.Map{
		"Result": d.lastResult(),
		"Queues": rows,
		"Err":    err,
	}, "layout")
}

func (d *Dashboard) StatusJSON(c *fiber.Ctx) error {
	rows, err := d.queueRows()
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"result": d.lastResult(),
		"queues": rows,
	})
}

func (d *Dashboard) History(c *fiber.Ctx) error {
	if d.history == nil {
		return c.JSON([]history.Run{})
	}

	runs, err := d.history.RecentRuns(c.QueryInt("limit", 20))
	if err != nil {
		return err
	}

	return c.JSON(runs)
}

func (d *Dashboard) Health(c *fiber.Ctx) error {
	return c.SendString("ok")
}
