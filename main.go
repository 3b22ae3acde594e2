package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"hizuke-thumb/canvas"
	"hizuke-thumb/fileutil"
	"hizuke-thumb/handlers/api/assets"
	"hizuke-thumb/handlers/api/library"
	"hizuke-thumb/handlers/api/thumbnails"
	authMiddleware "hizuke-thumb/middleware"
	"hizuke-thumb/presets"
	"hizuke-thumb/stores"
)

type config struct {
	jwtSecret        []byte
	filenameTemplate string
}

func loadConfig() config {
	cfg := config{
		jwtSecret:        []byte(os.Getenv("JWT_SECRET")),
		filenameTemplate: os.Getenv("FILENAME_TEMPLATE"),
	}
	if cfg.filenameTemplate == "" {
		cfg.filenameTemplate = fileutil.DefaultTemplate
	}
	return cfg
}

func setupRouter(svc *presets.Service, cfg config) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "X-CSRF-Token", "Origin", "X-Requested-With"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Route("/api", func(r chi.Router) {
		if len(cfg.jwtSecret) > 0 {
			r.Use(authMiddleware.AuthJWT(cfg.jwtSecret))
		}

		r.Route("/presets", func(r chi.Router) {
			r.Get("/", library.HandleListPresets(svc))
			r.Post("/", library.HandleCreatePreset(svc))
			r.Get("/default", library.HandleGetDefault(svc))
			r.Post("/import", library.HandleImportPreset(svc))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", library.HandleGetPreset(svc))
				r.Put("/", library.HandleSavePreset(svc))
				r.Patch("/", library.HandleRenamePreset(svc))
				r.Delete("/", library.HandleDeletePreset(svc))
				r.Post("/duplicate", library.HandleDuplicatePreset(svc))
				r.Post("/default", library.HandleSetDefault(svc))
				r.Get("/export", library.HandleExportPreset(svc))
				r.Get("/render", thumbnails.HandleRender(svc, cfg.filenameTemplate))
				r.Post("/thumbnail", thumbnails.HandleRefreshThumbnail(svc))

				r.Route("/layers", func(r chi.Router) {
					r.Post("/", library.HandleAddLayer(svc))
					r.Route("/{layerId}", func(r chi.Router) {
						r.Patch("/", library.HandleUpdateLayer(svc))
						r.Delete("/", library.HandleDeleteLayer(svc))
						r.Post("/duplicate", library.HandleDuplicateLayer(svc))
						r.Post("/order", library.HandleOrderLayer(svc))
					})
				})
			})
		})

		r.Route("/images", func(r chi.Router) {
			r.Post("/", assets.HandleUploadImage(svc))
			r.Get("/{id}", assets.HandleGetImage(svc))
		})
		r.Route("/fonts", func(r chi.Router) {
			r.Get("/", assets.HandleListFonts(svc))
			r.Post("/", assets.HandleUploadFont(svc))
		})
		r.Route("/settings/{key}", func(r chi.Router) {
			r.Get("/", assets.HandleGetSetting(svc))
			r.Put("/", assets.HandlePutSetting(svc))
			r.Delete("/", assets.HandleDeleteSetting(svc))
		})
		r.Get("/date-formats", thumbnails.HandleDateFormats())
	})

	return r
}

func waitForShutdown(srv *http.Server, closers ...io.Closer) {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	s := <-signalC
	logrus.WithField("signal", s.String()).Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithField("event", "shutdown server").Error(err)
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logrus.WithField("event", "close store").Error(err)
		}
	}
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":3002", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg := loadConfig()
	store := stores.GetStore()
	images := canvas.NewImageCache(store)
	text := canvas.NewTextEngine(canvas.NewFontLibrary(store))
	svc := presets.NewService(store, images, text)

	if len(cfg.jwtSecret) > 0 {
		logrus.Info("API protected by JWT")
	}

	srv := &http.Server{
		Addr:              *listenAddress,
		Handler:           setupRouter(svc, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	var closers []io.Closer
	if c, ok := store.(io.Closer); ok {
		closers = append(closers, c)
	}
	waitForShutdown(srv, closers...)
}
