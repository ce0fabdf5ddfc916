package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/handiism/vasset-downloader/internal/mockapi"
)

func main() {
	var (
		addrFlag    = flag.String("addr", ":8080", "Listen address")
		secretFlag  = flag.String("secret", os.Getenv("VASSET_MOCK_SECRET"), "JWT signing secret (random when empty)")
		stepFlag    = flag.Duration("step", 300*time.Millisecond, "Time between progress events")
		stepsFlag   = flag.Int("steps", 5, "Progress events per task")
		verboseFlag = flag.Bool("verbose", false, "Log every request")
	)
	flag.Parse()

	gin.SetMode(gin.ReleaseMode)
	if *verboseFlag {
		log.SetLevel(log.DebugLevel)
	}

	mock := mockapi.New(mockapi.Options{
		Secret:       []byte(*secretFlag),
		StepInterval: *stepFlag,
		Steps:        *stepsFlag,
	})
	srv := &http.Server{Addr: *addrFlag, Handler: mock.Handler()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infof("Mock backend listening on %s", *addrFlag)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	mock.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Shutdown: %v", err)
	}
}
