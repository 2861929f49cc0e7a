package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"hydro-server/analyzeserver"
	"hydro-server/ee"
	"hydro-server/util"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	log "github.com/sirupsen/logrus"
)

var (
	port = flag.Int("port", 0, "Serving port (overrides PORT)")
)

func topLevelContext() context.Context {
	ctx, cancelf := context.WithCancel(context.Background())
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigs
		log.Warnf("Caught signal %q, shutting down.", sig)
		cancelf()
	}()
	return ctx
}

// corsMiddleware permits cross-origin requests from any origin, with
// credentials, for all methods and headers.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debugf("No .env file loaded: %v", err)
	}

	ctx := topLevelContext()

	compute := ee.New(ctx)

	router := mux.NewRouter()
	router.Use(corsMiddleware)
	router.Handle("/analyze", analyzeserver.New(compute)).Methods("POST", "OPTIONS")

	serve := *port
	if serve == 0 {
		serve = util.EnvOrDefaultInt("PORT", 8000)
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", serve),
		Handler: router,
	}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()
	log.Infof("Starting on port %d", serve)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("ListenAndServe(): %v", err)
	}
	log.Infof("Shutdown")
}
