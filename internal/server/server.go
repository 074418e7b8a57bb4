package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	gatewayfile "github.com/black-06/grpc-gateway-file"
	"github.com/emrgen/docrender/internal/config"
	"github.com/gobuffalo/packr"
	grpcmiddleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpcvalidator "github.com/grpc-ecosystem/go-grpc-middleware/validator"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

// Server represents the server
type Server struct {
	cfg      *config.Config
	verifier TokenVerifier
}

// NewServer creates a new server. Tokens are verified by the null verifier.
func NewServer(cfg *config.Config) *Server {
	return &Server{
		cfg:      cfg,
		verifier: NewNullTokenVerifier(),
	}
}

// Start starts the server
func (s *Server) Start() {
	if err := Start(s.cfg, s.verifier); err != nil {
		logrus.Fatalf("error starting server: %v", err)
	}
}

// NewGrpcServer creates the grpc server carrying the health service.
func NewGrpcServer(verifier TokenVerifier) (*grpc.Server, *health.Server) {
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(grpcmiddleware.ChainUnaryServer(
			grpcvalidator.UnaryServerInterceptor(),
			// inject the caller into the context
			UnaryServerActorInterceptor(verifier),
			// log the request time
			UnaryGrpcRequestTimeInterceptor(),
		)),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	return grpcServer, healthServer
}

// NewHandler creates the http handler serving the REST API and its documentation.
func NewHandler(app *App, verifier TokenVerifier, adminToken string) (http.Handler, error) {
	mux := runtime.NewServeMux(
		runtime.WithMarshalerOption(runtime.MIMEWildcard, &runtime.HTTPBodyMarshaler{
			Marshaler: &runtime.JSONPb{
				MarshalOptions: protojson.MarshalOptions{
					EmitUnpopulated: true,
				},
				UnmarshalOptions: protojson.UnmarshalOptions{
					DiscardUnknown: true,
				},
			},
		}),
		gatewayfile.WithHTTPBodyMarshaler(),
		runtime.WithMiddlewares(RequestTimeMiddleware),
	)

	if err := RegisterRoutes(mux, app, verifier, adminToken); err != nil {
		return nil, err
	}

	apiMux := http.NewServeMux()
	openapiDocs := packr.NewBox("../../docs/v1")
	docsPath := "/v1/docs/"
	apiMux.Handle(docsPath, http.StripPrefix(docsPath, http.FileServer(openapiDocs)))
	apiMux.Handle("/", mux)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // All origins are allowed
		AllowedMethods:   []string{"GET", "POST", "DELETE", "PUT"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	return c.Handler(apiMux), nil
}

// Start starts the grpc and http servers and blocks until the process is signalled.
func Start(cfg *config.Config, verifier TokenVerifier) error {
	var err error

	grpcPort := ":" + cfg.GrpcPort
	httpPort := ":" + cfg.HttpPort

	db, err := config.OpenDb(cfg)
	if err != nil {
		return err
	}

	app, err := NewApp(context.Background(), cfg, db)
	if err != nil {
		return err
	}
	defer app.Close()

	handler, err := NewHandler(app, verifier, cfg.AdminToken)
	if err != nil {
		return err
	}

	gl, err := net.Listen("tcp", grpcPort)
	if err != nil {
		return err
	}

	rl, err := net.Listen("tcp", httpPort)
	if err != nil {
		return err
	}

	grpcServer, healthServer := NewGrpcServer(verifier)

	restServer := &http.Server{
		Addr:    httpPort,
		Handler: handler,
	}

	if err = app.Tasks.Run(); err != nil {
		return err
	}

	// make sure to wait for the servers to stop before exiting
	var wg sync.WaitGroup

	wg.Add(1)
	// Start the rest gateway
	go func() {
		defer wg.Done()
		logrus.Info("starting rest gateway on: ", httpPort)
		logrus.Info("click on the following link to view the API documentation: http://localhost", httpPort, "/v1/docs/")
		if err := restServer.Serve(rl); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logrus.Errorf("error starting rest gateway: %v", err)
			}
		}
		logrus.Infof("rest gateway stopped")
	}()

	// Start the grpc server
	wg.Add(1)
	go func() {
		defer wg.Done()
		logrus.Info("starting grpc server on: ", grpcPort)
		if err := grpcServer.Serve(gl); err != nil {
			logrus.Infof("grpc failed to start: %v", err)
		}
		logrus.Infof("grpc server stopped")
	}()

	time.Sleep(1 * time.Second)
	logrus.Infof("Press Ctrl+C to stop the server")

	// listen for interrupt signal to gracefully shut down the server
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGTERM, unix.SIGINT, unix.SIGTSTP)
	<-sigs
	// clean Ctrl+C output
	fmt.Println()

	healthServer.Shutdown()
	grpcServer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err = restServer.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("error stopping rest gateway: %v", err)
	}

	wg.Wait()

	if err = app.Store.Flush(context.Background()); err != nil {
		logrus.Errorf("error flushing store: %v", err)
	}

	return nil
}
